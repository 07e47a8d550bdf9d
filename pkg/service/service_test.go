package service

import (
	"context"
	"testing"

	"github.com/epoxyrpc/epoxy/pkg/message"
)

func TestRegistryAddAndLookup(t *testing.T) {
	r := NewRegistry()
	if r.IsRegistered("echo") {
		t.Fatal("IsRegistered(\"echo\") = true before Add")
	}

	r.Add("echo", func(_ context.Context, req Request) (Response, error) {
		return OK(req.Payload), nil
	})

	if !r.IsRegistered("echo") {
		t.Fatal("IsRegistered(\"echo\") = false after Add")
	}

	fn, ok := r.Lookup("echo")
	if !ok {
		t.Fatal("Lookup(\"echo\") not found after Add")
	}
	resp, err := fn(context.Background(), Request{Method: "echo", Payload: []byte("hi")})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if string(resp.Payload) != "hi" {
		t.Errorf("resp.Payload = %q, want %q", resp.Payload, "hi")
	}
}

func TestRegistryLookupMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("nope"); ok {
		t.Error("Lookup(\"nope\") found, want not found")
	}
}

func TestRegistryAddDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Add("echo", func(context.Context, Request) (Response, error) {
		return OK(nil), nil
	})

	defer func() {
		if recover() == nil {
			t.Error("second Add(\"echo\", ...) did not panic")
		}
	}()
	r.Add("echo", func(context.Context, Request) (Response, error) {
		return OK(nil), nil
	})
}

func TestFailedResponse(t *testing.T) {
	resp := Failed(message.Error{Code: message.MethodNotFound, Message: "nope"})
	if resp.Err == nil {
		t.Fatal("Failed(...) Response.Err is nil")
	}
	if resp.Err.Code != message.MethodNotFound {
		t.Errorf("resp.Err.Code = %q, want %q", resp.Err.Code, message.MethodNotFound)
	}
}
