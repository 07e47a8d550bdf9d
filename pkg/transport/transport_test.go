package transport

import (
	"context"
	"testing"
	"time"

	"github.com/epoxyrpc/epoxy/pkg/message"
	"github.com/epoxyrpc/epoxy/pkg/service"
)

func newTestListener(t *testing.T, services *service.Registry) *Listener {
	t.Helper()
	ln, err := NewListener("127.0.0.1:0", services, nil)
	if err != nil {
		t.Fatalf("NewListener error: %v", err)
	}
	ln.Start(context.Background())
	t.Cleanup(ln.Stop)
	return ln
}

// Scenario S6: a listener-side Connected handler that rejects the
// connection surfaces the exact code/message to the connecting client.
func TestHandshakeRejection(t *testing.T) {
	registry := service.NewRegistry()
	ln := newTestListener(t, registry)
	ln.OnConnected(func(*Connection) *message.Error {
		return &message.Error{Code: "100", Message: "Go away!"}
	})

	tr := NewTransportBuilder().Build()
	_, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err == nil {
		t.Fatal("Connect succeeded, want rejection error")
	}

	var rej *RejectedError
	if !asRejected(err, &rej) {
		t.Fatalf("Connect error = %v, want a *RejectedError", err)
	}
	if rej.Detail.Code != "100" || rej.Detail.Message != "Go away!" {
		t.Errorf("rejection detail = %+v, want {100 Go away!}", rej.Detail)
	}
}

func asRejected(err error, target **RejectedError) bool {
	for err != nil {
		if r, ok := err.(*RejectedError); ok {
			*target = r
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Quantified invariant 7: a successful connection's endpoints mirror each other.
func TestEndpointsMirror(t *testing.T) {
	registry := service.NewRegistry()
	ln := newTestListener(t, registry)

	tr := NewTransportBuilder().Build()
	client, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer client.Stop(context.Background())

	server := waitForServerConn(t, ln)

	if client.LocalEndPoint().String() != server.RemoteEndPoint().String() {
		t.Errorf("client.local = %s, server.remote = %s", client.LocalEndPoint(), server.RemoteEndPoint())
	}
	if client.RemoteEndPoint().String() != server.LocalEndPoint().String() {
		t.Errorf("client.remote = %s, server.local = %s", client.RemoteEndPoint(), server.LocalEndPoint())
	}
}

// waitForServerConn polls the listener's connection set for the single
// server-side Connection spawned by the most recent accept.
func waitForServerConn(t *testing.T, ln *Listener) *Connection {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ln.mu.Lock()
		for c := range ln.conns {
			ln.mu.Unlock()
			return c
		}
		ln.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for server-side connection")
	return nil
}

// Scenario S7: after the client stops, the server's Disconnected event
// fires with a connection whose remote endpoint equals the client's local
// endpoint.
func TestCleanDisconnectEvent(t *testing.T) {
	registry := service.NewRegistry()
	ln := newTestListener(t, registry)

	disconnected := make(chan *Connection, 1)
	ln.OnDisconnected(func(c *Connection, _ error) {
		disconnected <- c
	})

	tr := NewTransportBuilder().Build()
	client, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	clientLocal := client.LocalEndPoint().String()

	client.Stop(context.Background())

	select {
	case server := <-disconnected:
		if server.RemoteEndPoint().String() != clientLocal {
			t.Errorf("disconnected server.remote = %s, want %s", server.RemoteEndPoint(), clientLocal)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server Disconnected event")
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	registry := service.NewRegistry()
	registry.Add("echo", func(_ context.Context, req service.Request) (service.Response, error) {
		return service.OK(req.Payload), nil
	})
	ln := newTestListener(t, registry)

	tr := NewTransportBuilder().Build()
	client, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer client.Stop(context.Background())

	slot, err := client.SendRequest(context.Background(), "echo", []byte("hello"))
	if err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}

	resp := slot.Read()
	if resp.IsError() {
		t.Fatalf("response is an error: %+v", resp.AsError())
	}
	if string(resp.Payload()) != "hello" {
		t.Errorf("response payload = %q, want %q", resp.Payload(), "hello")
	}
}

func TestMethodNotFound(t *testing.T) {
	registry := service.NewRegistry()
	ln := newTestListener(t, registry)

	tr := NewTransportBuilder().Build()
	client, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer client.Stop(context.Background())

	slot, err := client.SendRequest(context.Background(), "nonexistent", nil)
	if err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}
	resp := slot.Read()
	if !resp.IsError() || resp.AsError().Code != message.MethodNotFound {
		t.Errorf("response = %+v, want MethodNotFound error", resp)
	}
}

func TestApplicationError(t *testing.T) {
	registry := service.NewRegistry()
	registry.Add("fail", func(_ context.Context, _ service.Request) (service.Response, error) {
		return service.Failed(message.Error{Code: "custom", Message: "nope"}), nil
	})
	ln := newTestListener(t, registry)

	tr := NewTransportBuilder().Build()
	client, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer client.Stop(context.Background())

	slot, err := client.SendRequest(context.Background(), "fail", nil)
	if err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}
	resp := slot.Read()
	if !resp.IsError() || resp.AsError().Code != "custom" {
		t.Errorf("response = %+v, want application error with code \"custom\"", resp)
	}
}

func TestSendEvent(t *testing.T) {
	received := make(chan string, 1)
	registry := service.NewRegistry()
	registry.Add("notify", func(_ context.Context, req service.Request) (service.Response, error) {
		received <- string(req.Payload)
		return service.OK(nil), nil
	})
	ln := newTestListener(t, registry)

	tr := NewTransportBuilder().Build()
	client, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer client.Stop(context.Background())

	if err := client.SendEvent(context.Background(), "notify", []byte("ping")); err != nil {
		t.Fatalf("SendEvent error: %v", err)
	}

	select {
	case got := <-received:
		if got != "ping" {
			t.Errorf("event payload = %q, want %q", got, "ping")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event delivery")
	}
}

func TestConnectionStopResolvesOutstandingRequests(t *testing.T) {
	block := make(chan struct{})
	registry := service.NewRegistry()
	registry.Add("slow", func(_ context.Context, _ service.Request) (service.Response, error) {
		<-block
		return service.OK(nil), nil
	})
	ln := newTestListener(t, registry)
	defer close(block)

	tr := NewTransportBuilder().Build()
	client, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}

	slot, err := client.SendRequest(context.Background(), "slow", nil)
	if err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}

	client.Stop(context.Background())

	resp := slot.Read()
	if !resp.IsError() || resp.AsError().Code != message.ConnectionShutDown {
		t.Errorf("response after Stop = %+v, want ConnectionShutDown error", resp)
	}
}

func TestConnectionAndListenerIDsAreNonEmptyAndDistinct(t *testing.T) {
	registry := service.NewRegistry()
	ln1 := newTestListener(t, registry)
	ln2 := newTestListener(t, registry)

	if ln1.ID() == "" || ln2.ID() == "" {
		t.Fatal("Listener.ID() should never be empty")
	}
	if ln1.ID() == ln2.ID() {
		t.Error("two listeners should not share an ID")
	}

	tr := NewTransportBuilder().Build()
	c1, err := tr.Connect(context.Background(), ln1.ListenEndpoint().String())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer c1.Stop(context.Background())

	c2, err := tr.Connect(context.Background(), ln1.ListenEndpoint().String())
	if err != nil {
		t.Fatalf("Connect error: %v", err)
	}
	defer c2.Stop(context.Background())

	if c1.ID() == "" || c2.ID() == "" {
		t.Fatal("Connection.ID() should never be empty")
	}
	if c1.ID() == c2.ID() {
		t.Error("two connections should not share an ID")
	}
}

func TestDefaultPortApplied(t *testing.T) {
	resolved, err := resolveAddr("localhost")
	if err != nil {
		t.Fatalf("resolveAddr error: %v", err)
	}
	if resolved != "localhost:25188" {
		t.Errorf("resolveAddr(\"localhost\") = %q, want %q", resolved, "localhost:25188")
	}
}

func TestMalformedAddressFails(t *testing.T) {
	if _, err := resolveAddr("["); err == nil {
		t.Error("resolveAddr(\"[\") succeeded, want error")
	}
}
