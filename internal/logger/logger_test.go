package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func resetHandler() {
	mu.Lock()
	handler = nil
	mu.Unlock()
}

func TestSetHandlerRejectsNil(t *testing.T) {
	resetHandler()
	if err := SetHandler(nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("SetHandler(nil) = %v, want ErrNilHandler", err)
	}
}

func TestSetHandlerRejectsSecond(t *testing.T) {
	resetHandler()
	defer resetHandler()

	l := zerolog.New(&bytes.Buffer{})
	if err := SetHandler(&l); err != nil {
		t.Fatalf("first SetHandler error: %v", err)
	}
	l2 := zerolog.New(&bytes.Buffer{})
	if err := SetHandler(&l2); !errors.Is(err, ErrHandlerAlreadySet) {
		t.Errorf("second SetHandler = %v, want ErrHandlerAlreadySet", err)
	}
}

func TestRemoveHandlerAllowsReset(t *testing.T) {
	resetHandler()
	defer resetHandler()

	l := zerolog.New(&bytes.Buffer{})
	if err := SetHandler(&l); err != nil {
		t.Fatalf("SetHandler error: %v", err)
	}
	RemoveHandler()
	RemoveHandler() // idempotent

	l2 := zerolog.New(&bytes.Buffer{})
	if err := SetHandler(&l2); err != nil {
		t.Errorf("SetHandler after RemoveHandler error: %v", err)
	}
}

func TestNoHandlerIsNoOp(t *testing.T) {
	resetHandler()
	// Must not panic, and must not crash the caller.
	Log(context.Background(), Information, "hello", "k", "v")
}

func TestLogGoesThroughInstalledHandler(t *testing.T) {
	resetHandler()
	defer resetHandler()

	var buf bytes.Buffer
	l := zerolog.New(&buf)
	if err := SetHandler(&l); err != nil {
		t.Fatalf("SetHandler error: %v", err)
	}

	Log(context.Background(), Warning, "disk low", "free_bytes", 1024)

	out := buf.String()
	if !strings.Contains(out, "disk low") {
		t.Errorf("log output %q missing message", out)
	}
	if !strings.Contains(out, "free_bytes") {
		t.Errorf("log output %q missing field", out)
	}
}

func TestContextLoggerOverridesGlobal(t *testing.T) {
	resetHandler()
	defer resetHandler()

	var globalBuf, ctxBuf bytes.Buffer
	global := zerolog.New(&globalBuf)
	if err := SetHandler(&global); err != nil {
		t.Fatalf("SetHandler error: %v", err)
	}

	ctxLogger := zerolog.New(&ctxBuf)
	ctx := WithContext(context.Background(), ctxLogger)

	Log(ctx, Error, "boom")

	if globalBuf.Len() != 0 {
		t.Errorf("global handler received output %q, want none", globalBuf.String())
	}
	if !strings.Contains(ctxBuf.String(), "boom") {
		t.Errorf("context logger output %q missing message", ctxBuf.String())
	}
}

func TestSeverityOrdering(t *testing.T) {
	levels := []Level{Debug, Information, Warning, Error, Fatal}
	for i := 1; i < len(levels); i++ {
		if !(levels[i-1] < levels[i]) {
			t.Errorf("severity ordering broken: %v is not < %v", levels[i-1], levels[i])
		}
	}
}
