package message

import "testing"

func TestFromPayload(t *testing.T) {
	m := FromPayload([]byte("hello"))
	if m.IsError() {
		t.Fatal("FromPayload: IsError() = true, want false")
	}
	if string(m.Payload()) != "hello" {
		t.Errorf("Payload() = %q, want %q", m.Payload(), "hello")
	}
}

func TestFromError(t *testing.T) {
	e := Error{Code: MethodNotFound, Message: "no such method"}
	m := FromError(e)
	if !m.IsError() {
		t.Fatal("FromError: IsError() = false, want true")
	}
	if got := m.AsError(); got != e {
		t.Errorf("AsError() = %+v, want %+v", got, e)
	}
}

func TestWrongSideAccessPanics(t *testing.T) {
	t.Run("payload_as_error", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("AsError() on payload Message did not panic")
			}
		}()
		FromPayload([]byte("x")).AsError()
	})

	t.Run("error_as_payload", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("Payload() on error Message did not panic")
			}
		}()
		FromError(Error{Code: TransportError, Message: "boom"}).Payload()
	})
}

func TestErrorImplementsError(t *testing.T) {
	var err error = Error{Code: ProtocolError, Message: "bad frame"}
	want := "ProtocolError: bad frame"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
