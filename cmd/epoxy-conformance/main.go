// Epoxy-conformance starts a local Epoxy listener and drives it through a
// real client connection: the handshake-rejection (S6) and clean-disconnect
// (S7) scenarios, plus request/response round-trip, method-not-found and
// application-error cases, reporting pass/fail per scenario.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/epoxyrpc/epoxy/internal/logger"
	"github.com/epoxyrpc/epoxy/pkg/message"
	"github.com/epoxyrpc/epoxy/pkg/service"
	"github.com/epoxyrpc/epoxy/pkg/transport"
)

func main() {
	l := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if err := logger.SetHandler(&l); err != nil {
		fatal("failed to install log handler", err)
	}

	failures := 0
	for i, c := range cases {
		if err := c.run(); err != nil {
			l.Error().Int("case", i+1).Str("name", c.name).Err(err).Msg("FAIL")
			failures++
			continue
		}
		l.Info().Int("case", i+1).Str("name", c.name).Msg("PASS")
	}

	if failures > 0 {
		fmt.Printf("%d of %d scenarios failed\n", failures, len(cases))
		os.Exit(1)
	}
	fmt.Printf("all %d scenarios passed\n", len(cases))
}

func fatal(msg string, err error) {
	fmt.Printf("Error: %s: %v\n", msg, err)
	os.Exit(1)
}

type conformanceCase struct {
	name string
	run  func() error
}

var cases = []conformanceCase{
	{"S6 handshake rejection", caseHandshakeRejection},
	{"S7 clean disconnect event", caseCleanDisconnect},
	{"request/response round trip", caseRoundTrip},
	{"method not found", caseMethodNotFound},
	{"application error", caseApplicationError},
}

func newEchoListener() (*transport.Listener, *transport.Transport, error) {
	registry := service.NewRegistry()
	registry.Add("echo", func(_ context.Context, req service.Request) (service.Response, error) {
		return service.OK(req.Payload), nil
	})
	registry.Add("fail", func(_ context.Context, _ service.Request) (service.Response, error) {
		return service.Failed(message.Error{Code: "custom", Message: "nope"}), nil
	})

	tr := transport.NewTransportBuilder().Build()
	ln, err := tr.MakeListener("127.0.0.1:0", registry)
	if err != nil {
		return nil, nil, err
	}
	ln.Start(context.Background())
	return ln, tr, nil
}

func caseHandshakeRejection() error {
	ln, tr, err := newEchoListener()
	if err != nil {
		return err
	}
	defer ln.Stop()

	ln.OnConnected(func(*transport.Connection) *message.Error {
		return &message.Error{Code: "100", Message: "Go away!"}
	})

	_, err = tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err == nil {
		return errors.New("connect succeeded, want rejection")
	}

	var rej *transport.RejectedError
	if !errors.As(err, &rej) {
		return fmt.Errorf("connect error = %v, want *RejectedError", err)
	}
	if rej.Detail.Code != "100" || rej.Detail.Message != "Go away!" {
		return fmt.Errorf("rejection detail = %+v, want {100 Go away!}", rej.Detail)
	}
	return nil
}

func caseCleanDisconnect() error {
	ln, tr, err := newEchoListener()
	if err != nil {
		return err
	}
	defer ln.Stop()

	disconnected := make(chan *transport.Connection, 1)
	ln.OnDisconnected(func(c *transport.Connection, _ error) {
		disconnected <- c
	})

	client, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err != nil {
		return err
	}
	clientLocal := client.LocalEndPoint().String()
	client.Stop(context.Background())

	server := <-disconnected
	if server.RemoteEndPoint().String() != clientLocal {
		return fmt.Errorf("disconnected server.remote = %s, want %s", server.RemoteEndPoint(), clientLocal)
	}
	return nil
}

func caseRoundTrip() error {
	ln, tr, err := newEchoListener()
	if err != nil {
		return err
	}
	defer ln.Stop()

	client, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err != nil {
		return err
	}
	defer client.Stop(context.Background())

	slot, err := client.SendRequest(context.Background(), "echo", []byte("hello"))
	if err != nil {
		return err
	}
	resp := slot.Read()
	if resp.IsError() {
		return fmt.Errorf("response is an error: %+v", resp.AsError())
	}
	if string(resp.Payload()) != "hello" {
		return fmt.Errorf("response payload = %q, want %q", resp.Payload(), "hello")
	}
	return nil
}

func caseMethodNotFound() error {
	ln, tr, err := newEchoListener()
	if err != nil {
		return err
	}
	defer ln.Stop()

	client, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err != nil {
		return err
	}
	defer client.Stop(context.Background())

	slot, err := client.SendRequest(context.Background(), "nonexistent", nil)
	if err != nil {
		return err
	}
	resp := slot.Read()
	if !resp.IsError() || resp.AsError().Code != message.MethodNotFound {
		return fmt.Errorf("response = %+v, want MethodNotFound error", resp)
	}
	return nil
}

func caseApplicationError() error {
	ln, tr, err := newEchoListener()
	if err != nil {
		return err
	}
	defer ln.Stop()

	client, err := tr.Connect(context.Background(), ln.ListenEndpoint().String())
	if err != nil {
		return err
	}
	defer client.Stop(context.Background())

	slot, err := client.SendRequest(context.Background(), "fail", nil)
	if err != nil {
		return err
	}
	resp := slot.Read()
	if !resp.IsError() || resp.AsError().Code != "custom" {
		return fmt.Errorf("response = %+v, want application error with code \"custom\"", resp)
	}
	return nil
}
