package transport

import (
	"context"
	"net"

	"github.com/epoxyrpc/epoxy/pkg/service"
)

// Transport is a thin factory: it constructs Listeners bound to a given
// endpoint, opens client-side connections, and holds the process-wide
// LayerStack shared by everything it creates. Grounded on the teacher's
// DialOpt-configured Dial() entrypoint (pkg/websocket/dial.go), generalized
// from a single dial function into a reusable, option-configured factory.
type Transport struct {
	layers *LayerStack
}

// TransportBuilder accumulates TransportOptions before producing a Transport.
type TransportBuilder struct {
	opts []TransportOption
}

// NewTransportBuilder returns an empty TransportBuilder.
func NewTransportBuilder() *TransportBuilder {
	return &TransportBuilder{}
}

// With appends opt to the builder's option chain.
func (b *TransportBuilder) With(opt TransportOption) *TransportBuilder {
	b.opts = append(b.opts, opt)
	return b
}

// Build produces a Transport from the accumulated options.
func (b *TransportBuilder) Build() *Transport {
	t := &Transport{}
	for _, opt := range b.opts {
		opt(t)
	}
	return t
}

// Connect performs a TCP connect to addr, constructs a client-side
// Connection, and drives its handshake to completion before returning it.
func (t *Transport) Connect(ctx context.Context, addr string) (*Connection, error) {
	resolved, err := resolveAddr(addr)
	if err != nil {
		return nil, newErrorf(KindInvalidArgument, "%w", err)
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", resolved)
	if err != nil {
		return nil, newErrorf(KindTransportError, "failed to connect to %s: %w", resolved, err)
	}

	c := newConnection(RoleClient, nc, t.layers)
	go c.runWriter()

	if err := c.clientHandshake(ctx); err != nil {
		c.abort(ctx, err)
		return nil, err
	}

	go c.runReader(ctx)
	return c, nil
}

// MakeListener constructs and binds a Listener at addr, backed by services.
// The caller must call Listener.Start to begin accepting connections.
func (t *Transport) MakeListener(addr string, services *service.Registry) (*Listener, error) {
	return NewListener(addr, services, t.layers)
}

// Stop is a no-op for outstanding connections in this design (spec §4.6): a
// richer implementation would track and tear them down here.
func (t *Transport) Stop() {}
