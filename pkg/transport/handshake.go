package transport

import (
	"context"

	"github.com/epoxyrpc/epoxy/internal/logger"
	"github.com/epoxyrpc/epoxy/internal/wire"
	"github.com/epoxyrpc/epoxy/pkg/message"
)

// epoxyConfigPlaceholder is this implementation's EpoxyConfig payload. The
// spec treats its contents as an opaque, forward-compatible blob (§6); a
// single version byte is all this side advertises today.
var epoxyConfigPlaceholder = []byte{0x01}

// clientHandshake drives the client half of the handshake: send
// EpoxyConfig, then await either the server's EpoxyConfig or a
// ProtocolError rejecting the connection.
func (c *Connection) clientHandshake(ctx context.Context) error {
	c.setState(StateClientSendConfig)

	cfgFramelet, err := wire.NewFramelet(wire.EpoxyConfig, epoxyConfigPlaceholder)
	if err != nil {
		return newErrorf(KindProtocolError, "failed to build EpoxyConfig framelet: %w", err)
	}
	cfgFrame, err := wire.NewFrame(cfgFramelet)
	if err != nil {
		return newErrorf(KindProtocolError, "failed to build EpoxyConfig frame: %w", err)
	}
	if err := c.writeWireFrame(cfgFrame); err != nil {
		return newErrorf(KindTransportError, "failed to send EpoxyConfig: %w", err)
	}

	c.setState(StateClientAwaitConfig)
	f, err := wire.ReadFrame(c.rw.Reader)
	if err != nil {
		return newErrorf(KindProtocolError, "failed to read handshake response: %w", err)
	}

	if pe, ok := f.First(wire.ProtocolError); ok && f.Len() == 1 {
		h, _ := decodeHeaders(pe)
		return &Error{Kind: KindProtocolError, Err: &RejectedError{Detail: message.Error{Code: h.ErrorCode, Message: h.ErrorMsg}}}
	}
	if _, ok := f.First(wire.EpoxyConfig); !ok {
		return newErrorf(KindProtocolError, "expected EpoxyConfig or ProtocolError, got unrecognized frame shape")
	}

	c.setState(StateConnected)
	logger.Log(ctx, logger.Debug, "client handshake complete", "remote", c.RemoteEndPoint())
	return nil
}

// serverHandshake drives the server half of the handshake: await the
// client's EpoxyConfig, run Connected handlers, and either reject with a
// ProtocolError or reply with this side's own EpoxyConfig.
func (c *Connection) serverHandshake(ctx context.Context, onConnected func(*Connection) *message.Error) error {
	c.setState(StateServerAwaitConfig)

	f, err := wire.ReadFrame(c.rw.Reader)
	if err != nil {
		return newErrorf(KindProtocolError, "failed to read client EpoxyConfig: %w", err)
	}
	if _, ok := f.First(wire.EpoxyConfig); !ok {
		return newErrorf(KindProtocolError, "expected EpoxyConfig as first frame")
	}

	var rejection *message.Error
	if onConnected != nil {
		rejection = onConnected(c)
	}

	if rejection != nil {
		c.setState(StateSendProtocolError)
		errFrame, ferr := protocolErrorFrame(rejection.Code, rejection.Message)
		if ferr != nil {
			return newErrorf(KindProtocolError, "failed to build rejection frame: %w", ferr)
		}
		_ = c.writeWireFrame(errFrame)
		return newErrorf(KindProtocolError, "connection rejected by Connected handler: %s", rejection.Message)
	}

	c.setState(StateServerSendConfig)
	cfgFramelet, err := wire.NewFramelet(wire.EpoxyConfig, epoxyConfigPlaceholder)
	if err != nil {
		return newErrorf(KindProtocolError, "failed to build EpoxyConfig framelet: %w", err)
	}
	cfgFrame, err := wire.NewFrame(cfgFramelet)
	if err != nil {
		return newErrorf(KindProtocolError, "failed to build EpoxyConfig frame: %w", err)
	}
	if err := c.writeWireFrame(cfgFrame); err != nil {
		return newErrorf(KindTransportError, "failed to send EpoxyConfig: %w", err)
	}

	c.setState(StateConnected)
	logger.Log(ctx, logger.Debug, "server handshake complete", "remote", c.RemoteEndPoint())
	return nil
}
