package transport

import (
	"context"
	"time"

	"github.com/epoxyrpc/epoxy/internal/logger"
	"github.com/epoxyrpc/epoxy/internal/respmap"
	"github.com/epoxyrpc/epoxy/internal/wire"
	"github.com/epoxyrpc/epoxy/pkg/message"
	"github.com/epoxyrpc/epoxy/pkg/metrics"
	"github.com/epoxyrpc/epoxy/pkg/service"
)

// SendRequest allocates a fresh request id, runs the outgoing layer-stack
// transform, writes the request frame, and returns a handle the caller
// awaits for the response. It is only valid on a client-role connection.
func (c *Connection) SendRequest(ctx context.Context, method string, payload []byte) (*respmap.ResponseSlot, error) {
	if c.respMap == nil {
		return nil, newErrorf(KindInvalidOperation, "SendRequest called on a non-client connection")
	}

	id := c.nextRequestID.Add(1)
	layerData, outPayload, err := c.layers.outgoing(ctx, payload)
	if err != nil {
		return nil, newErrorf(KindInvalidArgument, "layer stack rejected outgoing request: %w", err)
	}

	slot, err := c.respMap.Add(id)
	if err != nil {
		return nil, newErrorf(KindInvalidOperation, "%w", err)
	}

	frame, err := serviceFrame(wireHeaders{RequestID: id, Method: method, Type: payloadRequest}, layerData, outPayload)
	if err != nil {
		return nil, newErrorf(KindInvalidArgument, "%w", err)
	}

	if err := c.writeWireFrame(frame); err != nil {
		c.respMap.Complete(id, message.FromError(message.Error{
			Code:    message.TransportError,
			Message: err.Error(),
		}))
		return nil, newErrorf(KindTransportError, "failed to send request: %w", err)
	}

	return slot, nil
}

// SendEvent writes a fire-and-forget event frame; it does not allocate a
// request id or await any response.
func (c *Connection) SendEvent(ctx context.Context, method string, payload []byte) error {
	layerData, outPayload, err := c.layers.outgoing(ctx, payload)
	if err != nil {
		return newErrorf(KindInvalidArgument, "layer stack rejected outgoing event: %w", err)
	}

	frame, err := serviceFrame(wireHeaders{Method: method, Type: payloadEvent}, layerData, outPayload)
	if err != nil {
		return newErrorf(KindInvalidArgument, "%w", err)
	}
	if err := c.writeWireFrame(frame); err != nil {
		return newErrorf(KindTransportError, "failed to send event: %w", err)
	}
	return nil
}

// runReader is the connection's single reader task: it pumps frames off the
// socket until one fails to parse or the connection is told to stop, then
// hands off to shutdown.
func (c *Connection) runReader(ctx context.Context) {
	for {
		f, err := wire.ReadFrame(c.rw.Reader)
		if err != nil {
			c.abort(ctx, newErrorf(KindProtocolError, "%w", err))
			return
		}

		cf, err := classifyFrame(f)
		if err != nil {
			c.sendProtocolErrorAndAbort(ctx, err)
			return
		}

		if cf.isProtocolError {
			c.abort(ctx, newErrorf(KindProtocolError, "peer signaled protocol failure: %s (%s)", cf.protocolErr.ErrorMsg, cf.protocolErr.ErrorCode))
			return
		}

		switch cf.headers.Type {
		case payloadResponse:
			c.dispatchResponse(ctx, cf)
		case payloadRequest:
			c.dispatchRequest(ctx, cf)
		case payloadEvent:
			c.dispatchEvent(ctx, cf)
		default:
			c.sendProtocolErrorAndAbort(ctx, newErrorf(KindProtocolError, "unrecognized payload_type %d", cf.headers.Type))
			return
		}
	}
}

// dispatchResponse completes the response map entry for the inbound
// response; late or unknown ids are discarded per spec §4.3.
func (c *Connection) dispatchResponse(_ context.Context, cf classifiedFrame) {
	if c.respMap == nil {
		return
	}
	var msg message.Message
	if cf.headers.ErrorCode != "" {
		msg = message.FromError(message.Error{Code: cf.headers.ErrorCode, Message: cf.headers.ErrorMsg})
	} else {
		payload, err := c.layers.incoming(context.Background(), cf.layerData, cf.payload)
		if err != nil {
			msg = message.FromError(message.Error{Code: message.ProtocolError, Message: err.Error()})
		} else {
			msg = message.FromPayload(payload)
		}
	}
	c.respMap.Complete(cf.headers.RequestID, msg)
}

// dispatchRequest locates the method in the ServiceHost and invokes its
// handler asynchronously, writing the correlated response frame once it
// resolves.
func (c *Connection) dispatchRequest(ctx context.Context, cf classifiedFrame) {
	if c.services == nil {
		c.logf(logger.Warning, "received request on a connection with no ServiceHost", "method", cf.headers.Method)
		return
	}

	id := cf.headers.RequestID
	method := cf.headers.Method

	handler, ok := c.services.Lookup(method)
	if !ok {
		c.replyError(method, id, message.Error{Code: message.MethodNotFound, Message: "no such method: " + method})
		return
	}

	payload, err := c.layers.incoming(ctx, cf.layerData, cf.payload)
	if err != nil {
		c.replyError(method, id, message.Error{Code: message.ProtocolError, Message: err.Error()})
		return
	}

	go func() {
		resp := c.invokeHandler(ctx, handler, service.Request{Method: method, Payload: payload})
		if resp.Err != nil {
			c.replyError(method, id, *resp.Err)
			return
		}
		c.replyPayload(method, id, resp.Payload)
	}()
}

// invokeHandler runs fn, converting a panic or a returned Go error into an
// ApplicationError response rather than letting it escape and kill the
// connection (spec §7: "handler exceptions are caught").
func (c *Connection) invokeHandler(ctx context.Context, fn service.HandlerFunc, req service.Request) (resp service.Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = service.Failed(message.Error{Code: message.ApplicationErrorCode, Message: panicMessage(r)})
		}
	}()

	r, err := fn(ctx, req)
	if err != nil {
		return service.Failed(message.Error{Code: message.ApplicationErrorCode, Message: err.Error()})
	}
	return r
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "handler panicked"
}

func (c *Connection) replyPayload(method string, id uint64, payload []byte) {
	frame, err := serviceFrame(wireHeaders{RequestID: id, Type: payloadResponse}, nil, payload)
	if err != nil {
		c.logf(logger.Error, "failed to build response frame", "error", err)
		return
	}
	if err := c.writeWireFrame(frame); err != nil {
		c.logf(logger.Warning, "failed to write response frame", "error", err)
	}
	metrics.CountRequest(logger.FromContext(c.logCtx()), time.Now(), method, "")
}

func (c *Connection) replyError(method string, id uint64, e message.Error) {
	h := wireHeaders{RequestID: id, Type: payloadResponse, ErrorCode: e.Code, ErrorMsg: e.Message}
	frame, err := serviceFrame(h, nil, nil)
	if err != nil {
		c.logf(logger.Error, "failed to build error response frame", "error", err)
		return
	}
	if err := c.writeWireFrame(frame); err != nil {
		c.logf(logger.Warning, "failed to write error response frame", "error", err)
	}
	metrics.CountRequest(logger.FromContext(c.logCtx()), time.Now(), method, e.Code)
}

// dispatchEvent delivers a fire-and-forget event to the ServiceHost, if one
// is registered for the method; events never produce a response frame.
func (c *Connection) dispatchEvent(ctx context.Context, cf classifiedFrame) {
	if c.services == nil {
		return
	}
	handler, ok := c.services.Lookup(cf.headers.Method)
	if !ok {
		return
	}
	payload, err := c.layers.incoming(ctx, cf.layerData, cf.payload)
	if err != nil {
		c.logf(logger.Warning, "layer stack rejected incoming event", "method", cf.headers.Method, "error", err)
		return
	}
	go c.invokeHandler(ctx, handler, service.Request{Method: cf.headers.Method, Payload: payload})
}
