package transport

import (
	"context"
	"time"

	"github.com/epoxyrpc/epoxy/internal/logger"
	"github.com/epoxyrpc/epoxy/pkg/metrics"
)

// Stop initiates an orderly shutdown: it sends a final ProtocolError
// framelet describing the reason, then closes the socket. It does not
// half-close the write side or drain inbound frames already in flight
// before closing.
func (c *Connection) Stop(ctx context.Context) {
	c.shutdown(ctx, "shutdown", "connection stopped by local side", nil)
}

// abort is the abrupt path: any I/O failure or protocol violation
// transitions straight to Disconnecting and runs the same cleanup, with err
// surfaced to the Disconnected event and any outstanding requests.
func (c *Connection) abort(ctx context.Context, err error) {
	c.shutdown(ctx, "", "", err)
}

// sendProtocolErrorAndAbort tells the peer why the connection is failing
// before tearing it down locally.
func (c *Connection) sendProtocolErrorAndAbort(ctx context.Context, err error) {
	c.shutdown(ctx, "protocol_error", err.Error(), err)
}

// shutdown is the single terminal-transition path for a connection. code/
// reason are only used when sending a ProtocolError framelet (an empty code
// means skip sending one, e.g. because the peer already sent theirs or the
// socket is presumed dead).
func (c *Connection) shutdown(ctx context.Context, code, reason string, cause error) {
	c.doneOnce.Do(func() {
		c.setState(StateDisconnecting)

		if code != "" {
			c.setState(StateSendProtocolError)
			if frame, ferr := protocolErrorFrame(code, reason); ferr == nil {
				_ = c.writeWireFrame(frame)
			}
		}

		_ = c.conn.Close()

		if c.respMap != nil {
			if n := c.respMap.OutstandingCount(); n > 0 {
				metrics.CountOutstanding(logger.FromContext(ctx), time.Now(), safeRemoteAddr(c), n)
			}
			c.respMap.Shutdown()
		}

		c.disconnectErr = cause
		c.setState(StateDisconnected)
		close(c.doneCh)

		if cause != nil {
			logger.Log(ctx, logger.Warning, "connection disconnected", "remote", safeRemoteAddr(c), "error", cause)
			metrics.CountProtocolError(logger.FromContext(ctx), time.Now(), safeRemoteAddr(c), cause)
		} else {
			logger.Log(ctx, logger.Information, "connection disconnected", "remote", safeRemoteAddr(c))
		}

		if c.onDisconnected != nil {
			c.onDisconnected(c, cause)
		}
	})
}

func safeRemoteAddr(c *Connection) string {
	if c.conn == nil {
		return "unknown"
	}
	if a := c.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}

// Err returns the error that caused the connection to disconnect, or nil
// for an orderly shutdown. Only meaningful after Done() is closed.
func (c *Connection) Err() error {
	return c.disconnectErr
}
