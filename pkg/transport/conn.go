// Package transport implements the Epoxy connection state machine, the
// listener that accepts server-side connections, and the thin transport
// factory that ties them together.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"sync"
	"sync/atomic"

	"github.com/lithammer/shortuuid/v4"

	"github.com/epoxyrpc/epoxy/internal/logger"
	"github.com/epoxyrpc/epoxy/internal/respmap"
	"github.com/epoxyrpc/epoxy/internal/wire"
	"github.com/epoxyrpc/epoxy/pkg/service"
)

// Role distinguishes which side of a connection this process is playing.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// State is a position in the connection state machine (spec §4.5).
type State int

const (
	StateCreated State = iota
	StateClientSendConfig
	StateServerAwaitConfig
	StateClientAwaitConfig
	StateServerSendConfig
	StateConnected
	StateSendProtocolError
	StateDisconnecting
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateClientSendConfig:
		return "ClientSendConfig"
	case StateServerAwaitConfig:
		return "ServerAwaitConfig"
	case StateClientAwaitConfig:
		return "ClientAwaitConfig"
	case StateServerSendConfig:
		return "ServerSendConfig"
	case StateConnected:
		return "Connected"
	case StateSendProtocolError:
		return "SendProtocolError"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// writeJob is one outbound frame, paired with a channel that receives the
// single write result. Grounded on the teacher's internalMessage/err-channel
// pairing used to serialize concurrent writers onto one socket.
type writeJob struct {
	frame []byte
	done  chan<- error
}

// Connection is one end of an Epoxy connection: either the client side
// (holding a response map to correlate outbound requests) or the server
// side (holding a ServiceHost to dispatch inbound requests).
type Connection struct {
	role Role
	id   string // short, log-friendly identifier; not part of the wire protocol
	conn net.Conn
	rw   *bufio.ReadWriter

	respMap  *respmap.Map      // non-nil only for RoleClient
	services *service.Registry // non-nil only for RoleServer
	layers   *LayerStack

	nextRequestID atomic.Uint64
	writeCh       chan writeJob

	stateMu sync.Mutex
	state   State

	doneCh        chan struct{}
	doneOnce      sync.Once
	disconnectErr error

	onDisconnected func(*Connection, error)
}

// LocalEndPoint returns the connection's local network address.
func (c *Connection) LocalEndPoint() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteEndPoint returns the connection's remote network address.
func (c *Connection) RemoteEndPoint() net.Addr {
	return c.conn.RemoteAddr()
}

// Role reports whether this is the client or server side of the connection.
func (c *Connection) Role() Role {
	return c.role
}

// ID returns a short, process-unique identifier for this connection, handy
// for correlating log lines and metrics records across its lifetime.
func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Done returns a channel closed once the connection reaches StateDisconnected.
func (c *Connection) Done() <-chan struct{} {
	return c.doneCh
}

func newConnection(role Role, conn net.Conn, layers *LayerStack) *Connection {
	c := &Connection{
		role:    role,
		id:      shortuuid.New(),
		conn:    conn,
		rw:      bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		layers:  layers,
		writeCh: make(chan writeJob),
		doneCh:  make(chan struct{}),
		state:   StateCreated,
	}
	if role == RoleClient {
		c.respMap = respmap.New()
	}
	return c
}

// runWriter serializes all outbound frames for this connection onto the
// single underlying socket. It is the connection's only writer goroutine,
// grounded on the teacher's writeMessages loop; it exits once the
// connection is done rather than on channel close, so a concurrent
// writeFrame can never send on a closed channel.
func (c *Connection) runWriter() {
	for {
		select {
		case job := <-c.writeCh:
			_, err := c.rw.Write(job.frame)
			if err == nil {
				err = c.rw.Flush()
			}
			job.done <- err
			close(job.done)
		case <-c.doneCh:
			return
		}
	}
}

// writeFrame hands bytes to the writer goroutine and waits for the result,
// failing fast with ErrConnectionShutDown if the connection is already done.
func (c *Connection) writeFrame(b []byte) error {
	done := make(chan error, 1)
	select {
	case c.writeCh <- writeJob{frame: b, done: done}:
	case <-c.doneCh:
		return ErrConnectionShutDown
	}

	select {
	case err := <-done:
		return err
	case <-c.doneCh:
		return ErrConnectionShutDown
	}
}

// writeWireFrame serializes f and hands it to the writer goroutine.
func (c *Connection) writeWireFrame(f wire.Frame) error {
	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, f); err != nil {
		return newErrorf(KindInvalidOperation, "failed to serialize frame: %w", err)
	}
	return c.writeFrame(buf.Bytes())
}

func (c *Connection) logCtx() context.Context {
	return context.Background()
}

func (c *Connection) logf(lvl logger.Level, msg string, fields ...any) {
	logger.Log(c.logCtx(), lvl, msg, append([]any{"conn", c.id}, fields...)...)
}
