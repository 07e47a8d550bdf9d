package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/lithammer/shortuuid/v4"

	"github.com/epoxyrpc/epoxy/internal/logger"
	"github.com/epoxyrpc/epoxy/pkg/message"
	"github.com/epoxyrpc/epoxy/pkg/service"
)

// Listener owns a bound TCP acceptor, a ServiceHost, and the set of live
// server-side connections it has accepted. Grounded on the teacher's
// connection-hub shape (coregx-stream/websocket/hub.go: a mutex-guarded
// client set plus register/unregister) generalized from an in-process hub
// to a real TCP accept loop, and on the webhook server's bind-log-serve
// shape (pkg/http/webhooks/server.go's Run()).
type Listener struct {
	id       string // short, log-friendly identifier
	services *service.Registry
	layers   *LayerStack

	ln net.Listener

	mu        sync.Mutex
	conns     map[*Connection]struct{}
	endpoint  net.Addr
	stopped   bool
	acceptErr error

	events  eventHooks
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewListener builds a Listener bound to addr (host[:port], port defaults
// to 25188) backed by services. The socket is bound here; connections are
// not accepted until Start.
func NewListener(addr string, services *service.Registry, layers *LayerStack) (*Listener, error) {
	resolved, err := resolveAddr(addr)
	if err != nil {
		return nil, newErrorf(KindInvalidArgument, "%w", err)
	}
	ln, err := net.Listen("tcp", resolved)
	if err != nil {
		return nil, newErrorf(KindTransportError, "failed to bind listener: %w", err)
	}
	return &Listener{
		id:       shortuuid.New(),
		services: services,
		layers:   layers,
		ln:       ln,
		conns:    make(map[*Connection]struct{}),
		endpoint: ln.Addr(),
	}, nil
}

// ID returns a short, process-unique identifier for this listener, handy
// for correlating log lines across its lifetime.
func (l *Listener) ID() string {
	return l.id
}

// OnConnected registers a handler run after a new connection's handshake
// completes, before service dispatch begins.
func (l *Listener) OnConnected(fn ConnectedFunc) {
	l.events.addConnected(fn)
}

// OnDisconnected registers a handler run exactly once per connection, after
// it reaches a terminal state.
func (l *Listener) OnDisconnected(fn DisconnectedFunc) {
	l.events.addDisconnected(fn)
}

// ListenEndpoint reports the concrete bound address, including the
// OS-assigned port when the listener was created with port 0.
func (l *Listener) ListenEndpoint() net.Addr {
	return l.endpoint
}

// IsRegistered reports whether method has a handler in this listener's
// ServiceHost.
func (l *Listener) IsRegistered(method string) bool {
	return l.services.IsRegistered(method)
}

// AddService registers fn under method in this listener's ServiceHost.
func (l *Listener) AddService(method string, fn service.HandlerFunc) {
	l.services.Add(method, fn)
}

// Start spawns the accept loop. It is safe to call at most once.
func (l *Listener) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	go l.acceptLoop(ctx)
}

// Stop signals cancellation, stops accepting, and awaits the accept task.
// Open connections are not forcibly closed (spec §4.4): callers orchestrate
// per-connection shutdown themselves.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
	}
	_ = l.ln.Close()
	l.wg.Wait()
}

func (l *Listener) acceptLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.isStopped() {
				logger.Log(ctx, logger.Debug, "listener accept loop exiting: acceptor disposed", "listener", l.id)
				return
			}
			logger.Log(ctx, logger.Fatal, "listener accept failed", "listener", l.id, "error", err)
			l.mu.Lock()
			l.acceptErr = err
			l.mu.Unlock()
			_ = l.ln.Close()
			return
		}

		c := newConnection(RoleServer, conn, l.layers)
		c.services = l.services
		c.onDisconnected = l.onConnDisconnected

		l.addConn(c)
		go l.driveConnection(ctx, c)
	}
}

func (l *Listener) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

func (l *Listener) addConn(c *Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conns[c] = struct{}{}
}

func (l *Listener) removeConn(c *Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, c)
}

func (l *Listener) onConnDisconnected(c *Connection, err error) {
	l.removeConn(c)
	l.events.fireDisconnected(c, err)
}

// driveConnection runs a freshly accepted connection's startup: spawn its
// writer, perform the handshake (rejecting it via the Connected fold if any
// handler asks to), and then pump its reader until it terminates.
func (l *Listener) driveConnection(ctx context.Context, c *Connection) {
	go c.runWriter()

	onConnected := func(conn *Connection) *message.Error {
		return l.events.fireConnected(conn)
	}
	if err := c.serverHandshake(ctx, onConnected); err != nil {
		c.abort(ctx, err)
		return
	}

	c.runReader(ctx)
}

func resolveAddr(addr string) (string, error) {
	if addr == "" {
		return defaultAddr, nil
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		if isMissingPortErr(err) {
			return net.JoinHostPort(addr, defaultPort), nil
		}
		return "", errors.New("invalid address: " + addr)
	}
	if port == "" {
		port = defaultPort
	}
	return net.JoinHostPort(host, port), nil
}

func isMissingPortErr(err error) bool {
	var addrErr *net.AddrError
	return errors.As(err, &addrErr) && addrErr.Err == "missing port in address"
}

const (
	defaultPort = "25188"
	defaultAddr = ":25188"
)
