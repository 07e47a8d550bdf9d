// Package service defines the shape of a ServiceHost: the external
// collaborator a server-side connection consults to dispatch an inbound
// request to application code. The transport core only ever talks to this
// interface; it has no opinion on how methods are implemented.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/epoxyrpc/epoxy/pkg/message"
)

// Request is the unit of work handed to a HandlerFunc: the method name the
// peer requested plus its raw payload bytes.
type Request struct {
	Method  string
	Payload []byte
}

// Response is what a HandlerFunc returns: either a successful payload or an
// application-level Error, never both.
type Response struct {
	Payload []byte
	Err     *message.Error
}

// OK builds a successful Response.
func OK(payload []byte) Response {
	return Response{Payload: payload}
}

// Failed builds an application-error Response.
func Failed(err message.Error) Response {
	return Response{Err: &err}
}

// HandlerFunc handles one inbound request. A non-nil error return (as
// opposed to a Response.Err) is treated the same as a panic recovered by the
// caller: it becomes an ApplicationError response, never a connection
// failure.
type HandlerFunc func(ctx context.Context, req Request) (Response, error)

// Registry is a ServiceHost: a method-name-keyed table of handlers that a
// Listener consults to dispatch inbound requests. The zero value is not
// usable; construct one with NewRegistry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Add registers fn under method. It panics if method is already registered:
// like the wire protocol's other lifecycle misuses, registering a method
// twice is a programmer error caught at setup time, not a runtime condition.
func (r *Registry) Add(method string, fn HandlerFunc) {
	if method == "" {
		panic("service: method name must not be empty")
	}
	if fn == nil {
		panic("service: handler must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[method]; exists {
		panic(fmt.Sprintf("service: method %q already registered", method))
	}
	r.handlers[method] = fn
}

// IsRegistered reports whether method has a handler.
func (r *Registry) IsRegistered(method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[method]
	return ok
}

// Lookup returns the handler for method, if any.
func (r *Registry) Lookup(method string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[method]
	return fn, ok
}
