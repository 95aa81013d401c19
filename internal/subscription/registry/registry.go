// Package registry maps subscription types to the handlers that process
// their results.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/drblury/querysub/internal/subscription/schema"
	"github.com/drblury/querysub/internal/subscription/store"
)

// ErrAlreadyRegistered is wrapped by the error Register returns for a key
// that already has a handler.
var ErrAlreadyRegistered = errors.New("handler already registered")

// Handler processes one dispatched result.
type Handler interface {
	Handle(ctx context.Context, payload schema.DispatchPayload, sub store.Subscription) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload schema.DispatchPayload, sub store.Subscription) error

func (f HandlerFunc) Handle(ctx context.Context, payload schema.DispatchPayload, sub store.Subscription) error {
	return f(ctx, payload, sub)
}

type alreadyRegisteredError struct {
	key string
}

func (e *alreadyRegisteredError) Error() string {
	return "Handler already registered for " + e.key
}

func (e *alreadyRegisteredError) Unwrap() error { return ErrAlreadyRegistered }

// Registry is safe for concurrent use. Lookups never block.
type Registry struct {
	handlers *xsync.Map[string, Handler]
}

func New() *Registry {
	return &Registry{handlers: xsync.NewMap[string, Handler]()}
}

// Register binds key to h. A key can only be bound once.
func (r *Registry) Register(key string, h Handler) error {
	if key == "" {
		return errors.New("registry: key is required")
	}
	if h == nil {
		return fmt.Errorf("registry: handler for %s is nil", key)
	}
	if _, loaded := r.handlers.LoadOrStore(key, h); loaded {
		return &alreadyRegisteredError{key: key}
	}
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(key string, h Handler) {
	if err := r.Register(key, h); err != nil {
		panic(err)
	}
}

func (r *Registry) Lookup(key string) (Handler, bool) {
	return r.handlers.Load(key)
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, r.handlers.Size())
	r.handlers.Range(func(k string, _ Handler) bool {
		keys = append(keys, k)
		return true
	})
	slices.Sort(keys)
	return keys
}

func (r *Registry) Len() int {
	return r.handlers.Size()
}

// Snapshot returns a copy of the registry contents. Later registrations do
// not show up in it.
func (r *Registry) Snapshot() map[string]Handler {
	out := make(map[string]Handler, r.handlers.Size())
	r.handlers.Range(func(k string, h Handler) bool {
		out[k] = h
		return true
	})
	return out
}

// Reset removes every registration.
func (r *Registry) Reset() {
	r.handlers.Clear()
}

// Default is the process-wide registry used by RegisterSubscriber.
var Default = New()

// RegisterSubscriber returns a function that registers its argument under
// key in Default and returns it unchanged, for init-time wiring:
//
//	var alerts = registry.RegisterSubscriber("metric_alert")(alertHandler{})
func RegisterSubscriber(key string) func(Handler) Handler {
	return func(h Handler) Handler {
		Default.MustRegister(key, h)
		return h
	}
}
