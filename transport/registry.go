package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

// ErrConsumerGroupRequired is returned by Build when the selected transport
// shares results between replicas through a named group and none is set.
var ErrConsumerGroupRequired = errors.New("consumer group is required")

// Entry is one registered transport.
type Entry struct {
	Name         string
	Builder      Builder
	Capabilities Capabilities
}

// checkConsumer reports what cfg is missing to read results through e.
func (e Entry) checkConsumer(cfg Config) error {
	if e.Capabilities.ConsumerGroups && strings.TrimSpace(cfg.GetKafkaConsumerGroup()) == "" {
		return ErrConsumerGroupRequired
	}
	return nil
}

// Registry maps pubsub_system names to transports. Names are case-insensitive.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// DefaultRegistry is the registry the broker packages add themselves to.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a transport without declared capabilities.
func (r *Registry) Register(name string, builder Builder) {
	r.RegisterWithCapabilities(name, builder, Capabilities{Name: normalizeName(name)})
}

func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	key := normalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = Entry{Name: key, Builder: builder, Capabilities: caps}
}

// Lookup returns the transport registered under name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalizeName(name)]
	return e, ok
}

// GetCapabilities returns the capabilities of name, or a zero value carrying
// only the name when it is unknown.
func (r *Registry) GetCapabilities(name string) Capabilities {
	if e, ok := r.Lookup(name); ok {
		return e.Capabilities
	}
	return Capabilities{Name: name}
}

// Build creates the transport selected by cfg's pubsub system after checking
// that cfg carries what the transport needs to consume results.
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	if cfg == nil {
		return Transport{}, fmt.Errorf("config is required")
	}

	e, ok := r.Lookup(cfg.GetPubSubSystem())
	if !ok {
		return Transport{}, fmt.Errorf("unknown transport: %q (registered: %v)", normalizeName(cfg.GetPubSubSystem()), r.Names())
	}
	if err := e.checkConsumer(cfg); err != nil {
		return Transport{}, fmt.Errorf("%s: %w", e.Name, err)
	}
	return e.Builder(ctx, cfg, logger)
}

// Names returns the registered transport names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Register adds a transport builder to the default registry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds a transport to the default registry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build creates a transport using the default registry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
