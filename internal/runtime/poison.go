package runtime

import (
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PoisonMetrics counts results that were taken off the stream because they
// failed envelope or schema validation.
type PoisonMetrics struct {
	mu sync.RWMutex

	topics map[string]*PoisonTopicMetrics

	messagesTotal *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// PoisonTopicMetrics holds the counts for one source topic.
type PoisonTopicMetrics struct {
	Messages      uint64            `json:"messages"`
	ByCategory    map[string]uint64 `json:"by_category"`
	Published     uint64            `json:"published"`
	LastError     string            `json:"last_error,omitempty"`
	FirstSeenAt   time.Time         `json:"first_seen_at"`
	LastUpdatedAt time.Time         `json:"last_updated_at"`
}

// PoisonSnapshot is a point-in-time view of PoisonMetrics.
type PoisonSnapshot struct {
	TotalMessages uint64                         `json:"total_messages"`
	Topics        map[string]*PoisonTopicMetrics `json:"topics"`
	CollectedAt   time.Time                      `json:"collected_at"`
}

// NewPoisonMetrics creates a collector that registers with registerer, or
// the default registerer when nil.
func NewPoisonMetrics(registerer prometheus.Registerer) *PoisonMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PoisonMetrics{
		topics:     make(map[string]*PoisonTopicMetrics),
		registerer: registerer,
		messagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "querysub",
				Subsystem: "poison",
				Name:      "messages_total",
				Help:      "Subscription results removed from the stream because they could not be parsed",
			},
			[]string{"topic", "handler", "category"},
		),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *PoisonMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	if err := m.registerer.Register(m.messagesTotal); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
		if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
			m.messagesTotal = existing
		}
	}
	m.registered = true
	return nil
}

// Record counts one poisoned message. published reports whether it was
// forwarded to the poison topic.
func (m *PoisonMetrics) Record(topic, handler string, category ErrorCategory, published bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	tm, ok := m.topics[topic]
	if !ok {
		tm = &PoisonTopicMetrics{ByCategory: make(map[string]uint64), FirstSeenAt: now}
		m.topics[topic] = tm
	}
	tm.Messages++
	tm.ByCategory[string(category)]++
	if published {
		tm.Published++
	}
	if err != nil {
		tm.LastError = err.Error()
	}
	tm.LastUpdatedAt = now

	m.messagesTotal.WithLabelValues(topic, handler, string(category)).Inc()
}

// Snapshot returns a copy of the per-topic counts.
func (m *PoisonMetrics) Snapshot() PoisonSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := PoisonSnapshot{
		Topics:      make(map[string]*PoisonTopicMetrics, len(m.topics)),
		CollectedAt: time.Now(),
	}
	for topic, tm := range m.topics {
		cp := *tm
		cp.ByCategory = maps.Clone(tm.ByCategory)
		snap.Topics[topic] = &cp
		snap.TotalMessages += tm.Messages
	}
	return snap
}

// Topic returns the counts for one topic, or nil.
func (m *PoisonMetrics) Topic(topic string) *PoisonTopicMetrics {
	return m.Snapshot().Topics[topic]
}

// Reset clears all counts.
func (m *PoisonMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.topics = make(map[string]*PoisonTopicMetrics)
	m.messagesTotal.Reset()
}
