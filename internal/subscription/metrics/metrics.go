// Package metrics exports the subscriber observations and cleanup outcomes
// as Prometheus counters.
package metrics

import (
	"errors"
	"maps"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder counts consumer observations and cleanup request outcomes.
type Recorder struct {
	mu sync.RWMutex

	events   map[string]uint64
	cleanups map[string]uint64

	eventsTotal  *prometheus.CounterVec
	cleanupTotal *prometheus.CounterVec

	registerer prometheus.Registerer
	registered bool
}

// Snapshot is a point-in-time copy of the recorded counts.
type Snapshot struct {
	Events   map[string]uint64 `json:"events"`
	Cleanups map[string]uint64 `json:"cleanups"`
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "querysub",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewRecorder creates a recorder that registers with registerer, or the
// default registerer when nil.
func NewRecorder(registerer prometheus.Registerer) *Recorder {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Recorder{
		events:       make(map[string]uint64),
		cleanups:     make(map[string]uint64),
		registerer:   registerer,
		eventsTotal:  newCounterVec("subscriber", "events_total", "Observations made while consuming subscription results", []string{"event"}),
		cleanupTotal: newCounterVec("cleanup", "requests_total", "Subscription cleanup requests sent to the query engine", []string{"dataset", "outcome"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (r *Recorder) Register() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered {
		return nil
	}
	for _, c := range []prometheus.Collector{r.eventsTotal, r.cleanupTotal} {
		if err := r.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	r.registered = true
	return nil
}

// Incr counts one observation called name.
func (r *Recorder) Incr(name string) {
	r.mu.Lock()
	r.events[name]++
	r.mu.Unlock()
	r.eventsTotal.WithLabelValues(name).Inc()
}

// RecordCleanup counts one cleanup request for dataset ending in outcome.
func (r *Recorder) RecordCleanup(dataset, outcome string) {
	r.mu.Lock()
	r.cleanups[outcome]++
	r.mu.Unlock()
	r.cleanupTotal.WithLabelValues(dataset, outcome).Inc()
}

// Count returns how often name was observed.
func (r *Recorder) Count(name string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.events[name]
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Events:   maps.Clone(r.events),
		Cleanups: maps.Clone(r.cleanups),
	}
}

// Reset clears all counts (useful for testing).
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[string]uint64)
	r.cleanups = make(map[string]uint64)
	r.eventsTotal.Reset()
	r.cleanupTotal.Reset()
}
