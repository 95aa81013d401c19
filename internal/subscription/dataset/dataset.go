// Package dataset holds the naming conventions shared by the results topics,
// the query engine and the subscription records.
package dataset

import (
	"fmt"
	"maps"
)

// Dataset names a query engine dataset.
type Dataset string

const (
	Events       Dataset = "events"
	Transactions Dataset = "transactions"
	Sessions     Dataset = "sessions"
	Metrics      Dataset = "metrics"
)

// EntityKey names a query engine entity.
type EntityKey string

const (
	EntityEvents          EntityKey = "events"
	EntityTransactions    EntityKey = "transactions"
	EntitySessions        EntityKey = "sessions"
	EntityMetricsCounters EntityKey = "metrics_counters"
	EntityMetricsSets     EntityKey = "metrics_sets"
)

var defaultEntities = map[Dataset]EntityKey{
	Events:       EntityEvents,
	Transactions: EntityTransactions,
	Sessions:     EntitySessions,
	Metrics:      EntityMetricsCounters,
}

// All returns every known dataset.
func All() []Dataset {
	return []Dataset{Events, Transactions, Sessions, Metrics}
}

// Parse returns the Dataset named s.
func Parse(s string) (Dataset, error) {
	d := Dataset(s)
	if _, ok := defaultEntities[d]; !ok {
		return "", fmt.Errorf("unknown dataset %q", s)
	}
	return d, nil
}

// DefaultEntity returns the entity queried when a payload does not name one.
func (d Dataset) DefaultEntity() EntityKey {
	if e, ok := defaultEntities[d]; ok {
		return e
	}
	return EntityKey(d)
}

func (d Dataset) String() string { return string(d) }

func (e EntityKey) String() string { return string(e) }

// Default results topic per dataset.
const (
	EventsTopic       = "events-subscription-results"
	TransactionsTopic = "transactions-subscription-results"
	SessionsTopic     = "sessions-subscription-results"
	MetricsTopic      = "metrics-subscription-results"
)

// TopicMap resolves the dataset a results topic belongs to.
type TopicMap struct {
	topics   map[string]Dataset
	fallback Dataset
}

// DefaultTopicMap maps the standard results topics.
func DefaultTopicMap() TopicMap {
	return TopicMap{
		topics: map[string]Dataset{
			EventsTopic:       Events,
			TransactionsTopic: Transactions,
			SessionsTopic:     Sessions,
			MetricsTopic:      Metrics,
		},
		fallback: Events,
	}
}

// NewTopicMap layers overrides (topic to dataset name) over the defaults.
func NewTopicMap(overrides map[string]string) (TopicMap, error) {
	m := DefaultTopicMap()
	for topic, name := range overrides {
		d, err := Parse(name)
		if err != nil {
			return TopicMap{}, fmt.Errorf("topic %q: %w", topic, err)
		}
		m.topics[topic] = d
	}
	return m, nil
}

// ForTopic returns the dataset of topic, falling back to events.
func (m TopicMap) ForTopic(topic string) Dataset {
	if d, ok := m.topics[topic]; ok {
		return d
	}
	if m.fallback == "" {
		return Events
	}
	return m.fallback
}

// Topics returns a copy of the topic mapping.
func (m TopicMap) Topics() map[string]Dataset {
	return maps.Clone(m.topics)
}
