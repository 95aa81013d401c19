package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEntity(t *testing.T) {
	assert.Equal(t, EntityMetricsCounters, Metrics.DefaultEntity())
	assert.Equal(t, EntityEvents, Events.DefaultEntity())
	assert.Equal(t, EntityKey("custom"), Dataset("custom").DefaultEntity())
}

func TestForTopic(t *testing.T) {
	m := DefaultTopicMap()

	assert.Equal(t, Metrics, m.ForTopic(MetricsTopic))
	assert.Equal(t, Sessions, m.ForTopic(SessionsTopic))
	assert.Equal(t, Events, m.ForTopic("something-else"))

	var zero TopicMap
	assert.Equal(t, Events, zero.ForTopic(MetricsTopic))
}

func TestNewTopicMapOverrides(t *testing.T) {
	m, err := NewTopicMap(map[string]string{"generic-metrics-results": "metrics"})
	require.NoError(t, err)
	assert.Equal(t, Metrics, m.ForTopic("generic-metrics-results"))
	assert.Equal(t, Transactions, m.ForTopic(TransactionsTopic))

	_, err = NewTopicMap(map[string]string{"x": "nope"})
	assert.ErrorContains(t, err, `unknown dataset "nope"`)
}

func TestTopicsReturnsCopy(t *testing.T) {
	m := DefaultTopicMap()
	topics := m.Topics()
	topics[EventsTopic] = Metrics

	assert.Equal(t, Events, m.ForTopic(EventsTopic))
}
