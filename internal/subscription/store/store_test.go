package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/querysub/internal/subscription/dataset"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created, err := s.Create(ctx, Subscription{
		SubscriptionID: "1/abc",
		Type:           "metric_alert",
		Dataset:        dataset.Metrics,
		Entity:         dataset.EntityMetricsCounters,
		ProjectID:      7,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)

	found, err := s.FindSubscription(ctx, "1/abc")
	require.NoError(t, err)
	assert.Equal(t, created, found)

	_, err = s.Create(ctx, Subscription{SubscriptionID: "1/abc"})
	assert.Error(t, err)

	require.NoError(t, s.Delete(ctx, "1/abc"))
	_, err = s.FindSubscription(ctx, "1/abc")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "1/abc"), ErrNotFound)
	assert.Zero(t, s.Len())
}

func TestMemoryStoreSeed(t *testing.T) {
	s := NewMemoryStore(Subscription{SubscriptionID: "a"}, Subscription{SubscriptionID: "b", ID: 42})

	b, err := s.FindSubscription(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, int64(42), b.ID)
	assert.Equal(t, 2, s.Len())

	_, err = s.Create(context.Background(), Subscription{})
	assert.Error(t, err)
}

func TestTryNewMemoryStoreRejectsInvalidSeeds(t *testing.T) {
	_, err := TryNewMemoryStore(Subscription{SubscriptionID: "a"}, Subscription{SubscriptionID: " a "})
	assert.ErrorContains(t, err, "seed subscription 1")
	assert.ErrorContains(t, err, "already exists")

	_, err = TryNewMemoryStore(Subscription{SubscriptionID: "  "})
	assert.ErrorContains(t, err, "subscription id is required")

	assert.Panics(t, func() { NewMemoryStore(Subscription{}) })
}

func TestMemoryStoreTrimsSubscriptionIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(Subscription{SubscriptionID: "1/abc", Type: "metric_alert"})

	found, err := s.FindSubscription(ctx, " 1/abc ")
	require.NoError(t, err)
	assert.Equal(t, "1/abc", found.SubscriptionID)

	created, err := s.Create(ctx, Subscription{SubscriptionID: "\t2/def "})
	require.NoError(t, err)
	assert.Equal(t, "2/def", created.SubscriptionID)

	require.NoError(t, s.Delete(ctx, "2/def "))
	assert.Equal(t, 1, s.Len())
}

func TestSubscriptionModelMapping(t *testing.T) {
	sub := Subscription{
		ID:             3,
		SubscriptionID: " 0/xyz ",
		Type:           "metric_alert",
		Dataset:        dataset.Sessions,
		Entity:         dataset.EntitySessions,
		ProjectID:      9,
	}

	row := modelFromSubscription(sub)
	assert.Equal(t, "query_subscriptions", row.TableName())
	assert.Equal(t, "0/xyz", row.SubscriptionID)

	back := row.toSubscription()
	sub.SubscriptionID = "0/xyz"
	assert.Equal(t, sub, back)
}

func TestConnectRequiresDSN(t *testing.T) {
	_, err := Connect(context.Background(), " ")
	assert.ErrorContains(t, err, "dsn is required")
	assert.NoError(t, Close(nil))
}
