// Package store persists subscription records and resolves the record that
// owns an incoming result.
package store

import (
	"context"
	"errors"

	"github.com/drblury/querysub/internal/subscription/dataset"
)

// ErrNotFound is returned when no subscription matches an id.
var ErrNotFound = errors.New("subscription not found")

// Subscription is the persisted record of a standing query.
type Subscription struct {
	ID             int64
	SubscriptionID string
	// Type is the subscriber registry key of the handler owning results.
	Type      string
	Dataset   dataset.Dataset
	Entity    dataset.EntityKey
	ProjectID int64
}

// Resolver finds the subscription a result message belongs to. A miss is
// reported as ErrNotFound; any other error is an infrastructure failure.
type Resolver interface {
	FindSubscription(ctx context.Context, subscriptionID string) (Subscription, error)
}

// Store is a Resolver that can also manage records.
type Store interface {
	Resolver
	Create(ctx context.Context, sub Subscription) (Subscription, error)
	Delete(ctx context.Context, subscriptionID string) error
}
