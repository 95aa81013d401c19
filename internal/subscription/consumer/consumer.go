// Package consumer turns query subscription result messages into handler
// calls.
//
// Each message is parsed and validated, its subscription is resolved, and
// the result is dispatched to the handler registered for the subscription
// type. A result for an unknown subscription triggers a delete request so
// the query engine stops producing it. A result whose subscription type has
// no handler in this process is dropped.
package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/querysub/internal/runtime/errors"
	"github.com/drblury/querysub/internal/runtime/logging"
	"github.com/drblury/querysub/internal/subscription/cleanup"
	"github.com/drblury/querysub/internal/subscription/dataset"
	"github.com/drblury/querysub/internal/subscription/registry"
	"github.com/drblury/querysub/internal/subscription/schema"
	"github.com/drblury/querysub/internal/subscription/store"
)

// Observation names.
const (
	ObsSubscriptionDoesntExist = "query_subscriber.subscription_doesnt_exist"
	ObsTypeNotRegistered       = "query_subscriber.subscription_type_not_registered"
	ObsDispatched              = "query_subscriber.dispatched"
)

// Message is one raw result message as delivered by the broker.
type Message struct {
	Topic string
	Value []byte
}

// Observer counts notable outcomes.
type Observer interface {
	Incr(name string)
}

// NopObserver discards observations.
type NopObserver struct{}

func (NopObserver) Incr(string) {}

// Cleaner removes a subscription from the query engine.
type Cleaner interface {
	Delete(ctx context.Context, ds dataset.Dataset, entity dataset.EntityKey, subscriptionID string) (cleanup.Acknowledgement, error)
}

// Outcome is the terminal state of a handled message.
type Outcome string

const (
	OutcomeDispatched       Outcome = "dispatched"
	OutcomeDropped          Outcome = "dropped"
	OutcomeCleanupTriggered Outcome = "cleanup_triggered"
)

type Dependencies struct {
	Registry *registry.Registry
	Resolver store.Resolver
	Cleaner  Cleaner
	Observer Observer
	// Topics maps a results topic to the dataset used for cleanup requests.
	// The zero value uses the default topic map.
	Topics dataset.TopicMap
	Logger logging.ServiceLogger
}

// Consumer is safe for concurrent use once constructed. It keeps no
// per-message state.
type Consumer struct {
	registry *registry.Registry
	resolver store.Resolver
	cleaner  Cleaner
	observer Observer
	topics   dataset.TopicMap
	log      logging.ServiceLogger
}

func New(deps Dependencies) (*Consumer, error) {
	switch {
	case deps.Registry == nil:
		return nil, errspkg.ErrRegistryRequired
	case deps.Resolver == nil:
		return nil, errspkg.ErrResolverRequired
	case deps.Cleaner == nil:
		return nil, errspkg.ErrCleanerRequired
	}

	c := &Consumer{
		registry: deps.Registry,
		resolver: deps.Resolver,
		cleaner:  deps.Cleaner,
		observer: deps.Observer,
		topics:   deps.Topics,
		log:      deps.Logger,
	}
	if c.observer == nil {
		c.observer = NopObserver{}
	}
	if len(c.topics.Topics()) == 0 {
		c.topics = dataset.DefaultTopicMap()
	}
	if c.log == nil {
		c.log = logging.Nop()
	}
	return c, nil
}

// ParseMessageValue validates the raw envelope bytes of a message.
func ParseMessageValue(raw []byte) (schema.Payload, error) {
	return schema.Parse(raw)
}

// HandleMessage processes one message. Schema errors, resolver failures and
// handler errors are returned; a missing subscription or an unregistered
// subscription type is not an error.
func (c *Consumer) HandleMessage(ctx context.Context, msg Message) error {
	_, err := c.Handle(ctx, msg)
	return err
}

// Handle is HandleMessage that also reports how the message ended.
func (c *Consumer) Handle(ctx context.Context, msg Message) (Outcome, error) {
	payload, err := ParseMessageValue(msg.Value)
	if err != nil {
		return "", err
	}

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("subscription.id", payload.SubscriptionID),
		attribute.Int("subscription.payload_version", payload.Version),
	)

	sub, err := c.resolver.FindSubscription(ctx, payload.SubscriptionID)
	if errors.Is(err, store.ErrNotFound) {
		c.observer.Incr(ObsSubscriptionDoesntExist)
		c.cleanup(ctx, msg.Topic, payload)
		return OutcomeCleanupTriggered, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve subscription %s: %w", payload.SubscriptionID, err)
	}

	handler, ok := c.registry.Lookup(sub.Type)
	if !ok {
		c.observer.Incr(ObsTypeNotRegistered)
		c.log.Debug("No handler registered for subscription type", logging.LogFields{
			"subscription_id": payload.SubscriptionID,
			"type":            sub.Type,
		})
		return OutcomeDropped, nil
	}

	dispatch, err := payload.Normalize()
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("subscription.type", sub.Type))

	if err := handler.Handle(ctx, dispatch, sub); err != nil {
		return "", err
	}
	c.observer.Incr(ObsDispatched)
	return OutcomeDispatched, nil
}

func (c *Consumer) cleanup(ctx context.Context, topic string, payload schema.Payload) {
	ds := c.topics.ForTopic(topic)
	entity := dataset.EntityKey(payload.Entity)
	if entity == "" {
		entity = ds.DefaultEntity()
	}

	fields := logging.LogFields{
		"subscription_id": payload.SubscriptionID,
		"topic":           topic,
		"dataset":         string(ds),
		"entity":          string(entity),
	}
	ack, err := c.cleaner.Delete(ctx, ds, entity, payload.SubscriptionID)
	if err != nil {
		c.log.Error("Failed to delete unknown subscription", err, fields)
		return
	}
	if !ack.OK() {
		fields["status"] = ack.StatusCode
		c.log.Info("Query engine did not delete unknown subscription", fields)
	}
}

// HandlerFunc adapts the consumer to a Watermill no-publish handler for
// messages read from topic.
func (c *Consumer) HandlerFunc(topic string) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		return c.HandleMessage(msg.Context(), Message{Topic: topic, Value: msg.Payload})
	}
}
