package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/querysub/transport"
	"github.com/drblury/querysub/transport/transporttest"
)

func stubFactories(t *testing.T,
	pub func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error),
	sub func(nats.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error),
) {
	t.Helper()
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})
	PublisherFactory = pub
	SubscriberFactory = sub
}

func TestBuild(t *testing.T) {
	pub := &transporttest.Publisher{}
	stubFactories(t,
		func(cfg nats.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
			assert.Equal(t, "nats://localhost:4222", cfg.URL)
			assert.True(t, cfg.JetStream.Disabled)
			assert.NotEmpty(t, cfg.NatsOptions)
			return pub, nil
		},
		func(cfg nats.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
			assert.Equal(t, "query-subscription-consumer", cfg.QueueGroupPrefix)
			return transporttest.Subscriber{}, nil
		},
	)

	tr, err := Build(context.Background(), &transporttest.Config{
		NATSURL:            "nats://localhost:4222",
		KafkaConsumerGroup: "query-subscription-consumer",
	}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, pub, tr.Publisher)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "URL is required")

	pub := &transporttest.Publisher{}
	stubFactories(t,
		func(nats.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) { return pub, nil },
		func(nats.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, errors.New("subscriber error")
		},
	)
	_, err = Build(context.Background(), &transporttest.Config{NATSURL: "nats://x"}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "subscriber error")
	assert.True(t, pub.Closed)
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()

	Register()
	assert.Equal(t, transport.NATSCapabilities, transport.GetCapabilities(TransportName))
	assert.Equal(t, transport.NATSCapabilities, Capabilities())
}
