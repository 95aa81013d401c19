package http

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	watermillhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/querysub/transport"
	"github.com/drblury/querysub/transport/transporttest"
)

func stubFactories(t *testing.T) {
	t.Helper()
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() {
		PublisherFactory = originalPub
		SubscriberFactory = originalSub
	})
}

func TestBuild(t *testing.T) {
	stubFactories(t)
	pub := &transporttest.Publisher{}
	var marshal func(string, *message.Message) error

	PublisherFactory = func(cfg watermillhttp.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		require.NotNil(t, cfg.Client)
		marshal = func(topic string, msg *message.Message) error {
			req, err := cfg.MarshalMessageFunc(topic, msg)
			if err != nil {
				return err
			}
			assert.Equal(t, "http://peer:8080/events-subscription-results", req.URL.String())
			body, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			assert.Equal(t, `{"version":3}`, string(body))
			return nil
		}
		return pub, nil
	}
	SubscriberFactory = func(addr string, _ watermillhttp.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		assert.Equal(t, ":8081", addr)
		return transporttest.Subscriber{}, nil
	}

	tr, err := Build(context.Background(), &transporttest.Config{
		HTTPServerAddress: ":8081",
		HTTPPublisherURL:  "http://peer:8080/",
	}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Equal(t, pub, tr.Publisher)

	require.NoError(t, marshal("events-subscription-results", message.NewMessage("1", []byte(`{"version":3}`))))
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "server address is required")

	stubFactories(t)
	pub := &transporttest.Publisher{}
	PublisherFactory = func(watermillhttp.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
		return pub, nil
	}
	SubscriberFactory = func(string, watermillhttp.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
		return nil, errors.New("subscriber error")
	}
	_, err = Build(context.Background(), &transporttest.Config{HTTPServerAddress: ":0"}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "subscriber error")
	assert.True(t, pub.Closed)
}

func TestTopicURL(t *testing.T) {
	assert.Equal(t, "http://a/b", TopicURL("http://a/", "b"))
	assert.Equal(t, "http://a/b", TopicURL("http://a", "/b"))
}

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })
	transport.DefaultRegistry = transport.NewRegistry()

	Register()
	assert.Equal(t, "http", transport.GetCapabilities(TransportName).Name)
	assert.Equal(t, transport.HTTPCapabilities, Capabilities())
}
