// Package http provides a transport that receives results as HTTP POSTs,
// one path per topic, and publishes by POSTing to a peer.
package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/drblury/querysub/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	Register()
}

// Register registers the HTTP transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// TopicURL joins the publisher base URL and a topic.
func TopicURL(base, topic string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(topic, "/")
}

// Build creates a new HTTP transport. The subscriber server starts in the
// background once the router has subscribed.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	serverAddr := cfg.GetHTTPServerAddress()
	if serverAddr == "" {
		return transport.Transport{}, errors.New("http: server address is required")
	}
	publisherURL := cfg.GetHTTPPublisherURL()

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return http.DefaultMarshalMessageFunc(TopicURL(publisherURL, topic), msg)
			},
			Client: &nethttp.Client{Transport: otelhttp.NewTransport(nethttp.DefaultTransport)},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		serverAddr,
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	if s, ok := subscriber.(*http.Subscriber); ok {
		go func() {
			if err := s.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				logger.Error("HTTP subscriber server stopped", err, watermill.LogFields{"addr": serverAddr})
			}
		}()
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.HTTPCapabilities
}
