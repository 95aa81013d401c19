package runtime

import (
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/querysub/internal/runtime/errors"
	"github.com/drblury/querysub/internal/subscription/consumer"
)

// ResultsHandlerPrefix prefixes the router handler name for each results
// topic.
const ResultsHandlerPrefix = "query-subscription-results."

// MessageHandlerRegistration wires a raw Watermill handler that publishes
// nothing.
type MessageHandlerRegistration struct {
	Name       string
	Topic      string
	Handler    message.NoPublishHandlerFunc
	Subscriber message.Subscriber
}

// RegisterMessageHandler attaches the provided handler to the service router.
func RegisterMessageHandler(svc *Service, cfg MessageHandlerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	return svc.registerHandler(cfg)
}

// ResultsConsumerRegistration binds a consumer to results topics.
type ResultsConsumerRegistration struct {
	Consumer *consumer.Consumer
	// Topics defaults to the configured results topics.
	Topics     []string
	Subscriber message.Subscriber
}

// RegisterResultsConsumer registers one handler per results topic. Each
// handler feeds the raw message to the consumer with its source topic.
func RegisterResultsConsumer(svc *Service, cfg ResultsConsumerRegistration) error {
	if svc == nil {
		return errspkg.ErrServiceRequired
	}
	if cfg.Consumer == nil {
		return errspkg.ErrConsumerRequired
	}
	topics := cfg.Topics
	if len(topics) == 0 && svc.Conf != nil {
		topics = svc.Conf.ResultsTopics
	}
	if len(topics) == 0 {
		return errspkg.ErrTopicRequired
	}

	for _, topic := range topics {
		if err := svc.registerHandler(MessageHandlerRegistration{
			Name:       ResultsHandlerPrefix + topic,
			Topic:      topic,
			Handler:    cfg.Consumer.HandlerFunc(topic),
			Subscriber: cfg.Subscriber,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) registerHandler(cfg MessageHandlerRegistration) error {
	if cfg.Handler == nil {
		return errspkg.ErrHandlerRequired
	}
	if cfg.Topic == "" {
		return errspkg.ErrTopicRequired
	}
	if cfg.Name == "" {
		return errspkg.ErrHandlerNameRequired
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = s.subscriber
	}

	stats := &HandlerStats{}
	info := &HandlerInfo{Name: cfg.Name, Topic: cfg.Topic, Stats: stats}

	s.handlersMu.Lock()
	for _, existing := range s.handlers {
		if existing.Name == cfg.Name {
			s.handlersMu.Unlock()
			return errspkg.ErrHandlerExists
		}
	}
	s.handlers = append(s.handlers, info)
	s.handlersMu.Unlock()

	s.router.AddNoPublisherHandler(
		cfg.Name,
		cfg.Topic,
		cfg.Subscriber,
		wrapHandlerWithStats(cfg.Handler, stats, s.getErrorClassifier()),
	)
	return nil
}

// Handlers returns the registered handlers.
func (s *Service) Handlers() []*HandlerInfo {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return append([]*HandlerInfo(nil), s.handlers...)
}

func wrapHandlerWithStats(handler message.NoPublishHandlerFunc, stats *HandlerStats, classifier ErrorClassifier) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		stats.start()
		start := time.Now()
		err := handler(msg)
		stats.finish(time.Since(start), err, classifier)
		return err
	}
}
