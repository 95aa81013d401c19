package runtime

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/querysub/internal/runtime/logging"
)

// MessageContext describes one handler invocation to hooks.
type MessageContext struct {
	HandlerName   string
	Topic         string
	MessageUUID   string
	CorrelationID string
	Context       context.Context
	StartedAt     time.Time
	// Duration is set for OnDone and OnError.
	Duration time.Duration
}

// MessageHooks are optional callbacks around each handled result message.
type MessageHooks struct {
	OnStart func(MessageContext)
	OnDone  func(MessageContext)
	OnError func(MessageContext, error)
}

// Merge returns hooks that call h and then other.
func (h MessageHooks) Merge(other MessageHooks) MessageHooks {
	return MessageHooks{
		OnStart: chain(h.OnStart, other.OnStart),
		OnDone:  chain(h.OnDone, other.OnDone),
		OnError: chainErr(h.OnError, other.OnError),
	}
}

func (h MessageHooks) empty() bool {
	return h.OnStart == nil && h.OnDone == nil && h.OnError == nil
}

func chain(a, b func(MessageContext)) func(MessageContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(mc MessageContext) {
		a(mc)
		b(mc)
	}
}

func chainErr(a, b func(MessageContext, error)) func(MessageContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(mc MessageContext, err error) {
		a(mc, err)
		b(mc, err)
	}
}

// HooksMiddleware invokes hooks around every handler.
func HooksMiddleware(hooks MessageHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "message_hooks",
		Middleware: hooksMiddleware(hooks),
	}
}

func hooksMiddleware(hooks MessageHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		if hooks.empty() {
			return h
		}
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx := msg.Context()
			mc := MessageContext{
				HandlerName:   message.HandlerNameFromCtx(ctx),
				Topic:         message.SubscribeTopicFromCtx(ctx),
				MessageUUID:   msg.UUID,
				CorrelationID: msg.Metadata.Get(metadataCorrelationID),
				Context:       ctx,
				StartedAt:     time.Now(),
			}
			if hooks.OnStart != nil {
				hooks.OnStart(mc)
			}

			msgs, err := h(msg)
			mc.Duration = time.Since(mc.StartedAt)

			if err != nil {
				if hooks.OnError != nil {
					hooks.OnError(mc, err)
				}
			} else if hooks.OnDone != nil {
				hooks.OnDone(mc)
			}
			return msgs, err
		}
	}
}

// LoggingHooks logs failed handler invocations and, at debug level,
// completed ones.
func LoggingHooks(logger loggingpkg.ServiceLogger) MessageHooks {
	fields := func(mc MessageContext) loggingpkg.LogFields {
		return loggingpkg.LogFields{
			"handler":        mc.HandlerName,
			"topic":          mc.Topic,
			"message_uuid":   mc.MessageUUID,
			"correlation_id": mc.CorrelationID,
			"duration_ms":    mc.Duration.Milliseconds(),
		}
	}
	return MessageHooks{
		OnDone: func(mc MessageContext) {
			logger.Debug("Result handled", fields(mc))
		},
		OnError: func(mc MessageContext, err error) {
			f := fields(mc)
			f["category"] = string(DefaultErrorClassifier(err))
			logger.Error("Result handling failed", err, f)
		},
	}
}
