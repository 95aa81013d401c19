package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/querysub/internal/runtime/config"
	errspkg "github.com/drblury/querysub/internal/runtime/errors"
	"github.com/drblury/querysub/internal/subscription/cleanup"
	"github.com/drblury/querysub/internal/subscription/consumer"
	"github.com/drblury/querysub/internal/subscription/dataset"
	"github.com/drblury/querysub/internal/subscription/registry"
	"github.com/drblury/querysub/internal/subscription/store"
)

type nopCleaner struct{}

func (nopCleaner) Delete(context.Context, dataset.Dataset, dataset.EntityKey, string) (cleanup.Acknowledgement, error) {
	return cleanup.Acknowledgement{Outcome: cleanup.OutcomeDeleted}, nil
}

func newTestConsumer(t *testing.T) *consumer.Consumer {
	t.Helper()
	c, err := consumer.New(consumer.Dependencies{
		Registry: registry.New(),
		Resolver: store.NewMemoryStore(),
		Cleaner:  nopCleaner{},
	})
	require.NoError(t, err)
	return c
}

func noop(*message.Message) error { return nil }

func TestRegisterMessageHandlerRequiresService(t *testing.T) {
	err := RegisterMessageHandler(nil, MessageHandlerRegistration{})
	assert.ErrorIs(t, err, errspkg.ErrServiceRequired)
}

func TestRegisterMessageHandlerValidatesInput(t *testing.T) {
	svc, _ := newTestService(t, nil)

	tests := []struct {
		name string
		reg  MessageHandlerRegistration
		want error
	}{
		{"handler", MessageHandlerRegistration{Name: "n", Topic: "t"}, errspkg.ErrHandlerRequired},
		{"topic", MessageHandlerRegistration{Name: "n", Handler: noop}, errspkg.ErrTopicRequired},
		{"name", MessageHandlerRegistration{Topic: "t", Handler: noop}, errspkg.ErrHandlerNameRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, RegisterMessageHandler(svc, tt.reg), tt.want)
		})
	}
}

func TestRegisterMessageHandlerRejectsDuplicates(t *testing.T) {
	svc, _ := newTestService(t, nil)
	reg := MessageHandlerRegistration{Name: "n", Topic: "t", Handler: noop}

	require.NoError(t, RegisterMessageHandler(svc, reg))
	assert.ErrorIs(t, RegisterMessageHandler(svc, reg), errspkg.ErrHandlerExists)
	assert.Len(t, svc.Handlers(), 1)
}

func TestRegisterResultsConsumerPerTopic(t *testing.T) {
	svc, _ := newTestService(t, &configpkg.Config{
		ResultsTopics: []string{"events-subscription-results", "metrics-subscription-results"},
	})

	require.NoError(t, RegisterResultsConsumer(svc, ResultsConsumerRegistration{Consumer: newTestConsumer(t)}))

	handlers := svc.Handlers()
	require.Len(t, handlers, 2)
	assert.Equal(t, ResultsHandlerPrefix+"events-subscription-results", handlers[0].Name)
	assert.Equal(t, "metrics-subscription-results", handlers[1].Topic)
}

func TestRegisterResultsConsumerValidations(t *testing.T) {
	assert.ErrorIs(t, RegisterResultsConsumer(nil, ResultsConsumerRegistration{}), errspkg.ErrServiceRequired)

	svc, _ := newTestService(t, nil)
	assert.ErrorIs(t, RegisterResultsConsumer(svc, ResultsConsumerRegistration{}), errspkg.ErrConsumerRequired)
	assert.ErrorIs(t, RegisterResultsConsumer(svc, ResultsConsumerRegistration{Consumer: newTestConsumer(t)}), errspkg.ErrTopicRequired)
}

func TestWrapHandlerWithStats(t *testing.T) {
	stats := &HandlerStats{}
	boom := errors.New("boom")

	ok := wrapHandlerWithStats(noop, stats, DefaultErrorClassifier)
	fail := wrapHandlerWithStats(func(*message.Message) error { return boom }, stats, DefaultErrorClassifier)

	require.NoError(t, ok(message.NewMessage("1", nil)))
	assert.ErrorIs(t, fail(message.NewMessage("2", nil)), boom)

	snap := stats.Snapshot()
	assert.Equal(t, uint64(1), snap.MessagesProcessed)
	assert.Equal(t, uint64(1), snap.MessagesFailed)
}
