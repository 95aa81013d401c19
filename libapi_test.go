package querysub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationExportsPropagateErrors(t *testing.T) {
	err := RegisterResultsConsumer(nil, ResultsConsumerRegistration{})
	assert.ErrorIs(t, err, ErrServiceRequired)

	err = RegisterMessageHandler(nil, MessageHandlerRegistration{})
	assert.ErrorIs(t, err, ErrServiceRequired)
}

func TestTryNewServiceRequiresConfig(t *testing.T) {
	_, err := TryNewService(nil, nil, context.Background(), ServiceDependencies{})
	assert.ErrorIs(t, err, ErrConfigRequired)

	cfg := DefaultConfig()
	_, err = TryNewService(&cfg, nil, context.Background(), ServiceDependencies{})
	assert.ErrorIs(t, err, ErrLoggerRequired)
}

func TestParseResultExport(t *testing.T) {
	payload, err := ParseResult([]byte(`{"version":2,"payload":{"subscription_id":"0/abc","request":{},"result":{"data":[{"count":1}]},"timestamp":"2024-01-01T00:00:00Z","entity":"project_id"}}`))
	require.NoError(t, err)
	assert.Equal(t, "0/abc", payload.SubscriptionID)

	_, err = ParseResult([]byte(`{"version":99,"payload":{}}`))
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestConsumerExportRequiresDependencies(t *testing.T) {
	_, err := NewConsumer(ConsumerDependencies{})
	assert.ErrorIs(t, err, ErrRegistryRequired)
}

func TestSubscriberRegistryExport(t *testing.T) {
	reg := NewSubscriberRegistry()
	handler := SubscriberFunc(func(context.Context, DispatchPayload, Subscription) error { return nil })
	require.NoError(t, reg.Register("alerts", handler))

	err := reg.Register("alerts", handler)
	assert.Error(t, err)
	_, ok := reg.Lookup("alerts")
	assert.True(t, ok)
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	_, err := Marshal(payload)
	require.NoError(t, err)
	_, err = MarshalIndent(payload, "", "  ")
	require.NoError(t, err)
	require.NoError(t, Unmarshal([]byte(`{"hello":"world"}`), &payload))
}

func TestErrorCategoryConstants(t *testing.T) {
	assert.Equal(t, ErrorCategory("none"), ErrorCategoryNone)
	assert.Equal(t, ErrorCategory("schema"), ErrorCategorySchema)
	assert.Equal(t, ErrorCategorySchema, DefaultErrorClassifier(ErrInvalidSchema))
	assert.Equal(t, ErrorCategoryTimeout, DefaultErrorClassifier(context.DeadlineExceeded))
	assert.Equal(t, ErrorCategoryOther, DefaultErrorClassifier(errors.New("boom")))
}

func TestCreateULIDExport(t *testing.T) {
	assert.Len(t, CreateULID(), 26)
}
