package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/querysub/internal/runtime/config"
	errspkg "github.com/drblury/querysub/internal/runtime/errors"
	idspkg "github.com/drblury/querysub/internal/runtime/ids"
	"github.com/drblury/querysub/internal/subscription/schema"
)

func schemaError(t *testing.T) error {
	t.Helper()
	_, err := schema.Parse([]byte(`{"version": 99, "payload": {}}`))
	require.Error(t, err)
	return err
}

func newMsg() *message.Message {
	msg := message.NewMessage(idspkg.CreateULID(), []byte(`{}`))
	msg.SetContext(context.Background())
	return msg
}

func TestIsSchemaError(t *testing.T) {
	assert.True(t, IsSchemaError(schemaError(t)))
	assert.False(t, IsSchemaError(errors.New("db down")))
	assert.False(t, IsSchemaError(nil))
}

func TestCorrelationIDMiddleware(t *testing.T) {
	mw := CorrelationIDMiddleware().Middleware
	var seen string
	h := mw(func(m *message.Message) ([]*message.Message, error) {
		seen = m.Metadata.Get(metadataCorrelationID)
		return nil, nil
	})

	_, err := h(newMsg())
	require.NoError(t, err)
	assert.True(t, idspkg.IsULID(seen))

	msg := newMsg()
	msg.Metadata.Set(metadataCorrelationID, "upstream")
	_, err = h(msg)
	require.NoError(t, err)
	assert.Equal(t, "upstream", seen)
}

func TestLogMessagesMiddleware(t *testing.T) {
	svc, _ := newTestService(t, nil)
	log := newRecordingLogger()

	mw, err := LogMessagesMiddleware(log).Builder(svc)
	require.NoError(t, err)
	_, err = mw(func(*message.Message) ([]*message.Message, error) { return nil, nil })(newMsg())
	require.NoError(t, err)

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "debug", entries[0].level)
	assert.Equal(t, "{}", entries[0].fields["payload"])

	svc.Logger = nil
	_, err = LogMessagesMiddleware(nil).Builder(svc)
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)
}

func TestTracerMiddleware(t *testing.T) {
	var observed trace.Span
	_, err := tracerMiddleware(func(m *message.Message) ([]*message.Message, error) {
		observed = trace.SpanFromContext(m.Context())
		return nil, errors.New("fail")
	})(newMsg())
	assert.Error(t, err)
	assert.NotNil(t, observed)
}

func TestRetryMiddlewareRetriesOtherErrors(t *testing.T) {
	svc, _ := newTestService(t, nil)
	mw := svc.retryMiddleware(RetryMiddlewareConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond})

	attempts := 0
	_, err := mw(func(*message.Message) ([]*message.Message, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("resolver unavailable")
		}
		return nil, nil
	})(newMsg())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryMiddlewareSkipsSchemaErrors(t *testing.T) {
	svc, _ := newTestService(t, nil)
	mw := svc.retryMiddleware(RetryMiddlewareConfig{MaxRetries: 3, InitialInterval: time.Millisecond})

	bad := schemaError(t)
	attempts := 0
	_, err := mw(func(*message.Message) ([]*message.Message, error) {
		attempts++
		return nil, bad
	})(newMsg())
	assert.ErrorIs(t, err, schema.ErrInvalidMessage)
	assert.Equal(t, 1, attempts)
}

func TestRetryMiddlewareUsesConfig(t *testing.T) {
	svc, _ := newTestService(t, &configpkg.Config{RetryMaxRetries: 1, RetryInitialInterval: time.Millisecond, RetryMaxInterval: time.Millisecond})
	mw := svc.retryMiddleware(RetryMiddlewareConfig{})

	attempts := 0
	_, err := mw(func(*message.Message) ([]*message.Message, error) {
		attempts++
		return nil, errors.New("down")
	})(newMsg())
	assert.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestPoisonMiddlewarePublishes(t *testing.T) {
	svc, pub := newTestService(t, &configpkg.Config{PoisonQueue: "querysub-poison"})
	mw, err := PoisonQueueMiddleware(nil).Builder(svc)
	require.NoError(t, err)

	_, err = mw(func(*message.Message) ([]*message.Message, error) {
		return nil, schemaError(t)
	})(newMsg())
	require.NoError(t, err)
	assert.Equal(t, []string{"querysub-poison"}, pub.Topics())
	assert.Equal(t, uint64(1), svc.poison.Snapshot().TotalMessages)
}

func TestPoisonMiddlewareWithoutQueueAcks(t *testing.T) {
	svc, pub := newTestService(t, &configpkg.Config{})
	log := newRecordingLogger()
	svc.Logger = log
	mw, err := PoisonQueueMiddleware(nil).Builder(svc)
	require.NoError(t, err)

	_, err = mw(func(*message.Message) ([]*message.Message, error) {
		return nil, schemaError(t)
	})(newMsg())
	require.NoError(t, err)
	assert.Empty(t, pub.Topics())

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "Dropping unprocessable result", entries[0].msg)
	assert.Equal(t, uint64(1), svc.poison.Snapshot().TotalMessages)
}

func TestPoisonMiddlewarePassesOtherErrors(t *testing.T) {
	svc, pub := newTestService(t, &configpkg.Config{PoisonQueue: "querysub-poison"})
	mw, err := PoisonQueueMiddleware(nil).Builder(svc)
	require.NoError(t, err)

	down := errors.New("database down")
	_, err = mw(func(*message.Message) ([]*message.Message, error) { return nil, down })(newMsg())
	assert.ErrorIs(t, err, down)
	assert.Empty(t, pub.Topics())
	assert.Zero(t, svc.poison.Snapshot().TotalMessages)
}

func TestPoisonMiddlewareValidations(t *testing.T) {
	svc, _ := newTestService(t, nil)
	svc.Conf = nil
	_, err := PoisonQueueMiddleware(nil).Builder(svc)
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)

	svc, _ = newTestService(t, &configpkg.Config{PoisonQueue: "p"})
	svc.publisher = nil
	_, err = PoisonQueueMiddleware(nil).Builder(svc)
	assert.ErrorIs(t, err, errspkg.ErrPublisherRequired)
}

func TestMetricsMiddleware(t *testing.T) {
	svc, _ := newTestService(t, &configpkg.Config{MetricsEnabled: false})
	mw, err := MetricsMiddleware().Builder(svc)
	require.NoError(t, err)
	assert.Nil(t, mw)
	assert.Empty(t, svc.httpServers)

	svc, _ = newTestService(t, &configpkg.Config{MetricsEnabled: true, MetricsPort: 9191, PubSubSystem: "channel"})
	_, err = MetricsMiddleware().Builder(svc)
	require.NoError(t, err)
	require.Contains(t, svc.httpServers, 9191)

	rec := httptest.NewRecorder()
	svc.httpServers[9191].ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterMiddlewareValidations(t *testing.T) {
	svc, _ := newTestService(t, nil)
	assert.Error(t, svc.RegisterMiddleware(MiddlewareRegistration{Name: "empty"}))

	boom := errors.New("boom")
	err := svc.RegisterMiddleware(MiddlewareRegistration{
		Builder: func(*Service) (message.HandlerMiddleware, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, svc.RegisterMiddleware(MiddlewareRegistration{
		Builder: func(*Service) (message.HandlerMiddleware, error) { return nil, nil },
	}))

	svc.router = nil
	assert.Error(t, svc.RegisterMiddleware(RecovererMiddleware()))
}
