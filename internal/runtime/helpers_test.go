package runtime

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/querysub/internal/runtime/config"
	loggingpkg "github.com/drblury/querysub/internal/runtime/logging"
	"github.com/drblury/querysub/transport"
)

type testPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for range messages {
		p.published = append(p.published, topic)
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

type testSubscriber struct {
	err error
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

type logEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	base    loggingpkg.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l *recordingLogger) record(level, msg string, err error, fields loggingpkg.LogFields) {
	merged := maps.Clone(l.base)
	if merged == nil {
		merged = loggingpkg.LogFields{}
	}
	maps.Copy(merged, fields)
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, msg: msg, err: err, fields: merged})
}

func (l *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	base := maps.Clone(l.base)
	if base == nil {
		base = loggingpkg.LogFields{}
	}
	maps.Copy(base, fields)
	return &recordingLogger{mu: l.mu, entries: l.entries, base: base}
}

func (l *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	l.record("debug", msg, nil, fields)
}

func (l *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	l.record("info", msg, nil, fields)
}

func (l *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.record("error", msg, err, fields)
}

func (l *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	l.record("trace", msg, nil, fields)
}

func (l *recordingLogger) Entries() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), *l.entries...)
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// newTestService builds a Service around fake pub/sub without running the
// constructor.
func newTestService(t *testing.T, conf *configpkg.Config) (*Service, *testPublisher) {
	t.Helper()
	if conf == nil {
		conf = &configpkg.Config{}
	}
	log := newTestLogger()
	router, err := message.NewRouter(message.RouterConfig{}, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		t.Fatalf("router init failed: %v", err)
	}
	pub := &testPublisher{}
	return &Service{
		Conf:            conf,
		Logger:          log,
		router:          router,
		publisher:       pub,
		subscriber:      &testSubscriber{},
		capabilities:    transport.ChannelCapabilities,
		poison:          NewPoisonMetrics(prometheus.NewRegistry()),
		registerer:      prometheus.NewRegistry(),
		errorClassifier: DefaultErrorClassifier,
	}, pub
}
