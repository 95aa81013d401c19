// Package cleanup asks the query engine to drop subscriptions that no longer
// have a local record.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	errspkg "github.com/drblury/querysub/internal/runtime/errors"
	"github.com/drblury/querysub/internal/runtime/logging"
	"github.com/drblury/querysub/internal/subscription/dataset"
)

// Outcome classifies how the query engine answered a delete request.
type Outcome string

const (
	OutcomeDeleted  Outcome = "deleted"
	OutcomeNotFound Outcome = "not_found"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Acknowledgement is the answer to a delete request.
type Acknowledgement struct {
	URL        string
	StatusCode int
	Outcome    Outcome
}

// OK reports whether the subscription is gone on the query engine side.
func (a Acknowledgement) OK() bool {
	return a.Outcome == OutcomeDeleted || a.Outcome == OutcomeNotFound
}

// OutcomeRecorder receives one call per finished delete request.
type OutcomeRecorder interface {
	RecordCleanup(dataset, outcome string)
}

type Config struct {
	BaseURL         string
	Timeout         time.Duration
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// BreakerFailures is the number of consecutive failed requests that
	// opens the circuit breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open.
	BreakerTimeout time.Duration
	HTTPClient     *http.Client
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxTries == 0 {
		c.MaxTries = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 100 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 2 * time.Second
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = 30 * time.Second
	}
	return c
}

// Dispatcher issues DELETE requests against the query engine.
type Dispatcher struct {
	cfg     Config
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     logging.ServiceLogger
	rec     OutcomeRecorder
}

func New(cfg Config, log logging.ServiceLogger, rec OutcomeRecorder) (*Dispatcher, error) {
	cfg = cfg.withDefaults()
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errspkg.ErrQueryEngineURLNeeded
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("cleanup: invalid base URL: %w", err)
	}
	if log == nil {
		log = logging.Nop()
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	d := &Dispatcher{
		cfg:    cfg,
		base:   base,
		client: client,
		log:    log,
		rec:    rec,
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "query-engine-cleanup",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("Circuit breaker state changed", logging.LogFields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	return d, nil
}

// URL returns the delete endpoint of a subscription.
func (d *Dispatcher) URL(ds dataset.Dataset, entity dataset.EntityKey, subscriptionID string) string {
	return d.base + "/" + url.PathEscape(string(ds)) + "/" + url.PathEscape(string(entity)) +
		"/subscriptions/" + url.PathEscape(subscriptionID)
}

// Delete removes a subscription from the query engine. A 2xx or 404 answer
// is a success. Other 4xx answers are logged and returned as a rejected
// acknowledgement without an error. Transport failures and 5xx answers are
// retried; when the retries run out the last failure is returned.
func (d *Dispatcher) Delete(ctx context.Context, ds dataset.Dataset, entity dataset.EntityKey, subscriptionID string) (Acknowledgement, error) {
	target := d.URL(ds, entity, subscriptionID)
	fields := logging.LogFields{
		"dataset":         string(ds),
		"entity":          string(entity),
		"subscription_id": subscriptionID,
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.cfg.InitialInterval
	eb.MaxInterval = d.cfg.MaxInterval

	ack, err := backoff.Retry(ctx, func() (Acknowledgement, error) {
		res, err := d.breaker.Execute(func() (interface{}, error) {
			return d.send(ctx, target)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Acknowledgement{URL: target, Outcome: OutcomeFailed}, backoff.Permanent(err)
		}
		ack, _ := res.(Acknowledgement)
		return ack, err
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(d.cfg.MaxTries))

	if err != nil {
		ack.URL = target
		ack.Outcome = OutcomeFailed
		d.record(ds, ack.Outcome)
		return ack, fmt.Errorf("delete subscription %s: %w", subscriptionID, err)
	}

	d.record(ds, ack.Outcome)
	if ack.Outcome == OutcomeRejected {
		fields["status"] = ack.StatusCode
		d.log.Error("Query engine rejected subscription delete", nil, fields)
		return ack, nil
	}
	d.log.Debug("Subscription removed from query engine", fields)
	return ack, nil
}

// StatusError is a 5xx answer from the query engine.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("query engine answered %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (d *Dispatcher) send(ctx context.Context, target string) (Acknowledgement, error) {
	ack := Acknowledgement{URL: target}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return ack, backoff.Permanent(err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return ack, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	ack.StatusCode = resp.StatusCode
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		ack.Outcome = OutcomeDeleted
	case resp.StatusCode == http.StatusNotFound:
		ack.Outcome = OutcomeNotFound
	case resp.StatusCode >= 500:
		ack.Outcome = OutcomeFailed
		return ack, &StatusError{StatusCode: resp.StatusCode}
	default:
		ack.Outcome = OutcomeRejected
	}
	return ack, nil
}

func (d *Dispatcher) record(ds dataset.Dataset, outcome Outcome) {
	if d.rec != nil {
		d.rec.RecordCleanup(string(ds), string(outcome))
	}
}
