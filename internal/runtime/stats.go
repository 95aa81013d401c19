package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/drblury/querysub/internal/subscription/schema"
)

// ErrorCategory groups handler failures for the introspection API.
type ErrorCategory string

const (
	ErrorCategoryNone    ErrorCategory = "none"
	ErrorCategorySchema  ErrorCategory = "schema"
	ErrorCategoryTimeout ErrorCategory = "timeout"
	ErrorCategoryOther   ErrorCategory = "other"
)

// ErrorClassifier maps a handler error to a category.
type ErrorClassifier func(error) ErrorCategory

// DefaultErrorClassifier separates malformed results from timeouts and
// everything else.
func DefaultErrorClassifier(err error) ErrorCategory {
	switch {
	case err == nil:
		return ErrorCategoryNone
	case errors.Is(err, schema.ErrInvalidMessage), errors.Is(err, schema.ErrInvalidSchema):
		return ErrorCategorySchema
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	default:
		return ErrorCategoryOther
	}
}

// HandlerInfo describes one router handler.
type HandlerInfo struct {
	Name  string        `json:"name"`
	Topic string        `json:"topic"`
	Stats *HandlerStats `json:"-"`
}

// ErrorBreakdown counts failures per category.
type ErrorBreakdown struct {
	Schema    uint64 `json:"schema"`
	Timeout   uint64 `json:"timeout"`
	Other     uint64 `json:"other"`
	LastError string `json:"last_error,omitempty"`
}

// StatsSnapshot is a point-in-time copy of HandlerStats.
type StatsSnapshot struct {
	MessagesProcessed uint64         `json:"messages_processed"`
	MessagesFailed    uint64         `json:"messages_failed"`
	InFlight          uint64         `json:"in_flight"`
	MaxInFlight       uint64         `json:"max_in_flight"`
	AverageNs         int64          `json:"average_ns"`
	LastNs            int64          `json:"last_ns"`
	LastProcessedAt   time.Time      `json:"last_processed_at"`
	Errors            ErrorBreakdown `json:"errors"`
}

// HandlerStats accumulates per-handler processing counters.
type HandlerStats struct {
	mu sync.Mutex

	processed   uint64
	failed      uint64
	inFlight    uint64
	maxInFlight uint64
	totalNs     int64
	lastNs      int64
	lastAt      time.Time
	errors      ErrorBreakdown
}

func (s *HandlerStats) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
}

func (s *HandlerStats) finish(d time.Duration, err error, classify ErrorClassifier) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight > 0 {
		s.inFlight--
	}
	s.lastNs = d.Nanoseconds()
	s.lastAt = time.Now()

	if err == nil {
		s.processed++
		s.totalNs += s.lastNs
		return
	}

	s.failed++
	s.errors.LastError = err.Error()
	switch classify(err) {
	case ErrorCategorySchema:
		s.errors.Schema++
	case ErrorCategoryTimeout:
		s.errors.Timeout++
	default:
		s.errors.Other++
	}
}

// Snapshot returns a copy of the current counters.
func (s *HandlerStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		MessagesProcessed: s.processed,
		MessagesFailed:    s.failed,
		InFlight:          s.inFlight,
		MaxInFlight:       s.maxInFlight,
		LastNs:            s.lastNs,
		LastProcessedAt:   s.lastAt,
		Errors:            s.errors,
	}
	if s.processed > 0 {
		snap.AverageNs = s.totalNs / int64(s.processed)
	}
	return snap
}
