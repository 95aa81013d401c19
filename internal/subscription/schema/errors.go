package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMessage matches every *InvalidMessageError via errors.Is.
	ErrInvalidMessage = errors.New("invalid subscription message")
	// ErrInvalidSchema matches every *InvalidSchemaError via errors.Is.
	ErrInvalidSchema = errors.New("invalid subscription payload")
)

const msgNoSchemaForVersion = "Version specified in wrapper has no schema"

// InvalidMessageError reports an unusable envelope: not JSON, missing the
// version or payload key, or carrying a version with no known schema.
type InvalidMessageError struct {
	Reason string
	Err    error
}

func (e *InvalidMessageError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *InvalidMessageError) Unwrap() error { return e.Err }

func (e *InvalidMessageError) Is(target error) bool { return target == ErrInvalidMessage }

// InvalidSchemaError reports a well-formed envelope whose payload violates
// the schema of its declared version.
type InvalidSchemaError struct {
	Version int
	Field   string
	Reason  string
}

func (e *InvalidSchemaError) Error() string {
	return fmt.Sprintf("payload v%d: %s: %s", e.Version, e.Field, e.Reason)
}

func (e *InvalidSchemaError) Is(target error) bool { return target == ErrInvalidSchema }

func schemaErr(version int, field, format string, args ...any) *InvalidSchemaError {
	return &InvalidSchemaError{Version: version, Field: field, Reason: fmt.Sprintf(format, args...)}
}
