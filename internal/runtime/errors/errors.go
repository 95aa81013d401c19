package errors

import sterrors "errors"

var (
	ErrServiceRequired      = sterrors.New("querysub: event service is required")
	ErrHandlerRequired      = sterrors.New("querysub: handler function is required")
	ErrTopicRequired        = sterrors.New("querysub: topic is required")
	ErrHandlerNameRequired  = sterrors.New("querysub: handler name is required")
	ErrHandlerExists        = sterrors.New("querysub: handler name already registered")
	ErrTransportRequired    = sterrors.New("querysub: transport is required")
	ErrPublisherRequired    = sterrors.New("querysub: publisher is required")
	ErrConfigRequired       = sterrors.New("querysub: configuration is required")
	ErrLoggerRequired       = sterrors.New("querysub: logger is required")
	ErrConsumerRequired     = sterrors.New("querysub: subscription consumer is required")
	ErrRegistryRequired     = sterrors.New("querysub: subscriber registry is required")
	ErrResolverRequired     = sterrors.New("querysub: subscription resolver is required")
	ErrCleanerRequired      = sterrors.New("querysub: cleanup dispatcher is required")
	ErrQueryEngineURLNeeded = sterrors.New("querysub: query engine URL is required")
)

// ConfigValidationError marks an error produced while validating Config so
// callers can tell wiring mistakes apart from runtime failures.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	if e.Err == nil {
		return "querysub: invalid configuration"
	}
	return "querysub: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}
