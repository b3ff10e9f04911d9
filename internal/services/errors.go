package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDiscovery marks a locate pass that produced no usable stream candidate.
	ErrDiscovery = errors.New("discovery error")
	// ErrExtraction marks a failed or timed-out audio capture.
	ErrExtraction = errors.New("extraction error")
	// ErrTrimming marks a silence-trim failure; callers fall back to the untrimmed artifact.
	ErrTrimming = errors.New("trimming error")
	// ErrLabeling marks a speaker-labeling failure; callers fall back to unknown labels.
	ErrLabeling = errors.New("labeling error")
	// ErrLockContention is returned to callers requesting a hearing whose lease is held.
	ErrLockContention = errors.New("lock contention")
	// ErrStalled is returned for hearings that exhausted their retry budget.
	ErrStalled = errors.New("hearing stalled")

	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// ServiceError carries the marker sentinel plus the stage/operation context a
// failure occurred in. Wrap is the only constructor; the pipeline unwraps it
// via Details when persisting attempt records.
type ServiceError struct {
	Marker    error
	Stage     string
	Operation string
	Message   string
	Cause     error
}

func (e *ServiceError) Error() string {
	detail := buildDetail(e.Stage, e.Operation, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Marker.Error(), detail, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Marker.Error(), detail)
}

func (e *ServiceError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Marker, e.Cause}
	}
	return []error{e.Marker}
}

// Wrap builds an error that includes stage context while tagging it with the
// provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	return &ServiceError{
		Marker:    marker,
		Stage:     strings.TrimSpace(stage),
		Operation: strings.TrimSpace(operation),
		Message:   strings.TrimSpace(message),
		Cause:     err,
	}
}

// FailureDetails is the flattened view of a stage error used for attempt
// records and structured logging.
type FailureDetails struct {
	Kind      string
	Stage     string
	Operation string
	Message   string
	Cause     error
}

// Details extracts structured failure information from a stage error. Errors
// not built by Wrap yield kind "unknown" with the raw message.
func Details(err error) FailureDetails {
	if err == nil {
		return FailureDetails{Kind: "unknown"}
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return FailureDetails{
			Kind:      Kind(svcErr.Marker),
			Stage:     svcErr.Stage,
			Operation: svcErr.Operation,
			Message:   svcErr.Message,
			Cause:     svcErr.Cause,
		}
	}
	return FailureDetails{Kind: Kind(err), Message: err.Error()}
}

// Kind maps an error to the stable label stored in attempt records.
func Kind(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, ErrDiscovery):
		return "discovery"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrTrimming):
		return "trimming"
	case errors.Is(err, ErrLabeling):
		return "labeling"
	case errors.Is(err, ErrLockContention):
		return "lock_contention"
	case errors.Is(err, ErrStalled):
		return "stalled"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}

// IsCancellation reports whether err represents a deliberate cancellation
// rather than a failure. Deadline expiry counts as a failure so it feeds the
// retry policy.
func IsCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage != "" {
		parts = append(parts, stage)
	}
	if operation != "" {
		parts = append(parts, operation)
	}
	if message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
