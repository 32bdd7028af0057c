package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind splits inference failures into the two classes the caller cares
// about: transient failures may be retried, fatal ones must not be.
type ErrorKind int

const (
	// KindTransient covers timeouts, rate limits, and upstream 5xx.
	KindTransient ErrorKind = iota
	// KindFatal covers auth failures, unknown deployments, and anything
	// a retry cannot fix.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// InferenceError wraps a failed call to the hosted inference endpoint.
type InferenceError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *InferenceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inference %s error (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("inference %s error: %s", e.Kind, e.Message)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// IsTransient reports whether err is an inference error the caller may retry.
func IsTransient(err error) bool {
	var infErr *InferenceError
	return errors.As(err, &infErr) && infErr.Kind == KindTransient
}
