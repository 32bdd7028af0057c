package registry

import (
	"errors"
	"fmt"
)

// ErrModelNotFound is returned by lookups for names absent from the registry.
// It is never mapped to a default model.
var ErrModelNotFound = errors.New("model not found")

// LoadError indicates the registry file could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load model registry %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// PersistError indicates the registry file could not be written.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist model registry %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// ValidationError indicates a model definition violates a registry invariant.
// The offending mutation is rejected atomically; nothing is persisted.
type ValidationError struct {
	Name   string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid model definition: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid model definition %q: %s: %s", e.Name, e.Field, e.Reason)
}
