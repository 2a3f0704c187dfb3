package llm

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownModel       = errors.New("unknown model")
	ErrProvidersExhausted = errors.New("all provider credentials exhausted")
)

// UnknownModelError reports a model name with no provider group.
type UnknownModelError struct {
	Model string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model %q", e.Model)
}

func (e *UnknownModelError) Unwrap() error { return ErrUnknownModel }

// ExhaustedError reports that every credential of a group failed with a
// retriable error. Last is the final credential's error, if any.
type ExhaustedError struct {
	Group    ProviderGroup
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("provider group %s: no credentials configured", e.Group)
	}
	return fmt.Sprintf("provider group %s: all %d credentials exhausted: %v", e.Group, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrProvidersExhausted}
	}
	return []error{ErrProvidersExhausted, e.Last}
}
