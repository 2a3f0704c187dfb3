package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bull/pdfchat-server/internal/records"
)

var (
	// ErrValidation marks bad input: malformed ids, missing fields, limits.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	// ErrUnavailable marks an optional capability that is not configured.
	ErrUnavailable = errors.New("unavailable")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// ConflictError reports a document that conversations still reference.
type ConflictError struct {
	DocumentID string
	References []records.ConversationRef
}

func (e *ConflictError) Error() string {
	labels := make([]string, len(e.References))
	for i, r := range e.References {
		labels[i] = r.Label
	}
	return fmt.Sprintf("document %s is attached to %d conversation(s): %s",
		e.DocumentID, len(e.References), strings.Join(labels, ", "))
}

// UpstreamError is a model provider failure. Messages holds whatever was
// appended to the conversation before the failure was recorded.
type UpstreamError struct {
	Err      error
	Messages []records.Message
}

func (e *UpstreamError) Error() string { return "model provider failed: " + e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }

// mapStoreError translates record-store sentinels into the service taxonomy.
func mapStoreError(err error, kind, id string) error {
	switch {
	case errors.Is(err, records.ErrNotFound):
		return notFound(kind, id)
	case errors.Is(err, records.ErrInvalidID):
		return validationf("invalid %s id %q", kind, id)
	default:
		return err
	}
}
