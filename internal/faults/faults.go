// Package faults defines the error taxonomy shared by both pipelines.
//
// Every error a pipeline can surface to a caller is one of the sentinel
// values or types here, so the transport layer can map errors to status
// codes with errors.Is / errors.As instead of string matching.
//
// Recognition-engine failures are deliberately absent: engine absence is
// absorbed inside the OCR layer (empty text is data, not failure) until the
// parser proves no structure exists, at which point ErrNoStructure is what
// surfaces.
package faults

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a malformed request: bad encoding, oversized
	// payload, out-of-bounds dimensions, unrecognized format. Terminal; the
	// caller must fix the input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEngineUnavailable marks a missing recognition or detection backend.
	// Terminal, and distinct from a data problem: surface as service
	// unavailable, not bad request.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrNoStructure marks a valid image in which zero classes could be
	// segmented. Terminal per request but recoverable: the user can retry
	// with a clearer image.
	ErrNoStructure = errors.New("no UML structure detected")

	// ErrReferenceNotFound marks an instruction referring to a class or edge
	// absent from the snapshot. Terminal, not retried.
	ErrReferenceNotFound = errors.New("referenced element not found")

	// ErrCommandNotRecognized marks an instruction that neither the pattern
	// tables nor the generative fallback could turn into a delta. Terminal;
	// the caller should rephrase.
	ErrCommandNotRecognized = errors.New("command not recognized")
)

// InvalidInput wraps ErrInvalidInput with a message naming the violated
// bound.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrReferenceNotFound naming the missing element.
func NotFound(kind, name string) error {
	return fmt.Errorf("%w: %s %q", ErrReferenceNotFound, kind, name)
}

// RateLimited reports a sliding-window violation. It carries the number of
// seconds after which the caller may retry.
type RateLimited struct {
	Operation  string
	RetryAfter int
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %ds", e.Operation, e.RetryAfter)
}

// IsRateLimited reports whether err is a rate-limit violation and, if so,
// returns the retry-after seconds.
func IsRateLimited(err error) (int, bool) {
	var rl *RateLimited
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
