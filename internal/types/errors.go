package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrAborted marks work stopped because its request was cancelled.
// It is an expected condition and is never retried.
var ErrAborted = errors.New("request aborted")

var (
	ErrSuperseded = fmt.Errorf("%w: superseded by a newer query", ErrAborted)
	ErrClientGone = fmt.Errorf("%w: client disconnected", ErrAborted)
	ErrShutdown   = fmt.Errorf("%w: server shutting down", ErrAborted)
)

var (
	// ErrNoResults is returned when a page yields no records
	ErrNoResults = errors.New("no results")

	// ErrContentTimeout is returned when expected content never appeared on a loaded page
	ErrContentTimeout = errors.New("timed out waiting for content")

	// ErrContextInvalidated is returned when the document was replaced mid-evaluation
	ErrContextInvalidated = errors.New("execution context invalidated")
)

// Aborted converts the cancellation of ctx into an ErrAborted-flavored error
func Aborted(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		return ErrAborted
	}
	if errors.Is(cause, ErrAborted) {
		return cause
	}
	if errors.Is(cause, context.Canceled) {
		return ErrClientGone
	}
	return fmt.Errorf("%w: %v", ErrAborted, cause)
}

// IsAborted reports whether err is a cancellation of the owning request
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

// ValidationError reports malformed user input
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NavigationError reports a page that failed to load
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// TransientFetchError reports an upstream status worth retrying
type TransientFetchError struct {
	URL        string
	StatusCode int
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("unexpected status code: %d from %s", e.StatusCode, e.URL)
}

// ExhaustedRetriesError wraps the last failure after every attempt was used
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error {
	return e.Last
}
