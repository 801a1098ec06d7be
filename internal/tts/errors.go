package tts

import (
	"errors"
	"fmt"
)

// Error taxonomy of the generation flow. Every failure returned by this
// package wraps exactly one of these sentinels.
var (
	// ErrValidation blocks an action locally; no network call is made.
	ErrValidation = errors.New("validation failed")
	// ErrNetwork covers non-2xx responses and transport failures.
	ErrNetwork = errors.New("network request failed")
	// ErrProtocol means a response did not match any expected schema.
	ErrProtocol = errors.New("unexpected response from inference service")
	// ErrTimeout means the poll attempt ceiling was reached.
	ErrTimeout = errors.New("generation timed out")
	// ErrDecode means a completed job carried no usable audio.
	ErrDecode = errors.New("no audio data in response")
	// ErrJobFailed carries the server-supplied failure message.
	ErrJobFailed = errors.New("inference failed on worker")
	// ErrJobCancelled means the job was cancelled on the server.
	ErrJobCancelled = errors.New("job was cancelled")
)

// NetworkError describes a failed HTTP exchange with the inference service.
type NetworkError struct {
	Op         string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s returned HTTP %d: %s", e.Op, e.URL, e.StatusCode, e.Body)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.URL, e.Err)
}

// Unwrap exposes both ErrNetwork and the transport error, if any.
func (e *NetworkError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrNetwork, e.Err}
	}

	return []error{ErrNetwork}
}

func newValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
