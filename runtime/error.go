package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelGone reports that the telephony side of a call vanished.
	ErrChannelGone = errors.New("channel gone")
	// ErrFlowNotFound is returned by flow sources for unknown extensions or ids.
	ErrFlowNotFound = errors.New("flow not found")
)

// IsChannelGone reports whether err signals a vanished channel.
func IsChannelGone(err error) bool {
	return errors.Is(err, ErrChannelGone)
}

// ChannelError wraps a failed channel operation.
type ChannelError struct {
	Op  string
	Err error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("channel %s: %v", e.Op, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// ActionError wraps a failed outbound call together with metadata about it:
// - status: HTTP status code when a response was received
// - retryable: whether repeating the request may succeed
type ActionError struct {
	Err      error
	Status   int
	Metadata map[string]any
}

func (e *ActionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("action failed with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("action failed: %v", e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func NewActionError(err error, status int) *ActionError {
	e := &ActionError{
		Err:      err,
		Status:   status,
		Metadata: make(map[string]any),
	}
	if status != 0 {
		e.Metadata["status"] = status
	}
	return e
}

// WithMetadata adds metadata to the error
func (e *ActionError) WithMetadata(key string, value any) *ActionError {
	e.Metadata[key] = value
	return e
}

// WithRetryHint marks whether the failure is worth retrying.
func (e *ActionError) WithRetryHint(retryable bool) *ActionError {
	e.Metadata["retryable"] = retryable
	return e
}

// IsRetryable checks if the error is marked as retryable
func (e *ActionError) IsRetryable() bool {
	if val, ok := e.Metadata["retryable"]; ok {
		if retryable, ok := val.(bool); ok {
			return retryable
		}
	}
	return false
}
