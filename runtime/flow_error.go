package runtime

import (
	"context"
	"errors"
	"fmt"
)

// FlowErrorType classifies how a failure is recovered.
type FlowErrorType string

const (
	// ErrorTypeChannelGone is always terminal: no further channel operations.
	ErrorTypeChannelGone FlowErrorType = "channel_gone"
	// ErrorTypeNode is a handler failure recovered through onError.
	ErrorTypeNode FlowErrorType = "node_error"
	// ErrorTypeValidation marks caller input that failed a shape check.
	ErrorTypeValidation FlowErrorType = "validation"
	// ErrorTypeExternalCall is a failed api_call.
	ErrorTypeExternalCall FlowErrorType = "external_call"
	// ErrorTypeTimeout signals the operation was cancelled by a deadline.
	ErrorTypeTimeout FlowErrorType = "timeout"
)

// FlowErrorCode identifies known engine error codes.
type FlowErrorCode string

const (
	ErrorCodeRuntimeError     FlowErrorCode = "RUNTIME_ERROR"
	ErrorCodeContextCancelled FlowErrorCode = "CONTEXT_CANCELLED"
	ErrorCodeDeadlineExceeded FlowErrorCode = "DEADLINE_EXCEEDED"
	ErrorCodeChannelGone      FlowErrorCode = "CHANNEL_GONE"
	ErrorCodeStepLimit        FlowErrorCode = "STEP_LIMIT"
	ErrorCodePanic            FlowErrorCode = "PANIC"
	ErrorCodeHTTPStatus       FlowErrorCode = "HTTP_STATUS"
	ErrorCodeInvalidNode      FlowErrorCode = "INVALID_NODE"
)

// FlowError is the error type propagated out of node handlers.
type FlowError struct {
	Type    FlowErrorType  `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Node    string         `json:"node"`
	Meta    map[string]any `json:"meta,omitempty"`
	cause   error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("[%s/%s] %s (node: %s)", e.Type, e.Code, e.Message, e.Node)
}

func (e *FlowError) Unwrap() error {
	return e.cause
}

// ToMap converts the error to a map so flows can inspect it through the
// last_error variable.
func (e *FlowError) ToMap() map[string]any {
	return map[string]any{
		"type":    string(e.Type),
		"code":    e.Code,
		"message": e.Message,
		"node":    e.Node,
	}
}

// NewFlowError classifies err raised while executing node. Errors that are
// already a *FlowError are returned unchanged.
func NewFlowError(node string, err error) *FlowError {
	var fe *FlowError
	if errors.As(err, &fe) {
		if fe.Node == "" {
			fe.Node = node
		}
		return fe
	}

	fe = &FlowError{
		Type:    ErrorTypeNode,
		Code:    string(ErrorCodeRuntimeError),
		Message: err.Error(),
		Node:    node,
		cause:   err,
	}

	var actionErr *ActionError
	switch {
	case IsChannelGone(err):
		fe.Type = ErrorTypeChannelGone
		fe.Code = string(ErrorCodeChannelGone)
	case errors.Is(err, context.DeadlineExceeded):
		fe.Type = ErrorTypeTimeout
		fe.Code = string(ErrorCodeDeadlineExceeded)
	case errors.Is(err, context.Canceled):
		fe.Type = ErrorTypeTimeout
		fe.Code = string(ErrorCodeContextCancelled)
	case errors.As(err, &actionErr):
		fe.Type = ErrorTypeExternalCall
		fe.Code = string(ErrorCodeHTTPStatus)
		fe.Meta = actionErr.Metadata
	}
	return fe
}
