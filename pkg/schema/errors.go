package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeSchema              = "SCHEMA_ERROR"
	ErrCodeCountDrop           = "COUNT_DROP_VIOLATION"
	ErrCodeStructural          = "STRUCTURAL_VIOLATION"
	ErrCodeComplexityRegress   = "COMPLEXITY_REGRESSION"
	ErrCodeInvalidSelection    = "EMPTY_OR_INVALID_SELECTION"
	ErrCodeHistoryUnderflow    = "HISTORY_UNDERFLOW"
	ErrCodeNodeCountMismatch   = "NODE_COUNT_MISMATCH"
	ErrCodeReorganizeNotNeeded = "REORGANIZE_NOT_NEEDED"
	ErrCodeGenerationFailed    = "GENERATION_FAILED"
	ErrCodeMutationInFlight    = "MUTATION_IN_FLIGHT"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeStore               = "STORE_ERROR"
	ErrCodeExpression          = "EXPRESSION_ERROR"
	ErrCodeInvalidExpression   = "INVALID_EXPRESSION"
)

// PathwayError is the structured error type for all pathway operations.
type PathwayError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *PathwayError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PathwayError) Unwrap() error {
	return e.Cause
}

// NewError creates a new PathwayError.
func NewError(code, message string) *PathwayError {
	return &PathwayError{Code: code, Message: message}
}

// NewErrorf creates a new PathwayError with a formatted message.
func NewErrorf(code, format string, args ...any) *PathwayError {
	return &PathwayError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *PathwayError) WithNode(nodeID string) *PathwayError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *PathwayError) WithCause(err error) *PathwayError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *PathwayError) WithDetails(details map[string]any) *PathwayError {
	e.Details = details
	return e
}

// ErrorCode returns the code of the first PathwayError in err's chain, or "".
func ErrorCode(err error) string {
	var pe *PathwayError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
