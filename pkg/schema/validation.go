package schema

import "fmt"

// ValidationSeverity separates blocking findings from advisory ones.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue locates one problem in a candidate payload by JSON pointer.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

func (i ValidationIssue) String() string {
	return i.Path + ": " + i.Message
}

// ValidationResult collects the shape problems of a generated node list,
// found before it is decoded into a Graph.
type ValidationResult struct {
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// Valid reports whether the payload may be decoded.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError records a blocking issue at path.
func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{
		Path: path, Code: code, Message: message, Severity: SeverityError,
	})
}

// ToError returns nil for a valid payload, otherwise a SCHEMA_ERROR listing
// every issue. A single issue becomes the message itself.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}
	msg := r.Errors[0].String()
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("candidate is not a well-formed node list: %d issues", len(r.Errors))
	}
	issues := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		issues[i] = e.String()
	}
	return NewError(ErrCodeSchema, msg).WithDetails(map[string]any{"issues": issues})
}
