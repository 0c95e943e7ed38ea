package contracts

import (
	"errors"
	"fmt"
)

var (
	// ErrInvariant marks internal defects (never a bad input)
	ErrInvariant = errors.New("internal invariant violated")

	// ErrIntentCycle is returned when intent dependencies are not a DAG
	ErrIntentCycle = errors.New("intent dependency cycle")
)

// InvariantError is a programming/internal failure surfaced distinctly from
// business diagnostics. errors.Is(err, ErrInvariant) always holds.
type InvariantError struct {
	Stage   Stage
	Code    string
	Message string
	Details map[string]string
	Cause   error
}

// NewInvariantError creates an invariant failure for a stage
func NewInvariantError(stage Stage, code, message string) *InvariantError {
	return &InvariantError{Stage: stage, Code: code, Message: message}
}

func (e *InvariantError) withCause(cause error) *InvariantError {
	e.Cause = cause
	return e
}

// WithDetail attaches structured context
func (e *InvariantError) WithDetail(key, value string) *InvariantError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s [%s]: %s", ErrInvariant, e.Stage.ShortName(), e.Code, e.Message)
}

// Unwrap exposes both the sentinel and the cause
func (e *InvariantError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInvariant}
	}
	return []error{ErrInvariant, e.Cause}
}

// Diagnostic converts the failure into an INVARIANT-class blocking diagnostic
func (e *InvariantError) Diagnostic() Diagnostic {
	d := Diagnostic{
		Stage:    e.Stage,
		Code:     e.Code,
		Severity: SeverityBlocking,
		Class:    ClassInvariant,
		Message:  e.Message,
	}
	for k, v := range e.Details {
		d = d.With(k, v)
	}
	return d
}

// AsInvariant extracts an InvariantError from err
func AsInvariant(err error) (*InvariantError, bool) {
	var inv *InvariantError
	if errors.As(err, &inv) {
		return inv, true
	}
	return nil, false
}
