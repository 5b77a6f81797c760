package fuzzy

import (
	"errors"
	"strings"
)

var (
	ErrInvalidShape      = errors.New("invalid membership function shape")
	ErrInvalidUniverse   = errors.New("invalid universe")
	ErrInvalidName       = errors.New("invalid name")
	ErrDuplicateLabel    = errors.New("duplicate label")
	ErrDuplicateVariable = errors.New("duplicate variable")
	ErrInvalidRule       = errors.New("invalid rule")
	ErrUnknownVariable   = errors.New("unknown variable")
	ErrUnknownLabel      = errors.New("unknown label")
	ErrMissingInput      = errors.New("missing input")
	ErrUndefinedOutput   = errors.New("undefined output")
)

// UndefinedOutputError reports the output variables for which no rule fired.
// It matches ErrUndefinedOutput with errors.Is.
type UndefinedOutputError struct {
	Variables []string
}

func (e *UndefinedOutputError) Error() string {
	return ErrUndefinedOutput.Error() + ": no rule fired for " + strings.Join(e.Variables, ", ")
}

func (e *UndefinedOutputError) Unwrap() error {
	return ErrUndefinedOutput
}
