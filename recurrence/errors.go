package recurrence

import (
	"errors"
)

// Errors
var (
	ErrMalformedRule           = errors.New("malformed recurrence rule")
	ErrMissingFrequency        = errors.New("missing frequency")
	ErrMalformedInterval       = errors.New("malformed interval")
	ErrMalformedTimestamp      = errors.New("malformed timestamp")
	ErrInvalidFieldCombination = errors.New("invalid field combination")
	ErrOutOfRangeField         = errors.New("field out of range")
	ErrUntilBeforeStart        = errors.New("until precedes event start")
)

// ParseError describes why a rule string or a rule value was rejected.
// It unwraps to Kind and, for every kind, to ErrMalformedRule.
type ParseError struct {
	Kind   error
	Key    string // offending field, empty when the rule as a whole is bad
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	msg := e.Kind.Error()
	if e.Key != "" {
		msg += ": " + e.Key
		if e.Value != "" {
			msg += "=" + e.Value
		}
	} else if e.Value != "" {
		msg += ": " + e.Value
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Kind == ErrMalformedRule {
		return []error{ErrMalformedRule}
	}
	return []error{e.Kind, ErrMalformedRule}
}

// malformed returns a parse error which unwraps to ErrMalformedRule only.
func malformed(key, value, reason string) error {
	return &ParseError{Kind: ErrMalformedRule, Key: key, Value: value, Reason: reason}
}

// combination returns a parse error which unwraps to
// ErrInvalidFieldCombination.
func combination(key, reason string) error {
	return &ParseError{Kind: ErrInvalidFieldCombination, Key: key, Reason: reason}
}

// outOfRange returns a parse error which unwraps to ErrOutOfRangeField.
func outOfRange(key, value, reason string) error {
	return &ParseError{Kind: ErrOutOfRangeField, Key: key, Value: value, Reason: reason}
}
