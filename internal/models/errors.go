package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	// ErrFormat means the input is not a well-formed instance of its declared format
	ErrFormat ErrorType = iota
	// ErrUnsupportedFeature means the input is well-formed but uses a construct that is not modelled
	ErrUnsupportedFeature
	// ErrEncoding means canonical data cannot be legally expressed in the target format
	ErrEncoding
	// ErrIO covers staging and archive I/O failures
	ErrIO
	ErrInvalidConfig
	ErrSigning
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrFormat:
		return "Format"
	case ErrUnsupportedFeature:
		return "UnsupportedFeature"
	case ErrEncoding:
		return "Encoding"
	case ErrIO:
		return "IO"
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrSigning:
		return "Signing"
	default:
		return "Unknown"
	}
}

// ConversionError represents an error during package conversion.
// Field and Offset locate the problem in the input when known; Offset is -1 otherwise.
type ConversionError struct {
	Type    ErrorType
	Package string
	Field   string
	Offset  int64
	Err     error
}

// Error implements the error interface
func (e *ConversionError) Error() string {
	loc := ""
	if e.Field != "" {
		loc = " " + e.Field
	}
	if e.Offset >= 0 {
		loc += fmt.Sprintf(" (offset %d)", e.Offset)
	}
	if e.Package != "" {
		return fmt.Sprintf("[%s] %s%s: %v", e.Type, e.Package, loc, e.Err)
	}
	if loc != "" {
		return fmt.Sprintf("[%s]%s: %v", e.Type, loc, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *ConversionError) Unwrap() error {
	return e.Err
}

// NewFormatError reports malformed input. Pass offset -1 when the position is unknown.
func NewFormatError(field string, offset int64, err error) *ConversionError {
	return &ConversionError{Type: ErrFormat, Field: field, Offset: offset, Err: err}
}

// NewUnsupportedError reports a well-formed construct that cannot be converted.
func NewUnsupportedError(feature string) *ConversionError {
	return &ConversionError{
		Type:   ErrUnsupportedFeature,
		Field:  feature,
		Offset: -1,
		Err:    fmt.Errorf("%s is not supported", feature),
	}
}

// NewEncodingError reports a field that cannot be expressed in the target format.
func NewEncodingError(field string, err error) *ConversionError {
	return &ConversionError{Type: ErrEncoding, Field: field, Offset: -1, Err: err}
}

// NewIOError wraps a filesystem or archive failure.
func NewIOError(op string, err error) *ConversionError {
	return &ConversionError{Type: ErrIO, Offset: -1, Err: fmt.Errorf("%s: %w", op, err)}
}

// IsErrorType reports whether err carries a ConversionError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}

// WithPackage tags err with the package it relates to, if it is a ConversionError
// that does not name one yet. Other errors are returned unchanged.
func WithPackage(err error, name string) error {
	var ce *ConversionError
	if errors.As(err, &ce) && ce.Package == "" {
		ce.Package = name
	}
	return err
}
