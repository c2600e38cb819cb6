// Package errors provides standardized error types and helpers for the reader core.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the reader's failure taxonomy.
var (
	// ErrFileNotFound indicates an empty input or a missing container.
	ErrFileNotFound = errors.New("file not found")
	// ErrUnsupportedFormat indicates that no codec claims the file.
	ErrUnsupportedFormat = errors.New("file type not supported")
	// ErrMalformedLocation indicates a location string that fails structural parsing.
	ErrMalformedLocation = errors.New("malformed annotation location")
	// ErrEnumeration indicates that an archive or directory listing failed.
	ErrEnumeration = errors.New("enumeration failed")
	// ErrDecode indicates a per-entry decompression or text-decode failure.
	ErrDecode = errors.New("decode failed")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
)

// NotFoundError represents a missing resource with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "file", "entry", "annotation")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrFileNotFound
}

// Is reports NotFoundError as ErrFileNotFound even when it carries a cause.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrFileNotFound
}

// UnsupportedError represents a file no codec claims.
type UnsupportedError struct {
	Name   string // File name or media type
	Reason string // Why it's not supported
	Err    error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported format %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("unsupported format %s", e.Name)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupportedFormat
}

// Is reports UnsupportedError as ErrUnsupportedFormat even when it carries a cause.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// ParseError represents a location or document that failed to parse.
type ParseError struct {
	Format  string // What was being parsed (e.g., "CFI", "OPF")
	Input   string // Offending input, if short enough to be useful
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("failed to parse %s %q: %s", e.Format, e.Input, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformedLocation
}

// EnumerationError represents a failed archive or directory listing.
type EnumerationError struct {
	Source string // Archive path or directory root
	Err    error  // Underlying error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("failed to enumerate %s: %v", e.Source, e.Err)
}

func (e *EnumerationError) Unwrap() []error {
	return []error{ErrEnumeration, e.Err}
}

// DecodeError represents a failure to decompress or decode one entry.
type DecodeError struct {
	Name string // Entry name
	Err  error  // Underlying error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(name, reason string) *UnsupportedError {
	return &UnsupportedError{
		Name:   name,
		Reason: reason,
	}
}

// NewParse creates a ParseError
func NewParse(format, input, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Input:   input,
		Message: message,
	}
}

// NewEnumeration creates an EnumerationError
func NewEnumeration(source string, err error) *EnumerationError {
	return &EnumerationError{
		Source: source,
		Err:    err,
	}
}

// NewDecode creates a DecodeError
func NewDecode(name string, err error) *DecodeError {
	return &DecodeError{
		Name: name,
		Err:  err,
	}
}

// New wraps errors.New for convenience
func New(text string) error {
	return errors.New(text)
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join wraps errors.Join for convenience
func Join(errs ...error) error {
	return errors.Join(errs...)
}
