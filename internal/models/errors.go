package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrFormat ErrorType = iota
	ErrIntegrity
	ErrValidation
	ErrSigning
	ErrFileOp
	ErrInvalidConfig
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrFormat:
		return "Format"
	case ErrIntegrity:
		return "Integrity"
	case ErrValidation:
		return "Validation"
	case ErrSigning:
		return "Signing"
	case ErrFileOp:
		return "FileOp"
	case ErrInvalidConfig:
		return "InvalidConfig"
	default:
		return "Unknown"
	}
}

// Format errors
var (
	ErrTruncatedStream       = errors.New("truncated stream")
	ErrBadCompression        = errors.New("bad compression")
	ErrSegmentOrderViolation = errors.New("segment order violation")
	ErrTrailingData          = errors.New("trailing data after final segment")
	ErrMissingControlSegment = errors.New("missing control segment")
	ErrMissingDataSegment    = errors.New("missing data segment")
	ErrMalformedIndex        = errors.New("malformed index")
	ErrDuplicateKey          = errors.New("duplicate index key")
	ErrMalformedVersion      = errors.New("malformed version")
	ErrUnsupportedFormat     = errors.New("unsupported index format")
)

// Integrity errors
var (
	ErrDataChecksumMismatch  = errors.New("data checksum mismatch")
	ErrControlDigestMismatch = errors.New("control digest mismatch")
	ErrSignatureInvalid      = errors.New("signature invalid")
	ErrNoMatchingKey         = errors.New("no matching trusted key")
)

// Validation errors
var (
	ErrMissingField            = errors.New("missing field")
	ErrInvalidDependencySyntax = errors.New("invalid dependency syntax")
	ErrEmptyDataSet            = errors.New("empty data set")
	ErrInvalidMetadata         = errors.New("invalid metadata")
	ErrInvalidFile             = errors.New("invalid file entry")
)

var categories = map[error]ErrorType{
	ErrTruncatedStream:         ErrFormat,
	ErrBadCompression:          ErrFormat,
	ErrSegmentOrderViolation:   ErrFormat,
	ErrTrailingData:            ErrFormat,
	ErrMissingControlSegment:   ErrFormat,
	ErrMissingDataSegment:      ErrFormat,
	ErrMalformedIndex:          ErrFormat,
	ErrDuplicateKey:            ErrFormat,
	ErrMalformedVersion:        ErrFormat,
	ErrUnsupportedFormat:       ErrFormat,
	ErrDataChecksumMismatch:    ErrIntegrity,
	ErrControlDigestMismatch:   ErrIntegrity,
	ErrSignatureInvalid:        ErrIntegrity,
	ErrNoMatchingKey:           ErrIntegrity,
	ErrMissingField:            ErrValidation,
	ErrInvalidDependencySyntax: ErrValidation,
	ErrEmptyDataSet:            ErrValidation,
	ErrInvalidMetadata:         ErrValidation,
	ErrInvalidFile:             ErrValidation,
}

// PackageError represents an error while handling a single package or index.
// Segment and Offset locate format errors inside a container; Field names the
// offending metadata field.
type PackageError struct {
	Type    ErrorType
	Package string
	Segment string
	Offset  int64
	Field   string
	Err     error
}

// Error implements the error interface
func (e *PackageError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Type)
	if e.Package != "" {
		fmt.Fprintf(&b, " %s:", e.Package)
	}
	if e.Segment != "" {
		fmt.Fprintf(&b, " %s segment at offset %d:", e.Segment, e.Offset)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q:", e.Field)
	}
	fmt.Fprintf(&b, " %v", e.Err)
	return b.String()
}

// Unwrap returns the wrapped error
func (e *PackageError) Unwrap() error {
	return e.Err
}

// NewError wraps err, deriving the error category from the sentinel it wraps.
func NewError(err error) *PackageError {
	return &PackageError{Type: Classify(err), Err: err}
}

// Errorf builds a PackageError around sentinel with a formatted detail message.
func Errorf(sentinel error, format string, args ...any) *PackageError {
	return &PackageError{
		Type: Classify(sentinel),
		Err:  fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}

// MissingField reports that a mandatory metadata field is absent.
func MissingField(field string) *PackageError {
	return &PackageError{
		Type:  ErrValidation,
		Field: field,
		Err:   ErrMissingField,
	}
}

// Classify returns the category of err. Errors that do not wrap any known
// sentinel are reported as file operation errors.
func Classify(err error) ErrorType {
	var pe *PackageError
	if errors.As(err, &pe) {
		return pe.Type
	}
	for sentinel, t := range categories {
		if errors.Is(err, sentinel) {
			return t
		}
	}
	return ErrFileOp
}

// ItemFailure records why one item of a batch operation was rejected.
type ItemFailure struct {
	Item string
	Err  error
}

// Error implements the error interface
func (f ItemFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Item, f.Err)
}
