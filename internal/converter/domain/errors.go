package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure by the stage that produced it
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindProvisioning
	KindExecution
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProvisioning:
		return "provisioning"
	case KindExecution:
		return "execution"
	case KindDelivery:
		return "delivery"
	default:
		return "unknown"
	}
}

var (
	// ErrMissingField is returned when sourceReference or outputKind is absent
	ErrMissingField = errors.New("missing required field")

	// ErrUnsupportedKind is returned for an outputKind outside the kinds table
	ErrUnsupportedKind = errors.New("unsupported output kind")

	// ErrInvalidSource is returned when the source reference is not a well-formed http(s) URL
	ErrInvalidSource = errors.New("invalid source reference")

	// ErrTooManyRedirects is returned when the executable download exceeds the redirect bound
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrInvalidArtifact is returned when a downloaded executable fails integrity checks
	ErrInvalidArtifact = errors.New("downloaded executable failed validation")

	// ErrArtifactMissing is returned when the converter exits cleanly but produced nothing
	ErrArtifactMissing = errors.New("converter reported success but produced no output")

	// ErrTimeout is returned when a conversion exceeds the configured job timeout
	ErrTimeout = errors.New("conversion timed out")

	// ErrCanceled is returned when the caller went away before the job finished
	ErrCanceled = errors.New("conversion canceled by caller")
)

// Error carries the failure kind and the operation that failed
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with a kind. A nil err yields nil.
func NewError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// DownloadFailedError reports a non-2xx final response from the distribution endpoint
type DownloadFailedError struct {
	StatusCode int
}

func (e *DownloadFailedError) Error() string {
	return fmt.Sprintf("download failed with status %d", e.StatusCode)
}

// ConversionFailedError reports a non-zero converter exit
type ConversionFailedError struct {
	ExitCode       int
	DiagnosticTail []string
}

func (e *ConversionFailedError) Error() string {
	msg := fmt.Sprintf("converter exited with code %d", e.ExitCode)
	if last := e.LastDiagnostic(); last != "" {
		msg += ": " + last
	}
	return msg
}

// LastDiagnostic returns the most recent non-empty stderr line
func (e *ConversionFailedError) LastDiagnostic() string {
	for i := len(e.DiagnosticTail) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(e.DiagnosticTail[i]); line != "" {
			return line
		}
	}
	return ""
}

// KindOf returns the failure kind recorded in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps an error onto the response status used by the API
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
