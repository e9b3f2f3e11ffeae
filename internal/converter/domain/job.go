package domain

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// DeliveryMode selects how converted bytes reach the caller
type DeliveryMode string

const (
	// DeliveryBuffered writes the artifact to a temp file, then streams the file
	DeliveryBuffered DeliveryMode = "buffered"
	// DeliveryDirect pipes converter stdout straight to the caller
	DeliveryDirect DeliveryMode = "direct"
)

// ParseDeliveryMode parses a configured delivery mode. Empty means buffered.
func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(DeliveryBuffered):
		return DeliveryBuffered, nil
	case string(DeliveryDirect):
		return DeliveryDirect, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q", s)
	}
}

// Request is the raw caller input before validation
type Request struct {
	SourceReference string
	OutputKind      string
}

// JobSpec is the validated, immutable description of one conversion
type JobSpec struct {
	ID              string
	SourceReference string
	Kind            OutputKind
	Mode            DeliveryMode
}

// Validate turns a raw request into a JobSpec.
// Every failure is a KindValidation error and happens before any side effect.
func Validate(req Request, mode DeliveryMode) (*JobSpec, error) {
	source := strings.TrimSpace(req.SourceReference)
	kindName := strings.TrimSpace(req.OutputKind)

	if source == "" {
		return nil, NewError(KindValidation, "validate", fmt.Errorf("%w: sourceReference", ErrMissingField))
	}
	if kindName == "" {
		return nil, NewError(KindValidation, "validate", fmt.Errorf("%w: outputKind", ErrMissingField))
	}

	kind, ok := LookupKind(kindName)
	if !ok {
		return nil, NewError(KindValidation, "validate", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedKind, kindName, strings.Join(KindNames(), ", ")))
	}

	if err := checkLocator(source); err != nil {
		return nil, NewError(KindValidation, "validate", err)
	}

	if mode == "" {
		mode = DeliveryBuffered
	}

	return &JobSpec{
		ID:              uuid.NewString(),
		SourceReference: source,
		Kind:            kind,
		Mode:            mode,
	}, nil
}

func checkLocator(source string) error {
	u, err := url.ParseRequestURI(source)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", ErrInvalidSource, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidSource)
	}
	return nil
}

// Executable is the on-disk state of the converter binary
type Executable struct {
	Path      string
	Verified  bool
	SizeBytes int64
}

// ExecutionResult describes a finished converter run
type ExecutionResult struct {
	ExitCode   int
	StderrTail []string
	// OutputPath is set in buffered mode only
	OutputPath string
	SizeBytes  int64
}
