package stylize

import (
	"errors"
	"fmt"
)

// Kind classifies a stylization failure by the stage that produced it.
type Kind int

const (
	KindUnknown Kind = iota
	KindModelLoad
	KindValidation
	KindInference
	KindArtifactWrite
)

// String returns the snake_case name used in logs and API responses.
func (k Kind) String() string {
	switch k {
	case KindModelLoad:
		return "model_load"
	case KindValidation:
		return "validation"
	case KindInference:
		return "inference"
	case KindArtifactWrite:
		return "artifact_write"
	default:
		return "unknown"
	}
}

// Kind sentinels. A *Error matches the sentinel of its kind with errors.Is.
var (
	ErrModelLoad     = errors.New("stylize: model load failed")
	ErrValidation    = errors.New("stylize: invalid request")
	ErrInference     = errors.New("stylize: inference failed")
	ErrArtifactWrite = errors.New("stylize: artifact write failed")
)

// Specific causes wrapped inside a *Error.
var (
	ErrStrengthOutOfRange = errors.New("stylize: strength out of range")
	ErrInvalidImage       = errors.New("stylize: invalid image")
	ErrUnknownStyle       = errors.New("stylize: unknown style")
	ErrSessionClosed      = errors.New("stylize: session is closed")
	ErrMalformedOutput    = errors.New("stylize: generator returned malformed output")
	ErrNoLoader           = errors.New("stylize: no generator loader configured")
)

func (k Kind) sentinel() error {
	switch k {
	case KindModelLoad:
		return ErrModelLoad
	case KindValidation:
		return ErrValidation
	case KindInference:
		return ErrInference
	case KindArtifactWrite:
		return ErrArtifactWrite
	default:
		return nil
	}
}

// Error is the single failure type returned by this package.
// Op names the stage that failed (for example "load", "warmup", "blend").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Op)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
