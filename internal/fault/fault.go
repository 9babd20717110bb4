// Package fault classifies request failures so transports can map them to
// status codes without inspecting messages.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	// KindUnknown is reported for errors that were never classified.
	KindUnknown Kind = iota
	// KindInput is the caller's fault: missing text, no resolvable voice,
	// unreadable reference audio.
	KindInput
	// KindInvocation is a failure inside the synthesis or transcription call.
	KindInvocation
	// KindEncoding is a failure serializing the resulting waveform.
	KindEncoding
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindInvocation:
		return "invocation"
	case KindEncoding:
		return "encoding"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func Input(op string, format string, args ...any) error {
	return &Error{Kind: KindInput, Op: op, Err: fmt.Errorf(format, args...)}
}

func Invocation(op string, err error) error {
	return &Error{Kind: KindInvocation, Op: op, Err: err}
}

func Encoding(op string, err error) error {
	return &Error{Kind: KindEncoding, Op: op, Err: err}
}

// KindOf returns the Kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

func IsInput(err error) bool { return KindOf(err) == KindInput }

// HTTPStatus maps err to a response status. Unclassified errors are 500s.
func HTTPStatus(err error) int {
	if KindOf(err) == KindInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
