// Package fault defines the error taxonomy shared by domain services and the
// transport layer.
package fault

import "github.com/go-faster/errors"

// Kind classifies a domain error independently of where it was raised.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindUnauthorized
	KindForbidden
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "internal"
	}
}

// Error is a classified error, usually declared as a package-level sentinel.
type Error struct {
	kind Kind
	msg  string
}

// New returns a new classified error.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

// Classified is implemented by errors that carry a Kind, including typed
// domain errors that hold extra context.
type Classified interface {
	error
	Kind() Kind
}

// KindOf returns the Kind of the first classified error in err's chain, or
// KindInternal if there is none.
func KindOf(err error) Kind {
	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	return KindInternal
}

// Message returns the message of the first classified error in err's chain,
// without the wrapping context added on the way up. Unclassified errors
// yield a generic message so internals are not leaked to clients.
func Message(err error) string {
	var c Classified
	if errors.As(err, &c) {
		return c.Error()
	}
	return "internal error"
}
