package framework

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies wallet errors so the http boundary can map them to a status and a title
type Kind string

const (
	Communication           Kind = "CommunicationError"
	Deserialization         Kind = "DeserializationError"
	Serialization           Kind = "SerializationError"
	MalformedJWT            Kind = "MalformedJwtError"
	NotFound                Kind = "NotFoundError"
	InvalidPin              Kind = "InvalidPinError"
	UnsupportedResponseType Kind = "UnsupportedResponseTypeError"
	CredentialNotAvailable  Kind = "CredentialNotAvailableError"
	Conflict                Kind = "ConflictError"
	Internal                Kind = "InternalError"
)

// Error is a classified error. Msg is safe to return to a caller; the wrapped cause is only logged.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error without a cause
func NewError(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// NewErrorf creates a classified error with a formatted message
func NewErrorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError classifies err. A nil err stays nil.
func WrapError(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the safe message of the outermost classified error in the chain.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

// IsKind reports whether err is classified as the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
