package framework

import (
	"net/http"

	"github.com/pkg/errors"

	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
)

// FieldError is used to indicate an error with a field in a request payload.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ErrorResponse is the structure of error payloads sent back to the requester
type ErrorResponse struct {
	Title   string       `json:"title"`
	Message string       `json:"message"`
	Path    string       `json:"path"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// SafeError is used to pass an error during the request through the server with
// web specific context. 'Safe' here means that the error messages do not include
// any sensitive information and can be sent straight back to the requester
type SafeError struct {
	Err        error
	Title      string
	StatusCode int
	Fields     []FieldError
}

// SafeError implements the `error` interface. It uses the default message of the
// wrapped error. This is what will be shown in a server's logs
func (err *SafeError) Error() string {
	return err.Err.Error()
}

// NewRequestError wraps a provided error with an HTTP status code. This function should be used
// when router encounter expected errors.
func NewRequestError(err error, statusCode int) error {
	return &SafeError{Err: err, Title: http.StatusText(statusCode), StatusCode: statusCode}
}

// NewRequestErrorMsg is NewRequestError with a plain message
func NewRequestErrorMsg(msg string, statusCode int) error {
	return NewRequestError(errors.New(msg), statusCode)
}

var kindStatuses = map[svcframework.Kind]int{
	svcframework.Communication:           http.StatusBadGateway,
	svcframework.Deserialization:         http.StatusBadRequest,
	svcframework.Serialization:           http.StatusInternalServerError,
	svcframework.MalformedJWT:            http.StatusBadRequest,
	svcframework.NotFound:                http.StatusNotFound,
	svcframework.InvalidPin:              http.StatusUnauthorized,
	svcframework.UnsupportedResponseType: http.StatusBadRequest,
	svcframework.CredentialNotAvailable:  http.StatusAccepted,
	svcframework.Conflict:                http.StatusConflict,
	svcframework.Internal:                http.StatusInternalServerError,
}

// StatusForKind maps an error kind to the status it is answered with
func StatusForKind(kind svcframework.Kind) int {
	if status, ok := kindStatuses[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// shutdown is a type used to help with graceful shutdown of a server.
type shutdown struct {
	Message string
}

// shutdown implements the Error interface
func (s *shutdown) Error() string {
	return s.Message
}

// NewShutdownError returns an error that causes the framework to signal.
// a graceful shutdown
func NewShutdownError(message string) error {
	return &shutdown{message}
}

// IsShutdown checks to see if the shutdown error is contained in
// the given error value.
func IsShutdown(err error) bool {
	var shutdownErr *shutdown
	return errors.As(errors.Cause(err), &shutdownErr)
}
