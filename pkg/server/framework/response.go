package framework

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	svcframework "github.com/tbd54566975/wallet-service/pkg/service/framework"
)

// Respond converts a Go value to JSON and sends it to the client.
func Respond(c *gin.Context, data any, statusCode int) error {
	// if there's no payload to marshal, set the status code of the response and return
	if statusCode == http.StatusNoContent || data == nil {
		c.Status(statusCode)
		return nil
	}
	c.JSON(statusCode, data)
	return nil
}

// RespondError sends an error response back to the client and returns the error for logging.
// A SafeError is answered with its own status, title and fields. A classified service error is answered with the
// status of its kind and its safe message. Anything else becomes a generic 500.
func RespondError(c *gin.Context, err error) error {
	response := ErrorResponse{Path: c.Request.URL.Path}
	status := http.StatusInternalServerError

	var safeErr *SafeError
	var kindErr *svcframework.Error
	switch {
	case errors.As(err, &safeErr):
		status = safeErr.StatusCode
		response.Title = safeErr.Title
		response.Message = safeErr.Err.Error()
		response.Fields = safeErr.Fields
	case errors.As(err, &kindErr):
		status = StatusForKind(kindErr.Kind)
		response.Title = string(kindErr.Kind)
		response.Message = kindErr.Msg
	default:
		response.Title = string(svcframework.Internal)
		response.Message = http.StatusText(http.StatusInternalServerError)
	}

	c.AbortWithStatusJSON(status, response)
	return err
}

// LoggingRespondErrWithMsg logs the error and responds with it. Errors that are neither safe nor classified are
// answered with the message and status given, never with their own text.
func LoggingRespondErrWithMsg(c *gin.Context, err error, msg string, statusCode int) error {
	logrus.WithError(err).Error(msg)
	var safeErr *SafeError
	var kindErr *svcframework.Error
	if errors.As(err, &safeErr) || errors.As(err, &kindErr) {
		return RespondError(c, err)
	}
	return RespondError(c, &SafeError{Err: errors.New(msg), Title: http.StatusText(statusCode), StatusCode: statusCode})
}

// LoggingRespondErrMsg logs and responds with a new request error carrying the message and status
func LoggingRespondErrMsg(c *gin.Context, msg string, statusCode int) error {
	logrus.Error(msg)
	return RespondError(c, NewRequestErrorMsg(msg, statusCode))
}
