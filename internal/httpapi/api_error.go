package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/surge2clash/internal/model"
	"github.com/John-Robertt/surge2clash/internal/render"
	"github.com/John-Robertt/surge2clash/internal/sub/ss"
)

// APIError is used by the HTTP layer for request validation and a few
// HTTP-specific errors.
type APIError struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *APIError) Unwrap() error { return e.Cause }

func apiError(status int, app model.AppError, cause error) error {
	return &APIError{Status: status, AppError: app, Cause: cause}
}

func requestError(code, message, hint string) error {
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    code,
		Message: message,
		Stage:   "validate_request",
		Hint:    hint,
	}, nil)
}

// bodyError classifies a failed body read or decode.
func bodyError(err error, message string) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return apiError(http.StatusRequestEntityTooLarge, model.AppError{
			Code:    "REQUEST_TOO_LARGE",
			Message: "请求体过大",
			Stage:   "validate_request",
			Hint:    fmt.Sprintf("max=%d bytes", mbe.Limit),
		}, err)
	}
	return apiError(http.StatusBadRequest, model.AppError{
		Code:    "INVALID_ARGUMENT",
		Message: message,
		Stage:   "validate_request",
		Hint:    err.Error(),
	}, err)
}

var errTokenNotFound = apiError(http.StatusNotFound, model.AppError{
	Code:    "TOKEN_NOT_FOUND",
	Message: "token 不存在或已过期，请重新生成",
	Stage:   "redeem_token",
}, nil)

func writeErrorFromErr(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var ae *APIError
	if errors.As(err, &ae) {
		WriteError(w, ae.Status, ae.AppError)
		return
	}

	// ss:// lines arrive as query input.
	var se *ss.ParseError
	if errors.As(err, &se) {
		WriteError(w, http.StatusBadRequest, se.AppError)
		return
	}

	// Render errors are user content errors => 422.

	var re *render.RenderError
	if errors.As(err, &re) {
		WriteError(w, http.StatusUnprocessableEntity, re.AppError)
		return
	}

	// Fallback: internal bug.
	logrus.WithError(err).Errorln("unhandled error")
	WriteError(w, http.StatusInternalServerError, model.AppError{
		Code:    "INTERNAL_ERROR",
		Message: "服务端内部错误",
		Stage:   "internal",
		Hint:    err.Error(),
	})
}
