// Package response renders JSON bodies and maps service errors to HTTP
// status codes.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fixhub/fixhub/internal/orm/crud"
	"github.com/fixhub/fixhub/internal/orm/validation"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Data writes {"data": v}
func Data(w http.ResponseWriter, status int, v interface{}) {
	JSON(w, status, map[string]interface{}{"data": v})
}

// RenderError writes an error body with the given status
func RenderError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, &ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    errorCodeFromStatus(status),
	})
}

// Status maps a service error to an HTTP status code
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, crud.ErrUnknownEntity), errors.Is(err, crud.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, crud.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, crud.ErrForbidden):
		return http.StatusForbidden
	case crud.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, crud.ErrCheckViolation), errors.Is(err, crud.ErrNotNullViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// RenderServiceError renders err with its mapped status. Internal errors are
// logged and replaced by a generic message.
func RenderServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := Status(err)

	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		RenderError(w, status, "Internal server error")
		return
	}

	resp := &ErrorResponse{
		Error:   http.StatusText(status),
		Message: err.Error(),
		Code:    errorCodeFromStatus(status),
	}
	var ve *validation.ValidationErrors
	if errors.As(err, &ve) {
		resp.Code = "validation_error"
		resp.Fields = ve.Fields
	}
	JSON(w, status, resp)
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "internal_error"
	}
}
