package web

// errors.go maps errors to HTTP responses.
//
// The technical error is logged with the request ID; the client gets the
// user message from core.MapError and its support code.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/nvdsync/internal/core"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

// badRequestCode is the support code for malformed requests.
const badRequestCode = "REQ001"

// newErrorResponse builds the client-facing body for err.
func newErrorResponse(err error) ErrorResponse {
	if errors.Is(err, errBadRequest) {
		return ErrorResponse{
			Error:   err.Error(),
			Message: err.Error(),
			Action:  "Check the request parameters.",
			Code:    badRequestCode,
		}
	}
	msg := core.MapError(err)
	return ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnknownTable), errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManySyncs):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrPersistenceDisabled):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case core.IsFetchError(err), core.IsMappingError(err), errors.Is(err, core.ErrMalformedFeed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes its JSON error response.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := newErrorResponse(err)
	logError(r, err, status, body.Code)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, body)
}

func logError(r *http.Request, err error, status int, code string) {
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", code,
		"request_id", middleware.GetReqID(r.Context()),
	)
}

// requestError is a validation failure whose message is safe to return.
type requestError struct{ msg string }

func (e *requestError) Error() string        { return e.msg }
func (e *requestError) Is(target error) bool { return target == errBadRequest }

// badRequest builds a validation error that statusFor maps to 400.
func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}
