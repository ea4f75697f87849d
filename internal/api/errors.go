package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/rwkvffi/internal/engine"
	"github.com/samcharles93/rwkvffi/internal/runtime"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNoSession      = errors.New("no model loaded")
)

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

func writeBadRequest(c *echo.Context, msg, param string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, param, "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeRuntimeError maps runtime failures to distinct status codes and
// error codes. Anything unrecognised is a server error.
func writeRuntimeError(c *echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return writeBadRequest(c, err.Error(), "")
	case errors.Is(err, ErrNoSession):
		return writeError(c, http.StatusConflict, "session_error", err.Error(), "", "no_session")
	case errors.Is(err, runtime.ErrEmptyInput):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "tokens", "empty_input")
	case errors.Is(err, engine.ErrToken):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "tokens", "token_out_of_range")
	case errors.Is(err, runtime.ErrStateShape):
		return writeError(c, http.StatusBadRequest, "invalid_request_error", err.Error(), "state", "state_shape")
	case errors.Is(err, runtime.ErrNoProgress):
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "no_progress")
	case errors.Is(err, runtime.ErrExecutorClosed):
		return writeError(c, http.StatusServiceUnavailable, "session_error", err.Error(), "", "session_closed")
	}
	return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
}
