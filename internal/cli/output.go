package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/nvdsync/internal/core"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The operation ran and failed (fetch, mapping, persistence)
	ExitCommandError = 2 // Bad flags, bad configuration, unreachable cache
)

// ExitError is an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is the JSON envelope for --format json.
type Response struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error structure for JSON responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// OutputFormatter writes command results as JSON or text.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Success writes data. In text mode, text renders it.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(Response{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Failure reports err in the configured format and returns it wrapped with
// code. data, when non-nil, is included in the JSON envelope.
func (f *OutputFormatter) Failure(code int, err error, data any) error {
	msg := core.MapError(err)
	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(Response{
			Status: "error",
			Data:   data,
			Error:  &CLIError{Code: msg.Code, Message: msg.Message, Action: msg.Action},
		})
	}
	return WrapExitError(code, msg.Message+" ("+msg.Code+")", err)
}
