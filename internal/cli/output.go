package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rpattn/medallion/internal/domain"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // one or more entities failed
	ExitCommandError = 2 // bad flags, bad configuration, storage unreachable
)

// ExitError carries the process exit code for a failed command.
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

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Configuration errors that
// were not wrapped map to ExitCommandError; anything else to ExitFailure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, domain.ErrConfiguration) {
		return ExitCommandError
	}
	return ExitFailure
}

// printer writes command results as text or JSON.
type printer struct {
	format string
	w      io.Writer
}

func (p printer) json() bool {
	return p.format == "json"
}

func (p printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
