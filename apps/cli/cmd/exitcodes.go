package cmd

import (
	"errors"

	"github.com/abdul-hamid-achik/reqx/packages/output"
)

// Exit codes for the reqx CLI. They are part of the CI contract and must not
// change.
const (
	// ExitSuccess indicates all requests passed
	ExitSuccess = output.ExitPass

	// ExitAssertionFailure indicates at least one assertion failed
	ExitAssertionFailure = output.ExitAssertionFailure

	// ExitExecutionError indicates a network, timeout or templating error
	ExitExecutionError = output.ExitExecutionError

	// ExitParseError indicates a request file could not be parsed
	ExitParseError = output.ExitParseError

	// ExitConfigError indicates the environment or CLI configuration is
	// invalid. Nothing was sent.
	ExitConfigError = output.ExitConfigError
)

// ExitError carries a process exit code out of a command. Err may be nil when
// the command already reported everything it had to say.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitWith(code int) error {
	if code == ExitSuccess {
		return nil
	}
	return &ExitError{Code: code}
}

// exitCode maps a command error to the process exit code. Errors that carry
// no code are configuration problems: bad flags, missing files, invalid
// config.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitConfigError
}
