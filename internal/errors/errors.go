package errors

import (
	"errors"
	"fmt"
)

// Exit codes for forage-preview
const (
	ExitSuccess           = 0
	ExitGeneralError      = 1
	ExitNotFound          = 2
	ExitAccessDenied      = 3
	ExitRateLimited       = 4
	ExitFetchFailed       = 5
	ExitConversionFailed  = 6
	ExitMountFailed       = 7
	ExitInstallFailed     = 8
	ExitServerStartFailed = 9
	ExitSaveFailed        = 10
	ExitConfigError       = 11
)

// Sentinel causes reported by the repository host. Callers match them with Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
	ErrRateLimited  = errors.New("rate limited")
)

// ForageError is the base error type for forage-preview
type ForageError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ForageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ForageError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the exit code for this error
func (e *ForageError) ExitCode() int {
	return e.Code
}

// New creates a new ForageError
func New(code int, message string) *ForageError {
	return &ForageError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a ForageError
func Wrap(code int, message string, cause error) *ForageError {
	return &ForageError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Common error constructors

// NotFound returns an error for a repository or path the host does not know.
func NotFound(ref string) *ForageError {
	return Wrap(ExitNotFound, fmt.Sprintf("repository not found: %s", ref), ErrNotFound)
}

// AccessDenied returns an error for a repository the credentials cannot read.
func AccessDenied(ref string) *ForageError {
	return Wrap(ExitAccessDenied, fmt.Sprintf("access denied to repository: %s", ref), ErrAccessDenied)
}

// RateLimited returns an error for an exhausted host quota.
func RateLimited(cause error) *ForageError {
	if cause == nil {
		cause = ErrRateLimited
	}
	return Wrap(ExitRateLimited, "repository host rate limit exceeded", cause)
}

// FetchError returns an error for a failed listing or content read of path.
func FetchError(path string, cause error) *ForageError {
	return Wrap(ExitFetchFailed, fmt.Sprintf("fetch %q failed", path), cause)
}

// ConversionError returns an error for a tree that cannot become a manifest.
func ConversionError(path string, message string) *ForageError {
	return New(ExitConversionFailed, fmt.Sprintf("convert %q: %s", path, message))
}

// MountError returns an error for a manifest entry the sandbox rejected.
func MountError(path string, cause error) *ForageError {
	return Wrap(ExitMountFailed, fmt.Sprintf("mount %q failed", path), cause)
}

// InstallError returns an error for a dependency install that exited non-zero.
func InstallError(exitCode int) *ForageError {
	return New(ExitInstallFailed, fmt.Sprintf("dependency install exited with code %d", exitCode))
}

// ServerStartError returns an error for a dev server that could not start.
func ServerStartError(message string, cause error) *ForageError {
	return Wrap(ExitServerStartFailed, message, cause)
}

// SaveError returns an error for a failed write back into the sandbox.
func SaveError(path string, cause error) *ForageError {
	return Wrap(ExitSaveFailed, fmt.Sprintf("save %q failed", path), cause)
}

// ConfigError returns an error for configuration issues
func ConfigError(message string, cause error) *ForageError {
	return Wrap(ExitConfigError, message, cause)
}

// ValidationError returns an error for input validation failures
func ValidationError(message string) *ForageError {
	return New(ExitGeneralError, message)
}

// GetExitCode extracts the exit code from an error
func GetExitCode(err error) int {
	var forageErr *ForageError
	if errors.As(err, &forageErr) {
		return forageErr.ExitCode()
	}
	return ExitGeneralError
}

// HasCode reports whether any ForageError in err's chain carries code.
func HasCode(err error, code int) bool {
	for err != nil {
		var forageErr *ForageError
		if !errors.As(err, &forageErr) {
			return false
		}
		if forageErr.Code == code {
			return true
		}
		err = forageErr.Cause
	}
	return false
}

// Is checks if an error is of a specific type
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
