// Package errors provides typed errors with exit codes for forage-preview.
//
// # Error Types
//
// ForageError is the base error type that wraps an error with an exit code:
//
//	type ForageError struct {
//	    Code    int    // Exit code
//	    Message string // User-facing message
//	    Cause   error  // Wrapped error
//	}
//
// # Exit Codes
//
// Defined exit codes for different error categories:
//
//	ExitSuccess           = 0  // Success
//	ExitGeneralError      = 1  // General/unknown errors
//	ExitNotFound          = 2  // Repository or path does not exist
//	ExitAccessDenied      = 3  // Credentials cannot read the repository
//	ExitRateLimited       = 4  // Host quota exhausted
//	ExitFetchFailed       = 5  // Listing or content read failed
//	ExitConversionFailed  = 6  // Tree could not become a manifest
//	ExitMountFailed       = 7  // Sandbox rejected a manifest entry
//	ExitInstallFailed     = 8  // Dependency install exited non-zero
//	ExitServerStartFailed = 9  // Dev server could not be spawned
//	ExitSaveFailed        = 10 // Write back into the sandbox failed
//	ExitConfigError       = 11 // Configuration error
//
// # Sentinels
//
// ErrNotFound, ErrAccessDenied and ErrRateLimited classify host failures.
// The remote package wraps them so callers can branch with Is regardless
// of how many layers of ForageError sit on top.
//
// # Error Constructors
//
// Use the provided constructors for consistent error creation:
//
//	errors.FetchError("src/index.js", err)
//	errors.ConversionError("bad:dir", "empty directory name")
//	errors.InstallError(1)
//	errors.SaveError("app/page.tsx", err)
//
// # Extracting Exit Codes
//
// Use GetExitCode to extract the exit code from an error chain:
//
//	if err != nil {
//	    os.Exit(errors.GetExitCode(err))
//	}
package errors
