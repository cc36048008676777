package executor

import "fmt"

// graceful.go holds nil-safe logging helpers for paths that report problems
// but must not fail the attempt.

// gracefulWarn logs a warning if logger is non-nil.
func gracefulWarn(logger Logger, format string, args ...interface{}) {
	if logger != nil {
		logger.LogWarn(fmt.Sprintf(format, args...))
	}
}

// gracefulError logs an error if logger is non-nil.
// Companion to gracefulWarn for consistent logger nil-checking.
func gracefulError(logger Logger, format string, args ...interface{}) {
	if logger != nil {
		logger.LogError(fmt.Sprintf(format, args...))
	}
}
