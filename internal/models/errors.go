package models

import (
	"fmt"
	"strings"
	"time"
)

// ReflectionErrorKind enumerates the known failures of the reflection operation.
type ReflectionErrorKind string

// Reflection error kinds
const (
	ErrConfigInvalid        ReflectionErrorKind = "CONFIG_INVALID"
	ErrDataCollectionFailed ReflectionErrorKind = "DATA_COLLECTION_FAILED"
	ErrPageCreationFailed   ReflectionErrorKind = "PAGE_CREATION_FAILED"
)

// ReflectionError is an expected failure of the reflection operation. Only
// the fields relevant to Kind are set.
type ReflectionError struct {
	Kind          ReflectionErrorKind
	MissingFields []string // CONFIG_INVALID
	Source        string   // DATA_COLLECTION_FAILED
	Message       string
	LocalFilePath string // PAGE_CREATION_FAILED, when a local copy was saved
	Err           error
}

// NewConfigInvalid reports missing configuration fields.
func NewConfigInvalid(missing ...string) *ReflectionError {
	return &ReflectionError{Kind: ErrConfigInvalid, MissingFields: missing}
}

// NewDataCollectionFailed reports a failing data source.
func NewDataCollectionFailed(source string, err error) *ReflectionError {
	return &ReflectionError{Kind: ErrDataCollectionFailed, Source: source, Message: errMessage(err), Err: err}
}

// NewPageCreationFailed reports a failure to publish the report page.
func NewPageCreationFailed(err error, localFilePath string) *ReflectionError {
	return &ReflectionError{Kind: ErrPageCreationFailed, Message: errMessage(err), LocalFilePath: localFilePath, Err: err}
}

// Error returns the user-facing message for the error kind.
func (e *ReflectionError) Error() string {
	switch e.Kind {
	case ErrConfigInvalid:
		return fmt.Sprintf("missing configuration fields: [%s]", strings.Join(e.MissingFields, ", "))
	case ErrDataCollectionFailed:
		return fmt.Sprintf("data collection failed (%s): %s", e.Source, e.Message)
	case ErrPageCreationFailed:
		return fmt.Sprintf("page creation failed: %s", e.Message)
	default:
		return fmt.Sprintf("reflection failed: %s", e.Message)
	}
}

// Unwrap returns the underlying error, if any.
func (e *ReflectionError) Unwrap() error {
	return e.Err
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ScheduleErrorKind enumerates schedule registration failures.
type ScheduleErrorKind string

// Schedule error kinds
const (
	ErrInvalidCronExpression ScheduleErrorKind = "INVALID_CRON_EXPRESSION"
	ErrAlreadyRegistered     ScheduleErrorKind = "ALREADY_REGISTERED"
	ErrNotRegistered         ScheduleErrorKind = "NOT_REGISTERED"
	ErrPlatformNotSupported  ScheduleErrorKind = "PLATFORM_NOT_SUPPORTED"
	ErrPermissionDenied      ScheduleErrorKind = "PERMISSION_DENIED"
	ErrExecutionFailed       ScheduleErrorKind = "EXECUTION_FAILED"
)

// ScheduleError is an expected failure of the schedule registration port.
type ScheduleError struct {
	Kind       ScheduleErrorKind
	Expression string // INVALID_CRON_EXPRESSION
	Existing   string // ALREADY_REGISTERED
	Platform   string // PLATFORM_NOT_SUPPORTED
	Path       string // PERMISSION_DENIED
	Message    string // EXECUTION_FAILED
	Err        error
}

// Error implements error. User-facing wording lives in the command layer.
func (e *ScheduleError) Error() string {
	switch e.Kind {
	case ErrInvalidCronExpression:
		return fmt.Sprintf("%s: %q", e.Kind, e.Expression)
	case ErrAlreadyRegistered:
		return fmt.Sprintf("%s: %q", e.Kind, e.Existing)
	case ErrPlatformNotSupported:
		return fmt.Sprintf("%s: %s", e.Kind, e.Platform)
	case ErrPermissionDenied:
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	case ErrExecutionFailed:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying error, if any.
func (e *ScheduleError) Unwrap() error {
	return e.Err
}

// Registration is returned by a successful schedule registration.
type Registration struct {
	CronExpression string
	NextExecution  time.Time
	ConfigPath     string
}

// ScheduleStatus describes the current registration.
type ScheduleStatus struct {
	Registered     bool
	CronExpression string
	NextExecution  *time.Time
	LastExecution  *time.Time
}
