package models

import "time"

// UnexpectedErrorKind classifies faults that are not part of the
// ReflectionError taxonomy.
const UnexpectedErrorKind = "UNEXPECTED_ERROR"

// Outcome is the classified result of one execution attempt. It is either a
// SuccessOutcome or a FailureOutcome.
type Outcome interface {
	Succeeded() bool
	Elapsed() time.Duration
}

// SuccessOutcome records a report that was generated and published.
type SuccessOutcome struct {
	Destination   string        // page URL, or the local path when no page was created
	LocalFilePath string        // set when the report only exists locally
	CommitCount   int           // pull requests collected for the period
	WorkHours     float64       // tracked hours for the period
	Duration      time.Duration // wall time of the attempt
}

// Succeeded implements Outcome.
func (o SuccessOutcome) Succeeded() bool { return true }

// Elapsed implements Outcome.
func (o SuccessOutcome) Elapsed() time.Duration { return o.Duration }

// FailureOutcome records a failed attempt. Known failures carry the
// ReflectionError kind; unexpected failures carry UnexpectedErrorKind and,
// when one could be captured, a stack trace.
type FailureOutcome struct {
	Kind          string
	Message       string
	Stack         string
	LocalFilePath string
	Unexpected    bool
	Duration      time.Duration
}

// Succeeded implements Outcome.
func (o FailureOutcome) Succeeded() bool { return false }

// Elapsed implements Outcome.
func (o FailureOutcome) Elapsed() time.Duration { return o.Duration }

// ExecutionHistoryEntry is the record kept in memory for each attempt.
type ExecutionHistoryEntry struct {
	ExecutionID string    `json:"executionId"`
	Timestamp   time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
	PageURL     string    `json:"pageUrl,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration"`
}

// NotificationError is the error part of a FailureNotification.
type NotificationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// FailureNotification is sent to the notification endpoint when an attempt
// fails. It is built per failure and never stored.
type FailureNotification struct {
	ExecutionID string            `json:"executionId"`
	Error       NotificationError `json:"error"`
	Timestamp   time.Time         `json:"timestamp"`
}

// DateRange is an inclusive reporting period.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// LastDays returns the range of n days ending at end.
func LastDays(end time.Time, n int) DateRange {
	return DateRange{Start: end.AddDate(0, 0, -n), End: end}
}

// ReflectionOptions are passed to the reflection operation.
type ReflectionOptions struct {
	DateRange DateRange
	DryRun    bool
}

// ReflectionSummary holds the headline numbers of a report.
type ReflectionSummary struct {
	PRCount        int
	TotalWorkHours float64
}

// ReflectionResult is returned by a successful reflection run.
type ReflectionResult struct {
	PageURL       string
	LocalFilePath string
	Summary       ReflectionSummary
	Report        string // rendered Markdown
}

// Destination returns the page URL when present, else the local path.
func (r *ReflectionResult) Destination() string {
	if r.PageURL != "" {
		return r.PageURL
	}
	return r.LocalFilePath
}
