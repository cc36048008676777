// Package executor runs reflection attempts and keeps their outcomes.
//
// An Orchestrator executes exactly one attempt per Run call: it writes a start
// entry to the audit sink, invokes the reflection operation, classifies the
// outcome, writes the terminal entry, notifies on failure and records the
// attempt in a bounded in-memory history. Run never panics and never returns
// an error; every fault of the operation becomes a failed history entry.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/harrison/reflector/internal/models"
)

// executionIDPrefix is prepended to every execution id.
const executionIDPrefix = "exec"

// executionSeq disambiguates ids created within the same clock tick.
var executionSeq atomic.Uint64

// ReflectionPort is the business operation executed by each attempt. Expected
// failures are returned as *models.ReflectionError; any other error or panic
// is treated as unexpected.
type ReflectionPort interface {
	Execute(ctx context.Context, opts models.ReflectionOptions) (*models.ReflectionResult, error)
}

// Notifier delivers failure notifications.
type Notifier interface {
	SendFailureNotification(ctx context.Context, url string, notification models.FailureNotification) error
}

// AuditSink receives the durable record of each attempt.
type AuditSink interface {
	WriteStart(ctx models.ExecutionContext) error
	WriteSuccess(executionID string, outcome models.SuccessOutcome) error
	WriteFailure(executionID string, outcome models.FailureOutcome) error
	WriteWarning(executionID, message string, details map[string]any) error
}

// Logger receives operator-facing progress messages.
type Logger interface {
	LogRunStart(ctx models.ExecutionContext)
	LogRunResult(entry models.ExecutionHistoryEntry)
	LogWarn(message string)
	LogError(message string)
}

// RunOptions configure one attempt.
type RunOptions struct {
	DateRange       models.DateRange
	ScheduledTime   time.Time // zero means the start time of the attempt
	TriggerType     models.TriggerType
	NotificationURL string // empty disables failure notification
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithHistoryCapacity sets the history bound.
func WithHistoryCapacity(capacity int) Option {
	return func(o *Orchestrator) {
		o.history = NewHistoryStore(capacity)
	}
}

// WithLogger sets the operator logger.
func WithLogger(logger Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator drives execution attempts. Callers are expected to serialize
// Run calls; concurrent calls are safe but not the intended usage.
type Orchestrator struct {
	port     ReflectionPort
	audit    AuditSink
	notifier Notifier
	logger   Logger
	history  *HistoryStore
	now      func() time.Time
}

// NewOrchestrator creates an Orchestrator. The notifier may be nil, in which
// case no notifications are sent.
func NewOrchestrator(port ReflectionPort, audit AuditSink, notifier Notifier, opts ...Option) *Orchestrator {
	if port == nil {
		panic("reflection port cannot be nil")
	}
	if audit == nil {
		panic("audit sink cannot be nil")
	}

	o := &Orchestrator{
		port:     port,
		audit:    audit,
		notifier: notifier,
		history:  NewHistoryStore(DefaultHistoryCapacity),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one attempt and returns its history entry.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) models.ExecutionHistoryEntry {
	start := o.now()
	execCtx := models.ExecutionContext{
		ExecutionID:   newExecutionID(start),
		ScheduledTime: opts.ScheduledTime,
		TriggerType:   opts.TriggerType,
	}
	if execCtx.ScheduledTime.IsZero() {
		execCtx.ScheduledTime = start
	}
	if execCtx.TriggerType == "" {
		execCtx.TriggerType = models.TriggerManual
	}

	if o.logger != nil {
		o.logger.LogRunStart(execCtx)
	}
	o.auditErr(o.audit.WriteStart(execCtx))

	outcome := o.invoke(ctx, models.ReflectionOptions{DateRange: opts.DateRange, DryRun: false}, start)

	entry := models.ExecutionHistoryEntry{
		ExecutionID: execCtx.ExecutionID,
		Timestamp:   start,
		Success:     outcome.Succeeded(),
		DurationMS:  outcome.Elapsed().Milliseconds(),
	}

	switch out := outcome.(type) {
	case models.SuccessOutcome:
		o.auditErr(o.audit.WriteSuccess(execCtx.ExecutionID, out))
		entry.PageURL = out.Destination
	case models.FailureOutcome:
		o.auditErr(o.audit.WriteFailure(execCtx.ExecutionID, out))
		entry.Error = out.Message
		if opts.NotificationURL != "" {
			o.notify(ctx, opts.NotificationURL, models.FailureNotification{
				ExecutionID: execCtx.ExecutionID,
				Error:       models.NotificationError{Type: out.Kind, Message: out.Message},
				Timestamp:   o.now(),
			})
		}
	}

	o.history.Append(entry)
	if o.logger != nil {
		o.logger.LogRunResult(entry)
	}
	return entry
}

// ExecutionHistory returns a copy of the recorded attempts, oldest first.
func (o *Orchestrator) ExecutionHistory() []models.ExecutionHistoryEntry {
	return o.history.Snapshot()
}

// LastExecutionRecord returns the most recent attempt, if any.
func (o *Orchestrator) LastExecutionRecord() (models.ExecutionHistoryEntry, bool) {
	return o.history.Last()
}

// invoke calls the reflection operation and classifies what it returns.
// A panic inside the operation is recovered into an unexpected failure.
func (o *Orchestrator) invoke(ctx context.Context, opts models.ReflectionOptions, start time.Time) (outcome models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = models.FailureOutcome{
				Kind:       models.UnexpectedErrorKind,
				Message:    fmt.Sprint(r),
				Stack:      string(debug.Stack()),
				Unexpected: true,
				Duration:   o.now().Sub(start),
			}
		}
	}()

	result, err := o.port.Execute(ctx, opts)
	return classify(result, err, o.now().Sub(start))
}

func classify(result *models.ReflectionResult, err error, elapsed time.Duration) models.Outcome {
	if err != nil {
		var reflErr *models.ReflectionError
		if errors.As(err, &reflErr) {
			return models.FailureOutcome{
				Kind:          string(reflErr.Kind),
				Message:       reflErr.Error(),
				LocalFilePath: reflErr.LocalFilePath,
				Duration:      elapsed,
			}
		}
		out := models.FailureOutcome{
			Kind:       models.UnexpectedErrorKind,
			Message:    err.Error(),
			Unexpected: true,
			Duration:   elapsed,
		}
		// Only errors that format extra detail with %+v have a trace to keep.
		if detailed := fmt.Sprintf("%+v", err); detailed != out.Message {
			out.Stack = detailed
		}
		return out
	}
	if result == nil {
		return models.FailureOutcome{
			Kind:       models.UnexpectedErrorKind,
			Message:    "reflection returned neither a result nor an error",
			Unexpected: true,
			Duration:   elapsed,
		}
	}
	return models.SuccessOutcome{
		Destination:   result.Destination(),
		LocalFilePath: localOnly(result),
		CommitCount:   result.Summary.PRCount,
		WorkHours:     result.Summary.TotalWorkHours,
		Duration:      elapsed,
	}
}

// localOnly returns the local path when the report was not published.
func localOnly(result *models.ReflectionResult) string {
	if result.PageURL == "" {
		return result.LocalFilePath
	}
	return ""
}

// notify sends a failure notification. Any error or panic is demoted to a
// warning and discarded. The attempt's deadline or cancellation does not
// apply to the delivery; the notifier bounds it with its own timeout.
func (o *Orchestrator) notify(ctx context.Context, url string, notification models.FailureNotification) {
	if o.notifier == nil {
		return
	}
	if err := o.sendSafely(context.WithoutCancel(ctx), url, notification); err != nil {
		message := fmt.Sprintf("failed to send failure notification: %v", err)
		o.auditErr(o.audit.WriteWarning(notification.ExecutionID, message, map[string]any{
			"notificationUrl": url,
		}))
		gracefulWarn(o.logger, "%s", message)
	}
}

func (o *Orchestrator) sendSafely(ctx context.Context, url string, notification models.FailureNotification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panicked: %v", r)
		}
	}()
	return o.notifier.SendFailureNotification(ctx, url, notification)
}

// auditErr reports a failed audit write to the operator log. The attempt
// itself continues.
func (o *Orchestrator) auditErr(err error) {
	if err != nil {
		gracefulError(o.logger, "audit log write failed: %v", err)
	}
}

// newExecutionID derives a unique id from the clock and a process-wide
// sequence number.
func newExecutionID(t time.Time) string {
	return fmt.Sprintf("%s-%d-%d", executionIDPrefix, t.UnixNano(), executionSeq.Add(1))
}
