package models

import "time"

// TriggerType identifies what started an execution attempt.
type TriggerType string

// Trigger types
const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerManual    TriggerType = "manual"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	return t == TriggerScheduled || t == TriggerManual
}

// ExecutionContext describes one execution attempt. It is created once per
// attempt and never modified afterwards.
type ExecutionContext struct {
	ExecutionID   string
	ScheduledTime time.Time
	TriggerType   TriggerType
}

// LogLevel is the severity of an audit log entry.
type LogLevel string

// Audit log levels
const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Valid reports whether l is one of the known levels.
func (l LogLevel) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// LogEvent is the lifecycle event an audit log entry records.
type LogEvent string

// Audit log events
const (
	EventStart   LogEvent = "start"
	EventSuccess LogEvent = "success"
	EventError   LogEvent = "error"
)

// Valid reports whether e is one of the known events.
func (e LogEvent) Valid() bool {
	switch e {
	case EventStart, EventSuccess, EventError:
		return true
	}
	return false
}

// LogEntry is one line of the audit log. Entries are append-only.
type LogEntry struct {
	Time        time.Time
	Level       LogLevel
	ExecutionID string
	Event       LogEvent
	Details     map[string]any
}
