package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomes(t *testing.T) {
	var ok Outcome = SuccessOutcome{Duration: 1500 * time.Millisecond}
	var bad Outcome = FailureOutcome{Kind: UnexpectedErrorKind, Duration: time.Second}

	assert.True(t, ok.Succeeded())
	assert.Equal(t, 1500*time.Millisecond, ok.Elapsed())
	assert.False(t, bad.Succeeded())
	assert.Equal(t, time.Second, bad.Elapsed())
}

func TestReflectionResult_Destination(t *testing.T) {
	published := &ReflectionResult{PageURL: "https://notion.so/p", LocalFilePath: "/tmp/r.md"}
	local := &ReflectionResult{LocalFilePath: "/tmp/r.md"}

	assert.Equal(t, "https://notion.so/p", published.Destination())
	assert.Equal(t, "/tmp/r.md", local.Destination())
}

func TestDateRange(t *testing.T) {
	end := time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC)
	r := LastDays(end, 7)

	assert.Equal(t, time.Date(2026, 10, 9, 18, 0, 0, 0, time.UTC), r.Start)
	assert.True(t, r.Contains(r.Start))
	assert.True(t, r.Contains(end))
	assert.True(t, r.Contains(end.Add(-time.Hour)))
	assert.False(t, r.Contains(end.Add(time.Second)))
	assert.False(t, r.Contains(r.Start.Add(-time.Second)))
}

func TestExecutionHistoryEntry_JSON(t *testing.T) {
	entry := ExecutionHistoryEntry{
		ExecutionID: "exec-1-1",
		Timestamp:   time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC),
		Success:     true,
		PageURL:     "https://notion.so/p",
		DurationMS:  1500,
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "exec-1-1", raw["executionId"])
	assert.Equal(t, true, raw["success"])
	assert.EqualValues(t, 1500, raw["duration"])
	assert.NotContains(t, raw, "error")
}

func TestFailureNotification_JSON(t *testing.T) {
	n := FailureNotification{
		ExecutionID: "exec-1-1",
		Error:       NotificationError{Type: "CONFIG_INVALID", Message: "missing configuration fields: [x]"},
		Timestamp:   time.Date(2026, 10, 16, 18, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"executionId": "exec-1-1",
		"error": {"type": "CONFIG_INVALID", "message": "missing configuration fields: [x]"},
		"timestamp": "2026-10-16T18:00:00Z"
	}`, string(data))
}

func TestLogLevelAndEventValid(t *testing.T) {
	for _, l := range []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		assert.True(t, l.Valid(), l)
	}
	assert.False(t, LogLevel("fatal").Valid())

	for _, e := range []LogEvent{EventStart, EventSuccess, EventError} {
		assert.True(t, e.Valid(), e)
	}
	assert.False(t, LogEvent("retry").Valid())
}
