package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harrison/reflector/internal/filelock"
	"github.com/harrison/reflector/internal/models"
	"github.com/harrison/reflector/internal/redact"
)

// DefaultAuditFile is the audit sink file name inside the log directory.
const DefaultAuditFile = "executions.jsonl"

// maxLineSize bounds a single audit line when reading the sink back.
const maxLineSize = 1024 * 1024

// Audit line field names
const (
	fieldTime        = "time"
	fieldLevel       = "level"
	fieldExecutionID = "executionId"
	fieldEvent       = "event"
)

// AuditLogger appends one JSON object per line to the audit sink. Freeform
// error text is masked by the redaction engine before it is written.
// Every write is flushed to disk before the call returns.
type AuditLogger struct {
	path     string
	redactor *redact.Engine
	now      func() time.Time
	mu       sync.Mutex
}

// NewAuditLogger creates an AuditLogger writing to dir/fileName. The
// directory is created if it does not exist. A nil engine uses the default
// redaction rules.
func NewAuditLogger(dir, fileName string, engine *redact.Engine) (*AuditLogger, error) {
	if fileName == "" {
		fileName = DefaultAuditFile
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	if engine == nil {
		engine = redact.Default()
	}
	return &AuditLogger{
		path:     filepath.Join(dir, fileName),
		redactor: engine,
		now:      time.Now,
	}, nil
}

// Path returns the sink file path.
func (al *AuditLogger) Path() string {
	return al.path
}

// WriteStart records the start of an attempt.
func (al *AuditLogger) WriteStart(ctx models.ExecutionContext) error {
	return al.write(models.LevelInfo, ctx.ExecutionID, models.EventStart, map[string]any{
		"scheduledTime": ctx.ScheduledTime.Format(time.RFC3339Nano),
		"triggerType":   string(ctx.TriggerType),
	})
}

// WriteSuccess records a successful attempt.
func (al *AuditLogger) WriteSuccess(executionID string, outcome models.SuccessOutcome) error {
	details := map[string]any{
		"duration":    outcome.Duration.Milliseconds(),
		"pageUrl":     outcome.Destination,
		"commitCount": outcome.CommitCount,
		"workHours":   outcome.WorkHours,
	}
	if outcome.LocalFilePath != "" {
		details["localFilePath"] = outcome.LocalFilePath
	}
	return al.write(models.LevelInfo, executionID, models.EventSuccess, details)
}

// WriteFailure records a failed attempt. The message and stack are redacted.
func (al *AuditLogger) WriteFailure(executionID string, outcome models.FailureOutcome) error {
	details := map[string]any{
		"duration":     outcome.Duration.Milliseconds(),
		"errorType":    outcome.Kind,
		"errorMessage": al.redactor.Mask(outcome.Message),
	}
	if outcome.Stack != "" {
		details["errorStack"] = al.redactor.Mask(outcome.Stack)
	}
	if outcome.LocalFilePath != "" {
		details["localFilePath"] = outcome.LocalFilePath
	}
	return al.write(models.LevelError, executionID, models.EventError, details)
}

// WriteWarning records a warn-level entry. Warnings are only raised on the
// failure path, so they carry the error event. The message and any string
// details are redacted.
func (al *AuditLogger) WriteWarning(executionID, message string, details map[string]any) error {
	fields := make(map[string]any, len(details)+1)
	for k, v := range details {
		if s, ok := v.(string); ok {
			v = al.redactor.Mask(s)
		}
		fields[k] = v
	}
	fields["message"] = al.redactor.Mask(message)
	return al.write(models.LevelWarn, executionID, models.EventError, fields)
}

// write serializes one entry and appends it to the sink.
func (al *AuditLogger) write(level models.LogLevel, executionID string, event models.LogEvent, details map[string]any) error {
	line := make(map[string]any, len(details)+4)
	for k, v := range details {
		line[k] = v
	}
	line[fieldTime] = al.now().UTC().Format(time.RFC3339Nano)
	line[fieldLevel] = string(level)
	line[fieldExecutionID] = executionID
	line[fieldEvent] = string(event)

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	data = append(data, '\n')

	al.mu.Lock()
	defer al.mu.Unlock()

	if err := filelock.AppendSync(al.path, data); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// ReadRecent returns up to limit of the most recently written entries,
// oldest first. A missing sink yields no entries; lines that do not parse or
// exceed the line size bound are skipped.
func (al *AuditLogger) ReadRecent(limit int) ([]models.LogEntry, error) {
	return ReadAuditFile(al.path, limit)
}

// ReadAuditFile reads the tail of an audit sink at path. See ReadRecent.
func ReadAuditFile(path string, limit int) ([]models.LogEntry, error) {
	entries, _, err := ReadAuditTail(path, limit)
	return entries, err
}

// ReadAuditTail is ReadAuditFile plus the offset following the last complete
// line, for use as the starting point of ReadAuditFrom. Both come from the
// same pass over the sink.
func ReadAuditTail(path string, limit int) ([]models.LogEntry, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.LogEntry{}, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if limit < 0 {
		limit = 0
	}

	// Keep only the last limit entries in a ring.
	ring := make([]models.LogEntry, limit)
	count := 0
	keep := func(entry models.LogEntry) {
		if limit == 0 {
			return
		}
		ring[count%limit] = entry
		count++
	}

	lines := newLineReader(f)
	var offset int64
	for {
		line, n, err := lines.next()
		if err == io.EOF {
			// A last line without its newline is still shown, but the
			// offset stays before it.
			if entry, ok := parseAuditLine(line); ok {
				keep(entry)
			}
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read audit log: %w", err)
		}
		offset += n
		if entry, ok := parseAuditLine(line); ok {
			keep(entry)
		}
	}

	n := count
	if n > limit {
		n = limit
	}
	out := make([]models.LogEntry, 0, n)
	for i := count - n; i < count; i++ {
		out = append(out, ring[i%limit])
	}
	return out, offset, nil
}

// ReadAuditFrom returns the complete entries written after offset and the
// offset following the last complete line. A partial trailing line is left
// for the next call. When the sink is shorter than offset it was truncated or
// replaced, and reading restarts from the beginning.
func ReadAuditFrom(path string, offset int64) ([]models.LogEntry, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.LogEntry{}, 0, nil
		}
		return nil, offset, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("failed to stat audit log: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("failed to seek audit log: %w", err)
	}

	entries := []models.LogEntry{}
	lines := newLineReader(f)
	for {
		line, n, err := lines.next()
		if err == io.EOF {
			return entries, offset, nil
		}
		if err != nil {
			return nil, offset, fmt.Errorf("failed to read audit log: %w", err)
		}
		offset += n
		if entry, ok := parseAuditLine(line); ok {
			entries = append(entries, entry)
		}
	}
}

// lineReader splits the sink into newline-terminated lines. A line longer
// than maxLineSize is consumed but returned as nil so callers skip it.
type lineReader struct {
	r   *bufio.Reader
	buf []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// next returns the next line without its newline and the number of bytes it
// occupied. At the end of input it returns io.EOF together with any trailing
// bytes that had no newline.
func (lr *lineReader) next() ([]byte, int64, error) {
	lr.buf = lr.buf[:0]
	oversized := false
	var n int64
	for {
		chunk, err := lr.r.ReadSlice('\n')
		n += int64(len(chunk))
		if !oversized {
			if len(lr.buf)+len(chunk) > maxLineSize+1 {
				oversized = true
				lr.buf = lr.buf[:0]
			} else {
				lr.buf = append(lr.buf, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if oversized {
			return nil, n, err
		}
		if err != nil {
			return lr.buf, n, err
		}
		return lr.buf[:len(lr.buf)-1], n, nil
	}
}

// parseAuditLine decodes one line. Unknown levels default to info and
// unknown events to start.
func parseAuditLine(line []byte) (models.LogEntry, bool) {
	if len(line) == 0 {
		return models.LogEntry{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil || raw == nil {
		return models.LogEntry{}, false
	}

	entry := models.LogEntry{
		Level:   models.LevelInfo,
		Event:   models.EventStart,
		Details: make(map[string]any),
	}
	for k, v := range raw {
		switch k {
		case fieldTime:
			if s, ok := v.(string); ok {
				if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
					entry.Time = ts
				}
			}
		case fieldLevel:
			if s, ok := v.(string); ok && models.LogLevel(s).Valid() {
				entry.Level = models.LogLevel(s)
			}
		case fieldEvent:
			if s, ok := v.(string); ok && models.LogEvent(s).Valid() {
				entry.Event = models.LogEvent(s)
			}
		case fieldExecutionID:
			if s, ok := v.(string); ok {
				entry.ExecutionID = s
			}
		default:
			entry.Details[k] = v
		}
	}
	return entry, true
}
