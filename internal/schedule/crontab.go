package schedule

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CrontabRunner reads and replaces the current user's crontab.
type CrontabRunner interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, content string) error
}

// ExecCrontab drives the system crontab binary.
type ExecCrontab struct {
	Binary string // defaults to "crontab"
}

func (c ExecCrontab) binary() string {
	if c.Binary == "" {
		return "crontab"
	}
	return c.Binary
}

// Read returns the current crontab. A user without a crontab yields "".
func (c ExecCrontab) Read(ctx context.Context) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary(), "-l")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if strings.Contains(strings.ToLower(stderr.String()), "no crontab for") {
			return "", nil
		}
		return "", commandError("crontab -l", err, stderr.String())
	}
	return stdout.String(), nil
}

// Write replaces the crontab with content.
func (c ExecCrontab) Write(ctx context.Context, content string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary(), "-")
	cmd.Stdin = strings.NewReader(content)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return commandError("crontab -", err, stderr.String())
	}
	return nil
}

func commandError(name string, err error, stderr string) error {
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return fmt.Errorf("%s: %w", name, err)
}

// lineMarker tags crontab lines owned by reflector.
const lineMarker = "# reflector"

// cronLine formats the crontab entry for expr.
func cronLine(expr, command string) string {
	return fmt.Sprintf("%s %s %s", expr, command, lineMarker)
}

// withoutManagedLines drops every reflector-owned line from a crontab.
func withoutManagedLines(crontab string) []string {
	var kept []string
	for _, line := range strings.Split(crontab, "\n") {
		if strings.HasSuffix(strings.TrimSpace(line), lineMarker) {
			continue
		}
		kept = append(kept, line)
	}
	// Drop trailing blanks left by the split.
	for len(kept) > 0 && strings.TrimSpace(kept[len(kept)-1]) == "" {
		kept = kept[:len(kept)-1]
	}
	return kept
}

// installLine returns crontab with any managed line replaced by line.
func installLine(crontab, line string) string {
	lines := append(withoutManagedLines(crontab), line)
	return strings.Join(lines, "\n") + "\n"
}

// removeLines returns crontab without managed lines.
func removeLines(crontab string) string {
	lines := withoutManagedLines(crontab)
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
