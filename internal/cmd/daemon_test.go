package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harrison/reflector/internal/config"
	"github.com/harrison/reflector/internal/executor"
	"github.com/harrison/reflector/internal/filelock"
	"github.com/harrison/reflector/internal/logger"
	"github.com/harrison/reflector/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaemonCommand_InvalidCron(t *testing.T) {
	setupHome(t, "log_level: error\n")

	_, err := executeCommand(t, "daemon", "--cron", "every friday")
	require.Error(t, err)
	assert.Equal(t, `invalid cron expression: "every friday"`, err.Error())
}

func TestDaemonCommand_InvalidNotifyURL(t *testing.T) {
	setupHome(t, "log_level: error\n")

	_, err := executeCommand(t, "daemon", "--notify-url", "ftp://hooks.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification.url")
}

func TestDaemonCommand_SingleInstance(t *testing.T) {
	home := setupHome(t, "log_level: error\n")

	held := filelock.NewFileLock(config.DaemonLockPath(home))
	require.NoError(t, held.Lock())
	defer held.Unlock()

	_, err := executeCommand(t, "daemon")
	require.Error(t, err)
	assert.Equal(t, "another reflector daemon is already running for "+home, err.Error())
}

type deadlinePort struct {
	deadline time.Time
	ok       bool
}

func (p *deadlinePort) Execute(ctx context.Context, opts models.ReflectionOptions) (*models.ReflectionResult, error) {
	p.deadline, p.ok = ctx.Deadline()
	return &models.ReflectionResult{LocalFilePath: "/tmp/r.md"}, nil
}

type discardAudit struct{}

func (discardAudit) WriteStart(models.ExecutionContext) error          { return nil }
func (discardAudit) WriteSuccess(string, models.SuccessOutcome) error  { return nil }
func (discardAudit) WriteFailure(string, models.FailureOutcome) error  { return nil }
func (discardAudit) WriteWarning(string, string, map[string]any) error { return nil }

func TestTimeoutRunner(t *testing.T) {
	port := &deadlinePort{}
	orch := executor.NewOrchestrator(port, discardAudit{}, nil)

	runner := &timeoutRunner{orch: orch, timeout: time.Minute}
	entry := runner.Run(context.Background(), executor.RunOptions{TriggerType: models.TriggerScheduled})
	assert.True(t, entry.Success)
	require.True(t, port.ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), port.deadline, 5*time.Second)

	runner = &timeoutRunner{orch: orch}
	runner.Run(context.Background(), executor.RunOptions{})
	assert.False(t, port.ok)
}

type nopRunner struct{}

func (nopRunner) Run(context.Context, executor.RunOptions) models.ExecutionHistoryEntry {
	return models.ExecutionHistoryEntry{Success: true}
}

func TestDaemonReload(t *testing.T) {
	home := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.ResolvePaths(home)
	var out bytes.Buffer
	d := &daemon{
		app:        &app{home: home, cfg: cfg, console: logger.NewConsoleLogger(&out, "debug")},
		runner:     nopRunner{},
		configPath: filepath.Join(home, "config.yaml"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.start(ctx))
	defer func() { d.sched.Stop() }()
	assert.Equal(t, config.DefaultCron, d.sched.Expression())

	writeConfig := func(content string) {
		require.NoError(t, os.WriteFile(d.configPath, []byte(content), 0644))
	}

	// Unrelated edits keep the running scheduler.
	writeConfig("log_level: debug\n")
	first := d.sched
	d.reload(ctx)
	assert.Same(t, first, d.sched)
	assert.Contains(t, out.String(), "Config changed, schedule still "+config.DefaultCron)

	writeConfig("schedule:\n  cron: \"0 9 * * 1\"\n")
	d.reload(ctx)
	assert.Equal(t, "0 9 * * 1", d.sched.Expression())
	assert.True(t, d.sched.Running())
	assert.False(t, first.Running())
	assert.Contains(t, out.String(), "Schedule changed to 0 9 * * 1")

	writeConfig("schedule:\n  cron: \"whenever\"\n")
	d.reload(ctx)
	assert.Equal(t, "0 9 * * 1", d.sched.Expression())
	assert.Contains(t, out.String(), `invalid cron expression: "whenever"; keeping "0 9 * * 1"`)

	writeConfig("schedule: [")
	d.reload(ctx)
	assert.Equal(t, "0 9 * * 1", d.sched.Expression())
	assert.Contains(t, out.String(), "config reload failed")
}
