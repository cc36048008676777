// Package schedule registers the reflector run with the operating system
// scheduler and reports its status.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/harrison/reflector/internal/filelock"
	"github.com/harrison/reflector/internal/models"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// SupportedPlatforms are the GOOS values with a crontab.
var SupportedPlatforms = map[string]bool{
	"linux":   true,
	"darwin":  true,
	"freebsd": true,
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// LastExecutionFunc reports the time of the most recent attempt, or nil.
type LastExecutionFunc func() (*time.Time, error)

// RegisterOptions configure Register.
type RegisterOptions struct {
	CronExpression string
	Force          bool
}

// State is persisted next to the config while a schedule is registered.
type State struct {
	CronExpression string    `yaml:"cron_expression"`
	Command        string    `yaml:"command"`
	RegisteredAt   time.Time `yaml:"registered_at"`
}

// Registrar manages the reflector crontab entry.
type Registrar struct {
	statePath     string
	command       string
	crontab       CrontabRunner
	goos          string
	now           func() time.Time
	lastExecution LastExecutionFunc
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithCrontab overrides the crontab runner.
func WithCrontab(runner CrontabRunner) Option {
	return func(r *Registrar) { r.crontab = runner }
}

// WithPlatform overrides the detected GOOS.
func WithPlatform(goos string) Option {
	return func(r *Registrar) { r.goos = goos }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registrar) { r.now = now }
}

// WithLastExecution sets the lookup used by Status.
func WithLastExecution(fn LastExecutionFunc) Option {
	return func(r *Registrar) { r.lastExecution = fn }
}

// NewRegistrar creates a Registrar storing its state at statePath and
// installing command as the scheduled job.
func NewRegistrar(statePath, command string, opts ...Option) *Registrar {
	r := &Registrar{
		statePath: statePath,
		command:   command,
		crontab:   ExecCrontab{},
		goos:      runtime.GOOS,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ValidateCronExpression checks a standard five-field expression.
func ValidateCronExpression(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return &models.ScheduleError{Kind: models.ErrInvalidCronExpression, Expression: expr, Err: err}
	}
	return nil
}

// NextExecution returns the first fire time of expr after t.
func NextExecution(expr string, t time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, &models.ScheduleError{Kind: models.ErrInvalidCronExpression, Expression: expr, Err: err}
	}
	return sched.Next(t), nil
}

// Register installs the schedule. An existing registration is replaced only
// when opts.Force is set.
func (r *Registrar) Register(ctx context.Context, opts RegisterOptions) (*models.Registration, error) {
	if err := r.checkPlatform(); err != nil {
		return nil, err
	}
	next, err := NextExecution(opts.CronExpression, r.now())
	if err != nil {
		return nil, err
	}

	existing, err := r.loadState()
	if err != nil {
		return nil, err
	}
	if existing != nil && !opts.Force {
		return nil, &models.ScheduleError{Kind: models.ErrAlreadyRegistered, Existing: existing.CronExpression}
	}

	current, err := r.crontab.Read(ctx)
	if err != nil {
		return nil, r.commandErr(err)
	}
	if err := r.crontab.Write(ctx, installLine(current, cronLine(opts.CronExpression, r.command))); err != nil {
		return nil, r.commandErr(err)
	}

	state := State{
		CronExpression: opts.CronExpression,
		Command:        r.command,
		RegisteredAt:   r.now().UTC(),
	}
	if err := r.saveState(state); err != nil {
		return nil, err
	}

	return &models.Registration{
		CronExpression: opts.CronExpression,
		NextExecution:  next,
		ConfigPath:     r.statePath,
	}, nil
}

// Unregister removes the schedule.
func (r *Registrar) Unregister(ctx context.Context) error {
	if err := r.checkPlatform(); err != nil {
		return err
	}
	existing, err := r.loadState()
	if err != nil {
		return err
	}
	if existing == nil {
		return &models.ScheduleError{Kind: models.ErrNotRegistered}
	}

	current, err := r.crontab.Read(ctx)
	if err != nil {
		return r.commandErr(err)
	}
	if err := r.crontab.Write(ctx, removeLines(current)); err != nil {
		return r.commandErr(err)
	}

	if err := filelock.LockAndRemove(r.statePath); err != nil {
		return r.fileErr(err)
	}
	return nil
}

// Status reports the current registration.
func (r *Registrar) Status(ctx context.Context) (*models.ScheduleStatus, error) {
	if err := r.checkPlatform(); err != nil {
		return nil, err
	}
	state, err := r.loadState()
	if err != nil {
		return nil, err
	}

	status := &models.ScheduleStatus{}
	if state != nil {
		status.Registered = true
		status.CronExpression = state.CronExpression
		if next, err := NextExecution(state.CronExpression, r.now()); err == nil {
			status.NextExecution = &next
		}
	}
	if r.lastExecution != nil {
		last, err := r.lastExecution()
		if err != nil {
			return nil, &models.ScheduleError{Kind: models.ErrExecutionFailed, Message: err.Error(), Err: err}
		}
		status.LastExecution = last
	}
	return status, nil
}

// StatePath returns the path of the persisted registration.
func (r *Registrar) StatePath() string {
	return r.statePath
}

func (r *Registrar) checkPlatform() error {
	if !SupportedPlatforms[r.goos] {
		return &models.ScheduleError{Kind: models.ErrPlatformNotSupported, Platform: r.goos}
	}
	return nil
}

// loadState returns nil when no schedule is registered.
func (r *Registrar) loadState() (*State, error) {
	data, err := os.ReadFile(r.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, r.fileErr(err)
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, &models.ScheduleError{
			Kind:    models.ErrExecutionFailed,
			Message: fmt.Sprintf("corrupt schedule state %s: %v", r.statePath, err),
			Err:     err,
		}
	}
	if state.CronExpression == "" {
		return nil, nil
	}
	return &state, nil
}

func (r *Registrar) saveState(state State) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return &models.ScheduleError{Kind: models.ErrExecutionFailed, Message: err.Error(), Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(r.statePath), 0755); err != nil {
		return r.fileErr(err)
	}
	if err := filelock.LockAndWrite(r.statePath, data); err != nil {
		return r.fileErr(err)
	}
	return nil
}

// fileErr maps a state file error to a ScheduleError.
func (r *Registrar) fileErr(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return &models.ScheduleError{Kind: models.ErrPermissionDenied, Path: r.statePath, Err: err}
	}
	return &models.ScheduleError{Kind: models.ErrExecutionFailed, Message: err.Error(), Err: err}
}

// commandErr maps a crontab failure to a ScheduleError.
func (r *Registrar) commandErr(err error) error {
	var schedErr *models.ScheduleError
	if errors.As(err, &schedErr) {
		return schedErr
	}
	if errors.Is(err, fs.ErrPermission) {
		return &models.ScheduleError{Kind: models.ErrPermissionDenied, Path: "crontab", Err: err}
	}
	return &models.ScheduleError{Kind: models.ErrExecutionFailed, Message: err.Error(), Err: err}
}
