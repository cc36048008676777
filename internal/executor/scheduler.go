package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harrison/reflector/internal/models"
	"github.com/robfig/cron/v3"
)

// DefaultRangeDays is the number of days a scheduled run reflects on.
const DefaultRangeDays = 7

// cronParser accepts standard five-field expressions.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Runner executes a single attempt.
type Runner interface {
	Run(ctx context.Context, opts RunOptions) models.ExecutionHistoryEntry
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	CronExpression  string
	RangeDays       int
	NotificationURL string
	Location        *time.Location
}

// Scheduler fires scheduled attempts from an in-process cron. A tick that
// arrives while the previous attempt is still running is skipped.
type Scheduler struct {
	runner   Runner
	cfg      SchedulerConfig
	logger   Logger
	now      func() time.Time
	cron     *cron.Cron
	schedule cron.Schedule

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler validates the expression and prepares a stopped Scheduler.
func NewScheduler(runner Runner, cfg SchedulerConfig, logger Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	schedule, err := cronParser.Parse(cfg.CronExpression)
	if err != nil {
		return nil, &models.ScheduleError{
			Kind:       models.ErrInvalidCronExpression,
			Expression: cfg.CronExpression,
			Err:        err,
		}
	}
	if cfg.RangeDays <= 0 {
		cfg.RangeDays = DefaultRangeDays
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	s := &Scheduler{
		runner:   runner,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		schedule: schedule,
	}
	s.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	s.cron.Schedule(schedule, cron.FuncJob(s.fire))
	return s, nil
}

// Start begins firing. The context bounds every attempt started by the
// scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.running = true
	return nil
}

// Stop halts the scheduler and waits for a running attempt to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.cancel()
}

// Running reports whether the scheduler is started.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Expression returns the cron expression the scheduler fires on.
func (s *Scheduler) Expression() string {
	return s.cfg.CronExpression
}

// Next returns the next fire time after now.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.now().In(s.cfg.Location))
}

// fire runs one scheduled attempt over the trailing range.
func (s *Scheduler) fire() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	now := s.now().In(s.cfg.Location)
	entry := s.runner.Run(ctx, RunOptions{
		DateRange:       models.LastDays(now, s.cfg.RangeDays),
		ScheduledTime:   now.Truncate(time.Minute),
		TriggerType:     models.TriggerScheduled,
		NotificationURL: s.cfg.NotificationURL,
	})
	if !entry.Success {
		gracefulWarn(s.logger, "Scheduled run %s failed; next run at %s",
			entry.ExecutionID, s.Next().Format(time.RFC3339))
	}
}
