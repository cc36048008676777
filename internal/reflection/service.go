// Package reflection builds the periodic work reflection report: it collects
// pull requests and tracked hours for a date range, renders a Markdown
// report and publishes it to Notion or to a local file.
package reflection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harrison/reflector/internal/config"
	"github.com/harrison/reflector/internal/filelock"
	"github.com/harrison/reflector/internal/models"
)

// Data source names reported in DATA_COLLECTION_FAILED errors
const (
	SourceGitHub  = "github"
	SourceTimelog = "timelog"
)

// PRSource lists pull requests created in a range.
type PRSource interface {
	PullRequests(ctx context.Context, from, to time.Time) ([]PullRequest, error)
}

// HoursSource lists time log entries in a range.
type HoursSource interface {
	Entries(from, to time.Time) ([]TimeEntry, error)
}

// Publisher creates a report page and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, title, markdown string) (string, error)
}

// Service generates reflection reports.
type Service struct {
	cfg       config.ReflectionConfig
	prs       PRSource
	hours     HoursSource
	publisher Publisher
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPRSource replaces the GitHub collector.
func WithPRSource(src PRSource) Option {
	return func(s *Service) { s.prs = src }
}

// WithHoursSource replaces the time log reader.
func WithHoursSource(src HoursSource) Option {
	return func(s *Service) { s.hours = src }
}

// WithPublisher replaces the Notion publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the time source used for the default range.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service from configuration. Missing credentials are
// reported by Execute, not here.
func NewService(cfg config.ReflectionConfig, opts ...Option) (*Service, error) {
	s := &Service{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.prs == nil {
		collector, err := NewGitHubCollector(cfg.GitHub.Token, cfg.GitHub.Username, cfg.GitHub.APIURL)
		if err != nil {
			return nil, err
		}
		s.prs = collector
	}
	if s.hours == nil {
		s.hours = NewTimelog(cfg.TimelogPath)
	}
	if s.publisher == nil && cfg.Notion.DatabaseID != "" {
		s.publisher = NewNotionPublisher(cfg.Notion.Token, cfg.Notion.DatabaseID,
			WithNotionBaseURL(cfg.Notion.APIURL))
	}
	return s, nil
}

// Execute generates the report for opts.DateRange. With DryRun set the
// report is returned without being published or written.
func (s *Service) Execute(ctx context.Context, opts models.ReflectionOptions) (*models.ReflectionResult, error) {
	if missing := s.missingFields(); len(missing) > 0 {
		return nil, models.NewConfigInvalid(missing...)
	}

	dr := opts.DateRange
	if dr.Start.IsZero() || dr.End.IsZero() {
		days := s.cfg.RangeDays
		if days <= 0 {
			days = config.DefaultRangeDays
		}
		dr = models.LastDays(s.now(), days)
	}

	prs, err := s.prs.PullRequests(ctx, dr.Start, dr.End)
	if err != nil {
		return nil, models.NewDataCollectionFailed(SourceGitHub, err)
	}
	entries, err := s.hours.Entries(dr.Start, dr.End)
	if err != nil {
		return nil, models.NewDataCollectionFailed(SourceTimelog, err)
	}

	report := &Report{Range: dr, PullRequests: prs, TimeEntries: entries}
	md := report.Markdown()
	result := &models.ReflectionResult{
		Summary: report.Summary(),
		Report:  md,
	}
	if opts.DryRun {
		return result, nil
	}

	if s.publisher != nil {
		url, err := s.publisher.Publish(ctx, report.Title(), md)
		if err != nil {
			// Fall back to a local copy.
			localPath, werr := s.writeLocal(report, md)
			if werr != nil {
				localPath = ""
			}
			return nil, models.NewPageCreationFailed(err, localPath)
		}
		result.PageURL = url
		return result, nil
	}

	localPath, err := s.writeLocal(report, md)
	if err != nil {
		return nil, models.NewPageCreationFailed(err, "")
	}
	result.LocalFilePath = localPath
	return result, nil
}

// missingFields lists required settings that are not configured.
func (s *Service) missingFields() []string {
	var missing []string
	if s.cfg.GitHub.Username == "" {
		missing = append(missing, "github.username")
	}
	if s.cfg.GitHub.Token == "" {
		missing = append(missing, config.GitHubTokenEnv)
	}
	if s.cfg.Notion.DatabaseID != "" && s.cfg.Notion.Token == "" {
		missing = append(missing, config.NotionTokenEnv)
	}
	return missing
}

// writeLocal saves the Markdown report and an HTML rendering next to it,
// returning the Markdown path.
func (s *Service) writeLocal(report *Report, md string) (string, error) {
	dir := s.cfg.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	base := filepath.Join(dir, "reflection-"+report.Range.End.Format(dateLayout))
	mdPath := base + ".md"
	if err := filelock.AtomicWrite(mdPath, []byte(md)); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	html, err := RenderHTML(report.Title(), md)
	if err != nil {
		return "", err
	}
	if err := filelock.AtomicWrite(base+".html", []byte(html)); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return mdPath, nil
}
