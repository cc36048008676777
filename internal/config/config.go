package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/harrison/reflector/internal/redact"
	"gopkg.in/yaml.v3"
)

// Environment variables holding secrets. Tokens are never read from the
// config file.
const (
	GitHubTokenEnv = "GITHUB_TOKEN"
	NotionTokenEnv = "NOTION_TOKEN"
)

// Defaults
const (
	DefaultCron            = "0 18 * * 5"
	DefaultRangeDays       = 7
	DefaultHistoryCapacity = 50
	DefaultGitHubAPIURL    = "https://api.github.com/"
	DefaultNotionAPIURL    = "https://api.notion.com"
	DefaultAuditFile       = "executions.jsonl"
)

// NotificationConfig configures failure notifications
type NotificationConfig struct {
	// URL receives a POST for every failed attempt. Empty disables notifications.
	URL string `yaml:"url"`

	// Timeout bounds a single delivery
	Timeout time.Duration `yaml:"timeout"`
}

// ScheduleConfig configures scheduled execution
type ScheduleConfig struct {
	// Cron is the five-field expression used by the daemon and by
	// `schedule register` when --cron is not given
	Cron string `yaml:"cron"`
}

// GitHubConfig configures pull request collection
type GitHubConfig struct {
	Username string `yaml:"username"`
	APIURL   string `yaml:"api_url"`
	Token    string `yaml:"-"`
}

// NotionConfig configures report publishing. Publishing is skipped when
// DatabaseID is empty.
type NotionConfig struct {
	DatabaseID string `yaml:"database_id"`
	APIURL     string `yaml:"api_url"`
	Token      string `yaml:"-"`
}

// ReflectionConfig configures report generation
type ReflectionConfig struct {
	// RangeDays is the number of trailing days a scheduled report covers
	RangeDays int `yaml:"range_days"`

	// OutputDir receives local report copies
	OutputDir string `yaml:"output_dir"`

	GitHub GitHubConfig `yaml:"github"`
	Notion NotionConfig `yaml:"notion"`

	// TimelogPath points at a YAML list of {date, hours, note} entries
	TimelogPath string `yaml:"timelog_path"`
}

// RedactionConfig tunes the audit log secret masking thresholds
type RedactionConfig struct {
	MinHexLength     int `yaml:"min_hex_length"`
	MinGenericLength int `yaml:"min_generic_length"`
}

// Config represents reflector configuration options
type Config struct {
	// LogLevel sets the console verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory holding the audit log
	LogDir string `yaml:"log_dir"`

	// AuditFile is the audit log file name inside LogDir
	AuditFile string `yaml:"audit_file"`

	// HistoryCapacity bounds the in-memory execution history
	HistoryCapacity int `yaml:"history_capacity"`

	// Timeout is the maximum duration of one attempt (0 = no timeout)
	Timeout time.Duration `yaml:"timeout"`

	Notification NotificationConfig `yaml:"notification"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Reflection   ReflectionConfig   `yaml:"reflection"`
	Redaction    RedactionConfig    `yaml:"redaction"`
}

// DefaultConfig returns a Config with sensible default values. Directory
// fields are empty until ResolvePaths is called.
func DefaultConfig() *Config {
	redactDefaults := redact.DefaultConfig()
	return &Config{
		LogLevel:        "info",
		AuditFile:       DefaultAuditFile,
		HistoryCapacity: DefaultHistoryCapacity,
		Timeout:         10 * time.Minute,
		Notification: NotificationConfig{
			Timeout: 10 * time.Second,
		},
		Schedule: ScheduleConfig{
			Cron: DefaultCron,
		},
		Reflection: ReflectionConfig{
			RangeDays: DefaultRangeDays,
			GitHub: GitHubConfig{
				APIURL: DefaultGitHubAPIURL,
			},
			Notion: NotionConfig{
				APIURL: DefaultNotionAPIURL,
			},
		},
		Redaction: RedactionConfig{
			MinHexLength:     redactDefaults.MinHexLength,
			MinGenericLength: redactDefaults.MinGenericLength,
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
// Tokens are taken from the environment in both cases.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		// Keys absent from the file keep their defaults
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// LoadConfigFromDir loads config.yaml from the reflector home directory and
// resolves relative and empty paths against it.
func LoadConfigFromDir(home string) (*Config, error) {
	cfg, err := LoadConfig(ConfigPath(home))
	if err != nil {
		return nil, err
	}
	cfg.ResolvePaths(home)
	return cfg, nil
}

// ApplyEnv reads secrets from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if token := getenv(GitHubTokenEnv); token != "" {
		c.Reflection.GitHub.Token = token
	}
	if token := getenv(NotionTokenEnv); token != "" {
		c.Reflection.Notion.Token = token
	}
}

// ResolvePaths fills empty directories with their defaults under home and
// makes relative paths absolute against home.
func (c *Config) ResolvePaths(home string) {
	if c.LogDir == "" {
		c.LogDir = LogsDirName
	}
	if c.Reflection.OutputDir == "" {
		c.Reflection.OutputDir = ReportsDirName
	}
	c.LogDir = resolve(home, c.LogDir)
	c.Reflection.OutputDir = resolve(home, c.Reflection.OutputDir)
	if c.Reflection.TimelogPath != "" {
		c.Reflection.TimelogPath = resolve(home, c.Reflection.TimelogPath)
	}
}

func resolve(home, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(home, p)
}

// AuditPath returns the full path of the audit log.
func (c *Config) AuditPath() string {
	return filepath.Join(c.LogDir, c.AuditFile)
}

// RedactConfig returns the redaction thresholds as engine configuration.
func (c *Config) RedactConfig() redact.Config {
	return redact.Config{
		MinHexLength:     c.Redaction.MinHexLength,
		MinGenericLength: c.Redaction.MinGenericLength,
	}
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
// This allows CLI flags to take precedence over config file settings
func (c *Config) MergeWithFlags(logLevel *string, logDir *string, timeout *time.Duration, notifyURL *string, cronExpr *string) {
	if logLevel != nil {
		c.LogLevel = *logLevel
	}
	if logDir != nil {
		c.LogDir = *logDir
	}
	if timeout != nil {
		c.Timeout = *timeout
	}
	if notifyURL != nil {
		c.Notification.URL = *notifyURL
	}
	if cronExpr != nil {
		c.Schedule.Cron = *cronExpr
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid. Missing reflection credentials
// are not checked here; they are reported when a report is generated.
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.AuditFile == "" {
		return fmt.Errorf("audit_file cannot be empty")
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be >= 1, got %d", c.HistoryCapacity)
	}

	// Timeout can be 0 (no timeout) or positive, negative is invalid
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}
	if c.Notification.Timeout < 0 {
		return fmt.Errorf("notification.timeout must be >= 0, got %v", c.Notification.Timeout)
	}
	if c.Notification.URL != "" {
		if err := validateHTTPURL(c.Notification.URL); err != nil {
			return fmt.Errorf("notification.url: %w", err)
		}
	}

	if c.Reflection.RangeDays < 1 {
		return fmt.Errorf("reflection.range_days must be >= 1, got %d", c.Reflection.RangeDays)
	}
	if err := validateHTTPURL(c.Reflection.GitHub.APIURL); err != nil {
		return fmt.Errorf("reflection.github.api_url: %w", err)
	}
	if err := validateHTTPURL(c.Reflection.Notion.APIURL); err != nil {
		return fmt.Errorf("reflection.notion.api_url: %w", err)
	}

	if err := c.RedactConfig().Validate(); err != nil {
		return fmt.Errorf("redaction: %w", err)
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme in %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	return nil
}
