// Package redact masks credential-shaped substrings before text is written to
// persistent storage.
//
// Rules are applied in order over the progressively-masked string. Every
// match of a rule is replaced independently: matches of up to eight
// characters become "***", longer matches keep their first four characters
// followed by "***" so the key in use can still be identified.
package redact

import (
	"fmt"
	"regexp"
)

const (
	// Mask replaces the hidden part of a secret.
	Mask = "***"

	// visiblePrefix is the number of leading characters kept for long matches.
	visiblePrefix = 4

	// shortMatch is the longest match that is masked entirely.
	shortMatch = 8

	// DefaultMinHexLength is the shortest hexadecimal run treated as a secret.
	DefaultMinHexLength = 32

	// DefaultMinGenericLength is the shortest alphanumeric run treated as a secret.
	DefaultMinGenericLength = 40

	// minThreshold keeps masking idempotent: a threshold at or below the
	// visible prefix length would match the prefix left by an earlier pass.
	minThreshold = visiblePrefix + 1
)

// Rule is one credential pattern. Matches shorter than MinLength are left
// untouched.
type Rule struct {
	Name      string
	Pattern   *regexp.Regexp
	MinLength int
}

// Config tunes the generic rules of the default rule set.
type Config struct {
	MinHexLength     int
	MinGenericLength int
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MinHexLength:     DefaultMinHexLength,
		MinGenericLength: DefaultMinGenericLength,
	}
}

// Validate checks the thresholds.
func (c Config) Validate() error {
	if c.MinHexLength < minThreshold {
		return fmt.Errorf("min_hex_length must be >= %d, got %d", minThreshold, c.MinHexLength)
	}
	if c.MinGenericLength < minThreshold {
		return fmt.Errorf("min_generic_length must be >= %d, got %d", minThreshold, c.MinGenericLength)
	}
	return nil
}

// Engine applies an ordered rule list. It is immutable and safe for
// concurrent use.
type Engine struct {
	rules []Rule
}

// New builds an engine with the default rule set tuned by cfg.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newEngine(defaultRules(cfg))
}

// Default returns an engine with the default rule set and thresholds.
func Default() *Engine {
	e, err := newEngine(defaultRules(DefaultConfig()))
	if err != nil {
		panic(err)
	}
	return e
}

// newEngine builds an engine from an explicit rule list, applied in order.
func newEngine(rules []Rule) (*Engine, error) {
	for _, r := range rules {
		if r.Pattern == nil {
			return nil, fmt.Errorf("redaction rule %q has no pattern", r.Name)
		}
		if r.MinLength < minThreshold {
			return nil, fmt.Errorf("redaction rule %q: min length must be >= %d, got %d", r.Name, minThreshold, r.MinLength)
		}
	}
	copied := make([]Rule, len(rules))
	copy(copied, rules)
	return &Engine{rules: copied}, nil
}

// defaultRules returns the built-in rules. Prefixed token formats come first
// so they keep a recognisable prefix; the generic hex and alphanumeric rules
// run last.
func defaultRules(cfg Config) []Rule {
	return []Rule{
		{Name: "github-token", Pattern: regexp.MustCompile(`\b(?:gh[pousr]_[A-Za-z0-9]{36,}|github_pat_[A-Za-z0-9_]{22,})`), MinLength: minThreshold},
		{Name: "notion-token", Pattern: regexp.MustCompile(`\b(?:secret_|ntn_)[A-Za-z0-9]{32,}`), MinLength: minThreshold},
		{Name: "api-key", Pattern: regexp.MustCompile(`\bsk-(?:ant-)?[A-Za-z0-9_\-]{20,}`), MinLength: minThreshold},
		{Name: "slack-token", Pattern: regexp.MustCompile(`\bxox[abpr]-[A-Za-z0-9\-]{10,}`), MinLength: minThreshold},
		{Name: "aws-access-key-id", Pattern: regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`), MinLength: minThreshold},
		{Name: "hex", Pattern: regexp.MustCompile(fmt.Sprintf(`\b[0-9a-fA-F]{%d,}\b`, cfg.MinHexLength)), MinLength: cfg.MinHexLength},
		{Name: "generic", Pattern: regexp.MustCompile(fmt.Sprintf(`[A-Za-z0-9_\-]{%d,}`, cfg.MinGenericLength)), MinLength: cfg.MinGenericLength},
	}
}

// Mask returns text with every rule match masked.
func (e *Engine) Mask(text string) string {
	if e == nil || text == "" {
		return text
	}
	for _, rule := range e.rules {
		minLen := rule.MinLength
		text = rule.Pattern.ReplaceAllStringFunc(text, func(match string) string {
			if len(match) < minLen {
				return match
			}
			return maskMatch(match)
		})
	}
	return text
}

func maskMatch(match string) string {
	if len(match) <= shortMatch {
		return Mask
	}
	return match[:visiblePrefix] + Mask
}
