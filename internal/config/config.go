package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full run configuration, loaded from an optional YAML file
// with environment variables taking precedence for credentials.
type Config struct {
	Repos          []string `yaml:"repos" env:"GHSUM_REPOS"`
	Labels         []string `yaml:"labels"`
	Usernames      []string `yaml:"usernames"`
	GitHubUsername string   `yaml:"github_username" env:"GHSUM_GITHUB_USERNAME"`
	TimeRange      string   `yaml:"time_range" env:"GHSUM_TIME_RANGE" env-default:"24h"`

	ComponentLabelPrefix string   `yaml:"component_label_prefix"`
	SkipLabels           []string `yaml:"skip_labels"`

	OutputFiles    []string `yaml:"output_files"`
	SlackURLs      []string `yaml:"slack_urls"`
	EmailAddresses []string `yaml:"email_addresses"`

	RunTimeout time.Duration `yaml:"run_timeout" env:"GHSUM_RUN_TIMEOUT" env-default:"15m"`

	GitHub  GitHub  `yaml:"github"`
	Summary Summary `yaml:"summary"`
	SMTP    SMTP    `yaml:"smtp"`
	Log     Log     `yaml:"log"`
}

type GitHub struct {
	Token               string `yaml:"token" env:"GITHUB_TOKEN"`
	BaseURL             string `yaml:"base_url" env:"GITHUB_BASE_URL"`
	HighVolumeThreshold int    `yaml:"high_volume_threshold" env-default:"700"`
	RateLimitMargin     int    `yaml:"rate_limit_margin" env-default:"20"`
	MaxRetries          int    `yaml:"max_retries" env-default:"3"`
	FetchConcurrency    int    `yaml:"fetch_concurrency" env-default:"3"`
}

type Summary struct {
	// The proxy deployments we target accept the Anthropic key under
	// OPENAI_API_KEY, so both are honored.
	APIKey            string  `yaml:"api_key" env:"ANTHROPIC_API_KEY"`
	FallbackAPIKey    string  `env:"OPENAI_API_KEY"`
	BaseURL           string  `yaml:"base_url" env:"ANTHROPIC_BASE_URL" env-default:"https://api.anthropic.com"`
	Model             string  `yaml:"model" env-default:"claude-sonnet-4-5-20250929"`
	MaxTokens         int     `yaml:"max_tokens" env-default:"2000"`
	Concurrency       int     `yaml:"concurrency" env-default:"4"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env-default:"2"`
	MaxRetries        int     `yaml:"max_retries" env-default:"3"`
}

type SMTP struct {
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	User     string `yaml:"user" env:"SMTP_USER"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM"`
}

type Log struct {
	Mode string `yaml:"mode" env:"GHSUM_LOG_MODE" env-default:"prod"`
}

// ValidationError is a fatal configuration problem, reported before any
// network activity happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// New loads configuration from the given YAML file path, or from the
// environment alone when path is empty.
func New(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("reading config from env: %w", err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the invariants that must hold before the run starts.
func (c *Config) Validate() error {
	if len(c.Repos) == 0 {
		return &ValidationError{Reason: "no repositories configured"}
	}
	for _, repo := range c.Repos {
		if strings.Count(repo, "/") != 1 || strings.HasPrefix(repo, "/") || strings.HasSuffix(repo, "/") {
			return &ValidationError{Reason: fmt.Sprintf("repository %q must be in owner/name form", repo)}
		}
	}
	if len(c.OutputFiles)+len(c.SlackURLs)+len(c.EmailAddresses) == 0 {
		return &ValidationError{Reason: "at least one output target required (file, slack or email)"}
	}
	if _, err := ParseTimeRange(c.TimeRange); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	if c.GitHub.Token == "" {
		return &ValidationError{Reason: "GITHUB_TOKEN not set"}
	}
	if c.SummaryAPIKey() == "" {
		return &ValidationError{Reason: "summary API key not set (ANTHROPIC_API_KEY or OPENAI_API_KEY)"}
	}
	if len(c.EmailAddresses) > 0 {
		if c.SMTP.Host == "" || c.SMTP.User == "" || c.SMTP.Password == "" {
			return &ValidationError{Reason: "email output requires SMTP host, user and password"}
		}
	}
	return nil
}

// SummaryAPIKey resolves the summarizer credential, preferring the
// explicit Anthropic key.
func (c *Config) SummaryAPIKey() string {
	if c.Summary.APIKey != "" {
		return c.Summary.APIKey
	}
	return c.Summary.FallbackAPIKey
}

// ParseTimeRange converts a range string like "24h" or "7d" into a
// duration.
func ParseTimeRange(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid time range %q", s)
	}
	value, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid time range %q", s)
	}
	switch s[len(s)-1] {
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid time range unit in %q: use 'h' for hours or 'd' for days", s)
	}
}
