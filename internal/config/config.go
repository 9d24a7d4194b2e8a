package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Duration is a time.Duration read from strings such as "5m".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config holds all configuration for the application.
type Config struct {
	// GitHubToken authenticates against the contents API.
	GitHubToken string `toml:"github_token"`

	// GitHubOwner and GitHubRepo name the repository that stores the feed.
	GitHubOwner string `toml:"github_owner"`
	GitHubRepo  string `toml:"github_repo"`

	// GitHubBranch is the branch all documents are read from and committed to.
	GitHubBranch string `toml:"github_branch"`

	// GitHubAPIURL is the REST endpoint, overridable for GitHub Enterprise.
	GitHubAPIURL string `toml:"github_api_url"`

	// GitHubRPS throttles outgoing API requests.
	GitHubRPS float64 `toml:"github_rps"`

	// Port is the HTTP server port.
	Port int `toml:"port" env:"PORT" validate:"min=1,max=65535"`

	// JournalURL selects the publish journal: a postgres:// URL, a SQLite file
	// path, or empty for none.
	JournalURL string `toml:"journal_url"`

	// ReconcileInterval is how often the server relinks orphaned posts.
	ReconcileInterval Duration `toml:"reconcile_interval" env:"RECONCILE_INTERVAL" validate:"gt=0"`

	// ReconcileGrace is how old a journal entry must be before it is
	// considered orphaned.
	ReconcileGrace Duration `toml:"reconcile_grace" env:"RECONCILE_GRACE" validate:"gte=0"`

	ActivityMaxAttempts  int `toml:"activity_max_attempts" env:"ACTIVITY_MAX_ATTEMPTS" validate:"gt=0"`
	IndexWriteAttempts   int `toml:"index_write_attempts" env:"INDEX_WRITE_ATTEMPTS" validate:"gt=0"`
	PublishRatePerMinute int `toml:"publish_rate_per_minute" env:"PUBLISH_RATE_PER_MINUTE" validate:"gte=0"`
}

// Load reads configuration from the TOML file named by ORKUTFEED_CONFIG (if
// set), then applies environment variable overrides and defaults.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("ORKUTFEED_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	setString(&cfg.GitHubToken, "GITHUB_TOKEN")
	setString(&cfg.GitHubOwner, "GITHUB_OWNER")
	setString(&cfg.GitHubRepo, "GITHUB_REPO")
	setString(&cfg.GitHubBranch, "GITHUB_BRANCH")
	setString(&cfg.GitHubAPIURL, "GITHUB_API_URL")
	setString(&cfg.JournalURL, "JOURNAL_URL")

	if err := setFloat(&cfg.GitHubRPS, "GITHUB_RPS"); err != nil {
		return nil, err
	}
	for _, v := range []struct {
		dst *int
		key string
	}{
		{&cfg.Port, "PORT"},
		{&cfg.ActivityMaxAttempts, "ACTIVITY_MAX_ATTEMPTS"},
		{&cfg.IndexWriteAttempts, "INDEX_WRITE_ATTEMPTS"},
		{&cfg.PublishRatePerMinute, "PUBLISH_RATE_PER_MINUTE"},
	} {
		if err := setInt(v.dst, v.key); err != nil {
			return nil, err
		}
	}
	if err := setDuration(&cfg.ReconcileInterval, "RECONCILE_INTERVAL"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.ReconcileGrace, "RECONCILE_GRACE"); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if cfg.GitHubToken == "" || cfg.GitHubOwner == "" || cfg.GitHubRepo == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN, GITHUB_OWNER and GITHUB_REPO are required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.GitHubBranch == "" {
		c.GitHubBranch = "main"
	}
	if c.GitHubAPIURL == "" {
		c.GitHubAPIURL = "https://api.github.com"
	}
	if c.GitHubRPS == 0 {
		c.GitHubRPS = 5
	}
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.ReconcileInterval == 0 {
		c.ReconcileInterval = Duration(5 * time.Minute)
	}
	if c.ReconcileGrace == 0 {
		c.ReconcileGrace = Duration(2 * time.Minute)
	}
	if c.ActivityMaxAttempts == 0 {
		c.ActivityMaxAttempts = 5
	}
	if c.IndexWriteAttempts == 0 {
		c.IndexWriteAttempts = 3
	}
	if c.PublishRatePerMinute == 0 {
		c.PublishRatePerMinute = 30
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})
	return v
}

// validate rejects values that are set but out of range, such as a negative
// reconcile interval.
func (c *Config) validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s (%s=%s)", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Errorf("invalid %s", strings.Join(msgs, ", "))
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = Duration(d)
	return nil
}
