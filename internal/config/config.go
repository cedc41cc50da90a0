// Package config loads and validates the daemon settings with Viper and
// builds the Zap logger.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/campusnet/internal/portal"
	"github.com/HerbHall/campusnet/internal/probe"
	"github.com/HerbHall/campusnet/internal/retry"
	"github.com/spf13/viper"
)

var (
	// ErrMissingFields is returned when a required setting is empty.
	ErrMissingFields = errors.New("missing required fields")
	// ErrPlaceholder is returned when the example credentials were not replaced.
	ErrPlaceholder = errors.New("configuration contains placeholder values")
)

// Placeholder credentials shipped in the example configuration.
const (
	PlaceholderUsername = "your_student_id"
	PlaceholderPassword = "your_password" //nolint:gosec // G101: example placeholder, not a credential
)

// Settings is the validated daemon configuration. It is built once at
// startup and passed by reference; nothing mutates it afterwards.
type Settings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"` //nolint:gosec // G101: field name, not a credential
	LoginURL string `mapstructure:"login_url"`

	DNSServers         []string `mapstructure:"dns_servers"`
	DNSTimeout         int      `mapstructure:"dns_timeout"` // seconds
	HTTPCheckURL       string   `mapstructure:"http_check_url"`
	HTTPExpectedDomain string   `mapstructure:"http_expected_domain"`
	HTTPTimeout        int      `mapstructure:"http_timeout"` // seconds
	UserAgent          string   `mapstructure:"user_agent"`

	MaxRetry           int     `mapstructure:"max_retry"`
	RetryBaseDelay     int     `mapstructure:"retry_base_delay"` // seconds
	RetryBackoffFactor float64 `mapstructure:"retry_backoff_factor"`
	RetryMaxDelay      int     `mapstructure:"retry_max_delay"` // seconds
	CheckInterval      int     `mapstructure:"check_interval"`  // seconds

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	History HistoryConfig `mapstructure:"history"`
	Status  StatusConfig  `mapstructure:"status"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// HistoryConfig controls the SQLite event history. Empty Path disables it.
type HistoryConfig struct {
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

// StatusConfig controls the local status server. Empty Addr disables it.
type StatusConfig struct {
	Addr  string `mapstructure:"addr"`
	Token string `mapstructure:"token"` //nolint:gosec // G101: field name, not a credential
}

// WebhookConfig controls outage notifications. Empty URL disables them.
type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"` //nolint:gosec // G101: field name, not a credential
	Timeout time.Duration `mapstructure:"timeout"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	// Required keys get empty defaults so environment overrides are seen by Unmarshal.
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("login_url", "")

	v.SetDefault("dns_servers", []string{"223.5.5.5", "8.8.8.8"})
	v.SetDefault("dns_timeout", 3)
	v.SetDefault("http_check_url", "http://www.baidu.com")
	v.SetDefault("http_expected_domain", "")
	v.SetDefault("http_timeout", 5)
	v.SetDefault("user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	v.SetDefault("max_retry", 5)
	v.SetDefault("retry_base_delay", 5)
	v.SetDefault("retry_backoff_factor", 2.0)
	v.SetDefault("retry_max_delay", 60)
	v.SetDefault("check_interval", 60)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	v.SetDefault("history.path", "")
	v.SetDefault("history.retention", "720h")
	v.SetDefault("status.addr", "")
	v.SetDefault("status.token", "")
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "10s")
}

// Load reads configuration from file and environment variables.
// With an empty configPath it looks for campusnet.{json,yaml,toml} in
// ".", "./configs" and "/etc/campusnet"; a missing file is not an error
// there because credentials may come from CAMPUSNET_* variables.
func Load(configPath string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("campusnet")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/campusnet")
	}

	// Environment variable support: CAMPUSNET_PASSWORD, CAMPUSNET_HISTORY_PATH.
	v.SetEnvPrefix("CAMPUSNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	return v, nil
}

// Parse decodes v into Settings and validates it.
func Parse(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks required fields, placeholders and numeric ranges.
func (s *Settings) Validate() error {
	var missing []string
	if strings.TrimSpace(s.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(s.Password) == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(s.LoginURL) == "" {
		missing = append(missing, "login_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	if s.Username == PlaceholderUsername || s.Password == PlaceholderPassword {
		return fmt.Errorf("%w: edit the config with your actual credentials", ErrPlaceholder)
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{"dns_timeout must be positive", s.DNSTimeout > 0},
		{"http_timeout must be positive", s.HTTPTimeout > 0},
		{"http_check_url must be set", s.HTTPCheckURL != ""},
		{"max_retry must be at least 1", s.MaxRetry >= 1},
		{"retry_base_delay must not be negative", s.RetryBaseDelay >= 0},
		{"retry_backoff_factor must be at least 1", s.RetryBackoffFactor >= 1},
		{"retry_max_delay must not be negative", s.RetryMaxDelay >= 0},
		{"check_interval must be positive", s.CheckInterval > 0},
	}
	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("invalid config: %s", c.name)
		}
	}
	return nil
}

// Credentials returns the login identity.
func (s *Settings) Credentials() portal.Credentials {
	return portal.Credentials{
		Username: s.Username,
		Password: s.Password,
		LoginURL: s.LoginURL,
	}
}

// RetryPolicy returns the login backoff policy.
func (s *Settings) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:   s.MaxRetry,
		BaseDelay:     seconds(s.RetryBaseDelay),
		BackoffFactor: s.RetryBackoffFactor,
		Cap:           seconds(s.RetryMaxDelay),
	}
}

// HTTPProbeConfig returns the HTTP probe settings.
func (s *Settings) HTTPProbeConfig() probe.HTTPConfig {
	return probe.HTTPConfig{
		Timeout:        seconds(s.HTTPTimeout),
		UserAgent:      s.UserAgent,
		ExpectedDomain: s.HTTPExpectedDomain,
	}
}

// DNSTimeoutDuration returns the ICMP probe timeout.
func (s *Settings) DNSTimeoutDuration() time.Duration {
	return seconds(s.DNSTimeout)
}

// CheckIntervalDuration returns the pause between polls.
func (s *Settings) CheckIntervalDuration() time.Duration {
	return seconds(s.CheckInterval)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
