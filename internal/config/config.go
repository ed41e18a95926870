package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/srvstatus/internal/domain"
)

// Config is the whole run configuration. Targets listed inline take
// precedence over TargetsFile; an empty StatusLog disables the status log.
type Config struct {
	Targets      []domain.Target `yaml:"targets"`
	TargetsFile  string          `yaml:"targets_file"`
	StatusLog    string          `yaml:"status_log"`
	LogDir       string          `yaml:"log_dir" validate:"required"`
	LogLevel     string          `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Probe        ProbeConfig     `yaml:"probe"`
	Mail         MailConfig      `yaml:"mail"`
	SlackWebhook string          `yaml:"slack_webhook" validate:"omitempty,url"`
}

type ProbeConfig struct {
	TimeoutMS        int    `yaml:"timeout_ms" validate:"gt=0"`
	RetryAttempts    int    `yaml:"retry_attempts" validate:"min=1"`
	RetryBackoffMS   int    `yaml:"retry_backoff_ms" validate:"min=0"`
	Concurrency      int    `yaml:"concurrency" validate:"min=1"`
	UnknownMechanism string `yaml:"unknown_mechanism" validate:"oneof=down skip"`
}

type MailConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port" validate:"min=1,max=65535"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from" validate:"omitempty,email"`
	Recipients []string `yaml:"recipients" validate:"dive,email"`
	StartTLS   bool     `yaml:"starttls"`
	TimeoutMS  int      `yaml:"timeout_ms" validate:"min=0"`
}

var validate = validator.New()

// Defaults are the file names and timeouts used when nothing is configured.
func Defaults() *Config {
	return &Config{
		TargetsFile: "server_list.txt",
		StatusLog:   "server_status.txt",
		LogDir:      "logs",
		LogLevel:    "info",
		Probe: ProbeConfig{
			TimeoutMS:        10000,
			RetryAttempts:    1,
			RetryBackoffMS:   300,
			Concurrency:      1,
			UnknownMechanism: "down",
		},
		Mail: MailConfig{
			Port:      587,
			StartTLS:  true,
			TimeoutMS: 30000,
		},
	}
}

// Load reads an optional .env file, an optional YAML file at path, then
// applies environment overrides and validates the result. An empty path
// means defaults plus environment only.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load(".env")
	}
	return nil
}

// Validate checks field formats and the mail settings that only matter
// once mail is enabled.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if len(c.Targets) == 0 && c.TargetsFile == "" {
		return errors.New("no targets: set targets inline or targets_file")
	}
	if c.Mail.Enabled {
		switch {
		case c.Mail.Host == "":
			return errors.New("SMTP_HOST is required when mail is enabled")
		case c.Mail.From == "":
			return errors.New("MAIL_FROM is required when mail is enabled")
		case len(c.Mail.Recipients) == 0:
			return errors.New("MAIL_RECIPIENTS is required when mail is enabled")
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.TargetsFile, "TARGETS_FILE")
	if v, ok := os.LookupEnv("STATUS_LOG"); ok {
		cfg.StatusLog = strings.TrimSpace(v)
	}
	setString(&cfg.LogDir, "LOG_DIR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.SlackWebhook, "SLACK_WEBHOOK")

	setInt(&cfg.Probe.TimeoutMS, "PROBE_TIMEOUT_MS")
	setInt(&cfg.Probe.RetryAttempts, "RETRY_ATTEMPTS")
	setInt(&cfg.Probe.RetryBackoffMS, "RETRY_BACKOFF_MS")
	setInt(&cfg.Probe.Concurrency, "MAX_CONCURRENT_CHECKS")
	setString(&cfg.Probe.UnknownMechanism, "UNKNOWN_MECHANISM")

	setBool(&cfg.Mail.Enabled, "MAIL_ENABLED")
	setString(&cfg.Mail.Host, "SMTP_HOST")
	setInt(&cfg.Mail.Port, "SMTP_PORT")
	setString(&cfg.Mail.Username, "SMTP_USERNAME")
	setString(&cfg.Mail.Password, "SMTP_PASSWORD")
	setBool(&cfg.Mail.StartTLS, "SMTP_STARTTLS")
	setString(&cfg.Mail.From, "MAIL_FROM")
	if v := os.Getenv("MAIL_RECIPIENTS"); v != "" {
		cfg.Mail.Recipients = splitList(v)
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (p ProbeConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

func (p ProbeConfig) RetryBackoff() time.Duration {
	return time.Duration(p.RetryBackoffMS) * time.Millisecond
}

func (m MailConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMS) * time.Millisecond
}
