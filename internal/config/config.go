// Package config provides YAML-based configuration loading for courier.
// Values of the form ${VAR} are replaced from the environment before
// parsing; secrets may also be "keyring:<name>" references, resolved by
// ResolveSecrets.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/zulandar/courier/internal/credential"
	"github.com/zulandar/courier/internal/db"
	"github.com/zulandar/courier/internal/telegraph"
	"gopkg.in/yaml.v3"
)

// Config is the top-level courier configuration, loaded from courier.yaml.
type Config struct {
	Platform  string           `yaml:"platform"` // telegram, discord or slack
	Locale    string           `yaml:"locale"`   // en or tr
	Admins    []string         `yaml:"admins"`   // allow-listed platform user IDs
	Telegram  TelegramConfig   `yaml:"telegram"`
	Discord   DiscordConfig    `yaml:"discord"`
	Slack     SlackConfig      `yaml:"slack"`
	Mail      MailConfig       `yaml:"mail"`
	AI        AIConfig         `yaml:"ai"`
	Templates []TemplateConfig `yaml:"templates"`
	Session   SessionConfig    `yaml:"session"`
	Database  DatabaseConfig   `yaml:"database"`
	Health    HealthConfig     `yaml:"health"`
}

// TelegramConfig holds Telegram bot credentials.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
}

// DiscordConfig holds Discord bot credentials.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
}

// SlackConfig holds Slack Socket Mode credentials.
type SlackConfig struct {
	AppToken string `yaml:"app_token"` // xapp-...
	BotToken string `yaml:"bot_token"` // xoxb-...
}

// MailConfig configures outgoing mail.
type MailConfig struct {
	From   string      `yaml:"from"`   // "Name <addr>" or bare address
	Footer string      `yaml:"footer"` // appended once to every body
	SMTP   SMTPConfig  `yaml:"smtp"`
	Gmail  GmailConfig `yaml:"gmail"`
}

// SMTPConfig is the primary transport.
type SMTPConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	Security         string `yaml:"security"` // starttls, tls or none
	VerifyTimeoutSec int    `yaml:"verify_timeout_sec"`
}

// GmailConfig is the HTTP API fallback transport.
type GmailConfig struct {
	ClientID           string `yaml:"client_id"`
	ClientSecret       string `yaml:"client_secret"`
	RefreshToken       string `yaml:"refresh_token"`
	ServiceAccountFile string `yaml:"service_account_file"`
	Subject            string `yaml:"subject"` // mailbox impersonated by the service account
}

// AIConfig configures the email drafting model. An empty API key disables
// the feature.
type AIConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	BaseURL   string `yaml:"base_url"`
}

// TemplateConfig is a ready-made email offered from the template menu.
type TemplateConfig struct {
	Key     string `yaml:"key"`
	Label   string `yaml:"label"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// SessionConfig tunes conversation handling.
type SessionConfig struct {
	IdleTTLMin  int    `yaml:"idle_ttl_min"`
	SweepCron   string `yaml:"sweep_cron"`
	MenuDelayMS int    `yaml:"menu_delay_ms"`
}

// DatabaseConfig configures the optional delivery log. An empty driver
// disables it.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite or mysql
	Path     string `yaml:"path"`   // sqlite file
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// HealthConfig configures the HTTP health server. Port 0 disables it.
type HealthConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands environment variables, unmarshals YAML bytes and returns a
// validated Config.
func Parse(data []byte) (*Config, error) {
	cfg, err := parseUnchecked(data)
	if err != nil {
		return nil, err
	}
	if problems := cfg.Problems(); len(problems) > 0 {
		return nil, fmt.Errorf("config: validation failed: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// LoadUnchecked reads and defaults a config without validating it, so that
// check-config can list every problem.
func LoadUnchecked(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return parseUnchecked(data)
}

func parseUnchecked(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} with the environment value; unset variables
// expand to the empty string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	c.Platform = strings.ToLower(strings.TrimSpace(c.Platform))
	if c.Locale == "" {
		c.Locale = "en"
	}
	if c.Mail.SMTP.Host != "" && c.Mail.SMTP.Port == 0 {
		c.Mail.SMTP.Port = 587
	}
	if c.Mail.SMTP.VerifyTimeoutSec == 0 {
		c.Mail.SMTP.VerifyTimeoutSec = 12
	}
	if c.AI.Model == "" {
		c.AI.Model = "gpt-3.5-turbo"
	}
	if c.AI.MaxTokens == 0 {
		c.AI.MaxTokens = 400
	}
	if c.Session.IdleTTLMin == 0 {
		c.Session.IdleTTLMin = 60
	}
	if c.Session.SweepCron == "" {
		c.Session.SweepCron = "*/10 * * * *"
	}
	if c.Session.MenuDelayMS == 0 {
		c.Session.MenuDelayMS = 2000
	}
	switch c.Database.Driver {
	case db.DriverSQLite:
		if c.Database.Path == "" {
			c.Database.Path = "courier.db"
		}
	case db.DriverMySQL:
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.Name == "" {
			c.Database.Name = "courier"
		}
	}
	if c.Health.Bind == "" {
		c.Health.Bind = "127.0.0.1"
	}
	for i := range c.Templates {
		if c.Templates[i].Label == "" {
			c.Templates[i].Label = c.Templates[i].Subject
		}
	}
}

// Problems lists every missing or inconsistent setting.
func (c *Config) Problems() []string {
	var errs []string
	switch c.Platform {
	case "":
		errs = append(errs, "platform is required (telegram, discord or slack)")
	case "telegram":
		if c.Telegram.BotToken == "" {
			errs = append(errs, "telegram.bot_token is required")
		}
	case "discord":
		if c.Discord.BotToken == "" {
			errs = append(errs, "discord.bot_token is required")
		}
	case "slack":
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required")
		}
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("platform %q is not supported", c.Platform))
	}
	if c.Locale != "en" && c.Locale != "tr" {
		errs = append(errs, fmt.Sprintf("locale %q is not supported (en or tr)", c.Locale))
	}
	if len(c.Admins) == 0 {
		errs = append(errs, "at least one admin user ID is required")
	}

	if c.MailEnabled() && c.Mail.From == "" {
		errs = append(errs, "mail.from is required when a mail transport is configured")
	}
	g := c.Mail.Gmail
	if g.RefreshToken != "" && (g.ClientID == "" || g.ClientSecret == "") {
		errs = append(errs, "mail.gmail.client_id and client_secret are required with a refresh_token")
	}
	switch c.Mail.SMTP.Security {
	case "", "starttls", "tls", "none":
	default:
		errs = append(errs, fmt.Sprintf("mail.smtp.security %q is not supported", c.Mail.SMTP.Security))
	}

	seen := make(map[string]bool)
	for i, t := range c.Templates {
		if t.Key == "" {
			errs = append(errs, fmt.Sprintf("templates[%d].key is required", i))
		} else if seen[t.Key] {
			errs = append(errs, fmt.Sprintf("templates[%d].key %q is duplicated", i, t.Key))
		}
		seen[t.Key] = true
		if t.Subject == "" {
			errs = append(errs, fmt.Sprintf("templates[%d].subject is required", i))
		}
	}

	if c.Session.SweepCron != "off" {
		if err := telegraph.ValidCron(c.Session.SweepCron); err != nil {
			errs = append(errs, fmt.Sprintf("session.sweep_cron: %v", err))
		}
	}
	if c.Session.MenuDelayMS < 0 {
		errs = append(errs, "session.menu_delay_ms must not be negative")
	}

	switch c.Database.Driver {
	case "", db.DriverSQLite, db.DriverMySQL:
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite or mysql)", c.Database.Driver))
	}
	if c.Health.Port < 0 || c.Health.Port > 65535 {
		errs = append(errs, "health.port must be between 0 and 65535")
	}
	return errs
}

// ResolveSecrets replaces keyring references in secret fields with the
// stored values.
func (c *Config) ResolveSecrets() error {
	err := credential.ResolveAll(
		&c.Telegram.BotToken,
		&c.Discord.BotToken,
		&c.Slack.AppToken,
		&c.Slack.BotToken,
		&c.Mail.SMTP.Password,
		&c.Mail.Gmail.ClientSecret,
		&c.Mail.Gmail.RefreshToken,
		&c.AI.APIKey,
		&c.Database.Password,
	)
	if err != nil {
		return fmt.Errorf("config: resolve secrets: %w", err)
	}
	return nil
}

// SMTPEnabled reports whether the SMTP transport is configured.
func (c *Config) SMTPEnabled() bool { return c.Mail.SMTP.Host != "" }

// GmailEnabled reports whether the Gmail API transport is configured.
func (c *Config) GmailEnabled() bool {
	return c.Mail.Gmail.RefreshToken != "" || c.Mail.Gmail.ServiceAccountFile != ""
}

// MailEnabled reports whether any mail transport is configured. Without one
// the bot still runs and answers a send with a "mail not configured" card.
func (c *Config) MailEnabled() bool { return c.SMTPEnabled() || c.GmailEnabled() }

// Warnings lists settings that disable a feature without stopping the bot.
func (c *Config) Warnings() []string {
	var warns []string
	if !c.MailEnabled() {
		warns = append(warns, "no mail transport (mail.smtp.host or mail.gmail); sending is disabled")
	}
	if !c.AIEnabled() {
		warns = append(warns, "no ai.api_key; AI drafting is disabled")
	}
	return warns
}

// AIEnabled reports whether AI drafting is configured.
func (c *Config) AIEnabled() bool { return strings.TrimSpace(c.AI.APIKey) != "" }

// DatabaseEnabled reports whether the delivery log is configured.
func (c *Config) DatabaseEnabled() bool { return c.Database.Driver != "" }

// DSN returns the connection string for the configured database driver.
func (c *Config) DSN() string {
	if c.Database.Driver == db.DriverMySQL {
		d := c.Database
		return db.MySQLDSN(d.Host, d.Port, d.User, d.Password, d.Name)
	}
	return c.Database.Path
}

// SweepEnabled reports whether idle sessions are swept on a schedule.
func (c *Config) SweepEnabled() bool { return c.Session.SweepCron != "off" }

// MenuDelay is the pause before the root menu reappears after a send or a
// fatal AI error.
func (c *Config) MenuDelay() time.Duration {
	return time.Duration(c.Session.MenuDelayMS) * time.Millisecond
}

// IdleTTL is how long an untouched session survives.
func (c *Config) IdleTTL() time.Duration {
	return time.Duration(c.Session.IdleTTLMin) * time.Minute
}

// VerifyTimeout bounds the SMTP pre-send probe.
func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.Mail.SMTP.VerifyTimeoutSec) * time.Second
}
