package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/events"
)

// FileName is the workspace config file.
const FileName = "activityline.yml"

// Config models activityline.yml.
type Config struct {
	Org struct {
		ID string `yaml:"id"`
	} `yaml:"org"`
	Business struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"business"`
	Templates struct {
		DefaultValue string `yaml:"default_value"`
		MaxBytes     int    `yaml:"max_bytes"`
	} `yaml:"templates"`
	Activities struct {
		DefaultDueHours int `yaml:"default_due_hours"`
	} `yaml:"activities"`
	Engine struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"engine"`
	Escalation struct {
		Enabled             bool   `yaml:"enabled"`
		Schedule            string `yaml:"schedule"`
		EscalateAfterHours  int    `yaml:"escalate_after_hours"`
		MaxEscalations      int    `yaml:"max_escalations"`
		ReminderBeforeHours int    `yaml:"reminder_before_hours"`
	} `yaml:"escalation"`
	Events struct {
		Redis struct {
			Addr           string `yaml:"addr"`
			Channel        string `yaml:"channel"`
			InboundChannel string `yaml:"inbound_channel"`
		} `yaml:"redis"`
		Webhooks []events.Webhook `yaml:"webhooks"`
	} `yaml:"events"`
	Logging LoggingConfig `yaml:"logging"`
	Server  struct {
		Addr             string `yaml:"addr"`
		BasePath         string `yaml:"base_path"`
		JWTSecret        string `yaml:"jwt_secret"`
		AllowActorHeader bool   `yaml:"allow_actor_header"`
	} `yaml:"server"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Org.ID) == "" {
		return fmt.Errorf("config.org.id is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Templates.MaxBytes < 0 {
		return fmt.Errorf("config.templates.max_bytes must not be negative")
	}
	if c.Activities.DefaultDueHours <= 0 {
		return fmt.Errorf("config.activities.default_due_hours must be positive")
	}
	if c.Engine.Concurrency < 0 {
		return fmt.Errorf("config.engine.concurrency must not be negative")
	}
	if c.Escalation.Enabled {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(c.Escalation.Schedule); err != nil {
			return fmt.Errorf("config.escalation.schedule: %w", err)
		}
		if c.Escalation.EscalateAfterHours <= 0 {
			return fmt.Errorf("config.escalation.escalate_after_hours must be positive")
		}
	}
	if c.Escalation.MaxEscalations < 0 || c.Escalation.ReminderBeforeHours < 0 {
		return fmt.Errorf("config.escalation limits must not be negative")
	}
	for i, hook := range c.Events.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.events.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.events.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json", "logfmt":
	default:
		return fmt.Errorf("config.logging.format %q is not one of text, json, logfmt", c.Logging.Format)
	}
	return nil
}

// Location is the business timezone used for due dates and display.
func (c *Config) Location() (*time.Location, error) {
	if c.Business.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Business.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config.business.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) EscalateAfter() time.Duration {
	return time.Duration(c.Escalation.EscalateAfterHours) * time.Hour
}

func (c *Config) ReminderBefore() time.Duration {
	return time.Duration(c.Escalation.ReminderBeforeHours) * time.Hour
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with al init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML for an org.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault("default"))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// PatternCatalog is a file of activity patterns.
type PatternCatalog struct {
	Patterns []domain.ActivityPattern `yaml:"patterns"`
}

// LoadPatterns reads a pattern catalog. Patterns without an is_active key
// are active; structural validation is left to the engine.
func LoadPatterns(path string) ([]domain.ActivityPattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePatterns(data)
}

func ParsePatterns(data []byte) ([]domain.ActivityPattern, error) {
	var raw struct {
		Patterns []yaml.Node `yaml:"patterns"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid pattern yaml: %w", err)
	}
	out := make([]domain.ActivityPattern, 0, len(raw.Patterns))
	seen := map[string]bool{}
	for i, node := range raw.Patterns {
		p := domain.ActivityPattern{IsActive: true}
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("patterns[%d]: %w", i, err)
		}
		if p.PatternCode != "" {
			if seen[p.PatternCode] {
				return nil, fmt.Errorf("patterns[%d]: duplicate pattern_code %s", i, p.PatternCode)
			}
			seen[p.PatternCode] = true
		}
		out = append(out, p)
	}
	return out, nil
}

const defaultTemplate = `org:
  id: %s

business:
  timezone: UTC

templates:
  default_value: ""
  max_bytes: 16384

activities:
  default_due_hours: 24

engine:
  concurrency: 4

escalation:
  enabled: true
  schedule: "*/15 * * * *"
  escalate_after_hours: 24
  max_escalations: 3
  reminder_before_hours: 2

events:
  redis:
    addr: ""
    channel: activityline.events
    inbound_channel: crm.events
  webhooks: []

logging:
  level: info
  format: text

server:
  addr: 127.0.0.1:8080
  base_path: /v1
  allow_actor_header: true
`
