package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"incidentproxy/internal/domain"

	"gopkg.in/yaml.v3"
)

// ProviderConfig describes one push provider.
type ProviderConfig struct {
	// Response is the acknowledgement string returned on accepted
	// pushes.
	Response string `yaml:"response"`
	// Timezone, when set, marks the provider as pushing naive local
	// timestamps that must be converted to UTC.
	Timezone string `yaml:"timezone"`
	// Poll configures an optional background poller that fetches the
	// provider's feed and pushes it through the local push endpoint.
	Poll *PollConfig `yaml:"poll"`
}

// PollConfig drives a provider background poller.
type PollConfig struct {
	URL             string `yaml:"url"`
	IntervalSeconds int    `yaml:"interval_in_seconds"`
	TimeoutSeconds  int    `yaml:"timeout_in_seconds"`
}

// MaskSetting accepts either a boolean (derive the secret from the
// configuration) or a string (use it as the secret directly).
type MaskSetting struct {
	Enabled bool
	Secret  string

	set bool
}

func (m *MaskSetting) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	m.set = true
	var enabled bool
	if err := value.Decode(&enabled); err == nil {
		m.Enabled = enabled
		return nil
	}
	var secret string
	if err := value.Decode(&secret); err != nil {
		return err
	}
	m.Enabled = true
	m.Secret = secret
	return nil
}

// WitnessList tolerates a mix of bare URL strings and structured
// witness entries in the configuration.
type WitnessList []domain.Witness

func (w *WitnessList) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]domain.Witness, 0, len(value.Content))
	for _, node := range value.Content {
		switch node.Kind {
		case yaml.ScalarNode:
			url := strings.TrimSpace(node.Value)
			if url == "" {
				continue
			}
			out = append(out, domain.Witness{URL: url, Group: domain.DefaultGroup})
		case yaml.MappingNode:
			var witness domain.Witness
			if err := node.Decode(&witness); err != nil {
				return err
			}
			witness.URL = strings.TrimSpace(witness.URL)
			if witness.URL == "" {
				continue
			}
			if witness.Group == "" {
				witness.Group = domain.DefaultGroup
			}
			out = append(out, witness)
		}
	}
	*w = out
	return nil
}

// RetryConfig bounds witness delivery retries.
type RetryConfig struct {
	Number       int `yaml:"number"`
	DelaySeconds int `yaml:"delay"`
}

// SubscriptionsConfig tunes the fan-out to witnesses.
type SubscriptionsConfig struct {
	Witnesses          WitnessList    `yaml:"witnesses"`
	MaskProviders      MaskSetting    `yaml:"mask_providers"`
	WhitelistProviders []string       `yaml:"whitelist_providers"`
	Postfix            string         `yaml:"postfix"`
	DelayToNextSeconds int            `yaml:"delay_to_next_witness_in_seconds"`
	DelayOnlyFirst     int            `yaml:"delay_to_next_witness_only_first"`
	InitialDelay       map[string]int `yaml:"delay_before_initial_sending_in_seconds"`
	ShuffleTTLHours    int            `yaml:"shuffled_subscribers_expires_after_in_hours"`
	Retry              RetryConfig    `yaml:"retry_on_error"`
	TimeoutSeconds     int            `yaml:"timeout_in_seconds"`
	MaxInflight        int            `yaml:"max_inflight_deliveries"`
}

// ProvidersSetting holds cross-provider health thresholds.
type ProvidersSetting struct {
	ErrorAfterNoIncidentHours int `yaml:"error_after_no_incident_in_hours"`
}

// RemoteControl guards the replay endpoint.
type RemoteControl struct {
	Token string `yaml:"token"`
}

// ReplayConfig tunes historical replay.
type ReplayConfig struct {
	// DefaultReceived is used as bucket hint when no date can be
	// inferred from the name filter. It marks the wide-range search
	// that additionally queries the incident database.
	DefaultReceived []string `yaml:"default_received"`
}

// TaxonomyConfig points at the sports taxonomy used for
// normalization.
type TaxonomyConfig struct {
	File   string `yaml:"file"`
	Strict bool   `yaml:"strict"`
}

type Config struct {
	HTTPAddr   string `yaml:"http_addr"`
	DumpFolder string `yaml:"dump_folder"`

	Providers        map[string]ProviderConfig `yaml:"providers"`
	ProvidersSetting ProvidersSetting          `yaml:"providers_setting"`
	Subscriptions    SubscriptionsConfig       `yaml:"subscriptions"`
	RemoteControl    RemoteControl             `yaml:"remote_control"`
	Replay           ReplayConfig              `yaml:"replay"`
	Taxonomy         TaxonomyConfig            `yaml:"taxonomy"`

	// AllowedPushers restricts POST /push to these remote addresses.
	// Empty disables the check; localhost is always allowed.
	AllowedPushers []string `yaml:"allowed_pushers"`

	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// Load reads the YAML configuration, applies environment overrides
// and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = envDefault("HTTP_ADDR", c.HTTPAddr)
	c.DumpFolder = envDefault("DUMP_FOLDER", c.DumpFolder)
	c.PostgresDSN = envDefault("POSTGRES_DSN", c.PostgresDSN)
	c.SQLitePath = envDefault("SQLITE_PATH", c.SQLitePath)
	c.RedisAddr = envDefault("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envDefault("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envIntDefault("REDIS_DB", c.RedisDB)
	c.RemoteControl.Token = envDefault("REPLAY_TOKEN", c.RemoteControl.Token)
}

func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.DumpFolder == "" {
		c.DumpFolder = "dump"
	}
	if c.ProvidersSetting.ErrorAfterNoIncidentHours <= 0 {
		c.ProvidersSetting.ErrorAfterNoIncidentHours = 24
	}
	s := &c.Subscriptions
	// Masking is on unless the configuration explicitly disables it.
	if !s.MaskProviders.set {
		s.MaskProviders.Enabled = true
	}
	if s.Postfix == "" {
		s.Postfix = "/trigger"
	}
	if s.DelayToNextSeconds == 0 {
		s.DelayToNextSeconds = 30
	}
	if s.DelayOnlyFirst == 0 {
		s.DelayOnlyFirst = 4
	}
	if s.ShuffleTTLHours <= 0 {
		s.ShuffleTTLHours = 6
	}
	if s.Retry.Number == 0 {
		s.Retry.Number = 1
	}
	if s.Retry.DelaySeconds == 0 {
		s.Retry.DelaySeconds = 2
	}
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = 1
	}
	if s.MaxInflight <= 0 {
		s.MaxInflight = 32
	}
	if len(c.Replay.DefaultReceived) == 0 {
		c.Replay.DefaultReceived = []string{"2018"}
	}
}

// ProviderResponse returns the acknowledgement string for a provider.
func (c *Config) ProviderResponse(provider string) string {
	if p, ok := c.Providers[provider]; ok && p.Response != "" {
		return p.Response
	}
	return "RECEIVED_OK"
}

// ProviderNames lists configured providers.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	return names
}

// ShuffleTTL is how long a shuffled subscriber snapshot stays valid.
func (c *Config) ShuffleTTL() time.Duration {
	return time.Duration(c.Subscriptions.ShuffleTTLHours) * time.Hour
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}
