// Package config loads agent configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	cron "github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all agent configuration from environment variables.
// Mutable fields (SweepInterval, SweepCron, EscrowTimeout) are protected by
// an RWMutex and must be accessed via getter/setter methods at runtime, since
// the setters may be called while other goroutines read them.
type Config struct {
	// Identity
	Alias        string
	AuthorityAID string

	// HTTP
	HTTPPort   string
	WebhookURL string

	// Storage
	DBPath string

	// Logging
	LogJSON bool

	// Metrics
	MetricsEnabled  bool
	MetricsTextfile string // optional path for node_exporter textfile collection
	MetricsInterval time.Duration

	// Mode: "direct" or "indirect"
	Mode string

	// MQTT (indirect mode)
	MQTTBroker string
	MQTTTopics string // comma-separated

	// Schema mappings
	SchemaMappings     string // comma-separated "tag=SAID" pairs
	SchemaMappingsFile string // alternative YAML file

	// Inception
	InceptionFile string
	ClearEscrows  bool

	// Admin
	AdminTokenHash string // bcrypt hash guarding the admin endpoint

	// mu protects the mutable runtime fields below.
	mu            sync.RWMutex
	sweepInterval time.Duration
	sweepCron     string
	escrowTimeout time.Duration
}

// NewTestConfig creates a Config with sensible defaults for testing.
// Use the setter methods to override specific values.
func NewTestConfig() *Config {
	return &Config{
		Alias:         "test-agent",
		Mode:          "direct",
		sweepInterval: 5 * time.Second,
		escrowTimeout: 10 * time.Minute,
	}
}

// Load reads all configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Alias:              envStr("AGENT_ALIAS", "sally"),
		HTTPPort:           envStr("AGENT_HTTP_PORT", "9923"),
		WebhookURL:         envStr("AGENT_WEBHOOK_URL", ""),
		AuthorityAID:       envStr("AGENT_AUTHORITY_AID", ""),
		DBPath:             envStr("AGENT_DB_PATH", "/data/agent.db"),
		LogJSON:            envBool("AGENT_LOG_JSON", true),
		MetricsEnabled:     envBool("AGENT_METRICS_ENABLED", false),
		MetricsTextfile:    envStr("AGENT_METRICS_TEXTFILE", ""),
		MetricsInterval:    envDuration("AGENT_METRICS_INTERVAL", 30*time.Second),
		Mode:               envStr("AGENT_MODE", "direct"),
		MQTTBroker:         envStr("AGENT_MQTT_BROKER", ""),
		MQTTTopics:         envStr("AGENT_MQTT_TOPICS", ""),
		SchemaMappings:     envStr("AGENT_SCHEMA_MAPPINGS", ""),
		SchemaMappingsFile: envStr("AGENT_SCHEMA_MAPPINGS_FILE", ""),
		InceptionFile:      envStr("AGENT_INCEPTION_FILE", ""),
		ClearEscrows:       envBool("AGENT_CLEAR_ESCROWS", false),
		AdminTokenHash:     envStr("AGENT_ADMIN_TOKEN_HASH", ""),
		sweepInterval:      envDuration("AGENT_SWEEP_INTERVAL", 5*time.Second),
		sweepCron:          envStr("AGENT_SWEEP_CRON", ""),
		escrowTimeout:      envDuration("AGENT_ESCROW_TIMEOUT", 10*time.Minute),
	}
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	c.mu.RLock()
	si := c.sweepInterval
	sc := c.sweepCron
	et := c.escrowTimeout
	c.mu.RUnlock()

	var errs []error
	if si <= 0 {
		errs = append(errs, fmt.Errorf("AGENT_SWEEP_INTERVAL must be > 0, got %s", si))
	}
	if et <= 0 {
		errs = append(errs, fmt.Errorf("AGENT_ESCROW_TIMEOUT must be > 0, got %s", et))
	}
	if sc != "" {
		parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(sc); err != nil {
			errs = append(errs, fmt.Errorf("AGENT_SWEEP_CRON invalid: %w", err))
		}
	}
	switch c.Mode {
	case "direct", "indirect":
		// valid
	default:
		errs = append(errs, fmt.Errorf("AGENT_MODE must be direct or indirect, got %q", c.Mode))
	}
	if c.Mode == "indirect" && c.MQTTBroker == "" {
		errs = append(errs, fmt.Errorf("AGENT_MQTT_BROKER is required when AGENT_MODE=indirect"))
	}
	if c.WebhookURL == "" {
		errs = append(errs, fmt.Errorf("AGENT_WEBHOOK_URL must be set"))
	}
	if c.SchemaMappings == "" && c.SchemaMappingsFile == "" {
		errs = append(errs, fmt.Errorf("one of AGENT_SCHEMA_MAPPINGS or AGENT_SCHEMA_MAPPINGS_FILE must be set"))
	}
	return errors.Join(errs...)
}

// Values returns all configuration as a string map for display.
func (c *Config) Values() map[string]string {
	c.mu.RLock()
	si := c.sweepInterval
	sc := c.sweepCron
	et := c.escrowTimeout
	c.mu.RUnlock()

	return map[string]string{
		"AGENT_ALIAS":                c.Alias,
		"AGENT_HTTP_PORT":            c.HTTPPort,
		"AGENT_WEBHOOK_URL":          c.WebhookURL,
		"AGENT_AUTHORITY_AID":        c.AuthorityAID,
		"AGENT_ESCROW_TIMEOUT":       et.String(),
		"AGENT_SWEEP_INTERVAL":       si.String(),
		"AGENT_SWEEP_CRON":           sc,
		"AGENT_MODE":                 c.Mode,
		"AGENT_MQTT_BROKER":          c.MQTTBroker,
		"AGENT_MQTT_TOPICS":         c.MQTTTopics,
		"AGENT_SCHEMA_MAPPINGS":      c.SchemaMappings,
		"AGENT_SCHEMA_MAPPINGS_FILE": c.SchemaMappingsFile,
		"AGENT_DB_PATH":              c.DBPath,
		"AGENT_LOG_JSON":             fmt.Sprintf("%t", c.LogJSON),
		"AGENT_METRICS_ENABLED":      fmt.Sprintf("%t", c.MetricsEnabled),
		"AGENT_METRICS_TEXTFILE":     c.MetricsTextfile,
		"AGENT_METRICS_INTERVAL":     c.MetricsInterval.String(),
		"AGENT_INCEPTION_FILE":       c.InceptionFile,
		"AGENT_CLEAR_ESCROWS":        fmt.Sprintf("%t", c.ClearEscrows),
		"AGENT_ADMIN_TOKEN_HASH":     redactHash(c.AdminTokenHash),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// SweepInterval returns the current sweep interval (thread-safe).
func (c *Config) SweepInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sweepInterval
}

// SetSweepInterval updates the sweep interval at runtime (thread-safe).
func (c *Config) SetSweepInterval(d time.Duration) {
	c.mu.Lock()
	c.sweepInterval = d
	c.mu.Unlock()
}

// SweepCron returns the current cron override, if any (thread-safe).
func (c *Config) SweepCron() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sweepCron
}

// SetSweepCron updates the cron override at runtime (thread-safe).
func (c *Config) SetSweepCron(s string) {
	c.mu.Lock()
	c.sweepCron = s
	c.mu.Unlock()
}

// SweepSchedule parses the configured cron override with the same parser
// Validate checks against, and returns the resulting cron.Schedule for the
// scheduler to compute wake times from. A nil schedule and nil error means
// no override is configured, and the scheduler should fall back to its
// fixed AGENT_SWEEP_INTERVAL.
func (c *Config) SweepSchedule() (cron.Schedule, error) {
	c.mu.RLock()
	sc := c.sweepCron
	c.mu.RUnlock()
	if sc == "" {
		return nil, nil
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(sc)
	if err != nil {
		return nil, fmt.Errorf("parse AGENT_SWEEP_CRON: %w", err)
	}
	return sched, nil
}

// EscrowTimeout returns the current escrow timeout (thread-safe).
func (c *Config) EscrowTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.escrowTimeout
}

// SetEscrowTimeout updates the escrow timeout at runtime (thread-safe).
func (c *Config) SetEscrowTimeout(d time.Duration) {
	c.mu.Lock()
	c.escrowTimeout = d
	c.mu.Unlock()
}

// MQTTTopicList parses the comma-separated topics into a slice.
func (c *Config) MQTTTopicList() []string {
	if c.MQTTTopics == "" {
		return nil
	}
	var topics []string
	for _, t := range strings.Split(c.MQTTTopics, ",") {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			topics = append(topics, trimmed)
		}
	}
	return topics
}

// SchemaMappingPairs parses the comma-separated "tag=SAID" list into a map.
// If SchemaMappingsFile is set, it takes precedence over SchemaMappings and
// is parsed as YAML (a flat "tag: SAID" mapping document).
func (c *Config) SchemaMappingPairs() (map[string]string, error) {
	if c.SchemaMappingsFile != "" {
		return c.schemaMappingsFromFile()
	}

	out := make(map[string]string)
	if c.SchemaMappings == "" {
		return out, nil
	}
	for _, pair := range strings.Split(c.SchemaMappings, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			return nil, fmt.Errorf("AGENT_SCHEMA_MAPPINGS: malformed pair %q", pair)
		}
		out[kv[0]] = kv[1]
	}
	return out, nil
}

func (c *Config) schemaMappingsFromFile() (map[string]string, error) {
	data, err := os.ReadFile(c.SchemaMappingsFile)
	if err != nil {
		return nil, fmt.Errorf("read AGENT_SCHEMA_MAPPINGS_FILE: %w", err)
	}
	out := make(map[string]string)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse AGENT_SCHEMA_MAPPINGS_FILE: %w", err)
	}
	return out, nil
}

// redactHash returns "(set)" if the hash is non-empty, empty string otherwise.
func redactHash(s string) string {
	if s != "" {
		return "(set)"
	}
	return ""
}
