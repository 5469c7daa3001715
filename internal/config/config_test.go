package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"AGENT_ALIAS", "AGENT_SWEEP_INTERVAL", "AGENT_ESCROW_TIMEOUT",
		"AGENT_DB_PATH", "AGENT_LOG_JSON", "AGENT_MODE",
	} {
		os.Unsetenv(k)
	}

	cfg := Load()
	if cfg.Alias != "sally" {
		t.Errorf("Alias = %q, want sally", cfg.Alias)
	}
	if cfg.SweepInterval() != 5*time.Second {
		t.Errorf("SweepInterval = %s, want 5s", cfg.SweepInterval())
	}
	if cfg.EscrowTimeout() != 10*time.Minute {
		t.Errorf("EscrowTimeout = %s, want 10m", cfg.EscrowTimeout())
	}
	if cfg.DBPath != "/data/agent.db" {
		t.Errorf("DBPath = %q, want /data/agent.db", cfg.DBPath)
	}
	if !cfg.LogJSON {
		t.Error("LogJSON = false, want true")
	}
	if cfg.Mode != "direct" {
		t.Errorf("Mode = %q, want direct", cfg.Mode)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AGENT_SWEEP_INTERVAL", "1m")
	t.Setenv("AGENT_ESCROW_TIMEOUT", "30m")
	t.Setenv("AGENT_MODE", "indirect")
	t.Setenv("AGENT_LOG_JSON", "false")

	cfg := Load()
	if cfg.SweepInterval() != time.Minute {
		t.Errorf("SweepInterval = %s, want 1m", cfg.SweepInterval())
	}
	if cfg.EscrowTimeout() != 30*time.Minute {
		t.Errorf("EscrowTimeout = %s, want 30m", cfg.EscrowTimeout())
	}
	if cfg.Mode != "indirect" {
		t.Errorf("Mode = %q, want indirect", cfg.Mode)
	}
	if cfg.LogJSON {
		t.Error("LogJSON = true, want false")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := NewTestConfig()
		c.WebhookURL = "https://example.com/hook"
		c.SchemaMappings = "qvi=ESAID"
		return c
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(_ *Config) {}, false},
		{"zero sweep interval", func(c *Config) { c.SetSweepInterval(0) }, true},
		{"zero escrow timeout", func(c *Config) { c.SetEscrowTimeout(0) }, true},
		{"invalid mode", func(c *Config) { c.Mode = "yolo" }, true},
		{"indirect without broker", func(c *Config) { c.Mode = "indirect" }, true},
		{"indirect with broker", func(c *Config) { c.Mode = "indirect"; c.MQTTBroker = "tcp://localhost:1883" }, false},
		{"missing webhook url", func(c *Config) { c.WebhookURL = "" }, true},
		{"invalid cron", func(c *Config) { c.SetSweepCron("not a cron") }, true},
		{"valid cron", func(c *Config) { c.SetSweepCron("*/5 * * * *") }, false},
		{"no schema mappings", func(c *Config) { c.SchemaMappings = ""; c.SchemaMappingsFile = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSweepScheduleUnsetReturnsNil(t *testing.T) {
	c := NewTestConfig()
	sched, err := c.SweepSchedule()
	if err != nil {
		t.Fatalf("SweepSchedule: %v", err)
	}
	if sched != nil {
		t.Errorf("SweepSchedule = %v, want nil without AGENT_SWEEP_CRON", sched)
	}
}

func TestSweepScheduleParsesCron(t *testing.T) {
	c := NewTestConfig()
	c.SetSweepCron("*/5 * * * *")
	sched, err := c.SweepSchedule()
	if err != nil {
		t.Fatalf("SweepSchedule: %v", err)
	}
	if sched == nil {
		t.Fatal("SweepSchedule = nil, want a parsed schedule")
	}
}

func TestSweepScheduleRejectsInvalidCron(t *testing.T) {
	c := NewTestConfig()
	c.SetSweepCron("not a cron")
	if _, err := c.SweepSchedule(); err == nil {
		t.Fatal("SweepSchedule() error = nil, want error for invalid cron")
	}
}

func TestSchemaMappingPairs(t *testing.T) {
	cfg := NewTestConfig()
	cfg.SchemaMappings = "vlei-qvi=ESAIDone, vlei-le=ESAIDtwo"

	pairs, err := cfg.SchemaMappingPairs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pairs["vlei-qvi"] != "ESAIDone" {
		t.Errorf("pairs[vlei-qvi] = %q, want ESAIDone", pairs["vlei-qvi"])
	}
	if pairs["vlei-le"] != "ESAIDtwo" {
		t.Errorf("pairs[vlei-le] = %q, want ESAIDtwo", pairs["vlei-le"])
	}
}

func TestSchemaMappingPairsMalformed(t *testing.T) {
	cfg := NewTestConfig()
	cfg.SchemaMappings = "justatag"

	if _, err := cfg.SchemaMappingPairs(); err == nil {
		t.Error("expected error for malformed schema mapping pair")
	}
}

func TestSchemaMappingPairsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/mappings.yaml"
	if err := os.WriteFile(path, []byte("vlei-qvi: ESAIDone\nvlei-le: ESAIDtwo\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := NewTestConfig()
	cfg.SchemaMappingsFile = path
	cfg.SchemaMappings = "vlei-qvi=ignored" // file takes precedence

	pairs, err := cfg.SchemaMappingPairs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pairs["vlei-qvi"] != "ESAIDone" || pairs["vlei-le"] != "ESAIDtwo" {
		t.Errorf("pairs = %v, want ESAIDone/ESAIDtwo", pairs)
	}
}

func TestSchemaMappingPairsFromFileMissing(t *testing.T) {
	cfg := NewTestConfig()
	cfg.SchemaMappingsFile = "/nonexistent/mappings.yaml"

	if _, err := cfg.SchemaMappingPairs(); err == nil {
		t.Error("expected error for missing schema mappings file")
	}
}

func TestMQTTTopicList(t *testing.T) {
	cfg := NewTestConfig()
	cfg.MQTTTopics = "credential, delegate ,challenge"

	got := cfg.MQTTTopicList()
	want := []string{"credential", "delegate", "challenge"}
	if len(got) != len(want) {
		t.Fatalf("MQTTTopicList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("MQTTTopicList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
