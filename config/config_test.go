package config

import "testing"

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv("SYNC_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")

	cfg := LoadEnv()

	if cfg.Sync.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want fallback 5", cfg.Sync.MaxAttempts)
	}
	if got := cfg.Kafka.Brokers; len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("Brokers = %v", got)
	}
	if !cfg.Kafka.Enabled() {
		t.Error("kafka should be enabled when brokers are set")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero attempts", func(c *Config) { c.Sync.MaxAttempts = 0 }},
		{"zero timeout", func(c *Config) { c.Sync.DispatchTimeoutMs = 0 }},
		{"zero interval", func(c *Config) { c.Sync.DrainIntervalSec = 0 }},
		{"unknown policy", func(c *Config) { c.Sync.EnqueuePolicy = "sometimes" }},
		{"no sqlite path", func(c *Config) { c.SQLite.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadEnv()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestForceOffline(t *testing.T) {
	if LoadEnv().Sync.ForceOffline {
		t.Fatal("forced offline should default to false")
	}
	t.Setenv("SYNC_FORCE_OFFLINE", "true")
	if !LoadEnv().Sync.ForceOffline {
		t.Error("SYNC_FORCE_OFFLINE=true not honoured")
	}
}
