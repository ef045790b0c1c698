package config

import (
	"testing"
	"time"
)

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "45s")
	if got := getEnvAsDuration("TEST_DURATION", time.Minute); got != 45*time.Second {
		t.Errorf("getEnvAsDuration() = %v, want 45s", got)
	}

	t.Setenv("TEST_DURATION", "not-a-duration")
	if got := getEnvAsDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("getEnvAsDuration() = %v, want default 1m", got)
	}
}

func TestGetEnvAsStringSlice(t *testing.T) {
	t.Setenv("TEST_LANGS", "en,en-US,en-GB")
	got := getEnvAsStringSlice("TEST_LANGS", nil)
	if len(got) != 3 || got[0] != "en" || got[2] != "en-GB" {
		t.Errorf("getEnvAsStringSlice() = %v", got)
	}

	t.Setenv("TEST_LANGS", "  ")
	if got := getEnvAsStringSlice("TEST_LANGS", []string{"en"}); len(got) != 1 {
		t.Errorf("blank value should fall back to default, got %v", got)
	}
}

func TestValidateTimeouts(t *testing.T) {
	cfg := &Config{
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   6 * time.Minute,
		RequestTimeout: 10 * time.Minute,
		Pipeline:       PipelineConfig{Budget: 5 * time.Minute},
	}
	if err := validateTimeouts(cfg); err != nil {
		t.Errorf("validateTimeouts() = %v, want nil", err)
	}

	cfg.Pipeline.Budget = 20 * time.Minute
	if err := validateTimeouts(cfg); err == nil {
		t.Error("budget longer than request timeout should fail validation")
	}

	// A write deadline shorter than the pipeline budget would cut the
	// response off after the course is generated.
	cfg.Pipeline.Budget = 5 * time.Minute
	cfg.WriteTimeout = 15 * time.Second
	if err := validateTimeouts(cfg); err == nil {
		t.Error("budget longer than write timeout should fail validation")
	}
}

func TestLoadDefaultWriteTimeoutCoversPipelineBudget(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LOG_DIR", dir+"/logs")
	t.Setenv("TEMP_DIR", dir+"/tmp")
	t.Setenv("VIDEOS_DIR", dir+"/videos")
	t.Setenv("DB_PATH", dir+"/data.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.WriteTimeout <= cfg.Pipeline.Budget {
		t.Errorf("default write timeout %v must exceed default pipeline budget %v",
			cfg.WriteTimeout, cfg.Pipeline.Budget)
	}
}

func TestSpacesConfigured(t *testing.T) {
	var cfg SpacesConfig
	if cfg.Configured() {
		t.Error("empty Spaces config should not report configured")
	}
	cfg = SpacesConfig{AccessKey: "k", SecretKey: "s", Bucket: "b"}
	if !cfg.Configured() {
		t.Error("complete Spaces config should report configured")
	}
}
