package config

import (
	"path/filepath"
	"testing"
)

func TestAvmlHomePrecedence(t *testing.T) {
	t.Setenv("AVML_HOME", "")
	SetConfigDir("")
	defer SetConfigDir("")

	t.Setenv("AVML_HOME", "/from/env")
	if got := AvmlHome(); got != "/from/env" {
		t.Errorf("AvmlHome() = %q, want /from/env (env var)", got)
	}

	SetConfigDir("/from/flag")
	if got := AvmlHome(); got != "/from/flag" {
		t.Errorf("AvmlHome() = %q, want /from/flag (flag overrides env)", got)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	SetConfigDir(t.TempDir())
	defer SetConfigDir("")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load on missing config: %v", err)
	}
	if cfg.DefaultCompress || cfg.MaxDiskUsageMB != 0 || cfg.LogLevel != "" {
		t.Errorf("Load on missing config returned non-zero defaults: %+v", cfg)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	SetConfigDir(t.TempDir())
	defer SetConfigDir("")

	want := &Config{
		DefaultCompress:        true,
		DefaultSource:          "crash",
		MaxDiskUsageMB:         1024,
		MaxDiskUsagePercentage: 90.0,
		SasBlockSizeMB:         100,
		SasBlockConcurrency:    4,
		LogLevel:               "debug",
	}
	if err := Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if got := ConfigPath(); filepath.Base(got) != "config.toml" {
		t.Errorf("ConfigPath() = %q, want a config.toml filename", got)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *got != *want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestGetSetRoundTrips(t *testing.T) {
	SetConfigDir(t.TempDir())
	defer SetConfigDir("")

	if err := Set("log_level", "warn"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Set("max_disk_usage_mb", "2048"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := Set("default_compress", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if got, err := Get("log_level"); err != nil || got != "warn" {
		t.Errorf("Get(log_level) = %q, %v, want warn, nil", got, err)
	}
	if got, err := Get("max_disk_usage_mb"); err != nil || got != "2048" {
		t.Errorf("Get(max_disk_usage_mb) = %q, %v, want 2048, nil", got, err)
	}
	if got, err := Get("default_compress"); err != nil || got != "true" {
		t.Errorf("Get(default_compress) = %q, %v, want true, nil", got, err)
	}
}

func TestGetSetRejectUnknownKey(t *testing.T) {
	SetConfigDir(t.TempDir())
	defer SetConfigDir("")

	if _, err := Get("nonexistent"); err == nil {
		t.Error("Get on an unknown key should error")
	}
	if err := Set("nonexistent", "x"); err == nil {
		t.Error("Set on an unknown key should error")
	}
}

func TestSetRejectsMalformedValue(t *testing.T) {
	SetConfigDir(t.TempDir())
	defer SetConfigDir("")

	if err := Set("max_disk_usage_mb", "not-a-number"); err == nil {
		t.Error("Set(max_disk_usage_mb, \"not-a-number\") should error")
	}
	if err := Set("default_compress", "not-a-bool"); err == nil {
		t.Error("Set(default_compress, \"not-a-bool\") should error")
	}
}
