package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/amaumene/harvestarr/internal/models"
)

func newTestViper(t *testing.T, values map[string]interface{}) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.Set("CONFIG_DIR", t.TempDir())
	for key, value := range values {
		v.Set(key, value)
	}
	return v
}

func TestDefaults(t *testing.T) {
	v := newTestViper(t, nil)

	cfg, err := fromViper(v)
	if err != nil {
		t.Fatalf("fromViper() error = %v", err)
	}

	if cfg.DefaultQualityTier != models.QualityHigh {
		t.Errorf("Expected default tier high, got %s", cfg.DefaultQualityTier)
	}
	if cfg.MaxConcurrentTransfers != 3 {
		t.Errorf("Expected 3 concurrent transfers, got %d", cfg.MaxConcurrentTransfers)
	}
	if cfg.HistoryMax != 100 {
		t.Errorf("Expected history max 100, got %d", cfg.HistoryMax)
	}
	if cfg.TransferTimeout != 120*time.Second {
		t.Errorf("Expected 120s timeout, got %v", cfg.TransferTimeout)
	}
	if cfg.ResolveCacheTTL != 10*time.Minute {
		t.Errorf("Expected 10m cache TTL, got %v", cfg.ResolveCacheTTL)
	}
	if cfg.JobSweepSchedule != "@every 30s" {
		t.Errorf("Unexpected sweep schedule %q", cfg.JobSweepSchedule)
	}
	if filepath.Base(cfg.DatabaseFile) != "harvestarr.db" {
		t.Errorf("Unexpected database file %s", cfg.DatabaseFile)
	}
}

func TestOverrides(t *testing.T) {
	save := t.TempDir()
	v := newTestViper(t, map[string]interface{}{
		"QUALITY_TIER":             "low",
		"MAX_CONCURRENT_TRANSFERS": 42,
		"SAVE_LOCATION":            save,
		"HISTORY_MAX":              7,
	})

	cfg, err := fromViper(v)
	if err != nil {
		t.Fatalf("fromViper() error = %v", err)
	}

	if cfg.DefaultQualityTier != models.QualityLow {
		t.Errorf("Expected tier low, got %s", cfg.DefaultQualityTier)
	}
	if cfg.MaxConcurrentTransfers != MaxConcurrentTransfers {
		t.Errorf("Expected concurrency clamped to %d, got %d", MaxConcurrentTransfers, cfg.MaxConcurrentTransfers)
	}
	if cfg.SaveLocation != save {
		t.Errorf("Expected save location %s, got %s", save, cfg.SaveLocation)
	}
	if cfg.HistoryMax != 7 {
		t.Errorf("Expected history max 7, got %d", cfg.HistoryMax)
	}
}

func TestInvalidValues(t *testing.T) {
	tests := map[string]map[string]interface{}{
		"unknown tier":     {"QUALITY_TIER": "ultra"},
		"zero history max": {"HISTORY_MAX": 0},
		"zero timeout":     {"TRANSFER_TIMEOUT_SECONDS": 0},
		"empty lookup url": {"LOOKUP_BASE_URL": ""},
	}

	for name, values := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := fromViper(newTestViper(t, values)); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestClampConcurrency(t *testing.T) {
	tests := []struct{ in, expected int }{
		{-1, 1}, {0, 1}, {1, 1}, {3, 3}, {10, 10}, {15, 10},
	}
	for _, test := range tests {
		if got := ClampConcurrency(test.in); got != test.expected {
			t.Errorf("ClampConcurrency(%d) = %d, expected %d", test.in, got, test.expected)
		}
	}
}
