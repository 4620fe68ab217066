package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := Default()
	cfg.Thresholds.High = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() accepted thresholds.high=1.5")
	}

	cfg = Default()
	cfg.Thresholds.Low = -0.1
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() accepted thresholds.low=-0.1")
	}
}

func TestValidateRejectsInvertedBands(t *testing.T) {
	cfg := Default()
	cfg.Thresholds.Low = 0.98
	cfg.Thresholds.High = 0.90
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() accepted low > high")
	}
}

func TestValidateRejectsNegativeGap(t *testing.T) {
	cfg := Default()
	cfg.Gaps.MaxGapYears = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() accepted negative max_gap_years")
	}
}

func TestValidateRejectsZeroIterations(t *testing.T) {
	cfg := Default()
	cfg.Merger.MaxIterations = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() accepted max_iterations=0")
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "thresholds:\n  high: 0.95\nmerger:\n  include_ended: true\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Thresholds.High != 0.95 {
		t.Fatalf("thresholds.high = %v, want 0.95", cfg.Thresholds.High)
	}
	if !cfg.Merger.IncludeEnded {
		t.Fatal("merger.include_ended not applied")
	}
	// Untouched values keep their defaults.
	if cfg.Thresholds.Low != 0.85 {
		t.Fatalf("thresholds.low = %v, want default 0.85", cfg.Thresholds.Low)
	}
	if cfg.Gaps.MaxGapYears != 3 {
		t.Fatalf("gaps.max_gap_years = %v, want default 3", cfg.Gaps.MaxGapYears)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  high: 2.0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() accepted invalid threshold")
	}
}
