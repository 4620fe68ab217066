// Package config holds all engine configuration. Every threshold and limit
// the matcher uses is overridable per run from a YAML file; validation is
// fail-fast at startup since a bad threshold is an operator error, not a
// runtime condition.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all tablechain configuration.
type Config struct {
	// Workspace root. Logs, checkpoints and reports live under
	// <workspace>/.tablechain/.
	Workspace string `yaml:"workspace"`

	Thresholds ThresholdConfig `yaml:"thresholds"`
	Gaps       GapConfig       `yaml:"gaps"`
	Merger     MergerConfig    `yaml:"merger"`
	Limits     LimitsConfig    `yaml:"limits"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
	Validator  ValidatorConfig `yaml:"validator"`
	Logging    LoggingConfig   `yaml:"logging"`
}

// ThresholdConfig bands the per-year matching decisions.
type ThresholdConfig struct {
	High         float64 `yaml:"high"`         // >= High: accept without validation
	Low          float64 `yaml:"low"`          // < Low: reject without validation
	Reactivation float64 `yaml:"reactivation"` // Minimum similarity to wake a dormant chain
	Split        float64 `yaml:"split"`        // Secondary similarity for split detection
	Merge        float64 `yaml:"merge"`        // Secondary similarity for merge detection
}

// GapConfig controls the dormancy state machine.
type GapConfig struct {
	MaxGapYears int `yaml:"max_gap_years"` // Consecutive misses beyond which a chain ends
}

// MergerConfig controls the cross-chapter merge pass.
type MergerConfig struct {
	Worthiness    float64 `yaml:"worthiness"`     // Minimum completeness score to consider a pair
	PreScreen     float64 `yaml:"pre_screen"`     // Embedding cosine gate before the validator call
	MaxIterations int     `yaml:"max_iterations"` // Hard cap on fixed-point iterations
	IncludeEnded  bool    `yaml:"include_ended"`  // Whether ended chains participate in merging
}

// LimitsConfig bounds concurrency and external-call volume.
type LimitsConfig struct {
	MaxConcurrentChapters    int `yaml:"max_concurrent_chapters"`    // Chapter worker pool size
	MaxConcurrentValidations int `yaml:"max_concurrent_validations"` // In-flight validator calls
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // genai, ollama or fallback
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	Dimensions     int    `yaml:"dimensions"` // Fallback vector dimension
	CachePath      string `yaml:"cache_path"` // Optional SQLite cache; empty = memory only
}

// ValidatorConfig configures the external semantic-validation service.
type ValidatorConfig struct {
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Timeout    string `yaml:"timeout"`     // Per-call timeout, Go duration string
	MaxRetries int    `yaml:"max_retries"` // Transport retries before degrading
	// Estimated cost per call in USD, used only for the usage report.
	CostPerCall float64 `yaml:"cost_per_call"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Debug bool   `yaml:"debug"`
	Level string `yaml:"level"`
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		Workspace: ".",
		Thresholds: ThresholdConfig{
			High:         0.97,
			Low:          0.85,
			Reactivation: 0.90,
			Split:        0.80,
			Merge:        0.80,
		},
		Gaps: GapConfig{MaxGapYears: 3},
		Merger: MergerConfig{
			Worthiness:    0.8,
			PreScreen:     0.7,
			MaxIterations: 10,
			IncludeEnded:  false,
		},
		Limits: LimitsConfig{
			MaxConcurrentChapters:    4,
			MaxConcurrentValidations: 2,
		},
		Embedding: EmbeddingConfig{
			Provider:       "fallback",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			Dimensions:     768,
		},
		Validator: ValidatorConfig{
			Model:       "gemini-2.0-flash",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			Timeout:     "30s",
			MaxRetries:  3,
			CostPerCall: 0.002,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML config file, layered over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
