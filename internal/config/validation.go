package config

import (
	"fmt"
	"time"
)

// Validate checks the whole configuration. Any violation is fatal at
// startup, before processing begins.
func (c *Config) Validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if err := c.Gaps.Validate(); err != nil {
		return err
	}
	if err := c.Merger.Validate(); err != nil {
		return err
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if err := c.Validator.Validate(); err != nil {
		return err
	}
	if c.Embedding.Dimensions < 1 {
		return fmt.Errorf("embedding.dimensions must be >= 1")
	}
	return nil
}

// Validate checks that all similarity thresholds lie in [0,1] and that the
// accept band sits above the reject band.
func (t ThresholdConfig) Validate() error {
	for name, v := range map[string]float64{
		"thresholds.high":         t.High,
		"thresholds.low":          t.Low,
		"thresholds.reactivation": t.Reactivation,
		"thresholds.split":        t.Split,
		"thresholds.merge":        t.Merge,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	if t.Low > t.High {
		return fmt.Errorf("thresholds.low (%v) must not exceed thresholds.high (%v)", t.Low, t.High)
	}
	return nil
}

// Validate checks the dormancy settings.
func (g GapConfig) Validate() error {
	if g.MaxGapYears < 0 {
		return fmt.Errorf("gaps.max_gap_years must be >= 0, got %d", g.MaxGapYears)
	}
	return nil
}

// Validate checks the merger settings.
func (m MergerConfig) Validate() error {
	if m.Worthiness < 0 || m.Worthiness > 1 {
		return fmt.Errorf("merger.worthiness must be in [0,1], got %v", m.Worthiness)
	}
	if m.PreScreen < 0 || m.PreScreen > 1 {
		return fmt.Errorf("merger.pre_screen must be in [0,1], got %v", m.PreScreen)
	}
	if m.MaxIterations < 1 {
		return fmt.Errorf("merger.max_iterations must be >= 1, got %d", m.MaxIterations)
	}
	return nil
}

// Validate checks the concurrency limits.
func (l LimitsConfig) Validate() error {
	if l.MaxConcurrentChapters < 1 {
		return fmt.Errorf("limits.max_concurrent_chapters must be >= 1, got %d", l.MaxConcurrentChapters)
	}
	if l.MaxConcurrentValidations < 1 {
		return fmt.Errorf("limits.max_concurrent_validations must be >= 1, got %d", l.MaxConcurrentValidations)
	}
	return nil
}

// Validate checks the validator client settings.
func (v ValidatorConfig) Validate() error {
	if v.MaxRetries < 0 {
		return fmt.Errorf("validator.max_retries must be >= 0, got %d", v.MaxRetries)
	}
	if v.Timeout != "" {
		if _, err := time.ParseDuration(v.Timeout); err != nil {
			return fmt.Errorf("validator.timeout is not a valid duration: %w", err)
		}
	}
	return nil
}

// TimeoutDuration returns the parsed per-call timeout, defaulting to 30s.
func (v ValidatorConfig) TimeoutDuration() time.Duration {
	if v.Timeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(v.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
