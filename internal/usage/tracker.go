// Package usage tracks external validator invocations and their
// estimated cost, partitioned by decision type, for operational
// budgeting.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Decision types the validator is invoked for.
const (
	DecisionEscalation        = "escalation"
	DecisionMergeConfirmation = "merge_confirmation"
)

// Counts is the call count and cumulative estimated cost for one
// decision type.
type Counts struct {
	Calls int     `json:"calls"`
	Cost  float64 `json:"cost_usd"`
}

type usageData struct {
	Version    string            `json:"version"`
	UpdatedAt  string            `json:"updated_at"`
	ByDecision map[string]Counts `json:"by_decision"`
}

// Tracker records validator usage and persists it as JSON in the
// workspace. Safe for concurrent use: chapter workers and the merger
// pool all record through one tracker.
type Tracker struct {
	mu       sync.Mutex
	data     usageData
	filePath string
}

// NewTracker creates a tracker persisting under
// <workspace>/.tablechain/usage.json, loading prior totals if present.
func NewTracker(workspacePath string) (*Tracker, error) {
	dir := filepath.Join(workspacePath, ".tablechain")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create usage dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(dir, "usage.json"),
		data: usageData{
			Version:    "1.0",
			ByDecision: make(map[string]Counts),
		},
	}
	if err := t.load(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tracker) load() error {
	raw, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &t.data); err != nil {
		return fmt.Errorf("decode %s: %w", t.filePath, err)
	}
	if t.data.ByDecision == nil {
		t.data.ByDecision = make(map[string]Counts)
	}
	return nil
}

// Record adds one validator call of the given decision type.
func (t *Tracker) Record(decisionType string, cost float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.data.ByDecision[decisionType]
	c.Calls++
	c.Cost += cost
	t.data.ByDecision[decisionType] = c
}

// Summary returns a copy of the per-decision totals.
func (t *Tracker) Summary() map[string]Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Counts, len(t.data.ByDecision))
	for k, v := range t.data.ByDecision {
		out[k] = v
	}
	return out
}

// TotalCost returns the cumulative estimated cost across all decision
// types.
func (t *Tracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for _, v := range t.data.ByDecision {
		total += v.Cost
	}
	return total
}

// Save writes the totals to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, raw, 0644)
}
