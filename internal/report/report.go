// Package report emits the run outputs: per-chapter chain collections
// in their serializable record form, and the run summary that accounts
// for every table, degraded decision, and skipped conflict. A completed
// run always produces a report, so nothing is dropped silently.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tablechain/internal/chain"
	"tablechain/internal/match"
	"tablechain/internal/usage"
)

// RunReport summarizes one full run for the operator.
type RunReport struct {
	RunID    string           `json:"run_id"`
	Chapters []ChapterSummary `json:"chapters"`

	TotalTables   int `json:"total_tables"`
	TotalChains   int `json:"total_chains"`
	TotalAccepted int `json:"total_accepted"`
	TotalRejected int `json:"total_rejected"`
	TotalNew      int `json:"total_new_chains"`
	Degraded      int `json:"degraded_decisions"`

	// Cross-chapter pass, zero-valued when the pass was not run.
	MergerIterations int `json:"merger_iterations,omitempty"`
	Merges           int `json:"merges,omitempty"`
	MergeConflicts   int `json:"merge_conflicts,omitempty"`
	MergeRejected    int `json:"merge_rejected,omitempty"`

	ValidatorUsage map[string]usage.Counts `json:"validator_usage,omitempty"`
}

// ChapterSummary is the per-chapter slice of the run report.
type ChapterSummary struct {
	Chapter int                `json:"chapter"`
	Chains  int                `json:"chains"`
	Active  int                `json:"active"`
	Dormant int                `json:"dormant"`
	Ended   int                `json:"ended"`
	Stats   match.ChapterStats `json:"stats"`
}

// AddChapter folds one chapter result into the report.
func (r *RunReport) AddChapter(res *match.Result) {
	cs := ChapterSummary{
		Chapter: res.Chapter,
		Chains:  len(res.Chains),
		Stats:   res.Stats,
	}
	for _, c := range res.Chains {
		switch c.Status {
		case chain.StatusActive:
			cs.Active++
		case chain.StatusDormant:
			cs.Dormant++
		case chain.StatusEnded:
			cs.Ended++
		}
	}
	r.Chapters = append(r.Chapters, cs)

	totals := res.Stats.Totals()
	r.TotalTables += totals.Tables
	r.TotalChains += len(res.Chains)
	r.TotalAccepted += totals.Accepted
	r.TotalRejected += totals.Rejected
	r.TotalNew += totals.NewChains
	r.Degraded += totals.Degraded
}

// WriteChainsJSON writes a chapter's chains in their serializable
// record form, consumable by the merger pass and downstream tooling.
func WriteChainsJSON(path string, chains []*chain.Chain) error {
	for _, c := range chains {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("refusing to export: %w", err)
		}
	}
	raw, err := json.MarshalIndent(chains, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

// Write writes the run report as indented JSON.
func (r *RunReport) Write(path string) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}
