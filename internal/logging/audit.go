// Audit logging: every matching, dormancy, and merge decision is recorded
// as a structured JSONL event so downstream tooling can replay a run and
// sample decisions for statistical review. Unlike the category logs, the
// audit feed is always on.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// AuditEventType identifies the kind of decision being recorded.
type AuditEventType string

const (
	// Per-year matching decisions
	AuditDecisionAccept   AuditEventType = "decision_accept"
	AuditDecisionEscalate AuditEventType = "decision_escalate"
	AuditDecisionReject   AuditEventType = "decision_reject"

	// Chain lifecycle
	AuditChainCreated     AuditEventType = "chain_created"
	AuditChainDormant     AuditEventType = "chain_dormant"
	AuditChainEnded       AuditEventType = "chain_ended"
	AuditChainReactivated AuditEventType = "chain_reactivated"

	// Split/merge detection
	AuditSplitDetected   AuditEventType = "split_detected"
	AuditMergeCandidate  AuditEventType = "merge_candidate"
	AuditComplexRelation AuditEventType = "complex_relation"

	// Cross-chapter merger pass
	AuditMergePreScreened AuditEventType = "merge_prescreened"
	AuditMergeCommitted   AuditEventType = "merge_committed"
	AuditMergeRejected    AuditEventType = "merge_rejected"
	AuditMergeConflict    AuditEventType = "merge_conflict"

	// External service degradation
	AuditValidatorDegraded AuditEventType = "validator_degraded"
)

// AuditEvent is one structured audit record.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"` // Unix milliseconds
	RunID      string                 `json:"run"`
	EventType  AuditEventType         `json:"event"`
	Chapter    int                    `json:"chapter,omitempty"`
	Year       int                    `json:"year,omitempty"`
	ChainID    string                 `json:"chain,omitempty"`
	ChainID2   string                 `json:"chain2,omitempty"`
	TableID    string                 `json:"table,omitempty"`
	Similarity float64                `json:"similarity,omitempty"`
	Verdict    string                 `json:"verdict,omitempty"`
	Degraded   bool                   `json:"degraded,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// AuditLog appends events to a JSONL file.
type AuditLog struct {
	mu    sync.Mutex
	file  *os.File
	runID string
}

// NewAuditLog opens (or creates) the audit file in append mode.
func NewAuditLog(path, runID string) (*AuditLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &AuditLog{file: f, runID: runID}, nil
}

// NewNopAuditLog returns an audit log that discards events. Used in tests
// and in components where auditing is optional.
func NewNopAuditLog() *AuditLog {
	return &AuditLog{}
}

// Append writes one event. The timestamp and run ID are filled in here.
func (a *AuditLog) Append(ev AuditEvent) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}

	ev.Timestamp = time.Now().UnixMilli()
	ev.RunID = a.runID

	data, err := json.Marshal(ev)
	if err != nil {
		Get(CategoryBoot).Error("audit marshal failed: %v", err)
		return
	}
	if _, err := a.file.Write(append(data, '\n')); err != nil {
		Get(CategoryBoot).Error("audit write failed: %v", err)
	}
}

// Close flushes and closes the underlying file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
