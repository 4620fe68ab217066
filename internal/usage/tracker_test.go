package usage

import (
	"sync"
	"testing"
)

func TestTrackerRecordAndPersist(t *testing.T) {
	dir := t.TempDir()

	tr, err := NewTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	tr.Record(DecisionEscalation, 0.002)
	tr.Record(DecisionEscalation, 0.002)
	tr.Record(DecisionMergeConfirmation, 0.002)
	if err := tr.Save(); err != nil {
		t.Fatal(err)
	}

	// Reload: totals survive across runs.
	tr2, err := NewTracker(dir)
	if err != nil {
		t.Fatal(err)
	}
	sum := tr2.Summary()
	if sum[DecisionEscalation].Calls != 2 {
		t.Fatalf("escalation calls = %d, want 2", sum[DecisionEscalation].Calls)
	}
	if sum[DecisionMergeConfirmation].Calls != 1 {
		t.Fatalf("merge calls = %d, want 1", sum[DecisionMergeConfirmation].Calls)
	}
	if got := tr2.TotalCost(); got < 0.0059 || got > 0.0061 {
		t.Fatalf("total cost = %v, want ~0.006", got)
	}
}

func TestTrackerConcurrentRecord(t *testing.T) {
	tr, err := NewTracker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(DecisionEscalation, 0.001)
		}()
	}
	wg.Wait()

	if got := tr.Summary()[DecisionEscalation].Calls; got != 50 {
		t.Fatalf("calls = %d, want 50", got)
	}
}
