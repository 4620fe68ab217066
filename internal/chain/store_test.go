package chain

import "testing"

func TestStoreSnapshotIsSortedAndIsolated(t *testing.T) {
	s := NewStore()
	s.Upsert(New("b", table(1, 2001, 2, "h"), 2001))
	s.Upsert(New("a", table(1, 2001, 1, "h"), 2001))
	s.Upsert(New("c", table(1, 2001, 3, "h"), 2001))

	snap := s.Snapshot()
	if len(snap) != 3 || snap[0].ID != "a" || snap[2].ID != "c" {
		t.Fatalf("snapshot order: %v %v %v", snap[0].ID, snap[1].ID, snap[2].ID)
	}

	// Mutating a snapshot chain must not leak into the store.
	snap[0].AddGap(2002)
	if got := s.Get("a"); len(got.Gaps) != 0 {
		t.Fatal("snapshot mutation leaked into store")
	}

	// Removing during snapshot iteration is safe by construction.
	for _, c := range snap {
		s.Remove(c.ID)
	}
	if s.Len() != 0 {
		t.Fatalf("store len = %d after removing all", s.Len())
	}
}

func TestStoreWithStatus(t *testing.T) {
	s := NewStore()
	active := New("a", table(1, 2001, 1, "h"), 2001)
	dormant := New("d", table(1, 2001, 2, "h"), 2001)
	dormant.Status = StatusDormant
	ended := New("e", table(1, 2001, 3, "h"), 2001)
	ended.Status = StatusEnded
	s.Upsert(active)
	s.Upsert(dormant)
	s.Upsert(ended)

	if got := s.WithStatus(StatusDormant); len(got) != 1 || got[0].ID != "d" {
		t.Fatalf("WithStatus(dormant) = %v", got)
	}
	if got := s.WithStatus(StatusActive); len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("WithStatus(active) = %v", got)
	}
}
