package chain

import "sort"

// Store owns all chains for one chapter run. It is not safe for
// concurrent use: each chapter worker owns exactly one Store, so no
// locking is needed. Mutation during iteration is impossible by
// construction because iteration always happens over a Snapshot.
type Store struct {
	chains map[string]*Chain
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{chains: make(map[string]*Chain)}
}

// Get returns the live chain for id, or nil when absent.
func (s *Store) Get(id string) *Chain {
	return s.chains[id]
}

// Upsert inserts or replaces a chain under its own ID.
func (s *Store) Upsert(c *Chain) {
	s.chains[c.ID] = c
}

// Remove deletes a chain. Used only by the merger pass, which replaces
// two source chains with their merged result.
func (s *Store) Remove(id string) {
	delete(s.chains, id)
}

// Len returns the number of chains held.
func (s *Store) Len() int {
	return len(s.chains)
}

// IDs returns all chain IDs in lexical order. This is the documented
// total order used everywhere a stable sequence of chains is needed.
func (s *Store) IDs() []string {
	ids := make([]string, 0, len(s.chains))
	for id := range s.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns deep copies of all chains, sorted by ID. Callers
// iterate snapshots and commit changes back through Upsert/Remove, so
// a mutation can never invalidate an iteration in progress.
func (s *Store) Snapshot() []*Chain {
	out := make([]*Chain, 0, len(s.chains))
	for _, id := range s.IDs() {
		out = append(out, s.chains[id].Clone())
	}
	return out
}

// WithStatus returns deep copies of the chains in the given state,
// sorted by ID.
func (s *Store) WithStatus(status Status) []*Chain {
	out := make([]*Chain, 0, len(s.chains))
	for _, id := range s.IDs() {
		if c := s.chains[id]; c.Status == status {
			out = append(out, c.Clone())
		}
	}
	return out
}
