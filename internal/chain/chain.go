package chain

import (
	"fmt"
)

// Chain is a mutable temporal sequence of tables believed to represent
// one continuing statistical concept. The five step slices are parallel:
// entry i describes the table attached in Years[i]. Gaps records years
// inside the span where no table was attached; the list is permanent and
// survives reactivation.
type Chain struct {
	ID           string     `json:"id"`
	Tables       []TableRef `json:"tables"`
	Years        []int      `json:"years"`
	Headers      []string   `json:"headers"`
	Similarities []float64  `json:"similarities"`
	APIValidated []bool     `json:"api_validated"`
	MaskRefs     []string   `json:"mask_refs,omitempty"`
	Gaps         []int      `json:"gaps,omitempty"`
	Status       Status     `json:"status"`
	GapRun       int        `json:"gap_run"`
	MergeHistory []string   `json:"merge_history,omitempty"`
	// SplitFrom names the origin chain when this chain was created as one
	// of several parallel continuations of a split.
	SplitFrom string `json:"split_from,omitempty"`
}

// New creates an active chain seeded with its first table. The seed step
// records similarity 1.0 and no external validation, so the parallel
// slices are never empty for a live chain.
func New(id string, t Table, year int) *Chain {
	return &Chain{
		ID:           id,
		Tables:       []TableRef{t.Ref},
		Years:        []int{year},
		Headers:      []string{t.PrimaryHeader()},
		Similarities: []float64{1.0},
		APIValidated: []bool{false},
		MaskRefs:     []string{t.MaskRef},
		Status:       StatusActive,
	}
}

// Append attaches a table for a later year. Years must be strictly
// increasing; attaching a second table for an existing year is a caller
// bug, not a recoverable condition.
func (c *Chain) Append(t Table, year int, similarity float64, apiValidated bool) error {
	if len(c.Years) > 0 && year <= c.Years[len(c.Years)-1] {
		return fmt.Errorf("chain %s: year %d not after last year %d", c.ID, year, c.Years[len(c.Years)-1])
	}
	c.Tables = append(c.Tables, t.Ref)
	c.Years = append(c.Years, year)
	c.Headers = append(c.Headers, t.PrimaryHeader())
	c.Similarities = append(c.Similarities, similarity)
	c.APIValidated = append(c.APIValidated, apiValidated)
	c.MaskRefs = append(c.MaskRefs, t.MaskRef)
	return nil
}

// AddGap records a missed year. Gap years are permanent: reactivation
// does not erase them.
func (c *Chain) AddGap(year int) {
	for _, g := range c.Gaps {
		if g == year {
			return
		}
	}
	c.Gaps = append(c.Gaps, year)
}

// LastYear returns the most recent year with an attached table.
func (c *Chain) LastYear() int {
	return c.Years[len(c.Years)-1]
}

// LastTable returns the most recently attached table reference.
func (c *Chain) LastTable() TableRef {
	return c.Tables[len(c.Tables)-1]
}

// LastHeader returns the header of the most recently attached table.
func (c *Chain) LastHeader() string {
	return c.Headers[len(c.Headers)-1]
}

// Span is the number of calendar years between the first and last
// attached table, inclusive.
func (c *Chain) Span() int {
	if len(c.Years) == 0 {
		return 0
	}
	return c.Years[len(c.Years)-1] - c.Years[0] + 1
}

// Completeness is |years with a table| / span: 1.0 for a gap-free chain,
// lower when years inside the span are missing.
func (c *Chain) Completeness() float64 {
	span := c.Span()
	if span == 0 {
		return 0
	}
	return float64(len(c.Years)) / float64(span)
}

// Validate checks the structural invariants: parallel slice lengths,
// strictly increasing years, and a known lifecycle status. Called after
// deserialization and before checkpointing.
func (c *Chain) Validate() error {
	n := len(c.Tables)
	if n == 0 {
		return fmt.Errorf("chain %s: no tables", c.ID)
	}
	if len(c.Years) != n || len(c.Headers) != n || len(c.Similarities) != n || len(c.APIValidated) != n {
		return fmt.Errorf("chain %s: parallel slices disagree (tables=%d years=%d headers=%d sims=%d validated=%d)",
			c.ID, n, len(c.Years), len(c.Headers), len(c.Similarities), len(c.APIValidated))
	}
	if len(c.MaskRefs) != 0 && len(c.MaskRefs) != n {
		return fmt.Errorf("chain %s: mask refs length %d, want 0 or %d", c.ID, len(c.MaskRefs), n)
	}
	for i := 1; i < n; i++ {
		if c.Years[i] <= c.Years[i-1] {
			return fmt.Errorf("chain %s: years not strictly increasing at index %d (%d then %d)",
				c.ID, i, c.Years[i-1], c.Years[i])
		}
	}
	if !c.Status.Valid() {
		return fmt.Errorf("chain %s: unknown status %q", c.ID, c.Status)
	}
	return nil
}

// Clone returns a deep copy. Snapshots hand out clones so iteration over
// a snapshot can never observe later mutations.
func (c *Chain) Clone() *Chain {
	cp := *c
	cp.Tables = append([]TableRef(nil), c.Tables...)
	cp.Years = append([]int(nil), c.Years...)
	cp.Headers = append([]string(nil), c.Headers...)
	cp.Similarities = append([]float64(nil), c.Similarities...)
	cp.APIValidated = append([]bool(nil), c.APIValidated...)
	cp.MaskRefs = append([]string(nil), c.MaskRefs...)
	cp.Gaps = append([]int(nil), c.Gaps...)
	cp.MergeHistory = append([]string(nil), c.MergeHistory...)
	return &cp
}

// HasYear reports whether a table is attached for the given year.
func (c *Chain) HasYear(year int) bool {
	for _, y := range c.Years {
		if y == year {
			return true
		}
	}
	return false
}

// TableForYear returns the table attached for year, if any.
func (c *Chain) TableForYear(year int) (TableRef, bool) {
	for i, y := range c.Years {
		if y == year {
			return c.Tables[i], true
		}
	}
	return TableRef{}, false
}
