package match

// YearStats counts what happened in one matching year. Every table is
// accounted for: matched, consumed by a split, turned into a new chain,
// or absorbed by reactivation.
type YearStats struct {
	Year        int `json:"year"`
	Tables      int `json:"tables"`
	OpenChains  int `json:"open_chains"`
	Accepted    int `json:"accepted"`
	Escalated   int `json:"escalated"`
	Rejected    int `json:"rejected"`
	NewChains   int `json:"new_chains"`
	Splits      int `json:"splits"`
	MergeCands  int `json:"merge_candidates"`
	Complex     int `json:"complex_relations"`
	Reactivated int `json:"reactivated"`
	Dormant     int `json:"dormant"`
	Ended       int `json:"ended"`
	Degraded    int `json:"degraded"`
}

// ChapterStats aggregates a chapter's per-year stats.
type ChapterStats struct {
	Chapter int         `json:"chapter"`
	Years   []YearStats `json:"years"`
}

// Totals sums the per-year counters.
func (s *ChapterStats) Totals() YearStats {
	var t YearStats
	for _, y := range s.Years {
		t.Tables += y.Tables
		t.Accepted += y.Accepted
		t.Escalated += y.Escalated
		t.Rejected += y.Rejected
		t.NewChains += y.NewChains
		t.Splits += y.Splits
		t.MergeCands += y.MergeCands
		t.Complex += y.Complex
		t.Reactivated += y.Reactivated
		t.Dormant += y.Dormant
		t.Ended += y.Ended
		t.Degraded += y.Degraded
	}
	return t
}
