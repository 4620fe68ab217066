package chain

import "sort"

type mergeStep struct {
	table     TableRef
	year      int
	header    string
	sim       float64
	validated bool
	maskRef   string
}

// Merge consolidates two chains into a new chain whose steps are the
// union by year. The input chains are not mutated; originals stay
// available for audit. Returns a *ConflictError when the sources claim
// different tables for an overlapping year. When both claim the same
// table for a year the step is deduplicated, keeping the higher
// similarity and either validation flag.
//
// The merged chain takes the identity of the chain whose coverage starts
// earlier, and records both source IDs (plus their own merge histories)
// in MergeHistory.
func Merge(a, b *Chain) (*Chain, error) {
	base, other := a, b
	if b.Years[0] < a.Years[0] || (b.Years[0] == a.Years[0] && b.ID < a.ID) {
		base, other = b, a
	}

	byYear := make(map[int]mergeStep, len(a.Years)+len(b.Years))
	for _, src := range []*Chain{base, other} {
		for i, y := range src.Years {
			step := mergeStep{
				table:     src.Tables[i],
				year:      y,
				header:    src.Headers[i],
				sim:       src.Similarities[i],
				validated: src.APIValidated[i],
			}
			if i < len(src.MaskRefs) {
				step.maskRef = src.MaskRefs[i]
			}
			prev, seen := byYear[y]
			if !seen {
				byYear[y] = step
				continue
			}
			if prev.table != step.table {
				return nil, &ConflictError{
					ChainA: a.ID, ChainB: b.ID, Year: y,
					TableA: prev.table, TableB: step.table,
				}
			}
			if step.sim > prev.sim {
				prev.sim = step.sim
			}
			prev.validated = prev.validated || step.validated
			byYear[y] = prev
		}
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	merged := &Chain{
		ID:     base.ID,
		Status: StatusActive,
	}
	for _, y := range years {
		s := byYear[y]
		merged.Tables = append(merged.Tables, s.table)
		merged.Years = append(merged.Years, y)
		merged.Headers = append(merged.Headers, s.header)
		merged.Similarities = append(merged.Similarities, s.sim)
		merged.APIValidated = append(merged.APIValidated, s.validated)
		merged.MaskRefs = append(merged.MaskRefs, s.maskRef)
	}

	// Gap years are recomputed over the combined span.
	for y := years[0]; y <= years[len(years)-1]; y++ {
		if _, ok := byYear[y]; !ok {
			merged.Gaps = append(merged.Gaps, y)
		}
	}

	merged.MergeHistory = append(merged.MergeHistory, a.MergeHistory...)
	merged.MergeHistory = append(merged.MergeHistory, b.MergeHistory...)
	merged.MergeHistory = append(merged.MergeHistory, a.ID, b.ID)
	merged.MergeHistory = dedupeStrings(merged.MergeHistory)

	return merged, nil
}

func dedupeStrings(xs []string) []string {
	seen := make(map[string]bool, len(xs))
	out := xs[:0]
	for _, x := range xs {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}
