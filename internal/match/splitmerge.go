package match

import (
	"sort"

	"tablechain/internal/chain"
)

// Split records that one unmatched chain's previous table resembles two
// or more leftover tables: the concept forked into parallel series.
type Split struct {
	Origin *chain.Chain
	Tables []chain.Table
	Sims   []float64
}

// MergeCandidate records that two or more unmatched chains' latest
// tables all resemble a single leftover table: formerly distinct series
// may have collapsed into one. Chains are ordered by descending
// similarity, chain ID as the tie key.
type MergeCandidate struct {
	Table  chain.Table
	Chains []*chain.Chain
	Sims   []float64
}

// DetectSplits scans leftover chains against leftover tables using the
// supplied pairwise similarity. A chain with at least two tables at or
// above threshold is a split. Input order is preserved, so callers
// passing ID-sorted chains get deterministic output.
func DetectSplits(chains []*chain.Chain, tables []chain.Table, sim func(chainID, tableID string) float64, threshold float64) []Split {
	var splits []Split
	for _, c := range chains {
		var s Split
		for _, t := range tables {
			v := sim(c.ID, t.Ref.String())
			if v >= threshold {
				s.Tables = append(s.Tables, t)
				s.Sims = append(s.Sims, v)
			}
		}
		if len(s.Tables) >= 2 {
			s.Origin = c
			splits = append(splits, s)
		}
	}
	return splits
}

// DetectMerges scans leftover tables against leftover chains. A table
// claimed by at least two chains at or above threshold is a merge
// candidate, escalated to the validator before anything is committed.
func DetectMerges(chains []*chain.Chain, tables []chain.Table, sim func(chainID, tableID string) float64, threshold float64) []MergeCandidate {
	var cands []MergeCandidate
	for _, t := range tables {
		var mc MergeCandidate
		for _, c := range chains {
			v := sim(c.ID, t.Ref.String())
			if v >= threshold {
				mc.Chains = append(mc.Chains, c)
				mc.Sims = append(mc.Sims, v)
			}
		}
		if len(mc.Chains) >= 2 {
			mc.Table = t
			sortCandidate(&mc)
			cands = append(cands, mc)
		}
	}
	return cands
}

// ComplexRelation flags one table or chain participating in overlapping
// split and merge structure in the same year: an N:N shape.
type ComplexRelation struct {
	ChainID string
	TableID string
}

// DetectComplex cross-checks split fan-outs against merge candidates.
// A split table that is also claimed as a merge target, or a split
// origin that also appears among a merge candidate's claimants, marks
// an N:N relationship. These are audited, never resolved mechanically.
func DetectComplex(splits []Split, merges []MergeCandidate) []ComplexRelation {
	var out []ComplexRelation
	seen := make(map[ComplexRelation]bool)
	add := func(cr ComplexRelation) {
		if !seen[cr] {
			seen[cr] = true
			out = append(out, cr)
		}
	}
	for _, sp := range splits {
		for _, mc := range merges {
			tid := mc.Table.Ref.String()
			for _, t := range sp.Tables {
				if t.Ref == mc.Table.Ref {
					add(ComplexRelation{ChainID: sp.Origin.ID, TableID: tid})
				}
			}
			for _, c := range mc.Chains {
				if c.ID == sp.Origin.ID {
					add(ComplexRelation{ChainID: sp.Origin.ID, TableID: tid})
				}
			}
		}
	}
	return out
}

func sortCandidate(mc *MergeCandidate) {
	idx := make([]int, len(mc.Chains))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		if mc.Sims[idx[a]] != mc.Sims[idx[b]] {
			return mc.Sims[idx[a]] > mc.Sims[idx[b]]
		}
		return mc.Chains[idx[a]].ID < mc.Chains[idx[b]].ID
	})
	chains := make([]*chain.Chain, len(idx))
	sims := make([]float64, len(idx))
	for i, j := range idx {
		chains[i] = mc.Chains[j]
		sims[i] = mc.Sims[j]
	}
	mc.Chains = chains
	mc.Sims = sims
}
