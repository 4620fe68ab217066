// Package similarity builds the chain-by-table cosine similarity matrix
// consumed by the assignment solver.
package similarity

import (
	"fmt"

	"tablechain/internal/embedding"
)

// Matrix is an R×C similarity matrix: one row per open chain, one column
// per candidate table, entries in [0,1]. Row and column identities are
// carried alongside the values so downstream components never depend on
// map iteration order.
type Matrix struct {
	ChainIDs []string
	TableIDs []string
	Values   [][]float64
}

// Build computes the pairwise cosine similarity between chain
// representative vectors and candidate table vectors. Negative cosine
// similarities carry no meaning for header matching and are floored at 0.
// chainIDs and tableIDs fix the row/column order; both may be empty.
func Build(chainIDs, tableIDs []string, chainVecs, tableVecs map[string][]float32) (*Matrix, error) {
	m := &Matrix{
		ChainIDs: append([]string(nil), chainIDs...),
		TableIDs: append([]string(nil), tableIDs...),
		Values:   make([][]float64, len(chainIDs)),
	}

	for i, cid := range chainIDs {
		cv, ok := chainVecs[cid]
		if !ok {
			return nil, fmt.Errorf("missing embedding for chain %s", cid)
		}
		row := make([]float64, len(tableIDs))
		for j, tid := range tableIDs {
			tv, ok := tableVecs[tid]
			if !ok {
				return nil, fmt.Errorf("missing embedding for table %s", tid)
			}
			sim, err := embedding.CosineSimilarity(cv, tv)
			if err != nil {
				return nil, fmt.Errorf("similarity %s/%s: %w", cid, tid, err)
			}
			row[j] = clamp01(sim)
		}
		m.Values[i] = row
	}
	return m, nil
}

// Empty reports whether the matrix has no rows or no columns, making the
// assignment step a no-op.
func (m *Matrix) Empty() bool {
	return len(m.ChainIDs) == 0 || len(m.TableIDs) == 0
}

// Pairwise computes the clamped cosine similarity of two single vectors.
// Used for the secondary comparisons in split/merge detection,
// reactivation checks, and the merger pre-screen.
func Pairwise(a, b []float32) (float64, error) {
	sim, err := embedding.CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return clamp01(sim), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
