// Package assign solves the linear assignment problem over a similarity
// matrix: an exact minimum-cost bipartite matching (cost = 1 - similarity),
// not a greedy heuristic, so a locally attractive pairing can never block
// a better overall assignment.
//
// Determinism: rows are processed in index order and, when several columns
// tie on reduced cost, the lowest column index wins. Callers order rows by
// chain ID, so among equal-total-similarity assignments the one preserving
// the earlier-registered chain's continuity is returned. No reliance on
// map iteration order or solver internals.
package assign

import "math"

// Pair is one proposed (row, column) assignment with its similarity.
type Pair struct {
	Row        int
	Col        int
	Similarity float64
}

// Result holds the full matching plus the indices left unassigned: rows
// are dormancy candidates, columns are new-chain or split candidates.
type Result struct {
	Pairs         []Pair
	UnmatchedRows []int
	UnmatchedCols []int
}

// Solve computes a maximum-total-similarity assignment over sim, an R×C
// matrix with entries in [0,1]. Exactly min(R,C) pairs are returned.
// Empty input produces an empty result.
func Solve(sim [][]float64) Result {
	n := len(sim)
	if n == 0 {
		return Result{}
	}
	m := len(sim[0])
	if m == 0 {
		rows := make([]int, n)
		for i := range rows {
			rows[i] = i
		}
		return Result{UnmatchedRows: rows}
	}

	// The shortest-augmenting-path formulation needs rows <= cols;
	// transpose when there are more chains than tables.
	transposed := false
	if n > m {
		t := make([][]float64, m)
		for j := 0; j < m; j++ {
			t[j] = make([]float64, n)
			for i := 0; i < n; i++ {
				t[j][i] = sim[i][j]
			}
		}
		sim = t
		n, m = m, n
		transposed = true
	}

	rowOf := solveRect(sim, n, m) // rowOf[j] = row matched to column j, 0 if none (1-based)

	res := Result{}
	matchedRows := make([]bool, n)
	matchedCols := make([]bool, m)
	for j := 1; j <= m; j++ {
		if rowOf[j] == 0 {
			continue
		}
		i := rowOf[j] - 1
		matchedRows[i] = true
		matchedCols[j-1] = true
		p := Pair{Row: i, Col: j - 1, Similarity: sim[i][j-1]}
		if transposed {
			p.Row, p.Col = p.Col, p.Row
		}
		res.Pairs = append(res.Pairs, p)
	}

	for i := 0; i < n; i++ {
		if !matchedRows[i] {
			if transposed {
				res.UnmatchedCols = append(res.UnmatchedCols, i)
			} else {
				res.UnmatchedRows = append(res.UnmatchedRows, i)
			}
		}
	}
	for j := 0; j < m; j++ {
		if !matchedCols[j] {
			if transposed {
				res.UnmatchedRows = append(res.UnmatchedRows, j)
			} else {
				res.UnmatchedCols = append(res.UnmatchedCols, j)
			}
		}
	}

	sortPairs(res.Pairs)
	sortInts(res.UnmatchedRows)
	sortInts(res.UnmatchedCols)
	return res
}

// solveRect runs the O(n²m) shortest-augmenting-path algorithm with
// potentials on the cost matrix (1 - sim), n <= m. Arrays are 1-based;
// index 0 is the virtual source.
func solveRect(sim [][]float64, n, m int) []int {
	u := make([]float64, n+1)
	v := make([]float64, m+1)
	p := make([]int, m+1)   // p[j]: row matched to column j
	way := make([]int, m+1) // way[j]: previous column on the augmenting path

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, m+1)
		used := make([]bool, m+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= m; j++ {
				if used[j] {
					continue
				}
				cost := (1 - sim[i0-1][j-1]) - u[i0] - v[j]
				if cost < minv[j] {
					minv[j] = cost
					way[j] = j0
				}
				// Strict < keeps the lowest column index on ties.
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= m; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		// Unwind the augmenting path.
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}
	return p
}

func sortPairs(pairs []Pair) {
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && pairs[j].Row < pairs[j-1].Row; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}
