// Package merger implements the cross-chapter chain-merging pass: a
// bounded fixed-point iteration over already-built chains, proposing
// pairs whose year coverage is complementary, pre-screening them with
// embedding similarity and confirming survivors with the external
// validator before consolidating them.
package merger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"tablechain/internal/chain"
	"tablechain/internal/config"
	"tablechain/internal/embedding"
	"tablechain/internal/logging"
	"tablechain/internal/normalize"
	"tablechain/internal/similarity"
	"tablechain/internal/usage"
	"tablechain/internal/validate"
)

// Merger runs the cross-chapter pass. It never mutates input chains:
// merged results are new chains, and originals remain available for
// audit in the outcome's Consumed list.
type Merger struct {
	cfg       *config.Config
	provider  *embedding.Provider
	validator validate.Validator
	audit     *logging.AuditLog
}

// New wires the merger to its collaborators.
func New(cfg *config.Config, provider *embedding.Provider, validator validate.Validator, audit *logging.AuditLog) *Merger {
	if audit == nil {
		audit = logging.NewNopAuditLog()
	}
	return &Merger{cfg: cfg, provider: provider, validator: validator, audit: audit}
}

// Outcome summarizes one merger run. Every candidate pair is accounted
// for: committed, rejected by pre-screen or validator, degraded, or
// skipped on conflict.
type Outcome struct {
	Chains          []*chain.Chain
	Consumed        []*chain.Chain // originals replaced by merges, kept for audit
	Iterations      int
	Merges          int
	PreScreenFailed int
	Rejected        int
	Degraded        int
	Conflicts       int
}

// candidate is one unordered chain pair under consideration, ranked by
// how much coverage the merge would add.
type candidate struct {
	a, b         *chain.Chain
	improvement  int     // union years beyond the larger chain
	completeness float64 // |union| / span of the merged range
	repA, repB   string  // representative headers for screening
	preSim       float64
	passed       bool
}

// Run iterates merge rounds to a fixed point, bounded by the configured
// iteration cap. Chains with lifecycle status ended participate only
// when include_ended is set.
func (m *Merger) Run(ctx context.Context, chains []*chain.Chain) (*Outcome, error) {
	log := logging.Get(logging.CategoryMerger)
	out := &Outcome{}

	store := chain.NewStore()
	for _, c := range chains {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("merger input: %w", err)
		}
		if store.Get(c.ID) != nil {
			return nil, fmt.Errorf("merger input: duplicate chain ID %s", c.ID)
		}
		store.Upsert(c.Clone())
	}

	for iter := 1; iter <= m.cfg.Merger.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out.Iterations = iter

		merges, err := m.iterate(ctx, store, out)
		if err != nil {
			return nil, err
		}
		log.Info("iteration %d: %d merges committed", iter, merges)
		if merges == 0 {
			break
		}
	}

	out.Chains = store.Snapshot()
	return out, nil
}

func (m *Merger) iterate(ctx context.Context, store *chain.Store, out *Outcome) (int, error) {
	eligible := store.Snapshot()
	if !m.cfg.Merger.IncludeEnded {
		kept := eligible[:0]
		for _, c := range eligible {
			if c.Status != chain.StatusEnded {
				kept = append(kept, c)
			}
		}
		eligible = kept
	}

	cands := m.proposePairs(eligible)
	if len(cands) == 0 {
		return 0, nil
	}

	if err := m.preScreen(ctx, cands); err != nil {
		return 0, err
	}

	// Commits are serialized: a merge mutates membership, so two merges
	// touching the same chain in one iteration must not race.
	merges := 0
	for _, cand := range cands {
		if !cand.passed {
			out.PreScreenFailed++
			m.audit.Append(logging.AuditEvent{
				EventType: logging.AuditMergePreScreened,
				ChainID:   cand.a.ID, ChainID2: cand.b.ID,
				Similarity: cand.preSim, Verdict: "dropped",
			})
			continue
		}
		// A chain consumed earlier in this iteration is gone from the
		// store; its remaining candidates are stale.
		if store.Get(cand.a.ID) == nil || store.Get(cand.b.ID) == nil {
			continue
		}

		res, err := m.validator.SameSeries(ctx, cand.repA, cand.repB, usage.DecisionMergeConfirmation)
		if err != nil {
			return merges, err
		}
		switch {
		case res.Degraded():
			// Conservative default: no merge without confirmation.
			out.Degraded++
			m.audit.Append(logging.AuditEvent{
				EventType: logging.AuditValidatorDegraded,
				ChainID:   cand.a.ID, ChainID2: cand.b.ID,
				Similarity: cand.preSim, Degraded: true, Message: res.Rationale,
			})
		case res.Confirmed():
			merged, err := chain.Merge(store.Get(cand.a.ID), store.Get(cand.b.ID))
			var conflict *chain.ConflictError
			if errors.As(err, &conflict) {
				out.Conflicts++
				logging.Get(logging.CategoryMerger).Warn("merge skipped: %v", conflict)
				m.audit.Append(logging.AuditEvent{
					EventType: logging.AuditMergeConflict,
					ChainID:   conflict.ChainA, ChainID2: conflict.ChainB,
					Year:    conflict.Year,
					Message: conflict.Error(),
				})
				continue
			}
			if err != nil {
				return merges, err
			}
			out.Consumed = append(out.Consumed, store.Get(cand.a.ID), store.Get(cand.b.ID))
			store.Remove(cand.a.ID)
			store.Remove(cand.b.ID)
			store.Upsert(merged)
			merges++
			out.Merges++
			m.audit.Append(logging.AuditEvent{
				EventType: logging.AuditMergeCommitted,
				ChainID:   cand.a.ID, ChainID2: cand.b.ID,
				Similarity: cand.preSim, Verdict: string(res.Verdict),
				Message: fmt.Sprintf("merged into %s, completeness %.3f", merged.ID, cand.completeness),
			})
		default:
			out.Rejected++
			m.audit.Append(logging.AuditEvent{
				EventType: logging.AuditMergeRejected,
				ChainID:   cand.a.ID, ChainID2: cand.b.ID,
				Similarity: cand.preSim, Verdict: string(res.Verdict), Message: res.Rationale,
			})
		}
	}
	return merges, nil
}

// proposePairs scores every unordered pair and keeps those where a
// merge strictly increases year coverage and meets the worthiness
// threshold. Pairs are ranked by (improvement, completeness) descending
// with the ID pair as the final tie key, so ranking is reproducible
// regardless of input order.
func (m *Merger) proposePairs(chains []*chain.Chain) []*candidate {
	var cands []*candidate
	for i := 0; i < len(chains); i++ {
		for j := i + 1; j < len(chains); j++ {
			a, b := chains[i], chains[j]
			improvement, completeness := coverageGain(a, b)
			if improvement <= 0 {
				continue
			}
			if completeness < m.cfg.Merger.Worthiness {
				continue
			}
			cands = append(cands, &candidate{
				a: a, b: b,
				improvement:  improvement,
				completeness: completeness,
				repA:         normalize.Representative(a.Headers),
				repB:         normalize.Representative(b.Headers),
			})
		}
	}

	sort.Slice(cands, func(x, y int) bool {
		cx, cy := cands[x], cands[y]
		if cx.improvement != cy.improvement {
			return cx.improvement > cy.improvement
		}
		if cx.completeness != cy.completeness {
			return cx.completeness > cy.completeness
		}
		if cx.a.ID != cy.a.ID {
			return cx.a.ID < cy.a.ID
		}
		return cx.b.ID < cy.b.ID
	})
	return cands
}

// coverageGain computes how many years a merge would add beyond the
// better-covered chain, and the completeness of the combined range.
func coverageGain(a, b *chain.Chain) (improvement int, completeness float64) {
	union := make(map[int]bool, len(a.Years)+len(b.Years))
	minY, maxY := a.Years[0], a.Years[0]
	for _, src := range [][]int{a.Years, b.Years} {
		for _, y := range src {
			union[y] = true
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	larger := len(a.Years)
	if len(b.Years) > larger {
		larger = len(b.Years)
	}
	improvement = len(union) - larger
	completeness = float64(len(union)) / float64(maxY-minY+1)
	return improvement, completeness
}

// preScreen embeds representative headers and computes pair similarity
// in parallel; only the scoring runs concurrently, commits stay serial.
func (m *Merger) preScreen(ctx context.Context, cands []*candidate) error {
	var mu sync.Mutex
	vecs := make(map[string][]float32)

	embedOnce := func(ctx context.Context, text string) ([]float32, error) {
		mu.Lock()
		v, ok := vecs[text]
		mu.Unlock()
		if ok {
			return v, nil
		}
		v, _, err := m.provider.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		mu.Lock()
		vecs[text] = v
		mu.Unlock()
		return v, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Limits.MaxConcurrentChapters)
	for _, cand := range cands {
		cand := cand
		g.Go(func() error {
			va, err := embedOnce(gctx, cand.repA)
			if err != nil {
				return err
			}
			vb, err := embedOnce(gctx, cand.repB)
			if err != nil {
				return err
			}
			sim, err := similarity.Pairwise(va, vb)
			if err != nil {
				return err
			}
			cand.preSim = sim
			cand.passed = sim >= m.cfg.Merger.PreScreen
			return nil
		})
	}
	return g.Wait()
}
