package match

import (
	"context"
	"fmt"

	"tablechain/internal/assign"
	"tablechain/internal/chain"
	"tablechain/internal/config"
	"tablechain/internal/embedding"
	"tablechain/internal/logging"
	"tablechain/internal/similarity"
	"tablechain/internal/usage"
	"tablechain/internal/validate"
)

// Engine runs the per-chapter matching loop. One engine may serve many
// chapters concurrently: all per-chapter state lives in the store each
// call owns, and the shared collaborators (provider, validator, audit)
// are concurrency-safe.
type Engine struct {
	cfg        *config.Config
	provider   *embedding.Provider
	validator  validate.Validator
	audit      *logging.AuditLog
	checkpoint *chain.Checkpoint
}

// NewEngine wires the matching loop to its collaborators. checkpoint
// may be nil to disable resumability (tests).
func NewEngine(cfg *config.Config, provider *embedding.Provider, validator validate.Validator, audit *logging.AuditLog, checkpoint *chain.Checkpoint) *Engine {
	if audit == nil {
		audit = logging.NewNopAuditLog()
	}
	return &Engine{
		cfg:        cfg,
		provider:   provider,
		validator:  validator,
		audit:      audit,
		checkpoint: checkpoint,
	}
}

// Result is the outcome of one chapter's matching pass.
type Result struct {
	Chapter int
	Chains  []*chain.Chain
	Stats   ChapterStats
}

// ProcessChapter matches the chapter's tables year by year. Every
// calendar year in the chapter's span is processed, including years
// with no tables at all: an empty year is a miss for every open chain,
// so dormancy advances in calendar time, not data time. Years are
// strictly sequential; cancellation is honored only at year boundaries
// so a partially applied year can never be observed. With a checkpoint
// configured, processing resumes after the last completed year.
func (e *Engine) ProcessChapter(ctx context.Context, chapter int, tables []chain.Table) (*Result, error) {
	log := logging.Get(logging.CategoryMatch)
	byYear, years := groupByYear(tables)
	firstYear, lastYear := 0, -1
	if len(years) > 0 {
		firstYear, lastYear = years[0], years[len(years)-1]
	}

	store := chain.NewStore()
	resumeYear := 0
	if e.checkpoint != nil {
		chains, year, err := e.checkpoint.LoadLatest(ctx, chapter)
		if err != nil {
			return nil, err
		}
		if chains != nil {
			for _, c := range chains {
				store.Upsert(c)
			}
			resumeYear = year
			log.Info("chapter %d resumed from year %d with %d chains", chapter, year, len(chains))
		}
	}

	stats := ChapterStats{Chapter: chapter}
	for year := firstYear; year <= lastYear; year++ {
		if year <= resumeYear {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		timer := logging.StartTimer(logging.CategoryMatch, fmt.Sprintf("chapter %d year %d", chapter, year))
		ys, err := e.processYear(ctx, chapter, year, byYear[year], store)
		timer.Stop()
		if err != nil {
			return nil, fmt.Errorf("chapter %d year %d: %w", chapter, year, err)
		}
		stats.Years = append(stats.Years, *ys)

		if e.checkpoint != nil {
			if err := e.checkpoint.SaveYear(ctx, chapter, year, store.Snapshot()); err != nil {
				return nil, fmt.Errorf("checkpoint chapter %d year %d: %w", chapter, year, err)
			}
		}
	}

	return &Result{Chapter: chapter, Chains: store.Snapshot(), Stats: stats}, nil
}

func (e *Engine) processYear(ctx context.Context, chapter, year int, candidates []chain.Table, store *chain.Store) (*YearStats, error) {
	log := logging.Get(logging.CategoryMatch)
	ys := &YearStats{Year: year, Tables: len(candidates)}

	actives := store.WithStatus(chain.StatusActive)
	ys.OpenChains = len(actives)

	// Embed everything up front; vectors are keyed by chain ID and table
	// ref so the secondary split/merge comparisons reuse them. An empty
	// year has nothing to compare and goes straight to the dormancy pass.
	vecs := make(map[string][]float32)
	chainIDs := make([]string, 0, len(actives))
	if len(candidates) > 0 {
		for _, c := range actives {
			vec, deg, err := e.provider.EmbedHeader(ctx, c.LastHeader())
			if err != nil {
				return nil, err
			}
			if deg {
				ys.Degraded++
			}
			vecs[c.ID] = vec
			chainIDs = append(chainIDs, c.ID)
		}
	}

	tableByID := make(map[string]chain.Table, len(candidates))
	tableIDs := make([]string, 0, len(candidates))
	for _, t := range candidates {
		id := t.Ref.String()
		vec, deg, err := e.provider.EmbedHeader(ctx, t.PrimaryHeader())
		if err != nil {
			return nil, err
		}
		if deg {
			ys.Degraded++
		}
		vecs[id] = vec
		tableByID[id] = t
		tableIDs = append(tableIDs, id)
	}

	matchedChains := make(map[string]bool)
	matchedTables := make(map[string]bool)

	// 1:1 assignment over the similarity matrix, skipped when either side
	// is empty.
	if len(chainIDs) > 0 && len(tableIDs) > 0 {
		matrix, err := similarity.Build(chainIDs, tableIDs, vecs, vecs)
		if err != nil {
			return nil, err
		}
		res := assign.Solve(matrix.Values)

		for _, p := range res.Pairs {
			cid := matrix.ChainIDs[p.Row]
			tid := matrix.TableIDs[p.Col]
			t := tableByID[tid]

			switch Classify(p.Similarity, e.cfg.Thresholds.High, e.cfg.Thresholds.Low) {
			case BandAccept:
				if e.commit(store.Get(cid), t, year, p.Similarity, false) {
					matchedChains[cid] = true
					matchedTables[tid] = true
					ys.Accepted++
					e.audit.Append(logging.AuditEvent{
						EventType: logging.AuditDecisionAccept,
						Chapter:   chapter, Year: year, ChainID: cid, TableID: tid,
						Similarity: p.Similarity,
					})
				}

			case BandEscalate:
				ys.Escalated++
				e.audit.Append(logging.AuditEvent{
					EventType: logging.AuditDecisionEscalate,
					Chapter:   chapter, Year: year, ChainID: cid, TableID: tid,
					Similarity: p.Similarity,
				})
				vres, err := e.validator.SameSeries(ctx, store.Get(cid).LastHeader(), t.PrimaryHeader(), usage.DecisionEscalation)
				if err != nil {
					return nil, err
				}
				switch {
				case vres.Degraded():
					// No confirmation obtained: degrade to reject and flag it.
					ys.Degraded++
					ys.Rejected++
					e.audit.Append(logging.AuditEvent{
						EventType: logging.AuditValidatorDegraded,
						Chapter:   chapter, Year: year, ChainID: cid, TableID: tid,
						Similarity: p.Similarity, Degraded: true, Message: vres.Rationale,
					})
					e.audit.Append(logging.AuditEvent{
						EventType: logging.AuditDecisionReject,
						Chapter:   chapter, Year: year, ChainID: cid, TableID: tid,
						Similarity: p.Similarity, Degraded: true,
					})
				case vres.Confirmed():
					if e.commit(store.Get(cid), t, year, p.Similarity, true) {
						matchedChains[cid] = true
						matchedTables[tid] = true
						ys.Accepted++
						e.audit.Append(logging.AuditEvent{
							EventType: logging.AuditDecisionAccept,
							Chapter:   chapter, Year: year, ChainID: cid, TableID: tid,
							Similarity: p.Similarity, Verdict: string(vres.Verdict),
						})
					}
				default:
					ys.Rejected++
					e.audit.Append(logging.AuditEvent{
						EventType: logging.AuditDecisionReject,
						Chapter:   chapter, Year: year, ChainID: cid, TableID: tid,
						Similarity: p.Similarity, Verdict: string(vres.Verdict), Message: vres.Rationale,
					})
				}

			case BandReject:
				ys.Rejected++
				e.audit.Append(logging.AuditEvent{
					EventType: logging.AuditDecisionReject,
					Chapter:   chapter, Year: year, ChainID: cid, TableID: tid,
					Similarity: p.Similarity,
				})
			}
		}
	}

	// Leftovers: everything the assignment or the decision step did not
	// commit.
	var leftoverChains []*chain.Chain
	for _, c := range actives {
		if !matchedChains[c.ID] {
			leftoverChains = append(leftoverChains, c)
		}
	}
	var leftoverTables []chain.Table
	for _, id := range tableIDs {
		if !matchedTables[id] {
			leftoverTables = append(leftoverTables, tableByID[id])
		}
	}

	simFn := func(cid, tid string) float64 {
		s, err := similarity.Pairwise(vecs[cid], vecs[tid])
		if err != nil {
			return 0
		}
		return s
	}

	splits := DetectSplits(leftoverChains, leftoverTables, simFn, e.cfg.Thresholds.Split)
	merges := DetectMerges(leftoverChains, leftoverTables, simFn, e.cfg.Thresholds.Merge)

	// N:N shapes: the same table or chain on both sides of the split and
	// merge detection. Too ambiguous to resolve mechanically, so they are
	// flagged for review; the 1:N and N:1 handling below still runs, and
	// its guards keep each table in at most one chain.
	for _, cr := range DetectComplex(splits, merges) {
		ys.Complex++
		e.audit.Append(logging.AuditEvent{
			EventType: logging.AuditComplexRelation,
			Chapter:   chapter, Year: year, ChainID: cr.ChainID, TableID: cr.TableID,
		})
	}

	// Splits: one chain's concept forked into several tables. Each table
	// becomes a new chain referencing the origin; the origin itself stays
	// unmatched and takes the dormancy path.
	for _, sp := range splits {
		ys.Splits++
		e.audit.Append(logging.AuditEvent{
			EventType: logging.AuditSplitDetected,
			Chapter:   chapter, Year: year, ChainID: sp.Origin.ID,
			Message: fmt.Sprintf("%d continuation tables", len(sp.Tables)),
		})
		for i, t := range sp.Tables {
			tid := t.Ref.String()
			if matchedTables[tid] {
				continue
			}
			matchedTables[tid] = true
			nc := chain.New(tid, t, year)
			nc.SplitFrom = sp.Origin.ID
			store.Upsert(nc)
			ys.NewChains++
			e.audit.Append(logging.AuditEvent{
				EventType: logging.AuditChainCreated,
				Chapter:   chapter, Year: year, ChainID: nc.ID, TableID: tid,
				Similarity: sp.Sims[i], Message: "split continuation of " + sp.Origin.ID,
			})
		}
	}
	leftoverTables = dropMatched(leftoverTables, matchedTables)

	// Merge candidates: several chains converging on one table. The two
	// strongest claimants are checked by the validator; on confirmation
	// the table joins the stronger chain, and the cross-chapter pass is
	// left to consolidate the histories. Tables already consumed by a
	// split are skipped here.
	for _, mc := range merges {
		tid := mc.Table.Ref.String()
		if matchedTables[tid] || matchedChains[mc.Chains[0].ID] {
			continue
		}
		ys.MergeCands++
		e.audit.Append(logging.AuditEvent{
			EventType: logging.AuditMergeCandidate,
			Chapter:   chapter, Year: year,
			ChainID: mc.Chains[0].ID, ChainID2: mc.Chains[1].ID, TableID: tid,
			Similarity: mc.Sims[0],
		})

		vres, err := e.validator.SameSeries(ctx, mc.Chains[0].LastHeader(), mc.Chains[1].LastHeader(), usage.DecisionMergeConfirmation)
		if err != nil {
			return nil, err
		}
		switch {
		case vres.Degraded():
			ys.Degraded++
			e.audit.Append(logging.AuditEvent{
				EventType: logging.AuditValidatorDegraded,
				Chapter:   chapter, Year: year,
				ChainID: mc.Chains[0].ID, ChainID2: mc.Chains[1].ID, TableID: tid,
				Degraded: true, Message: vres.Rationale,
			})
		case vres.Confirmed():
			if e.commit(store.Get(mc.Chains[0].ID), mc.Table, year, mc.Sims[0], true) {
				matchedChains[mc.Chains[0].ID] = true
				matchedTables[tid] = true
				ys.Accepted++
				e.audit.Append(logging.AuditEvent{
					EventType: logging.AuditDecisionAccept,
					Chapter:   chapter, Year: year, ChainID: mc.Chains[0].ID, TableID: tid,
					Similarity: mc.Sims[0], Verdict: string(vres.Verdict),
					Message: "merge candidate confirmed, table joins strongest chain",
				})
			}
		default:
			e.audit.Append(logging.AuditEvent{
				EventType: logging.AuditMergeRejected,
				Chapter:   chapter, Year: year,
				ChainID: mc.Chains[0].ID, ChainID2: mc.Chains[1].ID, TableID: tid,
				Verdict: string(vres.Verdict), Message: vres.Rationale,
			})
		}
	}
	leftoverTables = dropMatched(leftoverTables, matchedTables)

	// Reactivation and new-chain creation for whatever is still left.
	if err := e.placeLeftoverTables(ctx, chapter, year, leftoverTables, store, vecs, ys); err != nil {
		return nil, err
	}

	// Dormancy bookkeeping for every chain that got nothing this year.
	for _, id := range store.IDs() {
		c := store.Get(id)
		if c.Status == chain.StatusEnded || c.HasYear(year) {
			continue
		}
		prev := c.Status
		switch ApplyMiss(c, year, e.cfg.Gaps.MaxGapYears) {
		case chain.StatusDormant:
			if prev == chain.StatusActive {
				ys.Dormant++
				e.audit.Append(logging.AuditEvent{
					EventType: logging.AuditChainDormant,
					Chapter:   chapter, Year: year, ChainID: id,
				})
			}
		case chain.StatusEnded:
			ys.Ended++
			e.audit.Append(logging.AuditEvent{
				EventType: logging.AuditChainEnded,
				Chapter:   chapter, Year: year, ChainID: id,
				Message: fmt.Sprintf("gap run %d exceeded max %d", c.GapRun, e.cfg.Gaps.MaxGapYears),
			})
		}
	}

	log.Info("chapter %d year %d: tables=%d accepted=%d rejected=%d new=%d splits=%d dormant=%d ended=%d",
		chapter, year, ys.Tables, ys.Accepted, ys.Rejected, ys.NewChains, ys.Splits, ys.Dormant, ys.Ended)
	return ys, nil
}

// placeLeftoverTables tries to wake a dormant chain for each remaining
// table; failing that, the table starts a new chain.
func (e *Engine) placeLeftoverTables(ctx context.Context, chapter, year int, tables []chain.Table, store *chain.Store, vecs map[string][]float32, ys *YearStats) error {
	if len(tables) == 0 {
		return nil
	}
	dormants := store.WithStatus(chain.StatusDormant)
	for _, c := range dormants {
		if _, ok := vecs[c.ID]; ok {
			continue
		}
		vec, deg, err := e.provider.EmbedHeader(ctx, c.LastHeader())
		if err != nil {
			return err
		}
		if deg {
			ys.Degraded++
		}
		vecs[c.ID] = vec
	}

	wokenThisYear := make(map[string]bool)
	for _, t := range tables {
		tid := t.Ref.String()

		// Best dormant chain at or above the reactivation threshold.
		var best *chain.Chain
		bestSim := 0.0
		for _, c := range dormants {
			if wokenThisYear[c.ID] {
				continue
			}
			s, err := similarity.Pairwise(vecs[c.ID], vecs[tid])
			if err != nil {
				continue
			}
			if s >= e.cfg.Thresholds.Reactivation && (s > bestSim || (s == bestSim && best != nil && c.ID < best.ID)) {
				best = c
				bestSim = s
			}
		}

		if best != nil {
			confirmed := false
			validated := false
			if bestSim >= e.cfg.Thresholds.High {
				confirmed = true
			} else {
				vres, err := e.validator.SameSeries(ctx, best.LastHeader(), t.PrimaryHeader(), usage.DecisionEscalation)
				if err != nil {
					return err
				}
				if vres.Degraded() {
					ys.Degraded++
					e.audit.Append(logging.AuditEvent{
						EventType: logging.AuditValidatorDegraded,
						Chapter:   chapter, Year: year, ChainID: best.ID, TableID: tid,
						Similarity: bestSim, Degraded: true, Message: vres.Rationale,
					})
				}
				confirmed = vres.Confirmed()
				validated = confirmed
			}

			if confirmed {
				live := store.Get(best.ID)
				if e.commit(live, t, year, bestSim, validated) {
					wokenThisYear[best.ID] = true
					ys.Reactivated++
					e.audit.Append(logging.AuditEvent{
						EventType: logging.AuditChainReactivated,
						Chapter:   chapter, Year: year, ChainID: best.ID, TableID: tid,
						Similarity: bestSim, Verdict: verdictIfValidated(validated),
					})
					continue
				}
			}
		}

		// Weak or unconfirmed signal: a new chain, never a forced wake.
		nc := chain.New(tid, t, year)
		store.Upsert(nc)
		ys.NewChains++
		e.audit.Append(logging.AuditEvent{
			EventType: logging.AuditChainCreated,
			Chapter:   chapter, Year: year, ChainID: nc.ID, TableID: tid,
		})
	}
	return nil
}

// commit appends a table to a chain and resets its gap state. An append
// that would break the chain's invariants is skipped and logged; the
// run continues.
func (e *Engine) commit(c *chain.Chain, t chain.Table, year int, sim float64, validated bool) bool {
	if c == nil {
		return false
	}
	if err := c.Append(t, year, sim, validated); err != nil {
		logging.Get(logging.CategoryChains).Error("skipping commit: %v", err)
		return false
	}
	ApplyMatch(c)
	return true
}

func verdictIfValidated(validated bool) string {
	if validated {
		return string(validate.VerdictPositive)
	}
	return ""
}

func dropMatched(tables []chain.Table, matched map[string]bool) []chain.Table {
	out := tables[:0]
	for _, t := range tables {
		if !matched[t.Ref.String()] {
			out = append(out, t)
		}
	}
	return out
}
