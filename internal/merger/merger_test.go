package merger

import (
	"context"
	"fmt"
	"math"
	"testing"

	"go.uber.org/goleak"

	"tablechain/internal/chain"
	"tablechain/internal/config"
	"tablechain/internal/embedding"
	"tablechain/internal/validate"
)

func TestMain(m *testing.M) {
	// opencensus (linked in via the genai client) starts a permanent
	// stats worker in init; it is not ours to stop.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type stubEngine struct {
	vecs map[string][]float32
}

func (s *stubEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vecs[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("stub has no vector for %q", text)
}

func (s *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEngine) Dimensions() int { return 8 }
func (s *stubEngine) Name() string    { return "stub" }

func axis(i int) []float32 {
	v := make([]float32, 8)
	v[i] = 1
	return v
}

func lean(c float64, i, j int) []float32 {
	v := make([]float32, 8)
	v[i] = float32(c)
	v[j] = float32(math.Sqrt(1 - c*c))
	return v
}

type scriptedValidator struct {
	verdicts map[[2]string]validate.Verdict
	degraded bool
	calls    int
}

func (v *scriptedValidator) SameSeries(_ context.Context, a, b, _ string) (validate.Result, error) {
	v.calls++
	if v.degraded {
		return validate.Result{Verdict: validate.VerdictDegraded}, nil
	}
	key := pair(a, b)
	if verdict, ok := v.verdicts[key]; ok {
		return validate.Result{Verdict: verdict}, nil
	}
	return validate.Result{Verdict: validate.VerdictNegative}, nil
}

func pair(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// mkChain builds a gap-free chain covering the year range, one table per
// year with the given serial.
func mkChain(id string, chapter, fromYear, toYear, serial int, header string) *chain.Chain {
	t := chain.Table{
		Ref:     chain.TableRef{Chapter: chapter, Year: fromYear, Serial: serial},
		Headers: []string{header},
	}
	c := chain.New(id, t, fromYear)
	for y := fromYear + 1; y <= toYear; y++ {
		t := chain.Table{
			Ref:     chain.TableRef{Chapter: chapter, Year: y, Serial: serial},
			Headers: []string{header},
		}
		if err := c.Append(t, y, 0.95, false); err != nil {
			panic(err)
		}
	}
	return c
}

func newMerger(cfg *config.Config, vecs map[string][]float32, v validate.Validator) *Merger {
	provider := embedding.NewProvider(&stubEngine{vecs: vecs}, nil)
	return New(cfg, provider, v, nil)
}

func TestSuperficialOverlapRejectedByValidator(t *testing.T) {
	// Lexical overlap puts the pair past the pre-screen (0.72 > 0.7), but
	// the phenomena differ, so the validator must keep them apart.
	vecs := map[string][]float32{
		"children poisoning incidents": axis(0),
		"children traffic accidents":   lean(0.72, 0, 1),
	}
	v := &scriptedValidator{} // every pair answered negative
	m := newMerger(config.Default(), vecs, v)

	c := mkChain("ch1_c", 1, 2001, 2010, 1, "children poisoning incidents")
	d := mkChain("ch2_d", 2, 2011, 2020, 1, "children traffic accidents")

	out, err := m.Run(context.Background(), []*chain.Chain{c, d})
	if err != nil {
		t.Fatal(err)
	}
	if v.calls != 1 {
		t.Fatalf("validator calls = %d, want 1 (pre-screen passed)", v.calls)
	}
	if out.Merges != 0 || out.Rejected != 1 {
		t.Fatalf("merges=%d rejected=%d, want 0/1", out.Merges, out.Rejected)
	}
	if len(out.Chains) != 2 {
		t.Fatalf("chains = %d, want both kept separate", len(out.Chains))
	}
}

func TestComplementaryChainsMerge(t *testing.T) {
	vecs := map[string][]float32{
		"road accidents":           axis(0),
		"road accidents, by month": lean(0.91, 0, 1),
	}
	v := &scriptedValidator{verdicts: map[[2]string]validate.Verdict{
		pair("road accidents", "road accidents, by month"): validate.VerdictPositive,
	}}
	m := newMerger(config.Default(), vecs, v)

	e := mkChain("ch1_e", 1, 2001, 2010, 1, "road accidents")
	f := mkChain("ch3_f", 3, 2011, 2020, 2, "road accidents, by month")

	out, err := m.Run(context.Background(), []*chain.Chain{e, f})
	if err != nil {
		t.Fatal(err)
	}
	if out.Merges != 1 || out.Conflicts != 0 {
		t.Fatalf("merges=%d conflicts=%d", out.Merges, out.Conflicts)
	}
	if len(out.Chains) != 1 {
		t.Fatalf("chains = %d, want 1 merged", len(out.Chains))
	}
	merged := out.Chains[0]
	if len(merged.Years) != 20 || merged.Years[0] != 2001 || merged.Years[19] != 2020 {
		t.Fatalf("merged years = %v", merged.Years)
	}
	if len(merged.Gaps) != 0 {
		t.Fatalf("merged gaps = %v, want none", merged.Gaps)
	}
	if len(merged.MergeHistory) != 2 {
		t.Fatalf("merge history = %v", merged.MergeHistory)
	}
	if len(out.Consumed) != 2 {
		t.Fatalf("consumed originals = %d, want 2 kept for audit", len(out.Consumed))
	}

	// Idempotence: re-running on the merged output finds nothing and
	// terminates in one iteration.
	again, err := m.Run(context.Background(), out.Chains)
	if err != nil {
		t.Fatal(err)
	}
	if again.Merges != 0 || again.Iterations != 1 {
		t.Fatalf("rerun: merges=%d iterations=%d, want 0/1", again.Merges, again.Iterations)
	}
}

func TestOverlapConflictIsSkippedNotResolved(t *testing.T) {
	vecs := map[string][]float32{"hospital beds": axis(0)}
	v := &scriptedValidator{verdicts: map[[2]string]validate.Verdict{
		pair("hospital beds", "hospital beds"): validate.VerdictPositive,
	}}
	m := newMerger(config.Default(), vecs, v)

	g := mkChain("ch1_g", 1, 2013, 2015, 1, "hospital beds")
	h := mkChain("ch1_h", 1, 2015, 2017, 99, "hospital beds")

	out, err := m.Run(context.Background(), []*chain.Chain{g, h})
	if err != nil {
		t.Fatal(err)
	}
	if out.Conflicts != 1 || out.Merges != 0 {
		t.Fatalf("conflicts=%d merges=%d, want 1/0", out.Conflicts, out.Merges)
	}
	if len(out.Chains) != 2 {
		t.Fatal("conflicting chains must remain unmerged")
	}
	for _, c := range out.Chains {
		if len(c.Years) != 3 {
			t.Fatalf("chain %s changed by a skipped merge: %v", c.ID, c.Years)
		}
	}
}

func TestPreScreenGatesValidatorCalls(t *testing.T) {
	// Similarity 0.5 fails the 0.7 pre-screen: no validator spend.
	vecs := map[string][]float32{
		"marriage rates": axis(0),
		"divorce rates":  lean(0.5, 0, 1),
	}
	v := &scriptedValidator{}
	m := newMerger(config.Default(), vecs, v)

	out, err := m.Run(context.Background(), []*chain.Chain{
		mkChain("ch1_a", 1, 2001, 2010, 1, "marriage rates"),
		mkChain("ch2_b", 2, 2011, 2020, 1, "divorce rates"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.calls != 0 {
		t.Fatalf("validator calls = %d, want 0 for pre-screen failures", v.calls)
	}
	if out.PreScreenFailed != 1 {
		t.Fatalf("pre-screen failures = %d, want 1", out.PreScreenFailed)
	}
}

func TestNonComplementaryPairsAreNeverProposed(t *testing.T) {
	// Identical coverage: a merge adds no years, so no candidate exists
	// even with perfect similarity.
	vecs := map[string][]float32{"population": axis(0)}
	v := &scriptedValidator{}
	m := newMerger(config.Default(), vecs, v)

	out, err := m.Run(context.Background(), []*chain.Chain{
		mkChain("ch1_a", 1, 2001, 2010, 1, "population"),
		mkChain("ch2_b", 2, 2001, 2010, 1, "population"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.calls != 0 || out.Merges != 0 {
		t.Fatalf("calls=%d merges=%d, want none", v.calls, out.Merges)
	}
}

func TestEndedChainsParticipateOnlyWhenConfigured(t *testing.T) {
	vecs := map[string][]float32{"dairy output": axis(0)}
	verdicts := map[[2]string]validate.Verdict{
		pair("dairy output", "dairy output"): validate.VerdictPositive,
	}

	build := func() []*chain.Chain {
		a := mkChain("ch1_a", 1, 2001, 2010, 1, "dairy output")
		a.Status = chain.StatusEnded
		b := mkChain("ch2_b", 2, 2011, 2020, 1, "dairy output")
		return []*chain.Chain{a, b}
	}

	m := newMerger(config.Default(), vecs, &scriptedValidator{verdicts: verdicts})
	out, err := m.Run(context.Background(), build())
	if err != nil {
		t.Fatal(err)
	}
	if out.Merges != 0 {
		t.Fatalf("ended chain merged with include_ended off: %d", out.Merges)
	}

	cfg := config.Default()
	cfg.Merger.IncludeEnded = true
	m = newMerger(cfg, vecs, &scriptedValidator{verdicts: verdicts})
	out, err = m.Run(context.Background(), build())
	if err != nil {
		t.Fatal(err)
	}
	if out.Merges != 1 {
		t.Fatalf("merges = %d, want 1 with include_ended on", out.Merges)
	}
}

func TestDegradedValidatorMeansNoMerge(t *testing.T) {
	vecs := map[string][]float32{"school enrollment": axis(0)}
	m := newMerger(config.Default(), vecs, &scriptedValidator{degraded: true})

	out, err := m.Run(context.Background(), []*chain.Chain{
		mkChain("ch1_a", 1, 2001, 2010, 1, "school enrollment"),
		mkChain("ch2_b", 2, 2011, 2020, 1, "school enrollment"),
	})
	if err != nil {
		t.Fatalf("outage must not abort the pass: %v", err)
	}
	if out.Merges != 0 || out.Degraded == 0 {
		t.Fatalf("merges=%d degraded=%d, want conservative no-merge", out.Merges, out.Degraded)
	}
}

func TestDuplicateChainIDsRejected(t *testing.T) {
	vecs := map[string][]float32{"x": axis(0)}
	m := newMerger(config.Default(), vecs, &scriptedValidator{})

	_, err := m.Run(context.Background(), []*chain.Chain{
		mkChain("ch1_a", 1, 2001, 2005, 1, "x"),
		mkChain("ch1_a", 1, 2006, 2010, 1, "x"),
	})
	if err == nil {
		t.Fatal("duplicate IDs accepted")
	}
}
