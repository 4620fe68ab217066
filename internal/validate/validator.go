// Package validate wraps the external semantic-validation service that
// decides whether two table headers describe the same specific
// statistical series. It is invoked only for the uncertain similarity
// band and for merge confirmations; both the retry policy and the
// degrade-to-reject fallback live here so callers never see a transport
// error abort a run.
package validate

import "context"

// Verdict is the validator's answer for a header pair.
type Verdict string

const (
	// VerdictPositive: same specific statistical series.
	VerdictPositive Verdict = "positive"
	// VerdictNegative: different series, even if the general topic overlaps.
	VerdictNegative Verdict = "negative"
	// VerdictDegraded: the service was unreachable after all retries; the
	// caller must fall back to the conservative decision (reject) and flag
	// the step for audit.
	VerdictDegraded Verdict = "degraded"
)

// Result carries the verdict and the model's free-text rationale.
type Result struct {
	Verdict   Verdict
	Rationale string
}

// Degraded reports whether the result came from the fallback path
// rather than a real verdict.
func (r Result) Degraded() bool { return r.Verdict == VerdictDegraded }

// Confirmed reports a usable positive verdict.
func (r Result) Confirmed() bool { return r.Verdict == VerdictPositive }

// Validator answers whether two headers name the same specific
// statistical phenomenon. decisionType partitions cost accounting
// (escalation vs merge confirmation). Implementations must return an
// error only for caller-side failures (context cancellation); service
// outages surface as VerdictDegraded.
type Validator interface {
	SameSeries(ctx context.Context, headerA, headerB, decisionType string) (Result, error)
}
