// Package match implements the year-by-year matching loop for one
// chapter: similarity banding, escalation to the external validator,
// split/merge detection on leftovers, the dormancy state machine, and
// year-boundary checkpointing.
package match

// Band classifies a proposed match by its similarity score.
type Band int

const (
	// BandAccept: similarity high enough to commit without validation.
	BandAccept Band = iota
	// BandEscalate: uncertain, worth one external validator call.
	BandEscalate
	// BandReject: too low, rejected without spending a call.
	BandReject
)

func (b Band) String() string {
	switch b {
	case BandAccept:
		return "accept"
	case BandEscalate:
		return "escalate"
	default:
		return "reject"
	}
}

// Classify bands a similarity score against the high/low thresholds.
func Classify(sim, high, low float64) Band {
	switch {
	case sim >= high:
		return BandAccept
	case sim >= low:
		return BandEscalate
	default:
		return BandReject
	}
}
