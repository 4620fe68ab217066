package match

import "tablechain/internal/chain"

// ApplyMiss advances the dormancy state machine for a chain that went
// unmatched this year and returns the resulting status:
//
//	active  → dormant, gap run 1
//	dormant → gap run +1; ended once the run exceeds maxGapYears
//	ended   → no transition
//
// The missed year is recorded permanently in the chain's gap list.
func ApplyMiss(c *chain.Chain, year, maxGapYears int) chain.Status {
	switch c.Status {
	case chain.StatusActive:
		c.Status = chain.StatusDormant
		c.GapRun = 1
		c.AddGap(year)
	case chain.StatusDormant:
		c.GapRun++
		c.AddGap(year)
		if c.GapRun > maxGapYears {
			c.Status = chain.StatusEnded
		}
	case chain.StatusEnded:
		// Terminal.
	}
	return c.Status
}

// ApplyMatch resets the gap run for a chain matched this year. A
// dormant chain passing the reactivation gate returns to active; its
// gap list keeps the intervening years.
func ApplyMatch(c *chain.Chain) {
	if c.Status == chain.StatusDormant {
		c.Status = chain.StatusActive
	}
	c.GapRun = 0
}
