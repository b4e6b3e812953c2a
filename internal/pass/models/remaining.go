package models

import "time"

// TimeRemaining is the validity left on a pass at now: zero once the
// deadline is reached or the pass is terminal, never negative.
func TimeRemaining(p *VisitorPass, now time.Time) time.Duration {
	if p == nil || p.Status.IsTerminal() {
		return 0
	}
	if remaining := p.ExpectedDeparture.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}
