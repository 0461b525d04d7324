// Package escalate maps elapsed time to escalation tiers. It is pure and
// deterministic so every pass can re-evaluate the same inputs and land on
// the same labels.
package escalate

import "time"

// TierNone is returned when elapsed time is below the first threshold.
const TierNone = ""

// Tier pairs a minimum elapsed-days threshold with its label. Threshold
// lists must be sorted ascending by MinDays.
type Tier struct {
	MinDays int
	Label   string
}

// TierFor returns the label of the last tier whose MinDays <= elapsedDays,
// or TierNone when no tier applies yet. Monotonic: a larger elapsedDays
// never yields an earlier tier.
func TierFor(elapsedDays int, tiers []Tier) string {
	label := TierNone
	for _, t := range tiers {
		if elapsedDays < t.MinDays {
			break
		}
		label = t.Label
	}
	return label
}

// ElapsedDays returns whole days between from and now, never negative.
func ElapsedDays(from, now time.Time) int {
	d := int(now.Sub(from).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// DaysUntil returns whole days from now until deadline; negative when the
// deadline has passed.
func DaysUntil(deadline, now time.Time) int {
	return int(deadline.Sub(now).Hours() / 24)
}

// NextApprovalInterval reports whether another approval reminder is due.
// intervals must be ascending; sentCount is how many reminders went out so
// far. At most one interval becomes due per evaluation, so a request that
// sat idle past several thresholds catches up one reminder per pass rather
// than bursting.
func NextApprovalInterval(elapsedDays, sentCount int, intervals []int) bool {
	if sentCount >= len(intervals) {
		return false
	}
	return elapsedDays >= intervals[sentCount]
}

// Stalled reports whether a request has been waiting past the stall
// threshold. A zero threshold disables stall detection.
func Stalled(elapsedDays, stallDays int) bool {
	return stallDays > 0 && elapsedDays >= stallDays
}
