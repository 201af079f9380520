package engagement

import "math"

const (
	maxFrequencyPenalty = 20.0
	frequencyPenaltyPer = 10.0
	maxLongIdlePenalty  = 15.0
	longIdlePenaltyPer  = 5.0
	longIdleSeconds     = 120.0
	focusBonus          = 10.0
	focusBonusMinActive = 80.0
	focusBonusMaxPeriod = 3
)

// Score computes the 0-100 engagement score for activeSec out of totalSec
// given the idle periods observed. Frequent idling costs up to 20 points,
// idle stretches longer than two minutes cost up to 15, and sustained focus
// (fewer than three idle periods and more than 80% active) earns 10.
func Score(activeSec, totalSec float64, periods []IdlePeriod) int {
	if totalSec <= 0 {
		return 0
	}

	activePct := activeSec / totalSec * 100
	score := activePct

	minutes := totalSec / 60
	if minutes > 0 {
		perMinute := float64(len(periods)) / minutes
		if perMinute > 1 {
			score -= math.Min(maxFrequencyPenalty, (perMinute-1)*frequencyPenaltyPer)
		}
	}

	long := 0
	for _, p := range periods {
		if p.Duration > longIdleSeconds {
			long++
		}
	}
	score -= math.Min(maxLongIdlePenalty, float64(long)*longIdlePenaltyPer)

	if len(periods) < focusBonusMaxPeriod && activePct > focusBonusMinActive {
		score += focusBonus
	}

	return int(math.Round(math.Max(0, math.Min(100, score))))
}
