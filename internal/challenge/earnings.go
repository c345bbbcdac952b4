package challenge

import "math"

// ComputeEarnings maps screen time against the daily goal to a coin payout.
// Meeting the goal pays the full daily budget. Beyond the goal the payout
// decays linearly and reaches zero once usage doubles the goal:
//
//	coins = max(0, budget * (1 - (used-goal)/goal))
//
// Decayed payouts are rounded to one decimal digit, half away from zero; the
// goal-met payout is the budget itself, untouched, so coins never exceed it.
// A zero goal means earnings are undefined; callers treat that as coins=0,
// success=false.
func ComputeEarnings(usedHours, goalHours, dailyBudget float64) (coins float64, success bool, err error) {
	if goalHours <= 0 {
		return 0, false, ErrGoalNotConfigured
	}

	if usedHours <= goalHours {
		return dailyBudget, true, nil
	}

	coins = dailyBudget * (1 - (usedHours-goalHours)/goalHours)
	if coins < 0 {
		coins = 0
	}
	return roundCoins(coins), false, nil
}

// MinutesToHours converts the high-precision minute count to fractional hours.
func MinutesToHours(minutes int) float64 {
	return float64(minutes) / 60
}

func roundCoins(v float64) float64 {
	return math.Round(v*10) / 10
}
