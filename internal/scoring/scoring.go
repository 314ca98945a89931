package scoring

import (
	"math"
	"time"
)

// Timeslots are the upper bounds of each speed bracket. Finishing under
// Perfect earns the full score; every later bracket earns less.
type Timeslots struct {
	Perfect   time.Duration
	Great     time.Duration
	Medium    time.Duration
	NotSoGood time.Duration
}

type Params struct {
	MaxScore         int
	WrongAttemptCost int
	Timeslots        Timeslots
}

// MinMultiplier is also the floor applied after attempt penalties.
const MinMultiplier = 0.2

func Multiplier(active time.Duration, ts Timeslots) float64 {
	switch {
	case active < ts.Perfect:
		return 1
	case active < ts.Great:
		return 0.8
	case active < ts.Medium:
		return 0.6
	case active < ts.NotSoGood:
		return 0.4
	default:
		return MinMultiplier
	}
}

// Score is what a winning play earns after active play time and wrong
// attempts. It never drops below MinMultiplier of the max score.
func Score(p Params, active time.Duration, attempts int) (int, float64) {
	m := Multiplier(active, p.Timeslots)
	raw := float64(p.MaxScore)*m - float64(attempts*p.WrongAttemptCost)
	floor := float64(p.MaxScore) * MinMultiplier
	return int(math.Max(raw, floor)), m
}
