package scorer

import "gradebook/internal/outcome"

// GradeInputs are the five grading inputs. ComputeGrade is a pure function
// of them.
type GradeInputs struct {
	HitTarget bool
	HitStop   bool
	PnLPct24h float64
}

// ComputeGrade assigns the final quality grade at the 24h checkpoint.
// A stop hit grades F no matter where price ended up 24h later; the
// remaining rules resolve top-down, first match wins.
func ComputeGrade(in GradeInputs) outcome.Grade {
	switch {
	case in.HitStop:
		return outcome.GradeF
	case in.HitTarget:
		return outcome.GradeA
	case in.PnLPct24h > 1.0:
		return outcome.GradeB
	case in.PnLPct24h >= -1.0:
		return outcome.GradeC
	case in.PnLPct24h <= -3.0:
		return outcome.GradeF
	default:
		return outcome.GradeD
	}
}

// PnLPercent computes the direction-signed profit percentage: LONG profits
// when price rises, SHORT when it falls.
func PnLPercent(dir outcome.Direction, entry, price float64) float64 {
	if entry == 0 {
		return 0
	}
	raw := (price - entry) / entry * 100
	if dir == outcome.DirectionShort {
		return -raw
	}
	return raw
}

// TrajectoryStats derives hit flags and excursions from the observed price
// trajectory (the checkpoint prices, in order). The engine only ever sees
// checkpoint samples, so the flags are lower bounds on what tick data would
// show.
func TrajectoryStats(dir outcome.Direction, entry, stop, target float64, observed []float64) (hitTarget, hitStop bool, maxFavorable, maxAdverse float64) {
	for _, price := range observed {
		if price <= 0 {
			continue
		}
		exc := PnLPercent(dir, entry, price)
		if exc > maxFavorable {
			maxFavorable = exc
		}
		if exc < maxAdverse {
			maxAdverse = exc
		}
		switch dir {
		case outcome.DirectionLong:
			if price >= target {
				hitTarget = true
			}
			if price <= stop {
				hitStop = true
			}
		case outcome.DirectionShort:
			if price <= target {
				hitTarget = true
			}
			if price >= stop {
				hitStop = true
			}
		}
	}
	return hitTarget, hitStop, maxFavorable, maxAdverse
}
