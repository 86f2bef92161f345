package recall

import (
	"sort"

	"gradebook/internal/outcome"
)

// isWin treats a graded outcome with positive 24h pnl as a win. Pending
// rows never count either way.
func isWin(o outcome.TradeOutcome) bool {
	return o.Graded() && o.PnLPct24h != nil && *o.PnLPct24h > 0
}

// aggregate computes stats over the graded subset of outcomes. Zero rows
// yield a zero Stats, never NaN.
func aggregate(outcomes []outcome.TradeOutcome) Stats {
	var s Stats
	var pnlSum float64
	for _, o := range outcomes {
		if !o.Graded() {
			continue
		}
		s.SampleSize++
		if o.PnLPct24h != nil {
			pnlSum += *o.PnLPct24h
		}
		if isWin(o) {
			s.Wins++
		}
	}
	if s.SampleSize > 0 {
		s.WinRate = float64(s.Wins) / float64(s.SampleSize) * 100
		s.AvgPnLPct = pnlSum / float64(s.SampleSize)
	}
	return s
}

func gradeRank(g outcome.Grade) int {
	switch g {
	case outcome.GradeA:
		return 5
	case outcome.GradeB:
		return 4
	case outcome.GradeC:
		return 3
	case outcome.GradeD:
		return 2
	case outcome.GradeF:
		return 1
	default:
		return 0
	}
}

// bestAndWorst picks the highest- and lowest-graded outcomes, breaking grade
// ties by 24h pnl.
func bestAndWorst(outcomes []outcome.TradeOutcome) (best, worst *outcome.TradeOutcome) {
	for i := range outcomes {
		o := outcomes[i]
		if !o.Graded() || o.Grade == nil {
			continue
		}
		if best == nil || better(o, *best) {
			tmp := o
			best = &tmp
		}
		if worst == nil || better(*worst, o) {
			tmp := o
			worst = &tmp
		}
	}
	return best, worst
}

func better(a, b outcome.TradeOutcome) bool {
	ra, rb := 0, 0
	if a.Grade != nil {
		ra = gradeRank(*a.Grade)
	}
	if b.Grade != nil {
		rb = gradeRank(*b.Grade)
	}
	if ra != rb {
		return ra > rb
	}
	return pnl24(a) > pnl24(b)
}

func pnl24(o outcome.TradeOutcome) float64 {
	if o.PnLPct24h == nil {
		return 0
	}
	return *o.PnLPct24h
}

// topByPnL returns up to n graded outcomes sorted by descending 24h pnl.
func topByPnL(outcomes []outcome.TradeOutcome, n int) []outcome.TradeOutcome {
	graded := make([]outcome.TradeOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Graded() {
			graded = append(graded, o)
		}
	}
	sort.SliceStable(graded, func(i, j int) bool {
		return pnl24(graded[i]) > pnl24(graded[j])
	})
	if len(graded) > n {
		graded = graded[:n]
	}
	return graded
}
