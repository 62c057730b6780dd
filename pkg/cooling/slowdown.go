// Layer time budget solvers
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package cooling

import (
	"math"
	"slices"
)

// FeedrateForStretch returns the common feedrate that, applied to every move
// faster than minFeedrate, lengthens them together by stretch seconds. The
// search is a fixed point iteration bounded by maxIter rounds; when it does
// not converge the last candidate is returned.
func FeedrateForStretch(moves []*MoveRecord, minFeedrate, stretch float64, maxIter int) float64 {
	feedrate := minFeedrate
	for iter := 0; iter < maxIter; iter++ {
		num, denom := 0.0, stretch
		for _, m := range moves {
			if m.Feedrate > minFeedrate {
				num += m.Time * m.Feedrate
				denom += m.Time
			}
		}
		if denom <= 0 {
			return minFeedrate
		}
		feedrate = num / denom
		if feedrate < minFeedrate+epsilon {
			return minFeedrate
		}
		converged := true
		for _, m := range moves {
			if m.Feedrate > minFeedrate && m.Feedrate < feedrate {
				converged = false
				break
			}
		}
		if converged {
			return feedrate
		}
		// Moves already slower than the candidate only lower the estimate.
		minFeedrate = feedrate
	}
	return feedrate
}

// adjustableMoves collects the adjustable records of every budget.
func adjustableMoves(group []*ExtruderTimeBudget) []*MoveRecord {
	var out []*MoveRecord
	for _, b := range group {
		out = append(out, b.adjustable()...)
	}
	return out
}

// slowDownNonProportional lowers the fastest tier of adjustable moves of the
// group first, tier by tier, until stretch seconds have been added.
func slowDownNonProportional(group []*ExtruderTimeBudget, stretch float64) {
	byMinSpeed := make([]*ExtruderTimeBudget, 0, len(group))
	var feedrate float64
	for _, b := range group {
		b.idxBegin, b.idxEnd = 0, 0
		if b.nAdjustable == 0 {
			continue
		}
		byMinSpeed = append(byMinSpeed, b)
		feedrate = math.Max(feedrate, b.Records[0].Feedrate)
	}
	if len(byMinSpeed) == 0 || feedrate <= 0 {
		return
	}
	slices.SortStableFunc(byMinSpeed, func(x, y *ExtruderTimeBudget) int {
		switch {
		case x.Config.MinPrintSpeed > y.Config.MinPrintSpeed:
			return -1
		case x.Config.MinPrintSpeed < y.Config.MinPrintSpeed:
			return 1
		}
		return 0
	})

	for {
		for _, b := range byMinSpeed {
			b.idxEnd = b.idxBegin
			for b.idxEnd < b.nAdjustable && b.Records[b.idxEnd].Feedrate > feedrate-epsilon {
				b.idxEnd++
			}
		}
		var next float64
		for _, b := range byMinSpeed {
			if b.idxEnd < b.nAdjustable {
				next = math.Max(next, b.Records[b.idxEnd].Feedrate)
			}
		}

		for i := 0; i < len(byMinSpeed); {
			rest := byMinSpeed[i:]
			floor := byMinSpeed[i].Config.MinPrintSpeed
			if floor == 0 {
				// No floor left: stretch the rest of the group by one ratio.
				var adjustable float64
				for _, b := range rest {
					adjustable += b.AdjustableTime(b.includeExternal())
				}
				if adjustable > 0 {
					rate := (adjustable + stretch) / adjustable
					for _, b := range rest {
						b.SlowDownProportional(rate, b.includeExternal())
					}
				}
				return
			}

			limit := math.Max(next, floor)
			var available float64
			for _, b := range rest {
				available += b.timeStretchAt(limit)
			}
			done := available >= stretch
			if done {
				limit = FeedrateForStretch(adjustableMoves(rest), limit, stretch, 20)
			} else {
				stretch -= available
			}
			for _, b := range rest {
				b.slowDownTo(limit)
			}
			if done {
				return
			}
			// Extruders with nearly the same floor were lowered together.
			j := i + 1
			for j < len(byMinSpeed) && byMinSpeed[j].Config.MinPrintSpeed > floor-epsilon {
				j++
			}
			i = j
		}

		if next == 0 {
			return
		}
		for _, b := range byMinSpeed {
			b.idxBegin = b.idxEnd
		}
		feedrate = next
	}
}

// slowDownProportional stretches the adjustable moves of the group by a
// common factor: moves other than external perimeters first, external
// perimeters only when the former cannot reach target on their own. It
// returns the layer time after the slowdown.
func slowDownProportional(group []*ExtruderTimeBudget, elapsed0, total, target float64) float64 {
	maxWithoutExternal := elapsed0
	for _, b := range group {
		maxWithoutExternal += b.MaximumTime(false)
	}
	external := maxWithoutExternal <= target
	inc := func(b *ExtruderTimeBudget) bool { return external && b.includeExternal() }
	if external {
		for _, b := range group {
			b.SlowDownToMinimum(false)
		}
		total = elapsed0
		for _, b := range group {
			total += b.ElapsedTime()
		}
	}

	fixed := elapsed0
	for _, b := range group {
		fixed += b.NonAdjustableTime(inc(b))
	}
	for iter := 0; iter < 20 && total < target; iter++ {
		if total-fixed <= epsilon {
			break
		}
		factor := (target - fixed) / (total - fixed)
		if factor <= 1 {
			break
		}
		total = elapsed0
		for _, b := range group {
			total += b.SlowDownProportional(factor, inc(b))
		}
		// Moves capped at their floor no longer stretch.
		fixed = elapsed0
		for _, b := range group {
			fixed += b.NonAdjustableTime(inc(b))
		}
	}
	return total
}

// layerSlowdown distributes the time missing to reach each extruder's minimum
// layer time and returns the resulting layer time.
func layerSlowdown(budgets []*ExtruderTimeBudget, logic SlowdownLogic) float64 {
	var (
		elapsed0 float64
		active   []*ExtruderTimeBudget
		totals   = make(map[*ExtruderTimeBudget]float64, len(budgets))
		maxima   = make(map[*ExtruderTimeBudget]float64, len(budgets))
	)
	for _, b := range budgets {
		totals[b] = b.ElapsedTime()
		maxima[b] = b.MaximumTime(b.includeExternal())
		if b.Config.CoolingEnabled && len(b.Records) > 0 {
			active = append(active, b)
			if logic == SlowdownNonProportional {
				b.sortByDecreasingFeedrate()
			}
		} else {
			elapsed0 += totals[b]
		}
	}
	slices.SortStableFunc(active, func(x, y *ExtruderTimeBudget) int {
		switch {
		case x.Config.MinLayerTime < y.Config.MinLayerTime:
			return -1
		case x.Config.MinLayerTime > y.Config.MinLayerTime:
			return 1
		}
		return 0
	})

	for i, b := range active {
		group := active[i:]
		total := elapsed0
		maxTime := elapsed0
		for _, g := range group {
			total += totals[g]
			maxTime += maxima[g]
		}
		threshold := b.Config.MinLayerTime * 1.001
		switch {
		case total > threshold:
		case maxTime > threshold:
			if logic == SlowdownProportional {
				slowDownProportional(group, elapsed0, total, threshold)
			} else {
				slowDownNonProportional(group, threshold-total)
			}
		default:
			for _, g := range group {
				g.SlowDownToMinimum(g.includeExternal())
			}
		}
		for _, g := range group {
			totals[g] = g.ElapsedTime()
		}
		elapsed0 += totals[b]
	}
	return elapsed0
}
