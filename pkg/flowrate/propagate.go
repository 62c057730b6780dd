// Rate slope propagation
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package flowrate

import (
	"math"

	"toolpath-postproc/pkg/gcode"
)

// previousExtrusion returns the index of the extruding line before i in the
// window, or -1 when the run ends first. Travel moves are skipped as long as
// their total length stays within the ignored gap.
func (e *Equalizer) previousExtrusion(i int) int {
	var gap float64
	for j := i - 1; j >= 0; j-- {
		ln := e.window[j]
		switch {
		case ln.extruding():
			return j
		case ln.breaksRun():
			return -1
		case ln.kind == kindMove:
			gap += ln.length
			if gap > e.cfg.MaxIgnoredGap {
				return -1
			}
		}
	}
	return -1
}

func (e *Equalizer) nextExtrusion(i int) int {
	for j := i + 1; j < len(e.window); j++ {
		if e.window[j].extruding() {
			return j
		}
	}
	return -1
}

func unlimited() [gcode.RoleCount]float64 {
	var rates [gcode.RoleCount]float64
	for i := range rates {
		rates[i] = math.Inf(1)
	}
	return rates
}

// adjust propagates the rate limits from the newest line of the window
// backwards through its run, then forwards again.
func (e *Equalizer) adjust() {
	last := len(e.window) - 1
	if last < 1 || !e.window[last].extruding() {
		return
	}

	perRole := unlimited()
	idx := last
	perRole[e.window[idx].role] = e.window[idx].rateStart
	for {
		prev := e.previousExtrusion(idx)
		if prev < 0 {
			break
		}
		succ := e.window[idx].rateStart
		idx = prev
		e.limitBackward(e.window[idx], succ, &perRole)
	}

	perRole = unlimited()
	perRole[e.window[idx].role] = e.window[idx].rateEnd
	for idx < last {
		next := e.nextExtrusion(idx)
		if next < 0 {
			break
		}
		prec := e.window[idx].rateEnd
		idx = next
		e.limitForward(e.window[idx], prec, &perRole)
	}
}

// limitBackward bounds the deceleration of ln towards the lines that follow
// it. succ is the start rate of the next extruding line.
func (e *Equalizer) limitBackward(ln *flowLine, succ float64, perRole *[gcode.RoleCount]float64) {
	exempt := e.exempt[ln.role]
	for r := gcode.RolePerimeter; r < gcode.RoleCount; r++ {
		slope := e.slopes[r].Negative
		if slope == 0 {
			continue
		}
		rateEnd := perRole[r]
		if r == ln.role && succ < rateEnd {
			rateEnd = succ
		}
		switch {
		case !exempt && ln.rateEnd > rateEnd:
			ln.rateEnd = rateEnd
			ln.modified = true
		case r == ln.role:
			rateEnd = ln.rateEnd
		case math.IsInf(rateEnd, 1):
			continue
		}
		rateStart := rateEnd + slope*ln.timeCorrected()
		if !exempt && rateStart < ln.rateStart {
			ln.rateStart = rateStart
			ln.slopeNeg = slope
			ln.modified = true
		}
		if r == ln.role {
			perRole[r] = ln.rateStart
		} else {
			perRole[r] = rateStart
		}
	}
}

// limitForward bounds the acceleration of ln after the lines before it. prec
// is the end rate of the previous extruding line.
func (e *Equalizer) limitForward(ln *flowLine, prec float64, perRole *[gcode.RoleCount]float64) {
	exempt := e.exempt[ln.role]
	for r := gcode.RolePerimeter; r < gcode.RoleCount; r++ {
		slope := e.slopes[r].Positive
		if slope == 0 {
			continue
		}
		rateStart := perRole[r]
		if r == ln.role && prec < rateStart {
			rateStart = prec
		}
		switch {
		case !exempt && ln.rateStart > rateStart:
			ln.rateStart = rateStart
			ln.modified = true
		case r == ln.role:
			rateStart = ln.rateStart
		case math.IsInf(rateStart, 1):
			continue
		}
		rateEnd := rateStart + slope*ln.timeCorrected()
		if !exempt && rateEnd < ln.rateEnd {
			ln.rateEnd = rateEnd
			ln.slopePos = slope
			ln.modified = true
		}
		if r == ln.role {
			perRole[r] = ln.rateEnd
		} else {
			perRole[r] = rateEnd
		}
	}
}
