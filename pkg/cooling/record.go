// Move records and per-extruder time budgets
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package cooling

import (
	"math"
	"slices"

	"toolpath-postproc/pkg/gcode"
)

const epsilon = 1e-4

type recordFlag uint16

const (
	flagMotion recordFlag = 1 << iota
	flagHasF
	flagAdjustable
	flagExternalPerimeter
	flagWipe
	flagSetTool
	flagBlockEnd
	flagFan
	flagDwell
)

// MoveRecord is one instruction of a layer, or the merged lines of one
// adjustable block. Only the first line of a merged unit is kept; the
// following lines are folded into its length and time.
type MoveRecord struct {
	Line  gcode.Line
	flags recordFlag
	Tool  int
	Fan   gcode.FanMarker
	Role  gcode.Role

	From gcode.Position
	To   gcode.Position

	Length float64
	// Feedrate is the current feedrate in mm/s, NominalFeedrate the one found
	// in the text.
	Feedrate        float64
	NominalFeedrate float64
	Time            float64
	// TimeMax bounds Time under full slowdown; +Inf when unbounded.
	TimeMax  float64
	Slowdown bool
	Merged   int
}

// Adjustable reports whether the record may still be slowed down.
func (r *MoveRecord) Adjustable(includeExternal bool) bool {
	return r.flags&flagAdjustable != 0 &&
		r.flags&flagWipe == 0 &&
		(includeExternal || r.flags&flagExternalPerimeter == 0) &&
		r.Time < r.TimeMax
}

func (r *MoveRecord) setFeedrate(f float64) {
	r.Feedrate = f
	r.Slowdown = true
}

// ExtruderTimeBudget collects the move records of one extruder on a layer
// together with the limits of its slowdown.
type ExtruderTimeBudget struct {
	ID      int
	Config  ExtruderConfig
	Records []*MoveRecord

	// Filled by sortByDecreasingFeedrate.
	nAdjustable int
	idxBegin    int
	idxEnd      int
}

func (b *ExtruderTimeBudget) includeExternal() bool {
	return !b.Config.ExcludeOuterWall
}

// ElapsedTime returns the current duration of all records.
func (b *ExtruderTimeBudget) ElapsedTime() float64 {
	var t float64
	for _, r := range b.Records {
		t += r.Time
	}
	return t
}

// MaximumTime returns the duration with every adjustable record at its
// floor, +Inf when a record is unbounded.
func (b *ExtruderTimeBudget) MaximumTime(includeExternal bool) float64 {
	var t float64
	for _, r := range b.Records {
		if r.Adjustable(includeExternal) {
			if math.IsInf(r.TimeMax, 1) {
				return math.Inf(1)
			}
			t += r.TimeMax
		} else {
			t += r.Time
		}
	}
	return t
}

// AdjustableTime returns the duration of the records that can be slowed.
func (b *ExtruderTimeBudget) AdjustableTime(includeExternal bool) float64 {
	var t float64
	for _, r := range b.Records {
		if r.Adjustable(includeExternal) {
			t += r.Time
		}
	}
	return t
}

// NonAdjustableTime returns the duration of the fixed records.
func (b *ExtruderTimeBudget) NonAdjustableTime(includeExternal bool) float64 {
	var t float64
	for _, r := range b.Records {
		if !r.Adjustable(includeExternal) {
			t += r.Time
		}
	}
	return t
}

// SlowDownToMinimum moves every adjustable record to its floor and returns
// the new elapsed time.
func (b *ExtruderTimeBudget) SlowDownToMinimum(includeExternal bool) float64 {
	var t float64
	for _, r := range b.Records {
		if r.Adjustable(includeExternal) && !math.IsInf(r.TimeMax, 1) {
			r.Time = r.TimeMax
			r.setFeedrate(r.Length / r.Time)
		}
		t += r.Time
	}
	return t
}

// SlowDownProportional stretches every adjustable record by factor, capped
// at its maximum time, and returns the new elapsed time.
func (b *ExtruderTimeBudget) SlowDownProportional(factor float64, includeExternal bool) float64 {
	var t float64
	for _, r := range b.Records {
		if r.Adjustable(includeExternal) {
			r.Time = math.Min(r.TimeMax, r.Time*factor)
			r.setFeedrate(r.Length / r.Time)
		}
		t += r.Time
	}
	return t
}

// sortByDecreasingFeedrate puts the adjustable records first, fastest first.
func (b *ExtruderTimeBudget) sortByDecreasingFeedrate() {
	inc := b.includeExternal()
	slices.SortStableFunc(b.Records, func(x, y *MoveRecord) int {
		ax, ay := x.Adjustable(inc), y.Adjustable(inc)
		switch {
		case ax != ay:
			if ax {
				return -1
			}
			return 1
		case ax && x.Feedrate != y.Feedrate:
			if x.Feedrate > y.Feedrate {
				return -1
			}
			return 1
		}
		return 0
	})
	b.nAdjustable = 0
	for _, r := range b.Records {
		if !r.Adjustable(inc) {
			break
		}
		b.nAdjustable++
	}
	b.idxBegin, b.idxEnd = 0, 0
}

func (b *ExtruderTimeBudget) adjustable() []*MoveRecord {
	return b.Records[:b.nAdjustable]
}

// timeStretchAt returns the time gained by lowering every faster adjustable
// record to feedrate.
func (b *ExtruderTimeBudget) timeStretchAt(feedrate float64) float64 {
	var t float64
	for _, r := range b.adjustable() {
		if r.Feedrate > feedrate {
			t += r.Time * (r.Feedrate/feedrate - 1)
		}
	}
	return t
}

func (b *ExtruderTimeBudget) slowDownTo(feedrate float64) {
	for _, r := range b.adjustable() {
		if r.Feedrate > feedrate {
			r.Time = math.Min(r.TimeMax, r.Time*r.Feedrate/feedrate)
			r.setFeedrate(feedrate)
		}
	}
}
