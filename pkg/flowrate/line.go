// Parsed lines and their extrusion rates
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package flowrate

import "toolpath-postproc/pkg/gcode"

type lineKind uint8

const (
	kindOther lineKind = iota
	kindExtrude
	kindMove
	kindRetract
	kindUnretract
	kindToolChange
	kindRole
)

// flowLine is one line of a buffered layer. Rates are volumetric, in mm³/s.
type flowLine struct {
	gcode.Line
	layer int
	kind  lineKind
	role  gcode.Role

	start    gcode.Position
	end      gcode.Position
	provided [gcode.NumAxes]bool
	length   float64

	rate      float64
	rateStart float64
	rateEnd   float64
	// Slopes that limited the start and end rates, used when splitting.
	slopePos float64
	slopeNeg float64

	// inBlock is set when an adjustable block was open before this line.
	inBlock  bool
	modified bool
}

func (l *flowLine) extruding() bool {
	return l.kind == kindExtrude
}

// breaksRun reports whether the line ends a continuous extrusion run.
func (l *flowLine) breaksRun() bool {
	return l.kind == kindRetract || l.kind == kindUnretract || l.kind == kindToolChange
}

func (l *flowLine) feedrate() float64 {
	return l.end[gcode.F]
}

func (l *flowLine) extrusion() float64 {
	return l.end[gcode.E] - l.start[gcode.E]
}

// correction returns the average rate over the line relative to its nominal
// rate.
func (l *flowLine) correction() float64 {
	return 0.5 * (l.rateStart + l.rateEnd) / l.rate
}

// timeCorrected returns the duration used to bound the rate change along the
// line.
func (l *flowLine) timeCorrected() float64 {
	return l.length / l.feedrate() * l.correction()
}

// blocked reports whether the line is part of an adjustable block.
func (l *flowLine) blocked() bool {
	return l.inBlock || l.Tags.Has(gcode.TagBlockBegin)
}

// layerBuf holds the parsed lines of one layer until it is emitted.
type layerBuf struct {
	index int
	lines []*flowLine
}
