// Axis state tracking
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import "math"

// Axis indexes a Position.
type Axis int

const (
	X Axis = iota
	Y
	Z
	E
	F
	NumAxes
)

var axisLetters = [NumAxes]byte{'X', 'Y', 'Z', 'E', 'F'}

// Letter returns the G-code word letter of the axis.
func (a Axis) Letter() byte { return axisLetters[a] }

// Position is the machine state after a line: X, Y, Z, E in mm and the
// modal feedrate F in mm/s.
type Position [NumAxes]float64

// Lerp interpolates the X, Y, Z and E coordinates between p and q. F is
// taken from p.
func (p Position) Lerp(q Position, t float64) Position {
	out := p
	for a := X; a <= E; a++ {
		out[a] = p[a] + (q[a]-p[a])*t
	}
	return out
}

// Move describes the effect of one line on the tracked position.
type Move struct {
	Start    Position
	End      Position
	Provided [NumAxes]bool
	// Length is the toolhead path length: Euclidean for linear moves, arc
	// length for arcs, zero when X, Y and Z do not change.
	Length float64
}

// Extrusion returns the extruder travel of the move.
func (m *Move) Extrusion() float64 {
	return m.End[E] - m.Start[E]
}

// Travel returns the path length, or the extruder travel for moves that
// only drive the extruder.
func (m *Move) Travel() float64 {
	if m.Length > 0 {
		return m.Length
	}
	return math.Abs(m.Extrusion())
}

// Duration returns Travel over the feedrate, zero for a zero feedrate.
func (m *Move) Duration() float64 {
	if m.End[F] <= 0 {
		return 0
	}
	return m.Travel() / m.End[F]
}

// Tracker follows the position through motion and position-reset lines.
type Tracker struct {
	Pos       Position
	RelativeE bool
}

// Apply advances the tracked position over ln. Lines that do not move or
// reset an axis leave the position unchanged and return an empty move.
func (t *Tracker) Apply(ln *Line) Move {
	mv := Move{Start: t.Pos, End: t.Pos}
	switch ln.Kind {
	case KindMove, KindArc:
		for a := X; a < NumAxes; a++ {
			w, ok := ln.Word(a.Letter())
			if !ok {
				continue
			}
			mv.Provided[a] = true
			switch {
			case a == F:
				mv.End[F] = w.Value / 60
			case a == E && t.RelativeE:
				mv.End[E] = t.Pos[E] + w.Value
			default:
				mv.End[a] = w.Value
			}
		}
		if ln.Kind == KindArc {
			mv.Length = ArcLength(mv.Start, mv.End, ln.Value('I', 0), ln.Value('J', 0), ln.Clockwise())
		} else {
			dx := mv.End[X] - mv.Start[X]
			dy := mv.End[Y] - mv.Start[Y]
			dz := mv.End[Z] - mv.Start[Z]
			mv.Length = math.Sqrt(dx*dx + dy*dy + dz*dz)
		}
	case KindSetPosition:
		for a := X; a <= E; a++ {
			if w, ok := ln.Word(a.Letter()); ok {
				mv.Provided[a] = true
				mv.End[a] = w.Value
			}
		}
	default:
		return mv
	}
	t.Pos = mv.End
	return mv
}
