// Motion time simulation
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import "math"

// Segment is one simulated motion line.
type Segment struct {
	Line      string
	Length    float64
	Extrusion float64
	Feedrate  float64 // mm/s
	Time      float64
}

// Stats summarizes simulated G-code.
type Stats struct {
	Time      float64
	Length    float64
	Extrusion float64
	Moves     int
	// MinFeedrate and MaxFeedrate cover extruding moves only (mm/s).
	MinFeedrate float64
	MaxFeedrate float64
	Segments    []Segment
}

// Simulator estimates the duration of G-code assuming every move runs at its
// commanded feedrate. Acceleration is ignored.
type Simulator struct {
	tok     *Tokenizer
	tracker Tracker
	// Trace records a Segment for every motion line.
	Trace bool
	// DefaultFeedrate times moves issued before any feedrate is known
	// (mm/s). Zero leaves them untimed.
	DefaultFeedrate float64
}

// NewSimulator creates a simulator starting at the origin.
func NewSimulator(toolchangePrefix string, relativeE bool) *Simulator {
	return &Simulator{
		tok:     NewTokenizer(toolchangePrefix),
		tracker: Tracker{RelativeE: relativeE},
	}
}

// Position returns the simulated machine position.
func (s *Simulator) Position() Position {
	return s.tracker.Pos
}

// Feed simulates text and returns its statistics. Position carries over to
// the next call.
func (s *Simulator) Feed(text string) Stats {
	st := Stats{MinFeedrate: math.Inf(1)}
	for _, ln := range s.tok.Split(text) {
		switch ln.Kind {
		case KindDwell:
			if w, ok := ln.Word('S'); ok {
				st.Time += w.Value
			} else {
				st.Time += ln.Value('P', 0) * 0.001
			}
		case KindMove, KindArc, KindSetPosition:
			mv := s.tracker.Apply(&ln)
			if ln.Kind == KindSetPosition {
				continue
			}
			dt := mv.Duration()
			if mv.End[F] <= 0 && s.DefaultFeedrate > 0 {
				dt = mv.Travel() / s.DefaultFeedrate
			}
			st.Time += dt
			st.Length += mv.Length
			st.Extrusion += mv.Extrusion()
			st.Moves++
			if mv.Length > 0 && mv.Extrusion() > 0 {
				st.MinFeedrate = math.Min(st.MinFeedrate, mv.End[F])
				st.MaxFeedrate = math.Max(st.MaxFeedrate, mv.End[F])
			}
			if s.Trace {
				st.Segments = append(st.Segments, Segment{
					Line:      ln.Text,
					Length:    mv.Length,
					Extrusion: mv.Extrusion(),
					Feedrate:  mv.End[F],
					Time:      dt,
				})
			}
		}
	}
	if math.IsInf(st.MinFeedrate, 1) {
		st.MinFeedrate = 0
	}
	return st
}
