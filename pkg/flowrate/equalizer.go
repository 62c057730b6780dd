// Flow rate equalizer
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package flowrate limits how fast the volumetric extrusion rate may change
// between consecutive extrusions by lowering feedrates around the changes and
// splitting long moves into ramps.
package flowrate

import (
	perrors "toolpath-postproc/pkg/errors"
	"toolpath-postproc/pkg/gcode"
	"toolpath-postproc/pkg/log"
	"toolpath-postproc/pkg/metrics"
	"toolpath-postproc/pkg/pool"
)

// Equalizer processes layers with a delay of one layer, so that limits near
// the end of a layer can reach into the next one.
type Equalizer struct {
	cfg     Config
	tok     *gcode.Tokenizer
	log     *log.Logger
	metrics *metrics.FilterMetrics

	enabled bool
	slopes  [gcode.RoleCount]Slope
	exempt  [gcode.RoleCount]bool
	areas   []float64

	tracker  gcode.Tracker
	extruder int
	role     gcode.Role
	inBlock  bool
	blockAt  int
	window   []*flowLine
	pending  *layerBuf
	layers   int
}

// Option configures an Equalizer.
type Option func(*Equalizer)

// WithLogger sets the logger, GetLogger("flowrate") by default.
func WithLogger(l *log.Logger) Option {
	return func(e *Equalizer) { e.log = l }
}

// WithMetrics records layer statistics into m.
func WithMetrics(m *metrics.FilterMetrics) Option {
	return func(e *Equalizer) { e.metrics = m }
}

// New validates cfg and creates an equalizer.
func New(cfg Config, opts ...Option) (*Equalizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Equalizer{
		cfg:     cfg,
		tok:     gcode.NewTokenizer(cfg.ToolchangePrefix),
		log:     log.GetLogger("flowrate"),
		enabled: cfg.Enabled(),
		slopes:  cfg.slopes(),
		exempt:  cfg.exempt(),
		areas:   cfg.crossSections(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.Reset(gcode.Position{})
	return e, nil
}

// Reset drops the buffered layer and restarts from pos with the first
// extruder.
func (e *Equalizer) Reset(pos gcode.Position) {
	e.tracker = gcode.Tracker{Pos: pos, RelativeE: e.cfg.RelativeE}
	e.extruder = 0
	e.role = gcode.RoleNone
	e.inBlock = false
	e.window = make([]*flowLine, 0, e.cfg.LookbackLines)
	e.pending = nil
	e.layers = 0
}

// Pending reports whether a layer is waiting to be emitted.
func (e *Equalizer) Pending() bool {
	return e.pending != nil
}

// ProcessLayer parses text as the next layer and returns the previous one.
// The first call returns an empty string. With final set the new layer is
// returned as well, so nothing stays buffered.
//
// A layer that leaves an adjustable block open is still buffered, with the
// block closed, and reported with a GCODE_UNTERMINATED_BLOCK error.
func (e *Equalizer) ProcessLayer(text string, final bool) (string, error) {
	cur, err := e.parse(text)

	out := pool.GetBuffer()
	defer pool.PutBuffer(out)
	if e.pending != nil {
		e.record(e.emit(out, e.pending, cur))
		e.release(e.pending)
	}
	e.pending = cur
	if final {
		e.record(e.emit(out, cur, nil))
		e.pending = nil
		e.window = e.window[:0]
	}
	return out.String(), err
}

// Flush returns the buffered layer, if any.
func (e *Equalizer) Flush() string {
	if e.pending == nil {
		return ""
	}
	out := pool.GetBuffer()
	defer pool.PutBuffer(out)
	e.record(e.emit(out, e.pending, nil))
	e.pending = nil
	e.window = e.window[:0]
	return out.String()
}

func (e *Equalizer) record(st emitStats) {
	e.metrics.FlowLayer(st.modified, st.split, st.segments)
	if st.split > 0 {
		e.log.WithFields(log.Fields{
			"modified": st.modified,
			"split":    st.split,
			"segments": st.segments,
		}).Debug("lines split into rate ramps")
	}
}

func (e *Equalizer) parse(text string) (*layerBuf, error) {
	l := &layerBuf{index: e.layers}
	e.layers++
	var blockText string
	for i, ln := range e.tok.Split(text) {
		fl := &flowLine{Line: ln, layer: l.index, role: e.role, inBlock: e.inBlock}
		switch ln.Kind {
		case gcode.KindRole:
			e.role = ln.Role
			fl.kind = kindRole
		case gcode.KindBlockEnd:
			e.inBlock = false
		case gcode.KindToolChange:
			e.toolChange(fl)
		case gcode.KindRetract:
			fl.kind = kindRetract
		case gcode.KindUnretract:
			fl.kind = kindUnretract
		case gcode.KindSetPosition:
			e.tracker.Apply(&fl.Line)
		case gcode.KindMove, gcode.KindArc:
			e.motion(fl)
			if ln.Tags.Has(gcode.TagBlockBegin) {
				e.inBlock = true
				e.blockAt = i
				blockText = ln.Text
			}
		}
		l.lines = append(l.lines, fl)
		if fl.kind == kindRole {
			continue
		}
		e.push(fl)
		if e.enabled && fl.extruding() {
			e.adjust()
		}
	}

	if e.inBlock {
		e.inBlock = false
		e.metrics.UnterminatedBlock()
		err := perrors.UnterminatedBlockError(l.index, e.blockAt+1, blockText)
		e.log.WithError(err).Error("adjustable block not terminated")
		return l, err
	}
	return l, nil
}

// release removes the lines of an emitted layer from the window.
func (e *Equalizer) release(l *layerBuf) {
	i := 0
	for i < len(e.window) && e.window[i].layer <= l.index {
		i++
	}
	n := copy(e.window, e.window[i:])
	e.window = e.window[:n]
}

func (e *Equalizer) push(fl *flowLine) {
	if len(e.window) == e.cfg.LookbackLines {
		n := copy(e.window, e.window[1:])
		e.window = e.window[:n]
	}
	e.window = append(e.window, fl)
}

func (e *Equalizer) toolChange(fl *flowLine) {
	idx := fl.Code
	if idx < 0 || idx >= len(e.areas) {
		if len(e.areas) > 1 {
			e.log.WithError(perrors.UnknownToolError(idx, len(e.areas))).Warn("tool change ignored")
			e.metrics.ToolChangeIgnored("flowrate")
		}
		return
	}
	if idx != e.extruder {
		e.extruder = idx
		fl.kind = kindToolChange
	}
}

func (e *Equalizer) motion(fl *flowLine) {
	mv := e.tracker.Apply(&fl.Line)
	fl.start, fl.end = mv.Start, mv.End
	fl.provided = mv.Provided
	fl.length = mv.Length

	de := mv.Extrusion()
	switch {
	case de < 0:
		fl.kind = kindRetract
	case de > 0 && mv.Length == 0:
		fl.kind = kindUnretract
	case de > 0 && fl.feedrate() > 0:
		fl.kind = kindExtrude
		fl.rate = e.areas[e.extruder] * fl.feedrate() * de / mv.Length
		fl.rateStart = fl.rate
		fl.rateEnd = fl.rate
	case mv.Length > 0:
		fl.kind = kindMove
	}
}
