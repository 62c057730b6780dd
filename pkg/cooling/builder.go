// Layer parsing into move records
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package cooling

import (
	"math"

	perrors "toolpath-postproc/pkg/errors"
	"toolpath-postproc/pkg/gcode"
	"toolpath-postproc/pkg/log"
	"toolpath-postproc/pkg/metrics"
)

// builder turns the text of one layer into move records. Motion lines of an
// open adjustable block are accumulated into the record of the line that
// opened it, which is finalized by the block end marker or the layer end.
type builder struct {
	cfg     *Config
	tok     *gcode.Tokenizer
	log     *log.Logger
	metrics *metrics.FilterMetrics

	tracker  gcode.Tracker
	extruder int
	budgets  []*ExtruderTimeBudget
	records  []*MoveRecord
	open     *MoveRecord
	started  bool
	role     gcode.Role
}

func newBuilder(r *Regulator) *builder {
	b := &builder{
		cfg:      &r.cfg,
		tok:      r.tok,
		log:      r.log,
		metrics:  r.metrics,
		tracker:  gcode.Tracker{Pos: r.state.pos, RelativeE: r.cfg.RelativeE},
		extruder: r.state.extruder,
		budgets:  make([]*ExtruderTimeBudget, len(r.cfg.Extruders)),
	}
	for i, ec := range r.cfg.Extruders {
		b.budgets[i] = &ExtruderTimeBudget{ID: i, Config: ec}
	}
	return b
}

func (b *builder) add(rec *MoveRecord) {
	b.records = append(b.records, rec)
	bud := b.budgets[b.extruder]
	bud.Records = append(bud.Records, rec)
}

func (b *builder) parse(text string) {
	for _, ln := range b.tok.Split(text) {
		switch ln.Kind {
		case gcode.KindToolChange:
			b.toolChange(ln)
		case gcode.KindBlockEnd:
			b.open = nil
			b.add(&MoveRecord{Line: ln, flags: flagBlockEnd, Role: b.role})
		case gcode.KindFanMarker:
			b.add(&MoveRecord{Line: ln, flags: flagFan, Fan: ln.Fan, Role: b.role})
		case gcode.KindRole:
			b.role = ln.Role
		case gcode.KindDwell:
			t := ln.Value('S', -1)
			if t < 0 {
				t = ln.Value('P', 0) * 0.001
			}
			b.add(&MoveRecord{Line: ln, flags: flagDwell, Time: t, TimeMax: t, Role: b.role})
		case gcode.KindSetPosition:
			b.tracker.Apply(&ln)
		case gcode.KindMove, gcode.KindArc:
			b.motion(ln)
		}
	}
	if b.open != nil {
		b.log.WithField("line", b.open.Line.Text).Warn("adjustable block not closed at layer end")
		b.open = nil
	}
}

func (b *builder) toolChange(ln gcode.Line) {
	idx := ln.Code
	if idx < 0 || idx >= len(b.cfg.Extruders) {
		if len(b.cfg.Extruders) > 1 {
			b.log.WithError(perrors.UnknownToolError(idx, len(b.cfg.Extruders))).Warn("tool change ignored")
			b.metrics.ToolChangeIgnored("cooling")
		}
		return
	}
	if idx == b.extruder {
		return
	}
	b.open = nil
	b.extruder = idx
	b.add(&MoveRecord{Line: ln, flags: flagSetTool, Tool: idx, Role: b.role})
}

func (b *builder) motion(ln gcode.Line) {
	mv := b.tracker.Apply(&ln)
	travel := mv.Travel()
	feed := mv.End[gcode.F]
	var t float64
	if travel > 0 && feed > 0 {
		t = travel / feed
	}

	beginsBlock := ln.Tags.Has(gcode.TagBlockBegin)
	if beginsBlock {
		b.started = true
	}
	if !b.started {
		// Moves before the first marked extrusion do not count.
		t = 0
	}
	inBlock := beginsBlock || b.open != nil
	tMax := t
	if inBlock && ln.Tags&gcode.TagWipe == 0 {
		tMax = b.maxTime(travel, t)
	}

	if b.open != nil && !beginsBlock && !ln.Has('F') && ln.Tags&gcode.TagWipe == 0 {
		u := b.open
		u.Length += travel
		u.Time += t
		u.TimeMax += tMax
		u.To = mv.End
		u.Merged++
		if ln.Tags != 0 {
			// Kept in layer order only so the rewrite strips its markers.
			b.records = append(b.records, &MoveRecord{Line: ln, Role: b.role})
		}
		return
	}

	rec := &MoveRecord{
		Line:            ln,
		flags:           flagMotion,
		Role:            b.role,
		From:            mv.Start,
		To:              mv.End,
		Length:          travel,
		Feedrate:        feed,
		NominalFeedrate: feed,
		Time:            t,
		TimeMax:         tMax,
		Merged:          1,
	}
	if ln.Has('F') {
		rec.flags |= flagHasF
	}
	if ln.Tags.Has(gcode.TagExternalPerimeter) {
		rec.flags |= flagExternalPerimeter
	}
	switch {
	case ln.Tags.Has(gcode.TagWipe):
		rec.flags |= flagWipe
		b.open = nil
	case inBlock:
		rec.flags |= flagAdjustable
		b.open = rec
	}
	b.add(rec)
}

// maxTime returns the duration of a move at the extruder's floor feedrate.
func (b *builder) maxTime(length, t float64) float64 {
	floor := b.cfg.Extruders[b.extruder].MinPrintSpeed
	if floor <= 0 {
		return math.Inf(1)
	}
	return math.Max(t, length/floor)
}
