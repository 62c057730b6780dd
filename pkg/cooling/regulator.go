// Cooling regulator
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package cooling slows down short layers so that each one takes at least a
// configured minimum time, and drives the part cooling fan from the
// resulting layer time.
package cooling

import (
	"bytes"

	"toolpath-postproc/pkg/gcode"
	"toolpath-postproc/pkg/log"
	"toolpath-postproc/pkg/metrics"
	"toolpath-postproc/pkg/pool"
)

// LayerReport summarizes the last regulated layer.
type LayerReport struct {
	Layer         int
	TimeBefore    float64
	TimeAfter     float64
	Records       int
	SlowedRecords int
	FanSpeed      int
	ExtruderTimes []float64
}

// runState survives across layers of one job.
type runState struct {
	pos      gcode.Position
	extruder int
	feed     int // mm/min, 0 when unknown
	fan      fanState
}

// Regulator buffers layer text and rewrites it once the layer is complete.
type Regulator struct {
	cfg     Config
	tok     *gcode.Tokenizer
	log     *log.Logger
	metrics *metrics.FilterMetrics

	buf    bytes.Buffer
	state  runState
	report LayerReport
}

// Option configures a Regulator.
type Option func(*Regulator)

// WithLogger sets the logger, GetLogger("cooling") by default.
func WithLogger(l *log.Logger) Option {
	return func(r *Regulator) { r.log = l }
}

// WithMetrics records layer statistics into m.
func WithMetrics(m *metrics.FilterMetrics) Option {
	return func(r *Regulator) { r.metrics = m }
}

// New validates cfg and creates a regulator positioned at the origin.
func New(cfg Config, opts ...Option) (*Regulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Regulator{
		cfg: cfg,
		tok: gcode.NewTokenizer(cfg.ToolchangePrefix),
		log: log.GetLogger("cooling"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Reset(gcode.Position{})
	return r, nil
}

// Reset discards buffered text and restarts the running state from pos.
// The current extruder is kept.
func (r *Regulator) Reset(pos gcode.Position) {
	r.buf.Reset()
	r.state = runState{pos: pos, extruder: r.state.extruder, fan: newFanState()}
	r.report = LayerReport{}
}

// SetCurrentExtruder selects the extruder active at the start of the next
// layer. Out of range indexes are ignored.
func (r *Regulator) SetCurrentExtruder(id int) {
	if id >= 0 && id < len(r.cfg.Extruders) {
		r.state.extruder = id
	}
}

// CurrentExtruder returns the active extruder.
func (r *Regulator) CurrentExtruder() int {
	return r.state.extruder
}

// LastReport returns the statistics of the last flushed layer.
func (r *Regulator) LastReport() LayerReport {
	return r.report
}

// ProcessLayer appends text to the layer buffer. With flush unset it returns
// an empty string; otherwise the whole buffer is regulated, cleared and
// returned.
func (r *Regulator) ProcessLayer(text string, layer int, flush bool) string {
	r.buf.WriteString(text)
	if !flush {
		return ""
	}
	src := r.buf.String()
	r.buf.Reset()

	b := newBuilder(r)
	b.parse(src)

	var before float64
	for _, bud := range b.budgets {
		before += bud.ElapsedTime()
	}
	layerTime := layerSlowdown(b.budgets, r.cfg.Logic)

	out := pool.GetBuffer()
	defer pool.PutBuffer(out)
	r.rewrite(out, src, b.records, layer, layerTime)
	r.state.pos = b.tracker.Pos

	r.report = LayerReport{
		Layer:         layer,
		TimeBefore:    before,
		TimeAfter:     layerTime,
		FanSpeed:      r.state.fan.plan.main,
		ExtruderTimes: make([]float64, len(b.budgets)),
	}
	for i, bud := range b.budgets {
		r.report.ExtruderTimes[i] = bud.ElapsedTime()
	}
	for _, rec := range b.records {
		if rec.flags&flagMotion == 0 {
			continue
		}
		r.report.Records++
		if rec.Slowdown {
			r.report.SlowedRecords++
		}
	}
	r.metrics.CoolingLayer(before, layerTime, r.report.SlowedRecords, r.report.FanSpeed)
	if r.report.SlowedRecords > 0 {
		r.log.WithFields(log.Fields{
			"layer":  layer,
			"before": before,
			"after":  layerTime,
			"slowed": r.report.SlowedRecords,
		}).Debug("layer slowed down")
	}
	return out.String()
}
