// Filter pipeline
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package pipeline chains the cooling regulator and the flow rate equalizer
// over the layers of a print job.
package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"

	"toolpath-postproc/pkg/cooling"
	perrors "toolpath-postproc/pkg/errors"
	"toolpath-postproc/pkg/flowrate"
	"toolpath-postproc/pkg/gcode"
	"toolpath-postproc/pkg/log"
	"toolpath-postproc/pkg/metrics"
)

// Config holds the job level settings shared by both filters.
type Config struct {
	// LayerChangeMarker starts every layer of a job file.
	LayerChangeMarker string
	// TravelSpeed times moves issued before any feedrate (mm/s).
	TravelSpeed float64
}

// DefaultConfig returns the settings used for unset options.
func DefaultConfig() Config {
	return Config{
		LayerChangeMarker: ";LAYER_CHANGE",
		TravelSpeed:       150,
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs error
	if c.LayerChangeMarker == "" {
		errs = multierr.Append(errs, perrors.ConfigValidationError("printer", "layer_change_marker", "must not be empty"))
	}
	if c.TravelSpeed <= 0 {
		errs = multierr.Append(errs, perrors.ConfigValidationError("printer", "travel_speed", "must be above 0"))
	}
	return errs
}

// Report sums up a job.
type Report struct {
	Layers        int
	TimeBefore    float64
	TimeAfter     float64
	SlowedRecords int
}

// Pipeline runs the cooling regulator and then the flow rate equalizer on
// each completed layer. One Pipeline serves one job at a time.
type Pipeline struct {
	cfg       Config
	prefix    string
	relativeE bool
	log       *log.Logger

	cooling *cooling.Regulator
	flow    *flowrate.Equalizer

	last   int
	report Report
}

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	log     *log.Logger
	metrics *metrics.FilterMetrics
}

// WithLogger sets the logger of the pipeline and both filters.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records filter statistics into m.
func WithMetrics(m *metrics.FilterMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// New validates all three configurations and creates the filters.
func New(cfg Config, cc cooling.Config, fc flowrate.Config, opts ...Option) (*Pipeline, error) {
	o := options{log: log.GetLogger("pipeline")}
	for _, opt := range opts {
		opt(&o)
	}

	errs := cfg.Validate()
	reg, err := cooling.New(cc,
		cooling.WithLogger(o.log.WithPrefix("cooling")),
		cooling.WithMetrics(o.metrics))
	errs = multierr.Append(errs, err)
	eq, err := flowrate.New(fc,
		flowrate.WithLogger(o.log.WithPrefix("flowrate")),
		flowrate.WithMetrics(o.metrics))
	errs = multierr.Append(errs, err)
	if errs != nil {
		return nil, errs
	}

	p := &Pipeline{
		cfg:       cfg,
		prefix:    cc.ToolchangePrefix,
		relativeE: cc.RelativeE,
		log:       o.log,
		cooling:   reg,
		flow:      eq,
	}
	p.Reset(gcode.Position{})
	return p, nil
}

// Reset prepares both filters for a new job starting at pos.
func (p *Pipeline) Reset(pos gcode.Position) {
	p.cooling.Reset(pos)
	p.flow.Reset(pos)
	p.last = Prologue
	p.report = Report{}
}

// Report returns the statistics of the current job.
func (p *Pipeline) Report() Report {
	return p.report
}

// ProcessLayer regulates a complete layer and returns the equalized text of
// the layer before it. Layers must arrive in increasing order.
func (p *Pipeline) ProcessLayer(text string, layer int) (string, error) {
	if layer <= p.last {
		return "", perrors.StateError(fmt.Sprintf("layer %d after layer %d", layer, p.last))
	}
	p.last = layer

	cooled := p.cooling.ProcessLayer(text, layer, true)
	lr := p.cooling.LastReport()
	p.report.Layers++
	p.report.TimeBefore += lr.TimeBefore
	p.report.TimeAfter += lr.TimeAfter
	p.report.SlowedRecords += lr.SlowedRecords

	return p.flow.ProcessLayer(cooled, false)
}

// Finish returns the last buffered layer. It must be called once after the
// last layer of a job.
func (p *Pipeline) Finish() string {
	return p.flow.Flush()
}

// Run processes a whole job read from r and writes the result to w. The text
// before the first layer change passes through unchanged. ctx is checked
// between layers.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	p.Reset(gcode.Position{})
	lr := NewLayerReader(r, p.cfg.LayerChangeMarker)
	bw := bufio.NewWriterSize(w, 64*1024)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, layer, err := lr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return perrors.Wrap(err, perrors.ErrFileOpen, "read job")
		}

		out := text
		if layer == Prologue {
			sim := gcode.NewSimulator(p.prefix, p.relativeE)
			sim.Feed(text)
			p.Reset(sim.Position())
		} else {
			out, err = p.ProcessLayer(text, layer)
			if err != nil {
				return fmt.Errorf("layer %d: %w", layer, err)
			}
		}
		if _, err := bw.WriteString(out); err != nil {
			return perrors.Wrap(err, perrors.ErrFileWrite, "write job")
		}
	}

	if _, err := bw.WriteString(p.Finish()); err != nil {
		return perrors.Wrap(err, perrors.ErrFileWrite, "write job")
	}
	if err := bw.Flush(); err != nil {
		return perrors.Wrap(err, perrors.ErrFileWrite, "write job")
	}
	p.log.WithFields(log.Fields{
		"layers": p.report.Layers,
		"before": p.report.TimeBefore,
		"after":  p.report.TimeAfter,
		"slowed": p.report.SlowedRecords,
	}).Debug("job processed")
	return nil
}
