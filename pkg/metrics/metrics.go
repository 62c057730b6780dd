// Post-processing filter metrics
//
// Counters and histograms describing what the filters did to a job,
// registered on a Prometheus registry and written out in the text
// exposition format once the job is done.
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "gcode_postproc"

// FilterMetrics holds the metrics of both filters. A nil *FilterMetrics is
// valid and records nothing.
type FilterMetrics struct {
	Layers             *prometheus.CounterVec
	SlowedMoves        prometheus.Counter
	LayerTime          prometheus.Histogram
	LayerStretch       prometheus.Histogram
	FanSpeed           prometheus.Gauge
	ModifiedLines      prometheus.Counter
	SplitLines         prometheus.Counter
	EmittedSegments    prometheus.Counter
	IgnoredToolChanges *prometheus.CounterVec
	UnterminatedBlocks prometheus.Counter
}

// New creates the filter metrics and registers them on reg.
func New(reg prometheus.Registerer) *FilterMetrics {
	m := &FilterMetrics{
		Layers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layers_total",
			Help:      "Layers emitted by each filter.",
		}, []string{"filter"}),
		SlowedMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cooling",
			Name:      "slowed_moves_total",
			Help:      "Adjustable move records whose feedrate was lowered.",
		}),
		LayerTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cooling",
			Name:      "layer_time_seconds",
			Help:      "Estimated layer time after slowdown.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		LayerStretch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cooling",
			Name:      "layer_stretch_seconds",
			Help:      "Time added to a layer by the slowdown.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		FanSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cooling",
			Name:      "fan_speed_percent",
			Help:      "Main fan speed chosen for the last layer.",
		}),
		ModifiedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flowrate",
			Name:      "modified_lines_total",
			Help:      "Extrusion lines whose volumetric rate was limited.",
		}),
		SplitLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flowrate",
			Name:      "split_lines_total",
			Help:      "Extrusion lines split into a rate ramp.",
		}),
		EmittedSegments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flowrate",
			Name:      "emitted_segments_total",
			Help:      "Sub-segments written for split lines.",
		}),
		IgnoredToolChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ignored_tool_changes_total",
			Help:      "Tool changes to an unconfigured extruder.",
		}, []string{"filter"}),
		UnterminatedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unterminated_blocks_total",
			Help:      "Adjustable blocks still open at the end of a layer.",
		}),
	}
	reg.MustRegister(
		m.Layers, m.SlowedMoves, m.LayerTime, m.LayerStretch, m.FanSpeed,
		m.ModifiedLines, m.SplitLines, m.EmittedSegments,
		m.IgnoredToolChanges, m.UnterminatedBlocks,
	)
	return m
}

// CoolingLayer records one regulated layer.
func (m *FilterMetrics) CoolingLayer(timeBefore, timeAfter float64, slowed, fanSpeed int) {
	if m == nil {
		return
	}
	m.Layers.WithLabelValues("cooling").Inc()
	m.SlowedMoves.Add(float64(slowed))
	m.LayerTime.Observe(timeAfter)
	if timeAfter > timeBefore {
		m.LayerStretch.Observe(timeAfter - timeBefore)
	}
	m.FanSpeed.Set(float64(fanSpeed))
}

// FlowLayer records one equalized layer.
func (m *FilterMetrics) FlowLayer(modified, split, segments int) {
	if m == nil {
		return
	}
	m.Layers.WithLabelValues("flowrate").Inc()
	m.ModifiedLines.Add(float64(modified))
	m.SplitLines.Add(float64(split))
	m.EmittedSegments.Add(float64(segments))
}

// ToolChangeIgnored records a tool change to an unknown extruder.
func (m *FilterMetrics) ToolChangeIgnored(filter string) {
	if m == nil {
		return
	}
	m.IgnoredToolChanges.WithLabelValues(filter).Inc()
}

// UnterminatedBlock records an adjustable block left open.
func (m *FilterMetrics) UnterminatedBlock() {
	if m == nil {
		return
	}
	m.UnterminatedBlocks.Inc()
}

// WriteText writes every metric of g in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile writes the metrics of g to path.
func WriteFile(path string, g prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteText(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
