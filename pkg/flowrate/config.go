// Flow rate equalizer configuration
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package flowrate

import (
	"fmt"
	"math"

	"go.uber.org/multierr"

	perrors "toolpath-postproc/pkg/errors"
	"toolpath-postproc/pkg/gcode"
)

const section = "flow_equalizer"

// Slope limits the change of the volumetric extrusion rate in mm³/s². Zero
// leaves the direction unlimited.
type Slope struct {
	Positive float64
	Negative float64
}

// Config configures an Equalizer.
type Config struct {
	// FilamentDiameters holds one diameter in mm per extruder.
	FilamentDiameters []float64
	// Default holds the slope of every role without an override.
	Default    Slope
	RoleSlopes map[gcode.Role]Slope
	// ExemptRoles are never slowed down by their neighbours.
	ExemptRoles []gcode.Role

	MaxSegmentLength float64
	LookbackLines    int
	// MaxIgnoredGap is the longest travel, in mm, that does not end a run.
	MaxIgnoredGap float64

	RelativeE        bool
	ToolchangePrefix string
}

// DefaultConfig returns a configuration with slope limiting disabled.
func DefaultConfig() Config {
	return Config{
		FilamentDiameters: []float64{1.75},
		ExemptRoles:       []gcode.Role{gcode.RoleIroning, gcode.RoleBridgeInfill, gcode.RoleInternalBridgeInfill},
		MaxSegmentLength:  20,
		LookbackLines:     128,
		MaxIgnoredGap:     3,
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var err error
	fail := func(option, reason string) {
		err = multierr.Append(err, perrors.ConfigValidationError(section, option, reason))
	}
	if len(c.FilamentDiameters) == 0 {
		fail("filament_diameter", "at least one extruder is required")
	}
	for i, d := range c.FilamentDiameters {
		if !(d > 0) {
			fail("filament_diameter", fmt.Sprintf("extruder %d: must be positive", i))
		}
	}
	checkSlope := func(prefix string, s Slope) {
		if s.Positive < 0 {
			fail(prefix+"_positive", "must not be negative")
		}
		if s.Negative < 0 {
			fail(prefix+"_negative", "must not be negative")
		}
	}
	checkSlope("max_volumetric_extrusion_rate_slope", c.Default)
	for role, s := range c.RoleSlopes {
		if !role.Valid() || role == gcode.RoleNone {
			fail("slope", fmt.Sprintf("invalid role %d", role))
			continue
		}
		checkSlope(role.String()+"_slope", s)
	}
	if !(c.MaxSegmentLength > 0) {
		fail("max_segment_length", "must be positive")
	}
	if c.LookbackLines < 2 {
		fail("lookback_lines", "must be at least 2")
	}
	if c.MaxIgnoredGap < 0 {
		fail("max_ignored_gap", "must not be negative")
	}
	return err
}

// Enabled reports whether any role has a slope limit.
func (c *Config) Enabled() bool {
	for _, s := range c.slopes() {
		if s.Positive > 0 || s.Negative > 0 {
			return true
		}
	}
	return false
}

// slopes resolves the limit of every role. Exempt roles stay unlimited.
func (c *Config) slopes() [gcode.RoleCount]Slope {
	var out [gcode.RoleCount]Slope
	for r := gcode.RolePerimeter; r < gcode.RoleCount; r++ {
		out[r] = c.Default
		if s, ok := c.RoleSlopes[r]; ok {
			out[r] = s
		}
	}
	for _, r := range c.ExemptRoles {
		if r.Valid() {
			out[r] = Slope{}
		}
	}
	return out
}

func (c *Config) exempt() [gcode.RoleCount]bool {
	var out [gcode.RoleCount]bool
	for _, r := range c.ExemptRoles {
		if r.Valid() {
			out[r] = true
		}
	}
	return out
}

func (c *Config) crossSections() []float64 {
	out := make([]float64, len(c.FilamentDiameters))
	for i, d := range c.FilamentDiameters {
		out[i] = 0.25 * math.Pi * d * d
	}
	return out
}
