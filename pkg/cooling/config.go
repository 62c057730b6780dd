// Cooling regulator configuration
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package cooling

import (
	"fmt"

	"go.uber.org/multierr"

	perrors "toolpath-postproc/pkg/errors"
)

// SlowdownLogic selects how extra layer time is distributed.
type SlowdownLogic int

const (
	// SlowdownNonProportional lowers the fastest moves first, tier by tier.
	SlowdownNonProportional SlowdownLogic = iota
	// SlowdownProportional stretches every adjustable move by one factor.
	SlowdownProportional
)

func (l SlowdownLogic) String() string {
	if l == SlowdownProportional {
		return "proportional"
	}
	return "nonproportional"
}

// ExtruderConfig holds the cooling settings of one extruder. Times are in
// seconds, speeds in mm/s, fan speeds in percent.
type ExtruderConfig struct {
	// CoolingEnabled allows slowing down this extruder's moves.
	CoolingEnabled bool
	// MinLayerTime is the layer time below which moves are slowed down.
	MinLayerTime float64
	// MinPrintSpeed is the feedrate floor of slowed moves. Zero means no floor.
	MinPrintSpeed float64
	// ExcludeOuterWall keeps external perimeters at their nominal speed.
	ExcludeOuterWall bool

	FanMinSpeed int
	FanMaxSpeed int
	// FanCoolingLayerTime is the layer time below which the fan runs faster
	// than FanMinSpeed.
	FanCoolingLayerTime float64
	// FanAlwaysOn keeps the fan at FanMinSpeed on long layers instead of
	// turning it off.
	FanAlwaysOn bool
	// DisableFanFirstLayers keeps the fan off on the first layers.
	DisableFanFirstLayers int
	// FullFanSpeedLayer ramps fan speeds up linearly until this layer.
	FullFanSpeedLayer int

	OverhangFanEnabled bool
	OverhangFanSpeed   int
	// InternalBridgeFanSpeed of -1 follows OverhangFanSpeed.
	InternalBridgeFanSpeed int
	// SupportInterfaceFanSpeed of -1 leaves support interfaces alone.
	SupportInterfaceFanSpeed int
}

// DefaultExtruderConfig returns the settings used for unset options.
func DefaultExtruderConfig() ExtruderConfig {
	return ExtruderConfig{
		CoolingEnabled:           true,
		MinLayerTime:             4,
		MinPrintSpeed:            10,
		FanMinSpeed:              35,
		FanMaxSpeed:              100,
		FanCoolingLayerTime:      60,
		DisableFanFirstLayers:    1,
		OverhangFanEnabled:       true,
		OverhangFanSpeed:         100,
		InternalBridgeFanSpeed:   -1,
		SupportInterfaceFanSpeed: -1,
	}
}

// Config configures a Regulator.
type Config struct {
	Extruders        []ExtruderConfig
	Logic            SlowdownLogic
	RelativeE        bool
	ToolchangePrefix string
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	if len(c.Extruders) == 0 {
		return perrors.ConfigValidationError("extruder", "", "at least one extruder is required")
	}
	var err error
	check := func(ok bool, idx int, option, reason string) {
		if !ok {
			err = multierr.Append(err, perrors.ConfigValidationError(extruderSection(idx), option, reason))
		}
	}
	for i, e := range c.Extruders {
		check(e.MinLayerTime >= 0, i, "slow_down_layer_time", "must not be negative")
		check(e.MinPrintSpeed >= 0, i, "slow_down_min_speed", "must not be negative")
		check(e.FanCoolingLayerTime >= 0, i, "fan_cooling_layer_time", "must not be negative")
		check(validPercent(e.FanMinSpeed), i, "fan_min_speed", "must be within 0..100")
		check(validPercent(e.FanMaxSpeed), i, "fan_max_speed", "must be within 0..100")
		check(validPercent(e.OverhangFanSpeed), i, "overhang_fan_speed", "must be within 0..100")
		check(e.InternalBridgeFanSpeed == -1 || validPercent(e.InternalBridgeFanSpeed), i, "internal_bridge_fan_speed", "must be -1 or within 0..100")
		check(e.SupportInterfaceFanSpeed == -1 || validPercent(e.SupportInterfaceFanSpeed), i, "support_material_interface_fan_speed", "must be -1 or within 0..100")
		check(e.DisableFanFirstLayers >= 0, i, "close_fan_the_first_x_layers", "must not be negative")
		check(e.FullFanSpeedLayer >= 0, i, "full_fan_speed_layer", "must not be negative")
	}
	return err
}

// fanControlled reports whether any setting may command the part cooling
// fan. An extruder without fan control leaves the fan untouched.
func (e *ExtruderConfig) fanControlled() bool {
	return e.FanMaxSpeed > 0 ||
		e.FanAlwaysOn && e.FanMinSpeed > 0 ||
		e.OverhangFanEnabled && (e.OverhangFanSpeed > 0 || e.InternalBridgeFanSpeed > 0) ||
		e.SupportInterfaceFanSpeed >= 0
}

func validPercent(v int) bool { return v >= 0 && v <= 100 }

func extruderSection(idx int) string {
	if idx == 0 {
		return "extruder"
	}
	return fmt.Sprintf("extruder%d", idx)
}
