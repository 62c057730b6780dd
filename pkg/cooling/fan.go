// Part cooling fan policy
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package cooling

import (
	"bytes"
	"math"

	"toolpath-postproc/pkg/gcode"
)

type fanRegion int

const (
	regionOverhang fanRegion = iota
	regionInternalBridge
	regionSupportInterface
	regionCount
)

// fanPlan holds the fan speeds of one extruder on one layer, in percent.
type fanPlan struct {
	main    int
	region  [regionCount]int
	control [regionCount]bool
	// off plans no fan command at all.
	off bool
}

// planFan derives the fan speeds for a layer of the given duration.
func planFan(ec ExtruderConfig, layer int, layerTime float64) fanPlan {
	if !ec.fanControlled() {
		return fanPlan{off: true}
	}
	var p fanPlan
	if ec.FanAlwaysOn {
		p.main = ec.FanMinSpeed
	}
	disable := ec.DisableFanFirstLayers
	if disable <= 0 && ec.FullFanSpeedLayer > 0 {
		// A ramp always starts from a stopped fan on the first layer.
		disable = 1
	}
	if layer < disable {
		return fanPlan{}
	}

	if ec.CoolingEnabled {
		switch {
		case layerTime < ec.MinLayerTime:
			p.main = ec.FanMaxSpeed
		case layerTime < ec.FanCoolingLayerTime:
			t := (layerTime - ec.MinLayerTime) / (ec.FanCoolingLayerTime - ec.MinLayerTime)
			p.main = int(math.Floor(t*float64(ec.FanMinSpeed) + (1-t)*float64(ec.FanMaxSpeed) + 0.5))
		}
	}

	overhang := ec.OverhangFanSpeed
	bridge := ec.InternalBridgeFanSpeed
	if bridge < 0 {
		bridge = overhang
	}
	support := ec.SupportInterfaceFanSpeed

	if layer+1 < ec.FullFanSpeedLayer {
		factor := float64(layer+1-disable) / float64(ec.FullFanSpeedLayer-disable)
		p.main = ramp(p.main, factor)
		overhang = ramp(overhang, factor)
		bridge = ramp(bridge, factor)
		if support >= 0 {
			support = ramp(support, factor)
		}
	}

	p.region[regionOverhang] = overhang
	p.control[regionOverhang] = ec.OverhangFanEnabled && overhang > p.main
	p.region[regionInternalBridge] = bridge
	p.control[regionInternalBridge] = ec.OverhangFanEnabled && bridge > p.main
	p.region[regionSupportInterface] = support
	p.control[regionSupportInterface] = support >= 0
	return p
}

func ramp(speed int, factor float64) int {
	return min(max(int(float64(speed)*factor+0.5), 0), 100)
}

// fanState tracks the fan command last sent to the machine and the regions
// open on the current layer.
type fanState struct {
	emitted int // -1 before the first command
	active  [regionCount]bool
	plan    fanPlan
}

func newFanState() fanState {
	return fanState{emitted: -1}
}

func (f *fanState) target() int {
	for r := regionOverhang; r < regionCount; r++ {
		if f.active[r] && f.plan.control[r] {
			return f.plan.region[r]
		}
	}
	return f.plan.main
}

// apply switches to plan and emits a command when the target changed.
func (f *fanState) apply(out *bytes.Buffer, plan fanPlan) {
	f.plan = plan
	f.update(out, false)
}

func (f *fanState) update(out *bytes.Buffer, force bool) {
	if f.plan.off {
		return
	}
	t := f.target()
	if !force && t == f.emitted {
		return
	}
	out.WriteString(gcode.FanCommand(t))
	f.emitted = t
}

// marker handles a fan region boundary line.
func (f *fanState) marker(out *bytes.Buffer, m gcode.FanMarker) {
	switch m {
	case gcode.FanOverhangStart:
		f.active[regionOverhang] = true
	case gcode.FanOverhangEnd:
		f.active[regionOverhang] = false
	case gcode.FanInternalBridgeStart:
		f.active[regionInternalBridge] = true
	case gcode.FanInternalBridgeEnd:
		f.active[regionInternalBridge] = false
	case gcode.FanSupportInterfaceStart:
		f.active[regionSupportInterface] = true
	case gcode.FanSupportInterfaceEnd:
		f.active[regionSupportInterface] = false
	case gcode.FanForceResume:
		f.update(out, true)
		return
	}
	f.update(out, false)
}

func (f *fanState) resetRegions() {
	f.active = [regionCount]bool{}
}
