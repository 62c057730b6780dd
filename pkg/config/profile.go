// Post-processing profile
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"toolpath-postproc/pkg/cooling"
	"toolpath-postproc/pkg/flowrate"
	"toolpath-postproc/pkg/gcode"
	"toolpath-postproc/pkg/pipeline"
)

// Profile holds the validated settings of both filters and the job driver.
type Profile struct {
	Pipeline pipeline.Config
	Cooling  cooling.Config
	Flow     flowrate.Config
}

// DefaultProfile returns the profile of an empty file: one extruder with
// default settings and flow equalization disabled.
func DefaultProfile() *Profile {
	flow := flowrate.DefaultConfig()
	flow.ToolchangePrefix = "T"
	return &Profile{
		Pipeline: pipeline.DefaultConfig(),
		Cooling: cooling.Config{
			Extruders:        []cooling.ExtruderConfig{cooling.DefaultExtruderConfig()},
			ToolchangePrefix: "T",
		},
		Flow: flow,
	}
}

// Validate checks the three filter configurations.
func (p *Profile) Validate() error {
	return multierr.Combine(p.Pipeline.Validate(), p.Cooling.Validate(), p.Flow.Validate())
}

// LoadProfile reads one or more profile files. Options of later files
// override the same options of earlier ones. Without files the defaults are
// returned.
func LoadProfile(paths ...string) (*Profile, error) {
	if len(paths) == 0 {
		return DefaultProfile(), nil
	}
	c, err := Load(paths[0])
	if err != nil {
		return nil, err
	}
	for _, path := range paths[1:] {
		overlay, err := Load(path)
		if err != nil {
			return nil, err
		}
		c.Merge(overlay)
	}
	return c.Profile()
}

// ParseProfile reads a profile from text.
func ParseProfile(text string) (*Profile, error) {
	c, err := LoadString(text)
	if err != nil {
		return nil, err
	}
	return c.Profile()
}

// reader collects every error raised while reading options and falls back to
// the default of an option that failed.
type reader struct {
	err error
}

func (r *reader) fail(err error) {
	r.err = multierr.Append(r.err, err)
}

func (r *reader) getFloat(s *Section, option string, bounds FloatBounds, def float64) float64 {
	v, err := s.GetFloatWithBounds(option, bounds, def)
	if err != nil {
		r.fail(err)
		return def
	}
	return v
}

func (r *reader) getInt(s *Section, option string, lo, hi *int, def int) int {
	v, err := s.GetIntWithBounds(option, lo, hi, def)
	if err != nil {
		r.fail(err)
		return def
	}
	return v
}

func (r *reader) getPercent(s *Section, option string, def int) int {
	lo, hi := 0, 100
	return r.getInt(s, option, &lo, &hi, def)
}

// getOptionalPercent accepts -1 for "not set".
func (r *reader) getOptionalPercent(s *Section, option string, def int) int {
	lo, hi := -1, 100
	return r.getInt(s, option, &lo, &hi, def)
}

func (r *reader) getBool(s *Section, option string, def bool) bool {
	v, err := s.GetBool(option, def)
	if err != nil {
		r.fail(err)
		return def
	}
	return v
}

func (r *reader) getString(s *Section, option, def string) string {
	v, _ := s.Get(option, def)
	return v
}

// section returns the named section, or an empty one so that every option
// takes its default.
func (c *Config) section(name string) *Section {
	if s := c.GetSectionOptional(name); s != nil {
		return s
	}
	return newSection(name, nil)
}

// Profile converts the parsed file into filter configurations. Every invalid
// value, unknown option and failed validation is reported.
func (c *Config) Profile() (*Profile, error) {
	p := DefaultProfile()
	var r reader

	c.readPrinter(&r, p)
	c.readExtruders(&r, p)
	c.readFlow(&r, p)

	for _, err := range c.CheckUnused() {
		r.fail(err)
	}
	if r.err != nil {
		return nil, r.err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Config) readPrinter(r *reader, p *Profile) {
	s := c.section("printer")

	relative := r.getBool(s, "relative_e_distances", false)
	prefix := r.getString(s, "toolchange_prefix", "T")
	p.Cooling.RelativeE, p.Flow.RelativeE = relative, relative
	p.Cooling.ToolchangePrefix, p.Flow.ToolchangePrefix = prefix, prefix

	p.Pipeline.TravelSpeed = r.getFloat(s, "travel_speed", Above(0), p.Pipeline.TravelSpeed)
	p.Pipeline.LayerChangeMarker = r.getString(s, "layer_change_marker", p.Pipeline.LayerChangeMarker)

	logic, err := s.GetChoice("cooling_logic",
		[]string{cooling.SlowdownNonProportional.String(), cooling.SlowdownProportional.String()},
		cooling.SlowdownNonProportional.String())
	if err != nil {
		r.fail(err)
	}
	if logic == cooling.SlowdownProportional.String() {
		p.Cooling.Logic = cooling.SlowdownProportional
	}
}

// extruderIndex maps "extruder" to 0 and "extruderN" to N.
func extruderIndex(name string) (int, bool) {
	if name == "extruder" {
		return 0, true
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, "extruder"))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func (c *Config) readExtruders(r *reader, p *Profile) {
	byIndex := make(map[int]*Section)
	for _, name := range c.GetPrefixSectionNames("extruder") {
		if idx, ok := extruderIndex(name); ok {
			byIndex[idx] = c.section(name)
		}
	}
	if len(byIndex) == 0 {
		byIndex[0] = newSection("extruder", nil)
	}
	indexes := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	count := indexes[len(indexes)-1] + 1
	p.Cooling.Extruders = make([]cooling.ExtruderConfig, count)
	p.Flow.FilamentDiameters = make([]float64, count)
	for idx := 0; idx < count; idx++ {
		s, ok := byIndex[idx]
		if !ok {
			name := "extruder"
			if idx > 0 {
				name = fmt.Sprintf("extruder%d", idx)
			}
			r.fail(ErrMissingSection(name))
			s = newSection(name, nil)
		}
		p.Cooling.Extruders[idx] = r.extruder(s)
		p.Flow.FilamentDiameters[idx] = r.getFloat(s, "filament_diameter", Above(0), 1.75)
	}
}

func (r *reader) extruder(s *Section) cooling.ExtruderConfig {
	def := cooling.DefaultExtruderConfig()
	zero := 0
	return cooling.ExtruderConfig{
		CoolingEnabled:   r.getBool(s, "slow_down_for_layer_cooling", def.CoolingEnabled),
		MinLayerTime:     r.getFloat(s, "slow_down_layer_time", Min(0), def.MinLayerTime),
		MinPrintSpeed:    r.getFloat(s, "slow_down_min_speed", Min(0), def.MinPrintSpeed),
		ExcludeOuterWall: r.getBool(s, "dont_slow_down_outer_wall", def.ExcludeOuterWall),

		FanMinSpeed:           r.getPercent(s, "fan_min_speed", def.FanMinSpeed),
		FanMaxSpeed:           r.getPercent(s, "fan_max_speed", def.FanMaxSpeed),
		FanCoolingLayerTime:   r.getFloat(s, "fan_cooling_layer_time", Min(0), def.FanCoolingLayerTime),
		FanAlwaysOn:           r.getBool(s, "reduce_fan_stop_start_freq", def.FanAlwaysOn),
		DisableFanFirstLayers: r.getInt(s, "close_fan_the_first_x_layers", &zero, nil, def.DisableFanFirstLayers),
		FullFanSpeedLayer:     r.getInt(s, "full_fan_speed_layer", &zero, nil, def.FullFanSpeedLayer),

		OverhangFanEnabled:       r.getBool(s, "enable_overhang_bridge_fan", def.OverhangFanEnabled),
		OverhangFanSpeed:         r.getPercent(s, "overhang_fan_speed", def.OverhangFanSpeed),
		InternalBridgeFanSpeed:   r.getOptionalPercent(s, "internal_bridge_fan_speed", def.InternalBridgeFanSpeed),
		SupportInterfaceFanSpeed: r.getOptionalPercent(s, "support_material_interface_fan_speed", def.SupportInterfaceFanSpeed),
	}
}

func (c *Config) readFlow(r *reader, p *Profile) {
	s := c.section("flow_equalizer")
	f := &p.Flow

	f.Default = r.slope(s, "max_volumetric_extrusion_rate_slope", flowrate.Slope{})
	f.MaxSegmentLength = r.getFloat(s, "max_segment_length", Above(0), f.MaxSegmentLength)
	two := 2
	f.LookbackLines = r.getInt(s, "lookback_lines", &two, nil, f.LookbackLines)
	f.MaxIgnoredGap = r.getFloat(s, "max_ignored_gap", Min(0), f.MaxIgnoredGap)

	for _, role := range gcode.Roles() {
		key := role.String() + "_slope"
		if !s.HasOption(key+"_positive") && !s.HasOption(key+"_negative") {
			continue
		}
		if f.RoleSlopes == nil {
			f.RoleSlopes = make(map[gcode.Role]flowrate.Slope)
		}
		f.RoleSlopes[role] = r.slope(s, key, f.Default)
	}

	if !s.HasOption("exempt_roles") {
		return
	}
	names, _ := s.GetList("exempt_roles", ",")
	f.ExemptRoles = nil
	for _, name := range names {
		role, ok := gcode.ParseRole(name)
		if !ok || role == gcode.RoleNone {
			r.fail(ErrInvalidValue(s.GetName(), "exempt_roles", name, "extrusion role"))
			continue
		}
		f.ExemptRoles = append(f.ExemptRoles, role)
	}
}

// slope reads the "<key>_positive" and "<key>_negative" options.
func (r *reader) slope(s *Section, key string, def flowrate.Slope) flowrate.Slope {
	return flowrate.Slope{
		Positive: r.getFloat(s, key+"_positive", Min(0), def.Positive),
		Negative: r.getFloat(s, key+"_negative", Min(0), def.Negative),
	}
}
