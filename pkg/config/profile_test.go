package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolpath-postproc/pkg/cooling"
	perrors "toolpath-postproc/pkg/errors"
	"toolpath-postproc/pkg/flowrate"
	"toolpath-postproc/pkg/gcode"
)

const fullProfile = `
[printer]
relative_e_distances: true
travel_speed: 200
toolchange_prefix: M135 T
layer_change_marker: ;LAYER:
cooling_logic: proportional

[extruder]
filament_diameter: 2.85
slow_down_for_layer_cooling: false
slow_down_layer_time: 8
slow_down_min_speed: 15
dont_slow_down_outer_wall: true
fan_min_speed: 20
fan_max_speed: 90
fan_cooling_layer_time: 30
reduce_fan_stop_start_freq: true
close_fan_the_first_x_layers: 2
full_fan_speed_layer: 5
enable_overhang_bridge_fan: false
overhang_fan_speed: 80
internal_bridge_fan_speed: 70
support_material_interface_fan_speed: 40

[extruder1]
slow_down_layer_time: 12

[flow_equalizer]
max_volumetric_extrusion_rate_slope_positive: 15
max_volumetric_extrusion_rate_slope_negative: 10
max_segment_length: 5
lookback_lines: 64
max_ignored_gap: 2
solid_infill_slope_positive: 30
exempt_roles: ironing, gap_fill
`

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile(fullProfile)
	require.NoError(t, err)

	assert.Equal(t, 200.0, p.Pipeline.TravelSpeed)
	assert.Equal(t, ";LAYER:", p.Pipeline.LayerChangeMarker)

	assert.Equal(t, cooling.SlowdownProportional, p.Cooling.Logic)
	assert.True(t, p.Cooling.RelativeE)
	assert.Equal(t, "M135 T", p.Cooling.ToolchangePrefix)
	require.Len(t, p.Cooling.Extruders, 2)
	assert.Equal(t, cooling.ExtruderConfig{
		CoolingEnabled:           false,
		MinLayerTime:             8,
		MinPrintSpeed:            15,
		ExcludeOuterWall:         true,
		FanMinSpeed:              20,
		FanMaxSpeed:              90,
		FanCoolingLayerTime:      30,
		FanAlwaysOn:              true,
		DisableFanFirstLayers:    2,
		FullFanSpeedLayer:        5,
		OverhangFanEnabled:       false,
		OverhangFanSpeed:         80,
		InternalBridgeFanSpeed:   70,
		SupportInterfaceFanSpeed: 40,
	}, p.Cooling.Extruders[0])
	second := cooling.DefaultExtruderConfig()
	second.MinLayerTime = 12
	assert.Equal(t, second, p.Cooling.Extruders[1])

	assert.True(t, p.Flow.RelativeE)
	assert.Equal(t, "M135 T", p.Flow.ToolchangePrefix)
	assert.Equal(t, []float64{2.85, 1.75}, p.Flow.FilamentDiameters)
	assert.Equal(t, flowrate.Slope{Positive: 15, Negative: 10}, p.Flow.Default)
	assert.Equal(t, map[gcode.Role]flowrate.Slope{
		gcode.RoleSolidInfill: {Positive: 30, Negative: 10},
	}, p.Flow.RoleSlopes)
	assert.Equal(t, []gcode.Role{gcode.RoleIroning, gcode.RoleGapFill}, p.Flow.ExemptRoles)
	assert.Equal(t, 5.0, p.Flow.MaxSegmentLength)
	assert.Equal(t, 64, p.Flow.LookbackLines)
	assert.Equal(t, 2.0, p.Flow.MaxIgnoredGap)
	assert.True(t, p.Flow.Enabled())
}

func TestEmptyProfileUsesDefaults(t *testing.T) {
	p, err := ParseProfile("")
	require.NoError(t, err)

	assert.Equal(t, DefaultProfile(), p)
	assert.False(t, p.Flow.Enabled())
	assert.Equal(t, []float64{1.75}, p.Flow.FilamentDiameters)
}

func TestProfileReportsEveryProblem(t *testing.T) {
	_, err := ParseProfile(`
[printer]
travel_speed: 0
cooling_logic: fastest

[extruder]
fan_max_speed: 150
internal_bridge_fan_speed: -2
filament_diameter: abc
slow_down_min_sped: 10

[flow_equalizer]
max_segment_length: -1
exempt_roles: ironing, lasers

[heater_bed]
max_temp: 120
`)
	require.Error(t, err)
	assert.True(t, perrors.IsConfig(err))
	for _, want := range []string{
		"travel_speed",
		"cooling_logic",
		"fan_max_speed",
		"internal_bridge_fan_speed",
		"filament_diameter",
		"slow_down_min_sped",
		"max_segment_length",
		"lasers",
		"heater_bed",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestExtruderSectionsMustBeContiguous(t *testing.T) {
	_, err := ParseProfile("[extruder]\n[extruder2]\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extruder1")
}

func TestExemptRolesCanBeCleared(t *testing.T) {
	p, err := ParseProfile("[flow_equalizer]\nexempt_roles:\n")
	require.NoError(t, err)
	assert.Empty(t, p.Flow.ExemptRoles)
}

func TestLoadProfile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pla.cfg"),
		[]byte("[extruder]\nslow_down_layer_time: 10\n"), 0o644))
	path := filepath.Join(dir, "printer.cfg")
	require.NoError(t, os.WriteFile(path,
		[]byte("[printer]\ntravel_speed: 250\n[include pla.cfg]\n"), 0o644))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, 250.0, p.Pipeline.TravelSpeed)
	assert.Equal(t, 10.0, p.Cooling.Extruders[0].MinLayerTime)

	_, err = LoadProfile(filepath.Join(dir, "missing.cfg"))
	assert.True(t, perrors.Is(err, perrors.ErrConfigNotFound))
}

func TestLoadProfileLayers(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "printer.cfg")
	require.NoError(t, os.WriteFile(base,
		[]byte("[printer]\ntravel_speed: 250\n[extruder]\nslow_down_layer_time: 10\nslow_down_min_speed: 15\n"), 0o644))
	petg := filepath.Join(dir, "petg.cfg")
	require.NoError(t, os.WriteFile(petg,
		[]byte("[extruder]\nslow_down_layer_time: 20\n[flow_equalizer]\nmax_segment_length: 5\n"), 0o644))

	p, err := LoadProfile(base, petg)
	require.NoError(t, err)
	assert.Equal(t, 250.0, p.Pipeline.TravelSpeed)
	assert.Equal(t, 20.0, p.Cooling.Extruders[0].MinLayerTime)
	assert.Equal(t, 15.0, p.Cooling.Extruders[0].MinPrintSpeed)
	assert.Equal(t, 5.0, p.Flow.MaxSegmentLength)

	p, err = LoadProfile()
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile(), p)

	_, err = LoadProfile(base, filepath.Join(dir, "missing.cfg"))
	assert.True(t, perrors.Is(err, perrors.ErrConfigNotFound))
}
