package flowrate

import (
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "toolpath-postproc/pkg/errors"
	"toolpath-postproc/pkg/gcode"
	"toolpath-postproc/pkg/log"
	"toolpath-postproc/pkg/metrics"
)

// unitDiameter gives a filament cross section of 1 mm², so that rates equal
// feedrate times extrusion per millimetre.
var unitDiameter = math.Sqrt(4 / math.Pi)

func testConfig(slope float64) Config {
	cfg := DefaultConfig()
	cfg.FilamentDiameters = []float64{unitDiameter}
	cfg.Default = Slope{Positive: slope, Negative: slope}
	cfg.MaxSegmentLength = 2
	return cfg
}

func newTestEqualizer(t *testing.T, cfg Config, opts ...Option) *Equalizer {
	t.Helper()
	e, err := New(cfg, append([]Option{WithLogger(log.Discard())}, opts...)...)
	require.NoError(t, err)
	return e
}

func process(t *testing.T, e *Equalizer, layers ...string) string {
	t.Helper()
	var sb strings.Builder
	for i, l := range layers {
		out, err := e.ProcessLayer(l, i == len(layers)-1)
		require.NoError(t, err)
		sb.WriteString(out)
	}
	return sb.String()
}

func TestDisabledIsIdentity(t *testing.T) {
	e := newTestEqualizer(t, DefaultConfig())
	layers := []string{
		";LAYER_CHANGE\n;_EXTRUSION_ROLE:1\nG1 Z0.2 F720\nG1 X10 Y10 E1 F1800 ; wall\nG1 F3000;_EXTRUDE_SET_SPEED\nG1 X20 E2\n;_EXTRUDE_END\n",
		";LAYER_CHANGE\n;_EXTRUSION_ROLE:4\nM106 S128\nG2 X30 Y20 I5 J5 E3\nG92 E0\nG1 X0 Y0 F9000",
	}

	out := process(t, e, layers...)

	want := strings.NewReplacer(";_EXTRUSION_ROLE:1\n", "", ";_EXTRUSION_ROLE:4\n", "").
		Replace(strings.Join(layers, ""))
	assert.Equal(t, want, out)
}

func TestUniformRatesUnchanged(t *testing.T) {
	e := newTestEqualizer(t, testConfig(1))
	in := ";_EXTRUSION_ROLE:1\nG1 X0 Y0 F600\nG1 X10 E1\nG1 X20 E2\nG1 X30 E3\n"

	assert.Equal(t, strings.TrimPrefix(in, ";_EXTRUSION_ROLE:1\n"), process(t, e, in))
}

func TestDecelerationSplitIntoRamp(t *testing.T) {
	e := newTestEqualizer(t, testConfig(4))
	// Rates 10 then 2 mm³/s, the first move lasting one second.
	in := ";_EXTRUSION_ROLE:1\nG1 X0 Y0 F600\nG1 X10 E10\nG1 X20 E12\n"

	out := process(t, e, in)

	assert.Equal(t, "G1 X0 Y0 F600\n"+
		"G1 X8.08 Y0 E8.08 F264\n"+
		"G1 X10 Y0 E10 F192\n"+
		"G1 F600\n"+
		"G1 X20 E12\n", out)

	sim := gcode.NewSimulator("T", false)
	st := sim.Feed(out)
	assert.InDelta(t, 20, st.Length, 1e-3)
	assert.InDelta(t, 12, st.Extrusion, 1e-4)
}

func TestRateBoundaryClamped(t *testing.T) {
	e := newTestEqualizer(t, testConfig(4))
	l, err := e.parse(";_EXTRUSION_ROLE:1\nG1 X0 Y0 F600\nG1 X10 E10\nG1 X20 E12\n")
	require.NoError(t, err)

	first, second := l.lines[2], l.lines[3]
	assert.True(t, first.modified)
	assert.InDelta(t, 2, first.rateEnd, 1e-9)
	assert.InDelta(t, 4.4, first.rateStart, 1e-9)
	assert.LessOrEqual(t, second.rateStart, 6.0)
	assert.InDelta(t, first.rateEnd, second.rateStart, 1e-9)
	assert.False(t, second.modified)
}

func TestExemptRoleKeepsFeedrate(t *testing.T) {
	t.Run("ironing after perimeter", func(t *testing.T) {
		e := newTestEqualizer(t, testConfig(1))
		out := process(t, e, ";_EXTRUSION_ROLE:1\nG1 X0 Y0 F600\nG1 X10 E10\n;_EXTRUSION_ROLE:8\nG1 X20 E11\n")

		assert.NotContains(t, out, "G1 X10 E10\n")
		assert.True(t, strings.HasSuffix(out, "G1 X20 E11\n"))
	})

	t.Run("ironing before perimeter", func(t *testing.T) {
		e := newTestEqualizer(t, testConfig(1))
		out := process(t, e, ";_EXTRUSION_ROLE:8\nG1 X0 Y0 F600\nG1 X10 E1\n;_EXTRUSION_ROLE:1\nG1 X20 E11\n")

		assert.Contains(t, out, "G1 X0 Y0 F600\nG1 X10 E1\n")
		assert.NotContains(t, out, "G1 X20 E11\n")
	})
}

func TestAccelerationSplitConservesExtrusion(t *testing.T) {
	cfg := testConfig(1)
	cfg.MaxSegmentLength = 5
	cfg.RelativeE = true
	e := newTestEqualizer(t, cfg)

	out := process(t, e, ";_EXTRUSION_ROLE:1\nG1 X0 Y0 F600\nG1 X10 E2\nG1 X50 E40\n")

	sim := gcode.NewSimulator("T", true)
	sim.Trace = true
	st := sim.Feed(out)
	assert.InDelta(t, 50, st.Length, 1e-3)
	assert.InDelta(t, 42, st.Extrusion, 1e-4)

	// The ramp starts at the rate of the previous move and ends at a
	// steady feedrate.
	var feeds []float64
	for _, s := range st.Segments {
		if s.Extrusion > 0 {
			feeds = append(feeds, s.Feedrate)
		}
	}
	require.Len(t, feeds, 4)
	assert.InDelta(t, 10, feeds[0], 1e-9)
	assert.InDelta(t, 2.6, feeds[1], 1e-6)
	assert.InDelta(t, 3.8, feeds[2], 1e-6)
	assert.InDelta(t, 4.4, feeds[3], 1e-6)
}

func TestSlopeInvariant(t *testing.T) {
	e := newTestEqualizer(t, testConfig(2))
	var sb strings.Builder
	sb.WriteString(";_EXTRUSION_ROLE:1\nG1 X0 Y0 F1200\n")
	e2 := []float64{1, 0.2, 0.8, 0.1, 0.1, 1.5, 0.3, 0.9}
	x, ext := 0.0, 0.0
	for _, d := range e2 {
		x += 8
		ext += d * 8
		sb.WriteString("G1 X" + gcode.FormatCoord(x) + " E" + gcode.FormatExtrusion(ext) + "\n")
	}
	l, err := e.parse(sb.String())
	require.NoError(t, err)

	var prev *flowLine
	for _, ln := range l.lines {
		if !ln.extruding() {
			continue
		}
		assert.LessOrEqual(t, ln.rateStart, ln.rate+1e-9)
		assert.LessOrEqual(t, ln.rateEnd, ln.rate+1e-9)
		if prev != nil {
			assert.InDelta(t, prev.rateEnd, ln.rateStart, 1e-9)
		}
		prev = ln
	}
}

func TestRunBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		between  string
		modified bool
	}{
		{"short travel", "G1 X12\n", true},
		{"long travel", "G1 X15\n", false},
		{"retraction", "G1 E9 F2400\nG1 E10 F600\n", false},
		{"firmware retraction", "G10\nG11\n", false},
		{"tool change", "T1\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(1)
			cfg.FilamentDiameters = []float64{unitDiameter, unitDiameter}
			e := newTestEqualizer(t, cfg)
			in := ";_EXTRUSION_ROLE:1\nG1 X0 Y0 F600\nG1 X10 E10\n" + tt.between + "G1 X25 E11 F600\n"

			out := process(t, e, in)

			assert.Equal(t, tt.modified, !strings.Contains(out, "G1 X10 E10\n"))
		})
	}
}

func TestOneLayerDelay(t *testing.T) {
	e := newTestEqualizer(t, testConfig(4))

	out, err := e.ProcessLayer(";_EXTRUSION_ROLE:1\nG1 X0 Y0 F600\nG1 X10 E10\n", false)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.True(t, e.Pending())

	// The next layer slows down the end of the previous one.
	out, err = e.ProcessLayer("G1 X20 E12\n", false)
	require.NoError(t, err)
	assert.Equal(t, "G1 X0 Y0 F600\nG1 X8.08 Y0 E8.08 F264\nG1 X10 Y0 E10 F192\nG1 F600\n", out)

	assert.Equal(t, "G1 X20 E12\n", e.Flush())
	assert.False(t, e.Pending())
	assert.Empty(t, e.Flush())
}

func TestFeedrateRestoredAfterModifiedLine(t *testing.T) {
	cfg := testConfig(4)
	cfg.MaxSegmentLength = 20
	e := newTestEqualizer(t, cfg)

	out := process(t, e, ";_EXTRUSION_ROLE:1\nG1 X0 Y0 F600\nG1 X10 E10\nG1 X20 E12\n")

	assert.Equal(t, "G1 X0 Y0 F600\nG1 X10 E10 F192\nG1 F600\nG1 X20 E12\n", out)
}

func TestModifiedLineInsideBlock(t *testing.T) {
	cfg := testConfig(4)
	cfg.MaxSegmentLength = 20
	e := newTestEqualizer(t, cfg)

	out := process(t, e, ";_EXTRUSION_ROLE:1\n"+
		"G1 F600;_EXTRUDE_SET_SPEED\n"+
		"G1 X10 E10 ; wall\n"+
		"G1 X20 E12\n"+
		";_EXTRUDE_END\n")

	assert.Equal(t, "G1 F600;_EXTRUDE_SET_SPEED\n"+
		";_EXTRUDE_END\n"+
		"G1 X10 E10 F192;_EXTRUDE_SET_SPEED ; wall\n"+
		";_EXTRUDE_END\n"+
		"G1 F600;_EXTRUDE_SET_SPEED\n"+
		"G1 X20 E12\n"+
		";_EXTRUDE_END\n", out)
}

func TestUnterminatedBlock(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := newTestEqualizer(t, testConfig(1), WithMetrics(m))

	out, err := e.ProcessLayer("G1 F600;_EXTRUDE_SET_SPEED\nG1 X10 E1\n", false)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrGCodeUnterminatedBlock))
	assert.Empty(t, out)
	assert.True(t, e.Pending())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnterminatedBlocks))

	// The block was closed; the next layer is accepted.
	out, err = e.ProcessLayer("G1 X20 E2\n", true)
	require.NoError(t, err)
	assert.Equal(t, "G1 F600;_EXTRUDE_SET_SPEED\nG1 X10 E1\nG1 X20 E2\n", out)
}

func TestResetClearsState(t *testing.T) {
	e := newTestEqualizer(t, testConfig(1))
	_, err := e.ProcessLayer("G1 X10 Y10 F600\n", false)
	require.NoError(t, err)

	e.Reset(gcode.Position{})
	assert.False(t, e.Pending())
	assert.Equal(t, "G1 X1 E1\n", process(t, e, "G1 X1 E1\n"))
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilamentDiameters = []float64{0}
	cfg.Default = Slope{Positive: -1}
	cfg.MaxSegmentLength = 0
	cfg.LookbackLines = 1

	err := cfg.Validate()
	require.Error(t, err)
	for _, opt := range []string{"filament_diameter", "slope_positive", "max_segment_length", "lookback_lines"} {
		assert.Contains(t, err.Error(), opt)
	}

	_, err = New(cfg)
	assert.Error(t, err)
}

func TestExemptRolesUnlimited(t *testing.T) {
	cfg := testConfig(3)
	cfg.RoleSlopes = map[gcode.Role]Slope{
		gcode.RoleIroning:     {Positive: 1, Negative: 1},
		gcode.RoleSolidInfill: {Positive: 5},
	}
	s := cfg.slopes()

	assert.Equal(t, Slope{}, s[gcode.RoleIroning])
	assert.Equal(t, Slope{}, s[gcode.RoleBridgeInfill])
	assert.Equal(t, Slope{Positive: 5}, s[gcode.RoleSolidInfill])
	assert.Equal(t, Slope{Positive: 3, Negative: 3}, s[gcode.RolePerimeter])
	assert.True(t, cfg.Enabled())
	def := DefaultConfig()
	assert.False(t, def.Enabled())
}
