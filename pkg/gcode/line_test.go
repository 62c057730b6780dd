package gcode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineKinds(t *testing.T) {
	tok := NewTokenizer("")
	tests := []struct {
		text string
		kind Kind
		code int
	}{
		{"G1 X10 Y20 E0.5 F1800", KindMove, 1},
		{"G0 X1", KindMove, 0},
		{"G01 X1", KindMove, 1},
		{"G2 X10 Y10 I5 J0", KindArc, 2},
		{"G3 X10 Y10 I5 J0", KindArc, 3},
		{"G92 E0", KindSetPosition, 92},
		{"G4 S1.5", KindDwell, 4},
		{"G10", KindRetract, 10},
		{"G11", KindUnretract, 11},
		{"G22", KindRetract, 22},
		{"T1", KindToolChange, 1},
		{"T12 ; tool", KindToolChange, 12},
		{"TIMELAPSE_TAKE_FRAME", KindOther, 0},
		{"M104 S210", KindOther, 0},
		{"G28", KindOther, 0},
		{"G92.1", KindOther, 0},
		{";_EXTRUDE_END", KindBlockEnd, 0},
		{";_EXTRUSION_ROLE:8", KindRole, 0},
		{";_OVERHANG_FAN_START", KindFanMarker, 0},
		{"; plain comment", KindOther, 0},
		{"", KindOther, 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			ln := tok.ParseLine(tt.text)
			assert.Equal(t, tt.kind, ln.Kind)
			assert.Equal(t, tt.code, ln.Code)
		})
	}
}

func TestParseLineWords(t *testing.T) {
	tok := NewTokenizer("T")
	ln := tok.ParseLine("G1 X10.5 y-2 E.25 F1800 ; comment X99")
	require.Equal(t, KindMove, ln.Kind)
	require.Len(t, ln.Words, 4)

	assert.Equal(t, 10.5, ln.Value('X', 0))
	assert.Equal(t, -2.0, ln.Value('Y', 0))
	assert.Equal(t, 0.25, ln.Value('E', 0))
	assert.Equal(t, 1800.0, ln.Value('F', 0))
	assert.False(t, ln.Has('Z'))
	assert.Equal(t, "; comment X99", ln.CommentText())

	f, ok := ln.Word('F')
	require.True(t, ok)
	assert.Equal(t, "F1800", ln.Text[f.Start:f.End])
}

func TestParseLineMalformedNumberIsZero(t *testing.T) {
	ln := NewTokenizer("").ParseLine("G1 Xabc Y F")
	require.Equal(t, KindMove, ln.Kind)
	assert.True(t, ln.Has('X'))
	assert.Equal(t, 0.0, ln.Value('X', 1))
	assert.Equal(t, 0.0, ln.Value('F', 1))
}

func TestParseLineTags(t *testing.T) {
	tok := NewTokenizer("")

	ln := tok.ParseLine("G1 F1800;_EXTRUDE_SET_SPEED;_EXTERNAL_PERIMETER")
	assert.True(t, ln.Tags.Has(TagBlockBegin))
	assert.True(t, ln.Tags.Has(TagExternalPerimeter))
	assert.False(t, ln.Tags.Has(TagWipe))
	assert.True(t, ln.OnlyFeedrate())

	ln = tok.ParseLine("G1 X1 Y1 F2400 ;_WIPE")
	assert.True(t, ln.Tags.Has(TagWipe))
	assert.False(t, ln.OnlyFeedrate())
}

func TestParseLineFanMarkers(t *testing.T) {
	tok := NewTokenizer("")
	tests := map[string]FanMarker{
		";_OVERHANG_FAN_START":        FanOverhangStart,
		";_OVERHANG_FAN_END":          FanOverhangEnd,
		";_BRIDGE_FAN_START":          FanOverhangStart,
		";_BRIDGE_FAN_END":            FanOverhangEnd,
		";_INTERNAL_BRIDGE_FAN_START": FanInternalBridgeStart,
		";_INTERNAL_BRIDGE_FAN_END":   FanInternalBridgeEnd,
		";_SUPP_INTERFACE_FAN_START":  FanSupportInterfaceStart,
		";_SUPP_INTERFACE_FAN_END":    FanSupportInterfaceEnd,
		";_FORCE_RESUME_FAN_SPEED":    FanForceResume,
	}
	for text, want := range tests {
		ln := tok.ParseLine(text)
		assert.Equal(t, KindFanMarker, ln.Kind, text)
		assert.Equal(t, want, ln.Fan, text)
	}
}

func TestParseLineRole(t *testing.T) {
	tok := NewTokenizer("")
	assert.Equal(t, RoleIroning, tok.ParseLine(";_EXTRUSION_ROLE:8").Role)
	assert.Equal(t, RoleNone, tok.ParseLine(";_EXTRUSION_ROLE:999").Role)
	assert.Equal(t, RoleNone, tok.ParseLine(";_EXTRUSION_ROLE:x").Role)
}

func TestToolchangePrefix(t *testing.T) {
	tok := NewTokenizer("M135 T")
	ln := tok.ParseLine("M135 T2")
	assert.Equal(t, KindToolChange, ln.Kind)
	assert.Equal(t, 2, ln.Code)
	assert.Equal(t, KindOther, tok.ParseLine("T2").Kind)
}

func TestSplitOffsets(t *testing.T) {
	buf := "G1 X1\n;_EXTRUDE_END\nM107"
	lines := NewTokenizer("").Split(buf)
	require.Len(t, lines, 3)

	var joined string
	for _, ln := range lines {
		assert.Equal(t, ln.Raw(), buf[ln.Offset:ln.End()])
		joined += ln.Raw()
	}
	assert.Equal(t, buf, joined)
	assert.False(t, lines[2].EOL)
	assert.Empty(t, NewTokenizer("").Split(""))
}

func TestTrackerRelativeExtrusion(t *testing.T) {
	tok := NewTokenizer("")
	tr := Tracker{RelativeE: true}
	for _, text := range []string{"G1 X3 Y4 E1 F600", "G1 X3 Y8 E0.5"} {
		ln := tok.ParseLine(text)
		tr.Apply(&ln)
	}
	assert.InDelta(t, 1.5, tr.Pos[E], 1e-12)
	assert.InDelta(t, 10.0, tr.Pos[F], 1e-12)

	ln := tok.ParseLine("G92 E0")
	mv := tr.Apply(&ln)
	assert.Equal(t, 0.0, tr.Pos[E])
	assert.Equal(t, 0.0, mv.Length)
}

func TestTrackerMoveLength(t *testing.T) {
	tok := NewTokenizer("")
	tr := Tracker{}
	ln := tok.ParseLine("G1 X3 Y4 F600")
	mv := tr.Apply(&ln)
	assert.InDelta(t, 5.0, mv.Length, 1e-12)
	assert.InDelta(t, 0.5, mv.Duration(), 1e-12)
	assert.True(t, mv.Provided[X])
	assert.False(t, mv.Provided[Z])

	ln = tok.ParseLine("G1 E-0.8 F2400")
	mv = tr.Apply(&ln)
	assert.Equal(t, 0.0, mv.Length)
	assert.InDelta(t, 0.8, mv.Travel(), 1e-12)
}

func TestArcLength(t *testing.T) {
	start := Position{10, 0, 0}
	quarter := Position{0, 10, 0}
	assert.InDelta(t, math.Pi*5, ArcLength(start, quarter, -10, 0, false), 1e-9)
	assert.InDelta(t, math.Pi*15, ArcLength(start, quarter, -10, 0, true), 1e-9)
	assert.InDelta(t, math.Pi*20, ArcLength(start, start, -10, 0, false), 1e-9)
	assert.InDelta(t, math.Pi*20, ArcLength(start, start, -10, 0, true), 1e-9)

	helix := Position{10, 0, 3}
	assert.InDelta(t, math.Hypot(math.Pi*20, 3), ArcLength(start, helix, -10, 0, false), 1e-9)
}
