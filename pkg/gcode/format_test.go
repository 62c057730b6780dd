package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumbers(t *testing.T) {
	assert.Equal(t, "10.5", FormatCoord(10.5))
	assert.Equal(t, "0", FormatCoord(-0.0001))
	assert.Equal(t, "3", FormatCoord(3))
	assert.Equal(t, "0.12346", FormatExtrusion(0.123456))
	assert.Equal(t, "1800", FormatFeedrate(30))
	assert.Equal(t, 1199, FeedrateWord(19.98))
}

func TestFanCommand(t *testing.T) {
	assert.Equal(t, "M107\n", FanCommand(0))
	assert.Equal(t, "M106 S255\n", FanCommand(100))
	assert.Equal(t, "M106 S255\n", FanCommand(150))
	assert.Equal(t, "M106 S128\n", FanCommand(50))
}

func TestWordEditing(t *testing.T) {
	ln := NewTokenizer("").ParseLine("G1 X1 F1800 ; keep")
	f, _ := ln.Word('F')
	assert.Equal(t, "G1 X1 F1200 ; keep", ReplaceWord(ln.Text, f, "1200"))
	assert.Equal(t, "G1 X1 ; keep", RemoveWord(ln.Text, f))
}

func TestStripMarkers(t *testing.T) {
	ln := NewTokenizer("").ParseLine("G1 F1800 ;_EXTRUDE_SET_SPEED")
	assert.Equal(t, "G1 F1800", StripMarkers(ln.Text, ln.Comment, MarkerBlockBegin))

	ln = NewTokenizer("").ParseLine("G1 X1 ; outer;_EXTERNAL_PERIMETER")
	assert.Equal(t, "G1 X1 ; outer", StripMarkers(ln.Text, ln.Comment, MarkerExternalPerimeter))
	assert.Equal(t, "G1 X1", StripMarkers("G1 X1", -1, MarkerWipe))
}

func TestSimulatorFeed(t *testing.T) {
	sim := NewSimulator("", false)
	sim.Trace = true
	st := sim.Feed("G1 X10 F600\nG1 X20 E1\nG4 P500\nG4 S1\nG1 E0.2 F1200\n")
	assert.InDelta(t, 1+1+0.5+1+0.04, st.Time, 1e-9)
	assert.InDelta(t, 20.0, st.Length, 1e-9)
	assert.InDelta(t, 0.2, st.Extrusion, 1e-9)
	assert.Equal(t, 3, st.Moves)
	assert.InDelta(t, 10.0, st.MaxFeedrate, 1e-9)
	assert.Len(t, st.Segments, 3)
}
