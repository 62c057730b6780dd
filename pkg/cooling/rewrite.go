// Layer re-serialization
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package cooling

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"toolpath-postproc/pkg/gcode"
)

var bookkeepingMarkers = []string{
	gcode.MarkerBlockBegin,
	gcode.MarkerExternalPerimeter,
	gcode.MarkerWipe,
}

// rewrite replays the records of a layer over its text. Text between records
// is copied as is.
func (r *Regulator) rewrite(out *bytes.Buffer, text string, records []*MoveRecord, layer int, layerTime float64) {
	plan := func() fanPlan {
		return planFan(r.cfg.Extruders[r.state.extruder], layer, layerTime)
	}
	r.state.fan.resetRegions()
	r.state.fan.apply(out, plan())

	pos := 0
	for _, rec := range records {
		ln := &rec.Line
		out.WriteString(text[pos:ln.Offset])
		pos = ln.End()

		switch {
		case rec.flags&flagSetTool != 0:
			out.WriteString(ln.Raw())
			if rec.Tool != r.state.extruder {
				r.state.extruder = rec.Tool
				r.state.feed = 0
				r.state.fan.apply(out, plan())
			}
		case rec.flags&flagBlockEnd != 0:
		case rec.flags&flagFan != 0:
			r.state.fan.marker(out, rec.Fan)
		case rec.flags&flagMotion != 0:
			r.rewriteMotion(out, rec)
		default:
			out.WriteString(terminate(stripBookkeeping(ln), ln.EOL))
		}
	}
	out.WriteString(text[pos:])
}

func (r *Regulator) rewriteMotion(out *bytes.Buffer, rec *MoveRecord) {
	ln := &rec.Line
	text := stripBookkeeping(ln)
	w, hasF := ln.Word('F')

	if !rec.Slowdown {
		if hasF {
			r.state.feed = int(math.Floor(w.Value + 0.5))
		}
		out.WriteString(terminate(text, ln.EOL))
		return
	}

	feed := gcode.FeedrateWord(rec.Feedrate)
	switch {
	case hasF && feed == r.state.feed:
		if ln.OnlyFeedrate() && strings.IndexByte(text, ';') < 0 {
			return
		}
		text = gcode.RemoveWord(text, w)
	case hasF:
		text = gcode.ReplaceWord(text, w, strconv.Itoa(feed))
	case feed != r.state.feed:
		at := len(text)
		if i := strings.IndexByte(text, ';'); i >= 0 {
			at = i
		}
		word := " F" + strconv.Itoa(feed)
		if at < len(text) {
			word += " "
		}
		text = strings.TrimRight(text[:at], " \t") + word + text[at:]
	}
	r.state.feed = feed
	out.WriteString(terminate(text, ln.EOL))
}

func stripBookkeeping(ln *gcode.Line) string {
	if ln.Tags == 0 {
		return ln.Text
	}
	return gcode.StripMarkers(ln.Text, ln.Comment, bookkeepingMarkers...)
}

func terminate(text string, eol bool) string {
	if eol {
		return text + "\n"
	}
	return text
}
