// Re-serialization of equalized lines
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package flowrate

import (
	"bytes"
	"math"
	"strings"

	"toolpath-postproc/pkg/gcode"
)

// segment is one emitted piece of a modified line.
type segment struct {
	from gcode.Position
	to   gcode.Position
	feed float64 // mm/s
}

type emitStats struct {
	modified int
	split    int
	segments int
}

// split divides a modified linear move into segments approximating its rate
// ramp. A part of the move that is not rate limited becomes one steady
// segment.
func (e *Equalizer) split(ln *flowLine) []segment {
	l := ln.length
	n := int(math.Ceil(l / e.cfg.MaxSegmentLength))
	feedStart := ln.rateStart * ln.feedrate() / ln.rate
	feedEnd := ln.rateEnd * ln.feedrate() / ln.rate
	if n <= 1 || math.Abs(ln.rateEnd-ln.rateStart) < 1e-9 {
		return []segment{{from: ln.start, to: ln.end, feed: ln.feedrate() * ln.correction()}}
	}

	accelerating := ln.rateStart < ln.rateEnd
	slope := ln.slopeNeg
	if accelerating {
		slope = ln.slopePos
	}
	feedAvg := 0.5 * (feedStart + feedEnd)
	lengthRamp := l
	if slope > 0 {
		tRamp := math.Abs(ln.rateEnd-ln.rateStart) / slope
		if tRamp < l/feedAvg {
			lr := tRamp * feedAvg
			if l-lr >= 0.5*e.cfg.MaxSegmentLength {
				lengthRamp = lr
				n = max(1, int(math.Ceil(lr/e.cfg.MaxSegmentLength)))
			}
		}
	}

	var out []segment
	rampFrom, rampTo := ln.start, ln.end
	if lengthRamp < l {
		if accelerating {
			rampTo = ln.start.Lerp(ln.end, lengthRamp/l)
		} else {
			rampFrom = ln.start.Lerp(ln.end, (l-lengthRamp)/l)
			out = append(out, segment{from: ln.start, to: rampFrom, feed: feedStart})
		}
	}
	prev := rampFrom
	for k := 1; k <= n; k++ {
		to := rampTo
		if k < n {
			to = rampFrom.Lerp(rampTo, float64(k)/float64(n))
		}
		feed := feedStart + (feedEnd-feedStart)*(float64(k)-0.5)/float64(n)
		out = append(out, segment{from: prev, to: to, feed: feed})
		prev = to
	}
	if lengthRamp < l && accelerating {
		out = append(out, segment{from: rampTo, to: ln.end, feed: feedEnd})
	}
	return out
}

func (e *Equalizer) formatSegment(ln *flowLine, s segment) string {
	var sb strings.Builder
	sb.WriteString("G1 X")
	sb.WriteString(gcode.FormatCoord(s.to[gcode.X]))
	sb.WriteString(" Y")
	sb.WriteString(gcode.FormatCoord(s.to[gcode.Y]))
	if ln.provided[gcode.Z] {
		sb.WriteString(" Z")
		sb.WriteString(gcode.FormatCoord(s.to[gcode.Z]))
	}
	sb.WriteString(" E")
	if e.cfg.RelativeE {
		sb.WriteString(gcode.FormatExtrusion(s.to[gcode.E] - s.from[gcode.E]))
	} else {
		sb.WriteString(gcode.FormatExtrusion(s.to[gcode.E]))
	}
	sb.WriteString(" F")
	sb.WriteString(gcode.FormatFeedrate(s.feed))
	return sb.String()
}

// withFeedrate returns the command part of ln with its F word set to feed.
func withFeedrate(ln *flowLine, feed float64) string {
	body := ln.Text
	if ln.Comment >= 0 {
		body = ln.Text[:ln.Comment]
	}
	if w, ok := ln.Word('F'); ok {
		body = gcode.ReplaceWord(body, w, gcode.FormatFeedrate(feed))
	} else {
		body = strings.TrimRight(body, " \t\r") + " F" + gcode.FormatFeedrate(feed)
	}
	return strings.TrimRight(body, " \t\r")
}

func lineComment(ln *flowLine) string {
	c := strings.ReplaceAll(ln.CommentText(), gcode.MarkerBlockBegin, "")
	if t := strings.TrimSpace(c); t == "" || t == ";" {
		return ""
	}
	return c
}

// emitModified writes the replacement of a modified line and returns the
// number of lines it became.
func (e *Equalizer) emitModified(out *bytes.Buffer, ln *flowLine) int {
	var bodies []string
	if ln.Kind == gcode.KindArc {
		bodies = []string{withFeedrate(ln, ln.feedrate()*ln.correction())}
	} else {
		segs := e.split(ln)
		if len(segs) == 1 {
			bodies = []string{withFeedrate(ln, segs[0].feed)}
		} else {
			for _, s := range segs {
				bodies = append(bodies, e.formatSegment(ln, s))
			}
		}
	}

	comment := lineComment(ln)
	blocked := ln.blocked()
	if ln.inBlock {
		out.WriteString(gcode.MarkerBlockEnd + "\n")
	}
	for i, body := range bodies {
		out.WriteString(body)
		if blocked {
			out.WriteString(gcode.MarkerBlockBegin)
		}
		if i == 0 && comment != "" {
			out.WriteString(" " + comment)
		}
		out.WriteByte('\n')
		if blocked {
			out.WriteString(gcode.MarkerBlockEnd + "\n")
		}
	}
	if blocked {
		out.WriteString("G1 F" + gcode.FormatFeedrate(ln.feedrate()) + gcode.MarkerBlockBegin + "\n")
	}
	return len(bodies)
}

// needsRestore reports whether the motion line following lines[i] relies on
// the nominal feedrate of lines[i].
func needsRestore(lines []*flowLine, i int, next *layerBuf) bool {
	rest := lines[i+1:]
	if next != nil {
		rest = append(rest[:len(rest):len(rest)], next.lines...)
	}
	for _, ln := range rest {
		if ln.IsMotion() {
			return !ln.modified && !ln.Has('F')
		}
	}
	return false
}

// emit writes a buffered layer. next is the layer that follows, if parsed.
func (e *Equalizer) emit(out *bytes.Buffer, l *layerBuf, next *layerBuf) emitStats {
	var st emitStats
	for i, ln := range l.lines {
		switch {
		case ln.kind == kindRole:
		case !ln.modified:
			out.WriteString(ln.Raw())
		default:
			n := e.emitModified(out, ln)
			st.modified++
			st.segments += n
			if n > 1 {
				st.split++
			}
			if !ln.blocked() && needsRestore(l.lines, i, next) {
				out.WriteString("G1 F" + gcode.FormatFeedrate(ln.feedrate()) + "\n")
			}
		}
	}
	return st
}
