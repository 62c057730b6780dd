// Number formatting and generated commands
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import (
	"math"
	"strconv"
	"strings"
)

// FormatCoord formats an X, Y or Z coordinate with three decimals, trailing
// zeros removed.
func FormatCoord(v float64) string {
	return trimNumber(strconv.FormatFloat(v, 'f', 3, 64))
}

// FormatExtrusion formats an E value with five decimals.
func FormatExtrusion(v float64) string {
	return trimNumber(strconv.FormatFloat(v, 'f', 5, 64))
}

// FormatFeedrate formats a feedrate given in mm/s as mm/min.
func FormatFeedrate(perSecond float64) string {
	return trimNumber(strconv.FormatFloat(perSecond*60, 'f', 3, 64))
}

// FeedrateWord returns the integer mm/min feed word value for a feedrate in
// mm/s.
func FeedrateWord(perSecond float64) int {
	return int(math.Floor(perSecond*60 + 0.5))
}

func trimNumber(s string) string {
	if strings.IndexByte(s, '.') >= 0 {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

// FanCommand returns the command setting the part cooling fan to percent
// (0..100). Zero turns the fan off.
func FanCommand(percent int) string {
	if percent <= 0 {
		return "M107\n"
	}
	if percent > 100 {
		percent = 100
	}
	return "M106 S" + strconv.Itoa(int(255*float64(percent)/100+0.5)) + "\n"
}

// ReplaceWord substitutes the value of w inside text.
func ReplaceWord(text string, w Word, value string) string {
	return text[:w.Start+1] + value + text[w.End:]
}

// RemoveWord deletes w and the whitespace before it.
func RemoveWord(text string, w Word) string {
	start := w.Start
	for start > 0 && (text[start-1] == ' ' || text[start-1] == '\t') {
		start--
	}
	return text[:start] + text[w.End:]
}

// StripMarkers removes the given inline markers from the comment of text.
// A comment left empty is removed together with the whitespace before it.
func StripMarkers(text string, comment int, markers ...string) string {
	if comment < 0 {
		return text
	}
	c := text[comment:]
	for _, m := range markers {
		c = strings.ReplaceAll(c, m, "")
	}
	if strings.TrimSpace(c) == "" || strings.TrimSpace(c) == ";" {
		return strings.TrimRight(text[:comment], " \t")
	}
	return text[:comment] + c
}
