// G-code line tokenizer
//
// Turns layer text into a typed stream of lines: motion commands with their
// parameter words, tool changes, dwells and the reserved marker comments.
// Only the shapes the post-processing filters care about are classified,
// everything else is KindOther and travels through untouched.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import (
	"strconv"
	"strings"
)

// Kind classifies one line of G-code.
type Kind uint8

const (
	KindOther Kind = iota
	KindMove
	KindArc
	KindSetPosition
	KindDwell
	KindToolChange
	KindRetract
	KindUnretract
	KindBlockEnd
	KindFanMarker
	KindRole
)

var kindNames = [...]string{
	KindOther:       "other",
	KindMove:        "move",
	KindArc:         "arc",
	KindSetPosition: "set_position",
	KindDwell:       "dwell",
	KindToolChange:  "tool_change",
	KindRetract:     "retract",
	KindUnretract:   "unretract",
	KindBlockEnd:    "block_end",
	KindFanMarker:   "fan_marker",
	KindRole:        "role",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Word is one parameter of a command, e.g. "X10.5". Start and End delimit
// the whole token (letter included) inside Line.Text.
type Word struct {
	Letter byte
	Value  float64
	Start  int
	End    int
}

// Line is one parsed instruction.
type Line struct {
	Text    string // without the line terminator
	Offset  int    // byte offset of Text in the parsed buffer
	EOL     bool   // a '\n' followed Text in the buffer
	Kind    Kind
	Code    int // G number for G commands, extruder index for tool changes
	Tags    Tag
	Fan     FanMarker
	Role    Role
	Words   []Word
	Comment int // index of the first ';' in Text, -1 without comment
}

// End returns the offset just past the line including its terminator.
func (l *Line) End() int {
	if l.EOL {
		return l.Offset + len(l.Text) + 1
	}
	return l.Offset + len(l.Text)
}

// Raw returns the line as it appeared in the buffer, terminator included.
func (l *Line) Raw() string {
	if l.EOL {
		return l.Text + "\n"
	}
	return l.Text
}

// Word returns the parameter word for letter.
func (l *Line) Word(letter byte) (Word, bool) {
	for _, w := range l.Words {
		if w.Letter == letter {
			return w, true
		}
	}
	return Word{}, false
}

// Has reports whether the line carries a word for letter.
func (l *Line) Has(letter byte) bool {
	_, ok := l.Word(letter)
	return ok
}

// Value returns the parameter value for letter, or def when absent.
func (l *Line) Value(letter byte, def float64) float64 {
	if w, ok := l.Word(letter); ok {
		return w.Value
	}
	return def
}

// IsMotion reports whether the line moves an axis.
func (l *Line) IsMotion() bool {
	return l.Kind == KindMove || l.Kind == KindArc
}

// Clockwise reports whether an arc line is a G2.
func (l *Line) Clockwise() bool {
	return l.Kind == KindArc && l.Code == 2
}

// CommentText returns the comment including its leading ';'.
func (l *Line) CommentText() string {
	if l.Comment < 0 {
		return ""
	}
	return l.Text[l.Comment:]
}

// OnlyFeedrate reports whether F is the only parameter of a motion line.
func (l *Line) OnlyFeedrate() bool {
	return l.IsMotion() && len(l.Words) == 1 && l.Words[0].Letter == 'F'
}

// Tokenizer classifies G-code lines.
type Tokenizer struct {
	// ToolchangePrefix precedes the extruder index of a tool change.
	ToolchangePrefix string
}

// NewTokenizer creates a tokenizer. An empty prefix selects "T".
func NewTokenizer(toolchangePrefix string) *Tokenizer {
	if toolchangePrefix == "" {
		toolchangePrefix = "T"
	}
	return &Tokenizer{ToolchangePrefix: toolchangePrefix}
}

// Split parses every line of buf. A trailing line without terminator is
// returned with EOL unset; an empty buffer yields no lines.
func (t *Tokenizer) Split(buf string) []Line {
	lines := make([]Line, 0, strings.Count(buf, "\n")+1)
	for pos := 0; pos < len(buf); {
		end := strings.IndexByte(buf[pos:], '\n')
		var ln Line
		if end < 0 {
			ln = t.ParseLine(buf[pos:])
			ln.Offset = pos
			lines = append(lines, ln)
			break
		}
		ln = t.ParseLine(buf[pos : pos+end])
		ln.Offset = pos
		ln.EOL = true
		lines = append(lines, ln)
		pos += end + 1
	}
	return lines
}

// ParseLine classifies a single line given without its terminator.
func (t *Tokenizer) ParseLine(text string) Line {
	ln := Line{Text: text, Comment: strings.IndexByte(text, ';')}
	body := strings.TrimRight(text, "\r")
	if ln.Comment >= 0 {
		body = text[:ln.Comment]
		t.parseMarkers(&ln, strings.TrimRight(text[ln.Comment:], " \t\r"))
		if ln.Kind != KindOther {
			return ln
		}
	}

	start := skipSpace(body, 0)
	if start == len(body) {
		return ln
	}
	if idx, ok := t.toolIndex(body[start:]); ok {
		ln.Kind = KindToolChange
		ln.Code = idx
		return ln
	}

	cmdEnd := start
	for cmdEnd < len(body) && !isSpace(body[cmdEnd]) {
		cmdEnd++
	}
	cmd := body[start:cmdEnd]
	if len(cmd) < 2 || (cmd[0] != 'G' && cmd[0] != 'g') {
		return ln
	}
	code, err := strconv.Atoi(cmd[1:])
	if err != nil {
		return ln
	}
	switch code {
	case 0, 1:
		ln.Kind = KindMove
	case 2, 3:
		ln.Kind = KindArc
	case 4:
		ln.Kind = KindDwell
	case 10, 22:
		ln.Kind = KindRetract
	case 11, 23:
		ln.Kind = KindUnretract
	case 92:
		ln.Kind = KindSetPosition
	default:
		return ln
	}
	ln.Code = code
	ln.Words = parseWords(body, cmdEnd)
	return ln
}

func (t *Tokenizer) parseMarkers(ln *Line, comment string) {
	if ln.Comment == skipSpace(ln.Text, 0) {
		switch {
		case strings.HasPrefix(comment, MarkerBlockEnd):
			ln.Kind = KindBlockEnd
			return
		case strings.HasPrefix(comment, MarkerExtrusionRole):
			ln.Kind = KindRole
			ln.Role = RoleNone
			if v, err := strconv.Atoi(strings.TrimSpace(comment[len(MarkerExtrusionRole):])); err == nil && Role(v).Valid() {
				ln.Role = Role(v)
			}
			return
		}
		for _, fm := range fanMarkers {
			if strings.HasPrefix(comment, fm.text) {
				ln.Kind = KindFanMarker
				ln.Fan = fm.marker
				return
			}
		}
	}
	for _, it := range inlineTags {
		if strings.Contains(comment, it.text) {
			ln.Tags |= it.tag
		}
	}
}

// toolIndex recognizes "<prefix><digits>".
func (t *Tokenizer) toolIndex(body string) (int, bool) {
	if !strings.HasPrefix(body, t.ToolchangePrefix) {
		return 0, false
	}
	rest := body[len(t.ToolchangePrefix):]
	n := 0
	for n < len(rest) && rest[n] >= '0' && rest[n] <= '9' {
		n++
	}
	if n == 0 || (n < len(rest) && !isSpace(rest[n])) {
		return 0, false
	}
	idx, err := strconv.Atoi(rest[:n])
	if err != nil {
		return 0, false
	}
	return idx, true
}

// parseWords collects letter/number pairs after the command. A malformed
// number reads as zero.
func parseWords(body string, pos int) []Word {
	var words []Word
	for {
		pos = skipSpace(body, pos)
		if pos >= len(body) {
			return words
		}
		start := pos
		letter := body[pos]
		if letter >= 'a' && letter <= 'z' {
			letter -= 'a' - 'A'
		}
		pos++
		numEnd := pos
		for numEnd < len(body) && isNumberByte(body[numEnd]) {
			numEnd++
		}
		value, err := strconv.ParseFloat(body[pos:numEnd], 64)
		if err != nil {
			value = 0
		}
		for numEnd < len(body) && !isSpace(body[numEnd]) {
			numEnd++
		}
		pos = numEnd
		if letter < 'A' || letter > 'Z' {
			continue
		}
		words = append(words, Word{Letter: letter, Value: value, Start: start, End: pos})
	}
}

func skipSpace(s string, pos int) int {
	for pos < len(s) && isSpace(s[pos]) {
		pos++
	}
	return pos
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r'
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+'
}
