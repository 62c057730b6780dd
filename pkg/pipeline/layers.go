// Layer splitting of whole job files
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pipeline

import (
	"bufio"
	"io"
	"strings"
)

// Prologue is the layer index of the text before the first layer change.
const Prologue = -1

// LayerReader splits G-code into layers. Each layer starts with its
// layer-change marker line and ends before the next one.
type LayerReader struct {
	r      *bufio.Reader
	marker string
	ahead  string
	layer  int
	done   bool
}

// NewLayerReader reads layers from r, separated by lines starting with
// marker.
func NewLayerReader(r io.Reader, marker string) *LayerReader {
	return &LayerReader{
		r:      bufio.NewReaderSize(r, 64*1024),
		marker: marker,
		layer:  Prologue,
	}
}

func (lr *LayerReader) isMarker(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), lr.marker)
}

// Next returns the text and index of the next layer. The text before the
// first marker is returned with index Prologue unless it is empty. At the
// end of input Next returns io.EOF.
func (lr *LayerReader) Next() (string, int, error) {
	if lr.done {
		return "", 0, io.EOF
	}
	var sb strings.Builder
	sb.WriteString(lr.ahead)
	lr.ahead = ""
	layer := lr.layer
	for {
		line, err := lr.r.ReadString('\n')
		if line != "" {
			if lr.isMarker(line) {
				if sb.Len() > 0 {
					lr.ahead = line
					lr.layer = layer + 1
					return sb.String(), layer, nil
				}
				if layer == Prologue {
					layer = 0
				}
			}
			sb.WriteString(line)
		}
		if err == io.EOF {
			lr.done = true
			if sb.Len() == 0 {
				return "", 0, io.EOF
			}
			return sb.String(), layer, nil
		}
		if err != nil {
			return "", 0, err
		}
	}
}

// SplitLayers splits text into layers. The prologue, if any, comes first.
func SplitLayers(text, marker string) []string {
	lr := NewLayerReader(strings.NewReader(text), marker)
	var layers []string
	for {
		l, _, err := lr.Next()
		if err != nil {
			return layers
		}
		layers = append(layers, l)
	}
}
