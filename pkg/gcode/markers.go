// Reserved marker comments shared by the slicer and the post-processing filters
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

// Marker comments emitted by the toolpath generator. Block and sub-block
// markers are inline on the line they qualify, everything else stands on a
// line of its own.
const (
	MarkerBlockBegin               = ";_EXTRUDE_SET_SPEED"
	MarkerBlockEnd                 = ";_EXTRUDE_END"
	MarkerExternalPerimeter        = ";_EXTERNAL_PERIMETER"
	MarkerWipe                     = ";_WIPE"
	MarkerOverhangFanStart         = ";_OVERHANG_FAN_START"
	MarkerOverhangFanEnd           = ";_OVERHANG_FAN_END"
	MarkerBridgeFanStart           = ";_BRIDGE_FAN_START"
	MarkerBridgeFanEnd             = ";_BRIDGE_FAN_END"
	MarkerInternalBridgeFanStart   = ";_INTERNAL_BRIDGE_FAN_START"
	MarkerInternalBridgeFanEnd     = ";_INTERNAL_BRIDGE_FAN_END"
	MarkerSupportInterfaceFanStart = ";_SUPP_INTERFACE_FAN_START"
	MarkerSupportInterfaceFanEnd   = ";_SUPP_INTERFACE_FAN_END"
	MarkerForceResumeFan           = ";_FORCE_RESUME_FAN_SPEED"
	MarkerExtrusionRole            = ";_EXTRUSION_ROLE:"
)

// Tag is a set of inline markers carried by a single line.
type Tag uint8

const (
	TagBlockBegin Tag = 1 << iota
	TagExternalPerimeter
	TagWipe
)

// Has reports whether all bits of o are set.
func (t Tag) Has(o Tag) bool { return t&o == o }

// FanMarker identifies a fan region boundary line.
type FanMarker uint8

const (
	FanNone FanMarker = iota
	FanOverhangStart
	FanOverhangEnd
	FanInternalBridgeStart
	FanInternalBridgeEnd
	FanSupportInterfaceStart
	FanSupportInterfaceEnd
	FanForceResume
)

// The legacy bridge markers open the same region as the overhang markers.
var fanMarkers = []struct {
	text   string
	marker FanMarker
}{
	{MarkerOverhangFanStart, FanOverhangStart},
	{MarkerOverhangFanEnd, FanOverhangEnd},
	{MarkerBridgeFanStart, FanOverhangStart},
	{MarkerBridgeFanEnd, FanOverhangEnd},
	{MarkerInternalBridgeFanStart, FanInternalBridgeStart},
	{MarkerInternalBridgeFanEnd, FanInternalBridgeEnd},
	{MarkerSupportInterfaceFanStart, FanSupportInterfaceStart},
	{MarkerSupportInterfaceFanEnd, FanSupportInterfaceEnd},
	{MarkerForceResumeFan, FanForceResume},
}

var inlineTags = []struct {
	text string
	tag  Tag
}{
	{MarkerBlockBegin, TagBlockBegin},
	{MarkerExternalPerimeter, TagExternalPerimeter},
	{MarkerWipe, TagWipe},
}
