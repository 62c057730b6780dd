// Extrusion roles carried by ;_EXTRUSION_ROLE markers
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package gcode

import "strings"

// Role is the semantic category of an extrusion path. The numeric values are
// the ones written after MarkerExtrusionRole.
type Role int

const (
	RoleNone Role = iota
	RolePerimeter
	RoleExternalPerimeter
	RoleOverhangPerimeter
	RoleInternalInfill
	RoleSolidInfill
	RoleTopSolidInfill
	RoleBottomSurface
	RoleIroning
	RoleBridgeInfill
	RoleInternalBridgeInfill
	RoleGapFill
	RoleSkirt
	RoleBrim
	RoleSupportMaterial
	RoleSupportMaterialInterface
	RoleSupportTransition
	RoleWipeTower
	RoleCustom
	RoleMixed
	RoleCount
)

var roleNames = [RoleCount]string{
	"none",
	"perimeter",
	"external_perimeter",
	"overhang_perimeter",
	"internal_infill",
	"solid_infill",
	"top_solid_infill",
	"bottom_surface",
	"ironing",
	"bridge_infill",
	"internal_bridge_infill",
	"gap_fill",
	"skirt",
	"brim",
	"support_material",
	"support_material_interface",
	"support_transition",
	"wipe_tower",
	"custom",
	"mixed",
}

// String returns the configuration key of the role.
func (r Role) String() string {
	if r < 0 || r >= RoleCount {
		return "unknown"
	}
	return roleNames[r]
}

// Valid reports whether r names a real role.
func (r Role) Valid() bool {
	return r >= 0 && r < RoleCount
}

// ParseRole looks up a role by its configuration key.
func ParseRole(name string) (Role, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range roleNames {
		if n == name {
			return Role(i), true
		}
	}
	return RoleNone, false
}

// Roles returns every role except RoleNone in marker order.
func Roles() []Role {
	out := make([]Role, 0, RoleCount-1)
	for r := RolePerimeter; r < RoleCount; r++ {
		out = append(out, r)
	}
	return out
}
