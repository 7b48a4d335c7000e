// Package hierarchy keeps an in-memory forest of master and slave input
// devices in sync with the live X input hierarchy and queues structural
// changes until they are applied as one batch.
package hierarchy

import "fmt"

// Role is the use of a device within the input hierarchy
type Role int

const (
	RoleMasterPointer Role = iota
	RoleMasterKeyboard
	RoleSlavePointer
	RoleSlaveKeyboard
	RoleFloatingSlave
	// RoleFloating is only carried by the synthetic Unassigned root
	RoleFloating
)

// Reserved ids. The core pointer and keyboard always exist and cannot be
// removed. UnassignedID never collides with a real device id because the
// server hands out non-negative ids only.
const (
	UnassignedID   = -1
	CorePointerID  = 2
	CoreKeyboardID = 3
)

// UnassignedName is the display name of the synthetic floating root
const UnassignedName = "Unassigned"

func (r Role) String() string {
	switch r {
	case RoleMasterPointer:
		return "master pointer"
	case RoleMasterKeyboard:
		return "master keyboard"
	case RoleSlavePointer:
		return "slave pointer"
	case RoleSlaveKeyboard:
		return "slave keyboard"
	case RoleFloatingSlave:
		return "floating slave"
	case RoleFloating:
		return "floating"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// IsMaster reports whether the role is a master pointer or keyboard
func (r Role) IsMaster() bool {
	return r == RoleMasterPointer || r == RoleMasterKeyboard
}

// IsSlave reports whether the role is an attached or floating slave
func (r Role) IsSlave() bool {
	return r == RoleSlavePointer || r == RoleSlaveKeyboard || r == RoleFloatingSlave
}

// IconKind selects the glyph a renderer shows next to a node
type IconKind int

const (
	IconMouse IconKind = iota
	IconKeyboard
	IconFloating
)

func (k IconKind) String() string {
	switch k {
	case IconMouse:
		return "mouse"
	case IconKeyboard:
		return "keyboard"
	case IconFloating:
		return "floating"
	default:
		return fmt.Sprintf("icon(%d)", int(k))
	}
}

// iconFor derives the icon from a device role
func iconFor(r Role) IconKind {
	switch r {
	case RoleMasterPointer, RoleSlavePointer:
		return IconMouse
	case RoleMasterKeyboard, RoleSlaveKeyboard:
		return IconKeyboard
	default:
		return IconFloating
	}
}

// Device is one entry of a flat snapshot of the live hierarchy.
// AttachedTo holds the master id for attached slaves and the paired master
// for masters. It is ignored for floating slaves.
type Device struct {
	ID         int
	Name       string
	Role       Role
	AttachedTo int
}

func (d Device) String() string {
	return fmt.Sprintf("%s (id=%d, %s)", d.Name, d.ID, d.Role)
}
