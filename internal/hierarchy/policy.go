package hierarchy

import (
	"fmt"
	"strings"
)

// Mode decides whether edits are queued or sent to the server right away
type Mode int

const (
	// ModeStaged queues every edit until ApplyAll
	ModeStaged Mode = iota
	// ModeImmediate applies each edit as soon as it is submitted
	ModeImmediate
)

func (m Mode) String() string {
	if m == ModeImmediate {
		return "immediate"
	}
	return "staged"
}

// ReturnMode decides where the slaves of a removed master end up
type ReturnMode int

const (
	// ReturnToDefaults reattaches them to the core pointer and keyboard
	ReturnToDefaults ReturnMode = iota
	// ReturnFloating leaves them floating
	ReturnFloating
)

func (r ReturnMode) String() string {
	if r == ReturnFloating {
		return "floating"
	}
	return "defaults"
}

// Policy groups the edit behaviour choices
type Policy struct {
	Mode         Mode
	RemoveReturn ReturnMode
}

// DefaultPolicy stages edits and returns orphaned slaves to the core masters
func DefaultPolicy() Policy {
	return Policy{Mode: ModeStaged, RemoveReturn: ReturnToDefaults}
}

// ParseMode parses "staged" or "immediate"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "staged":
		return ModeStaged, nil
	case "immediate":
		return ModeImmediate, nil
	default:
		return ModeStaged, fmt.Errorf("unknown engine mode %q (want staged or immediate)", s)
	}
}

// ParseReturnMode parses "defaults" or "floating"
func ParseReturnMode(s string) (ReturnMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "defaults", "default":
		return ReturnToDefaults, nil
	case "floating", "float":
		return ReturnFloating, nil
	default:
		return ReturnToDefaults, fmt.Errorf("unknown remove return mode %q (want defaults or floating)", s)
	}
}
