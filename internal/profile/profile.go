// Package profile captures a device layout by name and plans the changes
// that bring a live hierarchy back to it. Ids are not stable across
// reboots or replugs, so layouts only ever reference device names.
package profile

import (
	"fmt"
	"strings"

	"github.com/bnema/xhier/internal/hierarchy"
)

// Kind is the type of a master in a saved layout
type Kind string

const (
	KindPointer  Kind = "pointer"
	KindKeyboard Kind = "keyboard"
)

// MasterLayout is one master and the slaves attached to it
type MasterLayout struct {
	Name   string   `toml:"name" yaml:"name"`
	Kind   Kind     `toml:"kind" yaml:"kind"`
	Slaves []string `toml:"slaves,omitempty" yaml:"slaves,omitempty"`
}

// Profile is a named device layout
type Profile struct {
	Name     string         `toml:"name" yaml:"name"`
	Masters  []MasterLayout `toml:"masters" yaml:"masters"`
	Floating []string       `toml:"floating,omitempty" yaml:"floating,omitempty"`
}

// Capture records the layout shown by v
func Capture(name string, v hierarchy.View) Profile {
	p := Profile{Name: name}
	var current *MasterLayout
	inUnassigned := false

	for _, r := range v.Rows {
		if r.Depth == 0 {
			current = nil
			inUnassigned = r.IsUnassigned()
			if inUnassigned {
				continue
			}
			kind := KindPointer
			if r.Role == hierarchy.RoleMasterKeyboard {
				kind = KindKeyboard
			}
			p.Masters = append(p.Masters, MasterLayout{Name: r.Name, Kind: kind})
			current = &p.Masters[len(p.Masters)-1]
			continue
		}
		switch {
		case inUnassigned:
			p.Floating = append(p.Floating, r.Name)
		case current != nil:
			current.Slaves = append(current.Slaves, r.Name)
		}
	}
	return p
}

// Validate checks a loaded profile for obvious mistakes
func (p Profile) Validate() error {
	seen := make(map[string]string)
	claim := func(slave, owner string) error {
		key := strings.ToLower(slave)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("device %q listed under both %s and %s", slave, prev, owner)
		}
		seen[key] = owner
		return nil
	}

	for _, m := range p.Masters {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("master with empty name")
		}
		if m.Kind != KindPointer && m.Kind != KindKeyboard {
			return fmt.Errorf("master %q: unknown kind %q", m.Name, m.Kind)
		}
		for _, s := range m.Slaves {
			if err := claim(s, fmt.Sprintf("%q", m.Name)); err != nil {
				return err
			}
		}
	}
	for _, s := range p.Floating {
		if err := claim(s, "floating"); err != nil {
			return err
		}
	}
	return nil
}

// baseName strips the suffix the server appends to created masters
func baseName(master string) string {
	for _, suffix := range []string{" pointer", " keyboard"} {
		if strings.HasSuffix(master, suffix) {
			return strings.TrimSuffix(master, suffix)
		}
	}
	return master
}
