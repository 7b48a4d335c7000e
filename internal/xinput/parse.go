// Package xinput talks to the X input hierarchy through the xinput utility
package xinput

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bnema/xhier/internal/hierarchy"
)

// listLine matches one line of `xinput list --short`, e.g.
//
//	⎜   ↳ Logitech USB Receiver    id=9   [slave  pointer  (2)]
var listLine = regexp.MustCompile(`^(.*?)\s+id=(\d+)\s+\[([a-z]+)\s+([a-z]+)\s*(?:\((\d+)\))?\s*\]\s*$`)

// treeGlyphs are the box drawing prefixes xinput puts in front of names
const treeGlyphs = "⎡⎜⎣↳∼~ \t"

// ParseList turns `xinput list --short` output into a flat device list
func ParseList(output string) ([]hierarchy.Device, error) {
	var devices []hierarchy.Device
	scanner := bufio.NewScanner(strings.NewReader(output))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		d, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		devices = append(devices, d)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read xinput output: %w", err)
	}
	return devices, nil
}

func parseLine(line string) (hierarchy.Device, error) {
	m := listLine.FindStringSubmatch(line)
	if m == nil {
		return hierarchy.Device{}, fmt.Errorf("unrecognized device line %q", line)
	}

	name := strings.TrimLeft(m[1], treeGlyphs)
	name = strings.TrimSpace(name)
	id, err := strconv.Atoi(m[2])
	if err != nil {
		return hierarchy.Device{}, fmt.Errorf("bad device id %q: %w", m[2], err)
	}

	d := hierarchy.Device{ID: id, Name: name}
	if m[5] != "" {
		d.AttachedTo, _ = strconv.Atoi(m[5])
	}

	switch m[3] + " " + m[4] {
	case "master pointer":
		d.Role = hierarchy.RoleMasterPointer
	case "master keyboard":
		d.Role = hierarchy.RoleMasterKeyboard
	case "slave pointer":
		d.Role = hierarchy.RoleSlavePointer
	case "slave keyboard":
		d.Role = hierarchy.RoleSlaveKeyboard
	case "floating slave":
		d.Role = hierarchy.RoleFloatingSlave
		d.AttachedTo = 0
	default:
		return hierarchy.Device{}, fmt.Errorf("unknown device use %q for %q", m[3]+" "+m[4], name)
	}
	return d, nil
}

var serverVersion = regexp.MustCompile(`XI version on server:\s*(\d+)\.(\d+)`)

// ParseServerVersion extracts the XI version from `xinput --version`
func ParseServerVersion(output string) (major, minor int, err error) {
	m := serverVersion.FindStringSubmatch(output)
	if m == nil {
		return 0, 0, fmt.Errorf("no server XI version in %q", strings.TrimSpace(output))
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor, nil
}
