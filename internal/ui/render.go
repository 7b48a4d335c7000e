package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// RenderOptions controls RenderTree
type RenderOptions struct {
	// Styled enables colors; plain output is used for pipes
	Styled bool
	// Cursor is the highlighted row index, or -1
	Cursor int
	// Picked is the device id being moved, or 0
	Picked int
	// ShowIDs appends device ids
	ShowIDs bool
}

// RenderTree draws the hierarchy one row per line
func RenderTree(v hierarchy.View, opts RenderOptions) string {
	touched := touchedDevices(v.Pending)
	var b strings.Builder
	for i, r := range v.Rows {
		b.WriteString(renderRow(r, i, opts, touched[r.ID] && r.Depth > 0))
		b.WriteString("\n")
	}
	return b.String()
}

func renderRow(r hierarchy.Row, index int, opts RenderOptions, pending bool) string {
	prefix := "  "
	if index == opts.Cursor {
		prefix = IconCursor + " "
	}
	indent := ""
	if r.Depth > 0 {
		indent = "  ↳ "
	}

	label := DeviceIcon(r.Icon) + " " + r.Name
	if opts.ShowIDs && !r.IsUnassigned() {
		label += " " + fmt.Sprintf("[%d]", r.ID)
	}
	mark := ""
	if pending {
		mark = " " + IconPending
	}

	if !opts.Styled {
		return prefix + indent + label + mark
	}

	var style lipgloss.Style
	switch {
	case r.IsUnassigned():
		style = UnassignedStyle
	case r.Depth == 0:
		style = MasterStyle
	default:
		style = SlaveStyle
	}
	if opts.Picked != 0 && r.ID == opts.Picked && r.Depth > 0 {
		style = PickedStyle
	}
	if index == opts.Cursor {
		prefix = CursorStyle.Render(prefix)
		style = style.Underline(true)
	}
	if mark != "" {
		mark = PendingMarkStyle.Render(mark)
	}
	return prefix + SubtleStyle.Render(indent) + style.Render(label) + mark
}

func touchedDevices(pending []hierarchy.PendingChange) map[int]bool {
	touched := make(map[int]bool)
	for _, c := range pending {
		if c.Kind == hierarchy.ChangeReattach {
			touched[c.DeviceID] = true
		}
	}
	return touched
}

// RenderPending lists staged changes in apply order, resolving ids to names
func RenderPending(v hierarchy.View, styled bool) string {
	if len(v.Pending) == 0 {
		if styled {
			return SubtleStyle.Render("No pending changes")
		}
		return "No pending changes"
	}
	var b strings.Builder
	for i, c := range v.Pending {
		line := fmt.Sprintf("%d. %s", i+1, DescribeChange(v, c))
		if styled {
			line = TextStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// DescribeChange renders a change with device names where known
func DescribeChange(v hierarchy.View, c hierarchy.PendingChange) string {
	name := func(id int) string {
		if r, ok := v.Row(id); ok {
			return fmt.Sprintf("%q (%d)", r.Name, id)
		}
		return strconv.Itoa(id)
	}
	switch c.Kind {
	case hierarchy.ChangeReattach:
		if c.IsFloat() {
			return "float " + name(c.DeviceID)
		}
		return fmt.Sprintf("reattach %s to %s", name(c.DeviceID), name(c.MasterID))
	case hierarchy.ChangeCreateMaster:
		return fmt.Sprintf("create master %q", c.Name)
	case hierarchy.ChangeRemoveMaster:
		return fmt.Sprintf("remove master %s, slaves to %s", name(c.MasterID), c.Return)
	default:
		return c.String()
	}
}

// RenderTable draws the hierarchy as a lipgloss table
func RenderTable(v hierarchy.View) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorSubtle)).
		Headers("ID", "DEVICE", "ROLE", "ATTACHED TO").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle.Padding(0, 1)
			}
			return TableRowStyle.Padding(0, 1)
		})

	var parent string
	for _, r := range v.Rows {
		if r.Depth == 0 {
			parent = r.Name
			if r.IsUnassigned() {
				continue
			}
			t.Row(strconv.Itoa(r.ID), DeviceIcon(r.Icon)+" "+r.Name, r.Role.String(), "")
			continue
		}
		t.Row(strconv.Itoa(r.ID), DeviceIcon(r.Icon)+" "+r.Name, r.Role.String(), parent)
	}
	return t.Render()
}
