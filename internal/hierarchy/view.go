package hierarchy

// Row is one line of the flattened tree in display order
type Row struct {
	Handle     NodeID
	ID         int
	Name       string
	Role       Role
	Icon       IconKind
	Depth      int
	Generation uint64
}

// IsUnassigned reports whether the row is the Unassigned root
func (r Row) IsUnassigned() bool {
	return r.Depth == 0 && r.ID == UnassignedID
}

// View is a detached copy of engine state, safe to hand to other goroutines
// or to serialize
type View struct {
	Generation uint64
	Mode       Mode
	Rows       []Row
	Pending    []PendingChange
}

// Rows flattens the tree in display order
func (t *Tree) Rows() []Row {
	rows := make([]Row, 0, t.Len())
	t.Walk(func(h NodeID, n Node, depth int) bool {
		rows = append(rows, Row{
			Handle:     h,
			ID:         n.ID,
			Name:       n.Name,
			Role:       n.Role,
			Icon:       n.Icon,
			Depth:      depth,
			Generation: n.Generation,
		})
		return true
	})
	return rows
}

// View snapshots the engine for display
func (e *Engine) View() View {
	return View{
		Generation: e.generation,
		Mode:       e.policy.Mode,
		Rows:       e.tree.Rows(),
		Pending:    e.queue.Changes(),
	}
}

// Row returns the row for device id, searching roots first
func (v View) Row(id int) (Row, bool) {
	for _, r := range v.Rows {
		if r.ID == id && r.Depth == 0 {
			return r, true
		}
	}
	for _, r := range v.Rows {
		if r.ID == id {
			return r, true
		}
	}
	return Row{}, false
}
