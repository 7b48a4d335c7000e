package hierarchy

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Find resolves a user supplied device reference to a node. The query may be
// a numeric id, an exact (case-insensitive) name, or a fuzzy fragment of a
// name. keep filters candidates; nil accepts every node.
func (t *Tree) Find(query string, keep func(Node) bool) (NodeID, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return NoNode, fmt.Errorf("empty device reference")
	}
	if keep == nil {
		keep = func(Node) bool { return true }
	}

	if id, err := strconv.Atoi(trimmed); err == nil {
		h, ok := t.Lookup(id)
		if id == UnassignedID {
			h, ok = t.Unassigned()
		}
		if ok {
			if n, _ := t.Node(h); keep(n) {
				return h, nil
			}
		}
		return NoNode, fmt.Errorf("no matching device with id %d", id)
	}

	var (
		handles []NodeID
		names   []string
	)
	t.Walk(func(h NodeID, n Node, _ int) bool {
		if keep(n) {
			handles = append(handles, h)
			names = append(names, n.Name)
		}
		return true
	})

	i, err := matchName(query, names)
	if err != nil {
		return NoNode, err
	}
	return handles[i], nil
}

// Find resolves a device reference against the rows of a view, with the
// same rules as Tree.Find
func (v View) Find(query string, keep func(Row) bool) (Row, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Row{}, fmt.Errorf("empty device reference")
	}
	if keep == nil {
		keep = func(Row) bool { return true }
	}

	if id, err := strconv.Atoi(trimmed); err == nil {
		if r, ok := v.Row(id); ok && keep(r) {
			return r, nil
		}
		return Row{}, fmt.Errorf("no matching device with id %d", id)
	}

	var (
		rows  []Row
		names []string
	)
	for _, r := range v.Rows {
		if keep(r) {
			rows = append(rows, r)
			names = append(names, r.Name)
		}
	}
	i, err := matchName(query, names)
	if err != nil {
		return Row{}, err
	}
	return rows[i], nil
}

// matchName prefers an exact case-insensitive name and falls back to an
// unambiguous fuzzy match
func matchName(query string, names []string) (int, error) {
	trimmed := strings.TrimSpace(query)
	for i, name := range names {
		if strings.EqualFold(name, trimmed) {
			return i, nil
		}
	}

	ranks := fuzzy.RankFindNormalizedFold(trimmed, names)
	if len(ranks) == 0 {
		return -1, fmt.Errorf("no device matches %q", query)
	}
	sort.Stable(ranks)
	if len(ranks) > 1 && ranks[0].Distance == ranks[1].Distance {
		return -1, fmt.Errorf("%q is ambiguous: %q or %q", query, ranks[0].Target, ranks[1].Target)
	}
	return ranks[0].OriginalIndex, nil
}

// IsMasterRow accepts master rows only
func IsMasterRow(r Row) bool { return r.Depth == 0 && r.Role.IsMaster() }

// IsSlaveRow accepts slave rows only
func IsSlaveRow(r Row) bool { return r.Depth > 0 }

// IsAttachTargetRow accepts master rows and the Unassigned row
func IsAttachTargetRow(r Row) bool { return r.Depth == 0 }

// IsMasterNode accepts master roots only
func IsMasterNode(n Node) bool { return n.Role.IsMaster() }

// IsSlaveNode accepts slave leaves only
func IsSlaveNode(n Node) bool { return n.Role.IsSlave() }

// IsAttachTarget accepts master roots and the Unassigned root
func IsAttachTarget(n Node) bool { return n.Role.IsMaster() || n.IsUnassigned() }
