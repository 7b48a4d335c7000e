package profile

import (
	"sort"
	"strings"

	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Options tunes Plan
type Options struct {
	// Prune removes non-core masters the profile does not mention
	Prune bool
	// Return is where pruned masters send their slaves
	Return hierarchy.ReturnMode
	// Fuzzy allows slaves to match renamed devices by fragment
	Fuzzy bool
}

// Plan is the ordered change list that moves a view towards a profile
type Plan struct {
	Changes []hierarchy.PendingChange
	// Deferred slaves wait for a master that is created by this plan.
	// Re-planning after the batch is applied picks them up.
	Deferred []string
	// Missing devices are named by the profile but not present
	Missing []string
}

// Done reports whether applying the plan finishes the job
func (p Plan) Done() bool {
	return len(p.Deferred) == 0
}

type slaveRow struct {
	row    hierarchy.Row
	parent int
}

// Build computes the changes needed to make v match p
func Build(v hierarchy.View, p Profile, opts Options) Plan {
	var plan Plan

	masters := make(map[string]hierarchy.Row)
	var slaves []slaveRow
	parent := 0
	for _, r := range v.Rows {
		if r.Depth == 0 {
			parent = r.ID
			if !r.IsUnassigned() {
				masters[strings.ToLower(r.Name)] = r
			}
			continue
		}
		slaves = append(slaves, slaveRow{row: r, parent: parent})
	}

	used := make(map[int]bool)
	match := func(name string) (slaveRow, bool) {
		return findSlave(slaves, used, name, opts.Fuzzy)
	}

	created := make(map[string]bool)
	wanted := make(map[string]bool)
	for _, m := range p.Masters {
		wanted[strings.ToLower(m.Name)] = true
		target, ok := masters[strings.ToLower(m.Name)]
		if !ok {
			base := baseName(m.Name)
			if !created[base] {
				created[base] = true
				plan.Changes = append(plan.Changes, hierarchy.CreateMaster(base))
			}
			for _, s := range m.Slaves {
				if sr, ok := match(s); ok {
					used[sr.row.ID] = true
					plan.Deferred = append(plan.Deferred, s)
				} else {
					plan.Missing = append(plan.Missing, s)
				}
			}
			continue
		}
		for _, s := range m.Slaves {
			sr, ok := match(s)
			if !ok {
				plan.Missing = append(plan.Missing, s)
				continue
			}
			used[sr.row.ID] = true
			if sr.parent != target.ID {
				plan.Changes = append(plan.Changes, hierarchy.Reattach(sr.row.ID, target.ID))
			}
		}
	}

	for _, s := range p.Floating {
		sr, ok := match(s)
		if !ok {
			plan.Missing = append(plan.Missing, s)
			continue
		}
		used[sr.row.ID] = true
		if sr.parent != hierarchy.UnassignedID {
			plan.Changes = append(plan.Changes, hierarchy.Float(sr.row.ID))
		}
	}

	if opts.Prune {
		plan.Changes = append(plan.Changes, pruneChanges(v, wanted, opts.Return)...)
	}
	return plan
}

// pruneChanges removes unmentioned masters. A created master is a pointer
// and keyboard pair; either half being wanted keeps both.
func pruneChanges(v hierarchy.View, wanted map[string]bool, mode hierarchy.ReturnMode) []hierarchy.PendingChange {
	keepBase := make(map[string]bool)
	for name := range wanted {
		keepBase[baseName(name)] = true
	}
	var changes []hierarchy.PendingChange
	for _, r := range v.Rows {
		if r.Depth != 0 || r.IsUnassigned() || r.Role != hierarchy.RoleMasterPointer {
			continue
		}
		if r.ID == hierarchy.CorePointerID || keepBase[baseName(strings.ToLower(r.Name))] {
			continue
		}
		changes = append(changes, hierarchy.RemoveMaster(r.ID, mode))
	}
	return changes
}

func findSlave(slaves []slaveRow, used map[int]bool, name string, allowFuzzy bool) (slaveRow, bool) {
	var (
		candidates []slaveRow
		names      []string
	)
	for _, s := range slaves {
		if used[s.row.ID] {
			continue
		}
		if strings.EqualFold(s.row.Name, name) {
			return s, true
		}
		candidates = append(candidates, s)
		names = append(names, s.row.Name)
	}
	if !allowFuzzy {
		return slaveRow{}, false
	}
	ranks := fuzzy.RankFindNormalizedFold(name, names)
	if len(ranks) == 0 {
		return slaveRow{}, false
	}
	sort.Stable(ranks)
	if len(ranks) > 1 && ranks[0].Distance == ranks[1].Distance {
		return slaveRow{}, false
	}
	return candidates[ranks[0].OriginalIndex], true
}
