package hierarchy

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/xhier/internal/logger"
	"github.com/google/uuid"
)

// Environment is the live input hierarchy the engine reads from and writes to
type Environment interface {
	// Snapshot returns the complete current device list in one call
	Snapshot(ctx context.Context) ([]Device, error)
	// SubmitBatch applies all changes or none of them
	SubmitBatch(ctx context.Context, changes []PendingChange) error
	// CreateMaster adds a master pair immediately
	CreateMaster(ctx context.Context, name string) error
	// RemoveMaster removes a master pair immediately
	RemoveMaster(ctx context.Context, id int, mode ReturnMode) error
}

// MergeStats summarizes one reconciliation pass
type MergeStats struct {
	Generation uint64
	Added      int
	Removed    int
	Kept       int
}

func (s MergeStats) String() string {
	return fmt.Sprintf("gen=%d added=%d removed=%d kept=%d", s.Generation, s.Added, s.Removed, s.Kept)
}

// Changed reports whether the pass altered the tree structure
func (s MergeStats) Changed() bool {
	return s.Added > 0 || s.Removed > 0
}

// Engine owns the hierarchy tree, the generation counter and the pending
// change queue. It is not safe for concurrent use.
type Engine struct {
	env        Environment
	policy     Policy
	tree       *Tree
	queue      Queue
	generation uint64
}

// NewEngine creates an engine with an empty tree. Call Reconcile to fill it.
func NewEngine(env Environment, policy Policy) *Engine {
	return &Engine{
		env:    env,
		policy: policy,
		tree:   NewTree(),
	}
}

// Tree returns the hierarchy. Callers must treat it as read-only.
func (e *Engine) Tree() *Tree {
	return e.tree
}

// Generation returns the counter of the last completed pass
func (e *Engine) Generation() uint64 {
	return e.generation
}

// Policy returns the edit policy
func (e *Engine) Policy() Policy {
	return e.policy
}

// Reconcile fetches a fresh snapshot and merges it into the tree
func (e *Engine) Reconcile(ctx context.Context) (MergeStats, error) {
	devices, err := e.env.Snapshot(ctx)
	if err != nil {
		return MergeStats{}, &SnapshotError{Err: err}
	}
	return e.Merge(devices)
}

// Merge updates the tree in place so that it reflects devices exactly.
// Nodes for devices that persist keep their handles. A snapshot that breaks
// the id contract is rejected before anything is touched.
func (e *Engine) Merge(devices []Device) (MergeStats, error) {
	if err := validateSnapshot(devices); err != nil {
		return MergeStats{}, err
	}

	e.generation++
	gen := e.generation
	t := e.tree
	stats := MergeStats{Generation: gen}

	// masters keep their snapshot order and are never re-sorted
	for _, d := range devices {
		if !d.Role.IsMaster() {
			continue
		}
		logger.Debugf("MD %d: %s", d.ID, d.Name)
		if h, ok := t.Root(d.ID); ok {
			t.stamp(h, gen)
			stats.Kept++
			continue
		}
		t.appendRoot(d, iconFor(d.Role), gen)
		stats.Added++
	}

	// the Unassigned root must end up last even when new masters were
	// appended behind it above
	unassigned, ok := t.Unassigned()
	if !ok {
		unassigned = t.appendRoot(Device{ID: UnassignedID, Name: UnassignedName, Role: RoleFloating}, IconFloating, gen)
		stats.Added++
	} else {
		t.moveAfterLast(unassigned)
		t.stamp(unassigned, gen)
		stats.Kept++
	}

	for _, d := range devices {
		if d.Role.IsMaster() {
			continue
		}
		logger.Debugf("SD %d: %s", d.ID, d.Name)
		target := unassigned
		if d.Role != RoleFloatingSlave {
			if h, ok := t.Root(d.AttachedTo); ok && h != unassigned && t.nodes[h].generation == gen {
				target = h
			}
		}
		if h, ok := t.child(target, d.ID); ok {
			t.stamp(h, gen)
			stats.Kept++
			continue
		}
		t.appendChild(target, d, gen)
		stats.Added++
	}

	for _, r := range t.Roots() {
		for _, c := range t.Children(r) {
			if t.nodes[c].generation < gen {
				t.removeChild(c)
				stats.Removed++
			}
		}
		if t.nodes[r].generation < gen {
			stats.Removed += t.removeRoot(r)
		}
	}

	logger.Debugf("reconciled hierarchy: %s", stats)
	return stats, nil
}

func validateSnapshot(devices []Device) error {
	seen := make(map[int]struct{}, len(devices))
	for _, d := range devices {
		if d.ID == UnassignedID {
			return fmt.Errorf("%w: device %q uses reserved id %d", ErrContractViolation, d.Name, d.ID)
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: duplicate device id %d", ErrContractViolation, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

// Stage appends a change to the pending queue. It has no effect on the
// environment and cannot fail.
func (e *Engine) Stage(c PendingChange) {
	logger.Debugf("staged %s", c)
	e.queue.Push(c)
}

// StageChecked validates c against the current tree before staging it
func (e *Engine) StageChecked(c PendingChange) error {
	if err := e.Validate(c); err != nil {
		return err
	}
	e.Stage(c)
	return nil
}

// Validate reports whether c makes sense for the current tree
func (e *Engine) Validate(c PendingChange) error {
	t := e.tree
	switch c.Kind {
	case ChangeReattach:
		h, ok := t.Lookup(c.DeviceID)
		if !ok {
			return fmt.Errorf("%w: unknown device %d", ErrInvalidChange, c.DeviceID)
		}
		if n, _ := t.Node(h); !n.Role.IsSlave() {
			return fmt.Errorf("%w: device %d is not a slave", ErrInvalidChange, c.DeviceID)
		}
		if c.MasterID == UnassignedID {
			return nil
		}
		m, ok := t.Root(c.MasterID)
		if !ok {
			return fmt.Errorf("%w: unknown master %d", ErrInvalidChange, c.MasterID)
		}
		if n, _ := t.Node(m); !n.Role.IsMaster() {
			return fmt.Errorf("%w: device %d is not a master", ErrInvalidChange, c.MasterID)
		}
	case ChangeCreateMaster:
		if c.Name == "" {
			return fmt.Errorf("%w: master name is empty", ErrInvalidChange)
		}
	case ChangeRemoveMaster:
		if c.MasterID == CorePointerID || c.MasterID == CoreKeyboardID {
			return fmt.Errorf("%w: core master %d cannot be removed", ErrInvalidChange, c.MasterID)
		}
		h, ok := t.Root(c.MasterID)
		if !ok {
			return fmt.Errorf("%w: unknown master %d", ErrInvalidChange, c.MasterID)
		}
		if n, _ := t.Node(h); !n.Role.IsMaster() {
			return fmt.Errorf("%w: device %d is not a master", ErrInvalidChange, c.MasterID)
		}
	default:
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidChange, c.Kind)
	}
	return nil
}

// Pending returns a copy of the staged changes in apply order
func (e *Engine) Pending() []PendingChange {
	return e.queue.Changes()
}

// HasPending reports whether anything is staged
func (e *Engine) HasPending() bool {
	return !e.queue.Empty()
}

// CancelAll drops every staged change and re-derives the tree from the
// environment. The queue is cleared even when the refresh fails.
func (e *Engine) CancelAll(ctx context.Context) error {
	if n := e.queue.Len(); n > 0 {
		logger.Infof("discarding %d pending change(s)", n)
	}
	e.queue.Clear()
	_, err := e.Reconcile(ctx)
	return err
}

// ApplyAll submits the queue as one batch. On success the queue is cleared
// and the tree is reconciled. On failure queue and tree are left as they
// were and an *ApplyError is returned. When the environment reports that a
// prefix of the batch took effect, that prefix leaves the queue, the tree is
// reconciled and a *PartialApplyError is returned so a retry only resubmits
// what is still pending.
func (e *Engine) ApplyAll(ctx context.Context) error {
	if e.queue.Empty() {
		return nil
	}
	batch := e.queue.Changes()
	batchID := uuid.NewString()
	logger.Infof("applying batch %s with %d change(s)", batchID, len(batch))

	if err := e.env.SubmitBatch(ctx, batch); err != nil {
		var partial *PartialApplyError
		if errors.As(err, &partial) && partial.Applied > 0 {
			return e.applyPartial(ctx, batchID, batch, partial)
		}
		logger.Warnf("batch %s rejected: %v", batchID, err)
		return &ApplyError{BatchID: batchID, Changes: len(batch), Err: err}
	}

	e.queue.Clear()
	if _, err := e.Reconcile(ctx); err != nil {
		return fmt.Errorf("batch %s applied, refresh failed: %w", batchID, err)
	}
	return nil
}

func (e *Engine) applyPartial(ctx context.Context, batchID string, batch []PendingChange, partial *PartialApplyError) error {
	applied := min(partial.Applied, len(batch))
	logger.Warnf("batch %s stopped after %d of %d change(s): %v", batchID, applied, len(batch), partial.Err)
	e.queue.DropFront(applied)
	err := &PartialApplyError{BatchID: batchID, Applied: applied, Changes: len(batch), Err: partial.Err}
	if _, rerr := e.Reconcile(ctx); rerr != nil {
		return errors.Join(err, fmt.Errorf("refresh failed: %w", rerr))
	}
	return err
}

// Submit routes an edit according to the policy: staged mode validates and
// queues it, immediate mode sends it to the environment and refreshes.
func (e *Engine) Submit(ctx context.Context, c PendingChange) error {
	if c.Kind == ChangeRemoveMaster {
		c.Return = e.policy.RemoveReturn
	}
	if err := e.Validate(c); err != nil {
		return err
	}
	if e.policy.Mode == ModeStaged {
		e.Stage(c)
		return nil
	}

	var err error
	switch c.Kind {
	case ChangeCreateMaster:
		if err = e.env.CreateMaster(ctx, c.Name); err != nil {
			err = &EnvError{Op: "create master", Err: err}
		}
	case ChangeRemoveMaster:
		if err = e.env.RemoveMaster(ctx, c.MasterID, c.Return); err != nil {
			err = &EnvError{Op: "remove master", Err: err}
		}
	default:
		if err = e.env.SubmitBatch(ctx, []PendingChange{c}); err != nil {
			err = &EnvError{Op: c.Kind.String(), Err: err}
		}
	}
	if err != nil {
		return err
	}
	_, err = e.Reconcile(ctx)
	return err
}
