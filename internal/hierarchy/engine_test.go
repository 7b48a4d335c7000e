package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEnv is an in-memory hierarchy that applies batches to its device list
type fakeEnv struct {
	devices   []Device
	snapErr   error
	submitErr error
	// stopAfter makes a failing batch apply its first stopAfter changes
	stopAfter int
	createErr error
	snapshots int
	submitted [][]PendingChange
	created   []string
	removed   []int
}

func (f *fakeEnv) Snapshot(ctx context.Context) ([]Device, error) {
	f.snapshots++
	if f.snapErr != nil {
		return nil, f.snapErr
	}
	out := make([]Device, len(f.devices))
	copy(out, f.devices)
	return out, nil
}

func (f *fakeEnv) SubmitBatch(ctx context.Context, changes []PendingChange) error {
	f.submitted = append(f.submitted, changes)
	if f.submitErr != nil {
		if f.stopAfter == 0 {
			return f.submitErr
		}
		for _, c := range changes[:f.stopAfter] {
			f.apply(c)
		}
		return &PartialApplyError{Applied: f.stopAfter, Err: f.submitErr}
	}
	for _, c := range changes {
		f.apply(c)
	}
	return nil
}

func (f *fakeEnv) apply(c PendingChange) {
	switch c.Kind {
	case ChangeReattach:
		f.reattach(c.DeviceID, c.MasterID)
	case ChangeCreateMaster:
		_ = f.CreateMaster(context.Background(), c.Name)
	case ChangeRemoveMaster:
		_ = f.RemoveMaster(context.Background(), c.MasterID, c.Return)
	}
}

func (f *fakeEnv) CreateMaster(ctx context.Context, name string) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, name)
	next := 100 + len(f.created)*2
	f.devices = append(f.devices,
		Device{ID: next, Name: name + " pointer", Role: RoleMasterPointer, AttachedTo: next + 1},
		Device{ID: next + 1, Name: name + " keyboard", Role: RoleMasterKeyboard, AttachedTo: next},
	)
	return nil
}

func (f *fakeEnv) RemoveMaster(ctx context.Context, id int, mode ReturnMode) error {
	f.removed = append(f.removed, id)
	kept := f.devices[:0]
	for _, d := range f.devices {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	f.devices = kept
	return nil
}

func (f *fakeEnv) reattach(deviceID, masterID int) {
	for i := range f.devices {
		if f.devices[i].ID != deviceID {
			continue
		}
		if masterID == UnassignedID {
			f.devices[i].Role = RoleFloatingSlave
			f.devices[i].AttachedTo = 0
			return
		}
		f.devices[i].AttachedTo = masterID
		if f.devices[i].Role == RoleFloatingSlave {
			f.devices[i].Role = RoleSlavePointer
		}
	}
}

func baseDevices() []Device {
	return []Device{
		{ID: 2, Name: "VCP", Role: RoleMasterPointer, AttachedTo: 3},
		{ID: 3, Name: "VCK", Role: RoleMasterKeyboard, AttachedTo: 2},
		{ID: 5, Name: "Mouse0", Role: RoleSlavePointer, AttachedTo: 2},
	}
}

// shape renders the tree as "Root[Child,Child] Root[]"
func shape(t *Tree) string {
	var parts []string
	for _, r := range t.Roots() {
		rn, _ := t.Node(r)
		var kids []string
		for _, c := range rn.Children {
			cn, _ := t.Node(c)
			kids = append(kids, cn.Name)
		}
		parts = append(parts, fmt.Sprintf("%s[%s]", rn.Name, strings.Join(kids, ",")))
	}
	return strings.Join(parts, " ")
}

func assertAllCurrent(t *testing.T, e *Engine) {
	t.Helper()
	e.Tree().Walk(func(h NodeID, n Node, _ int) bool {
		assert.Equal(t, e.Generation(), n.Generation, "node %s is stale", n.Name)
		return true
	})
}

func assertSentinelLast(t *testing.T, tree *Tree) {
	t.Helper()
	roots := tree.Roots()
	require.NotEmpty(t, roots)
	count := 0
	for _, r := range roots {
		if n, _ := tree.Node(r); n.IsUnassigned() {
			count++
		}
	}
	assert.Equal(t, 1, count, "expected exactly one Unassigned root")
	last, _ := tree.Node(roots[len(roots)-1])
	assert.True(t, last.IsUnassigned(), "Unassigned must be the last root")
}

func TestMergeInitialSnapshot(t *testing.T) {
	e := NewEngine(&fakeEnv{}, DefaultPolicy())

	stats, err := e.Merge(baseDevices())
	require.NoError(t, err)

	assert.Equal(t, "VCP[Mouse0] VCK[] Unassigned[]", shape(e.Tree()))
	assert.Equal(t, uint64(1), stats.Generation)
	assert.Equal(t, 4, stats.Added)
	assert.Equal(t, 0, stats.Removed)

	vcp, ok := e.Tree().Root(2)
	require.True(t, ok)
	n, _ := e.Tree().Node(vcp)
	assert.Equal(t, IconMouse, n.Icon)
	vck, _ := e.Tree().Root(3)
	n, _ = e.Tree().Node(vck)
	assert.Equal(t, IconKeyboard, n.Icon)
	u, _ := e.Tree().Unassigned()
	n, _ = e.Tree().Node(u)
	assert.Equal(t, IconFloating, n.Icon)
	assert.Equal(t, RoleFloating, n.Role)
	assertAllCurrent(t, e)
}

func TestMergeIdempotent(t *testing.T) {
	e := NewEngine(&fakeEnv{}, DefaultPolicy())
	_, err := e.Merge(baseDevices())
	require.NoError(t, err)
	before := shape(e.Tree())
	handles := e.Tree().Roots()

	stats, err := e.Merge(baseDevices())
	require.NoError(t, err)

	assert.Equal(t, before, shape(e.Tree()))
	assert.Equal(t, handles, e.Tree().Roots())
	assert.Equal(t, 0, stats.Added)
	assert.Equal(t, 0, stats.Removed)
	assert.False(t, stats.Changed())
	assertAllCurrent(t, e)
}

func TestMergeGenerationMonotonic(t *testing.T) {
	e := NewEngine(&fakeEnv{}, DefaultPolicy())
	snapshots := [][]Device{
		baseDevices(),
		baseDevices()[:2],
		append(baseDevices(), Device{ID: 9, Name: "Tablet", Role: RoleFloatingSlave}),
		nil,
	}
	for i, snap := range snapshots {
		before := e.Generation()
		_, err := e.Merge(snap)
		require.NoError(t, err)
		assert.Equal(t, before+1, e.Generation(), "pass %d", i)
		assertAllCurrent(t, e)
		assertSentinelLast(t, e.Tree())
	}
}

func TestMergeSentinelStaysLast(t *testing.T) {
	e := NewEngine(&fakeEnv{}, DefaultPolicy())
	_, err := e.Merge(baseDevices())
	require.NoError(t, err)

	devices := append(baseDevices(),
		Device{ID: 10, Name: "Second pointer", Role: RoleMasterPointer, AttachedTo: 11},
		Device{ID: 11, Name: "Second keyboard", Role: RoleMasterKeyboard, AttachedTo: 10},
	)
	_, err = e.Merge(devices)
	require.NoError(t, err)

	assert.Equal(t, "VCP[Mouse0] VCK[] Second pointer[] Second keyboard[] Unassigned[]", shape(e.Tree()))
	assertSentinelLast(t, e.Tree())

	// removing a master in the middle keeps the sentinel last
	_, err = e.Merge([]Device{devices[0], devices[1], devices[2], devices[4]})
	require.NoError(t, err)
	assert.Equal(t, "VCP[Mouse0] VCK[] Second keyboard[] Unassigned[]", shape(e.Tree()))
	assertSentinelLast(t, e.Tree())
}

func TestMergePreservesUntouchedNodes(t *testing.T) {
	e := NewEngine(&fakeEnv{}, DefaultPolicy())
	_, err := e.Merge(baseDevices())
	require.NoError(t, err)

	type entry struct {
		h    NodeID
		name string
		role Role
	}
	var before []entry
	e.Tree().Walk(func(h NodeID, n Node, _ int) bool {
		before = append(before, entry{h, n.Name, n.Role})
		return true
	})

	s2 := append(baseDevices(), Device{ID: 6, Name: "Keyboard0", Role: RoleSlaveKeyboard, AttachedTo: 3})
	stats, err := e.Merge(s2)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Added)
	assert.Equal(t, 0, stats.Removed)

	for _, b := range before {
		n, ok := e.Tree().Node(b.h)
		require.True(t, ok, "handle of %s must survive", b.name)
		assert.Equal(t, b.name, n.Name)
		assert.Equal(t, b.role, n.Role)
	}
	assert.Equal(t, "VCP[Mouse0] VCK[Keyboard0] Unassigned[]", shape(e.Tree()))
}

func TestMergeRemovesVanishedDevices(t *testing.T) {
	t.Run("slave removed", func(t *testing.T) {
		e := NewEngine(&fakeEnv{}, DefaultPolicy())
		s1 := append(baseDevices(), Device{ID: 6, Name: "Keyboard0", Role: RoleSlaveKeyboard, AttachedTo: 3})
		_, err := e.Merge(s1)
		require.NoError(t, err)
		mouse, _ := e.Tree().Lookup(5)

		stats, err := e.Merge(baseDevices())
		require.NoError(t, err)

		assert.Equal(t, 1, stats.Removed)
		assert.Equal(t, "VCP[Mouse0] VCK[] Unassigned[]", shape(e.Tree()))
		_, ok := e.Tree().Lookup(6)
		assert.False(t, ok)
		still, _ := e.Tree().Lookup(5)
		assert.Equal(t, mouse, still)
	})

	t.Run("master removed with its slaves", func(t *testing.T) {
		e := NewEngine(&fakeEnv{}, DefaultPolicy())
		s1 := append(baseDevices(),
			Device{ID: 10, Name: "Second pointer", Role: RoleMasterPointer, AttachedTo: 11},
			Device{ID: 12, Name: "Pen", Role: RoleSlavePointer, AttachedTo: 10},
		)
		_, err := e.Merge(s1)
		require.NoError(t, err)
		assert.Equal(t, "VCP[Mouse0] VCK[] Second pointer[Pen] Unassigned[]", shape(e.Tree()))

		stats, err := e.Merge(baseDevices())
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Removed)
		assert.Equal(t, "VCP[Mouse0] VCK[] Unassigned[]", shape(e.Tree()))
		assert.Equal(t, 4, e.Tree().Len())
	})

	t.Run("empty snapshot keeps only the sentinel", func(t *testing.T) {
		e := NewEngine(&fakeEnv{}, DefaultPolicy())
		_, err := e.Merge(baseDevices())
		require.NoError(t, err)

		_, err = e.Merge(nil)
		require.NoError(t, err)
		assert.Equal(t, "Unassigned[]", shape(e.Tree()))
		assert.Equal(t, 1, e.Tree().Len())
	})
}

func TestMergeReparentsAsNewChild(t *testing.T) {
	e := NewEngine(&fakeEnv{}, DefaultPolicy())
	_, err := e.Merge(baseDevices())
	require.NoError(t, err)
	old, _ := e.Tree().Lookup(5)

	moved := baseDevices()
	moved[2].AttachedTo = 3
	stats, err := e.Merge(moved)
	require.NoError(t, err)

	assert.Equal(t, "VCP[] VCK[Mouse0] Unassigned[]", shape(e.Tree()))
	assert.Equal(t, 1, stats.Added)
	assert.Equal(t, 1, stats.Removed)

	h, ok := e.Tree().Lookup(5)
	require.True(t, ok)
	n, _ := e.Tree().Node(h)
	vck, _ := e.Tree().Root(3)
	assert.Equal(t, vck, n.Parent)
	_, stillThere := e.Tree().Node(old)
	if stillThere {
		// the arena may recycle the slot, but never under the old parent
		on, _ := e.Tree().Node(old)
		vcp, _ := e.Tree().Root(2)
		assert.NotEqual(t, vcp, on.Parent)
	}
}

func TestMergeFloatingDevices(t *testing.T) {
	e := NewEngine(&fakeEnv{}, DefaultPolicy())
	devices := append(baseDevices(),
		Device{ID: 7, Name: "Tablet", Role: RoleFloatingSlave},
		// attached to a master that is not in the snapshot
		Device{ID: 8, Name: "Orphan", Role: RoleSlaveKeyboard, AttachedTo: 42},
	)
	_, err := e.Merge(devices)
	require.NoError(t, err)

	assert.Equal(t, "VCP[Mouse0] VCK[] Unassigned[Tablet,Orphan]", shape(e.Tree()))
	h, _ := e.Tree().Lookup(7)
	n, _ := e.Tree().Node(h)
	assert.Equal(t, IconFloating, n.Icon)
}

func TestMergeContractViolation(t *testing.T) {
	tests := []struct {
		name    string
		devices []Device
	}{
		{
			name: "duplicate id",
			devices: append(baseDevices(),
				Device{ID: 5, Name: "Mouse0 again", Role: RoleSlavePointer, AttachedTo: 3}),
		},
		{
			name: "sentinel collision",
			devices: append(baseDevices(),
				Device{ID: UnassignedID, Name: "Bogus", Role: RoleFloatingSlave}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(&fakeEnv{}, DefaultPolicy())
			_, err := e.Merge(baseDevices())
			require.NoError(t, err)
			before := shape(e.Tree())

			_, err = e.Merge(tt.devices)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrContractViolation)
			assert.Equal(t, uint64(1), e.Generation())
			assert.Equal(t, before, shape(e.Tree()))
		})
	}
}

func TestReconcileSnapshotError(t *testing.T) {
	env := &fakeEnv{devices: baseDevices()}
	e := NewEngine(env, DefaultPolicy())
	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)

	env.snapErr = errors.New("display gone")
	_, err = e.Reconcile(context.Background())

	var snapErr *SnapshotError
	require.ErrorAs(t, err, &snapErr)
	assert.Equal(t, uint64(1), e.Generation())
	assert.Equal(t, "VCP[Mouse0] VCK[] Unassigned[]", shape(e.Tree()))
}

func TestApplyAllReattachScenario(t *testing.T) {
	env := &fakeEnv{devices: baseDevices()}
	e := NewEngine(env, DefaultPolicy())
	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "VCP[Mouse0] VCK[] Unassigned[]", shape(e.Tree()))

	e.Stage(Reattach(5, 3))
	assert.Equal(t, []PendingChange{Reattach(5, 3)}, e.Pending())

	require.NoError(t, e.ApplyAll(context.Background()))

	assert.Equal(t, "VCP[] VCK[Mouse0] Unassigned[]", shape(e.Tree()))
	assert.Empty(t, e.Pending())
	assert.False(t, e.HasPending())
	require.Len(t, env.submitted, 1)
	assert.Equal(t, []PendingChange{Reattach(5, 3)}, env.submitted[0])
	assertAllCurrent(t, e)
}

func TestApplyAllFailureLeavesState(t *testing.T) {
	env := &fakeEnv{devices: baseDevices()}
	e := NewEngine(env, DefaultPolicy())
	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)

	e.Stage(Reattach(5, 3))
	e.Stage(CreateMaster("Second"))
	env.submitErr = errors.New("BadMatch")
	genBefore := e.Generation()
	shapeBefore := shape(e.Tree())
	snapshotsBefore := env.snapshots

	err = e.ApplyAll(context.Background())

	var applyErr *ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, 2, applyErr.Changes)
	assert.NotEmpty(t, applyErr.BatchID)
	assert.ErrorContains(t, err, "BadMatch")
	assert.Equal(t, []PendingChange{Reattach(5, 3), CreateMaster("Second")}, e.Pending())
	assert.Equal(t, genBefore, e.Generation())
	assert.Equal(t, shapeBefore, shape(e.Tree()))
	assert.Equal(t, snapshotsBefore, env.snapshots, "no refresh after a rejected batch")

	// retry after the environment recovers
	env.submitErr = nil
	require.NoError(t, e.ApplyAll(context.Background()))
	assert.Empty(t, e.Pending())
}

func TestApplyAllPartialBatchIsNotRepeated(t *testing.T) {
	env := &fakeEnv{devices: baseDevices()}
	e := NewEngine(env, DefaultPolicy())
	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)

	e.Stage(CreateMaster("Extra"))
	e.Stage(Float(5))
	env.submitErr = errors.New("BadDevice")
	env.stopAfter = 1

	err = e.ApplyAll(context.Background())

	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 1, partial.Applied)
	assert.Equal(t, 2, partial.Changes)
	assert.NotEmpty(t, partial.BatchID)
	assert.ErrorContains(t, err, "BadDevice")
	var applyErr *ApplyError
	assert.False(t, errors.As(err, &applyErr), "a partial batch is not a rejected batch")

	assert.Equal(t, []PendingChange{Float(5)}, e.Pending(), "committed changes leave the queue")
	assert.Equal(t, "VCP[Mouse0] VCK[] Extra pointer[] Extra keyboard[] Unassigned[]", shape(e.Tree()))

	env.submitErr = nil
	env.stopAfter = 0
	require.NoError(t, e.ApplyAll(context.Background()))

	assert.Empty(t, e.Pending())
	assert.Equal(t, []string{"Extra"}, env.created, "create-master must run once")
	require.Len(t, env.submitted, 2)
	assert.Equal(t, []PendingChange{Float(5)}, env.submitted[1])
	assert.Equal(t, "VCP[] VCK[] Extra pointer[] Extra keyboard[] Unassigned[Mouse0]", shape(e.Tree()))
}

func TestApplyAllPartialRefreshFailure(t *testing.T) {
	env := &fakeEnv{devices: baseDevices()}
	e := NewEngine(env, DefaultPolicy())
	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)

	e.Stage(Float(5))
	e.Stage(CreateMaster("Extra"))
	env.submitErr = errors.New("BadValue")
	env.stopAfter = 1
	env.snapErr = errors.New("connection reset")

	err = e.ApplyAll(context.Background())

	var partial *PartialApplyError
	require.ErrorAs(t, err, &partial)
	var snapErr *SnapshotError
	assert.ErrorAs(t, err, &snapErr)
	assert.Equal(t, []PendingChange{CreateMaster("Extra")}, e.Pending())
}

func TestQueueDropFront(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want []PendingChange
	}{
		{"none", 0, []PendingChange{Float(1), Float(2), Float(3)}},
		{"prefix", 2, []PendingChange{Float(3)}},
		{"all", 3, nil},
		{"more than queued", 5, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q Queue
			q.Push(Float(1))
			q.Push(Float(2))
			q.Push(Float(3))
			q.DropFront(tt.n)
			assert.Equal(t, tt.want, q.Changes())
		})
	}
}

func TestApplyAllEmptyQueue(t *testing.T) {
	env := &fakeEnv{devices: baseDevices()}
	e := NewEngine(env, DefaultPolicy())

	require.NoError(t, e.ApplyAll(context.Background()))
	assert.Empty(t, env.submitted)
	assert.Equal(t, 0, env.snapshots)
}

func TestApplyAllRefreshFailure(t *testing.T) {
	env := &fakeEnv{devices: baseDevices()}
	e := NewEngine(env, DefaultPolicy())
	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)

	e.Stage(Float(5))
	env.snapErr = errors.New("connection reset")
	err = e.ApplyAll(context.Background())

	var snapErr *SnapshotError
	require.ErrorAs(t, err, &snapErr)
	assert.Empty(t, e.Pending(), "the batch committed so the queue is cleared")
}

func TestCancelAll(t *testing.T) {
	env := &fakeEnv{devices: baseDevices()}
	e := NewEngine(env, DefaultPolicy())
	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)

	e.Stage(Reattach(5, 3))
	e.Stage(Float(5))
	env.devices = append(env.devices, Device{ID: 9, Name: "Touchpad", Role: RoleSlavePointer, AttachedTo: 2})

	require.NoError(t, e.CancelAll(context.Background()))

	assert.Empty(t, e.Pending())
	assert.Empty(t, env.submitted)
	assert.Equal(t, "VCP[Mouse0,Touchpad] VCK[] Unassigned[]", shape(e.Tree()))

	t.Run("queue cleared even when refresh fails", func(t *testing.T) {
		e.Stage(Float(9))
		env.snapErr = errors.New("boom")
		err := e.CancelAll(context.Background())
		assert.Error(t, err)
		assert.Empty(t, e.Pending())
	})
}

func TestValidate(t *testing.T) {
	env := &fakeEnv{devices: append(baseDevices(),
		Device{ID: 10, Name: "Second pointer", Role: RoleMasterPointer, AttachedTo: 11},
		Device{ID: 11, Name: "Second keyboard", Role: RoleMasterKeyboard, AttachedTo: 10},
	)}
	e := NewEngine(env, DefaultPolicy())
	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name    string
		change  PendingChange
		wantErr bool
	}{
		{"reattach slave to master", Reattach(5, 10), false},
		{"float slave", Float(5), false},
		{"reattach unknown device", Reattach(99, 3), true},
		{"reattach master", Reattach(10, 3), true},
		{"reattach to slave", Reattach(5, 5), true},
		{"reattach to unknown master", Reattach(5, 77), true},
		{"create master", CreateMaster("Third"), false},
		{"create master without name", CreateMaster(""), true},
		{"remove master", RemoveMaster(10, ReturnToDefaults), false},
		{"remove core pointer", RemoveMaster(CorePointerID, ReturnToDefaults), true},
		{"remove core keyboard", RemoveMaster(CoreKeyboardID, ReturnFloating), true},
		{"remove slave", RemoveMaster(5, ReturnFloating), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.StageChecked(tt.change)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidChange)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.Len(t, e.Pending(), 4)
}

func TestSubmitImmediate(t *testing.T) {
	env := &fakeEnv{devices: baseDevices()}
	e := NewEngine(env, Policy{Mode: ModeImmediate, RemoveReturn: ReturnFloating})
	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Submit(context.Background(), CreateMaster("Second")))
	assert.Equal(t, []string{"Second"}, env.created)
	assert.Equal(t, "VCP[Mouse0] VCK[] Second pointer[] Second keyboard[] Unassigned[]", shape(e.Tree()))
	assert.Empty(t, e.Pending())

	require.NoError(t, e.Submit(context.Background(), Reattach(5, 102)))
	assert.Equal(t, "VCP[] VCK[] Second pointer[Mouse0] Second keyboard[] Unassigned[]", shape(e.Tree()))

	require.NoError(t, e.Submit(context.Background(), RemoveMaster(103, ReturnToDefaults)))
	assert.Equal(t, []int{103}, env.removed)

	t.Run("environment failure leaves tree untouched", func(t *testing.T) {
		env.createErr = errors.New("BadValue")
		before := shape(e.Tree())
		err := e.Submit(context.Background(), CreateMaster("Third"))
		var envErr *EnvError
		require.ErrorAs(t, err, &envErr)
		assert.Equal(t, "create master", envErr.Op)
		assert.Equal(t, before, shape(e.Tree()))
	})
}

func TestSubmitStagedUsesPolicyReturnMode(t *testing.T) {
	env := &fakeEnv{devices: append(baseDevices(),
		Device{ID: 10, Name: "Second pointer", Role: RoleMasterPointer, AttachedTo: 11},
	)}
	e := NewEngine(env, Policy{Mode: ModeStaged, RemoveReturn: ReturnFloating})
	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.Submit(context.Background(), RemoveMaster(10, ReturnToDefaults)))

	pending := e.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, ReturnFloating, pending[0].Return)
	assert.Empty(t, env.removed, "staged mode must not touch the environment")
}
