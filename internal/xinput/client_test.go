package xinput

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleList = `⎡ Virtual core pointer                    	id=2	[master pointer  (3)]
⎜   ↳ Virtual core XTEST pointer              	id=4	[slave  pointer  (2)]
⎜   ↳ Logitech USB Optical Mouse              	id=9	[slave  pointer  (2)]
⎣ Virtual core keyboard                   	id=3	[master keyboard (2)]
    ↳ Virtual core XTEST keyboard             	id=5	[slave  keyboard (3)]
    ↳ AT Translated Set 2 keyboard            	id=11	[slave  keyboard (3)]
⎡ Left hand pointer                       	id=12	[master pointer  (13)]
⎣ Left hand keyboard                      	id=13	[master keyboard (12)]
∼ Wacom Intuos Pen                        	id=14	[floating slave]
`

type fakeCommander struct {
	calls   []string
	outputs map[string]string
	fail    map[string]error
	delay   time.Duration
}

func (f *fakeCommander) Run(ctx context.Context, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.calls = append(f.calls, key)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.fail[key]; ok {
		return nil, err
	}
	return []byte(f.outputs[key]), nil
}

// fakeRequester records each request. onFail runs before a failure is
// returned so a test can model the changes the server did apply.
type fakeRequester struct {
	batches [][]hierarchy.PendingChange
	err     error
	onFail  func()
}

func (f *fakeRequester) ChangeHierarchy(ctx context.Context, changes []hierarchy.PendingChange) error {
	f.batches = append(f.batches, changes)
	if f.err != nil {
		if f.onFail != nil {
			f.onFail()
		}
		return f.err
	}
	return nil
}

func newTestClient(fc *fakeCommander, fr *fakeRequester) *Client {
	if fc.outputs == nil {
		fc.outputs = map[string]string{}
	}
	if _, ok := fc.outputs["list --short"]; !ok {
		fc.outputs["list --short"] = sampleList
	}
	if fr == nil {
		fr = &fakeRequester{}
	}
	return &Client{run: fc, request: fr, timeout: time.Second}
}

const extraMaster = `⎡ Extra pointer                           	id=15	[master pointer  (16)]
⎣ Extra keyboard                          	id=16	[master keyboard (15)]
`

func TestParseList(t *testing.T) {
	devices, err := ParseList(sampleList)
	require.NoError(t, err)
	require.Len(t, devices, 9)

	assert.Equal(t, hierarchy.Device{ID: 2, Name: "Virtual core pointer", Role: hierarchy.RoleMasterPointer, AttachedTo: 3}, devices[0])
	assert.Equal(t, hierarchy.Device{ID: 9, Name: "Logitech USB Optical Mouse", Role: hierarchy.RoleSlavePointer, AttachedTo: 2}, devices[2])
	assert.Equal(t, hierarchy.Device{ID: 11, Name: "AT Translated Set 2 keyboard", Role: hierarchy.RoleSlaveKeyboard, AttachedTo: 3}, devices[5])
	assert.Equal(t, hierarchy.Device{ID: 14, Name: "Wacom Intuos Pen", Role: hierarchy.RoleFloatingSlave}, devices[8])
}

func TestParseListErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"garbage", "something went wrong\n"},
		{"unknown use", "⎡ Thing   id=7   [weird device (2)]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseList(tt.input)
			assert.Error(t, err)
		})
	}

	devices, err := ParseList("\n\n")
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestParseServerVersion(t *testing.T) {
	major, minor, err := ParseServerVersion("xinput version 1.6.3\nXI version on server: 2.4\n")
	require.NoError(t, err)
	assert.Equal(t, 2, major)
	assert.Equal(t, 4, minor)

	_, _, err = ParseServerVersion("xinput version 1.6.3\n")
	assert.Error(t, err)
}

func TestSnapshotFeedsEngine(t *testing.T) {
	fc := &fakeCommander{}
	e := hierarchy.NewEngine(newTestClient(fc, nil), hierarchy.DefaultPolicy())

	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)

	roots := e.Tree().Roots()
	require.Len(t, roots, 5)
	last, _ := e.Tree().Node(roots[4])
	assert.True(t, last.IsUnassigned())
	assert.Len(t, last.Children, 1)
}

func TestEncodeChangeHierarchy(t *testing.T) {
	buf, err := encodeChangeHierarchy(131, []hierarchy.PendingChange{
		hierarchy.Reattach(9, 12),
		hierarchy.Float(11),
		hierarchy.CreateMaster("Right"),
		hierarchy.RemoveMaster(12, hierarchy.ReturnFloating),
		hierarchy.RemoveMaster(20, hierarchy.ReturnToDefaults),
	})
	require.NoError(t, err)

	want := []byte{
		131, 43, 16, 0, 5, 0, 0, 0,
		3, 0, 2, 0, 9, 0, 12, 0,
		4, 0, 2, 0, 11, 0, 0, 0,
		1, 0, 4, 0, 5, 0, 1, 1, 'R', 'i', 'g', 'h', 't', 0, 0, 0,
		2, 0, 3, 0, 12, 0, 2, 0, 0, 0, 0, 0,
		2, 0, 3, 0, 20, 0, 1, 0, 2, 0, 3, 0,
	}
	assert.Equal(t, want, buf)

	t.Run("empty batch", func(t *testing.T) {
		_, err := encodeChangeHierarchy(131, nil)
		assert.Error(t, err)
	})

	t.Run("too many changes", func(t *testing.T) {
		changes := make([]hierarchy.PendingChange, 256)
		for i := range changes {
			changes[i] = hierarchy.Float(9)
		}
		_, err := encodeChangeHierarchy(131, changes)
		assert.Error(t, err)
	})
}

func TestSubmitBatch(t *testing.T) {
	t.Run("sends every change in one request", func(t *testing.T) {
		fc := &fakeCommander{}
		fr := &fakeRequester{}
		c := newTestClient(fc, fr)

		changes := []hierarchy.PendingChange{
			hierarchy.Reattach(9, 12),
			hierarchy.Float(11),
			hierarchy.Reattach(14, 12),
			hierarchy.CreateMaster("Right hand"),
			hierarchy.RemoveMaster(12, hierarchy.ReturnFloating),
		}
		require.NoError(t, c.SubmitBatch(context.Background(), changes))
		assert.Equal(t, []string{"list --short"}, fc.calls)
		require.Len(t, fr.batches, 1)
		assert.Equal(t, changes, fr.batches[0])
	})

	t.Run("redirects to the paired master", func(t *testing.T) {
		fr := &fakeRequester{}
		c := newTestClient(&fakeCommander{}, fr)

		require.NoError(t, c.SubmitBatch(context.Background(), []hierarchy.PendingChange{
			hierarchy.Reattach(9, 3),
			hierarchy.Reattach(11, 12),
		}))
		require.Len(t, fr.batches, 1)
		assert.Equal(t, []hierarchy.PendingChange{
			hierarchy.Reattach(9, 2),
			hierarchy.Reattach(11, 13),
		}, fr.batches[0])
	})

	t.Run("invalid step rejects the whole batch", func(t *testing.T) {
		fr := &fakeRequester{}
		c := newTestClient(&fakeCommander{}, fr)

		err := c.SubmitBatch(context.Background(), []hierarchy.PendingChange{
			hierarchy.Reattach(9, 12),
			hierarchy.Reattach(42, 2),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRejected)
		assert.Empty(t, fr.batches, "nothing may be sent")
	})

	t.Run("core masters are protected", func(t *testing.T) {
		fr := &fakeRequester{}
		c := newTestClient(&fakeCommander{}, fr)

		err := c.SubmitBatch(context.Background(), []hierarchy.PendingChange{
			hierarchy.RemoveMaster(2, hierarchy.ReturnToDefaults),
		})
		assert.ErrorIs(t, err, ErrRejected)
		assert.Empty(t, fr.batches)
	})

	t.Run("refused request with nothing applied", func(t *testing.T) {
		fc := &fakeCommander{}
		fr := &fakeRequester{err: errors.New("BadValue")}
		c := newTestClient(fc, fr)

		err := c.SubmitBatch(context.Background(), []hierarchy.PendingChange{
			hierarchy.Reattach(9, 12),
			hierarchy.CreateMaster("Broken"),
		})

		assert.ErrorContains(t, err, "BadValue")
		var partial *hierarchy.PartialApplyError
		assert.False(t, errors.As(err, &partial))
		assert.Equal(t, []string{"list --short", "list --short"}, fc.calls, "state is read back after a failure")
	})

	t.Run("applied prefix is reported", func(t *testing.T) {
		fc := &fakeCommander{}
		fr := &fakeRequester{err: errors.New("BadDevice")}
		fr.onFail = func() { fc.outputs["list --short"] = sampleList + extraMaster }
		c := newTestClient(fc, fr)

		err := c.SubmitBatch(context.Background(), []hierarchy.PendingChange{
			hierarchy.CreateMaster("Extra"),
			hierarchy.Float(9),
		})

		var partial *hierarchy.PartialApplyError
		require.ErrorAs(t, err, &partial)
		assert.Equal(t, 1, partial.Applied)
		assert.ErrorContains(t, err, "BadDevice")
	})
}

func TestApplyAllDoesNotRepeatCommittedChanges(t *testing.T) {
	fc := &fakeCommander{}
	fr := &fakeRequester{err: errors.New("BadDevice")}
	fr.onFail = func() { fc.outputs["list --short"] = sampleList + extraMaster }
	e := hierarchy.NewEngine(newTestClient(fc, fr), hierarchy.DefaultPolicy())
	_, err := e.Reconcile(context.Background())
	require.NoError(t, err)

	e.Stage(hierarchy.CreateMaster("Extra"))
	e.Stage(hierarchy.Float(9))

	err = e.ApplyAll(context.Background())
	var partial *hierarchy.PartialApplyError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []hierarchy.PendingChange{hierarchy.Float(9)}, e.Pending())
	_, ok := e.Tree().Root(15)
	assert.True(t, ok, "the created master is in the tree")

	fr.err = nil
	require.NoError(t, e.ApplyAll(context.Background()))
	assert.Empty(t, e.Pending())

	creates := 0
	for _, batch := range fr.batches {
		for _, ch := range batch {
			if ch.Kind == hierarchy.ChangeCreateMaster {
				creates++
			}
		}
	}
	assert.Equal(t, 1, creates, "create-master must be sent once")
	require.Len(t, fr.batches, 2)
	assert.Equal(t, []hierarchy.PendingChange{hierarchy.Float(9)}, fr.batches[1])
}

func TestCommandTimeout(t *testing.T) {
	fc := &fakeCommander{delay: time.Second}
	c := newTestClient(fc, nil)
	c.timeout = 10 * time.Millisecond

	_, err := c.Snapshot(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
