package hierarchy

import "fmt"

// ChangeKind tags the variant held by a PendingChange
type ChangeKind int

const (
	ChangeReattach ChangeKind = iota
	ChangeCreateMaster
	ChangeRemoveMaster
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeReattach:
		return "reattach"
	case ChangeCreateMaster:
		return "create-master"
	case ChangeRemoveMaster:
		return "remove-master"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

// PendingChange is one structural operation waiting to be applied.
//
// Reattach uses DeviceID and MasterID; a MasterID of UnassignedID floats the
// device. CreateMaster uses Name. RemoveMaster uses MasterID and Return.
type PendingChange struct {
	Kind     ChangeKind
	DeviceID int
	MasterID int
	Name     string
	Return   ReturnMode
}

// Reattach moves a slave under another master
func Reattach(deviceID, masterID int) PendingChange {
	return PendingChange{Kind: ChangeReattach, DeviceID: deviceID, MasterID: masterID}
}

// Float detaches a slave from its master
func Float(deviceID int) PendingChange {
	return Reattach(deviceID, UnassignedID)
}

// CreateMaster adds a new master pointer/keyboard pair
func CreateMaster(name string) PendingChange {
	return PendingChange{Kind: ChangeCreateMaster, Name: name}
}

// RemoveMaster deletes a master pair; its slaves go where mode says
func RemoveMaster(masterID int, mode ReturnMode) PendingChange {
	return PendingChange{Kind: ChangeRemoveMaster, MasterID: masterID, Return: mode}
}

// IsFloat reports whether a reattach targets the Unassigned root
func (c PendingChange) IsFloat() bool {
	return c.Kind == ChangeReattach && c.MasterID == UnassignedID
}

func (c PendingChange) String() string {
	switch c.Kind {
	case ChangeReattach:
		if c.IsFloat() {
			return fmt.Sprintf("float %d", c.DeviceID)
		}
		return fmt.Sprintf("reattach %d -> %d", c.DeviceID, c.MasterID)
	case ChangeCreateMaster:
		return fmt.Sprintf("create-master %q", c.Name)
	case ChangeRemoveMaster:
		return fmt.Sprintf("remove-master %d (%s)", c.MasterID, c.Return)
	default:
		return c.Kind.String()
	}
}

// Queue is the ordered list of staged changes. Order is apply order.
type Queue struct {
	changes []PendingChange
}

// Push appends a change
func (q *Queue) Push(c PendingChange) {
	q.changes = append(q.changes, c)
}

// Len returns the number of staged changes
func (q *Queue) Len() int {
	return len(q.changes)
}

// Empty reports whether nothing is staged
func (q *Queue) Empty() bool {
	return len(q.changes) == 0
}

// Changes returns a copy of the staged changes
func (q *Queue) Changes() []PendingChange {
	if len(q.changes) == 0 {
		return nil
	}
	out := make([]PendingChange, len(q.changes))
	copy(out, q.changes)
	return out
}

// DropFront removes the first n changes
func (q *Queue) DropFront(n int) {
	if n >= len(q.changes) {
		q.changes = nil
		return
	}
	if n > 0 {
		q.changes = append([]PendingChange(nil), q.changes[n:]...)
	}
}

// Clear drops every staged change
func (q *Queue) Clear() {
	q.changes = nil
}
