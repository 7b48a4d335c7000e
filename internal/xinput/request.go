package xinput

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// XI2 minor opcodes and hierarchy change types from XI2proto
const (
	xiChangeHierarchy = 43
	xiQueryVersion    = 47

	xiAddMaster    = 1
	xiRemoveMaster = 2
	xiAttachSlave  = 3
	xiDetachSlave  = 4

	xiAttachToMaster = 1
	xiFloating       = 2
)

// requester sends a list of hierarchy changes to the server in one request
type requester interface {
	ChangeHierarchy(ctx context.Context, changes []hierarchy.PendingChange) error
}

// xgbRequester talks XI2 directly to the display. xgb has no generated
// binding for the X Input extension so requests are built by hand.
type xgbRequester struct {
	display string
}

func (r *xgbRequester) ChangeHierarchy(ctx context.Context, changes []hierarchy.PendingChange) error {
	conn, err := xgb.NewConnDisplay(r.display)
	if err != nil {
		return fmt.Errorf("cannot connect to X display %q: %w", r.display, err)
	}
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		done <- sendChangeHierarchy(conn, changes)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sendChangeHierarchy(conn *xgb.Conn, changes []hierarchy.PendingChange) error {
	opcode, err := inputOpcode(conn)
	if err != nil {
		return err
	}
	// the server only accepts XI2 requests from clients that announced XI2
	if _, _, err := queryVersion(conn, opcode); err != nil {
		return err
	}
	buf, err := encodeChangeHierarchy(opcode, changes)
	if err != nil {
		return err
	}
	cookie := conn.NewCookie(true, false)
	conn.NewRequest(buf, cookie)
	if err := cookie.Check(); err != nil {
		return fmt.Errorf("XIChangeHierarchy: %w", err)
	}
	return nil
}

// inputOpcode returns the major opcode of the X Input extension
func inputOpcode(conn *xgb.Conn) (byte, error) {
	reply, err := xproto.QueryExtension(conn, uint16(len(extensionName)), extensionName).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to query %s: %w", extensionName, err)
	}
	if !reply.Present {
		return 0, errors.New("X Input extension not available")
	}
	return reply.MajorOpcode, nil
}

// queryVersion announces XI 2.0 support and returns the server's version
func queryVersion(conn *xgb.Conn, opcode byte) (int, int, error) {
	buf := make([]byte, 8)
	buf[0] = opcode
	buf[1] = xiQueryVersion
	xgb.Put16(buf[2:], 2)
	xgb.Put16(buf[4:], 2)
	xgb.Put16(buf[6:], 0)

	cookie := conn.NewCookie(true, true)
	conn.NewRequest(buf, cookie)
	reply, err := cookie.Reply()
	if err != nil {
		return 0, 0, fmt.Errorf("XIQueryVersion: %w", err)
	}
	if len(reply) < 12 {
		return 0, 0, fmt.Errorf("XIQueryVersion: short reply (%d bytes)", len(reply))
	}
	return int(xgb.Get16(reply[8:])), int(xgb.Get16(reply[10:])), nil
}

func changeSize(ch hierarchy.PendingChange) int {
	switch ch.Kind {
	case hierarchy.ChangeCreateMaster:
		return 8 + xgb.Pad(len(ch.Name))
	case hierarchy.ChangeRemoveMaster:
		return 12
	default:
		return 8
	}
}

// encodeChangeHierarchy builds an XIChangeHierarchy request carrying every
// change in order. Targets must already be resolved to real device ids.
func encodeChangeHierarchy(opcode byte, changes []hierarchy.PendingChange) ([]byte, error) {
	if len(changes) == 0 {
		return nil, errors.New("empty hierarchy change list")
	}
	if len(changes) > 0xff {
		return nil, fmt.Errorf("too many changes for one request: %d", len(changes))
	}
	size := 8
	for _, ch := range changes {
		if ch.Kind == hierarchy.ChangeCreateMaster && len(ch.Name) > 0xffff {
			return nil, fmt.Errorf("master name too long: %d bytes", len(ch.Name))
		}
		size += changeSize(ch)
	}
	if size/4 > 0xffff {
		return nil, fmt.Errorf("request too large: %d bytes", size)
	}

	buf := make([]byte, size)
	buf[0] = opcode
	buf[1] = xiChangeHierarchy
	xgb.Put16(buf[2:], uint16(size/4))
	buf[4] = byte(len(changes))

	b := 8
	for _, ch := range changes {
		n := changeSize(ch)
		entry := buf[b : b+n]
		xgb.Put16(entry[2:], uint16(n/4))
		switch {
		case ch.Kind == hierarchy.ChangeCreateMaster:
			xgb.Put16(entry, xiAddMaster)
			xgb.Put16(entry[4:], uint16(len(ch.Name)))
			entry[6] = 1 // send_core
			entry[7] = 1 // enable
			copy(entry[8:], ch.Name)
		case ch.Kind == hierarchy.ChangeRemoveMaster:
			xgb.Put16(entry, xiRemoveMaster)
			xgb.Put16(entry[4:], uint16(ch.MasterID))
			if ch.Return == hierarchy.ReturnFloating {
				entry[6] = xiFloating
			} else {
				entry[6] = xiAttachToMaster
				xgb.Put16(entry[8:], hierarchy.CorePointerID)
				xgb.Put16(entry[10:], hierarchy.CoreKeyboardID)
			}
		case ch.IsFloat():
			xgb.Put16(entry, xiDetachSlave)
			xgb.Put16(entry[4:], uint16(ch.DeviceID))
		case ch.Kind == hierarchy.ChangeReattach:
			xgb.Put16(entry, xiAttachSlave)
			xgb.Put16(entry[4:], uint16(ch.DeviceID))
			xgb.Put16(entry[6:], uint16(ch.MasterID))
		default:
			return nil, fmt.Errorf("unknown change kind %s", ch.Kind)
		}
		b += n
	}
	return buf, nil
}
