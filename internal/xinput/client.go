package xinput

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/xhier/internal/config"
	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/bnema/xhier/internal/logger"
)

// commander runs one xinput invocation and returns its combined output
type commander interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

type execCommander struct {
	binary  string
	display string
}

func (e *execCommander) Run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Env = commandEnv(e.display)

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return output, fmt.Errorf("%s %s: %w", e.binary, strings.Join(args, " "), ctx.Err())
		}
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			return output, fmt.Errorf("%s %s: %w", e.binary, strings.Join(args, " "), err)
		}
		return output, fmt.Errorf("%s %s: %s: %w", e.binary, strings.Join(args, " "), msg, err)
	}
	return output, nil
}

// commandEnv points xinput at the right display. Under sudo the invoking
// user's X authority is reused so the server accepts the connection.
func commandEnv(display string) []string {
	env := os.Environ()
	if display != "" {
		env = append(env, "DISPLAY="+display)
	}
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" && os.Geteuid() == 0 && os.Getenv("XAUTHORITY") == "" {
		xauth := filepath.Join("/home", sudoUser, ".Xauthority")
		if _, err := os.Stat(xauth); err == nil {
			logger.Debugf("Using XAUTHORITY=%s for sudo session", xauth)
			env = append(env, "XAUTHORITY="+xauth)
		}
	}
	return env
}

// Options configures a Client
type Options struct {
	Binary  string
	Display string
	Timeout time.Duration
}

// Client implements hierarchy.Environment. Devices are listed with the
// xinput utility and changes go to the server as XI2 requests.
type Client struct {
	run     commander
	request requester
	timeout time.Duration
}

// New creates a client that shells out to xinput
func New(opts Options) *Client {
	if opts.Binary == "" {
		opts.Binary = "xinput"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Client{
		run:     &execCommander{binary: opts.Binary, display: opts.Display},
		request: &xgbRequester{display: opts.Display},
		timeout: opts.Timeout,
	}
}

// NewFromConfig creates a client from the [xinput] config section
func NewFromConfig(c config.XInputConfig) *Client {
	return New(Options{Binary: c.Binary, Display: c.Display, Timeout: c.Timeout})
}

func (c *Client) exec(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	logger.Debugf("xinput %s", strings.Join(args, " "))
	return c.run.Run(ctx, args...)
}

// Snapshot lists every device in one xinput call
func (c *Client) Snapshot(ctx context.Context) ([]hierarchy.Device, error) {
	out, err := c.exec(ctx, "list", "--short")
	if err != nil {
		return nil, err
	}
	return ParseList(string(out))
}

// CreateMaster adds a master pair named name
func (c *Client) CreateMaster(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("empty master name")
	}
	return c.change(ctx, []hierarchy.PendingChange{hierarchy.CreateMaster(name)})
}

// RemoveMaster removes the master pair containing id
func (c *Client) RemoveMaster(ctx context.Context, id int, mode hierarchy.ReturnMode) error {
	if id == hierarchy.CorePointerID || id == hierarchy.CoreKeyboardID {
		return fmt.Errorf("core master %d cannot be removed", id)
	}
	return c.change(ctx, []hierarchy.PendingChange{hierarchy.RemoveMaster(id, mode)})
}

func (c *Client) change(ctx context.Context, changes []hierarchy.PendingChange) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	for _, ch := range changes {
		logger.Debugf("XIChangeHierarchy %s", ch)
	}
	return c.request.ChangeHierarchy(ctx, changes)
}

// ErrRejected marks a batch refused before anything was sent
var ErrRejected = errors.New("batch rejected")

// SubmitBatch sends all changes to the server in one XIChangeHierarchy
// request. The batch is checked against a fresh snapshot first so an
// invalid change stops it before anything is sent. The server handles the
// changes in order and stops at the first one it refuses, so after a
// failure the hierarchy is read back and a *hierarchy.PartialApplyError
// reports the changes that did take effect.
func (c *Client) SubmitBatch(ctx context.Context, changes []hierarchy.PendingChange) error {
	if len(changes) == 0 {
		return nil
	}
	devices, err := c.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot before batch: %w", err)
	}
	byID := indexDevices(devices)

	planned := make([]hierarchy.PendingChange, len(changes))
	for i, ch := range changes {
		p, err := planChange(byID, ch)
		if err != nil {
			return fmt.Errorf("%w: step %d (%s): %v", ErrRejected, i+1, ch, err)
		}
		planned[i] = p
	}

	err = c.change(ctx, planned)
	if err == nil {
		return nil
	}
	applied, serr := c.appliedPrefix(context.WithoutCancel(ctx), devices, planned)
	if serr != nil {
		logger.Warnf("cannot tell how much of the batch applied: %v", serr)
		return fmt.Errorf("%w (hierarchy state unknown: %v)", err, serr)
	}
	if applied > 0 {
		return &hierarchy.PartialApplyError{Applied: applied, Err: err}
	}
	return err
}

// appliedPrefix counts how many leading changes are visible in a fresh
// snapshot. The server stops at the first refused change so the applied
// changes always form a prefix.
func (c *Client) appliedPrefix(ctx context.Context, before []hierarchy.Device, planned []hierarchy.PendingChange) (int, error) {
	after, err := c.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	byID := indexDevices(after)
	created := make(map[string]int)
	for _, d := range after {
		if d.Role == hierarchy.RoleMasterPointer {
			created[d.Name]++
		}
	}
	for _, d := range before {
		if d.Role == hierarchy.RoleMasterPointer {
			created[d.Name]--
		}
	}

	for i, ch := range planned {
		switch ch.Kind {
		case hierarchy.ChangeCreateMaster:
			name := ch.Name + " pointer"
			if created[name] <= 0 {
				return i, nil
			}
			created[name]--
		case hierarchy.ChangeRemoveMaster:
			if _, ok := byID[ch.MasterID]; ok {
				return i, nil
			}
		default:
			dev, ok := byID[ch.DeviceID]
			if !ok {
				return i, nil
			}
			if ch.IsFloat() && dev.Role != hierarchy.RoleFloatingSlave {
				return i, nil
			}
			if !ch.IsFloat() && (dev.Role == hierarchy.RoleFloatingSlave || dev.AttachedTo != ch.MasterID) {
				return i, nil
			}
		}
	}
	return len(planned), nil
}

func indexDevices(devices []hierarchy.Device) map[int]hierarchy.Device {
	byID := make(map[int]hierarchy.Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}
	return byID
}

// planChange checks ch against the current devices and resolves the real
// attach target
func planChange(byID map[int]hierarchy.Device, ch hierarchy.PendingChange) (hierarchy.PendingChange, error) {
	switch ch.Kind {
	case hierarchy.ChangeReattach:
		dev, ok := byID[ch.DeviceID]
		if !ok {
			return ch, fmt.Errorf("device %d no longer exists", ch.DeviceID)
		}
		if dev.Role.IsMaster() {
			return ch, fmt.Errorf("device %d is a master", ch.DeviceID)
		}
		if ch.IsFloat() {
			return ch, nil
		}
		master, ok := byID[ch.MasterID]
		if !ok || !master.Role.IsMaster() {
			return ch, fmt.Errorf("master %d no longer exists", ch.MasterID)
		}
		return hierarchy.Reattach(dev.ID, pairedMaster(byID, dev, master)), nil
	case hierarchy.ChangeCreateMaster:
		if ch.Name == "" {
			return ch, errors.New("empty master name")
		}
		return ch, nil
	case hierarchy.ChangeRemoveMaster:
		master, ok := byID[ch.MasterID]
		if !ok || !master.Role.IsMaster() {
			return ch, fmt.Errorf("master %d no longer exists", ch.MasterID)
		}
		if ch.MasterID == hierarchy.CorePointerID || ch.MasterID == hierarchy.CoreKeyboardID {
			return ch, fmt.Errorf("core master %d cannot be removed", ch.MasterID)
		}
		return ch, nil
	default:
		return ch, fmt.Errorf("unknown change kind %s", ch.Kind)
	}
}

// pairedMaster returns the master of the slave's own kind. The server only
// attaches pointers to master pointers and keyboards to master keyboards,
// so a drop on the other half of a pair is redirected to its partner.
func pairedMaster(byID map[int]hierarchy.Device, slave, master hierarchy.Device) int {
	wantPointer := slave.Role == hierarchy.RoleSlavePointer
	wantKeyboard := slave.Role == hierarchy.RoleSlaveKeyboard
	if wantPointer && master.Role == hierarchy.RoleMasterKeyboard ||
		wantKeyboard && master.Role == hierarchy.RoleMasterPointer {
		if partner, ok := byID[master.AttachedTo]; ok && partner.Role.IsMaster() {
			return partner.ID
		}
	}
	return master.ID
}

var _ hierarchy.Environment = (*Client)(nil)
