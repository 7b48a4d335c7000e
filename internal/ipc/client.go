package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/bnema/xhier/internal/logger"
	"github.com/bnema/xhier/internal/session"
	"github.com/google/uuid"
)

// ErrNotRunning is returned when no daemon listens on the socket
var ErrNotRunning = errors.New("xhier daemon is not running")

// RemoteError is an error reported by the daemon
type RemoteError struct {
	Op  Op
	Msg string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Client talks to a running daemon. It satisfies the same surface as the
// daemon session so the editor can drive either.
type Client struct {
	socketPath string
	timeout    time.Duration

	mu     sync.Mutex
	last   *hierarchy.View
	health session.Health
}

// NewClient creates a new IPC client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second,
	}
}

// NewClientWithTimeout creates a new IPC client with custom timeout
func NewClientWithTimeout(socketPath string, timeout time.Duration) *Client {
	c := NewClient(socketPath)
	c.timeout = timeout
	return c
}

// View fetches the current view
func (c *Client) View(ctx context.Context) (hierarchy.View, error) {
	if err := c.call(ctx, NewRequest(uuid.NewString(), OpView)); err != nil {
		return hierarchy.View{}, err
	}
	v, _ := c.LastView()
	return v, nil
}

// LastView returns the view that came back with the most recent call
func (c *Client) LastView() (hierarchy.View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return hierarchy.View{}, false
	}
	return *c.last, true
}

// Health returns the daemon's refresh health as of the most recent call
func (c *Client) Health() session.Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.health
}

// FetchHealth asks the daemon for its refresh health
func (c *Client) FetchHealth(ctx context.Context) (session.Health, error) {
	if err := c.call(ctx, NewRequest(uuid.NewString(), OpHealth)); err != nil {
		return session.Health{}, err
	}
	return c.Health(), nil
}

// Refresh asks the daemon to reconcile now
func (c *Client) Refresh(ctx context.Context) error {
	return c.call(ctx, NewRequest(uuid.NewString(), OpRefresh))
}

// Submit sends a change through the daemon policy
func (c *Client) Submit(ctx context.Context, ch hierarchy.PendingChange) error {
	return c.call(ctx, NewChangeRequest(uuid.NewString(), OpSubmit, ch))
}

// Stage queues a change on the daemon
func (c *Client) Stage(ctx context.Context, ch hierarchy.PendingChange) error {
	return c.call(ctx, NewChangeRequest(uuid.NewString(), OpStage, ch))
}

// Apply commits the daemon's pending queue
func (c *Client) Apply(ctx context.Context) error {
	return c.call(ctx, NewRequest(uuid.NewString(), OpApply))
}

// Cancel drops the daemon's pending queue
func (c *Client) Cancel(ctx context.Context) error {
	return c.call(ctx, NewRequest(uuid.NewString(), OpCancel))
}

// IsRunning checks whether a daemon answers on the socket
func (c *Client) IsRunning(ctx context.Context) bool {
	_, err := c.View(ctx)
	return err == nil
}

func (c *Client) call(ctx context.Context, req Request) error {
	resp, err := c.sendMessage(ctx, req)
	if err != nil {
		return err
	}
	if resp.ID != req.ID {
		return fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	c.mu.Lock()
	if resp.View != nil {
		c.last = resp.View
	}
	if resp.Health != nil {
		c.health = *resp.Health
	}
	haveView := c.last != nil
	c.mu.Unlock()

	if resp.Error != "" {
		return &RemoteError{Op: req.Op, Msg: resp.Error}
	}
	if !haveView {
		return fmt.Errorf("%s: daemon returned no view", req.Op)
	}
	return nil
}

// sendMessage sends a request and returns the response
func (c *Client) sendMessage(ctx context.Context, req Request) (Response, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		if isConnectionRefused(err) {
			return Response{}, ErrNotRunning
		}
		return Response{}, fmt.Errorf("failed to connect to xhier: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close IPC connection: %v", err)
		}
	}()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}

	msg, err := EncodeRequest(req)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode request: %w", err)
	}
	if err := writeFrame(conn, msg); err != nil {
		return Response{}, fmt.Errorf("failed to send message: %w", err)
	}

	frame, err := readFrame(conn)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read response: %w", err)
	}
	return DecodeResponse(frame)
}

// isConnectionRefused checks if the error is a dial failure
func isConnectionRefused(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return netErr.Op == "dial"
	}
	return false
}
