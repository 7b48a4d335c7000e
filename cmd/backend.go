package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/xhier/internal/config"
	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/bnema/xhier/internal/ipc"
	"github.com/bnema/xhier/internal/logger"
	"github.com/bnema/xhier/internal/session"
	"github.com/bnema/xhier/internal/ui"
	"github.com/bnema/xhier/internal/xinput"
)

// backend is what commands drive: the daemon over IPC or a local session
type backend interface {
	ui.Editor
	ui.HealthReporter
	Stage(ctx context.Context, c hierarchy.PendingChange) error
}

// policyFromConfig builds the engine policy from the config strings
func policyFromConfig(c config.EngineConfig) (hierarchy.Policy, error) {
	mode, err := hierarchy.ParseMode(c.Mode)
	if err != nil {
		return hierarchy.Policy{}, err
	}
	ret, err := hierarchy.ParseReturnMode(c.RemoveReturn)
	if err != nil {
		return hierarchy.Policy{}, err
	}
	return hierarchy.Policy{Mode: mode, RemoveReturn: ret}, nil
}

// newLocalSession wires xinput, the engine and a session and loads the
// current hierarchy
func newLocalSession(ctx context.Context) (*session.Session, error) {
	cfg := config.Get()
	policy, err := policyFromConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}
	engine := hierarchy.NewEngine(xinput.NewFromConfig(cfg.XInput), policy)
	s := session.New(engine, cfg.Engine.RefreshInterval)
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// connect prefers a running daemon so edits land in its shared queue and
// falls back to a private session otherwise
func connect(ctx context.Context) (backend, bool, error) {
	client := ipc.NewClient(config.SocketPath())
	if client.IsRunning(ctx) {
		logger.Debugf("Using daemon at %s", config.SocketPath())
		return client, true, nil
	}
	s, err := newLocalSession(ctx)
	if err != nil {
		return nil, false, err
	}
	return s, false, nil
}

// daemon returns a client for commands that only make sense against the
// shared queue of a running daemon
func daemon(ctx context.Context) (*ipc.Client, error) {
	client := ipc.NewClient(config.SocketPath())
	if _, err := client.View(ctx); err != nil {
		if errors.Is(err, ipc.ErrNotRunning) {
			return nil, fmt.Errorf("%w: start it with 'xhier serve'", err)
		}
		return nil, err
	}
	return client, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
