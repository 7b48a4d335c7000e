// Package session shares one hierarchy engine between the refresh loop, the
// IPC socket and remote editors
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/bnema/xhier/internal/logger"
)

const defaultRefreshInterval = 2 * time.Second

// Health reports how the background refresh is doing
type Health struct {
	LastRefresh         time.Time
	LastError           error
	ConsecutiveFailures int
}

// Offline reports whether the display has been unreachable for several polls
func (h Health) Offline() bool {
	return h.ConsecutiveFailures >= 2
}

// Status is a one-line summary for status bars
func (h Health) Status() string {
	switch {
	case h.Offline():
		return fmt.Sprintf("display offline (%d failed refreshes): %v", h.ConsecutiveFailures, h.LastError)
	case h.LastError != nil:
		return fmt.Sprintf("last refresh failed: %v", h.LastError)
	case h.LastRefresh.IsZero():
		return "not refreshed yet"
	default:
		return "ok"
	}
}

// Session serializes access to an engine. Every method is safe for
// concurrent use.
type Session struct {
	mu       sync.Mutex
	engine   *hierarchy.Engine
	interval time.Duration
	health   Health

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// New wraps engine. interval is the background refresh cadence.
func New(engine *hierarchy.Engine, interval time.Duration) *Session {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	return &Session{
		engine:   engine,
		interval: interval,
		subs:     make(map[int]chan struct{}),
	}
}

// Run refreshes the hierarchy at a fixed cadence until ctx is done
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("hierarchy refresh failed: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Start launches Run in the background and returns immediately
func (s *Session) Start(ctx context.Context) {
	go s.Run(ctx)
}

// View returns a detached copy of the engine state
func (s *Session) View(ctx context.Context) (hierarchy.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.View(), nil
}

// Health returns the refresh status
func (s *Session) Health() Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// Refresh reconciles against the live hierarchy
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	stats, err := s.engine.Reconcile(ctx)
	s.record(err)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if stats.Changed() {
		logger.Debugf("hierarchy changed: %s", stats)
		s.notify()
	}
	return nil
}

// Submit routes a change through the engine policy
func (s *Session) Submit(ctx context.Context, c hierarchy.PendingChange) error {
	return s.mutate(func() error { return s.engine.Submit(ctx, c) })
}

// Stage validates and queues a change regardless of the policy mode
func (s *Session) Stage(ctx context.Context, c hierarchy.PendingChange) error {
	return s.mutate(func() error { return s.engine.StageChecked(c) })
}

// Apply submits the pending queue as one batch
func (s *Session) Apply(ctx context.Context) error {
	return s.mutate(func() error { return s.engine.ApplyAll(ctx) })
}

// Cancel drops the pending queue and refreshes
func (s *Session) Cancel(ctx context.Context) error {
	return s.mutate(func() error { return s.engine.CancelAll(ctx) })
}

func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	err := fn()
	s.mu.Unlock()
	s.notify()
	return err
}

func (s *Session) record(err error) {
	s.health.LastRefresh = time.Now()
	if err != nil {
		s.health.LastError = err
		s.health.ConsecutiveFailures++
		return
	}
	s.health.LastError = nil
	s.health.ConsecutiveFailures = 0
}

// Subscribe returns a channel that receives a value whenever the view may
// have changed. Notifications coalesce; call the returned func to stop.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan struct{}, 1)
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
