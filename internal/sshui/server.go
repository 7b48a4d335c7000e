// Package sshui serves the hierarchy editor over SSH so a second seat can
// rearrange devices without a local terminal.
package sshui

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bnema/xhier/internal/config"
	"github.com/bnema/xhier/internal/logger"
	"github.com/bnema/xhier/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	bm "github.com/charmbracelet/wish/bubbletea"
	gossh "golang.org/x/crypto/ssh"
)

// Server hosts one editor per SSH session, all sharing the same editor
// backend
type Server struct {
	addr         string
	hostKeyPath  string
	authKeysPath string
	editor       ui.Editor
	keys         *KeySet

	sshServer *ssh.Server
	listener  net.Listener

	mu       sync.Mutex
	sessions map[string]string // session id -> remote addr

	stopOnce sync.Once
	wg       sync.WaitGroup

	OnSessionStart func(addr, fingerprint string)
	OnSessionEnd   func(addr string)
}

// NewServer creates an SSH editor server for the given backend
func NewServer(cfg config.SSHConfig, editor ui.Editor) *Server {
	return &Server{
		addr:         cfg.Listen,
		hostKeyPath:  cfg.HostKeyPath,
		authKeysPath: cfg.AuthorizedKeysPath,
		editor:       editor,
		sessions:     make(map[string]string),
	}
}

// SetKeys replaces the authorized key set, mostly useful in tests
func (s *Server) SetKeys(keys *KeySet) {
	s.keys = keys
}

// Start loads the authorized keys and begins listening
func (s *Server) Start(ctx context.Context) error {
	if s.keys == nil {
		keys, err := LoadAuthorizedKeys(s.authKeysPath)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return fmt.Errorf("no keys in %s, refusing to serve without authentication", s.authKeysPath)
		}
		s.keys = NewKeySet(keys)
	}

	server, err := wish.NewServer(
		wish.WithAddress(s.addr),
		wish.WithHostKeyPath(s.hostKeyPath),
		wish.WithPublicKeyAuth(s.publicKeyAuth),
		wish.WithMiddleware(
			bm.Middleware(s.teaHandler),
			activeterm.Middleware(),
			s.trackingMiddleware(),
			s.loggingMiddleware(),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create SSH server: %w", err)
	}
	s.sshServer = server

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Infof("SSH editor listening on %s (%d authorized keys)", ln.Addr(), s.keys.Len())
		if err := server.Serve(ln); err != nil && !errors.Is(err, ssh.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
			logger.Errorf("SSH server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts the server down and waits for the listener to exit
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.sshServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.sshServer.Shutdown(ctx); err != nil {
				logger.Warnf("SSH shutdown: %v", err)
				_ = s.sshServer.Close()
			}
		}
		// Serve may not have registered the listener yet
		if s.listener != nil {
			_ = s.listener.Close()
		}
		s.wg.Wait()
	})
}

// Sessions returns the remote addresses of active sessions
func (s *Server) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]string, 0, len(s.sessions))
	for _, addr := range s.sessions {
		addrs = append(addrs, addr)
	}
	return addrs
}

func (s *Server) publicKeyAuth(ctx ssh.Context, key ssh.PublicKey) bool {
	fingerprint := gossh.FingerprintSHA256(key)
	comment, ok := s.keys.Allowed(key)
	if !ok {
		logger.Warnf("SSH key rejected addr=%s user=%s key=%s", ctx.RemoteAddr(), ctx.User(), fingerprint)
		return false
	}
	logger.Infof("SSH key accepted addr=%s user=%s key=%s (%s)", ctx.RemoteAddr(), ctx.User(), fingerprint, comment)
	return true
}

func (s *Server) teaHandler(sess ssh.Session) (tea.Model, []tea.ProgramOption) {
	m := ui.NewModel(sess.Context(), s.editor, ui.Options{
		Title: fmt.Sprintf("xhier · %s", sess.User()),
	})
	context.AfterFunc(sess.Context(), m.Close)
	return m, []tea.ProgramOption{tea.WithAltScreen()}
}

// trackingMiddleware records active sessions
func (s *Server) trackingMiddleware() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			id := sess.Context().SessionID()
			addr := sess.RemoteAddr().String()
			var fingerprint string
			if sess.PublicKey() != nil {
				fingerprint = gossh.FingerprintSHA256(sess.PublicKey())
			}

			s.mu.Lock()
			s.sessions[id] = addr
			s.mu.Unlock()
			if s.OnSessionStart != nil {
				s.OnSessionStart(addr, fingerprint)
			}

			defer func() {
				s.mu.Lock()
				delete(s.sessions, id)
				s.mu.Unlock()
				if s.OnSessionEnd != nil {
					s.OnSessionEnd(addr)
				}
			}()

			h(sess)
		}
	}
}

func (s *Server) loggingMiddleware() wish.Middleware {
	return func(h ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			start := time.Now()
			logger.Debugf("SSH session started: user=%s addr=%s", sess.User(), sess.RemoteAddr())
			h(sess)
			logger.Debugf("SSH session ended: addr=%s after %s", sess.RemoteAddr(), time.Since(start).Round(time.Second))
		}
	}
}
