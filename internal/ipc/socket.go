package ipc

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/bnema/xhier/internal/hierarchy"
	"github.com/bnema/xhier/internal/logger"
	"github.com/bnema/xhier/internal/session"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxFrameSize bounds a single frame so a bad length prefix cannot make the
// reader allocate without limit
const maxFrameSize = 16 << 20

// MessageHandler is the engine surface exposed over the socket
type MessageHandler interface {
	View(ctx context.Context) (hierarchy.View, error)
	Refresh(ctx context.Context) error
	Submit(ctx context.Context, c hierarchy.PendingChange) error
	Stage(ctx context.Context, c hierarchy.PendingChange) error
	Apply(ctx context.Context) error
	Cancel(ctx context.Context) error
	Health() session.Health
}

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    MessageHandler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer creates a new socket server listening on socketPath
func NewSocketServer(socketPath string, handler MessageHandler) *SocketServer {
	return &SocketServer{
		socketPath: socketPath,
		handler:    handler,
	}
}

// Path returns the socket location
func (s *SocketServer) Path() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Set socket permissions (user only)
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop stops the socket server
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	if s.cancel != nil {
		s.cancel()
	}

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	os.RemoveAll(s.socketPath)

	logger.Info("IPC socket server stopped")
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Errorf("Failed to accept connection: %v", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// unblock the read below when the server stops
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	logger.Debug("New IPC connection established")

	for {
		msg, err := readFrame(conn)
		if err != nil {
			logger.Debugf("Connection closed or read error: %v", err)
			return
		}

		response := s.handleMessage(ctx, msg)
		out, err := EncodeResponse(response)
		if err != nil {
			logger.Errorf("Failed to encode response: %v", err)
			return
		}
		if err := writeFrame(conn, out); err != nil {
			logger.Errorf("Failed to send response: %v", err)
			return
		}
	}
}

// handleMessage runs one request and returns the view after it
func (s *SocketServer) handleMessage(ctx context.Context, msg *structpb.Struct) Response {
	req, err := DecodeRequest(msg)
	if err != nil {
		return NewErrorResponse(req.ID, fmt.Sprintf("Invalid request: %v", err))
	}
	logger.Debugf("IPC request %s op=%s", req.ID, req.Op)

	switch req.Op {
	case OpView:
	case OpRefresh:
		err = s.handler.Refresh(ctx)
	case OpSubmit, OpStage:
		if req.Change == nil {
			return NewErrorResponse(req.ID, fmt.Sprintf("%s needs a change", req.Op))
		}
		if req.Op == OpSubmit {
			err = s.handler.Submit(ctx, *req.Change)
		} else {
			err = s.handler.Stage(ctx, *req.Change)
		}
	case OpApply:
		err = s.handler.Apply(ctx)
	case OpCancel:
		err = s.handler.Cancel(ctx)
	case OpHealth:
	default:
		return NewErrorResponse(req.ID, fmt.Sprintf("Unknown op: %s", req.Op))
	}

	resp := Response{ID: req.ID}
	if err != nil {
		resp.Error = err.Error()
	}
	// the view is returned on failure too so callers see the untouched queue
	if view, verr := s.handler.View(ctx); verr == nil {
		resp.View = &view
	}
	health := s.handler.Health()
	resp.Health = &health
	return resp
}

// readFrame reads one length-prefixed protobuf Struct
func readFrame(r io.Reader) (*structpb.Struct, error) {
	// Read message length (4 bytes, big endian)
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > maxFrameSize {
		return nil, fmt.Errorf("message too large: %d bytes", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}

	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// writeFrame writes one length-prefixed protobuf Struct
func writeFrame(w io.Writer, msg *structpb.Struct) error {
	data, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	length := uint32(len(data)) //nolint:gosec // bounded by maxFrameSize on the read side
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message data: %w", err)
	}

	return nil
}
