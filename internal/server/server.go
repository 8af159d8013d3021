// Package server accepts commands from other glint invocations over a
// unix socket and applies them to the leader's brightness cell.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hoppxi/glint/internal/brightness"
	"github.com/hoppxi/glint/internal/protocol"
)

// readTimeout bounds how long a client may take to send its command.
// Clients write immediately after connecting.
const readTimeout = 5 * time.Second

// acceptRetryDelay is the pause after a failed accept, so a persistent
// error such as EMFILE does not spin.
const acceptRetryDelay = 100 * time.Millisecond

// Server is fire-and-forget: it never writes back to a client. Each
// connection carries one command and is handled on its own goroutine.
type Server struct {
	socketPath string
	cell       *brightness.Cell
	logger     *slog.Logger

	listener *net.UnixListener
	accept   func() (*net.UnixConn, error)
	active   sync.WaitGroup
}

func New(socketPath string, cell *brightness.Cell, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		cell:       cell,
		logger:     logger,
	}
}

// Listen removes any socket left behind by a previous leader and binds.
// Callers must hold the instance lock, so anything at the path is stale.
func (s *Server) Listen() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	addr, err := net.ResolveUnixAddr("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", s.socketPath, err)
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	s.listener = listener

	s.logger.Info("command server listening", "path", s.socketPath)
	return nil
}

func (s *Server) Path() string { return s.socketPath }

// Serve accepts connections until ctx is cancelled. Per-connection
// failures are logged and never end the loop. Serve does not wait for
// in-flight connections; Wait does.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	listener := s.listener
	defer listener.Close()

	accept := s.accept
	if accept == nil {
		accept = listener.AcceptUnix
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(conn)
		}()
	}
}

// Wait blocks until in-flight connections finish or timeout passes.
// It reports whether they all finished.
func (s *Server) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Server) handleConnection(conn *net.UnixConn) {
	defer conn.Close()

	logger := s.logger.With("conn", uuid.NewString())
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	cmd, err := protocol.Read(conn)
	if err != nil {
		logger.Warn("discarding command", "error", err)
		return
	}

	value, err := cmd.Apply(s.cell)
	if err != nil {
		logger.Warn("discarding command", "command", cmd.String(), "error", err)
		return
	}
	logger.Debug("applied command", "command", cmd.String(), "brightness", value)
}
