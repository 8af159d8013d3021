// Package instance decides whether this process is the glint leader and,
// when it is not, forwards a command to the one that is.
package instance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hoppxi/glint/internal/protocol"
)

const (
	Name        = "glint"
	dialTimeout = 500 * time.Millisecond
	sendTimeout = 2 * time.Second
)

// ErrLocked means another process holds the instance lock.
var ErrLocked = errors.New("glint is already running")

type Paths struct {
	Dir    string
	Lock   string
	Socket string
	Log    string
}

// ResolvePaths places everything under <runtimeDir>/glint. An empty
// runtimeDir falls back to $XDG_RUNTIME_DIR, then the temp dir.
func ResolvePaths(runtimeDir string) Paths {
	if runtimeDir == "" {
		runtimeDir = os.Getenv("XDG_RUNTIME_DIR")
	}
	if runtimeDir == "" {
		runtimeDir = os.TempDir()
	}

	dir := filepath.Join(runtimeDir, Name)
	return Paths{
		Dir:    dir,
		Lock:   filepath.Join(dir, Name+".lock"),
		Socket: filepath.Join(dir, Name+".sock"),
		Log:    filepath.Join(dir, Name+".log"),
	}
}

func (p Paths) EnsureDir() error {
	if err := os.MkdirAll(p.Dir, 0o700); err != nil {
		return fmt.Errorf("create runtime dir: %w", err)
	}
	return nil
}

// Lock is an exclusive flock held for the life of the leader. The
// kernel drops it when the process exits, however it exits.
type Lock struct {
	file *os.File
}

// Acquire tries once, without waiting, to take the lock at path.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &Lock{file: f}, nil
}

// Release drops the lock early. Leaders normally never call it.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Send delivers cmd to the leader listening on socketPath. No reply is
// expected; success means the whole message was written.
func Send(ctx context.Context, socketPath string, cmd protocol.Command) error {
	data, err := cmd.Marshal()
	if err != nil {
		return err
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to running instance: %w", err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return fmt.Errorf("send %s: %w", cmd, err)
		}
	}
	return nil
}
