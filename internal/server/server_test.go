package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoppxi/glint/internal/brightness"
	"github.com/hoppxi/glint/internal/protocol"
	"github.com/hoppxi/glint/internal/testutil"
)

func startServer(t *testing.T, cell *brightness.Cell) (*Server, string) {
	t.Helper()
	socketPath := filepath.Join(testutil.SocketDir(t), "glint.sock")

	srv := New(socketPath, cell, testutil.Logger())
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, socketPath
}

func sendRaw(t *testing.T, socketPath string, data []byte) {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func send(t *testing.T, socketPath string, cmd protocol.Command) {
	t.Helper()
	data, err := cmd.Marshal()
	require.NoError(t, err)
	sendRaw(t, socketPath, data)
}

func waitFor(t *testing.T, cell *brightness.Cell, want brightness.Percent) {
	t.Helper()
	require.Eventually(t, func() bool { return cell.Get() == want },
		5*time.Second, 5*time.Millisecond, "brightness never reached %d (at %d)", want, cell.Get())
}

func TestIncreaseClamps(t *testing.T) {
	cell := brightness.New(90)
	_, socketPath := startServer(t, cell)

	send(t, socketPath, protocol.Command{Kind: protocol.Increase, Amount: 20})
	waitFor(t, cell, 100)
}

func TestDecreaseAndSet(t *testing.T) {
	cell := brightness.New(40)
	_, socketPath := startServer(t, cell)

	send(t, socketPath, protocol.Command{Kind: protocol.Decrease, Amount: 15})
	waitFor(t, cell, 25)

	send(t, socketPath, protocol.Command{Kind: protocol.SetAbsolute, Amount: 150})
	waitFor(t, cell, 100)

	send(t, socketPath, protocol.Command{Kind: protocol.SetAbsolute, Amount: 0})
	waitFor(t, cell, 0)
}

func TestMalformedDoesNotStopServer(t *testing.T) {
	cell := brightness.New(50)
	srv, socketPath := startServer(t, cell)

	sendRaw(t, socketPath, []byte("inc 5"))
	sendRaw(t, socketPath, []byte{0xff, 0xff, 0xff})
	sendRaw(t, socketPath, nil)

	// A client that disconnects mid-message.
	data, err := protocol.Command{Kind: protocol.Increase, Amount: 5}.Marshal()
	require.NoError(t, err)
	sendRaw(t, socketPath, data[:len(data)-1])

	require.True(t, srv.Wait(5*time.Second))
	assert.Equal(t, brightness.Percent(50), cell.Get())

	send(t, socketPath, protocol.Command{Kind: protocol.Increase, Amount: 5})
	waitFor(t, cell, 55)
}

func TestSlowClientDoesNotBlockOthers(t *testing.T) {
	cell := brightness.New(10)
	_, socketPath := startServer(t, cell)

	slow, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer slow.Close()
	_, err = slow.Write([]byte{0xa2})
	require.NoError(t, err)

	send(t, socketPath, protocol.Command{Kind: protocol.SetAbsolute, Amount: 70})
	waitFor(t, cell, 70)
}

func TestConcurrentClients(t *testing.T) {
	cell := brightness.New(0)
	_, socketPath := startServer(t, cell)

	const n = 40
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			conn, err := net.Dial("unix", socketPath)
			if err != nil {
				errs <- err
				return
			}
			err = protocol.Write(conn, protocol.Command{Kind: protocol.Increase, Amount: 1})
			conn.Close()
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	waitFor(t, cell, n)
}

func TestListenRemovesStaleSocket(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "glint.sock")

	// Simulate a leader that died without cleaning up.
	addr, err := net.ResolveUnixAddr("unix", socketPath)
	require.NoError(t, err)
	old, err := net.ListenUnix("unix", addr)
	require.NoError(t, err)
	old.SetUnlinkOnClose(false)
	require.NoError(t, old.Close())
	_, err = os.Stat(socketPath)
	require.NoError(t, err, "stale socket should still exist")

	cell := brightness.New(30)
	srv := New(socketPath, cell, testutil.Logger())
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	send(t, socketPath, protocol.Command{Kind: protocol.Increase, Amount: 5})
	waitFor(t, cell, 35)
}

func TestListenFailsOnUnremovablePath(t *testing.T) {
	dir := testutil.SocketDir(t)
	socketPath := filepath.Join(dir, "glint.sock")

	// A non-empty directory cannot be removed with os.Remove.
	require.NoError(t, os.MkdirAll(filepath.Join(socketPath, "child"), 0o755))

	srv := New(socketPath, brightness.New(0), testutil.Logger())
	assert.Error(t, srv.Listen())
}

func TestListenFailsWhenDirectoryMissing(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "missing", "glint.sock")
	srv := New(socketPath, brightness.New(0), testutil.Logger())
	assert.Error(t, srv.Listen())
}

func TestAcceptErrorsAreRetriedWithDelay(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "glint.sock")
	srv := New(socketPath, brightness.New(10), testutil.Logger())
	require.NoError(t, srv.Listen())

	var attempts atomic.Int32
	srv.accept = func() (*net.UnixConn, error) {
		attempts.Add(1)
		return nil, syscall.EMFILE
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	time.Sleep(350 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	n := attempts.Load()
	assert.GreaterOrEqual(t, n, int32(2))
	assert.LessOrEqual(t, n, int32(6))
}
