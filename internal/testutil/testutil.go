// Package testutil provides shared test helpers for glint packages.
package testutil

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

// SocketDir creates a temporary directory suitable for unix sockets.
// t.TempDir paths can exceed the 108-byte sun_path limit, so this one
// lives directly in /tmp. It is removed when the test completes.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "glint-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// Logger discards everything unless GLINT_TEST_LOG is set.
func Logger() *slog.Logger {
	if os.Getenv("GLINT_TEST_LOG") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var ErrInjected = errors.New("injected write failure")

// Device is an in-memory backlight that records every write.
type Device struct {
	mu       sync.Mutex
	max      uint32
	current  uint32
	writes   []uint32
	reloads  int
	failing  bool
	delay    time.Duration
	notify   chan uint32
	DeviceID string
}

func NewDevice(max, current uint32) *Device {
	return &Device{max: max, current: current, notify: make(chan uint32, 64), DeviceID: "fake_backlight"}
}

func (d *Device) Name() string { return d.DeviceID }

func (d *Device) Max() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.max
}

func (d *Device) CurrentPercent() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return float64(d.current) / float64(d.max) * 100.0
}

func (d *Device) WriteValue(value uint32) error {
	d.mu.Lock()
	delay := d.delay
	d.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failing {
		return ErrInjected
	}
	d.current = value
	d.writes = append(d.writes, value)
	select {
	case d.notify <- value:
	default:
	}
	return nil
}

func (d *Device) Reload() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reloads++
	return nil
}

// SetFailing makes subsequent writes fail until cleared.
func (d *Device) SetFailing(failing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = failing
}

// SetDelay slows every write down by delay.
func (d *Device) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// SetCurrent simulates a change made outside glint.
func (d *Device) SetCurrent(value uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = value
}

func (d *Device) Writes() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.writes...)
}

func (d *Device) Reloads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reloads
}

// WaitWrite returns the next successful write or fails the test after
// timeout.
func (d *Device) WaitWrite(t *testing.T, timeout time.Duration) uint32 {
	t.Helper()
	select {
	case v := <-d.notify:
		return v
	case <-time.After(timeout):
		t.Fatalf("no hardware write within %v", timeout)
		return 0
	}
}
