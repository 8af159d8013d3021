// Package writer is the only code that writes to the backlight. It
// follows the brightness cell and pushes the latest value to hardware.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hoppxi/glint/internal/backlight"
	"github.com/hoppxi/glint/internal/brightness"
)

var ErrReloadTimeout = errors.New("backlight reload timed out")

type Writer struct {
	device backlight.Device
	logger *slog.Logger

	// faults holds the latest health transition: an error when writes
	// start failing, nil once they succeed again.
	faults chan error

	mu   sync.Mutex
	err  error
	last uint32
	have bool
}

func New(device backlight.Device, logger *slog.Logger) *Writer {
	return &Writer{
		device: device,
		logger: logger,
		faults: make(chan error, 1),
	}
}

// Faults reports health transitions. Only the most recent one is kept.
func (w *Writer) Faults() <-chan error { return w.faults }

// Err returns the current write fault, nil when healthy.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Written returns the raw value most recently put on the hardware.
func (w *Writer) Written() (uint32, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last, w.have
}

// Run writes every value the subscription yields until ctx ends. The
// first value is skipped when it matches baseline, the level the device
// started at. Every later value is written, repeats included. A write
// that is in progress when ctx ends completes before Run returns.
func (w *Writer) Run(ctx context.Context, sub *brightness.Subscription, baseline brightness.Percent) error {
	start := backlight.ToRaw(baseline, w.device.Max())
	w.mu.Lock()
	w.last, w.have = start, true
	w.mu.Unlock()

	first := true
	for {
		percent, _, err := sub.Next(ctx)
		if err != nil {
			return nil
		}
		if first {
			first = false
			if backlight.ToRaw(percent, w.device.Max()) == start {
				continue
			}
		}
		w.write(percent)
	}
}

func (w *Writer) write(percent brightness.Percent) {
	raw := backlight.ToRaw(percent, w.device.Max())
	err := w.device.WriteValue(raw)

	w.mu.Lock()
	prev := w.err
	w.err = err
	if err == nil {
		w.last, w.have = raw, true
	} else {
		w.have = false
	}
	w.mu.Unlock()

	switch {
	case err != nil && prev == nil:
		w.logger.Error("backlight write failed", "device", w.device.Name(), "brightness", percent, "value", raw, "error", err)
		w.publish(err)
	case err != nil:
		w.logger.Debug("backlight write still failing", "brightness", percent, "error", err)
	case prev != nil:
		w.logger.Info("backlight writes recovered", "device", w.device.Name(), "brightness", percent)
		w.publish(nil)
	default:
		w.logger.Debug("backlight written", "brightness", percent, "value", raw)
	}
}

func (w *Writer) publish(err error) {
	select {
	case w.faults <- err:
	default:
		select {
		case <-w.faults:
		default:
		}
		w.faults <- err
	}
}

// Finish rereads the device and returns the level it reports. It gives
// up after timeout so a hung device cannot hold up exit.
func (w *Writer) Finish(timeout time.Duration) (float64, error) {
	done := make(chan error, 1)
	go func() { done <- w.device.Reload() }()

	select {
	case err := <-done:
		if err != nil {
			return 0, fmt.Errorf("reload %s: %w", w.device.Name(), err)
		}
		return w.device.CurrentPercent(), nil
	case <-time.After(timeout):
		return 0, ErrReloadTimeout
	}
}
