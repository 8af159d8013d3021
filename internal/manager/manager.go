// Package manager runs the leader: it owns the brightness cell and the
// background workers that serve it for the life of the process.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ncruces/zenity"
	"vawter.tech/stopper"

	"github.com/hoppxi/glint/internal/backlight"
	"github.com/hoppxi/glint/internal/brightness"
	"github.com/hoppxi/glint/internal/instance"
	"github.com/hoppxi/glint/internal/server"
	"github.com/hoppxi/glint/internal/subscribe"
	"github.com/hoppxi/glint/internal/watchers"
	"github.com/hoppxi/glint/internal/writer"
)

// watcherRestartDelay is how long a panicked watcher waits before
// starting again.
const watcherRestartDelay = 2 * time.Second

// Steps are the deltas the control surface applies per key press.
type Steps struct {
	Step     int
	PageStep int
}

type Leader struct {
	cfg    Config
	device backlight.Device
	logger *slog.Logger

	cell    *brightness.Cell
	initial brightness.Percent
	writer  *writer.Writer
	server  *server.Server
	eww     *watchers.Eww
	steps   atomic.Pointer[Steps]

	// faults carries writer health to the control surface, latest only.
	faults chan error
	notify func(text string) error

	mu      sync.Mutex
	sctx    *stopper.Context
	started bool
}

// NewLeader builds the leader around an opened device. The cell starts
// at the level the hardware reports.
func NewLeader(cfg Config, paths instance.Paths, device backlight.Device, logger *slog.Logger) *Leader {
	cell := brightness.New(int(math.Round(device.CurrentPercent())))

	l := &Leader{
		cfg:     cfg,
		device:  device,
		logger:  logger,
		cell:    cell,
		initial: cell.Get(),
		writer:  writer.New(device, logger.With("component", "writer")),
		server:  server.New(paths.Socket, cell, logger.With("component", "server")),
		eww: watchers.NewEww(watchers.EwwSettings{
			Variable:      cfg.Eww.Variable,
			OSDVariable:   cfg.Eww.OSDVariable,
			OSDTimeout:    cfg.Eww.OSDTimeout,
			FaultVariable: cfg.Eww.FaultVariable,
		}),
		faults: make(chan error, 1),
		notify: func(text string) error {
			return zenity.Notify(text, zenity.Title("glint"), zenity.ErrorIcon)
		},
	}
	l.steps.Store(&Steps{Step: cfg.Step, PageStep: cfg.PageStep})
	watchers.SetLogger(logger.With("component", "watchers"))
	return l
}

func (l *Leader) Cell() *brightness.Cell { return l.cell }

func (l *Leader) Steps() Steps { return *l.steps.Load() }

func (l *Leader) Device() backlight.Device { return l.device }

// Faults reports hardware write failures (nil on recovery).
func (l *Leader) Faults() <-chan error { return l.faults }

// WriterErr is the current hardware write fault, nil when healthy.
func (l *Leader) WriterErr() error { return l.writer.Err() }

// Reconfigure applies the settings that may change while running.
func (l *Leader) Reconfigure(cfg Config) {
	l.steps.Store(&Steps{Step: cfg.Step, PageStep: cfg.PageStep})
	l.eww.SetSettings(watchers.EwwSettings{
		Variable:      cfg.Eww.Variable,
		OSDVariable:   cfg.Eww.OSDVariable,
		OSDTimeout:    cfg.Eww.OSDTimeout,
		FaultVariable: cfg.Eww.FaultVariable,
	})
	l.logger.Info("config reloaded", "step", cfg.Step, "page_step", cfg.PageStep)
}

// Start binds the command socket and launches the workers. A bind
// failure is returned before anything else starts: the lock holder must
// also own the socket.
func (l *Leader) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return errors.New("leader already started")
	}

	if err := l.server.Listen(); err != nil {
		return err
	}

	sctx := stopper.WithContext(ctx)
	l.sctx = sctx
	l.started = true

	// The baseline is what the hardware showed at startup, so a change
	// made to the cell before Start still reaches the device.
	sub := l.cell.Subscribe()
	sctx.Go(func(sctx *stopper.Context) error {
		return l.writer.Run(stoppingContext(sctx), sub, l.initial)
	})
	sctx.Go(func(sctx *stopper.Context) error {
		err := l.server.Serve(stoppingContext(sctx))
		if !l.server.Wait(l.cfg.ShutdownGrace) {
			l.logger.Warn("client connections still open at shutdown")
		}
		return err
	})
	sctx.Go(func(sctx *stopper.Context) error {
		l.forwardFaults(sctx.Stopping())
		return nil
	})

	if l.cfg.Eww.Enabled {
		l.StartWatcher("osd", func(stop <-chan struct{}) {
			watchers.StartOSDWatcher(stop, l.cell, l.eww)
		})
	}
	if l.cfg.SyncExternal {
		l.StartWatcher("display", func(stop <-chan struct{}) {
			events := subscribe.BacklightEvents(stop, l.device.Name())
			watchers.StartDisplayWatcher(stop, events, l.device, l.cell, l.writer)
		})
	}

	l.logger.Info("leader started",
		"device", l.device.Name(),
		"max", l.device.Max(),
		"brightness", l.cell.Get(),
		"socket", l.server.Path(),
	)
	return nil
}

// StartWatcher runs f until the leader stops, restarting it if it
// panics.
func (l *Leader) StartWatcher(name string, f func(stop <-chan struct{})) {
	l.sctx.Go(func(sctx *stopper.Context) error {
		stop := sctx.Stopping()
		for {
			func() {
				defer func() {
					if r := recover(); r != nil {
						l.logger.Error("watcher panic", "watcher", name, "panic", r)
					}
				}()
				f(stop)
			}()

			select {
			case <-stop:
				return nil
			case <-time.After(watcherRestartDelay):
				l.logger.Warn("restarting watcher", "watcher", name)
			}
		}
	})
}

func (l *Leader) forwardFaults(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case err := <-l.writer.Faults():
			if l.cfg.Eww.Enabled {
				l.eww.Fault(err)
			}
			if err != nil && l.cfg.NotifyFaults {
				if nerr := l.notify(fmt.Sprintf("Brightness changes are not reaching %s: %v", l.device.Name(), err)); nerr != nil {
					l.logger.Debug("desktop notification failed", "error", nerr)
				}
			}
			select {
			case l.faults <- err:
			default:
				select {
				case <-l.faults:
				default:
				}
				l.faults <- err
			}
		}
	}
}

// Shutdown stops every worker, giving an in-progress hardware write up
// to the configured grace period, then rereads the device and returns
// the level it reports.
func (l *Leader) Shutdown() (float64, error) {
	l.mu.Lock()
	sctx := l.sctx
	l.mu.Unlock()
	if sctx == nil {
		return 0, errors.New("leader not started")
	}

	grace := l.cfg.ShutdownGrace
	sctx.Stop(grace)

	done := make(chan error, 1)
	go func() { done <- sctx.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			l.logger.Warn("worker stopped with error", "error", err)
		}
	case <-time.After(grace + 100*time.Millisecond):
		l.logger.Warn("workers still running after grace period", "grace", grace)
	}

	final, err := l.writer.Finish(grace)
	if err != nil {
		l.logger.Warn("final brightness unavailable", "error", err)
		return 0, err
	}
	l.logger.Info("leader stopped", "final_brightness", math.Round(final))
	return final, nil
}

// stoppingContext is cancelled as soon as a graceful stop begins, not
// when the grace period runs out.
func stoppingContext(sctx *stopper.Context) context.Context {
	ctx, cancel := context.WithCancel(sctx)
	go func() {
		select {
		case <-sctx.Stopping():
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx
}
