package cmd

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hoppxi/glint/internal/backlight"
	"github.com/hoppxi/glint/internal/instance"
	"github.com/hoppxi/glint/internal/manager"
	"github.com/hoppxi/glint/internal/protocol"
	"github.com/hoppxi/glint/internal/ui"
)

// run decides once whether this process leads. The loser forwards its
// command and exits; it never falls back to leading.
func run(cmd *cobra.Command, command *protocol.Command) error {
	config, cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	paths := instance.ResolvePaths(cfg.RuntimeDir)
	if err := paths.EnsureDir(); err != nil {
		return err
	}

	lock, err := instance.Acquire(paths.Lock)
	if errors.Is(err, instance.ErrLocked) {
		return forward(cmd, paths, command)
	}
	if err != nil {
		return err
	}
	// Held until exit; the kernel releases it even on a crash. The file
	// must stay reachable so its finalizer cannot drop the lock early.
	defer runtime.KeepAlive(lock)

	return lead(cmd, config, cfg, paths, command)
}

func forward(cmd *cobra.Command, paths instance.Paths, command *protocol.Command) error {
	if command == nil {
		return instance.ErrLocked
	}
	if err := instance.Send(cmd.Context(), paths.Socket, *command); err != nil {
		return fmt.Errorf("%w (is the running glint responsive?)", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "sent:", command)
	return nil
}

func lead(cmd *cobra.Command, config *manager.ConfigManager, cfg manager.Config, paths instance.Paths, command *protocol.Command) error {
	backend, err := backlight.ParseBackend(cfg.Backend)
	if err != nil {
		return err
	}
	device, err := backlight.Open(backlight.Options{
		Root:    cfg.SysfsRoot,
		Name:    cfg.Device,
		Backend: backend,
	})
	if err != nil {
		return fmt.Errorf("failed to get backlight device: %w", err)
	}

	interactive := !opts.headless && term.IsTerminal(int(os.Stdin.Fd()))

	logPath := cfg.LogFile
	if logPath == "" {
		logPath = paths.Log
		if !interactive {
			logPath = "-"
		}
	}
	logger, closer, err := manager.NewLogger(cfg.LogLevel, logPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	leader := manager.NewLeader(cfg, paths, device, logger)
	fmt.Fprintln(cmd.OutOrStdout(), "Initial brightness:", leader.Cell().Get())

	if command != nil {
		if _, err := command.Apply(leader.Cell()); err != nil {
			return err
		}
	}

	if err := leader.Start(ctx); err != nil {
		return err
	}

	config.Watch(leader.Reconfigure, func(err error) {
		logger.Warn("ignoring config change", "error", err)
	})

	var runErr error
	if interactive {
		runErr = ui.Run(ctx, ui.Options{
			Cell:   leader.Cell(),
			Device: device.Name(),
			Steps: func() (int, int) {
				s := leader.Steps()
				return s.Step, s.PageStep
			},
			Faults: leader.Faults(),
			Fault:  leader.WriterErr(),
		})
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "glint running headless. Press Ctrl+C to stop.")
		<-ctx.Done()
	}

	final, err := leader.Shutdown()
	if err == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Final brightness:", math.Round(final))
	}
	return runErr
}
