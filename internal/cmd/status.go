package cmd

import (
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/hoppxi/glint/internal/backlight"
	"github.com/hoppxi/glint/internal/instance"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the backlight level and whether glint is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		_, cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		device, err := backlight.Open(backlight.Options{
			Root:    cfg.SysfsRoot,
			Name:    cfg.Device,
			Backend: backlight.BackendSysfs,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "device:     %s\n", device.Name())
		fmt.Fprintf(out, "max:        %d\n", device.Max())
		fmt.Fprintf(out, "brightness: %.0f%%\n", math.Round(device.CurrentPercent()))
		fmt.Fprintf(out, "leader:     %s\n", leaderState(instance.ResolvePaths(cfg.RuntimeDir)))
		return nil
	},
}

// leaderState probes the lock and drops it straight away. A leader
// starting in that instant sees the lock held and exits as a client.
func leaderState(paths instance.Paths) string {
	lock, err := instance.Acquire(paths.Lock)
	if errors.Is(err, instance.ErrLocked) {
		return "running"
	}
	if err != nil {
		return "unknown: " + err.Error()
	}
	lock.Release()
	return "not running"
}
