package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hoppxi/glint/internal/manager"
)

var Version = "0.1.0"

type rootOptions struct {
	configPath string
	headless   bool
}

var opts rootOptions

var rootCmd = &cobra.Command{
	Use:     "glint",
	Version: Version,
	Short:   "Backlight slider that forwards commands to the running instance",
	Long: `glint shows a brightness slider and owns the backlight while it runs.
Later invocations do not open a second slider; they hand their command
to the running one and exit.

  glint            open the slider
  glint inc 5      raise brightness by 5%
  glint dec 5      lower brightness by 5%
  glint set 40     set brightness to 40%`,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run(cmd, nil)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file with flag overrides applied.
func loadConfig(cmd *cobra.Command) (*manager.ConfigManager, manager.Config, error) {
	c := manager.NewConfig(opts.configPath)
	if err := c.BindFlags(cmd.Flags()); err != nil {
		return nil, manager.Config{}, err
	}
	cfg, err := c.Load()
	if err != nil {
		return nil, manager.Config{}, err
	}
	return c, cfg, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/glint/glint.yaml)")
	flags.String("runtime-dir", "", "directory for the lock and socket (default $XDG_RUNTIME_DIR)")
	flags.String("device", "", "backlight device name under /sys/class/backlight")
	flags.String("backend", "", "how to write the backlight: auto, sysfs or logind")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-file", "", "leader log file, - for stderr (default <runtime-dir>/glint/glint.log)")
	flags.BoolVar(&opts.headless, "headless", false, "run without the slider until interrupted")

	rootCmd.AddCommand(incCmd)
	rootCmd.AddCommand(decCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}
