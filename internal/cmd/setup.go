package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hoppxi/glint/internal/manager"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the glint config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		path := opts.configPath
		if path == "" {
			path = manager.DefaultConfigPath()
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := manager.WriteDefault(path, force); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Wrote", path)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path := opts.configPath
		if path == "" {
			path = manager.DefaultConfigPath()
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}
