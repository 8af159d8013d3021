package cmd

import (
	"github.com/spf13/cobra"

	"github.com/hoppxi/glint/internal/protocol"
)

// brightnessCmd builds inc/dec/set. The amount is validated before any
// connection is attempted.
func brightnessCmd(verb, short string) *cobra.Command {
	var parsed protocol.Command
	return &cobra.Command{
		Use:   verb + " <0-100>",
		Short: short,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return protocol.ErrUsage
			}
			c, err := protocol.ParseArgs([]string{verb, args[0]})
			if err != nil {
				return err
			}
			parsed = c
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd, &parsed)
		},
	}
}

var (
	incCmd = brightnessCmd("inc", "Raise brightness by a percentage")
	decCmd = brightnessCmd("dec", "Lower brightness by a percentage")
	setCmd = brightnessCmd("set", "Set brightness to a percentage")
)
