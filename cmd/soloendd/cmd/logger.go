package cmd

import (
	"cosmossdk.io/log"
	"github.com/spf13/cobra"
)

// loggerFromCmd builds the structured logger every subcommand shares,
// writing to the command's own stderr so tests can capture it, and
// dropping color codes when --no-style is set (teacher's own --no-style
// convention for scriptable output).
func loggerFromCmd(cmd *cobra.Command) log.Logger {
	noStyle, _ := cmd.Flags().GetBool(flagNoStyle)
	opts := []log.Option{}
	if noStyle {
		opts = append(opts, log.ColorOption(false))
	}
	return log.NewLogger(cmd.ErrOrStderr(), opts...)
}
