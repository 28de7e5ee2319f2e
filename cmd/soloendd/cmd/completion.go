package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// NewGenCompletionCmd builds the `gen-completion` subcommand, matching the
// teacher's own cobra completion wiring.
func NewGenCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "gen-completion [bash|zsh|fish|powershell]",
		Short:     "Generate shell completion scripts",
		Args:      cobra.ExactValidArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletion(os.Stdout)
			case "zsh":
				return root.GenZshCompletion(os.Stdout)
			case "fish":
				return root.GenFishCompletion(os.Stdout, true)
			default:
				return root.GenPowerShellCompletion(os.Stdout)
			}
		},
	}
}
