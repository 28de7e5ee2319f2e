package main

import (
	"fmt"
	"os"

	"github.com/solo-machine/soloend/cmd/soloendd/cmd"
)

func main() {
	rootCmd := cmd.NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.OutOrStderr(), err)
		os.Exit(cmd.ExitCodeFor(err))
	}
}
