package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/store"
)

// NewInitCmd creates the embedded store at --db-path if it does not exist.
func NewInitCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the local chain store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbPath := v.GetString(flagDBPath)
			if _, err := os.Stat(dbPath); err == nil {
				cmd.Printf("store already exists at %s\n", dbPath)
				return nil
			}
			logger := loggerFromCmd(cmd)
			s, err := store.Open(store.BackendSQLite, dbPath, logger)
			if err != nil {
				return errs.ErrStorage.Wrap(err.Error())
			}
			_ = s
			cmd.Printf("initialized store at %s\n", dbPath)
			return nil
		},
	}
}
