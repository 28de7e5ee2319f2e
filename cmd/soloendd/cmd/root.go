// Package cmd implements the CLI front end of spec §6: flag parsing, the
// init/chain/ibc/start/gen-completion subcommand tree, and SOLO_* env
// binding, in the shape of the teacher's cmd/txd/cosmoscmd root command.
package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cosmoserrors "cosmossdk.io/errors"

	"github.com/solo-machine/soloend/internal/config"
	"github.com/solo-machine/soloend/internal/errs"
)

const (
	flagDBPath  = "db-path"
	flagSigner  = "signer"
	flagHandler = "handler"
	flagNoStyle = "no-style"
)

// NewRootCmd builds the soloendd root command tree.
func NewRootCmd() *cobra.Command {
	v := config.NewViper()

	root := &cobra.Command{
		Use:   "soloendd",
		Short: "IBC solo-machine endpoint: mint and burn tokens against a Cosmos chain",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = config.LoadDotEnv(".env")
			return bindFlags(cmd, v)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().String(flagDBPath, "./soloend.db", "path to the embedded chain store")
	root.PersistentFlags().String(flagSigner, "", "path to the signer plugin binary")
	root.PersistentFlags().StringArray(flagHandler, nil, "path to an event-handler plugin binary (repeatable)")
	root.PersistentFlags().Bool(flagNoStyle, false, "disable colored/styled CLI output")

	root.AddCommand(
		NewInitCmd(v),
		NewChainCmd(v),
		NewIbcCmd(v),
		NewStartCmd(v),
		NewGenCompletionCmd(),
	)

	return root
}

// bindFlags binds every persistent flag to viper under config.EnvPrefix,
// mirroring the teacher's SOLO_* / TXD_* environment convention.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	return v.BindPFlags(cmd.Flags())
}

// ExitCodeFor maps an error to the process exit code of spec §6:
// 0 success, 1 user error, 2 chain/IBC error, 3 storage error.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case cosmoserrors.IsOf(err, errs.ErrStorage, errs.ErrConflict):
		return 3
	case cosmoserrors.IsOf(err,
		errs.ErrChainRPC, errs.ErrDeliverTxFail, errs.ErrTxTimedOut,
		errs.ErrInsufficientVotingPower, errs.ErrOutsideTrustingPeriod,
		errs.ErrClockDrift, errs.ErrBadChainID, errs.ErrHashMismatch,
		errs.ErrHandshakeOutOfOrder, errs.ErrSequenceMismatch, errs.ErrPacketNotFound):
		return 2
	case cosmoserrors.IsOf(err, errs.ErrInvalidArgument, errs.ErrUnknownChain, errs.ErrDuplicateChain,
		errs.ErrBadSignature, errs.ErrBadPublicKey, errs.ErrSignerUnavailable, errs.ErrHandler):
		return 1
	default:
		var de *errs.DeliverTxFailed
		if errors.As(err, &de) {
			return 2
		}
		var lc *errs.LightClientError
		if errors.As(err, &lc) {
			return 2
		}
		return 1
	}
}
