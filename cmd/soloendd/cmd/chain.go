package cmd

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solo-machine/soloend/internal/api"
	"github.com/solo-machine/soloend/internal/config"
	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/store"
)

// NewChainCmd builds the `chain add|get` subcommand group of spec §6.
func NewChainCmd(v *viper.Viper) *cobra.Command {
	chainCmd := &cobra.Command{
		Use:   "chain",
		Short: "Manage chain records",
	}
	chainCmd.AddCommand(newChainAddCmd(v), newChainGetCmd(v))
	return chainCmd
}

func newChainAddCmd(v *viper.Viper) *cobra.Command {
	var (
		rpcAddr, grpcAddr, prefix, feeDenom, feeAmount, trustLevel string
		trustingPeriod, clockDrift                                 string
		diversifier, portID, signingAlgo, trustedHash              string
		gasLimit                                                   uint64
		trustedHeight                                               int64
	)

	cmd := &cobra.Command{
		Use:   "add [chain-id]",
		Short: "Register a new chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID := args[0]
			dbPath := v.GetString(flagDBPath)
			logger := loggerFromCmd(cmd)
			s, err := store.Open(store.BackendSQLite, dbPath, logger)
			if err != nil {
				return err
			}

			trustingPeriodDur, err := config.ParseDuration(trustingPeriod)
			if err != nil {
				return err
			}
			clockDriftDur, err := config.ParseDuration(clockDrift)
			if err != nil {
				return err
			}
			trustedHashBytes, err := hex.DecodeString(strings.TrimPrefix(trustedHash, "0x"))
			if err != nil {
				return errs.ErrInvalidArgument.Wrapf("trusted-hash is not hex: %s", err)
			}

			svc := api.New(s, nil)
			id, err := svc.AddChain(cmd.Context(), config.ChainConfig{
				ChainID:       chainID,
				RPCAddr:       rpcAddr,
				GRPCAddr:      grpcAddr,
				AccountPrefix: prefix,
				Fee:           config.FeeConfig{Amount: feeAmount, Denom: feeDenom, GasLimit: gasLimit},
				Trust: config.TrustConfig{
					TrustLevel:     trustLevel,
					TrustingPeriod: trustingPeriodDur,
					MaxClockDrift:  clockDriftDur,
				},
				Diversifier:   diversifier,
				PortID:        portID,
				SigningAlgo:   signingAlgo,
				TrustedHeight: trustedHeight,
				TrustedHash:   trustedHashBytes,
			})
			if err != nil {
				return err
			}
			cmd.Println(id)
			return nil
		},
	}

	cmd.Flags().StringVar(&rpcAddr, "rpc", "", "chain RPC endpoint")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "chain gRPC endpoint")
	cmd.Flags().StringVar(&prefix, "account-prefix", "cosmos", "bech32 account prefix")
	cmd.Flags().StringVar(&feeDenom, "fee-denom", "", "fee denom")
	cmd.Flags().StringVar(&feeAmount, "fee-amount", "0", "fee amount")
	cmd.Flags().Uint64Var(&gasLimit, "gas-limit", 200000, "gas limit")
	cmd.Flags().StringVar(&trustLevel, "trust-level", "1/3", "Tendermint light-client trust level")
	cmd.Flags().StringVar(&trustingPeriod, "trusting-period", "336h", "trusting period")
	cmd.Flags().StringVar(&clockDrift, "max-clock-drift", "3s", "max clock drift")
	cmd.Flags().StringVar(&diversifier, "diversifier", "soloend", "solo-machine diversifier")
	cmd.Flags().StringVar(&portID, "port-id", "transfer", "ICS-20 port id")
	cmd.Flags().StringVar(&signingAlgo, "signing-algo", "secp256k1", "secp256k1 or eth-secp256k1")
	cmd.Flags().Int64Var(&trustedHeight, "trusted-height", 0, "seed trusted height")
	cmd.Flags().StringVar(&trustedHash, "trusted-hash", "", "seed trusted block hash (hex)")

	return cmd
}

func newChainGetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get [chain-id]",
		Short: "Show a chain record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := v.GetString(flagDBPath)
			logger := loggerFromCmd(cmd)
			s, err := store.Open(store.BackendSQLite, dbPath, logger)
			if err != nil {
				return err
			}

			svc := api.New(s, nil)
			summary, err := svc.QueryChain(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("chain_id=%s sequence=%d packet_sequence=%d\n",
				summary.ChainID, summary.Sequence, summary.PacketSequence)
			cmd.Printf("connection_details=%s\n", strconv.FormatBool(summary.ConnectionDetails != nil))
			return nil
		},
	}
}
