package cmd

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagRequestID = "request-id"
	flagMemo      = "memo"
	flagForce     = "force"
	flagReceiver  = "receiver"
)

// NewIbcCmd builds the `ibc connect|mint|burn` subcommand group of spec §6.
func NewIbcCmd(v *viper.Viper) *cobra.Command {
	ibcCmd := &cobra.Command{
		Use:   "ibc",
		Short: "Drive the handshake and packet engines for a chain",
	}
	ibcCmd.AddCommand(newIbcConnectCmd(v), newIbcMintCmd(v), newIbcBurnCmd(v))
	return ibcCmd
}

// requestIDOrNew returns requestID, or a fresh uuid if the operator left it
// blank, so every recorded operation carries a request_id (spec §4.2's
// (chain_id, request_id) key). A repeated invocation is deduplicated only
// when it passes the same --request-id.
func requestIDOrNew(requestID string) string {
	if requestID != "" {
		return requestID
	}
	return uuid.NewString()
}

func newIbcConnectCmd(v *viper.Viper) *cobra.Command {
	var requestID, memo string
	var force bool

	cmd := &cobra.Command{
		Use:   "connect [chain-id]",
		Short: "Run the connection and channel handshake against a chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID := args[0]
			svc, closer, err := buildService(cmd, v, chainID)
			if closer != nil {
				defer closer()
			}
			if err != nil {
				return err
			}
			if err := svc.Connect(cmd.Context(), chainID, requestIDOrNew(requestID), memo, force); err != nil {
				return err
			}
			cmd.Println("connection established")
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, flagRequestID, "", "idempotency key (defaults to a fresh uuid)")
	cmd.Flags().StringVar(&memo, flagMemo, "", "transaction memo (accepted but not attached: transactions are broadcast with an empty memo)")
	cmd.Flags().BoolVar(&force, flagForce, false, "discard existing connection_details and restart from Init")
	return cmd
}

func newIbcMintCmd(v *viper.Viper) *cobra.Command {
	var requestID, memo, amount, denom, receiver string

	cmd := &cobra.Command{
		Use:   "mint [chain-id]",
		Short: "Mint tokens on the counterparty chain against locked solo-machine balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID := args[0]
			svc, closer, err := buildService(cmd, v, chainID)
			if closer != nil {
				defer closer()
			}
			if err != nil {
				return err
			}
			txHash, err := svc.Mint(cmd.Context(), chainID, requestIDOrNew(requestID), memo, amount, denom, receiver)
			if err != nil {
				return err
			}
			cmd.Println(txHash)
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, flagRequestID, "", "idempotency key (defaults to a fresh uuid)")
	cmd.Flags().StringVar(&memo, flagMemo, "", "transaction memo (accepted but not attached: transactions are broadcast with an empty memo)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to mint, as a decimal integer")
	cmd.Flags().StringVar(&denom, "denom", "", "denom to mint")
	cmd.Flags().StringVar(&receiver, flagReceiver, "", "receiving address on the counterparty chain (defaults to the solo-machine's own address)")
	return cmd
}

func newIbcBurnCmd(v *viper.Viper) *cobra.Command {
	var requestID, memo, amount, denom string

	cmd := &cobra.Command{
		Use:   "burn [chain-id]",
		Short: "Burn tokens on the counterparty chain and unlock the solo-machine balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chainID := args[0]
			svc, closer, err := buildService(cmd, v, chainID)
			if closer != nil {
				defer closer()
			}
			if err != nil {
				return err
			}
			txHash, err := svc.Burn(cmd.Context(), chainID, requestIDOrNew(requestID), memo, amount, denom)
			if err != nil {
				return err
			}
			cmd.Println(txHash)
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, flagRequestID, "", "idempotency key (defaults to a fresh uuid)")
	cmd.Flags().StringVar(&memo, flagMemo, "", "transaction memo (accepted but not attached: transactions are broadcast with an empty memo)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to burn, as a decimal integer")
	cmd.Flags().StringVar(&denom, "denom", "", "denom to burn")
	return cmd
}
