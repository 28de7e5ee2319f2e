// Package txclient implements C6: assembling, signing, and broadcasting
// Cosmos-SDK transactions against the counterparty chain, and extracting
// response attributes, grounded on the teacher's client/tx.Factory +
// client.Context usage (see integration-tests/ibc/*.go).
package txclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/client"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdktx "github.com/cosmos/cosmos-sdk/types/tx"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	authsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"
	abci "github.com/cometbft/cometbft/abci/types"
	"google.golang.org/grpc"

	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/plugin"
)

// Fee is the fixed fee config a chain record carries (spec §3).
type Fee struct {
	Amount   sdkmath.Int
	Denom    string
	GasLimit uint64
}

// AccountInfo is the solo-machine's account on the counterparty chain: its
// address, its public key, and its current on-chain sequence/account
// number, refreshed on SequenceMismatch (spec §4.6).
type AccountInfo struct {
	Address       sdk.AccAddress
	PubKey        cryptotypes.PubKey
	AccountNumber uint64
	Sequence      uint64
}

// Client assembles, signs, and broadcasts transactions in "commit" mode
// (await DeliverTx), per spec §4.6.
type Client struct {
	conn      *grpc.ClientConn
	txConfig  client.TxConfig
	signers   *plugin.Registry
	chainID   string
	keyAlgo   string
}

// New builds a broadcaster bound to one chain's gRPC endpoint.
func New(conn *grpc.ClientConn, txConfig client.TxConfig, signers *plugin.Registry, chainID, keyAlgo string) *Client {
	return &Client{conn: conn, txConfig: txConfig, signers: signers, chainID: chainID, keyAlgo: keyAlgo}
}

// Build assembles a TxBody (msgs, memo) and AuthInfo (fee, gas, signer info)
// and returns the raw bytes ready to broadcast, signed via the plugin
// Signer bound to this client's chain_id (spec §4.6).
func (c *Client) Build(ctx context.Context, msgs []sdk.Msg, memo string, fee Fee, account AccountInfo) ([]byte, error) {
	txBuilder := c.txConfig.NewTxBuilder()
	if err := txBuilder.SetMsgs(msgs...); err != nil {
		return nil, errs.ErrInvalidArgument.Wrap(err.Error())
	}
	txBuilder.SetMemo(memo)
	txBuilder.SetGasLimit(fee.GasLimit)
	txBuilder.SetFeeAmount(sdk.NewCoins(sdk.NewCoin(fee.Denom, fee.Amount)))

	sigData := signing.SingleSignatureData{
		SignMode:  signing.SignMode_SIGN_MODE_DIRECT,
		Signature: nil,
	}
	sig := signing.SignatureV2{
		PubKey:   account.PubKey,
		Data:     &sigData,
		Sequence: account.Sequence,
	}
	if err := txBuilder.SetSignatures(sig); err != nil {
		return nil, errs.ErrInvalidArgument.Wrap(err.Error())
	}

	signerData := authsigning.SignerData{
		ChainID:       c.chainID,
		AccountNumber: account.AccountNumber,
		Sequence:      account.Sequence,
		PubKey:        account.PubKey,
	}

	bytesToSign, err := authsigning.GetSignBytesAdapter(
		ctx, c.txConfig.SignModeHandler(), signing.SignMode_SIGN_MODE_DIRECT, signerData, txBuilder.GetTx())
	if err != nil {
		return nil, errs.ErrInvalidArgument.Wrap(err.Error())
	}

	signer, ok := c.signers.SignerFor(c.chainID)
	if !ok {
		return nil, errs.ErrSignerUnavailable.Wrapf("no signer registered for chain %q", c.chainID)
	}
	signature, err := signer.Sign(ctx, c.chainID, c.keyAlgo, bytesToSign)
	if err != nil {
		return nil, errs.ErrSignerUnavailable.Wrap(err.Error())
	}
	sigData.Signature = signature
	sig.Data = &sigData
	if err := txBuilder.SetSignatures(sig); err != nil {
		return nil, errs.ErrInvalidArgument.Wrap(err.Error())
	}

	raw, err := c.txConfig.TxEncoder()(txBuilder.GetTx())
	if err != nil {
		return nil, errs.ErrInvalidArgument.Wrap(err.Error())
	}
	return raw, nil
}

// BroadcastResult is the subset of a DeliverTx response the caller needs.
type BroadcastResult struct {
	TxHash string
	Height int64
	GasUsed int64
	Events  []abci.Event
}

// Broadcast submits raw tx bytes in commit mode. On a SequenceMismatch
// response it rebuilds and redelivers exactly once via rebuild (nil skips
// this retry); on a timed-out delivery it redelivers the same raw bytes
// once; it never retries on any other DeliverTx failure (spec §4.6).
func (c *Client) Broadcast(ctx context.Context, raw []byte,
	deliver func(context.Context, []byte) (*sdktx.BroadcastTxResponse, error),
	rebuild func(ctx context.Context) ([]byte, error),
) (*BroadcastResult, error) {
	resp, err := deliver(ctx, raw)

	if err == nil && rebuild != nil && isSequenceMismatch(resp.TxResponse) {
		raw, err = rebuild(ctx)
		if err != nil {
			return nil, errs.ErrSequenceMismatch.Wrap(err.Error())
		}
		resp, err = deliver(ctx, raw)
	}

	if err != nil {
		if isTimedOut(err) {
			resp, err = deliver(ctx, raw)
		}
		if err != nil {
			return nil, errs.ErrTxTimedOut.Wrap(err.Error())
		}
	}

	if resp.TxResponse.Code != 0 {
		return nil, &errs.DeliverTxFailed{Code: resp.TxResponse.Code, Log: resp.TxResponse.RawLog}
	}

	events := make([]abci.Event, 0, len(resp.TxResponse.Events))
	events = append(events, resp.TxResponse.Events...)

	return &BroadcastResult{
		TxHash:  resp.TxResponse.TxHash,
		Height:  resp.TxResponse.Height,
		GasUsed: resp.TxResponse.GasUsed,
		Events:  events,
	}, nil
}

// isTimedOut reports whether err looks like cosmos-sdk's tx.BroadcastTx
// wrapping a context deadline or the node's mempool timeout message; both
// surface as a generic error rather than a typed sentinel.
func isTimedOut(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded")
}

// sequenceMismatchCodespace/Code are cosmos-sdk's registered codespace and
// code for ErrWrongSequence, the ante-handler failure spec §4.6 calls
// SequenceMismatch. Like isTimedOut, there is no typed sentinel on the
// gRPC response, only the codespace/code pair (or, on older nodes, the
// raw_log text).
const (
	sequenceMismatchCodespace = "sdk"
	sequenceMismatchCode      = 32
)

func isSequenceMismatch(tr *sdk.TxResponse) bool {
	if tr == nil {
		return false
	}
	if tr.Codespace == sequenceMismatchCodespace && tr.Code == sequenceMismatchCode {
		return true
	}
	return strings.Contains(strings.ToLower(tr.RawLog), "account sequence mismatch")
}

// NewGRPCDeliverer builds a deliver function bound to conn: it submits raw
// via the chain's Tx gRPC service in sync mode, then polls GetTx until the
// transaction lands in a block or pollTimeout elapses, approximating the
// "commit" mode broadcast documented on Client (spec §4.6). The gRPC tx
// service no longer accepts BROADCAST_MODE_COMMIT directly, so awaiting
// inclusion requires this poll.
func NewGRPCDeliverer(conn *grpc.ClientConn, pollInterval, pollTimeout time.Duration) func(ctx context.Context, raw []byte) (*sdktx.BroadcastTxResponse, error) {
	client := sdktx.NewServiceClient(conn)
	return func(ctx context.Context, raw []byte) (*sdktx.BroadcastTxResponse, error) {
		broadcastResp, err := client.BroadcastTx(ctx, &sdktx.BroadcastTxRequest{
			TxBytes: raw,
			Mode:    sdktx.BroadcastMode_BROADCAST_MODE_SYNC,
		})
		if err != nil {
			return nil, err
		}
		if broadcastResp.TxResponse.Code != 0 {
			// Rejected by CheckTx; it will never be included, so there is
			// nothing to poll for.
			return broadcastResp, nil
		}

		deadline := time.Now().Add(pollTimeout)
		txHash := broadcastResp.TxResponse.TxHash
		for {
			getResp, err := client.GetTx(ctx, &sdktx.GetTxRequest{Hash: txHash})
			if err == nil && getResp.TxResponse != nil {
				return &sdktx.BroadcastTxResponse{TxResponse: getResp.TxResponse}, nil
			}
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timed out waiting for tx %s to be included", txHash)
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	}
}

// ExtractAttribute returns the first value of key among the events of type
// eventType, failing fatally (as spec §4.6 requires) when the attribute is absent.
func ExtractAttribute(events []abci.Event, eventType, key string) (string, error) {
	for _, ev := range events {
		if ev.Type != eventType {
			continue
		}
		for _, attr := range ev.Attributes {
			if attr.Key == key {
				return attr.Value, nil
			}
		}
	}
	return "", errs.ErrChainRPC.Wrapf("missing attribute %s.%s in tx response", eventType, key)
}

// EncodeAny packs a message in google.protobuf.Any the way TxBody.Messages
// requires. Nothing in this repository calls it; Build packs messages
// through the TxBuilder.
func EncodeAny(msg sdk.Msg) (*codectypes.Any, error) {
	any, err := codectypes.NewAnyWithValue(msg)
	if err != nil {
		return nil, fmt.Errorf("packing %T as Any: %w", msg, err)
	}
	return any, nil
}

// RefreshSequence re-reads the account's sequence from the chain on a
// SequenceMismatch error and returns the corrected AccountInfo for exactly
// one retry (spec §4.6).
func RefreshSequence(ctx context.Context, fetch func(context.Context) (accNum, seq uint64, err error), account AccountInfo) (AccountInfo, error) {
	accNum, seq, err := fetch(ctx)
	if err != nil {
		return account, errs.ErrChainRPC.Wrap(err.Error())
	}
	account.AccountNumber = accNum
	account.Sequence = seq
	return account, nil
}
