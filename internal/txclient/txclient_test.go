package txclient_test

import (
	"context"
	"errors"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdktx "github.com/cosmos/cosmos-sdk/types/tx"
	"github.com/stretchr/testify/require"

	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/txclient"
)

func newDeliverResponse(code uint32, txHash string) *sdktx.BroadcastTxResponse {
	return &sdktx.BroadcastTxResponse{
		TxResponse: &sdk.TxResponse{
			Code:   code,
			TxHash: txHash,
			Events: []abci.Event{{Type: "transfer", Attributes: []abci.EventAttribute{{Key: "amount", Value: "100"}}}},
		},
	}
}

func TestBroadcastSucceeds(t *testing.T) {
	c := txclient.New(nil, nil, nil, "chain-a", "secp256k1")

	calls := 0
	deliver := func(context.Context, []byte) (*sdktx.BroadcastTxResponse, error) {
		calls++
		return newDeliverResponse(0, "abc123"), nil
	}

	result, err := c.Broadcast(context.Background(), []byte("raw"), deliver, nil)
	require.NoError(t, err)
	require.Equal(t, "abc123", result.TxHash)
	require.Equal(t, 1, calls)
}

func TestBroadcastRetriesOnceOnTimeout(t *testing.T) {
	c := txclient.New(nil, nil, nil, "chain-a", "secp256k1")

	calls := 0
	deliver := func(context.Context, []byte) (*sdktx.BroadcastTxResponse, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("context deadline exceeded")
		}
		return newDeliverResponse(0, "retry-hash"), nil
	}

	result, err := c.Broadcast(context.Background(), []byte("raw"), deliver, nil)
	require.NoError(t, err)
	require.Equal(t, "retry-hash", result.TxHash)
	require.Equal(t, 2, calls)
}

func TestBroadcastRebuildsOnceOnSequenceMismatch(t *testing.T) {
	c := txclient.New(nil, nil, nil, "chain-a", "secp256k1")

	calls := 0
	deliver := func(context.Context, []byte) (*sdktx.BroadcastTxResponse, error) {
		calls++
		if calls == 1 {
			return &sdktx.BroadcastTxResponse{TxResponse: &sdk.TxResponse{
				Code: 32, Codespace: "sdk", RawLog: "account sequence mismatch, expected 6, got 5",
			}}, nil
		}
		return newDeliverResponse(0, "resequenced-hash"), nil
	}
	rebuildCalls := 0
	rebuild := func(context.Context) ([]byte, error) {
		rebuildCalls++
		return []byte("raw-retry"), nil
	}

	result, err := c.Broadcast(context.Background(), []byte("raw"), deliver, rebuild)
	require.NoError(t, err)
	require.Equal(t, "resequenced-hash", result.TxHash)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, rebuildCalls)
}

func TestBroadcastDoesNotRebuildWhenRebuildIsNil(t *testing.T) {
	c := txclient.New(nil, nil, nil, "chain-a", "secp256k1")

	calls := 0
	deliver := func(context.Context, []byte) (*sdktx.BroadcastTxResponse, error) {
		calls++
		return &sdktx.BroadcastTxResponse{TxResponse: &sdk.TxResponse{
			Code: 32, Codespace: "sdk", RawLog: "account sequence mismatch, expected 6, got 5",
		}}, nil
	}

	_, err := c.Broadcast(context.Background(), []byte("raw"), deliver, nil)
	require.Error(t, err)
	var deliverErr *errs.DeliverTxFailed
	require.ErrorAs(t, err, &deliverErr)
	require.Equal(t, 1, calls)
}

func TestBroadcastDoesNotRetryOnDeliverTxFailure(t *testing.T) {
	c := txclient.New(nil, nil, nil, "chain-a", "secp256k1")

	calls := 0
	deliver := func(context.Context, []byte) (*sdktx.BroadcastTxResponse, error) {
		calls++
		return newDeliverResponse(5, ""), nil
	}

	_, err := c.Broadcast(context.Background(), []byte("raw"), deliver, nil)
	require.Error(t, err)
	var deliverErr *errs.DeliverTxFailed
	require.ErrorAs(t, err, &deliverErr)
	require.Equal(t, uint32(5), deliverErr.Code)
	require.Equal(t, 1, calls)
}

func TestExtractAttributeFindsValue(t *testing.T) {
	events := []abci.Event{
		{Type: "connection_open_init", Attributes: []abci.EventAttribute{{Key: "connection_id", Value: "connection-0"}}},
	}
	val, err := txclient.ExtractAttribute(events, "connection_open_init", "connection_id")
	require.NoError(t, err)
	require.Equal(t, "connection-0", val)
}

func TestExtractAttributeMissingFails(t *testing.T) {
	_, err := txclient.ExtractAttribute(nil, "connection_open_init", "connection_id")
	require.Error(t, err)
}
