package packet_test

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"cosmossdk.io/log"
	ibctransfertypes "github.com/cosmos/ibc-go/v10/modules/apps/transfer/types"
	"github.com/stretchr/testify/require"

	"github.com/solo-machine/soloend/internal/address"
	"github.com/solo-machine/soloend/internal/codec"
	"github.com/solo-machine/soloend/internal/eventbus"
	"github.com/solo-machine/soloend/internal/lightclient/solomachine"
	"github.com/solo-machine/soloend/internal/lightclient/tendermint"
	"github.com/solo-machine/soloend/internal/packet"
	"github.com/solo-machine/soloend/internal/plugin"
	"github.com/solo-machine/soloend/internal/store"
)

type fakeSigner struct{ calls int }

func (f *fakeSigner) ID() string { return "fake-signer" }
func (f *fakeSigner) Sign(_ context.Context, _, _ string, signBytes []byte) ([]byte, error) {
	f.calls++
	return append([]byte("sig:"), signBytes...), nil
}
func (f *fakeSigner) PublicKey(_ context.Context, _ string) ([]byte, error) {
	return make([]byte, 33), nil
}

type fakeGateway struct {
	recvCalls     int
	transferCalls int
	ackSuccess    bool
}

func (g *fakeGateway) BroadcastRecvPacket(_ context.Context, _ ibctransfertypes.FungibleTokenPacketData, sequence uint64, _ tendermint.HeaderHeight, _ uint64, _ []byte) (string, error) {
	g.recvCalls++
	return "mint-tx-hash", nil
}
func (g *fakeGateway) BroadcastTransfer(_ context.Context, _, _, _ string, _ sdkmath.Int, _ string, _ tendermint.HeaderHeight, _ uint64) (string, error) {
	g.transferCalls++
	return "burn-tx-hash", nil
}
func (g *fakeGateway) BroadcastTimeout(_ context.Context, _ uint64, _ []byte) error { return nil }
func (g *fakeGateway) AwaitRecvAck(_ context.Context, _ uint64) (bool, error)       { return g.ackSuccess, nil }
func (g *fakeGateway) LatestHeight(_ context.Context) (tendermint.HeaderHeight, error) {
	return tendermint.HeaderHeight{RevisionNumber: 1, RevisionHeight: 500}, nil
}

func newTestEngine(t *testing.T, gw *fakeGateway) (*packet.Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(store.BackendSQLite, ":memory:", log.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, s.AddChain(context.Background(), &store.ChainRecord{
		ChainID: "chain-x", PortID: "transfer", Diversifier: "soloend", SigningAlgo: "secp256k1",
	}))

	registry := plugin.NewRegistry()
	registry.BindSigner("chain-x", &fakeSigner{})
	bus := eventbus.New(registry, log.NewNopLogger())
	cdc := codec.New()
	solo := solomachine.New("chain-x", registry, cdc, s)

	engine := packet.New(s, solo, gw, bus, "chain-x", "soloend", "transfer", "channel-0", "cosmos1solo", address.AlgoSecp256k1, 30*time.Second)
	return engine, s
}

func TestMintRecordsOperation(t *testing.T) {
	gw := &fakeGateway{}
	engine, s := newTestEngine(t, gw)

	result, err := engine.Mint(context.Background(), "req-1", "uatom", "100", "cosmos1solo", "cosmos1receiver")
	require.NoError(t, err)
	require.Equal(t, "mint-tx-hash", result.TransactionHash)
	require.Equal(t, 1, gw.recvCalls)

	ops, err := s.QueryHistory(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, store.OperationMint, ops[0].OperationType)
	require.Equal(t, "mint-tx-hash", ops[0].TransactionHash)
}

func TestMintIsIdempotentOnRequestID(t *testing.T) {
	gw := &fakeGateway{}
	engine, _ := newTestEngine(t, gw)

	first, err := engine.Mint(context.Background(), "req-dup", "uatom", "100", "cosmos1solo", "cosmos1receiver")
	require.NoError(t, err)

	second, err := engine.Mint(context.Background(), "req-dup", "uatom", "999", "cosmos1solo", "cosmos1other")
	require.NoError(t, err)

	require.Equal(t, first.TransactionHash, second.TransactionHash)
	require.Equal(t, 1, gw.recvCalls, "a duplicate request_id must not re-broadcast")
}

func TestBurnFailsWhenAckNeverObserved(t *testing.T) {
	gw := &fakeGateway{ackSuccess: false}
	engine, _ := newTestEngine(t, gw)

	_, err := engine.Burn(context.Background(), "req-2", "cosmos1sender", "uatom", "50")
	require.Error(t, err)
	require.Equal(t, 1, gw.transferCalls)
}

func TestBurnRecordsOperationOnAck(t *testing.T) {
	gw := &fakeGateway{ackSuccess: true}
	engine, s := newTestEngine(t, gw)

	result, err := engine.Burn(context.Background(), "req-3", "cosmos1sender", "uatom", "50")
	require.NoError(t, err)
	require.Equal(t, "burn-tx-hash", result.TransactionHash)
	require.Equal(t, store.OperationBurn, result.Operation)

	ops, err := s.QueryHistory(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, store.OperationBurn, ops[0].OperationType)
	require.Equal(t, "burn-tx-hash", ops[0].TransactionHash)
}
