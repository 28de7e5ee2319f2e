package handshake_test

import (
	"context"
	"testing"
	"time"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/solo-machine/soloend/internal/address"
	"github.com/solo-machine/soloend/internal/codec"
	"github.com/solo-machine/soloend/internal/eventbus"
	"github.com/solo-machine/soloend/internal/handshake"
	"github.com/solo-machine/soloend/internal/lightclient/solomachine"
	"github.com/solo-machine/soloend/internal/lightclient/tendermint"
	"github.com/solo-machine/soloend/internal/plugin"
	"github.com/solo-machine/soloend/internal/store"
)

type fakeSigner struct{}

func (f *fakeSigner) ID() string { return "fake-signer" }
func (f *fakeSigner) Sign(_ context.Context, _, _ string, signBytes []byte) ([]byte, error) {
	return append([]byte("sig:"), signBytes...), nil
}
func (f *fakeSigner) PublicKey(_ context.Context, _ string) ([]byte, error) {
	return make([]byte, 33), nil
}

type fakeGateway struct {
	createClientCalls int
	connOpenInitCalls int
	connOpenAckCalls  int
	chanOpenInitCalls int
	chanOpenAckCalls  int
	updateClientCalls int
}

func (g *fakeGateway) BroadcastCreateClient(context.Context, []byte, []byte) (string, tendermint.HeaderHeight, error) {
	g.createClientCalls++
	return "07-tendermint-0", tendermint.HeaderHeight{RevisionHeight: 100}, nil
}
func (g *fakeGateway) BroadcastConnOpenInit(context.Context, string) (string, error) {
	g.connOpenInitCalls++
	return "connection-0", nil
}
func (g *fakeGateway) BroadcastConnOpenAck(context.Context, string, string, []byte, []byte, []byte, tendermint.HeaderHeight) error {
	g.connOpenAckCalls++
	return nil
}
func (g *fakeGateway) BroadcastChanOpenInit(context.Context, string, string) (string, error) {
	g.chanOpenInitCalls++
	return "channel-0", nil
}
func (g *fakeGateway) BroadcastChanOpenAck(context.Context, string, string, string, []byte, tendermint.HeaderHeight) error {
	g.chanOpenAckCalls++
	return nil
}
func (g *fakeGateway) BroadcastUpdateClient(context.Context, string, []byte) error {
	g.updateClientCalls++
	return nil
}
func (g *fakeGateway) LatestHeight(context.Context) (tendermint.HeaderHeight, error) {
	// Matches the genesis TrustedHeight seeded in newTestOrchestrator: the
	// chain hasn't advanced, so advanceTendermintClient has nothing to
	// verify and returns without calling FetchHeader.
	return tendermint.HeaderHeight{RevisionHeight: 1}, nil
}

func (g *fakeGateway) FetchHeader(context.Context, int64) (*tendermint.Header, error) {
	return &tendermint.Header{ChainID: "chain-h", Height: 1}, nil
}

func newTestOrchestrator(t *testing.T, gw *fakeGateway) (*handshake.Orchestrator, *store.Store) {
	t.Helper()
	s, err := store.Open(store.BackendSQLite, ":memory:", log.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, s.AddChain(context.Background(), &store.ChainRecord{
		ChainID: "chain-h", PortID: "transfer", Diversifier: "soloend", SigningAlgo: "secp256k1",
		TrustedHeight: 1, TrustedHash: []byte("genesis-root"),
	}))

	registry := plugin.NewRegistry()
	registry.BindSigner("chain-h", &fakeSigner{})
	bus := eventbus.New(registry, log.NewNopLogger())
	cdc := codec.New()
	solo := solomachine.New("chain-h", registry, cdc, s)
	tm := tendermint.New(tendermint.Params{
		ChainID: "chain-h", TrustLevel: tendermint.TrustLevel{Numerator: 1, Denominator: 3},
		TrustingPeriod: 24 * time.Hour, MaxClockDrift: 10 * time.Second,
	}, s)

	orch := handshake.New(s, solo, tm, gw, bus, "chain-h", "soloend", "transfer", address.AlgoSecp256k1)
	return orch, s
}

func TestConnectRunsAllFourHandshakePhases(t *testing.T) {
	gw := &fakeGateway{}
	orch, s := newTestOrchestrator(t, gw)

	err := orch.Connect(context.Background(), "req-1", "", false)
	require.NoError(t, err)

	require.Equal(t, 1, gw.createClientCalls)
	require.Equal(t, 1, gw.connOpenInitCalls)
	require.Equal(t, 1, gw.connOpenAckCalls)
	require.Equal(t, 1, gw.chanOpenInitCalls)
	require.Equal(t, 1, gw.chanOpenAckCalls)

	rec, err := s.GetChain(context.Background(), "chain-h")
	require.NoError(t, err)
	require.True(t, rec.HasConnectionDetails())
	require.Equal(t, store.PhaseDone, rec.HandshakePhase)
}

func TestConnectWithoutForceIsNoOpOnceComplete(t *testing.T) {
	gw := &fakeGateway{}
	orch, _ := newTestOrchestrator(t, gw)

	require.NoError(t, orch.Connect(context.Background(), "req-1", "", false))
	require.NoError(t, orch.Connect(context.Background(), "req-2", "", false))

	require.Equal(t, 1, gw.createClientCalls, "a second Connect without force must not re-run the handshake")
}

func TestConnectForceRestartsFromInit(t *testing.T) {
	gw := &fakeGateway{}
	orch, _ := newTestOrchestrator(t, gw)

	require.NoError(t, orch.Connect(context.Background(), "req-1", "", false))
	require.NoError(t, orch.Connect(context.Background(), "req-2", "", true))

	require.Equal(t, 2, gw.createClientCalls, "force must restart the handshake from Init")
}
