package api_test

import (
	"context"
	"testing"

	"cosmossdk.io/log"
	"github.com/stretchr/testify/require"

	"github.com/solo-machine/soloend/internal/address"
	"github.com/solo-machine/soloend/internal/api"
	"github.com/solo-machine/soloend/internal/config"
	"github.com/solo-machine/soloend/internal/store"
)

type fakeEngines struct{}

func (fakeEngines) Connect(context.Context, string, string, string, bool) error { return nil }
func (fakeEngines) Mint(context.Context, string, string, string, string, string, string) (string, error) {
	return "mint-hash", nil
}
func (fakeEngines) Burn(context.Context, string, string, string, string, string) (string, error) {
	return "burn-hash", nil
}
func (fakeEngines) UpdateSigner(context.Context, string, string, string, address.PublicKey, address.Algo) error {
	return nil
}

func newTestService(t *testing.T) *api.Service {
	t.Helper()
	s, err := store.Open(store.BackendSQLite, ":memory:", log.NewNopLogger())
	require.NoError(t, err)
	return api.New(s, fakeEngines{})
}

func TestAddChainWithOnlyChainIDIsQueryable(t *testing.T) {
	svc := newTestService(t)

	id, err := svc.AddChain(context.Background(), config.ChainConfig{ChainID: "chain-z"})
	require.NoError(t, err)
	require.Equal(t, "chain-z", id)

	summary, err := svc.QueryChain(context.Background(), "chain-z")
	require.NoError(t, err)
	require.Equal(t, "chain-z", summary.ChainID)
}

func TestAddChainRejectsEmptyChainID(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AddChain(context.Background(), config.ChainConfig{})
	require.Error(t, err)
}

func TestMintBurnDispatchToEngines(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.AddChain(context.Background(), config.ChainConfig{ChainID: "chain-z"})
	require.NoError(t, err)

	txHash, err := svc.Mint(context.Background(), "chain-z", "req-1", "", "100", "uatom", "")
	require.NoError(t, err)
	require.Equal(t, "mint-hash", txHash)

	txHash, err = svc.Burn(context.Background(), "chain-z", "req-2", "", "100", "uatom")
	require.NoError(t, err)
	require.Equal(t, "burn-hash", txHash)
}
