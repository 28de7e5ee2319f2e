package tendermint_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/lightclient/tendermint"
	"github.com/solo-machine/soloend/internal/store"
)

func newTestClient() *tendermint.Client {
	return tendermint.New(tendermint.Params{
		ChainID:        "testchain-1",
		TrustLevel:     tendermint.TrustLevel{Numerator: 1, Denominator: 3},
		TrustingPeriod: 24 * time.Hour,
		MaxClockDrift:  10 * time.Second,
	}, nil)
}

func TestVerifyAndStoreRejectsWrongChainID(t *testing.T) {
	c := newTestClient()
	trusted := &store.ChainConsensusState{ChainID: "testchain-1", Height: 10, Timestamp: time.Now()}
	header := &tendermint.Header{ChainID: "other-chain", Height: 11, Time: time.Now()}

	err := c.VerifyAndStore(context.Background(), nil, trusted, nil, header, time.Now(), nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrBadChainID))
}

func TestVerifyAndStoreRejectsOutsideTrustingPeriod(t *testing.T) {
	c := newTestClient()
	now := time.Now()
	trusted := &store.ChainConsensusState{ChainID: "testchain-1", Height: 10, Timestamp: now.Add(-48 * time.Hour)}
	header := &tendermint.Header{ChainID: "testchain-1", Height: 11, Time: now}

	err := c.VerifyAndStore(context.Background(), nil, trusted, nil, header, now, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrOutsideTrustingPeriod))
}

func TestVerifyAndStoreRejectsClockDrift(t *testing.T) {
	c := newTestClient()
	now := time.Now()
	trusted := &store.ChainConsensusState{ChainID: "testchain-1", Height: 10, Timestamp: now}
	header := &tendermint.Header{ChainID: "testchain-1", Height: 11, Time: now.Add(time.Minute)}

	err := c.VerifyAndStore(context.Background(), nil, trusted, nil, header, now, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrClockDrift))
}

func TestVerifyAndStoreWithoutCommitReportsInsufficientVotingPower(t *testing.T) {
	c := newTestClient()
	now := time.Now()
	trusted := &store.ChainConsensusState{ChainID: "testchain-1", Height: 10, Timestamp: now}
	header := &tendermint.Header{ChainID: "testchain-1", Height: 12, Time: now}

	err := c.VerifyAndStore(context.Background(), nil, trusted, nil, header, now, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrInsufficientVotingPower))
}
