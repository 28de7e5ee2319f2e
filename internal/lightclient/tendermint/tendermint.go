// Package tendermint implements C4: the trusted-height -> consensus-state
// map and header verification under the bisection (skipping-verification)
// trust model, grounded on the teacher's github.com/cometbft/cometbft
// header/validator-set types.
package tendermint

import (
	"context"
	"time"

	cmtmath "github.com/cometbft/cometbft/libs/math"
	cmttypes "github.com/cometbft/cometbft/types"
	"gorm.io/gorm"

	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/store"
)

// HeaderHeight is an ibc-go style (revision_number, revision_height) pair,
// used as the proof height carried on every handshake/packet message.
type HeaderHeight struct {
	RevisionNumber uint64
	RevisionHeight uint64
}

// TrustLevel is a rational in (1/3, 1], the minimum voting-power overlap
// required between a trusted and candidate validator set.
type TrustLevel struct {
	Numerator, Denominator int64
}

// Params are the per-chain constraints the verifier is instantiated with.
type Params struct {
	ChainID        string
	TrustLevel     TrustLevel
	TrustingPeriod time.Duration
	MaxClockDrift  time.Duration
}

// Header is the subset of a CometBFT signed header the verifier needs:
// the app hash becomes the stored "root", and the commit carries the
// signatures checked against the trusted validator set.
type Header struct {
	ChainID            string
	Height             int64
	Time               time.Time
	AppHash            []byte
	NextValidatorsHash []byte
	ValidatorSet       *cmttypes.ValidatorSet
	NextValidatorSet   *cmttypes.ValidatorSet
	Commit             *cmttypes.Commit
}

// Client is one Tendermint light-client instance. It never crosses
// multiple chain IDs (spec §4.4): every call is checked against Params.ChainID.
type Client struct {
	params Params
	store  *store.Store
}

// New constructs a light-client verifier bound to one chain.
func New(params Params, s *store.Store) *Client {
	return &Client{params: params, store: s}
}

// HeaderFetcher retrieves the signed header and validator set at height from
// the chain, used by bisect to fetch midpoint headers (spec §4.4 step 5).
type HeaderFetcher func(ctx context.Context, height int64) (*Header, error)

// VerifyAndStore runs the bisection algorithm of spec §4.4 against header,
// using trusted as the most recently accepted consensus state, and commits
// the result inside tx on success. fetch retrieves intermediate headers
// when skipping verification fails outright and must bisect; it may be nil
// if the caller cannot supply midpoint headers, in which case bisection
// degrades to reporting insufficient voting power immediately.
//
// Verification never mutates the store on failure: the transaction the
// caller wraps this call in is left to the caller to roll back.
func (c *Client) VerifyAndStore(ctx context.Context, tx *gorm.DB, trusted *store.ChainConsensusState, trustedNextVals *cmttypes.ValidatorSet, header *Header, now time.Time, fetch HeaderFetcher) error {
	if header.ChainID != c.params.ChainID {
		return &errs.LightClientError{Reason: errs.ErrBadChainID}
	}

	if header.Time.Before(trusted.Timestamp) ||
		header.Time.After(trusted.Timestamp.Add(c.params.TrustingPeriod)) {
		return &errs.LightClientError{Reason: errs.ErrOutsideTrustingPeriod}
	}

	if header.Time.After(now.Add(c.params.MaxClockDrift)) {
		return &errs.LightClientError{Reason: errs.ErrClockDrift}
	}

	if err := c.verifyVotingPower(ctx, trusted.Height, trustedNextVals, header, fetch); err != nil {
		return err
	}

	cs := &store.ChainConsensusState{
		ChainID:            c.params.ChainID,
		Height:             header.Height,
		Root:               header.AppHash,
		NextValidatorsHash: header.NextValidatorsHash,
		Timestamp:          header.Time,
	}
	if err := store.UpsertConsensusState(tx, cs); err != nil {
		return err
	}
	// Keep only what the new trusting-period window can still reach back
	// to; the latest height itself is always retained by PruneConsensusStates.
	return store.PruneConsensusStates(tx, c.params.ChainID, header.Time.Add(-c.params.TrustingPeriod))
}

// verifyVotingPower implements steps 4-5 of spec §4.4: adjacent verification
// requires >2/3 of the trusted next-validator set's power to have signed;
// skipping verification requires only trustLevel's fraction, bisecting at
// the midpoint height and recursing on both halves when that fails.
func (c *Client) verifyVotingPower(ctx context.Context, trustedHeight int64, trustedNextVals *cmttypes.ValidatorSet, header *Header, fetch HeaderFetcher) error {
	if header.Commit == nil || header.ValidatorSet == nil {
		return &errs.LightClientError{Reason: errs.ErrInsufficientVotingPower}
	}

	var err error
	if header.Height == trustedHeight+1 {
		// Adjacent verification: the proposer's signed power must exceed
		// 2/3 of the trusted next-validator set (spec §4.4 step 4).
		err = trustedNextVals.VerifyCommitLight(
			header.ChainID, header.Commit.BlockID, header.Height, header.Commit)
	} else {
		// Skipping verification: signatories common to the trusted
		// next-validator set must exceed trust_level of its total power
		// (spec §4.4 step 5).
		err = trustedNextVals.VerifyCommitLightTrusting(
			header.ChainID, header.Commit, trustLevelFraction(c.params.TrustLevel))
	}
	if err != nil {
		return c.bisect(ctx, trustedHeight, trustedNextVals, header, fetch)
	}
	return nil
}

func trustLevelFraction(tl TrustLevel) cmtmath.Fraction {
	return cmtmath.Fraction{Numerator: uint64(tl.Numerator), Denominator: uint64(tl.Denominator)}
}

// bisect recurses on [trusted, midpoint] and [midpoint, header.Height] when
// direct/skipping verification against header fails outright, per spec
// §4.4 step 5: it fetches the midpoint header/validator set from the chain,
// verifies the lower half against trustedNextVals, then verifies the upper
// half using the midpoint's own validator set as the new trusted set. The
// interval strictly shrinks each recursion, so it terminates once no
// integer midpoint remains strictly between the two heights.
func (c *Client) bisect(ctx context.Context, trustedHeight int64, trustedNextVals *cmttypes.ValidatorSet, header *Header, fetch HeaderFetcher) error {
	if fetch == nil {
		return &errs.LightClientError{Reason: errs.ErrInsufficientVotingPower}
	}

	mid := trustedHeight + (header.Height-trustedHeight)/2
	if mid <= trustedHeight || mid >= header.Height {
		return &errs.LightClientError{Reason: errs.ErrInsufficientVotingPower}
	}

	midHeader, err := fetch(ctx, mid)
	if err != nil {
		return &errs.LightClientError{Reason: errs.ErrInsufficientVotingPower}
	}

	if err := c.verifyVotingPower(ctx, trustedHeight, trustedNextVals, midHeader, fetch); err != nil {
		return err
	}
	return c.verifyVotingPower(ctx, midHeader.Height, midHeader.ValidatorSet, header, fetch)
}

// LatestTrusted returns the most recently verified consensus state for
// this client's chain.
func (c *Client) LatestTrusted(ctx context.Context) (*store.ChainConsensusState, error) {
	return c.store.LatestConsensusState(ctx, c.params.ChainID)
}
