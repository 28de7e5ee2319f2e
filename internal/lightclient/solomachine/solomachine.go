// Package solomachine implements C5: the sequence counter, signer binding,
// and production of solo-machine proofs described in spec §4.5.
package solomachine

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/solo-machine/soloend/internal/address"
	"github.com/solo-machine/soloend/internal/codec"
	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/plugin"
	"github.com/solo-machine/soloend/internal/store"
)

// ConsensusData is the conceptual (not separately persisted) solo-machine
// consensus state of spec §3: identity is the public key plus diversifier,
// timestamp advances monotonically.
type ConsensusData struct {
	PublicKey   address.PublicKey
	Diversifier string
	Timestamp   time.Time
}

// TimestampedSignatureData is the chain-expected proof envelope (spec §4.1/§4.5).
type TimestampedSignatureData struct {
	Signature []byte
	Timestamp uint64
}

// Client is the per-chain solo-machine state machine. It is stateless apart
// from sequence/consensus_timestamp, which live on the chain record.
type Client struct {
	chainID string
	signers *plugin.Registry
	codec   *codec.Codec
	store   *store.Store
}

// New builds a solo-machine client bound to one chain.
func New(chainID string, signers *plugin.Registry, cdc *codec.Codec, s *store.Store) *Client {
	return &Client{chainID: chainID, signers: signers, codec: cdc, store: s}
}

// Sign implements spec §4.5's five-step proof production: the sequence
// increment and the resulting signature become durable atomically (the
// caller's tx), and on abort the increment is rolled back by the database
// transaction itself.
func (c *Client) Sign(ctx context.Context, tx *gorm.DB, diversifier string, dataType address.DataType, data []byte, keyAlgo address.Algo) (*TimestampedSignatureData, error) {
	seq, err := store.NextSequence(tx, c.chainID)
	if err != nil {
		return nil, errs.ErrStorage.Wrap(err.Error())
	}

	var rec store.ChainRecord
	if err := tx.Where("chain_id = ?", c.chainID).First(&rec).Error; err != nil {
		return nil, errs.ErrStorage.Wrap(err.Error())
	}
	timestamp := uint64(rec.ConsensusTimestamp.Unix())

	signInput := address.SignBytesInput{
		Sequence:    seq,
		Timestamp:   timestamp,
		Diversifier: diversifier,
		DataType:    dataType,
		Data:        data,
	}
	signBytes, err := EncodeSignBytes(c.codec, signInput)
	if err != nil {
		return nil, err
	}
	digest := address.Digest(signBytes)

	signer, ok := c.signers.SignerFor(c.chainID)
	if !ok {
		return nil, errs.ErrSignerUnavailable.Wrapf("no signer registered for chain %q", c.chainID)
	}
	sig, err := signer.Sign(ctx, c.chainID, string(keyAlgo), digest[:])
	if err != nil {
		return nil, errs.ErrSignerUnavailable.Wrap(err.Error())
	}

	// consensus_timestamp moves to the current time after every signature
	// whenever that is later, so it never decreases (spec §3 invariant).
	// Proofs are stamped in whole Unix seconds, so proofs signed within the
	// same second carry the same timestamp.
	next := time.Now().UTC()
	if next.After(rec.ConsensusTimestamp) {
		if err := store.AdvanceConsensusTimestamp(tx, c.chainID, next); err != nil {
			return nil, errs.ErrStorage.Wrap(err.Error())
		}
	}

	return &TimestampedSignatureData{Signature: sig, Timestamp: timestamp}, nil
}

// PublicKey fetches the signer plugin's current public key for this chain,
// used both to bind sign_bytes verification and to append chain-keys rows
// on rotation (spec §4.1, §3 chain-keys ledger).
func (c *Client) PublicKey(ctx context.Context, keyAlgo address.Algo) (address.PublicKey, error) {
	signer, ok := c.signers.SignerFor(c.chainID)
	if !ok {
		return address.PublicKey{}, errs.ErrSignerUnavailable.Wrapf("no signer registered for chain %q", c.chainID)
	}
	pkBytes, err := signer.PublicKey(ctx, c.chainID)
	if err != nil {
		return address.PublicKey{}, errs.ErrSignerUnavailable.Wrap(err.Error())
	}
	return address.PublicKey{Algo: keyAlgo, Bytes: pkBytes}, nil
}

// RecordKeyRotation appends a ChainKey row for pk, supporting UpdateSigner; a
// key already recorded for this chain fails with ErrConflict through the
// unique (chain_id, public_key) index (spec §6, §9 Open Question:
// this repo treats rotation as "future signatures only", resolved in DESIGN.md).
func RecordKeyRotation(tx *gorm.DB, chainID string, pk address.PublicKey) error {
	return store.AppendChainKey(tx, &store.ChainKey{ChainID: chainID, PublicKey: pk.Bytes})
}
