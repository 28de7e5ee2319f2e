// Package packet implements C8: building, sending, and finalizing ICS-20
// mint/burn packets, processing acknowledgements and timeouts.
package packet

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	ibctransfertypes "github.com/cosmos/ibc-go/v10/modules/apps/transfer/types"
	"gorm.io/gorm"

	"github.com/solo-machine/soloend/internal/address"
	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/eventbus"
	"github.com/solo-machine/soloend/internal/lightclient/solomachine"
	"github.com/solo-machine/soloend/internal/lightclient/tendermint"
	"github.com/solo-machine/soloend/internal/store"
)

// DefaultTimeoutHeightOffset is added to the latest observed chain height
// for every outbound packet's timeout_height (spec §4.8; configurability
// of this offset is an open question in spec §9, resolved in DESIGN.md).
const DefaultTimeoutHeightOffset = 100

// ChainGateway is the narrow chain-facing surface the packet engine needs.
type ChainGateway interface {
	BroadcastRecvPacket(ctx context.Context, data ibctransfertypes.FungibleTokenPacketData, sequence uint64, timeoutHeight tendermint.HeaderHeight, timeoutTimestamp uint64, proof []byte) (txHash string, err error)
	BroadcastTransfer(ctx context.Context, sender, receiver, denom string, amount sdkmath.Int, sourceChannel string, timeoutHeight tendermint.HeaderHeight, timeoutTimestamp uint64) (txHash string, err error)
	BroadcastTimeout(ctx context.Context, sequence uint64, proof []byte) error
	AwaitRecvAck(ctx context.Context, sequence uint64) (success bool, err error)
	LatestHeight(ctx context.Context) (tendermint.HeaderHeight, error)
}

// Engine builds, sends, and finalizes packets for one chain (spec §4.8).
type Engine struct {
	store       *store.Store
	solo        *solomachine.Client
	chain       ChainGateway
	events      *eventbus.Bus
	chainID     string
	diversifier string
	portID      string
	channelID   string
	keyAlgo     address.Algo
	rpcTimeout  time.Duration
	soloAddr    string
}

// New builds a packet engine bound to one chain's established channel.
// soloAddr is the solo machine's own address on the counterparty chain,
// used as the receiver of the MsgTransfer a Burn sends.
func New(s *store.Store, solo *solomachine.Client, chain ChainGateway, events *eventbus.Bus, chainID, diversifier, portID, channelID, soloAddr string, keyAlgo address.Algo, rpcTimeout time.Duration) *Engine {
	return &Engine{store: s, solo: solo, chain: chain, events: events, chainID: chainID, diversifier: diversifier, portID: portID, channelID: channelID, keyAlgo: keyAlgo, rpcTimeout: rpcTimeout, soloAddr: soloAddr}
}

// Result is returned by Mint/Burn; when a duplicate request_id resolves to
// an already-recorded result, TransactionHash is the recorded hash.
type Result struct {
	TransactionHash string
	Operation       store.OperationType
}

// Mint constructs a solo->chain MsgRecvPacket-equivalent carrying an
// ICS-20 FungibleTokenPacketData, signed by the solo-machine client, and
// records a Mint operation on success (spec §4.8).
//
// Idempotence: if requestID is non-empty and already recorded, the
// original result is returned without re-sending (spec §4.8, §8 scenario 5).
func (e *Engine) Mint(ctx context.Context, requestID, denom, amount, sender, receiver string) (*Result, error) {
	if existing, result, err := e.dedup(ctx, requestID); err != nil {
		return nil, err
	} else if existing {
		return result, nil
	}

	amt, err := sdkmath.NewIntFromString(amount)
	if err != nil {
		return nil, errs.ErrInvalidArgument.Wrapf("bad amount %q", amount)
	}

	latestHeight, err := e.chain.LatestHeight(ctx)
	if err != nil {
		return nil, errs.ErrChainRPC.Wrap(err.Error())
	}
	timeoutHeight := tendermint.HeaderHeight{
		RevisionNumber: latestHeight.RevisionNumber,
		RevisionHeight: latestHeight.RevisionHeight + DefaultTimeoutHeightOffset,
	}
	timeoutTimestamp := uint64(time.Now().Add(e.rpcTimeout).UnixNano())

	data := ibctransfertypes.FungibleTokenPacketData{
		Denom:    denom,
		Amount:   amt.String(),
		Sender:   sender,
		Receiver: receiver,
	}

	var seq uint64
	var proof []byte
	err = e.store.WithChainLock(ctx, e.chainID, func(tx *gorm.DB) error {
		seq, err = store.NextPacketSequence(tx, e.chainID)
		if err != nil {
			return err
		}
		sig, err := e.solo.Sign(ctx, tx, e.diversifier, address.DataTypePacketCommitment, commitmentBytes(data), e.keyAlgo)
		if err != nil {
			return err
		}
		proof = sig.Signature
		return nil
	})
	if err != nil {
		return nil, err
	}

	txHash, err := e.chain.BroadcastRecvPacket(ctx, data, seq, timeoutHeight, timeoutTimestamp, proof)
	if err != nil {
		return nil, err
	}

	if err := e.recordOperation(ctx, requestID, store.OperationMint, receiver, denom, amount, txHash); err != nil {
		return nil, err
	}

	if err := e.events.Emit(ctx, eventbus.Event{
		Kind:    eventbus.TokensMinted,
		ChainID: e.chainID,
		Payload: map[string]interface{}{"denom": denom, "amount": amount, "transaction_hash": txHash},
	}); err != nil {
		return nil, err
	}

	return &Result{TransactionHash: txHash, Operation: store.OperationMint}, nil
}

// Burn constructs a chain-side MsgTransfer sending tokens from the caller's
// chain account to the solo-machine channel, awaits the ack, and records a
// Burn operation (spec §4.8).
func (e *Engine) Burn(ctx context.Context, requestID, sender, denom, amount string) (*Result, error) {
	if existing, result, err := e.dedup(ctx, requestID); err != nil {
		return nil, err
	} else if existing {
		return result, nil
	}

	amt, err := sdkmath.NewIntFromString(amount)
	if err != nil {
		return nil, errs.ErrInvalidArgument.Wrapf("bad amount %q", amount)
	}

	latestHeight, err := e.chain.LatestHeight(ctx)
	if err != nil {
		return nil, errs.ErrChainRPC.Wrap(err.Error())
	}
	timeoutHeight := tendermint.HeaderHeight{
		RevisionNumber: latestHeight.RevisionNumber,
		RevisionHeight: latestHeight.RevisionHeight + DefaultTimeoutHeightOffset,
	}
	timeoutTimestamp := uint64(time.Now().Add(e.rpcTimeout).UnixNano())

	var seq uint64
	if err := e.store.WithChainLock(ctx, e.chainID, func(tx *gorm.DB) error {
		var innerErr error
		seq, innerErr = store.NextPacketSequence(tx, e.chainID)
		return innerErr
	}); err != nil {
		return nil, err
	}

	txHash, err := e.chain.BroadcastTransfer(ctx, sender, e.soloAddr, denom, amt, e.channelID, timeoutHeight, timeoutTimestamp)
	if err != nil {
		return nil, err
	}

	success, err := e.chain.AwaitRecvAck(ctx, seq)
	if err != nil {
		return nil, errs.ErrChainRPC.Wrap(err.Error())
	}
	if !success {
		return nil, errs.ErrPacketNotFound.Wrapf("recv_packet ack not observed for sequence %d", seq)
	}

	if err := e.recordOperation(ctx, requestID, store.OperationBurn, sender, denom, amount, txHash); err != nil {
		return nil, err
	}

	if err := e.events.Emit(ctx, eventbus.Event{
		Kind:    eventbus.TokensBurned,
		ChainID: e.chainID,
		Payload: map[string]interface{}{"denom": denom, "amount": amount, "transaction_hash": txHash},
	}); err != nil {
		return nil, err
	}

	return &Result{TransactionHash: txHash, Operation: store.OperationBurn}, nil
}

// HandleTimeout sends MsgTimeout for a packet whose timeout has elapsed.
// On confirmation the packet is extinguished with no success ledger entry,
// but a TimedOut event is emitted (spec §4.8).
func (e *Engine) HandleTimeout(ctx context.Context, sequence uint64) error {
	var proof []byte
	err := e.store.WithChainLock(ctx, e.chainID, func(tx *gorm.DB) error {
		sig, err := e.solo.Sign(ctx, tx, e.diversifier, address.DataTypeNextSequenceRecv, nil, e.keyAlgo)
		if err != nil {
			return err
		}
		proof = sig.Signature
		return nil
	})
	if err != nil {
		return err
	}

	if err := e.chain.BroadcastTimeout(ctx, sequence, proof); err != nil {
		return err
	}

	return e.events.Emit(ctx, eventbus.Event{
		Kind:    eventbus.PacketTimedOut,
		ChainID: e.chainID,
		Payload: map[string]interface{}{"sequence": sequence},
	})
}

func (e *Engine) dedup(ctx context.Context, requestID string) (bool, *Result, error) {
	if requestID == "" {
		return false, nil, nil
	}
	var found *store.Operation
	err := e.store.WithChainLock(ctx, e.chainID, func(tx *gorm.DB) error {
		op, ok, err := store.FindOperationByRequestID(tx, e.chainID, requestID)
		if err != nil {
			return err
		}
		if ok {
			found = op
		}
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	if found == nil {
		return false, nil, nil
	}
	return true, &Result{TransactionHash: found.TransactionHash, Operation: found.OperationType}, nil
}

func (e *Engine) recordOperation(ctx context.Context, requestID string, opType store.OperationType, addr, denom, amount, txHash string) error {
	var reqIDPtr *string
	if requestID != "" {
		reqIDPtr = &requestID
	}
	return e.store.WithChainLock(ctx, e.chainID, func(tx *gorm.DB) error {
		return store.AppendOperation(tx, &store.Operation{
			ChainID:         e.chainID,
			RequestID:       reqIDPtr,
			Address:         addr,
			Denom:           denom,
			Amount:          amount,
			OperationType:   opType,
			TransactionHash: txHash,
		})
	})
}

// commitmentBytes is the packet-commitment payload signed over for a mint:
// the ICS-20 data marshalled the same way the chain hashes its own
// commitments, so proof verification lines up on both sides.
func commitmentBytes(data ibctransfertypes.FungibleTokenPacketData) []byte {
	bz, err := data.GetBytes()
	if err != nil {
		return nil
	}
	return bz
}
