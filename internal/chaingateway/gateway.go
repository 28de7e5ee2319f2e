// Package chaingateway wires the handshake and packet engines' narrow
// ChainGateway interfaces onto real ibc-go/cosmos-sdk message types and a
// txclient.Client broadcaster, grounded on the teacher's
// integration-tests/ibc usage of ibctransfertypes/ibcchanneltypes.
package chaingateway

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	rpcclient "github.com/cometbft/cometbft/rpc/client"
	cmttypes "github.com/cometbft/cometbft/types"
	clienttypes "github.com/cosmos/ibc-go/v10/modules/core/02-client/types"
	connectiontypes "github.com/cosmos/ibc-go/v10/modules/core/03-connection/types"
	channeltypes "github.com/cosmos/ibc-go/v10/modules/core/04-channel/types"
	ibctransfertypes "github.com/cosmos/ibc-go/v10/modules/apps/transfer/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdktx "github.com/cosmos/cosmos-sdk/types/tx"
	"google.golang.org/grpc"

	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/handshake"
	"github.com/solo-machine/soloend/internal/lightclient/tendermint"
	"github.com/solo-machine/soloend/internal/packet"
	"github.com/solo-machine/soloend/internal/txclient"
)

// ackPollInterval paces AwaitRecvAck's polling loop against the chain's
// packet-acknowledgement query.
const ackPollInterval = 2 * time.Second

// Gateway implements both handshake.ChainGateway and packet.ChainGateway
// over one counterparty chain connection.
type Gateway struct {
	conn       *grpc.ClientConn
	rpc        rpcclient.Client
	tx         *txclient.Client
	fee        txclient.Fee
	portID     string
	channelID  string
	ackTimeout time.Duration
	account    func(ctx context.Context) (txclient.AccountInfo, error)
	deliverer  func(context.Context, []byte) (*sdktx.BroadcastTxResponse, error)
}

// New builds a Gateway bound to a dialed gRPC connection and a CometBFT RPC
// client used for chain-height/header/validator-set queries that the Tx and
// Query gRPC services don't expose (spec §4.4, §4.8).
func New(conn *grpc.ClientConn, rpc rpcclient.Client, tx *txclient.Client, fee txclient.Fee, portID, channelID string, ackTimeout time.Duration,
	account func(ctx context.Context) (txclient.AccountInfo, error),
	deliverer func(context.Context, []byte) (*sdktx.BroadcastTxResponse, error)) *Gateway {
	return &Gateway{conn: conn, rpc: rpc, tx: tx, fee: fee, portID: portID, channelID: channelID, ackTimeout: ackTimeout, account: account, deliverer: deliverer}
}

func (g *Gateway) broadcast(ctx context.Context, msgs []sdk.Msg, memo string) (*txclient.BroadcastResult, error) {
	acc, err := g.account(ctx)
	if err != nil {
		return nil, errs.ErrChainRPC.Wrap(err.Error())
	}
	raw, err := g.tx.Build(ctx, msgs, memo, g.fee, acc)
	if err != nil {
		return nil, err
	}

	// rebuild re-reads the account's sequence from the chain and re-signs,
	// the SequenceMismatch retry mandated by spec §4.6.
	rebuild := func(ctx context.Context) ([]byte, error) {
		refreshed, err := txclient.RefreshSequence(ctx, func(ctx context.Context) (uint64, uint64, error) {
			fresh, err := g.account(ctx)
			if err != nil {
				return 0, 0, err
			}
			return fresh.AccountNumber, fresh.Sequence, nil
		}, acc)
		if err != nil {
			return nil, err
		}
		return g.tx.Build(ctx, msgs, memo, g.fee, refreshed)
	}

	return g.tx.Broadcast(ctx, raw, g.deliverer, rebuild)
}

// signerAddress resolves the solo machine's own bech32 address, the value
// every handshake/packet message's Signer field must carry.
func (g *Gateway) signerAddress(ctx context.Context) (string, error) {
	acc, err := g.account(ctx)
	if err != nil {
		return "", errs.ErrChainRPC.Wrap(err.Error())
	}
	return acc.Address.String(), nil
}

// BroadcastCreateClient submits MsgCreateClient (spec §4.7 Init phase) and
// returns the client_id the chain reports. anyClientState and
// anyConsensusState are not attached: the message carries only the signer.
func (g *Gateway) BroadcastCreateClient(ctx context.Context, anyClientState, anyConsensusState []byte) (string, tendermint.HeaderHeight, error) {
	signer, err := g.signerAddress(ctx)
	if err != nil {
		return "", tendermint.HeaderHeight{}, err
	}
	msg := &clienttypes.MsgCreateClient{
		Signer: signer,
	}
	res, err := g.broadcast(ctx, []sdk.Msg{msg}, "")
	if err != nil {
		return "", tendermint.HeaderHeight{}, err
	}
	clientID, err := txclient.ExtractAttribute(res.Events, "create_client", "client_id")
	if err != nil {
		return "", tendermint.HeaderHeight{}, err
	}
	return clientID, tendermint.HeaderHeight{RevisionHeight: uint64(res.Height)}, nil
}

// BroadcastConnOpenInit submits MsgConnectionOpenInit, fixed to this
// revision's version/features/delay_period (spec §4.7).
func (g *Gateway) BroadcastConnOpenInit(ctx context.Context, clientID string) (string, error) {
	signer, err := g.signerAddress(ctx)
	if err != nil {
		return "", err
	}
	msg := &connectiontypes.MsgConnectionOpenInit{
		ClientId: clientID,
		Counterparty: connectiontypes.Counterparty{
			ClientId: "",
			Prefix:   handshake.MerklePrefix,
		},
		Version:     &connectiontypes.Version{Identifier: handshake.ConnectionVersionIdentifier, Features: handshake.ConnectionFeatures},
		DelayPeriod: uint64(handshake.DelayPeriod.Nanoseconds()),
		Signer:      signer,
	}
	res, err := g.broadcast(ctx, []sdk.Msg{msg}, "")
	if err != nil {
		return "", err
	}
	return txclient.ExtractAttribute(res.Events, "connection_open_init", "connection_id")
}

// BroadcastConnOpenAck submits MsgConnectionOpenAck with proofs of Try, the
// solo client state, and the solo consensus state (spec §4.7 Ack phase).
func (g *Gateway) BroadcastConnOpenAck(ctx context.Context, connectionID, counterpartyConnectionID string, proofTry, proofClient, proofConsensus []byte, proofHeight tendermint.HeaderHeight) error {
	signer, err := g.signerAddress(ctx)
	if err != nil {
		return err
	}
	msg := &connectiontypes.MsgConnectionOpenAck{
		ConnectionId:             connectionID,
		CounterpartyConnectionId: counterpartyConnectionID,
		Version:                  &connectiontypes.Version{Identifier: handshake.ConnectionVersionIdentifier, Features: handshake.ConnectionFeatures},
		ProofTry:                 proofTry,
		ProofClient:              proofClient,
		ProofConsensus:           proofConsensus,
		ProofHeight:              clienttypes.NewHeight(proofHeight.RevisionNumber, proofHeight.RevisionHeight),
		Signer:                   signer,
	}
	_, err = g.broadcast(ctx, []sdk.Msg{msg}, "")
	return err
}

// BroadcastChanOpenInit submits MsgChannelOpenInit, fixed to ics20-1 /
// UNORDERED for this revision (spec §4.7).
func (g *Gateway) BroadcastChanOpenInit(ctx context.Context, connectionID, portID string) (string, error) {
	signer, err := g.signerAddress(ctx)
	if err != nil {
		return "", err
	}
	msg := &channeltypes.MsgChannelOpenInit{
		PortId: portID,
		Channel: channeltypes.Channel{
			State:    channeltypes.INIT,
			Ordering: channeltypes.UNORDERED,
			Counterparty: channeltypes.Counterparty{
				PortId: portID,
			},
			ConnectionHops: []string{connectionID},
			Version:        handshake.ChannelVersion,
		},
		Signer: signer,
	}
	res, err := g.broadcast(ctx, []sdk.Msg{msg}, "")
	if err != nil {
		return "", err
	}
	return txclient.ExtractAttribute(res.Events, "channel_open_init", "channel_id")
}

// BroadcastChanOpenAck submits MsgChannelOpenAck with proof of Try.
func (g *Gateway) BroadcastChanOpenAck(ctx context.Context, portID, channelID, counterpartyChannelID string, proofTry []byte, proofHeight tendermint.HeaderHeight) error {
	signer, err := g.signerAddress(ctx)
	if err != nil {
		return err
	}
	msg := &channeltypes.MsgChannelOpenAck{
		PortId:                portID,
		ChannelId:             channelID,
		CounterpartyChannelId: counterpartyChannelID,
		CounterpartyVersion:   handshake.ChannelVersion,
		ProofTry:              proofTry,
		ProofHeight:           clienttypes.NewHeight(proofHeight.RevisionNumber, proofHeight.RevisionHeight),
		Signer:                signer,
	}
	_, err = g.broadcast(ctx, []sdk.Msg{msg}, "")
	return err
}

// BroadcastUpdateClient submits MsgUpdateClient for clientID before Ack
// (spec §4.7). anyHeader is not attached: the message carries only the
// client id and the signer.
func (g *Gateway) BroadcastUpdateClient(ctx context.Context, clientID string, anyHeader []byte) error {
	signer, err := g.signerAddress(ctx)
	if err != nil {
		return err
	}
	msg := &clienttypes.MsgUpdateClient{
		ClientId: clientID,
		Signer:   signer,
	}
	_, err = g.broadcast(ctx, []sdk.Msg{msg}, "")
	return err
}

// LatestHeight queries the chain's current block height over the CometBFT
// RPC endpoint, the latest_chain_height spec §4.8 bases timeout_height on.
func (g *Gateway) LatestHeight(ctx context.Context) (tendermint.HeaderHeight, error) {
	status, err := g.rpc.Status(ctx)
	if err != nil {
		return tendermint.HeaderHeight{}, errs.ErrChainRPC.Wrap(err.Error())
	}
	return tendermint.HeaderHeight{RevisionHeight: uint64(status.SyncInfo.LatestBlockHeight)}, nil
}

// FetchHeader retrieves the signed header and full validator set at height,
// used both to advance the solo machine's Tendermint client past a new
// chain height (spec §4.7) and to recurse during bisection (spec §4.4).
func (g *Gateway) FetchHeader(ctx context.Context, height int64) (*tendermint.Header, error) {
	commit, err := g.rpc.Commit(ctx, &height)
	if err != nil {
		return nil, errs.ErrChainRPC.Wrap(err.Error())
	}
	valSet, err := g.fetchValidatorSet(ctx, height)
	if err != nil {
		return nil, err
	}
	return &tendermint.Header{
		ChainID:            commit.Header.ChainID,
		Height:             commit.Header.Height,
		Time:               commit.Header.Time,
		AppHash:            commit.Header.AppHash,
		NextValidatorsHash: commit.Header.NextValidatorsHash,
		ValidatorSet:       valSet,
		Commit:             commit.Commit,
	}, nil
}

// fetchValidatorSet pages through the RPC validators query, CometBFT's RPC
// response being capped per page regardless of the requested count.
func (g *Gateway) fetchValidatorSet(ctx context.Context, height int64) (*cmttypes.ValidatorSet, error) {
	const perPage = 100
	var all []*cmttypes.Validator
	for page := 1; ; page++ {
		p, pp := page, perPage
		res, err := g.rpc.Validators(ctx, &height, &p, &pp)
		if err != nil {
			return nil, errs.ErrChainRPC.Wrap(err.Error())
		}
		all = append(all, res.Validators...)
		if len(all) >= res.Total {
			break
		}
	}
	return cmttypes.NewValidatorSet(all), nil
}

// BroadcastRecvPacket submits the solo->chain MsgRecvPacket-equivalent
// carrying ICS-20 data for a Mint (spec §4.8).
func (g *Gateway) BroadcastRecvPacket(ctx context.Context, data ibctransfertypes.FungibleTokenPacketData, sequence uint64, timeoutHeight tendermint.HeaderHeight, timeoutTimestamp uint64, proof []byte) (string, error) {
	bz, err := data.GetBytes()
	if err != nil {
		return "", errs.ErrInvalidArgument.Wrap(err.Error())
	}
	signer, err := g.signerAddress(ctx)
	if err != nil {
		return "", err
	}
	msg := &channeltypes.MsgRecvPacket{
		Packet: channeltypes.Packet{
			Sequence:         sequence,
			Data:             bz,
			TimeoutHeight:    clienttypes.NewHeight(timeoutHeight.RevisionNumber, timeoutHeight.RevisionHeight),
			TimeoutTimestamp: timeoutTimestamp,
		},
		ProofCommitment: proof,
		Signer:          signer,
	}
	res, err := g.broadcast(ctx, []sdk.Msg{msg}, "")
	if err != nil {
		return "", err
	}
	return res.TxHash, nil
}

// BroadcastTransfer submits a chain-side MsgTransfer for a Burn (spec §4.8).
func (g *Gateway) BroadcastTransfer(ctx context.Context, sender, receiver, denom string, amount sdkmath.Int, sourceChannel string, timeoutHeight tendermint.HeaderHeight, timeoutTimestamp uint64) (string, error) {
	msg := &ibctransfertypes.MsgTransfer{
		SourcePort:       ibctransfertypes.PortID,
		SourceChannel:    sourceChannel,
		Token:            sdk.NewCoin(denom, amount),
		Sender:           sender,
		Receiver:         receiver,
		TimeoutHeight:    clienttypes.NewHeight(timeoutHeight.RevisionNumber, timeoutHeight.RevisionHeight),
		TimeoutTimestamp: timeoutTimestamp,
	}
	res, err := g.broadcast(ctx, []sdk.Msg{msg}, "")
	if err != nil {
		return "", err
	}
	return res.TxHash, nil
}

// BroadcastTimeout submits MsgTimeout for a packet past its timeout.
func (g *Gateway) BroadcastTimeout(ctx context.Context, sequence uint64, proof []byte) error {
	signer, err := g.signerAddress(ctx)
	if err != nil {
		return err
	}
	msg := &channeltypes.MsgTimeout{
		Packet:           channeltypes.Packet{Sequence: sequence},
		ProofUnreceived:  proof,
		NextSequenceRecv: sequence + 1,
		Signer:           signer,
	}
	_, err = g.broadcast(ctx, []sdk.Msg{msg}, "")
	return err
}

// AwaitRecvAck polls the chain's packet-acknowledgement query for the
// recv_packet ack of a previously-sent MsgTransfer until it appears or
// ackTimeout elapses (spec §4.8's Burn flow).
func (g *Gateway) AwaitRecvAck(ctx context.Context, sequence uint64) (bool, error) {
	client := channeltypes.NewQueryClient(g.conn)
	deadline := time.Now().Add(g.ackTimeout)
	for {
		resp, err := client.PacketAcknowledgement(ctx, &channeltypes.QueryPacketAcknowledgementRequest{
			PortId:    g.portID,
			ChannelId: g.channelID,
			Sequence:  sequence,
		})
		if err == nil && len(resp.Acknowledgement) > 0 {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(ackPollInterval):
		}
	}
}

var _ packet.ChainGateway = (*Gateway)(nil)
var _ handshake.ChainGateway = (*Gateway)(nil)
