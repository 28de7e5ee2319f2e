// Package wiring builds the per-chain engines (handshake orchestrator,
// packet engine, light clients) on demand and implements api.Engines over
// them, so the CLI/gRPC surface never constructs protocol internals itself.
package wiring

import (
	"context"
	"strconv"
	"strings"
	"time"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gorm.io/gorm"

	sdk "github.com/cosmos/cosmos-sdk/types"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"

	"github.com/solo-machine/soloend/internal/address"
	"github.com/solo-machine/soloend/internal/api"
	"github.com/solo-machine/soloend/internal/chaingateway"
	"github.com/solo-machine/soloend/internal/codec"
	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/eventbus"
	"github.com/solo-machine/soloend/internal/handshake"
	"github.com/solo-machine/soloend/internal/lightclient/solomachine"
	"github.com/solo-machine/soloend/internal/lightclient/tendermint"
	"github.com/solo-machine/soloend/internal/packet"
	"github.com/solo-machine/soloend/internal/plugin"
	"github.com/solo-machine/soloend/internal/store"
	"github.com/solo-machine/soloend/internal/txclient"
)

// rpcPollInterval/deliverPollTimeout pace and bound the gRPC deliverer's
// GetTx polling for a submitted transaction; ackAwaitTimeout bounds how long
// the Gateway polls for a packet acknowledgement, at the Gateway's own
// ackPollInterval (spec §4.6, §4.8).
const (
	rpcPollInterval    = 2 * time.Second
	deliverPollTimeout = 30 * time.Second
	ackAwaitTimeout    = 60 * time.Second
)

var _ api.Engines = (*Engines)(nil)

// Engines builds and dispatches to per-chain orchestrators/packet engines.
type Engines struct {
	store    *store.Store
	registry *plugin.Registry
	bus      *eventbus.Bus
	codec    *codec.Codec
}

// New builds an Engines dispatcher over the shared store, plugin registry,
// event bus, and codec.
func New(s *store.Store, registry *plugin.Registry, bus *eventbus.Bus, cdc *codec.Codec) *Engines {
	return &Engines{store: s, registry: registry, bus: bus, codec: cdc}
}

func (e *Engines) dial(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// forChain loads rec and builds the gateway/orchestrator/packet-engine
// triple for one chain_id, per spec §5's "operations on the same chain_id
// are serialized" model: every call rebuilds from the latest durable state.
func (e *Engines) forChain(ctx context.Context, chainID string) (*store.ChainRecord, *handshake.Orchestrator, *packet.Engine, error) {
	rec, err := e.store.GetChain(ctx, chainID)
	if err != nil {
		return nil, nil, nil, err
	}

	conn, err := e.dial(ctx, rec.GRPCAddr)
	if err != nil {
		return nil, nil, nil, errs.ErrChainRPC.Wrap(err.Error())
	}

	trustLevel := tendermint.TrustLevel{Numerator: 1, Denominator: 3}
	if rec.TrustLevel != "" {
		num, den, ok := strings.Cut(rec.TrustLevel, "/")
		n, errN := strconv.ParseInt(num, 10, 64)
		d, errD := strconv.ParseInt(den, 10, 64)
		if !ok || errN != nil || errD != nil || n <= 0 || d <= 0 {
			return nil, nil, nil, errs.ErrInvalidArgument.Wrapf("bad trust level %q", rec.TrustLevel)
		}
		trustLevel = tendermint.TrustLevel{Numerator: n, Denominator: d}
	}

	soloClient := solomachine.New(chainID, e.registry, e.codec, e.store)
	tmClient := tendermint.New(tendermint.Params{
		ChainID:        chainID,
		TrustLevel:     trustLevel,
		TrustingPeriod: rec.TrustingPeriod,
		MaxClockDrift:  rec.MaxClockDrift,
	}, e.store)

	txFee := txclient.Fee{Denom: rec.FeeDenom, GasLimit: rec.GasLimit}
	if amt, err := codec.DecodeAmount(rec.FeeAmount); err == nil {
		txFee.Amount = amt
	}

	rpcClient, err := rpchttp.New(rec.RPCAddr, "/websocket")
	if err != nil {
		return nil, nil, nil, errs.ErrChainRPC.Wrap(err.Error())
	}

	var channelID string
	if rec.ConnectionDetails != nil {
		channelID = rec.ConnectionDetails.ChainChannelID
	}

	authClient := authtypes.NewQueryClient(conn)
	account := func(ctx context.Context) (txclient.AccountInfo, error) {
		pk, err := soloClient.PublicKey(ctx, address.Algo(rec.SigningAlgo))
		if err != nil {
			return txclient.AccountInfo{}, err
		}
		addr, err := address.Address(pk, rec.AccountPrefix)
		if err != nil {
			return txclient.AccountInfo{}, err
		}
		resp, err := authClient.Account(ctx, &authtypes.QueryAccountRequest{Address: addr})
		if err != nil {
			return txclient.AccountInfo{}, err
		}
		var baseAccount authtypes.AccountI
		if err := e.codec.UnpackAny(resp.Account, &baseAccount); err != nil {
			return txclient.AccountInfo{}, err
		}
		accAddr, err := sdk.AccAddressFromBech32(addr)
		if err != nil {
			return txclient.AccountInfo{}, err
		}
		return txclient.AccountInfo{
			Address:       accAddr,
			PubKey:        address.CryptoPubKey(pk),
			AccountNumber: baseAccount.GetAccountNumber(),
			Sequence:      baseAccount.GetSequence(),
		}, nil
	}
	deliverer := txclient.NewGRPCDeliverer(conn, rpcPollInterval, deliverPollTimeout)

	txConfig := authtx.NewTxConfig(e.codec.ProtoCodecUnsafe(), authtx.DefaultSignModes)
	txc := txclient.New(conn, txConfig, e.registry, chainID, rec.SigningAlgo)
	gateway := chaingateway.New(conn, rpcClient, txc, txFee, rec.PortID, channelID, ackAwaitTimeout, account, deliverer)

	orchestrator := handshake.New(e.store, soloClient, tmClient, gateway, e.bus, chainID, rec.Diversifier, rec.PortID, address.Algo(rec.SigningAlgo))

	var soloAddr string
	if pk, err := soloClient.PublicKey(ctx, address.Algo(rec.SigningAlgo)); err == nil {
		if addr, err := address.Address(pk, rec.AccountPrefix); err == nil {
			soloAddr = addr
		}
	}

	engine := packet.New(e.store, soloClient, gateway, e.bus, chainID, rec.Diversifier, rec.PortID, channelID, soloAddr, address.Algo(rec.SigningAlgo), rpcTimeoutOrDefault(rec))

	return rec, orchestrator, engine, nil
}

func rpcTimeoutOrDefault(rec *store.ChainRecord) time.Duration {
	return 30 * time.Second
}

// Connect implements api.Engines.
func (e *Engines) Connect(ctx context.Context, chainID, requestID, memo string, force bool) error {
	_, orchestrator, _, err := e.forChain(ctx, chainID)
	if err != nil {
		return err
	}
	return orchestrator.Connect(ctx, requestID, memo, force)
}

// Mint implements api.Engines.
func (e *Engines) Mint(ctx context.Context, chainID, requestID, memo, amount, denom, receiver string) (string, error) {
	rec, _, engine, err := e.forChain(ctx, chainID)
	if err != nil {
		return "", err
	}
	var soloAddr string
	if pk, err := solomachine.New(chainID, e.registry, e.codec, e.store).PublicKey(ctx, address.Algo(rec.SigningAlgo)); err == nil {
		if addr, err := address.Address(pk, rec.AccountPrefix); err == nil {
			soloAddr = addr
		}
	}
	if receiver == "" {
		receiver = soloAddr
	}
	result, err := engine.Mint(ctx, requestID, denom, amount, soloAddr, receiver)
	if err != nil {
		return "", err
	}
	return result.TransactionHash, nil
}

// Burn implements api.Engines.
func (e *Engines) Burn(ctx context.Context, chainID, requestID, memo, amount, denom string) (string, error) {
	rec, _, engine, err := e.forChain(ctx, chainID)
	if err != nil {
		return "", err
	}
	// The gateway signs with the solo machine's own chain account, so that
	// account is the MsgTransfer sender.
	pk, err := solomachine.New(chainID, e.registry, e.codec, e.store).PublicKey(ctx, address.Algo(rec.SigningAlgo))
	if err != nil {
		return "", err
	}
	sender, err := address.Address(pk, rec.AccountPrefix)
	if err != nil {
		return "", err
	}
	result, err := engine.Burn(ctx, requestID, sender, denom, amount)
	if err != nil {
		return "", err
	}
	return result.TransactionHash, nil
}

// UpdateSigner implements api.Engines: records the new public key in the
// chain-keys ledger. Whether rotation applies to in-flight signatures or
// only future ones is resolved in DESIGN.md (spec §9 Open Question) — this
// repo takes the "future signatures only" reading, so UpdateSigner only
// appends the ledger row; the signer plugin itself starts returning the
// new key on its own schedule.
func (e *Engines) UpdateSigner(ctx context.Context, chainID, requestID, memo string, newPubKey address.PublicKey, algo address.Algo) error {
	err := e.store.WithChainLock(ctx, chainID, func(tx *gorm.DB) error {
		return solomachine.RecordKeyRotation(tx, chainID, newPubKey)
	})
	if err != nil {
		return err
	}
	return e.bus.Emit(ctx, eventbus.Event{
		Kind:    eventbus.SignerUpdated,
		ChainID: chainID,
		Payload: map[string]interface{}{"public_key_algo": string(algo)},
	})
}
