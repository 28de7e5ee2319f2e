// Package api implements C11's gRPC-service-shaped surface (spec §6). The
// wire-level protobuf/gRPC codegen is out of scope per spec §1 ("the gRPC
// service surface that wraps the core... specified only at their
// interface"); Service below is that interface, called directly by the
// CLI and wrapped by a minimal grpc.Server exposing only health-checking
// (see Serve in server.go) so `start` has a real listening gRPC port.
package api

import (
	"context"

	"github.com/solo-machine/soloend/internal/address"
	"github.com/solo-machine/soloend/internal/config"
	"github.com/solo-machine/soloend/internal/errs"
	"github.com/solo-machine/soloend/internal/store"
)

// ChainSummary is the response shape of Chain.Query (spec §6).
type ChainSummary struct {
	ChainID            string
	NodeID             string
	Config             config.ChainConfig
	ConsensusTimestamp int64
	Sequence           uint64
	PacketSequence     uint64
	ConnectionDetails  *store.ConnectionDetails
	CreatedAt          int64
	UpdatedAt          int64
}

// Engines is the set of per-chain engines the service dispatches into;
// the wiring implementation rebuilds them from the stored chain record on
// every call, per spec §5's per-chain serialization model.
type Engines interface {
	Connect(ctx context.Context, chainID, requestID, memo string, force bool) error
	Mint(ctx context.Context, chainID, requestID, memo, amount, denom, receiver string) (string, error)
	Burn(ctx context.Context, chainID, requestID, memo, amount, denom string) (string, error)
	UpdateSigner(ctx context.Context, chainID, requestID, memo string, newPubKey address.PublicKey, algo address.Algo) error
}

// Service implements the Chain and Ibc gRPC services of spec §6.
type Service struct {
	store   *store.Store
	engines Engines
}

// New builds the service over the durable store and the wired engines.
func New(s *store.Store, engines Engines) *Service {
	return &Service{store: s, engines: engines}
}

// AddChain implements Chain.Add.
func (s *Service) AddChain(ctx context.Context, cfg config.ChainConfig) (string, error) {
	if cfg.ChainID == "" {
		return "", errs.ErrInvalidArgument.Wrap("chain_id is required")
	}
	rec := &store.ChainRecord{
		ChainID:       cfg.ChainID,
		RPCAddr:       cfg.RPCAddr,
		GRPCAddr:      cfg.GRPCAddr,
		AccountPrefix: cfg.AccountPrefix,
		FeeAmount:     cfg.Fee.Amount,
		FeeDenom:      cfg.Fee.Denom,
		GasLimit:      cfg.Fee.GasLimit,
		TrustLevel:     cfg.Trust.TrustLevel,
		TrustingPeriod: cfg.Trust.TrustingPeriod.AsDuration(),
		MaxClockDrift:  cfg.Trust.MaxClockDrift.AsDuration(),
		Diversifier:    cfg.Diversifier,
		PortID:         defaultPortID(cfg.PortID),
		SigningAlgo:    defaultAlgo(cfg.SigningAlgo),
		TrustedHeight:  cfg.TrustedHeight,
		TrustedHash:    cfg.TrustedHash,
	}
	if err := s.store.AddChain(ctx, rec); err != nil {
		return "", err
	}
	return rec.ChainID, nil
}

func defaultPortID(p string) string {
	if p == "" {
		return "transfer"
	}
	return p
}

func defaultAlgo(a string) string {
	if a == "" {
		return string(address.AlgoSecp256k1)
	}
	return a
}

// QueryChain implements Chain.Query.
func (s *Service) QueryChain(ctx context.Context, chainID string) (*ChainSummary, error) {
	rec, err := s.store.GetChain(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return &ChainSummary{
		ChainID:            rec.ChainID,
		Sequence:           rec.Sequence,
		PacketSequence:     rec.PacketSequence,
		ConnectionDetails:  rec.ConnectionDetails,
		ConsensusTimestamp: rec.ConsensusTimestamp.Unix(),
		CreatedAt:          rec.CreatedAt.Unix(),
		UpdatedAt:          rec.UpdatedAt.Unix(),
	}, nil
}

// GetIbcDenom implements Chain.GetIbcDenom: "ibc/" + uppercase hex of
// sha256("transfer/<channel_id>/<denom>") (spec §6).
func (s *Service) GetIbcDenom(ctx context.Context, chainID, denom string) (string, error) {
	rec, err := s.store.GetChain(ctx, chainID)
	if err != nil {
		return "", err
	}
	if !rec.HasConnectionDetails() {
		return "", errs.ErrInvalidArgument.Wrapf("chain %q has no established channel", chainID)
	}
	return IBCDenom(rec.ConnectionDetails.ChainChannelID, denom), nil
}

// Connect implements Ibc.Connect.
func (s *Service) Connect(ctx context.Context, chainID, requestID, memo string, force bool) error {
	return s.engines.Connect(ctx, chainID, requestID, memo, force)
}

// Mint implements Ibc.Mint.
func (s *Service) Mint(ctx context.Context, chainID, requestID, memo, amount, denom, receiver string) (string, error) {
	return s.engines.Mint(ctx, chainID, requestID, memo, amount, denom, receiver)
}

// Burn implements Ibc.Burn.
func (s *Service) Burn(ctx context.Context, chainID, requestID, memo, amount, denom string) (string, error) {
	return s.engines.Burn(ctx, chainID, requestID, memo, amount, denom)
}

// QueryHistory implements Ibc.QueryHistory.
func (s *Service) QueryHistory(ctx context.Context, limit, offset int) ([]store.Operation, error) {
	return s.store.QueryHistory(ctx, limit, offset)
}
