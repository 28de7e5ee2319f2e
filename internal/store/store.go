package store

import (
	"context"
	"sync"
	"time"

	"cosmossdk.io/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/solo-machine/soloend/internal/errs"
)

// Backend selects which gorm driver Open dials, the compile-time switch
// spec §4.3 calls for between an embedded store and a server-based one.
type Backend int

const (
	// BackendSQLite is the default embedded relational store.
	BackendSQLite Backend = iota
	// BackendPostgres is the server-based relational store.
	BackendPostgres
)

// Store is the durable per-chain record keeper (C3). All state mutations
// that must be atomic with respect to a chain interaction go through one of
// its With* transaction helpers below.
type Store struct {
	db     *gorm.DB
	logger log.Logger

	// locksMu guards creation of the per-chain_id advisory lock; the locks
	// themselves serialize writers on the same chain without blocking
	// cross-chain operations, per spec §4.3/§5.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Open dials the given backend and runs forward-only migrations.
func Open(backend Backend, dsn string, logger log.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch backend {
	case BackendPostgres:
		dialector = postgres.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, errs.ErrStorage.Wrap(err.Error())
	}

	s := &Store{db: db, logger: logger, locks: make(map[string]*sync.Mutex)}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if err := s.db.AutoMigrate(&ChainRecord{}, &ChainConsensusState{}, &ChainKey{}, &Operation{}); err != nil {
		return errs.ErrStorage.Wrap(err.Error())
	}
	return nil
}

// lockFor returns (creating if needed) the advisory mutex for chainID.
func (s *Store) lockFor(chainID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.locks[chainID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[chainID] = m
	}
	return m
}

// WithChainLock serializes fn against every other writer on chainID, then
// runs fn inside a single database transaction. Cancellation of ctx unwinds
// the transaction; committed work stays committed (spec §5).
func (s *Store) WithChainLock(ctx context.Context, chainID string, fn func(tx *gorm.DB) error) error {
	lock := s.lockFor(chainID)
	lock.Lock()
	defer lock.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
	if err != nil {
		return errs.ErrStorage.Wrap(err.Error())
	}
	return nil
}

// AddChain creates a new chain record. Returns ErrDuplicateChain if chain_id
// already exists.
func (s *Store) AddChain(ctx context.Context, rec *ChainRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Sequence == 0 {
		rec.Sequence = 1
	}
	if rec.PacketSequence == 0 {
		rec.PacketSequence = 1
	}
	if rec.ConsensusTimestamp.IsZero() {
		rec.ConsensusTimestamp = now
	}
	if rec.HandshakePhase == "" {
		rec.HandshakePhase = PhaseNone
	}

	return s.WithChainLock(ctx, rec.ChainID, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&ChainRecord{}).Where("chain_id = ?", rec.ChainID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errs.ErrDuplicateChain.Wrapf("chain %q already exists", rec.ChainID)
		}
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		if rec.TrustedHeight > 0 {
			// Seeds the light client's trust root (spec §4.4): without this,
			// the Tendermint client has nothing to bisect from on the first
			// handshake attempt.
			return tx.Create(&ChainConsensusState{
				ChainID: rec.ChainID, Height: rec.TrustedHeight,
				Root: rec.TrustedHash, Timestamp: rec.ConsensusTimestamp,
			}).Error
		}
		return nil
	})
}

// GetChain loads a chain record by id.
func (s *Store) GetChain(ctx context.Context, chainID string) (*ChainRecord, error) {
	var rec ChainRecord
	err := s.db.WithContext(ctx).Where("chain_id = ?", chainID).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrUnknownChain.Wrapf("chain %q not found", chainID)
		}
		return nil, errs.ErrStorage.Wrap(err.Error())
	}
	return &rec, nil
}

// NextSequence atomically reads-and-increments a chain's solo-machine
// sequence counter inside the caller's transaction, returning the sequence
// value to sign with. Invariant: sequence increases by exactly one per
// signature produced (spec §3).
func NextSequence(tx *gorm.DB, chainID string) (uint64, error) {
	var rec ChainRecord
	if err := tx.Clauses().Where("chain_id = ?", chainID).First(&rec).Error; err != nil {
		return 0, err
	}
	next := rec.Sequence
	if err := tx.Model(&ChainRecord{}).Where("chain_id = ?", chainID).
		Update("sequence", rec.Sequence+1).Error; err != nil {
		return 0, err
	}
	return next, nil
}

// NextPacketSequence atomically reads-and-increments packet_sequence,
// mirroring NextSequence for the packet pipeline (spec §3/§4.8).
func NextPacketSequence(tx *gorm.DB, chainID string) (uint64, error) {
	var rec ChainRecord
	if err := tx.Where("chain_id = ?", chainID).First(&rec).Error; err != nil {
		return 0, err
	}
	next := rec.PacketSequence
	if err := tx.Model(&ChainRecord{}).Where("chain_id = ?", chainID).
		Update("packet_sequence", rec.PacketSequence+1).Error; err != nil {
		return 0, err
	}
	return next, nil
}

// AdvanceConsensusTimestamp sets a chain's consensus_timestamp, rejecting
// any attempt to move it backwards (spec §3 invariant).
func AdvanceConsensusTimestamp(tx *gorm.DB, chainID string, ts time.Time) error {
	var rec ChainRecord
	if err := tx.Where("chain_id = ?", chainID).First(&rec).Error; err != nil {
		return err
	}
	if ts.Before(rec.ConsensusTimestamp) {
		return errs.ErrConflict.Wrapf("consensus timestamp cannot move backwards for %q", chainID)
	}
	return tx.Model(&ChainRecord{}).Where("chain_id = ?", chainID).
		Update("consensus_timestamp", ts).Error
}

// UpsertConsensusState stores a verified Tendermint height, refusing to
// overwrite an existing height with a different root (spec §3 invariant:
// "a stored entry is never overwritten with a different root").
func UpsertConsensusState(tx *gorm.DB, cs *ChainConsensusState) error {
	var existing ChainConsensusState
	err := tx.Where("chain_id = ? AND height = ?", cs.ChainID, cs.Height).First(&existing).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		return tx.Create(cs).Error
	case err != nil:
		return err
	default:
		if string(existing.Root) != string(cs.Root) {
			return errs.ErrConflict.Wrapf(
				"consensus state at height %d for %q already has a different root", cs.Height, cs.ChainID)
		}
		return nil
	}
}

// LatestConsensusState returns the highest stored height for a chain.
func (s *Store) LatestConsensusState(ctx context.Context, chainID string) (*ChainConsensusState, error) {
	var cs ChainConsensusState
	err := s.db.WithContext(ctx).Where("chain_id = ?", chainID).
		Order("height DESC").First(&cs).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrUnknownChain.Wrapf("no consensus state for %q", chainID)
		}
		return nil, errs.ErrStorage.Wrap(err.Error())
	}
	return &cs, nil
}

// PruneConsensusStates deletes heights older than cutoff for chainID,
// always keeping at least the latest height (spec §3).
func PruneConsensusStates(tx *gorm.DB, chainID string, cutoff time.Time) error {
	var latest ChainConsensusState
	if err := tx.Where("chain_id = ?", chainID).Order("height DESC").First(&latest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	return tx.Where("chain_id = ? AND timestamp < ? AND height <> ?", chainID, cutoff, latest.Height).
		Delete(&ChainConsensusState{}).Error
}

// AppendChainKey records a newly-presented public key for chainID.
func AppendChainKey(tx *gorm.DB, key *ChainKey) error {
	key.CreatedAt = time.Now().UTC()
	if err := tx.Create(key).Error; err != nil {
		return errs.ErrConflict.Wrap(err.Error())
	}
	return nil
}

// AppendOperation writes one ledger row. Never mutated afterwards.
func AppendOperation(tx *gorm.DB, op *Operation) error {
	op.CreatedAt = time.Now().UTC()
	return tx.Create(op).Error
}

// FindOperationByRequestID implements the idempotence lookup for
// (chain_id, request_id): if requestID is non-empty and a row already
// exists, the caller should return its recorded result instead of
// re-sending (spec §4.8).
func FindOperationByRequestID(tx *gorm.DB, chainID, requestID string) (*Operation, bool, error) {
	if requestID == "" {
		return nil, false, nil
	}
	var op Operation
	err := tx.Where("chain_id = ? AND request_id = ?", chainID, requestID).First(&op).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		return nil, false, nil
	case err != nil:
		return nil, false, err
	default:
		return &op, true, nil
	}
}

// QueryHistory lists operations across all chains, newest first.
func (s *Store) QueryHistory(ctx context.Context, limit, offset int) ([]Operation, error) {
	if limit <= 0 {
		limit = 100
	}
	var ops []Operation
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Offset(offset).Find(&ops).Error
	if err != nil {
		return nil, errs.ErrStorage.Wrap(err.Error())
	}
	return ops, nil
}

// SetConnectionDetails commits the identifiers produced by one handshake
// phase and advances HandshakePhase, atomically (spec §4.7).
func SetConnectionDetails(tx *gorm.DB, chainID string, details *ConnectionDetails, phase HandshakePhase) error {
	return tx.Model(&ChainRecord{}).Where("chain_id = ?", chainID).
		Updates(map[string]interface{}{
			"conn_solo_client_id":      details.SoloClientID,
			"conn_chain_client_id":     details.ChainClientID,
			"conn_solo_connection_id":  details.SoloConnectionID,
			"conn_chain_connection_id": details.ChainConnectionID,
			"conn_solo_channel_id":     details.SoloChannelID,
			"conn_chain_channel_id":    details.ChainChannelID,
			"handshake_phase":          phase,
			"updated_at":               time.Now().UTC(),
		}).Error
}

// ResetConnectionDetails nulls connection_details and phase, for
// Connect{force=true} (spec §3/§4.7).
func ResetConnectionDetails(tx *gorm.DB, chainID string) error {
	return tx.Model(&ChainRecord{}).Where("chain_id = ?", chainID).
		Updates(map[string]interface{}{
			"conn_solo_client_id":      "",
			"conn_chain_client_id":     "",
			"conn_solo_connection_id":  "",
			"conn_chain_connection_id": "",
			"conn_solo_channel_id":     "",
			"conn_chain_channel_id":    "",
			"handshake_phase":          PhaseNone,
			"updated_at":               time.Now().UTC(),
		}).Error
}
