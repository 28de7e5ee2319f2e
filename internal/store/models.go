// Package store implements C3: the durable per-chain record, the Tendermint
// consensus-state map, the operations ledger, and the chain-keys ledger,
// all behind a single gorm.io/gorm handle (sqlite by default, postgres for
// a server-based deployment — see Open).
package store

import (
	"time"
)

// ConnectionDetails mirrors spec §3's optional connection_details: client,
// connection, and channel identifiers for both sides of the handshake.
// It is stored as a set of string columns on ChainRecord so that "a chain
// has connection_details iff it completed the full connect handshake" can
// be expressed as "all of these columns are non-empty".
type ConnectionDetails struct {
	SoloClientID     string `gorm:"column:solo_client_id"`
	ChainClientID    string `gorm:"column:chain_client_id"`
	SoloConnectionID string `gorm:"column:solo_connection_id"`
	ChainConnectionID string `gorm:"column:chain_connection_id"`
	SoloChannelID    string `gorm:"column:solo_channel_id"`
	ChainChannelID   string `gorm:"column:chain_channel_id"`
}

// IsComplete reports whether every identifier needed to call this handshake
// "done" has been recorded.
func (c ConnectionDetails) IsComplete() bool {
	return c.SoloClientID != "" && c.ChainClientID != "" &&
		c.SoloConnectionID != "" && c.ChainConnectionID != "" &&
		c.SoloChannelID != "" && c.ChainChannelID != ""
}

// HandshakePhase names the four-step state each of client/connection/channel
// progresses through, per spec §4.7.
type HandshakePhase string

const (
	PhaseNone    HandshakePhase = ""
	PhaseInit    HandshakePhase = "init"
	PhaseTry     HandshakePhase = "try"
	PhaseAck     HandshakePhase = "ack"
	PhaseConfirm HandshakePhase = "confirm"
	PhaseDone    HandshakePhase = "done"
)

// ChainRecord is the per-chain row described in spec §3.
type ChainRecord struct {
	ChainID string `gorm:"column:chain_id;primaryKey"`

	RPCAddr       string
	GRPCAddr      string
	AccountPrefix string

	FeeAmount   string
	FeeDenom    string
	GasLimit    uint64

	TrustLevel     string
	TrustingPeriod time.Duration
	MaxClockDrift  time.Duration

	Diversifier string
	PortID      string

	SigningAlgo string

	TrustedHeight int64
	TrustedHash   []byte

	ConsensusTimestamp time.Time
	Sequence           uint64
	PacketSequence     uint64

	HandshakePhase HandshakePhase

	ConnectionDetails *ConnectionDetails `gorm:"embedded;embeddedPrefix:conn_"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the gorm table name, matching spec §6's persisted schema.
func (ChainRecord) TableName() string { return "chains" }

// HasConnectionDetails reports the invariant "a chain has connection_details
// iff it completed the full connect handshake at least once".
func (r *ChainRecord) HasConnectionDetails() bool {
	return r.ConnectionDetails != nil && r.ConnectionDetails.IsComplete()
}

// ChainConsensusState is one verified Tendermint height for one chain.
type ChainConsensusState struct {
	ChainID            string `gorm:"column:chain_id;primaryKey"`
	Height             int64  `gorm:"primaryKey"`
	Root               []byte
	NextValidatorsHash []byte
	Timestamp          time.Time
}

func (ChainConsensusState) TableName() string { return "chain_consensus_states" }

// ChainKey records a public key the solo machine has presented to a chain,
// supporting signer rotation (spec §3's chain-keys ledger).
type ChainKey struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	ChainID     string `gorm:"index:idx_chain_keys_unique,unique"`
	PublicKey   []byte `gorm:"index:idx_chain_keys_unique,unique"`
	CreatedAt   time.Time
}

func (ChainKey) TableName() string { return "chain_keys" }

// OperationType enumerates the ledger's operation_type column.
type OperationType string

const (
	OperationMint    OperationType = "Mint"
	OperationBurn    OperationType = "Burn"
	OperationSend    OperationType = "Send"
	OperationReceive OperationType = "Receive"
)

// Operation is one append-only ledger row (spec §3).
type Operation struct {
	ID              uint64  `gorm:"primaryKey;autoIncrement"`
	ChainID         string  `gorm:"uniqueIndex:idx_operations_request"`
	RequestID       *string `gorm:"uniqueIndex:idx_operations_request"`
	Address         string
	Denom           string
	Amount          string
	OperationType   OperationType
	TransactionHash string
	CreatedAt       time.Time
}

func (Operation) TableName() string { return "operations" }
