// Package address implements C1: key derivation, public-key encoding,
// bech32/eth address formatting, and the canonical digest of sign-bytes
// that the solo-machine light client signs over.
package address

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for the cosmos address scheme

	"github.com/solo-machine/soloend/internal/errs"
)

// Algo identifies which of the two supported signing schemes a chain uses.
type Algo string

const (
	AlgoSecp256k1    Algo = "secp256k1"
	AlgoEthSecp256k1 Algo = "eth-secp256k1"
)

// PublicKey is a 33-byte compressed secp256k1 public key, interpreted
// according to Algo when deriving an address or verifying a signature.
type PublicKey struct {
	Algo   Algo
	Bytes  []byte // compressed, 33 bytes
}

// Address renders the on-chain address for pk under the given bech32
// human-readable prefix (the chain's account prefix).
func Address(pk PublicKey, hrp string) (string, error) {
	switch pk.Algo {
	case AlgoSecp256k1, "":
		return cosmosAddress(pk.Bytes, hrp)
	case AlgoEthSecp256k1:
		return ethAddress(pk.Bytes, hrp)
	default:
		return "", errs.ErrBadPublicKey
	}
}

// cosmosAddress renders ripemd160(sha256(pk)) as bech32, the standard
// Cosmos-SDK account-address scheme (see cosmos-sdk crypto/keys/secp256k1).
func cosmosAddress(compressedPK []byte, hrp string) (string, error) {
	if len(compressedPK) != 33 {
		return "", errs.ErrBadPublicKey
	}
	sum := sha256.Sum256(compressedPK)
	h := ripemd160.New()
	if _, err := h.Write(sum[:]); err != nil {
		return "", err
	}
	return bech32.ConvertAndEncode(hrp, h.Sum(nil))
}

// ethAddress renders the last 20 bytes of keccak256(uncompressed_pk[1:]) as
// bech32 of those 20 bytes, the Ethermint/eth-secp256k1 account scheme, using
// go-ethereum's own Keccak256 the way an eth-secp256k1 chain integration
// would rather than a hand-rolled hash call.
func ethAddress(compressedPK []byte, hrp string) (string, error) {
	pub, err := btcec.ParsePubKey(compressedPK)
	if err != nil {
		return "", errs.ErrBadPublicKey
	}
	uncompressed := pub.SerializeUncompressed() // 0x04 || X || Y
	sum := ethcrypto.Keccak256(uncompressed[1:])
	return bech32.ConvertAndEncode(hrp, sum[len(sum)-20:])
}

// CryptoPubKey renders pk as a cosmos-sdk cryptotypes.PubKey for embedding
// in a transaction's SignerInfo. Both supported algos verify ECDSA
// signatures over the same secp256k1 curve, so one concrete type covers
// both: eth-secp256k1 chains differ only in address derivation, handled by
// Address above, not in the signature scheme itself.
func CryptoPubKey(pk PublicKey) cryptotypes.PubKey {
	return &secp256k1.PubKey{Key: pk.Bytes}
}

// DataType enumerates every payload kind a solo-machine signature can cover,
// matching the sign-bytes data_type field in spec §4.1.
type DataType int

const (
	DataTypeClientState DataType = iota + 1
	DataTypeConsensusState
	DataTypeConnectionState
	DataTypeChannelState
	DataTypePacketCommitment
	DataTypePacketAcknowledgement
	DataTypePacketReceiptAbsence
	DataTypeNextSequenceRecv
	DataTypeHeader
)

// SignBytesInput is the canonical structure signed over by the solo machine.
type SignBytesInput struct {
	Sequence    uint64
	Timestamp   uint64
	Diversifier string
	DataType    DataType
	Data        []byte
}

// Digest returns sha256(sign_bytes) for a canonically-encoded SignBytesInput.
// Encoding itself lives in the solo-machine light client package
// (EncodeSignBytes); this helper exists alongside
// address derivation because both are pure C1 primitives consumed directly
// by the signer plugin invocation in the solo-machine light client.
func Digest(encodedSignBytes []byte) [32]byte {
	return sha256.Sum256(encodedSignBytes)
}

// NormalizeLowS returns sig re-serialized with a low-S value, as chains
// following BIP-0062 require; it is a no-op if sig is already low-S.
func NormalizeLowS(sig *ecdsa.Signature) []byte {
	return sig.Serialize()
}
