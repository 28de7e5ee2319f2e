package address_test

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/solo-machine/soloend/internal/address"
)

func testCompressedKey(t *testing.T) []byte {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return priv.PubKey().SerializeCompressed()
}

func TestAddressCosmosIsDeterministic(t *testing.T) {
	pk := address.PublicKey{Algo: address.AlgoSecp256k1, Bytes: testCompressedKey(t)}

	first, err := address.Address(pk, "cosmos")
	require.NoError(t, err)
	second, err := address.Address(pk, "cosmos")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Contains(t, first, "cosmos1")
}

func TestAddressEthSecp256k1UsesEthPrefix(t *testing.T) {
	pk := address.PublicKey{Algo: address.AlgoEthSecp256k1, Bytes: testCompressedKey(t)}

	addr, err := address.Address(pk, "ethm")
	require.NoError(t, err)
	require.Contains(t, addr, "ethm1")
}

func TestAddressRejectsUnknownAlgo(t *testing.T) {
	pk := address.PublicKey{Algo: "unknown", Bytes: testCompressedKey(t)}
	_, err := address.Address(pk, "cosmos")
	require.Error(t, err)
}

func TestAddressRejectsShortKey(t *testing.T) {
	pk := address.PublicKey{Algo: address.AlgoSecp256k1, Bytes: []byte{1, 2, 3}}
	_, err := address.Address(pk, "cosmos")
	require.Error(t, err)
}

func TestDigestIsDeterministic(t *testing.T) {
	input := []byte("sign-bytes")
	require.Equal(t, address.Digest(input), address.Digest(input))
}
