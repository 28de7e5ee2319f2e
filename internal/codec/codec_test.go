package codec_test

import (
	"testing"

	"github.com/cosmos/cosmos-sdk/crypto/keys/secp256k1"
	"github.com/stretchr/testify/require"

	"github.com/solo-machine/soloend/internal/codec"
)

func TestMarshalDeterministicRoundTrips(t *testing.T) {
	cdc := codec.New()

	priv := secp256k1.GenPrivKey()
	pub := priv.PubKey().(*secp256k1.PubKey)

	bz, err := cdc.MarshalDeterministic(pub)
	require.NoError(t, err)
	require.NotEmpty(t, bz)

	var decoded secp256k1.PubKey
	require.NoError(t, cdc.UnmarshalStrict(bz, &decoded))
	require.Equal(t, pub.Key, decoded.Key)
}

func TestMarshalDeterministicIsStable(t *testing.T) {
	cdc := codec.New()
	priv := secp256k1.GenPrivKey()
	pub := priv.PubKey().(*secp256k1.PubKey)

	first, err := cdc.MarshalDeterministic(pub)
	require.NoError(t, err)
	second, err := cdc.MarshalDeterministic(pub)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestPackAnyUnpackAnyRoundTrips(t *testing.T) {
	cdc := codec.New()
	priv := secp256k1.GenPrivKey()
	pub := priv.PubKey().(*secp256k1.PubKey)

	any, err := cdc.PackAny(pub)
	require.NoError(t, err)

	var decoded secp256k1.PubKey
	require.NoError(t, cdc.UnpackAny(any, &decoded))
	require.Equal(t, pub.Key, decoded.Key)
}

func TestUnmarshalStrictRejectsMalformed(t *testing.T) {
	cdc := codec.New()
	var decoded secp256k1.PubKey
	err := cdc.UnmarshalStrict([]byte{0xff, 0xff, 0xff}, &decoded)
	require.Error(t, err)
}

func TestDecodeAmount(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "100", false},
		{"zero", "0", false},
		{"negative", "-1", true},
		{"not a number", "abc", true},
		{"overflows 256 bits", "1" + stringOfZeros(80), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codec.DecodeAmount(tc.input)
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func stringOfZeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
