package solomachine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solo-machine/soloend/internal/address"
	"github.com/solo-machine/soloend/internal/lightclient/solomachine"
)

func TestEncodeSignBytesIsDeterministic(t *testing.T) {
	in := address.SignBytesInput{
		Sequence:    7,
		Timestamp:   1700000000,
		Diversifier: "soloend",
		DataType:    address.DataTypePacketCommitment,
		Data:        []byte("packet-data"),
	}

	first, err := solomachine.EncodeSignBytes(nil, in)
	require.NoError(t, err)
	second, err := solomachine.EncodeSignBytes(nil, in)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}

func TestEncodeSignBytesOmitsZeroFields(t *testing.T) {
	withData, err := solomachine.EncodeSignBytes(nil, address.SignBytesInput{
		Sequence: 1, DataType: address.DataTypeHeader, Data: []byte("x"),
	})
	require.NoError(t, err)

	withoutData, err := solomachine.EncodeSignBytes(nil, address.SignBytesInput{
		Sequence: 1, DataType: address.DataTypeHeader,
	})
	require.NoError(t, err)

	require.NotEqual(t, withData, withoutData)
	require.Less(t, len(withoutData), len(withData))
}

func TestEncodeSignBytesDiffersBySequence(t *testing.T) {
	base := address.SignBytesInput{Timestamp: 1, Diversifier: "d", DataType: 1, Data: []byte("x")}
	a := base
	a.Sequence = 1
	b := base
	b.Sequence = 2

	encA, err := solomachine.EncodeSignBytes(nil, a)
	require.NoError(t, err)
	encB, err := solomachine.EncodeSignBytes(nil, b)
	require.NoError(t, err)
	require.NotEqual(t, encA, encB)
}
