package solomachine

import (
	"encoding/binary"

	"github.com/solo-machine/soloend/internal/address"
	"github.com/solo-machine/soloend/internal/codec"
)

// EncodeSignBytes produces the canonical protobuf-style encoding of
// {sequence, timestamp, diversifier, data_type, data} in ascending tag
// order with no default-value fields emitted, per spec §4.1/§4.2.
//
// Field tags (1..5) are varint-prefixed the way gogoproto would emit them
// for an equivalent generated message; this hand-written path exists
// because the sign-bytes struct itself is solo-machine specific and has no
// stock ibc-go type, unlike every other wire message in this repo.
func EncodeSignBytes(_ *codec.Codec, in address.SignBytesInput) ([]byte, error) {
	var buf []byte

	if in.Sequence != 0 {
		buf = appendVarintField(buf, 1, in.Sequence)
	}
	if in.Timestamp != 0 {
		buf = appendVarintField(buf, 2, in.Timestamp)
	}
	if in.Diversifier != "" {
		buf = appendBytesField(buf, 3, []byte(in.Diversifier))
	}
	if in.DataType != 0 {
		buf = appendVarintField(buf, 4, uint64(in.DataType))
	}
	if len(in.Data) > 0 {
		buf = appendBytesField(buf, 5, in.Data)
	}
	return buf, nil
}

func appendVarintField(buf []byte, tag int, v uint64) []byte {
	buf = appendVarint(buf, uint64(tag)<<3|0)
	buf = appendVarint(buf, v)
	return buf
}

func appendBytesField(buf []byte, tag int, v []byte) []byte {
	buf = appendVarint(buf, uint64(tag)<<3|2)
	buf = appendVarint(buf, uint64(len(v)))
	return append(buf, v...)
}

func appendVarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}
