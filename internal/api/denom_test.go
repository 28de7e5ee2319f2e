package api_test

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/solo-machine/soloend/internal/api"
)

func TestIBCDenomMatchesSHA256Trace(t *testing.T) {
	got := api.IBCDenom("channel-0", "uatom")

	sum := sha256.Sum256([]byte("transfer/channel-0/uatom"))
	want := "ibc/" + strings.ToUpper(hex.EncodeToString(sum[:]))

	require.Equal(t, want, got)
}

func TestIBCDenomDiffersByChannel(t *testing.T) {
	require.NotEqual(t, api.IBCDenom("channel-0", "uatom"), api.IBCDenom("channel-1", "uatom"))
}
