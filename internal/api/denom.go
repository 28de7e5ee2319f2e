package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// IBCDenom renders "ibc/" + uppercase hex of sha256("transfer/<channel>/<denom>"),
// the canonical denom trace hash of spec §6/GLOSSARY.
func IBCDenom(channelID, denom string) string {
	trace := fmt.Sprintf("transfer/%s/%s", channelID, denom)
	sum := sha256.Sum256([]byte(trace))
	return "ibc/" + strings.ToUpper(hex.EncodeToString(sum[:]))
}
