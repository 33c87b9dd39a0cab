package feed

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress canonicalizes a hex address to lowercase 0x-prefixed
// form so business keys compare equal regardless of checksum casing.
func NormalizeAddress(address string) string {
	if address == "" {
		return ""
	}

	return strings.ToLower(common.HexToAddress(address).Hex())
}

// NormalizeHash canonicalizes a 32-byte hex hash the same way.
func NormalizeHash(hash string) string {
	if hash == "" {
		return ""
	}

	return strings.ToLower(common.HexToHash(hash).Hex())
}
