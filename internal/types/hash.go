package types

import (
	"strings"

	xxhash "github.com/cespare/xxhash/v2"
)

// FindingID derives a stable identifier from the given parts. Equal parts
// always yield the same id across runs.
func FindingID(parts ...string) string {
	return fastHash([]byte(strings.Join(parts, ":")))
}

func fastHash(b []byte) string {
	if len(b) == 0 {
		return "0000000000000000"
	}
	sum := xxhash.Sum64(b)
	var buf [16]byte
	const hex = "0123456789abcdef"
	for i := 15; i >= 0; i-- {
		buf[i] = hex[sum&0xF]
		sum >>= 4
	}
	return string(buf[:])
}
