// Package group wraps the BLS12-381 arithmetic the relay protocol needs:
// Fr scalars, G1 points (PRF outputs) and G2 points (keys). Encodings are
// the canonical ones: 32-byte big-endian scalars, 48-byte compressed G1 and
// 96-byte compressed G2.
package group

import (
	"errors"
	"fmt"
)

// ErrCrypto reports a failed field or group operation, including
// non-canonical encodings and points outside the prime-order subgroup.
var ErrCrypto = errors.New("crypto error")

// Domain tags.
const (
	DSTChallenge = "ZKB/FS/v1"
	DSTTopology  = "ZKB/TOPO/v1"
)

const (
	ScalarSize = 32
	G1Size     = 48
	G2Size     = 96
)

func cryptoErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCrypto, fmt.Sprintf(format, args...))
}

// isIdentityEncoding reports whether b is the compressed point at infinity:
// the compression and infinity flags set and every other bit clear.
func isIdentityEncoding(b []byte) bool {
	if len(b) == 0 || b[0] != 0xc0 {
		return false
	}
	for _, x := range b[1:] {
		if x != 0 {
			return false
		}
	}
	return true
}
