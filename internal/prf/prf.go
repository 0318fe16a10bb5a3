// Package prf derives the per-hop routing randomness.
//
// For hop ν the forwarder computes θ = Poseidon(1, hi, lo, sid, pid, ν),
// where (hi, lo) embeds the previous hop's PRF output, and then
// φ = G1^{1/(θ+sk)}. The routing value ρ is read from the canonical
// encoding of φ.
package prf

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/zmlAEQ/zkbrownian/internal/group"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
)

// Poseidon domain separators.
const (
	domainTheta       = 1
	domainDiversifier = 2
)

// Embed maps a G1 point to two field elements: the 48-byte compressed
// encoding split into big-endian 24-byte halves. Both halves fit the
// Poseidon field. The nil point (no previous hop) embeds to (0, 0).
func Embed(phi *group.G1) (hi, lo *big.Int) {
	if phi == nil {
		return new(big.Int), new(big.Int)
	}
	b := phi.Bytes()
	return new(big.Int).SetBytes(b[:group.G1Size/2]), new(big.Int).SetBytes(b[group.G1Size/2:])
}

// DeriveTheta hashes the previous PRF output (nil for ν = 0) with the
// message identifiers and the current hop index.
func DeriveTheta(prev *group.G1, sid uint64, pid uint32, nu uint64) (group.Scalar, error) {
	hi, lo := Embed(prev)
	out, err := poseidon.Hash([]*big.Int{
		big.NewInt(domainTheta),
		hi,
		lo,
		new(big.Int).SetUint64(sid),
		new(big.Int).SetUint64(uint64(pid)),
		new(big.Int).SetUint64(nu),
	})
	if err != nil {
		return group.Scalar{}, fmt.Errorf("%w: poseidon: %v", group.ErrCrypto, err)
	}
	return group.ScalarFromBig(out), nil
}

// SpawnDiversifier returns d = Hash(pid, sid). It is deterministic so the
// same (pk, pid, sid) always yields the same ppk0.
func SpawnDiversifier(pid uint32, sid uint64) (keys.Diversifier, error) {
	out, err := poseidon.Hash([]*big.Int{
		big.NewInt(domainDiversifier),
		new(big.Int).SetUint64(uint64(pid)),
		new(big.Int).SetUint64(sid),
	})
	if err != nil {
		return group.Scalar{}, fmt.Errorf("%w: poseidon: %v", group.ErrCrypto, err)
	}
	d := group.ScalarFromBig(out)
	if d.IsZero() {
		return group.Scalar{}, fmt.Errorf("%w: zero diversifier", group.ErrCrypto)
	}
	return d, nil
}

// ComputePRF returns G1^{1/(θ+sk)}. θ+sk = 0 is a CryptoError.
func ComputePRF(theta group.Scalar, sk keys.SecretKey) (group.G1, error) {
	den := theta.Add(sk.Scalar())
	if den.IsZero() {
		return group.G1{}, fmt.Errorf("prf denominator: %w", group.ErrCrypto)
	}
	inv, err := den.Inverse()
	if err != nil {
		return group.G1{}, fmt.Errorf("prf denominator: %w", err)
	}
	return group.G1Generator().Mul(inv), nil
}

// ExtractRoutingValue reads the low 32 bits of φ's x-coordinate, the last
// four bytes of the compressed encoding. The leading bytes carry flag bits
// and would bias the value.
func ExtractRoutingValue(phi group.G1) uint32 {
	b := phi.Bytes()
	return binary.BigEndian.Uint32(b[group.G1Size-4:])
}

// ReduceRouting maps ρ into [0, weightSum) for deployments whose weight
// total is below 2^32.
func ReduceRouting(rho uint32, weightSum uint64) uint32 {
	if weightSum == 0 || weightSum > 1<<32-1 {
		return rho
	}
	return uint32(uint64(rho) % weightSum)
}

// BridgeTarget returns T = G1 · φ^{-θ}. For an honest φ = G1^{1/(θ+sk)},
// T = φ^sk, which ties the G1 output to the G2 key relation.
func BridgeTarget(phi group.G1, theta group.Scalar) group.G1 {
	return group.G1Generator().Add(phi.Mul(theta.Neg()))
}
