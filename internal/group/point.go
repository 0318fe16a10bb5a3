package group

import (
	"bytes"
	"encoding/hex"

	blst "github.com/supranational/blst/bindings/go"
)

// G1 is a point of the BLS12-381 G1 subgroup. The zero value is the identity.
type G1 struct{ p blst.P1 }

// G2 is a point of the BLS12-381 G2 subgroup. The zero value is the identity.
type G2 struct{ p blst.P2 }

func G1Generator() G1 { return G1{p: *blst.P1Generator()} }
func G2Generator() G2 { return G2{p: *blst.P2Generator()} }

// G1FromBytes decodes a compressed G1 point and checks subgroup membership.
// The identity is accepted; callers that forbid it check IsIdentity.
func G1FromBytes(b []byte) (G1, error) {
	if len(b) != G1Size {
		return G1{}, cryptoErr("g1 length %d", len(b))
	}
	if isIdentityEncoding(b) {
		return G1{}, nil
	}
	var aff blst.P1Affine
	if aff.Uncompress(b) == nil {
		return G1{}, cryptoErr("g1 decode")
	}
	if !aff.InG1() {
		return G1{}, cryptoErr("g1 not in subgroup")
	}
	var p blst.P1
	p.FromAffine(&aff)
	return G1{p: p}, nil
}

// G2FromBytes decodes a compressed G2 point and checks subgroup membership.
func G2FromBytes(b []byte) (G2, error) {
	if len(b) != G2Size {
		return G2{}, cryptoErr("g2 length %d", len(b))
	}
	if isIdentityEncoding(b) {
		return G2{}, nil
	}
	var aff blst.P2Affine
	if aff.Uncompress(b) == nil {
		return G2{}, cryptoErr("g2 decode")
	}
	if !aff.InG2() {
		return G2{}, cryptoErr("g2 not in subgroup")
	}
	var p blst.P2
	p.FromAffine(&aff)
	return G2{p: p}, nil
}

func (a G1) Bytes() []byte { return a.p.ToAffine().Compress() }
func (a G2) Bytes() []byte { return a.p.ToAffine().Compress() }

func (a G1) IsIdentity() bool { return isIdentityEncoding(a.Bytes()) }
func (a G2) IsIdentity() bool { return isIdentityEncoding(a.Bytes()) }

func (a G1) Equal(b G1) bool { return bytes.Equal(a.Bytes(), b.Bytes()) }
func (a G2) Equal(b G2) bool { return bytes.Equal(a.Bytes(), b.Bytes()) }

// Mul returns a^s.
func (a G1) Mul(s Scalar) G1 {
	if s.IsZero() {
		return G1{}
	}
	return G1{p: *a.p.Mult(s.raw())}
}

// Mul returns a^s.
func (a G2) Mul(s Scalar) G2 {
	if s.IsZero() {
		return G2{}
	}
	return G2{p: *a.p.Mult(s.raw())}
}

func (a G1) Add(b G1) G1 {
	out := a.p
	out.AddAssign(&b.p)
	return G1{p: out}
}

func (a G2) Add(b G2) G2 {
	out := a.p
	out.AddAssign(&b.p)
	return G2{p: out}
}

func (a G1) Neg() G1 {
	var out blst.P1
	out.SubAssign(&a.p)
	return G1{p: out}
}

func (a G2) Neg() G2 {
	var out blst.P2
	out.SubAssign(&a.p)
	return G2{p: out}
}

func (a G1) MarshalText() ([]byte, error) { return []byte(hex.EncodeToString(a.Bytes())), nil }

func (a *G1) UnmarshalText(b []byte) error {
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return cryptoErr("g1 hex: %v", err)
	}
	p, err := G1FromBytes(raw)
	if err != nil {
		return err
	}
	*a = p
	return nil
}

func (a G2) MarshalText() ([]byte, error) { return []byte(hex.EncodeToString(a.Bytes())), nil }

func (a *G2) UnmarshalText(b []byte) error {
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return cryptoErr("g2 hex: %v", err)
	}
	p, err := G2FromBytes(raw)
	if err != nil {
		return err
	}
	*a = p
	return nil
}
