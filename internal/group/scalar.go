package group

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"io"
	"math/big"

	blst "github.com/supranational/blst/bindings/go"
	"lukechampine.com/blake3"
)

// Order is the BLS12-381 scalar field modulus r.
var Order, _ = new(big.Int).SetString("73eda753299d7d483339d80809a1d80553bda402fffe5bfeffffffff00000001", 16)

// Scalar is an element of Fr. The zero value is 0.
type Scalar struct{ s blst.Scalar }

// wrap takes the result of a blst *_n_check operation. blst reports a
// zero result as not ok; that is a valid field element here. Operands are
// canonical by construction, so any other failure is a bug.
func wrap(s *blst.Scalar, ok bool) Scalar {
	if s == nil {
		panic(cryptoErr("scalar arithmetic returned nil"))
	}
	out := Scalar{s: *s}
	if !ok && !out.IsZero() {
		panic(cryptoErr("scalar arithmetic on non-canonical operand"))
	}
	return out
}

// RandomScalar samples a uniform non-zero scalar from r (crypto/rand when nil).
func RandomScalar(r io.Reader) (Scalar, error) {
	if r == nil {
		r = rand.Reader
	}
	ikm := make([]byte, 32)
	if _, err := io.ReadFull(r, ikm); err != nil {
		return Scalar{}, err
	}
	s := blst.KeyGen(ikm)
	if s == nil {
		return Scalar{}, cryptoErr("keygen")
	}
	return Scalar{s: *s}, nil
}

// ScalarFromSeed deterministically derives a non-zero scalar from at least
// 32 bytes of seed material.
func ScalarFromSeed(seed []byte) (Scalar, error) {
	if len(seed) < 32 {
		return Scalar{}, cryptoErr("seed too short: %d", len(seed))
	}
	s := blst.KeyGen(seed)
	if s == nil {
		return Scalar{}, cryptoErr("keygen")
	}
	return Scalar{s: *s}, nil
}

// ScalarFromUint64 embeds v.
func ScalarFromUint64(v uint64) Scalar {
	var buf [blst.BLST_SCALAR_BYTES]byte
	binary.BigEndian.PutUint64(buf[24:], v)
	var s blst.Scalar
	_ = s.FromBEndian(buf[:])
	return Scalar{s: s}
}

// ScalarFromBig reduces v modulo r.
func ScalarFromBig(v *big.Int) Scalar {
	m := new(big.Int).Mod(v, Order)
	var buf [blst.BLST_SCALAR_BYTES]byte
	m.FillBytes(buf[:])
	var s blst.Scalar
	_ = s.FromBEndian(buf[:])
	return Scalar{s: s}
}

// HashToScalar maps the domain tag and parts to Fr using a 64-byte blake3
// output reduced modulo r. Parts are length prefixed.
func HashToScalar(dst string, parts ...[]byte) Scalar {
	h := blake3.New(64, nil)
	writeFramed(h, []byte(dst))
	for _, p := range parts {
		writeFramed(h, p)
	}
	return ScalarFromBig(new(big.Int).SetBytes(h.Sum(nil)))
}

func writeFramed(w io.Writer, b []byte) {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	_, _ = w.Write(l[:])
	_, _ = w.Write(b)
}

// ScalarFromBytes decodes a canonical 32-byte big-endian scalar (< r).
func ScalarFromBytes(b []byte) (Scalar, error) {
	if len(b) != ScalarSize {
		return Scalar{}, cryptoErr("scalar length %d", len(b))
	}
	if new(big.Int).SetBytes(b).Cmp(Order) >= 0 {
		return Scalar{}, cryptoErr("scalar not reduced")
	}
	var s blst.Scalar
	if s.FromBEndian(b) == nil {
		return Scalar{}, cryptoErr("scalar decode")
	}
	return Scalar{s: s}, nil
}

// Bytes returns the 32-byte big-endian encoding.
func (a Scalar) Bytes() []byte { return a.s.Serialize() }

func (a Scalar) IsZero() bool { return bytes.Equal(a.Bytes(), make([]byte, ScalarSize)) }

func (a Scalar) Equal(b Scalar) bool { return bytes.Equal(a.Bytes(), b.Bytes()) }

func (a Scalar) Add(b Scalar) Scalar { return wrap(a.s.Add(&b.s)) }

func (a Scalar) Sub(b Scalar) Scalar { return wrap(a.s.Sub(&b.s)) }

func (a Scalar) Mul(b Scalar) Scalar { return wrap(a.s.Mul(&b.s)) }

func (a Scalar) Neg() Scalar {
	var zero Scalar
	return zero.Sub(a)
}

// Inverse fails with ErrCrypto on zero.
func (a Scalar) Inverse() (Scalar, error) {
	if a.IsZero() {
		return Scalar{}, cryptoErr("inverse of zero")
	}
	inv := a.s.Inverse()
	if inv == nil {
		return Scalar{}, cryptoErr("inverse")
	}
	return Scalar{s: *inv}, nil
}

func (a Scalar) raw() *blst.Scalar { return &a.s }
