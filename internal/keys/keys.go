// Package keys generates relay key pairs and diversified (blinded) public
// keys, and lets a node recognise keys addressed to it.
package keys

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/zmlAEQ/zkbrownian/internal/group"
)

// SecretKey is a node's Fr scalar. It has no encoding on purpose: nodes
// persist the seed it is derived from, never the key.
type SecretKey struct{ s group.Scalar }

// Scalar exposes the key as a proof witness.
func (k SecretKey) Scalar() group.Scalar { return k.s }

// PublicKey is G2^sk.
type PublicKey struct{ P group.G2 }

// DiversifiedPublicKey is (pk^d, G2^d).
type DiversifiedPublicKey struct {
	PPK1 group.G2
	PPK2 group.G2
}

// Diversifier is the blinding scalar d.
type Diversifier = group.Scalar

// KeyGen samples a key pair using r (crypto/rand when nil).
func KeyGen(r io.Reader) (SecretKey, PublicKey, error) {
	s, err := group.RandomScalar(r)
	if err != nil {
		return SecretKey{}, PublicKey{}, err
	}
	return SecretKey{s: s}, PublicKey{P: group.G2Generator().Mul(s)}, nil
}

// FromSeed re-derives a key pair from a persisted seed of at least 32 bytes.
func FromSeed(seed []byte) (SecretKey, PublicKey, error) {
	s, err := group.ScalarFromSeed(seed)
	if err != nil {
		return SecretKey{}, PublicKey{}, err
	}
	return SecretKey{s: s}, PublicKey{P: group.G2Generator().Mul(s)}, nil
}

// Public returns G2^sk.
func (k SecretKey) Public() PublicKey { return PublicKey{P: group.G2Generator().Mul(k.s)} }

// Diversify blinds pk with a fresh diversifier read from r.
func Diversify(pk PublicKey, r io.Reader) (DiversifiedPublicKey, Diversifier, error) {
	d, err := group.RandomScalar(r)
	if err != nil {
		return DiversifiedPublicKey{}, Diversifier{}, err
	}
	return DiversifyWith(pk, d), d, nil
}

// DiversifyWith blinds pk with a caller supplied diversifier.
func DiversifyWith(pk PublicKey, d Diversifier) DiversifiedPublicKey {
	return DiversifiedPublicKey{PPK1: pk.P.Mul(d), PPK2: group.G2Generator().Mul(d)}
}

// CheckOwnership reports whether ppk2^sk == ppk1.
func CheckOwnership(sk SecretKey, ppk DiversifiedPublicKey) bool {
	if ppk.PPK1.IsIdentity() || ppk.PPK2.IsIdentity() {
		return false
	}
	return ppk.PPK2.Mul(sk.s).Equal(ppk.PPK1)
}

// Index returns the position of pk in set, or -1.
func Index(set []PublicKey, pk PublicKey) int {
	for i := range set {
		if set[i].Equal(pk) {
			return i
		}
	}
	return -1
}

func (pk PublicKey) Equal(o PublicKey) bool { return pk.P.Equal(o.P) }

func (pk PublicKey) Bytes() []byte { return pk.P.Bytes() }

// PublicKeyFromBytes decodes a compressed G2 key, rejecting the identity.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	p, err := group.G2FromBytes(b)
	if err != nil {
		return PublicKey{}, err
	}
	if p.IsIdentity() {
		return PublicKey{}, fmt.Errorf("%w: identity public key", group.ErrCrypto)
	}
	return PublicKey{P: p}, nil
}

func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(pk.Bytes())), nil
}

func (pk *PublicKey) UnmarshalText(b []byte) error {
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return fmt.Errorf("%w: %v", group.ErrCrypto, err)
	}
	v, err := PublicKeyFromBytes(raw)
	if err != nil {
		return err
	}
	*pk = v
	return nil
}

func (ppk DiversifiedPublicKey) Equal(o DiversifiedPublicKey) bool {
	return ppk.PPK1.Equal(o.PPK1) && ppk.PPK2.Equal(o.PPK2)
}

// Bytes is ppk1 || ppk2, each compressed independently.
func (ppk DiversifiedPublicKey) Bytes() []byte {
	out := make([]byte, 0, 2*group.G2Size)
	out = append(out, ppk.PPK1.Bytes()...)
	return append(out, ppk.PPK2.Bytes()...)
}

// DiversifiedFromBytes decodes ppk1 || ppk2, rejecting identity components.
func DiversifiedFromBytes(b []byte) (DiversifiedPublicKey, error) {
	if len(b) != 2*group.G2Size {
		return DiversifiedPublicKey{}, fmt.Errorf("%w: diversified key length %d", group.ErrCrypto, len(b))
	}
	p1, err := group.G2FromBytes(b[:group.G2Size])
	if err != nil {
		return DiversifiedPublicKey{}, err
	}
	p2, err := group.G2FromBytes(b[group.G2Size:])
	if err != nil {
		return DiversifiedPublicKey{}, err
	}
	if p1.IsIdentity() || p2.IsIdentity() {
		return DiversifiedPublicKey{}, fmt.Errorf("%w: identity diversified key", group.ErrCrypto)
	}
	return DiversifiedPublicKey{PPK1: p1, PPK2: p2}, nil
}

// String renders hex(ppk1).hex(ppk2), the form used in board queries.
func (ppk DiversifiedPublicKey) String() string {
	return hex.EncodeToString(ppk.PPK1.Bytes()) + "." + hex.EncodeToString(ppk.PPK2.Bytes())
}

// ParseDiversified is the inverse of String.
func ParseDiversified(s string) (DiversifiedPublicKey, error) {
	a, b, ok := strings.Cut(s, ".")
	if !ok {
		return DiversifiedPublicKey{}, fmt.Errorf("%w: want hex.hex", group.ErrCrypto)
	}
	ra, err := hex.DecodeString(a)
	if err != nil {
		return DiversifiedPublicKey{}, fmt.Errorf("%w: %v", group.ErrCrypto, err)
	}
	rb, err := hex.DecodeString(b)
	if err != nil {
		return DiversifiedPublicKey{}, fmt.Errorf("%w: %v", group.ErrCrypto, err)
	}
	return DiversifiedFromBytes(append(ra, rb...))
}

func (ppk DiversifiedPublicKey) MarshalText() ([]byte, error) { return []byte(ppk.String()), nil }

func (ppk *DiversifiedPublicKey) UnmarshalText(b []byte) error {
	v, err := ParseDiversified(string(b))
	if err != nil {
		return err
	}
	*ppk = v
	return nil
}
