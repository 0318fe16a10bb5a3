// Package sigma is a Fiat–Shamir Schnorr backend for the relay statements.
//
// Every statement compiles to a Relation: an OR over branches, each branch a
// conjunction of linear equations target = Σ base_t · w_{idx_t} over G1 or
// G2. OR composition follows Cramer–Damgård–Schoenmakers: the prover
// simulates every branch but the true one and splits the challenge so the
// per-branch challenges sum to the transcript hash.
package sigma

import (
	"errors"
	"fmt"
	"io"

	"github.com/tchajed/marshal"

	"github.com/zmlAEQ/zkbrownian/internal/group"
)

var (
	ErrBadWitness = errors.New("sigma: witness does not satisfy relation")
	ErrMalformed  = errors.New("sigma: malformed proof")
	ErrShape      = errors.New("sigma: bad relation shape")
)

// Element is a point of either group.
type Element interface {
	Mul(group.Scalar) Element
	Add(Element) Element
	Equal(Element) bool
	Bytes() []byte
}

type g1 struct{ p group.G1 }
type g2 struct{ p group.G2 }

func G1(p group.G1) Element { return g1{p} }
func G2(p group.G2) Element { return g2{p} }

func (a g1) Mul(s group.Scalar) Element { return g1{a.p.Mul(s)} }
func (a g1) Add(b Element) Element      { return g1{a.p.Add(b.(g1).p)} }
func (a g1) Equal(b Element) bool {
	o, ok := b.(g1)
	return ok && a.p.Equal(o.p)
}
func (a g1) Bytes() []byte { return a.p.Bytes() }

func (a g2) Mul(s group.Scalar) Element { return g2{a.p.Mul(s)} }
func (a g2) Add(b Element) Element      { return g2{a.p.Add(b.(g2).p)} }
func (a g2) Equal(b Element) bool {
	o, ok := b.(g2)
	return ok && a.p.Equal(o.p)
}
func (a g2) Bytes() []byte { return a.p.Bytes() }

func zeroLike(e Element) Element {
	if _, ok := e.(g1); ok {
		return g1{}
	}
	return g2{}
}

// Term is base^w[Witness].
type Term struct {
	Base    Element
	Witness int
}

// Equation is Target = Σ Terms. All elements of one equation share a group.
type Equation struct {
	Target Element
	Terms  []Term
}

// Eq builds a single-term equation target = base^w[idx].
func Eq(target, base Element, idx int) Equation {
	return Equation{Target: target, Terms: []Term{{Base: base, Witness: idx}}}
}

// Branch is a conjunction.
type Branch []Equation

// Relation is an OR of branches over a shared witness arity.
type Relation struct {
	Label     []byte
	Witnesses int
	Branches  []Branch
}

func (r Relation) validate() error {
	if r.Witnesses <= 0 || len(r.Branches) == 0 {
		return ErrShape
	}
	for _, br := range r.Branches {
		if len(br) == 0 {
			return ErrShape
		}
		for _, eq := range br {
			if eq.Target == nil || len(eq.Terms) == 0 {
				return ErrShape
			}
			for _, t := range eq.Terms {
				if t.Base == nil || t.Witness < 0 || t.Witness >= r.Witnesses {
					return ErrShape
				}
				if _, same := t.Base.(g1); same != isG1(eq.Target) {
					return ErrShape
				}
			}
		}
	}
	return nil
}

func isG1(e Element) bool {
	_, ok := e.(g1)
	return ok
}

func eval(eq Equation, w []group.Scalar) Element {
	acc := zeroLike(eq.Target)
	for _, t := range eq.Terms {
		acc = acc.Add(t.Base.Mul(w[t.Witness]))
	}
	return acc
}

// commitment recomputes Σ base·z − c·target.
func commitment(eq Equation, z []group.Scalar, c group.Scalar) Element {
	return eval(eq, z).Add(eq.Target.Mul(c.Neg()))
}

func challenge(r Relation, commits [][]Element) group.Scalar {
	parts := make([][]byte, 0, 2+len(r.Branches)*4)
	parts = append(parts, r.Label)
	for i, br := range r.Branches {
		for j, eq := range br {
			parts = append(parts, eq.Target.Bytes())
			for _, t := range eq.Terms {
				parts = append(parts, t.Base.Bytes())
			}
			parts = append(parts, commits[i][j].Bytes())
		}
	}
	return group.HashToScalar(group.DSTChallenge, parts...)
}

// Prove proves knowledge of w for branch real.
func Prove(r Relation, real int, w []group.Scalar, rnd io.Reader) ([]byte, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	if real < 0 || real >= len(r.Branches) || len(w) != r.Witnesses {
		return nil, fmt.Errorf("%w: branch %d of %d, %d witnesses", ErrShape, real, len(r.Branches), len(w))
	}
	for _, eq := range r.Branches[real] {
		if !eval(eq, w).Equal(eq.Target) {
			return nil, ErrBadWitness
		}
	}

	n := len(r.Branches)
	cs := make([]group.Scalar, n)
	zs := make([][]group.Scalar, n)
	commits := make([][]Element, n)
	nonces := make([]group.Scalar, r.Witnesses)
	for k := range nonces {
		s, err := group.RandomScalar(rnd)
		if err != nil {
			return nil, err
		}
		nonces[k] = s
	}
	for i, br := range r.Branches {
		commits[i] = make([]Element, len(br))
		if i == real {
			for j, eq := range br {
				commits[i][j] = eval(eq, nonces)
			}
			continue
		}
		c, err := group.RandomScalar(rnd)
		if err != nil {
			return nil, err
		}
		z := make([]group.Scalar, r.Witnesses)
		for k := range z {
			if z[k], err = group.RandomScalar(rnd); err != nil {
				return nil, err
			}
		}
		cs[i], zs[i] = c, z
		for j, eq := range br {
			commits[i][j] = commitment(eq, z, c)
		}
	}

	creal := challenge(r, commits)
	for i := range cs {
		if i != real {
			creal = creal.Sub(cs[i])
		}
	}
	cs[real] = creal
	zs[real] = make([]group.Scalar, r.Witnesses)
	for k := range nonces {
		zs[real][k] = nonces[k].Add(creal.Mul(w[k]))
	}
	return encode(cs, zs), nil
}

// Verify checks a proof produced by Prove for r. Malformed bytes return
// ErrMalformed; a well-formed but invalid proof returns false.
func Verify(r Relation, proof []byte) (bool, error) {
	if err := r.validate(); err != nil {
		return false, err
	}
	cs, zs, err := decode(proof, len(r.Branches), r.Witnesses)
	if err != nil {
		return false, err
	}
	commits := make([][]Element, len(r.Branches))
	var sum group.Scalar
	for i, br := range r.Branches {
		commits[i] = make([]Element, len(br))
		for j, eq := range br {
			commits[i][j] = commitment(eq, zs[i], cs[i])
		}
		sum = sum.Add(cs[i])
	}
	return sum.Equal(challenge(r, commits)), nil
}

// Proof layout: branch count, witness count, then per branch the challenge
// followed by the responses, each a 32-byte scalar.
func encode(cs []group.Scalar, zs [][]group.Scalar) []byte {
	w := 0
	if len(zs) > 0 {
		w = len(zs[0])
	}
	b := make([]byte, 0, 16+len(cs)*(1+w)*group.ScalarSize)
	b = marshal.WriteInt(b, uint64(len(cs)))
	b = marshal.WriteInt(b, uint64(w))
	for i := range cs {
		b = marshal.WriteBytes(b, cs[i].Bytes())
		for _, z := range zs[i] {
			b = marshal.WriteBytes(b, z.Bytes())
		}
	}
	return b
}

func decode(b []byte, branches, witnesses int) ([]group.Scalar, [][]group.Scalar, error) {
	want := 16 + branches*(1+witnesses)*group.ScalarSize
	if len(b) != want {
		return nil, nil, fmt.Errorf("%w: length %d, want %d", ErrMalformed, len(b), want)
	}
	nb, b := marshal.ReadInt(b)
	nw, b := marshal.ReadInt(b)
	if nb != uint64(branches) || nw != uint64(witnesses) {
		return nil, nil, fmt.Errorf("%w: shape %dx%d", ErrMalformed, nb, nw)
	}
	read := func() (group.Scalar, error) {
		var raw []byte
		raw, b = marshal.ReadBytes(b, group.ScalarSize)
		s, err := group.ScalarFromBytes(raw)
		if err != nil {
			return group.Scalar{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return s, nil
	}
	cs := make([]group.Scalar, branches)
	zs := make([][]group.Scalar, branches)
	for i := 0; i < branches; i++ {
		c, err := read()
		if err != nil {
			return nil, nil, err
		}
		cs[i] = c
		zs[i] = make([]group.Scalar, witnesses)
		for k := 0; k < witnesses; k++ {
			if zs[i][k], err = read(); err != nil {
				return nil, nil, err
			}
		}
	}
	return cs, zs, nil
}
