package sigma

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/zmlAEQ/zkbrownian/internal/attest"
	"github.com/zmlAEQ/zkbrownian/internal/group"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
)

const Name = "sigma"

func init() { attest.Register(New(nil)) }

// Backend implements attest.Backend.
type Backend struct{ rnd io.Reader }

// New returns a backend drawing nonces from rnd (crypto/rand when nil).
func New(rnd io.Reader) *Backend {
	if rnd == nil {
		rnd = rand.Reader
	}
	return &Backend{rnd: rnd}
}

func (b *Backend) Name() string { return Name }

var gen2 = G2(group.G2Generator())

// membership builds OR_j (pk_j = G2^w0 ∧ extra(j)).
func membership(label []byte, ks []keys.PublicKey, extra func(j int) []Equation) Relation {
	r := Relation{Label: label, Witnesses: 1, Branches: make([]Branch, len(ks))}
	for j, pk := range ks {
		br := Branch{Eq(G2(pk.P), gen2, 0)}
		r.Branches[j] = append(br, extra(j)...)
	}
	return r
}

func owns(ppk keys.DiversifiedPublicKey, idx int) Equation {
	return Eq(G2(ppk.PPK1), G2(ppk.PPK2), idx)
}

// relation compiles a statement. ok is false when a public precondition
// fails, which makes the statement false without running the proof.
func relation(st attest.Statement) (r Relation, ok bool, err error) {
	switch s := st.(type) {
	case attest.Spawn:
		if !s.PPK0.PPK2.Equal(group.G2Generator().Mul(s.D)) {
			return Relation{}, false, nil
		}
		r = membership(s.Ctx.Label(s.Kind()), s.Keys, func(int) []Equation {
			return []Equation{owns(s.PPK0, 0)}
		})
		r.Label = append(r.Label, s.D.Bytes()...)
	case attest.SenderMembership:
		r = membership(s.Ctx.Label(s.Kind()), s.Keys, func(int) []Equation {
			return []Equation{owns(s.Prev, 0)}
		})
	case attest.ReceiverMembership:
		r = Relation{Label: s.Ctx.Label(s.Kind()), Witnesses: 1, Branches: make([]Branch, len(s.Keys))}
		for j, pk := range s.Keys {
			r.Branches[j] = Branch{
				Eq(G2(s.Next.PPK1), G2(pk.P), 0),
				Eq(G2(s.Next.PPK2), gen2, 0),
			}
		}
	case attest.WeightSelection:
		if len(s.Candidates) == 0 {
			return Relation{}, false, nil
		}
		r = Relation{Label: s.Ctx.Label(s.Kind()), Witnesses: 2, Branches: make([]Branch, len(s.Candidates))}
		for i, c := range s.Candidates {
			rho := uint64(s.Rho)
			if rho < c.Lower || rho >= c.Upper {
				return Relation{}, false, nil
			}
			if c.Sender < 0 || c.Sender >= len(s.Keys) || c.Receiver < 0 || c.Receiver >= len(s.Keys) {
				return Relation{}, false, nil
			}
			r.Branches[i] = Branch{
				Eq(G2(s.Keys[c.Sender].P), gen2, 0),
				owns(s.Prev, 0),
				Eq(G2(s.Next.PPK1), G2(s.Keys[c.Receiver].P), 1),
				Eq(G2(s.Next.PPK2), gen2, 1),
			}
			r.Label = appendCandidate(r.Label, c)
		}
		r.Label = append(r.Label, byte(s.Rho>>24), byte(s.Rho>>16), byte(s.Rho>>8), byte(s.Rho))
	case attest.Bridge:
		if s.Phi.IsIdentity() {
			return Relation{}, false, nil
		}
		r = Relation{Label: s.Ctx.Label(s.Kind()), Witnesses: 1, Branches: []Branch{{
			owns(s.Prev, 0),
			Eq(G1(s.Target), G1(s.Phi), 0),
		}}}
	case attest.KeyOps:
		if s.Phi.IsIdentity() {
			return Relation{}, false, nil
		}
		r = Relation{Label: append(s.Ctx.Label(s.Kind()), s.Phi.Bytes()...), Witnesses: 2, Branches: []Branch{{
			owns(s.Prev, 0),
			Eq(G2(s.Next.PPK2), gen2, 1),
		}}}
	default:
		return Relation{}, false, fmt.Errorf("%w: %T", attest.ErrUnsupported, st)
	}
	if len(r.Branches) == 0 {
		return Relation{}, false, nil
	}
	return r, true, nil
}

func appendCandidate(b []byte, c attest.Candidate) []byte {
	for _, v := range []uint64{uint64(c.Sender), uint64(c.Receiver), c.Lower, c.Upper} {
		b = append(b, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}
	return b
}

// witness maps an attest witness to the branch index and scalar vector.
func witness(st attest.Statement, w attest.Witness) (int, []group.Scalar, error) {
	if w == nil || w.Kind() != st.Kind() {
		return 0, nil, attest.ErrWitnessMismatch
	}
	switch v := w.(type) {
	case attest.SpawnWitness:
		return v.Index, []group.Scalar{v.X}, nil
	case attest.SenderWitness:
		return v.Index, []group.Scalar{v.X}, nil
	case attest.ReceiverWitness:
		return v.Index, []group.Scalar{v.Y}, nil
	case attest.WeightWitness:
		return v.Candidate, []group.Scalar{v.X, v.Y}, nil
	case attest.BridgeWitness:
		return 0, []group.Scalar{v.X}, nil
	case attest.KeyOpsWitness:
		return 0, []group.Scalar{v.X, v.Y}, nil
	}
	return 0, nil, fmt.Errorf("%w: %T", attest.ErrUnsupported, w)
}

func (b *Backend) Prove(st attest.Statement, w attest.Witness) ([]byte, error) {
	r, ok, err := relation(st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: public precondition of %s fails", attest.ErrWitnessMismatch, st.Kind())
	}
	real, vec, err := witness(st, w)
	if err != nil {
		return nil, err
	}
	proof, err := Prove(r, real, vec, b.rnd)
	if errors.Is(err, ErrBadWitness) || errors.Is(err, ErrShape) {
		return nil, fmt.Errorf("%w: %v", attest.ErrWitnessMismatch, err)
	}
	return proof, err
}

func (b *Backend) Check(st attest.Statement, proof []byte) (bool, error) {
	r, ok, err := relation(st)
	if err != nil || !ok {
		return false, err
	}
	valid, err := Verify(r, proof)
	if errors.Is(err, ErrMalformed) {
		return false, nil
	}
	return valid, err
}

var _ attest.Backend = (*Backend)(nil)
