package sigma

import (
	"errors"
	"testing"

	"github.com/zmlAEQ/zkbrownian/internal/group"
)

func dlog(x group.Scalar) Relation {
	g := group.G2Generator()
	return Relation{Label: []byte("t"), Witnesses: 1, Branches: []Branch{{Eq(G2(g.Mul(x)), G2(g), 0)}}}
}

func TestProveVerify_SingleBranch(t *testing.T) {
	x, _ := group.RandomScalar(nil)
	r := dlog(x)
	pi, err := Prove(r, 0, []group.Scalar{x}, nil)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	ok, err := Verify(r, pi)
	if err != nil || !ok {
		t.Fatalf("verify ok=%v err=%v", ok, err)
	}
	r2 := r
	r2.Label = []byte("other")
	if ok, _ := Verify(r2, pi); ok {
		t.Fatalf("proof replayed under a different label")
	}
}

func TestProve_RejectsBadWitness(t *testing.T) {
	x, _ := group.RandomScalar(nil)
	y, _ := group.RandomScalar(nil)
	if _, err := Prove(dlog(x), 0, []group.Scalar{y}, nil); !errors.Is(err, ErrBadWitness) {
		t.Fatalf("want ErrBadWitness, got %v", err)
	}
}

func TestOr_HidesBranchAndVerifies(t *testing.T) {
	g1 := group.G1Generator()
	g2 := group.G2Generator()
	xs := make([]group.Scalar, 4)
	r := Relation{Label: []byte("or"), Witnesses: 1}
	for i := range xs {
		xs[i], _ = group.RandomScalar(nil)
		r.Branches = append(r.Branches, Branch{
			Eq(G2(g2.Mul(xs[i])), G2(g2), 0),
			Eq(G1(g1.Mul(xs[i])), G1(g1), 0),
		})
	}
	for real := range xs {
		pi, err := Prove(r, real, []group.Scalar{xs[real]}, nil)
		if err != nil {
			t.Fatalf("branch %d prove: %v", real, err)
		}
		if ok, err := Verify(r, pi); err != nil || !ok {
			t.Fatalf("branch %d verify ok=%v err=%v", real, ok, err)
		}
		pi[len(pi)-1] ^= 1
		if ok, _ := Verify(r, pi); ok {
			t.Fatalf("branch %d tampered proof accepted", real)
		}
	}
}

func TestVerify_Malformed(t *testing.T) {
	x, _ := group.RandomScalar(nil)
	if _, err := Verify(dlog(x), []byte{1, 2, 3}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("want ErrMalformed, got %v", err)
	}
}

func TestValidate_MixedGroups(t *testing.T) {
	r := Relation{Witnesses: 1, Branches: []Branch{{Eq(G1(group.G1Generator()), G2(group.G2Generator()), 0)}}}
	if _, err := Verify(r, nil); !errors.Is(err, ErrShape) {
		t.Fatalf("want ErrShape, got %v", err)
	}
}

func TestVerify_CancellingChallengesRejected(t *testing.T) {
	x, _ := group.RandomScalar(nil)
	y, _ := group.RandomScalar(nil)
	g := group.G2Generator()
	r := Relation{Label: []byte("cancel"), Witnesses: 1, Branches: []Branch{
		{Eq(G2(g.Mul(x)), G2(g), 0)},
		{Eq(G2(g.Mul(y)), G2(g), 0)},
	}}
	one := group.ScalarFromUint64(1)
	// 1 + (r-1) sums to zero
	pi := encode([]group.Scalar{one, one.Neg()}, [][]group.Scalar{{one}, {one}})
	ok, err := Verify(r, pi)
	if err != nil || ok {
		t.Fatalf("want false, nil; got ok=%v err=%v", ok, err)
	}
}
