package sigma

import (
	"errors"
	"testing"

	"github.com/zmlAEQ/zkbrownian/internal/attest"
	"github.com/zmlAEQ/zkbrownian/internal/group"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/internal/prf"
)

type fixture struct {
	sks []keys.SecretKey
	pks []keys.PublicKey
}

func newFixture(t *testing.T, n int) fixture {
	t.Helper()
	var f fixture
	for i := 0; i < n; i++ {
		sk, pk, err := keys.KeyGen(nil)
		if err != nil {
			t.Fatalf("keygen: %v", err)
		}
		f.sks = append(f.sks, sk)
		f.pks = append(f.pks, pk)
	}
	return f
}

func TestRegistered(t *testing.T) {
	b, err := attest.Lookup(Name)
	if err != nil || b.Name() != Name {
		t.Fatalf("lookup: %v", err)
	}
}

func TestSpawn_ProveCheck(t *testing.T) {
	f := newFixture(t, 3)
	b := New(nil)
	d, _ := prf.SpawnDiversifier(1, 100)
	st := attest.Spawn{Ctx: attest.Context{PID: 1, SID: 100}, Keys: f.pks, PPK0: keys.DiversifyWith(f.pks[1], d), D: d}
	pi, err := b.Prove(st, attest.SpawnWitness{Index: 1, X: f.sks[1].Scalar()})
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if ok, err := b.Check(st, pi); err != nil || !ok {
		t.Fatalf("check ok=%v err=%v", ok, err)
	}
	other, _ := prf.SpawnDiversifier(1, 101)
	st.D = other
	if ok, _ := b.Check(st, pi); ok {
		t.Fatalf("accepted under wrong diversifier")
	}
}

func TestHop_AllStatements(t *testing.T) {
	f := newFixture(t, 3)
	b := New(nil)
	ctx := attest.Context{PID: 1, SID: 100, Hop: 0}
	sender, receiver := 0, 2
	prev, _, _ := keys.Diversify(f.pks[sender], nil)
	next, y, _ := keys.Diversify(f.pks[receiver], nil)
	x := f.sks[sender].Scalar()
	theta, _ := prf.DeriveTheta(nil, ctx.SID, ctx.PID, ctx.Hop)
	phi, _ := prf.ComputePRF(theta, f.sks[sender])

	st := attest.HopStatements{
		Sender: attest.SenderMembership{Ctx: ctx, Keys: f.pks, Prev: prev},
		Weight: attest.WeightSelection{Ctx: ctx, Keys: f.pks, Prev: prev, Next: next, Rho: 5, Candidates: []attest.Candidate{
			{Sender: 0, Receiver: 2, Lower: 0, Upper: 10},
			{Sender: 1, Receiver: 0, Lower: 5, Upper: 6},
			{Sender: 2, Receiver: 1, Lower: 3, Upper: 9},
		}},
		Receiver: attest.ReceiverMembership{Ctx: ctx, Keys: f.pks, Next: next},
		Bridge:   attest.Bridge{Ctx: ctx, Prev: prev, Phi: phi, Target: prf.BridgeTarget(phi, theta)},
		KeyOps:   attest.KeyOps{Ctx: ctx, Prev: prev, Next: next, Phi: phi},
	}
	w := attest.HopWitnesses{
		Sender:   attest.SenderWitness{Index: sender, X: x},
		Weight:   attest.WeightWitness{Candidate: 0, X: x, Y: y},
		Receiver: attest.ReceiverWitness{Index: receiver, Y: y},
		Bridge:   attest.BridgeWitness{X: x},
		KeyOps:   attest.KeyOpsWitness{X: x, Y: y},
	}
	pf, err := attest.ProveHop(b, st, w)
	if err != nil {
		t.Fatalf("prove hop: %v", err)
	}
	if ok, err := attest.CheckHop(b, st, pf); err != nil || !ok {
		t.Fatalf("check hop ok=%v err=%v", ok, err)
	}

	// a candidate whose bucket excludes rho makes the selection statement false
	bad := st
	bad.Weight.Candidates = append([]attest.Candidate(nil), st.Weight.Candidates...)
	bad.Weight.Candidates[1].Upper = 5
	if ok, _ := attest.CheckHop(b, bad, pf); ok {
		t.Fatalf("accepted out-of-bucket candidate")
	}

	// bridge must bind to the same theta
	other := st
	other.Bridge.Target = prf.BridgeTarget(phi, theta.Add(group.ScalarFromUint64(1)))
	if ok, _ := attest.CheckHop(b, other, pf); ok {
		t.Fatalf("accepted bridge with wrong theta")
	}

	// proofs are bound to the hop context
	moved := st
	moved.KeyOps.Ctx.Hop = 1
	if ok, _ := attest.CheckHop(b, moved, pf); ok {
		t.Fatalf("accepted proof under a different hop index")
	}
}

func TestProve_WrongWitness(t *testing.T) {
	f := newFixture(t, 2)
	b := New(nil)
	prev, _, _ := keys.Diversify(f.pks[0], nil)
	st := attest.SenderMembership{Keys: f.pks, Prev: prev}
	if _, err := b.Prove(st, attest.SenderWitness{Index: 1, X: f.sks[1].Scalar()}); !errors.Is(err, attest.ErrWitnessMismatch) {
		t.Fatalf("want ErrWitnessMismatch, got %v", err)
	}
	if _, err := b.Prove(st, attest.BridgeWitness{}); !errors.Is(err, attest.ErrWitnessMismatch) {
		t.Fatalf("want kind mismatch, got %v", err)
	}
}

func TestCheck_MalformedIsFalse(t *testing.T) {
	f := newFixture(t, 2)
	next, _, _ := keys.Diversify(f.pks[0], nil)
	ok, err := New(nil).Check(attest.ReceiverMembership{Keys: f.pks, Next: next}, []byte("junk"))
	if ok || err != nil {
		t.Fatalf("want false,nil got %v,%v", ok, err)
	}
}
