package prf

import (
	"errors"
	"testing"

	"github.com/zmlAEQ/zkbrownian/internal/group"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
)

func TestDeriveTheta_ChainsInputs(t *testing.T) {
	a, err := DeriveTheta(nil, 100, 1, 0)
	if err != nil {
		t.Fatalf("theta: %v", err)
	}
	b, _ := DeriveTheta(nil, 100, 1, 0)
	if !a.Equal(b) {
		t.Fatalf("theta not deterministic")
	}
	phi := group.G1Generator().Mul(group.ScalarFromUint64(9))
	variants := []struct {
		prev *group.G1
		sid  uint64
		pid  uint32
		nu   uint64
	}{
		{nil, 101, 1, 0},
		{nil, 100, 2, 0},
		{nil, 100, 1, 1},
		{&phi, 100, 1, 0},
	}
	for i, v := range variants {
		c, err := DeriveTheta(v.prev, v.sid, v.pid, v.nu)
		if err != nil {
			t.Fatalf("variant %d: %v", i, err)
		}
		if c.Equal(a) {
			t.Fatalf("variant %d collides with base theta", i)
		}
	}
}

func TestComputePRF_Relation(t *testing.T) {
	sk, _, _ := keys.KeyGen(nil)
	theta, _ := DeriveTheta(nil, 7, 3, 0)
	phi, err := ComputePRF(theta, sk)
	if err != nil {
		t.Fatalf("prf: %v", err)
	}
	// phi^(theta+sk) == G1
	if !phi.Mul(theta.Add(sk.Scalar())).Equal(group.G1Generator()) {
		t.Fatalf("phi^(theta+sk) != G1")
	}
	if !BridgeTarget(phi, theta).Equal(phi.Mul(sk.Scalar())) {
		t.Fatalf("bridge target != phi^sk")
	}
	if ExtractRoutingValue(phi) != ExtractRoutingValue(phi) {
		t.Fatalf("extraction not pure")
	}
}

func TestComputePRF_ZeroDenominator(t *testing.T) {
	sk, _, _ := keys.KeyGen(nil)
	theta := sk.Scalar().Neg()
	if _, err := ComputePRF(theta, sk); !errors.Is(err, group.ErrCrypto) {
		t.Fatalf("want ErrCrypto, got %v", err)
	}
}

func TestSpawnDiversifier(t *testing.T) {
	a, err := SpawnDiversifier(1, 100)
	if err != nil {
		t.Fatalf("d: %v", err)
	}
	b, _ := SpawnDiversifier(1, 100)
	c, _ := SpawnDiversifier(1, 101)
	if !a.Equal(b) || a.Equal(c) {
		t.Fatalf("diversifier determinism broken")
	}
}

func TestEmbed_Sentinel(t *testing.T) {
	hi, lo := Embed(nil)
	if hi.Sign() != 0 || lo.Sign() != 0 {
		t.Fatalf("sentinel must be (0,0)")
	}
	p := group.G1Generator()
	hi, lo = Embed(&p)
	if hi.Sign() == 0 && lo.Sign() == 0 {
		t.Fatalf("generator embeds to sentinel")
	}
}

func TestReduceRouting(t *testing.T) {
	if ReduceRouting(17, 1<<32) != 17 {
		t.Fatalf("full width must be identity")
	}
	if ReduceRouting(17, 10) != 7 {
		t.Fatalf("want 7")
	}
}
