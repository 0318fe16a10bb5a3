package keys

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/zmlAEQ/zkbrownian/internal/group"
)

func TestCheckOwnership_OwnerOnly(t *testing.T) {
	sk, pk, err := KeyGen(nil)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	other, _, _ := KeyGen(nil)
	for i := 0; i < 4; i++ {
		ppk, d, err := Diversify(pk, nil)
		if err != nil {
			t.Fatalf("diversify: %v", err)
		}
		if d.IsZero() {
			t.Fatalf("zero diversifier")
		}
		if !CheckOwnership(sk, ppk) {
			t.Fatalf("owner rejected")
		}
		if CheckOwnership(other, ppk) {
			t.Fatalf("non-owner accepted")
		}
	}
}

func TestDiversifyWith_Deterministic(t *testing.T) {
	_, pk, _ := KeyGen(nil)
	d := group.ScalarFromUint64(42)
	a, b := DiversifyWith(pk, d), DiversifyWith(pk, d)
	if !a.Equal(b) {
		t.Fatalf("same diversifier produced different keys")
	}
	if a.Equal(DiversifyWith(pk, group.ScalarFromUint64(43))) {
		t.Fatalf("different diversifiers collided")
	}
}

func TestFromSeed_Reproducible(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	sk1, pk1, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, pk2, _ := FromSeed(seed)
	if !pk1.Equal(pk2) || !sk1.Public().Equal(pk1) {
		t.Fatalf("seed derivation not stable")
	}
	if _, _, err := FromSeed(seed[:8]); !errors.Is(err, group.ErrCrypto) {
		t.Fatalf("want ErrCrypto for short seed, got %v", err)
	}
}

func TestEncodings(t *testing.T) {
	_, pk, _ := KeyGen(nil)
	ppk, _, _ := Diversify(pk, nil)

	raw, err := json.Marshal(struct {
		PK  PublicKey            `json:"pk"`
		PPK DiversifiedPublicKey `json:"ppk"`
	}{pk, ppk})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back struct {
		PK  PublicKey            `json:"pk"`
		PPK DiversifiedPublicKey `json:"ppk"`
	}
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.PK.Equal(pk) || !back.PPK.Equal(ppk) {
		t.Fatalf("json roundtrip mismatch")
	}
	d2, err := DiversifiedFromBytes(ppk.Bytes())
	if err != nil || !d2.Equal(ppk) {
		t.Fatalf("bytes roundtrip err=%v", err)
	}
	if _, err := PublicKeyFromBytes((group.G2{}).Bytes()); !errors.Is(err, group.ErrCrypto) {
		t.Fatalf("identity key accepted: %v", err)
	}
	if _, err := ParseDiversified("nodot"); err == nil {
		t.Fatalf("want parse error")
	}
}

func TestIndex(t *testing.T) {
	_, a, _ := KeyGen(nil)
	_, b, _ := KeyGen(nil)
	_, c, _ := KeyGen(nil)
	set := []PublicKey{a, b}
	if Index(set, b) != 1 || Index(set, c) != -1 {
		t.Fatalf("index lookup wrong")
	}
}
