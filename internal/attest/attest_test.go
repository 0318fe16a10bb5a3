package attest

import (
	"bytes"
	"errors"
	"testing"
)

type recorder struct {
	kinds []Kind
	fail  Kind
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Prove(st Statement, _ Witness) ([]byte, error) {
	r.kinds = append(r.kinds, st.Kind())
	return []byte(st.Kind()), nil
}

func (r *recorder) Check(st Statement, proof []byte) (bool, error) {
	r.kinds = append(r.kinds, st.Kind())
	return st.Kind() != r.fail && bytes.Equal(proof, []byte(st.Kind())), nil
}

func TestProveCheckHop_Order(t *testing.T) {
	r := &recorder{}
	pf, err := ProveHop(r, HopStatements{}, HopWitnesses{})
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	want := []Kind{KindSenderMembership, KindWeightSelection, KindReceiverMembership, KindBridge, KindKeyOps}
	for i, k := range want {
		if r.kinds[i] != k {
			t.Fatalf("step %d: %s want %s", i, r.kinds[i], k)
		}
	}
	r.kinds = nil
	if ok, err := CheckHop(r, HopStatements{}, pf); err != nil || !ok {
		t.Fatalf("check ok=%v err=%v", ok, err)
	}
	r.kinds, r.fail = nil, KindWeightSelection
	if ok, _ := CheckHop(r, HopStatements{}, pf); ok {
		t.Fatalf("want false")
	}
	if len(r.kinds) != 2 {
		t.Fatalf("check must short-circuit, ran %v", r.kinds)
	}
}

func TestProof_BinaryRoundtrip(t *testing.T) {
	pf := Proof{[]byte("a"), []byte("bb"), nil, []byte("dddd"), []byte("e")}
	b := pf.AppendBinary([]byte{9})
	back, rest, err := ReadProof(b[1:], 16)
	if err != nil || len(rest) != 0 {
		t.Fatalf("read err=%v rest=%d", err, len(rest))
	}
	if !bytes.Equal(back.Bridge, pf.Bridge) || len(back.ReceiverMembership) != 0 {
		t.Fatalf("roundtrip mismatch: %+v", back)
	}
	if _, _, err := ReadProof(b[1:5], 16); err == nil {
		t.Fatalf("want short read error")
	}
	if _, _, err := ReadProof(b[1:], 2); err == nil {
		t.Fatalf("want oversize part error")
	}
}

func TestRegistry(t *testing.T) {
	Register(&recorder{})
	if _, err := Lookup("recorder"); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if _, err := Lookup("missing"); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("want ErrUnknownBackend, got %v", err)
	}
	found := false
	for _, n := range Names() {
		found = found || n == "recorder"
	}
	if !found {
		t.Fatalf("names missing recorder")
	}
}

func TestContext_LabelDistinct(t *testing.T) {
	a := Context{PID: 1, SID: 2, Hop: 3}.Label(KindBridge)
	b := Context{PID: 1, SID: 2, Hop: 4}.Label(KindBridge)
	c := Context{PID: 1, SID: 2, Hop: 3}.Label(KindKeyOps)
	if bytes.Equal(a, b) || bytes.Equal(a, c) {
		t.Fatalf("labels collide")
	}
}
