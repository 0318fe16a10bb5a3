package attest

import (
	"fmt"

	"github.com/tchajed/marshal"
)

// Proof is the five-part attestation carried by one hop.
type Proof struct {
	SenderMembership   []byte `json:"pi_1"`
	WeightSelection    []byte `json:"pi_2"`
	ReceiverMembership []byte `json:"pi_3"`
	Bridge             []byte `json:"pi_4_g1"`
	KeyOps             []byte `json:"pi_4_g2"`
}

func (p Proof) parts() [][]byte {
	return [][]byte{p.SenderMembership, p.WeightSelection, p.ReceiverMembership, p.Bridge, p.KeyOps}
}

// AppendBinary writes the five parts in order, each length prefixed.
func (p Proof) AppendBinary(b []byte) []byte {
	for _, part := range p.parts() {
		b = marshal.WriteInt(b, uint64(len(part)))
		b = marshal.WriteBytes(b, part)
	}
	return b
}

// ReadProof is the inverse of AppendBinary and returns the remaining bytes.
func ReadProof(b []byte, maxPart int) (Proof, []byte, error) {
	var out [5][]byte
	for i := range out {
		if len(b) < 8 {
			return Proof{}, nil, fmt.Errorf("proof part %d: short length", i)
		}
		var n uint64
		n, b = marshal.ReadInt(b)
		if n > uint64(maxPart) || uint64(len(b)) < n {
			return Proof{}, nil, fmt.Errorf("proof part %d: length %d", i, n)
		}
		out[i], b = marshal.ReadBytesCopy(b, n)
	}
	return Proof{
		SenderMembership:   out[0],
		WeightSelection:    out[1],
		ReceiverMembership: out[2],
		Bridge:             out[3],
		KeyOps:             out[4],
	}, b, nil
}

// HopStatements are the public statements for one forward step.
type HopStatements struct {
	Sender   SenderMembership
	Weight   WeightSelection
	Receiver ReceiverMembership
	Bridge   Bridge
	KeyOps   KeyOps
}

// HopWitnesses are the matching secrets.
type HopWitnesses struct {
	Sender   SenderWitness
	Weight   WeightWitness
	Receiver ReceiverWitness
	Bridge   BridgeWitness
	KeyOps   KeyOpsWitness
}

// ProveHop produces all five proofs, failing on the first backend error.
func ProveHop(p Prover, st HopStatements, w HopWitnesses) (Proof, error) {
	var pf Proof
	steps := []struct {
		dst *[]byte
		st  Statement
		w   Witness
	}{
		{&pf.SenderMembership, st.Sender, w.Sender},
		{&pf.WeightSelection, st.Weight, w.Weight},
		{&pf.ReceiverMembership, st.Receiver, w.Receiver},
		{&pf.Bridge, st.Bridge, w.Bridge},
		{&pf.KeyOps, st.KeyOps, w.KeyOps},
	}
	for _, s := range steps {
		b, err := p.Prove(s.st, s.w)
		if err != nil {
			return Proof{}, fmt.Errorf("prove %s: %w", s.st.Kind(), err)
		}
		*s.dst = b
	}
	return pf, nil
}

// CheckHop checks the five proofs in order and stops at the first failure.
func CheckHop(v Verifier, st HopStatements, pf Proof) (bool, error) {
	steps := []struct {
		st Statement
		pi []byte
	}{
		{st.Sender, pf.SenderMembership},
		{st.Weight, pf.WeightSelection},
		{st.Receiver, pf.ReceiverMembership},
		{st.Bridge, pf.Bridge},
		{st.KeyOps, pf.KeyOps},
	}
	for _, s := range steps {
		ok, err := v.Check(s.st, s.pi)
		if err != nil {
			return false, fmt.Errorf("check %s: %w", s.st.Kind(), err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
