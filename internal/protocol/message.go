package protocol

import (
	"github.com/zmlAEQ/zkbrownian/internal/attest"
	"github.com/zmlAEQ/zkbrownian/internal/group"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
)

// Hop is one relay step. It is never modified after Forward creates it.
type Hop struct {
	PPK   keys.DiversifiedPublicKey `json:"ppk"`
	Phi   group.G1                  `json:"phi"`
	Proof attest.Proof              `json:"proof"`
}

// Message is the append-only path record of one packet. Hops is ordered
// and its order is the path history.
type Message struct {
	PID  uint32                    `json:"pid"`
	SID  uint64                    `json:"sid"`
	Hops []Hop                     `json:"hops"`
	PPK0 keys.DiversifiedPublicKey `json:"ppk0"`
	Pi0  []byte                    `json:"pi0"`
}

// HopCount is ν.
func (m *Message) HopCount() int { return len(m.Hops) }

// LatestPhi returns the PRF output of the last hop, or nil before the
// first Forward.
func (m *Message) LatestPhi() *group.G1 {
	if len(m.Hops) == 0 {
		return nil
	}
	phi := m.Hops[len(m.Hops)-1].Phi
	return &phi
}

// LatestPPK is the key the message is currently addressed to: ppk0 until
// the first Forward, then the newest hop's key.
func (m *Message) LatestPPK() keys.DiversifiedPublicKey {
	if len(m.Hops) == 0 {
		return m.PPK0
	}
	return m.Hops[len(m.Hops)-1].PPK
}

// prevPPK is the key hop i was addressed from.
func (m *Message) prevPPK(i int) keys.DiversifiedPublicKey {
	if i == 0 {
		return m.PPK0
	}
	return m.Hops[i-1].PPK
}

func (m *Message) prevPhi(i int) *group.G1 {
	if i == 0 {
		return nil
	}
	phi := m.Hops[i-1].Phi
	return &phi
}

// extend returns a copy of m with h appended. The receiver is untouched.
func (m *Message) extend(h Hop) *Message {
	out := *m
	out.Hops = make([]Hop, len(m.Hops), len(m.Hops)+1)
	copy(out.Hops, m.Hops)
	out.Hops = append(out.Hops, h)
	return &out
}
