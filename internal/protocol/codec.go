package protocol

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/zmlAEQ/zkbrownian/internal/attest"
	"github.com/zmlAEQ/zkbrownian/internal/group"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
)

const (
	codecVersion = 1
	ppkSize      = 2 * group.G2Size
	// bounds for untrusted input
	maxWireHops  = 1 << 10
	maxProofPart = 1 << 24
)

// MarshalBinary encodes the message as an ordered field sequence:
// version, pid, sid, ppk0, pi0, then the hops in path order.
func (m *Message) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, 256+len(m.Pi0)+len(m.Hops)*1024)
	b = marshal.WriteInt(b, codecVersion)
	b = marshal.WriteInt(b, uint64(m.PID))
	b = marshal.WriteInt(b, m.SID)
	b = marshal.WriteBytes(b, m.PPK0.Bytes())
	b = marshal.WriteInt(b, uint64(len(m.Pi0)))
	b = marshal.WriteBytes(b, m.Pi0)
	b = marshal.WriteInt(b, uint64(len(m.Hops)))
	for _, h := range m.Hops {
		b = marshal.WriteBytes(b, h.PPK.Bytes())
		b = marshal.WriteBytes(b, h.Phi.Bytes())
		b = h.Proof.AppendBinary(b)
	}
	return b, nil
}

// reader is a bounds-checked cursor over marshal's unchecked readers.
type reader struct {
	b   []byte
	err error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrSerialization, fmt.Sprintf(format, args...))
	}
}

func (r *reader) int(field string) uint64 {
	if r.err != nil {
		return 0
	}
	if len(r.b) < 8 {
		r.fail("%s: short", field)
		return 0
	}
	var v uint64
	v, r.b = marshal.ReadInt(r.b)
	return v
}

func (r *reader) bytes(field string, n uint64) []byte {
	if r.err != nil {
		return nil
	}
	if uint64(len(r.b)) < n {
		r.fail("%s: want %d bytes, have %d", field, n, len(r.b))
		return nil
	}
	var out []byte
	out, r.b = marshal.ReadBytesCopy(r.b, n)
	return out
}

func (r *reader) ppk(field string) keys.DiversifiedPublicKey {
	raw := r.bytes(field, ppkSize)
	if r.err != nil {
		return keys.DiversifiedPublicKey{}
	}
	v, err := keys.DiversifiedFromBytes(raw)
	if err != nil {
		r.fail("%s: %v", field, err)
	}
	return v
}

func (r *reader) g1(field string) group.G1 {
	raw := r.bytes(field, group.G1Size)
	if r.err != nil {
		return group.G1{}
	}
	v, err := group.G1FromBytes(raw)
	if err != nil {
		r.fail("%s: %v", field, err)
	}
	return v
}

// UnmarshalBinary decodes MarshalBinary output. Every point is checked for
// subgroup membership; trailing bytes are rejected.
func (m *Message) UnmarshalBinary(data []byte) error {
	r := &reader{b: data}
	if v := r.int("version"); r.err == nil && v != codecVersion {
		r.fail("version %d", v)
	}
	pid := r.int("pid")
	if pid > 1<<32-1 {
		r.fail("pid overflows uint32")
	}
	sid := r.int("sid")
	ppk0 := r.ppk("ppk0")
	n := r.int("pi0 length")
	if n > maxProofPart {
		r.fail("pi0 length %d", n)
	}
	pi0 := r.bytes("pi0", n)
	nh := r.int("hop count")
	if nh > maxWireHops {
		r.fail("hop count %d", nh)
	}
	var hops []Hop
	for i := uint64(0); r.err == nil && i < nh; i++ {
		h := Hop{PPK: r.ppk("hop ppk"), Phi: r.g1("hop phi")}
		if r.err != nil {
			break
		}
		pf, rest, err := attest.ReadProof(r.b, maxProofPart)
		if err != nil {
			r.fail("hop %d: %v", i, err)
			break
		}
		h.Proof, r.b = pf, rest
		hops = append(hops, h)
	}
	if r.err == nil && len(r.b) != 0 {
		r.fail("%d trailing bytes", len(r.b))
	}
	if r.err != nil {
		return r.err
	}
	*m = Message{PID: uint32(pid), SID: sid, Hops: hops, PPK0: ppk0, Pi0: pi0}
	return nil
}

// Decode is UnmarshalBinary into a fresh message.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &m, nil
}
