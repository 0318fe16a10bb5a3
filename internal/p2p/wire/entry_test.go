package wire

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/zmlAEQ/zkbrownian/internal/board"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/internal/protocol"
)

func TestEntry_Roundtrip(t *testing.T) {
	_, pk, err := keys.KeyGen(nil)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	ppk, _, err := keys.Diversify(pk, nil)
	if err != nil {
		t.Fatalf("diversify: %v", err)
	}
	in := board.Entry{
		ID:            "e1",
		Message:       &protocol.Message{PID: 4, SID: 9, PPK0: ppk, Pi0: []byte{7}},
		ReceiverIndex: 2,
		AddressedTo:   ppk,
		PostedAt:      time.Unix(100, 0).UTC(),
	}
	w, err := FromEntry(in, "trace")
	if err != nil {
		t.Fatalf("from: %v", err)
	}
	raw, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Entry
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	out, err := back.ToEntry()
	if err != nil {
		t.Fatalf("to: %v", err)
	}
	if out.ID != "e1" || out.ReceiverIndex != 2 || !out.AddressedTo.Equal(ppk) {
		t.Fatalf("fields lost: %+v", out)
	}
	if out.Message.PID != 4 || out.Message.SID != 9 || !out.Message.PPK0.Equal(ppk) {
		t.Fatalf("message lost: %+v", out.Message)
	}
	if back.TraceID != "trace" || !out.PostedAt.Equal(in.PostedAt) {
		t.Fatalf("metadata lost")
	}
}

func TestEntry_Rejects(t *testing.T) {
	if _, err := FromEntry(board.Entry{}, ""); !errors.Is(err, ErrEnvelope) {
		t.Fatalf("nil message: %v", err)
	}
	if _, err := (Entry{}).ToEntry(); !errors.Is(err, ErrEnvelope) {
		t.Fatalf("missing id: %v", err)
	}
	if _, err := (Entry{ID: "x", AddressedTo: "nothex"}).ToEntry(); !errors.Is(err, ErrEnvelope) {
		t.Fatalf("bad ppk: %v", err)
	}
}
