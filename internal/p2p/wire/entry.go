// Package wire holds the gossip encodings of board entries.
package wire

import (
	"errors"
	"fmt"
	"time"

	"github.com/zmlAEQ/zkbrownian/internal/board"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/internal/protocol"
)

// TopicEntries carries every board post between nodes.
const TopicEntries = "zkbrownian/board/v1"

// MaxEnvelope bounds a decoded gossip payload.
const MaxEnvelope = 8 << 20

var ErrEnvelope = errors.New("wire: bad envelope")

// Entry is the gossip form of board.Entry. The packet travels in its
// compact binary encoding; hex is used for the addressee so the JSON stays
// readable in logs.
type Entry struct {
	ID            string    `json:"id"`
	ReceiverIndex int       `json:"receiver_index"`
	AddressedTo   string    `json:"addressed_to"`
	Message       []byte    `json:"message"`
	PostedAt      time.Time `json:"posted_at"`
	TraceID       string    `json:"trace_id,omitempty"`
}

func FromEntry(e board.Entry, traceID string) (Entry, error) {
	if e.Message == nil {
		return Entry{}, fmt.Errorf("%w: nil message", ErrEnvelope)
	}
	raw, err := e.Message.MarshalBinary()
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:            e.ID,
		ReceiverIndex: e.ReceiverIndex,
		AddressedTo:   e.AddressedTo.String(),
		Message:       raw,
		PostedAt:      e.PostedAt,
		TraceID:       traceID,
	}, nil
}

func (w Entry) ToEntry() (board.Entry, error) {
	if w.ID == "" {
		return board.Entry{}, fmt.Errorf("%w: missing id", ErrEnvelope)
	}
	ppk, err := keys.ParseDiversified(w.AddressedTo)
	if err != nil {
		return board.Entry{}, fmt.Errorf("%w: addressed_to: %v", ErrEnvelope, err)
	}
	m, err := protocol.Decode(w.Message)
	if err != nil {
		return board.Entry{}, fmt.Errorf("%w: %v", ErrEnvelope, err)
	}
	return board.Entry{
		ID:            w.ID,
		Message:       m,
		ReceiverIndex: w.ReceiverIndex,
		AddressedTo:   ppk,
		PostedAt:      w.PostedAt,
	}, nil
}
