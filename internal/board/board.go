// Package board is the append-only bulletin board nodes use to hand
// messages to each other. Entries are returned in post order. Every
// implementation serialises appends, so each one behaves as a single writer.
package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/internal/protocol"
)

var (
	ErrInvalidEntry = errors.New("board: invalid entry")
	ErrClosed       = errors.New("board: closed")
)

// Entry is one post.
type Entry struct {
	ID            string                    `json:"id"`
	Message       *protocol.Message         `json:"message"`
	ReceiverIndex int                       `json:"receiver_index"`
	AddressedTo   keys.DiversifiedPublicKey `json:"addressed_to"`
	PostedAt      time.Time                 `json:"posted_at"`
}

type Board interface {
	Post(ctx context.Context, e Entry) (Entry, error)
	All(ctx context.Context) ([]Entry, error)
	For(ctx context.Context, ppk keys.DiversifiedPublicKey) ([]Entry, error)
}

// prepare validates e and fills ID and PostedAt when empty.
func prepare(e Entry) (Entry, error) {
	if e.Message == nil {
		return Entry{}, fmt.Errorf("%w: nil message", ErrInvalidEntry)
	}
	if e.AddressedTo.PPK1.IsIdentity() || e.AddressedTo.PPK2.IsIdentity() {
		return Entry{}, fmt.Errorf("%w: missing addressed_to", ErrInvalidEntry)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.PostedAt.IsZero() {
		e.PostedAt = time.Now().UTC()
	}
	return e, nil
}

// filter keeps entries whose AddressedTo equals ppk on both components.
func filter(all []Entry, ppk keys.DiversifiedPublicKey) []Entry {
	out := make([]Entry, 0)
	for _, e := range all {
		if e.AddressedTo.Equal(ppk) {
			out = append(out, e)
		}
	}
	return out
}
