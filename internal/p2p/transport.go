package p2p

import (
	"context"

	"github.com/zmlAEQ/zkbrownian/internal/board"
)

// Transport gossips board entries between nodes so each one can keep a
// local replica of the board.
type Transport interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// BroadcastEntry publishes e to the entry topic.
	BroadcastEntry(ctx context.Context, e board.Entry) error
	// OnEntry registers the handler for inbound entries.
	OnEntry(fn func(board.Entry))
}

// NoopTransport is used when gossip is disabled.
type NoopTransport struct {
	onEntry func(board.Entry)
}

func (n *NoopTransport) Start(_ context.Context) error                         { return nil }
func (n *NoopTransport) Stop(_ context.Context) error                          { return nil }
func (n *NoopTransport) BroadcastEntry(_ context.Context, _ board.Entry) error { return nil }
func (n *NoopTransport) OnEntry(fn func(board.Entry))                          { n.onEntry = fn }
