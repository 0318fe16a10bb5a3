package p2p

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/zmlAEQ/zkbrownian/internal/board"
	"github.com/zmlAEQ/zkbrownian/internal/p2p/wire"
	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
	"github.com/zmlAEQ/zkbrownian/pkg/trace"
)

var ErrNotStarted = errors.New("p2p: not started")

// Hub is an in-process pubsub fabric. Transports joined to the same hub
// see each other's broadcasts but not their own, like gossipsub does.
// Deliveries go through the same JSON envelope as the network path.
type Hub struct {
	mu    sync.RWMutex
	peers []*HubTransport
}

func NewHub() *Hub { return &Hub{} }

func (h *Hub) Join() *HubTransport {
	t := &HubTransport{hub: h}
	h.mu.Lock()
	h.peers = append(h.peers, t)
	h.mu.Unlock()
	return t
}

type HubTransport struct {
	hub     *Hub
	mu      sync.RWMutex
	started bool
	onEntry func(board.Entry)
}

func (t *HubTransport) Start(_ context.Context) error {
	t.mu.Lock()
	t.started = true
	t.mu.Unlock()
	return nil
}

func (t *HubTransport) Stop(_ context.Context) error {
	t.mu.Lock()
	t.started = false
	t.mu.Unlock()
	return nil
}

func (t *HubTransport) OnEntry(fn func(board.Entry)) {
	t.mu.Lock()
	t.onEntry = fn
	t.mu.Unlock()
}

func (t *HubTransport) BroadcastEntry(ctx context.Context, e board.Entry) error {
	t.mu.RLock()
	ok := t.started
	t.mu.RUnlock()
	if !ok {
		return ErrNotStarted
	}
	tid, _ := trace.FromContext(ctx)
	w, err := wire.FromEntry(e, tid)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	metrics.Inc(MetricP2PMessagesTotal, map[string]string{"topic": wire.TopicEntries, "direction": "tx", "result": "ok"})
	metrics.Add(MetricP2PBytesTotal, map[string]string{"topic": wire.TopicEntries, "direction": "tx"}, float64(len(raw)))

	t.hub.mu.RLock()
	peers := append([]*HubTransport(nil), t.hub.peers...)
	t.hub.mu.RUnlock()
	for _, p := range peers {
		if p != t {
			p.deliver(raw)
		}
	}
	return nil
}

func (t *HubTransport) deliver(raw []byte) {
	t.mu.RLock()
	fn, ok := t.onEntry, t.started
	t.mu.RUnlock()
	if !ok {
		return
	}
	handleInbound(raw, fn)
}

// handleInbound decodes one gossip payload and hands it to fn.
func handleInbound(raw []byte, fn func(board.Entry)) {
	if len(raw) > wire.MaxEnvelope {
		metrics.Inc(MetricP2PMessagesTotal, map[string]string{"topic": wire.TopicEntries, "direction": "rx", "result": "oversize"})
		return
	}
	var w wire.Entry
	if err := json.Unmarshal(raw, &w); err != nil {
		metrics.Inc(MetricP2PMessagesTotal, map[string]string{"topic": wire.TopicEntries, "direction": "rx", "result": "decode_error"})
		return
	}
	e, err := w.ToEntry()
	if err != nil {
		metrics.Inc(MetricP2PMessagesTotal, map[string]string{"topic": wire.TopicEntries, "direction": "rx", "result": "decode_error"})
		return
	}
	metrics.Inc(MetricP2PMessagesTotal, map[string]string{"topic": wire.TopicEntries, "direction": "rx", "result": "ok"})
	metrics.Add(MetricP2PBytesTotal, map[string]string{"topic": wire.TopicEntries, "direction": "rx"}, float64(len(raw)))
	if fn != nil {
		fn(e)
	}
}

var _ Transport = (*HubTransport)(nil)
