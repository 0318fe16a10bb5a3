//go:build p2p

package p2p

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	p2phost "github.com/libp2p/go-libp2p/core/host"
	peer "github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/zmlAEQ/zkbrownian/internal/board"
	"github.com/zmlAEQ/zkbrownian/internal/p2p/wire"
	"github.com/zmlAEQ/zkbrownian/pkg/logger"
	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
	"github.com/zmlAEQ/zkbrownian/pkg/trace"
)

var newGossipSub = pubsub.NewGossipSub

// BuildTransport constructs a libp2p+gossipsub transport.
func BuildTransport(cfg NetConfig) (Transport, error) {
	return &Libp2pTransport{cfg: cfg}, nil
}

// Libp2pTransport gossips entries over a single gossipsub topic.
type Libp2pTransport struct {
	cfg    NetConfig
	host   p2phost.Host
	ps     *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	cancel context.CancelFunc

	mu      sync.RWMutex
	onEntry func(board.Entry)
}

func (t *Libp2pTransport) Start(ctx context.Context) error {
	if !t.cfg.Enable {
		return nil
	}
	opts := []libp2p.Option{}
	var addrs []ma.Multiaddr
	for _, s := range t.cfg.Listen {
		if strings.TrimSpace(s) == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return err
		}
		addrs = append(addrs, a)
	}
	if len(addrs) > 0 {
		opts = append(opts, libp2p.ListenAddrs(addrs...))
	}
	if t.cfg.NAT {
		opts = append(opts, libp2p.NATPortMap())
	}
	h, err := libp2p.New(opts...)
	if err != nil {
		return err
	}
	t.host = h
	// the subscription loop outlives the Start context
	loopCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	fail := func(err error) error {
		_ = t.Stop(ctx)
		t.host, t.ps, t.topic, t.sub, t.cancel = nil, nil, nil, nil, nil
		logger.WarnJ("p2p_start", map[string]any{"result": "error", "err": err.Error()})
		return err
	}
	ps, err := newGossipSub(loopCtx, h, pubsub.WithMaxMessageSize(wire.MaxEnvelope))
	if err != nil {
		return fail(err)
	}
	t.ps = ps
	if t.topic, err = ps.Join(wire.TopicEntries); err != nil {
		return fail(err)
	}
	if t.sub, err = t.topic.Subscribe(); err != nil {
		return fail(err)
	}

	for _, b := range t.cfg.Bootnodes {
		if strings.TrimSpace(b) == "" {
			continue
		}
		if err := connectOnce(ctx, h, b); err != nil {
			logger.WarnJ("p2p_bootnode", map[string]any{"addr": b, "result": "error", "err": err.Error()})
		}
	}
	for _, a := range h.Addrs() {
		logger.InfoJ("p2p_addr", map[string]any{"self_id": h.ID().String(), "addr": a.String()})
	}

	go t.loop(loopCtx)
	logger.InfoJ("p2p_start", map[string]any{"result": "ok"})
	return nil
}

func (t *Libp2pTransport) Stop(_ context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.sub != nil {
		t.sub.Cancel()
	}
	if t.topic != nil {
		_ = t.topic.Close()
	}
	if t.host != nil {
		return t.host.Close()
	}
	return nil
}

func (t *Libp2pTransport) OnEntry(fn func(board.Entry)) {
	t.mu.Lock()
	t.onEntry = fn
	t.mu.Unlock()
}

func (t *Libp2pTransport) BroadcastEntry(ctx context.Context, e board.Entry) error {
	if t.topic == nil {
		return ErrNotStarted
	}
	tid, _ := trace.FromContext(ctx)
	w, err := wire.FromEntry(e, tid)
	if err != nil {
		return err
	}
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	if err := t.topic.Publish(ctx, b); err != nil {
		metrics.Inc(MetricP2PMessagesTotal, map[string]string{"topic": wire.TopicEntries, "direction": "tx", "result": "error"})
		return err
	}
	metrics.Inc(MetricP2PMessagesTotal, map[string]string{"topic": wire.TopicEntries, "direction": "tx", "result": "ok"})
	metrics.Add(MetricP2PBytesTotal, map[string]string{"topic": wire.TopicEntries, "direction": "tx"}, float64(len(b)))
	return nil
}

func (t *Libp2pTransport) loop(ctx context.Context) {
	self := t.host.ID()
	for {
		m, err := t.sub.Next(ctx)
		if err != nil {
			return
		}
		if m.ReceivedFrom == self {
			continue
		}
		t.mu.RLock()
		fn := t.onEntry
		t.mu.RUnlock()
		handleInbound(m.Data, fn)
	}
}

func connectOnce(ctx context.Context, h p2phost.Host, addr string) error {
	maAddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	info, err := peer.AddrInfoFromP2pAddr(maAddr)
	if err != nil {
		return err
	}
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.Connect(ctx2, *info)
}
