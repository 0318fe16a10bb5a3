// Package node runs the relay side of the protocol: it watches the board
// for entries this node can open, checks them and forwards them on.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zmlAEQ/zkbrownian/internal/board"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/internal/p2p"
	"github.com/zmlAEQ/zkbrownian/internal/protocol"
	"github.com/zmlAEQ/zkbrownian/internal/topology"
	"github.com/zmlAEQ/zkbrownian/pkg/bus"
	"github.com/zmlAEQ/zkbrownian/pkg/lifecycle"
	"github.com/zmlAEQ/zkbrownian/pkg/logger"
	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
	"github.com/zmlAEQ/zkbrownian/pkg/trace"
)

var (
	ErrDuplicatePacket = errors.New("node: packet already sent")
	ErrBusy            = errors.New("node: too many packets in flight")
	ErrNotMember       = errors.New("node: key not in key set")
)

// Result of processing one entry.
type Result string

const (
	ResultForwarded Result = "forwarded"
	ResultDelivered Result = "delivered"
	ResultRejected  Result = "rejected"
	ResultError     Result = "error"
	ResultSkipped   Result = "skipped"
)

type Config struct {
	Workers      int
	PollInterval time.Duration
	CacheSize    int
	MaxInflight  int64
}

func DefaultConfig() Config {
	return Config{Workers: 4, PollInterval: time.Second, CacheSize: 4096, MaxInflight: 64}
}

// Identity is this node's key pair.
type Identity struct {
	SK keys.SecretKey
	PK keys.PublicKey
}

// Network is the published key set and committed topology.
type Network struct {
	Keys       []keys.PublicKey
	Commitment topology.WeightCommitment
}

type Stats struct {
	Forwarded uint64 `json:"forwarded"`
	Delivered uint64 `json:"delivered"`
	Rejected  uint64 `json:"rejected"`
	Errors    uint64 `json:"errors"`
	Sent      uint64 `json:"sent"`
}

type Option func(*Relay)

// WithTransport gossips every post and feeds inbound gossip into the board.
func WithTransport(t p2p.Transport) Option { return func(r *Relay) { r.tr = t } }

// WithBus publishes deliveries and wakes the scanner on gossip.
func WithBus(b *bus.Bus) Option { return func(r *Relay) { r.bus = b } }

type Relay struct {
	cfg    Config
	engine *protocol.Engine
	id     Identity
	index  int
	net    Network
	tm     *topology.WeightMatrix
	board  board.Board
	tr     p2p.Transport
	bus    *bus.Bus

	seen    *lru.Cache[string, struct{}]
	spawned *lru.Cache[string, struct{}]
	limiter *p2p.InflightLimiter

	scanMu sync.Mutex
	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	forwarded, delivered, rejected, errs, sent atomic.Uint64
}

func New(cfg Config, e *protocol.Engine, id Identity, net Network, b board.Board, opts ...Option) (*Relay, error) {
	if e == nil || b == nil {
		return nil, errors.New("node: nil engine or board")
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	idx := keys.Index(net.Keys, id.PK)
	if idx < 0 {
		return nil, ErrNotMember
	}
	tm, err := net.Commitment.Open()
	if err != nil {
		return nil, err
	}
	p := e.Params()
	if err := tm.Validate(p.WeightSum, p.MaxOutDegree); err != nil {
		return nil, err
	}
	if tm.NumNodes() != len(net.Keys) {
		return nil, fmt.Errorf("%w: %d rows for %d keys", topology.ErrInvalidTopology, tm.NumNodes(), len(net.Keys))
	}
	seen, err := lru.New[string, struct{}](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	spawned, err := lru.New[string, struct{}](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	r := &Relay{
		cfg:     cfg,
		engine:  e,
		id:      id,
		index:   idx,
		net:     net,
		tm:      tm,
		board:   b,
		seen:    seen,
		spawned: spawned,
		limiter: p2p.NewInflightLimiter(cfg.MaxInflight),
		wake:    make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(r)
	}
	if r.tr != nil {
		r.tr.OnEntry(r.HandleGossip)
	}
	return r, nil
}

func (r *Relay) Name() string { return "relay" }

// Index is this node's position in the key set.
func (r *Relay) Index() int { return r.index }

func (r *Relay) PublicKey() keys.PublicKey { return r.id.PK }

func (r *Relay) Stats() Stats {
	return Stats{
		Forwarded: r.forwarded.Load(),
		Delivered: r.delivered.Load(),
		Rejected:  r.rejected.Load(),
		Errors:    r.errs.Load(),
		Sent:      r.sent.Load(),
	}
}

func (r *Relay) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	var events bus.Subscriber
	if r.bus != nil {
		events = r.bus.Subscribe()
	}
	go r.loop(ctx, events)
	logger.InfoJ("relay", map[string]any{"op": "start", "result": "ok", "index": r.index, "workers": r.cfg.Workers, "poll_ms": r.cfg.PollInterval.Milliseconds()})
	return nil
}

func (r *Relay) Stop(_ context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	<-r.done
	logger.InfoJ("relay", map[string]any{"op": "stop", "result": "ok", "index": r.index})
	return nil
}

// Wake schedules a scan without waiting for the next tick.
func (r *Relay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Relay) loop(ctx context.Context, events bus.Subscriber) {
	defer close(r.done)
	tick := time.NewTicker(r.cfg.PollInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		case <-r.wake:
		case ev := <-events:
			if ev.Kind != bus.KindEntry {
				continue
			}
		}
		if _, err := r.Scan(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WarnJ("relay", map[string]any{"op": "scan", "result": "error", "err": err.Error()})
		}
	}
}

// HandleGossip stores an entry received from a peer and wakes the scanner.
func (r *Relay) HandleGossip(e board.Entry) {
	ctx, tid := trace.Ensure(context.Background())
	if _, err := r.board.Post(ctx, e); err != nil {
		logger.WarnJ("relay", map[string]any{"op": "gossip_store", "result": "error", "id": e.ID, "err": err.Error(), "trace_id": tid})
		return
	}
	if r.bus != nil {
		r.bus.Publish(ctx, bus.Event{Kind: bus.KindEntry, Hop: uint64(e.Message.HopCount()), Body: e, TraceID: tid})
	} else {
		r.Wake()
	}
}

// Scan processes every unseen entry this node owns and returns how many
// were handled. Scans never overlap.
func (r *Relay) Scan(ctx context.Context) (int, error) {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()
	all, err := r.board.All(ctx)
	if err != nil {
		return 0, err
	}
	var owned []board.Entry
	for _, e := range all {
		if r.seen.Contains(e.ID) {
			continue
		}
		if !keys.CheckOwnership(r.id.SK, e.AddressedTo) {
			r.seen.Add(e.ID, struct{}{})
			continue
		}
		owned = append(owned, e)
	}

	var handled atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, e := range owned {
		e := e
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			res, _, err := r.Process(gctx, e)
			if res == ResultSkipped {
				return nil // left unseen for the next scan
			}
			if err != nil {
				logger.WarnJ("relay", map[string]any{"op": "process", "result": string(res), "id": e.ID, "err": err.Error()})
			}
			r.seen.Add(e.ID, struct{}{})
			handled.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(handled.Load()), err
}

// Process verifies one owned entry and either delivers it or forwards
// it. The returned entry is the new post when the result is forwarded.
func (r *Relay) Process(ctx context.Context, e board.Entry) (Result, board.Entry, error) {
	if !r.limiter.TryAcquire() {
		return ResultSkipped, board.Entry{}, ErrBusy
	}
	defer r.limiter.Release()
	ctx, tid := trace.Ensure(ctx)
	m := e.Message
	if m == nil {
		return r.count(ResultRejected), board.Entry{}, nil
	}
	// Ownership was checked against AddressedTo; the proofs cover LatestPPK.
	if !e.AddressedTo.Equal(m.LatestPPK()) {
		logger.WarnJ("relay", map[string]any{"op": "verify", "result": "rejected", "id": e.ID, "reason": "address mismatch", "trace_id": tid})
		return r.count(ResultRejected), board.Entry{}, nil
	}

	begin := time.Now()
	ok, err := r.engine.Verify(m, m.HopCount(), r.net.Commitment, r.net.Keys)
	metrics.ObserveSummary("relay_verify_ms", nil, float64(time.Since(begin).Microseconds())/1000)
	if err != nil {
		r.count(ResultError)
		return ResultError, board.Entry{}, err
	}
	if !ok {
		logger.WarnJ("relay", map[string]any{"op": "verify", "result": "rejected", "id": e.ID, "hops": m.HopCount(), "trace_id": tid})
		return r.count(ResultRejected), board.Entry{}, nil
	}

	if m.HopCount() >= r.engine.Params().MaxHops {
		logger.InfoJ("relay", map[string]any{"op": "deliver", "result": "ok", "id": e.ID, "pid": m.PID, "sid": m.SID, "hops": m.HopCount(), "trace_id": tid})
		if r.bus != nil {
			r.bus.Publish(ctx, bus.Event{Kind: bus.KindDelivered, Hop: uint64(m.HopCount()), Body: e, TraceID: tid})
		}
		return r.count(ResultDelivered), board.Entry{}, nil
	}

	out, err := r.forward(ctx, m)
	if err != nil {
		r.count(ResultError)
		return ResultError, board.Entry{}, err
	}
	logger.InfoJ("relay", map[string]any{"op": "forward", "result": "ok", "id": e.ID, "next_id": out.ID, "hops": out.Message.HopCount(), "trace_id": tid})
	return r.count(ResultForwarded), out, nil
}

// forward extends m by one hop from this node, posts it and gossips it.
func (r *Relay) forward(ctx context.Context, m *protocol.Message) (board.Entry, error) {
	begin := time.Now()
	next, idx, _, err := r.engine.Forward(r.id.PK, r.id.SK, m, r.tm, r.net.Keys)
	metrics.ObserveSummary("relay_forward_ms", nil, float64(time.Since(begin).Microseconds())/1000)
	if err != nil {
		return board.Entry{}, err
	}
	stored, err := r.board.Post(ctx, board.Entry{Message: next, ReceiverIndex: idx, AddressedTo: next.LatestPPK()})
	if err != nil {
		return board.Entry{}, err
	}
	if r.tr != nil {
		if err := r.tr.BroadcastEntry(ctx, stored); err != nil {
			logger.WarnJ("relay", map[string]any{"op": "gossip", "result": "error", "id": stored.ID, "err": err.Error()})
		}
	}
	return stored, nil
}

// Send spawns a packet from this node, forwards its first hop and posts
// it. A second Send for the same (pid, sid) is refused: the spawn key is
// deterministic, so ppk0 fingerprints the packet.
func (r *Relay) Send(ctx context.Context, pid uint32, sid uint64) (board.Entry, error) {
	if !r.limiter.TryAcquire() {
		return board.Entry{}, ErrBusy
	}
	defer r.limiter.Release()
	m, err := r.engine.Spawn(r.id.SK, r.id.PK, pid, sid, r.net.Keys)
	if err != nil {
		return board.Entry{}, err
	}
	fp := m.PPK0.String()
	if ok, _ := r.spawned.ContainsOrAdd(fp, struct{}{}); ok {
		return board.Entry{}, fmt.Errorf("%w: pid=%d sid=%d", ErrDuplicatePacket, pid, sid)
	}
	out, err := r.forward(ctx, m)
	if err != nil {
		r.spawned.Remove(fp)
		return board.Entry{}, err
	}
	r.sent.Add(1)
	metrics.Inc("relay_sent_total", nil)
	logger.InfoJ("relay", map[string]any{"op": "send", "result": "ok", "pid": pid, "sid": sid, "id": out.ID})
	return out, nil
}

func (r *Relay) count(res Result) Result {
	switch res {
	case ResultForwarded:
		r.forwarded.Add(1)
	case ResultDelivered:
		r.delivered.Add(1)
	case ResultRejected:
		r.rejected.Add(1)
	case ResultError:
		r.errs.Add(1)
	}
	metrics.Inc("relay_entries_total", map[string]string{"result": string(res)})
	return res
}

var _ lifecycle.Service = (*Relay)(nil)
