package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zmlAEQ/zkbrownian/internal/attest"
	"github.com/zmlAEQ/zkbrownian/internal/board"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/internal/node"
	"github.com/zmlAEQ/zkbrownian/internal/p2p"
	"github.com/zmlAEQ/zkbrownian/internal/params"
	"github.com/zmlAEQ/zkbrownian/internal/protocol"
	"github.com/zmlAEQ/zkbrownian/internal/topology"
)

type simConfig struct {
	Nodes    int
	Packets  int
	Workers  int
	Params   params.Params
	Backend  attest.Backend
	FirstSID uint64
}

// Summary is printed as JSON at the end of a run.
type Summary struct {
	Nodes      int     `json:"nodes"`
	Packets    int     `json:"packets"`
	MaxHops    int     `json:"max_hops"`
	Hops       int     `json:"hops"`
	Verified   int     `json:"verified"`
	Rejected   int     `json:"rejected"`
	Entries    int     `json:"board_entries"`
	Visits     []int   `json:"receiver_visits"`
	ForwardMS  float64 `json:"forward_ms_avg"`
	VerifyMS   float64 `json:"verify_ms_avg"`
	ElapsedMS  float64 `json:"elapsed_ms"`
	Commitment string  `json:"topology"`
}

type network struct {
	engine *protocol.Engine
	sks    []keys.SecretKey
	pks    []keys.PublicKey
	tm     *topology.WeightMatrix
	wc     topology.WeightCommitment
	board  board.Board
}

func newNetwork(cfg simConfig) (*network, error) {
	e, err := protocol.New(cfg.Params, cfg.Backend)
	if err != nil {
		return nil, err
	}
	nw := &network{engine: e, tm: topology.Uniform(cfg.Nodes, cfg.Params.WeightSum), board: board.NewMemory()}
	if err := nw.tm.Validate(cfg.Params.WeightSum, cfg.Params.MaxOutDegree); err != nil {
		return nil, err
	}
	nw.wc = topology.Commit(nw.tm)
	for i := 0; i < cfg.Nodes; i++ {
		sk, pk, err := keys.KeyGen(nil)
		if err != nil {
			return nil, err
		}
		nw.sks = append(nw.sks, sk)
		nw.pks = append(nw.pks, pk)
	}
	return nw, nil
}

// owner scans the node keys for the one that can open ppk, as a receiver
// watching the board would.
func (nw *network) owner(ppk keys.DiversifiedPublicKey) int {
	for i, sk := range nw.sks {
		if keys.CheckOwnership(sk, ppk) {
			return i
		}
	}
	return -1
}

type packetResult struct {
	hops     int
	verified bool
	visits   []int
	forward  time.Duration
	verify   time.Duration
}

// runPacket spawns one packet at its origin node and relays it through the
// board until it reaches MaxHops, then verifies the whole path.
func (nw *network) runPacket(ctx context.Context, origin int, pid uint32, sid uint64) (packetResult, error) {
	var res packetResult
	p := nw.engine.Params()
	m, err := nw.engine.Spawn(nw.sks[origin], nw.pks[origin], pid, sid, nw.pks)
	if err != nil {
		return res, err
	}
	cur := origin
	for m.HopCount() < p.MaxHops {
		begin := time.Now()
		next, idx, _, err := nw.engine.Forward(nw.pks[cur], nw.sks[cur], m, nw.tm, nw.pks)
		res.forward += time.Since(begin)
		if err != nil {
			return res, fmt.Errorf("packet %d hop %d: %w", pid, m.HopCount(), err)
		}
		posted, err := nw.board.Post(ctx, board.Entry{Message: next, ReceiverIndex: idx, AddressedTo: next.LatestPPK()})
		if err != nil {
			return res, err
		}
		got, err := nw.board.For(ctx, posted.AddressedTo)
		if err != nil {
			return res, err
		}
		if len(got) != 1 {
			return res, fmt.Errorf("packet %d: %d entries for one diversified key", pid, len(got))
		}
		if o := nw.owner(got[0].AddressedTo); o != idx {
			return res, fmt.Errorf("packet %d: entry for %d opened by %d", pid, idx, o)
		}
		res.visits = append(res.visits, idx)
		m, cur = got[0].Message, idx
	}
	res.hops = m.HopCount()
	begin := time.Now()
	ok, err := nw.engine.Verify(m, p.MaxHops, nw.wc, nw.pks)
	res.verify = time.Since(begin)
	if err != nil {
		return res, err
	}
	res.verified = ok
	return res, nil
}

func simulate(ctx context.Context, cfg simConfig) (Summary, error) {
	begin := time.Now()
	nw, err := newNetwork(cfg)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Nodes:      cfg.Nodes,
		Packets:    cfg.Packets,
		MaxHops:    cfg.Params.MaxHops,
		Visits:     make([]int, cfg.Nodes),
		Commitment: nw.wc.Digest.String(),
	}
	var (
		mu              sync.Mutex
		forward, verify time.Duration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Packets; i++ {
		i := i
		g.Go(func() error {
			res, err := nw.runPacket(gctx, i%cfg.Nodes, uint32(i+1), cfg.FirstSID+uint64(i))
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			sum.Hops += res.hops
			if res.verified {
				sum.Verified++
			} else {
				sum.Rejected++
			}
			for _, v := range res.visits {
				sum.Visits[v]++
			}
			forward += res.forward
			verify += res.verify
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	all, err := nw.board.All(ctx)
	if err != nil {
		return Summary{}, err
	}
	sum.Entries = len(all)
	if sum.Hops > 0 {
		sum.ForwardMS = ms(forward) / float64(sum.Hops)
	}
	if cfg.Packets > 0 {
		sum.VerifyMS = ms(verify) / float64(cfg.Packets)
	}
	sum.ElapsedMS = ms(time.Since(begin))
	return sum, nil
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

// simulateRelays runs one node.Relay per key, each with its own board,
// joined through an in-process gossip hub. Packets are sent round robin
// and the run ends once every packet has been delivered.
func simulateRelays(ctx context.Context, cfg simConfig, poll time.Duration) (Summary, error) {
	begin := time.Now()
	nw, err := newNetwork(cfg)
	if err != nil {
		return Summary{}, err
	}
	hub := p2p.NewHub()
	netw := node.Network{Keys: nw.pks, Commitment: nw.wc}
	rcfg := node.Config{Workers: cfg.Workers, PollInterval: poll}
	relays := make([]*node.Relay, cfg.Nodes)
	boards := make([]board.Board, cfg.Nodes)
	for i := range relays {
		t := hub.Join()
		if err := t.Start(ctx); err != nil {
			return Summary{}, err
		}
		boards[i] = board.NewMemory()
		r, err := node.New(rcfg, nw.engine, node.Identity{SK: nw.sks[i], PK: nw.pks[i]}, netw, boards[i], node.WithTransport(t))
		if err != nil {
			return Summary{}, err
		}
		if err := r.Start(ctx); err != nil {
			return Summary{}, err
		}
		defer r.Stop(context.Background())
		relays[i] = r
	}

	for i := 0; i < cfg.Packets; i++ {
		if _, err := relays[i%cfg.Nodes].Send(ctx, uint32(i+1), cfg.FirstSID+uint64(i)); err != nil {
			return Summary{}, err
		}
	}

	tick := time.NewTicker(poll)
	defer tick.Stop()
	for {
		var st node.Stats
		for _, r := range relays {
			s := r.Stats()
			st.Delivered += s.Delivered
			st.Rejected += s.Rejected
			st.Errors += s.Errors
		}
		if st.Errors > 0 {
			return Summary{}, fmt.Errorf("relays reported %d errors", st.Errors)
		}
		if int(st.Delivered+st.Rejected) >= cfg.Packets {
			break
		}
		select {
		case <-ctx.Done():
			return Summary{}, ctx.Err()
		case <-tick.C:
		}
	}

	sum := Summary{
		Nodes:      cfg.Nodes,
		Packets:    cfg.Packets,
		MaxHops:    cfg.Params.MaxHops,
		Visits:     make([]int, cfg.Nodes),
		Commitment: nw.wc.Digest.String(),
	}
	for _, r := range relays {
		s := r.Stats()
		sum.Verified += int(s.Delivered)
		sum.Rejected += int(s.Rejected)
	}
	// every board holds the full replica; count from node 0's view
	all, err := boards[0].All(ctx)
	if err != nil {
		return Summary{}, err
	}
	sum.Entries = len(all)
	for _, e := range all {
		sum.Hops++
		sum.Visits[e.ReceiverIndex]++
	}
	sum.ElapsedMS = ms(time.Since(begin))
	return sum, nil
}
