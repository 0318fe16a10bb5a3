package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zmlAEQ/zkbrownian/internal/attest"
	_ "github.com/zmlAEQ/zkbrownian/internal/attest/sigma"
	"github.com/zmlAEQ/zkbrownian/internal/board"
	"github.com/zmlAEQ/zkbrownian/internal/config"
	"github.com/zmlAEQ/zkbrownian/internal/keystore"
	"github.com/zmlAEQ/zkbrownian/internal/monitoring"
	"github.com/zmlAEQ/zkbrownian/internal/node"
	"github.com/zmlAEQ/zkbrownian/internal/p2p"
	"github.com/zmlAEQ/zkbrownian/internal/protocol"
	"github.com/zmlAEQ/zkbrownian/internal/topology"
	"github.com/zmlAEQ/zkbrownian/pkg/bus"
	"github.com/zmlAEQ/zkbrownian/pkg/lifecycle"
	"github.com/zmlAEQ/zkbrownian/pkg/logger"
)

func main() {
	var (
		cfgPath   string
		backend   string
		logLevel  string
		apiAddr   string
		monAddr   string
		p2pEnable bool
		p2pListen string
		p2pBoot   string
		p2pNAT    bool
	)
	flag.StringVar(&cfgPath, "config", "node.toml", "Path to the node TOML config")
	flag.StringVar(&backend, "proof-backend", "sigma", "Attestation backend ("+strings.Join(attest.Names(), ",")+")")
	flag.StringVar(&logLevel, "log.level", "", "Override [Log] Level")
	flag.StringVar(&apiAddr, "api", "", "Override [Node] API listen address")
	flag.StringVar(&monAddr, "monitoring", "", "Override [Monitoring] Listen address")
	flag.BoolVar(&p2pEnable, "p2p.enable", false, "Enable P2P gossip (libp2p+gossipsub, behind 'p2p' build tag)")
	flag.StringVar(&p2pListen, "p2p.listen", "", "P2P listen multiaddr (e.g. /ip4/0.0.0.0/tcp/31000)")
	flag.StringVar(&p2pBoot, "p2p.bootnodes", "", "Comma-separated bootnode multiaddrs or path to file")
	flag.BoolVar(&p2pNAT, "p2p.nat", false, "Enable NAT port mapping")
	flag.Parse()

	cfg, err := config.LoadFile(cfgPath)
	if err != nil {
		fail(err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if apiAddr != "" {
		cfg.Node.API = apiAddr
	}
	if monAddr != "" {
		cfg.Monitoring.Listen = monAddr
	}
	if p2pEnable {
		cfg.P2P.Enable, cfg.P2P.NAT = true, cfg.P2P.NAT || p2pNAT
		if p2pListen != "" {
			cfg.P2P.Listen = []string{p2pListen}
		}
		cfg.P2P.Bootnodes = append(cfg.P2P.Bootnodes, bootnodes(p2pBoot)...)
	}
	if err := logger.Configure(cfg.Log.Format, cfg.Log.Level); err != nil {
		fail(err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, backend); err != nil {
		logger.ErrorJ("node", map[string]any{"op": "run", "result": "error", "err": err.Error()})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, backendName string) error {
	ks, err := keystore.FromEnv(cfg.Node.KeyStore)
	if err != nil {
		return err
	}
	rec, err := ks.Load(ctx)
	if err != nil {
		return err
	}
	sk, pk, err := rec.Keys()
	if err != nil {
		return err
	}
	set, err := config.LoadKeySet(cfg.Node.PublicKeys)
	if err != nil {
		return err
	}
	if cfg.Node.Index >= len(set) || !set[cfg.Node.Index].Equal(pk) {
		return fmt.Errorf("keystore key is not entry %d of %s", cfg.Node.Index, cfg.Node.PublicKeys)
	}
	tm, err := topology.LoadFile(cfg.Node.Topology)
	if err != nil {
		return err
	}
	commitment := topology.Commit(tm)

	backend, err := attest.Lookup(backendName)
	if err != nil {
		return err
	}
	engine, err := protocol.New(cfg.Params, backend)
	if err != nil {
		return err
	}

	b, closeBoard, err := openBoard(cfg.Board)
	if err != nil {
		return err
	}
	defer closeBoard()

	poll, _ := cfg.Poll()
	rcfg := node.Config{Workers: cfg.Relay.Workers, PollInterval: poll, CacheSize: cfg.Relay.CacheSize, MaxInflight: cfg.Relay.MaxInflight}
	events := bus.New(256)
	opts := []node.Option{node.WithBus(events)}

	m := lifecycle.New()
	mon := monitoring.New(cfg.Monitoring.Listen)
	m.Add(mon)
	if cfg.P2P.Enable {
		t, err := p2p.BuildTransport(cfg.P2P)
		if err != nil {
			return err
		}
		m.Add(p2p.NewNetService(t))
		opts = append(opts, node.WithTransport(t))
	}
	relay, err := node.New(rcfg, engine, node.Identity{SK: sk, PK: pk}, node.Network{Keys: set, Commitment: commitment}, b, opts...)
	if err != nil {
		return err
	}
	m.Add(relay)

	var bs *board.Server
	if cfg.Board.Serve {
		bs = board.NewServer(cfg.Node.API, b)
		bs.OnPost(func(board.Entry) { relay.Wake() })
	}
	m.Add(node.NewAPI(cfg.Node.API, relay, bs))

	mon.AddCheck("board", func(ctx context.Context) error {
		_, err := b.All(ctx)
		return err
	})

	logger.InfoJ("node", map[string]any{
		"op": "boot", "result": "ok", "index": cfg.Node.Index, "nodes": len(set),
		"max_hops": cfg.Params.MaxHops, "board": cfg.Board.Backend, "topology": commitment.Digest.String(),
	})
	if err := m.StartAll(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return m.StopAll(context.Background())
}

func openBoard(c config.Board) (board.Board, func(), error) {
	nop := func() {}
	switch c.Backend {
	case config.BackendJournal:
		j, err := board.OpenJournal(c.Path)
		return j, nop, err
	case config.BackendBolt:
		bb, err := board.OpenBolt(c.Path)
		if err != nil {
			return nil, nop, err
		}
		return bb, func() { _ = bb.Close() }, nil
	case config.BackendHTTP:
		return board.NewHTTP(c.URL, nil), nop, nil
	default:
		return board.NewMemory(), nop, nil
	}
}

// bootnodes parses a comma list or a file with one multiaddr per line.
func bootnodes(v string) []string {
	if v == "" {
		return nil
	}
	sep := ","
	if fi, err := os.Stat(v); err == nil && !fi.IsDir() {
		if raw, err := os.ReadFile(v); err == nil {
			v, sep = string(raw), "\n"
		}
	}
	var out []string
	for _, p := range strings.Split(v, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
