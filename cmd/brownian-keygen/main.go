package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zmlAEQ/zkbrownian/internal/config"
	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/internal/keystore"
	"github.com/zmlAEQ/zkbrownian/internal/params"
	"github.com/zmlAEQ/zkbrownian/internal/topology"
)

func main() {
	var (
		n       int
		maxHops int
		out     string
		backend string
		apiBase int
		monBase int
	)
	flag.IntVar(&n, "n", 4, "Number of nodes")
	flag.IntVar(&maxHops, "max-hops", params.DefaultMaxHops, "Hop ceiling per packet")
	flag.StringVar(&out, "out", "brownian-net", "Output directory")
	flag.StringVar(&backend, "board", config.BackendJournal, "Board backend written to node configs (memory|journal|bolt)")
	flag.IntVar(&apiBase, "api-port", 4700, "Node API port of node 0; node i uses port+i")
	flag.IntVar(&monBase, "monitoring-port", 4800, "Monitoring port of node 0; node i uses port+i")
	flag.Parse()

	if n < 2 || maxHops <= 0 {
		fmt.Fprintln(os.Stderr, "invalid -n/-max-hops")
		os.Exit(2)
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		fail(err)
	}

	p := params.Default()
	p.NumNodes = n
	p.MaxHops = maxHops
	if n-1 > p.MaxOutDegree {
		p.MaxOutDegree = n - 1
	}

	set := make([]keys.PublicKey, n)
	for i := 0; i < n; i++ {
		seed := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, seed); err != nil {
			fail(err)
		}
		_, pk, err := keys.FromSeed(seed)
		if err != nil {
			fail(err)
		}
		set[i] = pk
		ks, err := keystore.FromEnv(filepath.Join(out, keyFile(i)))
		if err != nil {
			fail(err)
		}
		if err := ks.Save(context.Background(), keystore.Record{Index: i, Seed: seed, PublicKey: pk}); err != nil {
			fail(err)
		}
	}
	if err := config.WriteKeySet(filepath.Join(out, "public_keys.json"), set); err != nil {
		fail(err)
	}
	tm := topology.Uniform(n, p.WeightSum)
	if err := tm.WriteFile(filepath.Join(out, "topology.json")); err != nil {
		fail(err)
	}

	for i := 0; i < n; i++ {
		cfg := config.Default()
		cfg.Params = p
		cfg.Node = config.Node{
			Index:      i,
			KeyStore:   keyFile(i),
			PublicKeys: "public_keys.json",
			Topology:   "topology.json",
			API:        fmt.Sprintf("127.0.0.1:%d", apiBase+i),
		}
		cfg.Monitoring.Listen = fmt.Sprintf("127.0.0.1:%d", monBase+i)
		switch {
		case i == 0 && backend != config.BackendMemory:
			cfg.Board = config.Board{Backend: backend, Path: "board." + backend, Serve: true}
		case backend != config.BackendMemory:
			cfg.Board = config.Board{Backend: config.BackendHTTP, URL: fmt.Sprintf("http://127.0.0.1:%d", apiBase)}
		}
		if err := config.WriteFile(filepath.Join(out, fmt.Sprintf("node-%d.toml", i)), cfg); err != nil {
			fail(err)
		}
	}
	fmt.Printf("wrote %d nodes to %s (topology %s)\n", n, out, topology.Commit(tm).Digest)
}

func keyFile(i int) string { return fmt.Sprintf("node-%d.key", i) }

func fail(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
