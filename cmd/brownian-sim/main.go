package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/zmlAEQ/zkbrownian/internal/attest"
	_ "github.com/zmlAEQ/zkbrownian/internal/attest/sigma"
	"github.com/zmlAEQ/zkbrownian/internal/params"
	"github.com/zmlAEQ/zkbrownian/pkg/logger"
)

func main() {
	var (
		nodes    int
		packets  int
		workers  int
		maxHops  int
		sid      uint64
		backend  string
		plotPath string
		relays   bool
		poll     time.Duration
	)
	flag.IntVar(&nodes, "n", 3, "Number of nodes")
	flag.IntVar(&packets, "packets", 4, "Packets to spawn, round robin over nodes")
	flag.IntVar(&workers, "workers", 4, "Packets relayed concurrently")
	flag.IntVar(&maxHops, "max-hops", 4, "Hop ceiling per packet")
	flag.Uint64Var(&sid, "sid", 100, "Session id of the first packet")
	flag.StringVar(&backend, "proof-backend", "sigma", "Attestation backend")
	flag.StringVar(&plotPath, "plot", "", "Write a receiver visit histogram (png/svg/pdf) to this path")
	flag.BoolVar(&relays, "relay", false, "Run full relay nodes gossiping over an in-process hub instead of driving the engine directly")
	flag.DurationVar(&poll, "poll", 50*time.Millisecond, "Relay board poll interval (with -relay)")
	flag.Parse()

	if nodes < 2 || packets < 0 || workers <= 0 || maxHops <= 0 {
		fmt.Fprintln(os.Stderr, "invalid -n/-packets/-workers/-max-hops")
		os.Exit(2)
	}
	b, err := attest.Lookup(backend)
	if err != nil {
		fail(err)
	}
	p := params.Default()
	p.NumNodes, p.MaxHops = nodes, maxHops
	if nodes-1 > p.MaxOutDegree {
		p.MaxOutDegree = nodes - 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	cfg := simConfig{Nodes: nodes, Packets: packets, Workers: workers, Params: p, Backend: b, FirstSID: sid}
	var sum Summary
	if relays {
		sum, err = simulateRelays(ctx, cfg, poll)
	} else {
		sum, err = simulate(ctx, cfg)
	}
	if err != nil {
		fail(err)
	}
	logger.InfoJ("sim", map[string]any{"op": "run", "result": "ok", "relay": relays, "packets": sum.Packets, "verified": sum.Verified, "latency_ms": sum.ElapsedMS})

	if plotPath != "" {
		if err := plotVisits(sum.Visits, plotPath); err != nil {
			fail(err)
		}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		fail(err)
	}
	if sum.Rejected > 0 {
		os.Exit(1)
	}
}

// plotVisits renders how often each node was chosen as a receiver.
func plotVisits(visits []int, path string) error {
	values := make(plotter.Values, len(visits))
	for i, n := range visits {
		values[i] = float64(n)
	}
	p := plot.New()
	p.Title.Text = "Receiver visits"
	p.X.Label.Text = "node"
	p.Y.Label.Text = "hops"
	bars, err := plotter.NewBarChart(values, vg.Points(20))
	if err != nil {
		return err
	}
	p.Add(bars)
	names := make([]string, len(visits))
	for i := range names {
		names[i] = fmt.Sprint(i)
	}
	p.NominalX(names...)
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
