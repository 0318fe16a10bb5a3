package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/zmlAEQ/zkbrownian/internal/attest/sigma"
	"github.com/zmlAEQ/zkbrownian/internal/params"
)

func TestSimulate_AllPacketsVerify(t *testing.T) {
	p := params.Default()
	p.NumNodes, p.MaxHops = 3, 3
	sum, err := simulate(context.Background(), simConfig{Nodes: 3, Packets: 3, Workers: 2, Params: p, Backend: sigma.New(nil), FirstSID: 100})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if sum.Verified != 3 || sum.Rejected != 0 {
		t.Fatalf("verified=%d rejected=%d", sum.Verified, sum.Rejected)
	}
	if sum.Hops != 9 || sum.Entries != 9 {
		t.Fatalf("hops=%d entries=%d", sum.Hops, sum.Entries)
	}
	visits := 0
	for _, v := range sum.Visits {
		visits += v
	}
	if visits != sum.Hops {
		t.Fatalf("visits=%d hops=%d", visits, sum.Hops)
	}
}

func TestPlotVisits_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "visits.png")
	if err := plotVisits([]int{3, 1, 5}, path); err != nil {
		t.Fatalf("plot: %v", err)
	}
}

func TestSimulateRelays_DeliversEveryPacket(t *testing.T) {
	p := params.Default()
	p.NumNodes, p.MaxHops = 3, 2
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sum, err := simulateRelays(ctx, simConfig{Nodes: 3, Packets: 2, Workers: 2, Params: p, Backend: sigma.New(nil), FirstSID: 7}, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("simulateRelays: %v", err)
	}
	if sum.Verified != 2 || sum.Rejected != 0 {
		t.Fatalf("verified=%d rejected=%d", sum.Verified, sum.Rejected)
	}
	if sum.Entries != 4 {
		t.Fatalf("entries=%d", sum.Entries)
	}
}
