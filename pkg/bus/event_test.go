package bus

import (
	"context"
	"strings"
	"testing"

	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
)

func TestPublish_DropsOnBackpressure(t *testing.T) {
	metrics.Reset()
	b := New(1)
	sub := b.Subscribe()
	b.Publish(context.Background(), Event{Kind: KindEntry})
	b.Publish(context.Background(), Event{Kind: KindEntry})
	ev := <-sub
	if ev.Kind != KindEntry {
		t.Fatalf("kind=%v", ev.Kind)
	}
	if dump := metrics.DumpProm(); !strings.Contains(dump, `bus_dropped_total{kind="entry"} 1`) {
		t.Fatalf("missing drop counter: %s", dump)
	}
}

func TestPublish_FansOut(t *testing.T) {
	b := New(4)
	s1, s2 := b.Subscribe(), b.Subscribe()
	b.Publish(context.Background(), Event{Kind: KindDelivered, Hop: 3})
	for i, s := range []Subscriber{s1, s2} {
		select {
		case ev := <-s:
			if ev.Hop != 3 {
				t.Fatalf("sub %d hop=%d", i, ev.Hop)
			}
		default:
			t.Fatalf("sub %d got nothing", i)
		}
	}
}
