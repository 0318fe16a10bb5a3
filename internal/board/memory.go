package board

import (
	"context"
	"sync"

	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
)

// Memory is an in-process board.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
	ids     map[string]struct{}
}

func NewMemory() *Memory { return &Memory{ids: map[string]struct{}{}} }

// Post appends e. Reposting an existing ID is a no-op that returns the
// stored entry, so gossip replays are idempotent.
func (m *Memory) Post(_ context.Context, e Entry) (Entry, error) {
	e, err := prepare(e)
	if err != nil {
		metrics.Inc("board_posts_total", map[string]string{"backend": "memory", "result": "invalid"})
		return Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.ids[e.ID]; dup {
		for _, old := range m.entries {
			if old.ID == e.ID {
				return old, nil
			}
		}
	}
	m.ids[e.ID] = struct{}{}
	m.entries = append(m.entries, e)
	metrics.Inc("board_posts_total", map[string]string{"backend": "memory", "result": "ok"})
	return e, nil
}

func (m *Memory) All(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	metrics.Inc("board_reads_total", map[string]string{"backend": "memory"})
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *Memory) For(ctx context.Context, ppk keys.DiversifiedPublicKey) ([]Entry, error) {
	all, err := m.All(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, ppk), nil
}

var _ Board = (*Memory)(nil)
