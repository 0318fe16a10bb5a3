package board

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/pkg/logger"
	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
)

// Journal is a board backed by an append-only file of JSON lines, one
// entry per line, fsynced on every post. A torn final write is cut back to
// the last complete line on open; other lines that fail to decode are
// skipped on read.
type Journal struct {
	mu   sync.Mutex
	path string
	ids  map[string]struct{}
}

// OpenJournal indexes the IDs already in path.
func OpenJournal(path string) (*Journal, error) {
	j := &Journal{path: path, ids: map[string]struct{}{}}
	if err := repairTail(path); err != nil {
		return nil, err
	}
	entries, err := j.scan()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		j.ids[e.ID] = struct{}{}
	}
	logger.InfoJ("board_journal", map[string]any{"op": "open", "result": "ok", "path": path, "entries": len(entries)})
	return j, nil
}

func (j *Journal) Post(_ context.Context, e Entry) (Entry, error) {
	e, err := prepare(e)
	if err != nil {
		metrics.Inc("board_posts_total", map[string]string{"backend": "journal", "result": "invalid"})
		return Entry{}, err
	}
	begin := time.Now()
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, dup := j.ids[e.ID]; dup {
		return e, nil
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return Entry{}, err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return Entry{}, err
	}
	b, err := json.Marshal(e)
	if err != nil {
		_ = f.Close()
		return Entry{}, err
	}
	if _, err = f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return Entry{}, err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return Entry{}, err
	}
	_ = f.Close()
	j.ids[e.ID] = struct{}{}
	metrics.Inc("board_posts_total", map[string]string{"backend": "journal", "result": "ok"})
	logger.InfoJ("board_journal", map[string]any{"op": "append", "result": "ok", "id": e.ID, "hops": e.Message.HopCount(), "latency_ms": time.Since(begin).Milliseconds()})
	return e, nil
}

// repairTail truncates path after its last newline so the next append
// starts on a fresh line.
func repairTail(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()
	buf := make([]byte, 4096)
	end := size
	for end > 0 {
		n := int64(len(buf))
		if end < n {
			n = end
		}
		if _, err := f.ReadAt(buf[:n], end-n); err != nil {
			return err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			end = end - n + int64(i) + 1
			break
		}
		end -= n
	}
	if end == size {
		return nil
	}
	if err := f.Truncate(end); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	metrics.Inc("board_journal_truncated_total", nil)
	logger.WarnJ("board_journal", map[string]any{"op": "repair", "result": "truncated", "path": path, "bytes": size - end})
	return nil
}

func (j *Journal) scan() ([]Entry, error) {
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []Entry
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 0, 64*1024), 64<<20)
	skipped := 0
	for s.Scan() {
		var e Entry
		if json.Unmarshal(s.Bytes(), &e) == nil && e.Message != nil {
			out = append(out, e)
			continue
		}
		skipped++
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		metrics.Add("board_journal_skipped_total", nil, float64(skipped))
		logger.WarnJ("board_journal", map[string]any{"op": "scan", "result": "skipped", "lines": skipped})
	}
	return out, nil
}

func (j *Journal) All(_ context.Context) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	metrics.Inc("board_reads_total", map[string]string{"backend": "journal"})
	return j.scan()
}

func (j *Journal) For(ctx context.Context, ppk keys.DiversifiedPublicKey) ([]Entry, error) {
	all, err := j.All(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, ppk), nil
}

var _ Board = (*Journal)(nil)
