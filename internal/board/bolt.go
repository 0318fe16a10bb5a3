package board

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/pkg/logger"
	"github.com/zmlAEQ/zkbrownian/pkg/metrics"
)

const (
	entriesBucket = "entries"
	idsBucket     = "ids"
)

// BoltBoard stores entries in a bbolt file. Keys in the entries bucket are
// big-endian sequence numbers, so a cursor walk returns post order.
type BoltBoard struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltBoard, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{entriesBucket, idsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.InfoJ("board_bolt", map[string]any{"op": "open", "result": "ok", "path": path})
	return &BoltBoard{db: db}, nil
}

func (b *BoltBoard) Close() error {
	if err := b.db.Sync(); err != nil {
		_ = b.db.Close()
		return err
	}
	return b.db.Close()
}

func (b *BoltBoard) Post(_ context.Context, e Entry) (Entry, error) {
	e, err := prepare(e)
	if err != nil {
		metrics.Inc("board_posts_total", map[string]string{"backend": "bolt", "result": "invalid"})
		return Entry{}, err
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return Entry{}, err
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket([]byte(idsBucket))
		if ids.Get([]byte(e.ID)) != nil {
			return nil
		}
		bkt := tx.Bucket([]byte(entriesBucket))
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		if err := bkt.Put(key[:], raw); err != nil {
			return err
		}
		return ids.Put([]byte(e.ID), key[:])
	})
	if err != nil {
		metrics.Inc("board_posts_total", map[string]string{"backend": "bolt", "result": "error"})
		return Entry{}, fmt.Errorf("board: bolt post: %w", err)
	}
	metrics.Inc("board_posts_total", map[string]string{"backend": "bolt", "result": "ok"})
	return e, nil
}

func (b *BoltBoard) All(_ context.Context) ([]Entry, error) {
	var out []Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(entriesBucket)).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("board: bolt read: %w", err)
	}
	metrics.Inc("board_reads_total", map[string]string{"backend": "bolt"})
	return out, nil
}

func (b *BoltBoard) For(ctx context.Context, ppk keys.DiversifiedPublicKey) ([]Entry, error) {
	all, err := b.All(ctx)
	if err != nil {
		return nil, err
	}
	return filter(all, ppk), nil
}

// Len returns the number of stored entries.
func (b *BoltBoard) Len() (int, error) {
	n := 0
	err := b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(entriesBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

var _ Board = (*BoltBoard)(nil)
