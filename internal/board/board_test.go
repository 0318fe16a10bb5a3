package board

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zmlAEQ/zkbrownian/internal/keys"
	"github.com/zmlAEQ/zkbrownian/internal/protocol"
)

func entryFor(t *testing.T, sid uint64) (Entry, keys.DiversifiedPublicKey) {
	t.Helper()
	_, pk, err := keys.KeyGen(nil)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	ppk, _, err := keys.Diversify(pk, nil)
	if err != nil {
		t.Fatalf("diversify: %v", err)
	}
	m := &protocol.Message{PID: 1, SID: sid, PPK0: ppk, Pi0: []byte{1, 2}}
	return Entry{Message: m, ReceiverIndex: int(sid), AddressedTo: ppk}, ppk
}

// exercise runs the shared contract against one backend.
func exercise(t *testing.T, b Board) {
	t.Helper()
	ctx := context.Background()
	e1, ppk1 := entryFor(t, 1)
	e2, _ := entryFor(t, 2)
	e3 := e1
	e3.Message = &protocol.Message{PID: 1, SID: 3, PPK0: ppk1}

	s1, err := b.Post(ctx, e1)
	if err != nil {
		t.Fatalf("post1: %v", err)
	}
	if s1.ID == "" || s1.PostedAt.IsZero() {
		t.Fatalf("post did not assign id/time: %+v", s1)
	}
	if _, err := b.Post(ctx, e2); err != nil {
		t.Fatalf("post2: %v", err)
	}
	if _, err := b.Post(ctx, e3); err != nil {
		t.Fatalf("post3: %v", err)
	}
	// reposting the same ID does not duplicate
	if _, err := b.Post(ctx, s1); err != nil {
		t.Fatalf("repost: %v", err)
	}

	all, err := b.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("want 3 entries, got %d", len(all))
	}
	for i, sid := range []uint64{1, 2, 3} {
		if all[i].Message.SID != sid {
			t.Fatalf("order broken at %d: sid %d", i, all[i].Message.SID)
		}
	}
	mine, err := b.For(ctx, ppk1)
	if err != nil {
		t.Fatalf("for: %v", err)
	}
	if len(mine) != 2 || mine[0].Message.SID != 1 || mine[1].Message.SID != 3 {
		t.Fatalf("filter wrong: %d entries", len(mine))
	}
	// one matching component is not enough
	half := keys.DiversifiedPublicKey{PPK1: ppk1.PPK1, PPK2: e2.AddressedTo.PPK2}
	if got, _ := b.For(ctx, half); len(got) != 0 {
		t.Fatalf("partial key matched %d entries", len(got))
	}
	if _, err := b.Post(ctx, Entry{AddressedTo: ppk1}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("want ErrInvalidEntry, got %v", err)
	}
}

func TestMemory(t *testing.T) { exercise(t, NewMemory()) }

func TestJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board", "journal.log")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exercise(t, j)

	// a torn final line is skipped and the index survives reopen
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	_, _ = f.Write([]byte(`{"id":"torn","mess`))
	_ = f.Close()
	j2, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	all, err := j2.All(context.Background())
	if err != nil || len(all) != 3 {
		t.Fatalf("reopen all: n=%d err=%v", len(all), err)
	}
	if _, err := j2.Post(context.Background(), all[0]); err != nil {
		t.Fatalf("repost after reopen: %v", err)
	}
	if again, _ := j2.All(context.Background()); len(again) != 3 {
		t.Fatalf("repost after reopen duplicated: %d", len(again))
	}
}

func TestJournal_MissingFileIsEmpty(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "missing.log"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	all, err := j.All(context.Background())
	if err != nil || len(all) != 0 {
		t.Fatalf("want empty, got %d err=%v", len(all), err)
	}
}

func TestBolt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.db")
	b, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	exercise(t, b)
	if n, err := b.Len(); err != nil || n != 3 {
		t.Fatalf("len=%d err=%v", n, err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b2, err := OpenBolt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b2.Close()
	all, err := b2.All(context.Background())
	if err != nil || len(all) != 3 {
		t.Fatalf("reopen all: n=%d err=%v", len(all), err)
	}
}

func TestJournal_PostAfterTornTail(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.log")
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	e1, _ := entryFor(t, 1)
	if _, err := j.Post(ctx, e1); err != nil {
		t.Fatalf("post1: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	_, _ = f.Write([]byte(`{"id":"torn","mess`))
	_ = f.Close()

	j2, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	e2, ppk2 := entryFor(t, 2)
	if _, err := j2.Post(ctx, e2); err != nil {
		t.Fatalf("post2: %v", err)
	}
	all, err := j2.All(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("entries after torn tail: n=%d err=%v", len(all), err)
	}
	if got, _ := j2.For(ctx, ppk2); len(got) != 1 {
		t.Fatalf("second entry not readable: %d", len(got))
	}
	raw, err := os.ReadFile(path)
	if err != nil || raw[len(raw)-1] != '\n' {
		t.Fatalf("journal must end on a complete line")
	}
}

func TestJournal_OnlyTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	if err := os.WriteFile(path, []byte(`{"id":"to`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	j, err := OpenJournal(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if all, _ := j.All(context.Background()); len(all) != 0 {
		t.Fatalf("want empty, got %d", len(all))
	}
	if fi, _ := os.Stat(path); fi.Size() != 0 {
		t.Fatalf("torn line not truncated: size %d", fi.Size())
	}
}
