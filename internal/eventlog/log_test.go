package eventlog

import (
	"context"
	"errors"
	"testing"

	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
)

func openTestDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	return db
}

func newTestLog(t *testing.T) *Log {
	t.Helper()
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	l, err := OpenLog(db, "v2")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	return l
}

func seedLog(t *testing.T, n int) *Log {
	t.Helper()
	l := newTestLog(t)
	recs := make([]Record, n)
	for i := range recs {
		recs[i] = Record{Header: []byte{'h'}, Payload: []byte{byte(i)}}
	}
	if _, err := l.Append(context.Background(), recs); err != nil {
		t.Fatalf("append: %v", err)
	}
	return l
}

func TestAppendAssignsGaplessIndicesFromZero(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	first, err := l.Append(ctx, []Record{{Payload: []byte("a")}, {Payload: []byte("b")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := l.Append(ctx, []Record{{Payload: []byte("c")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	got := append(first, second...)
	for i, idx := range got {
		if idx != uint64(i) {
			t.Fatalf("index %d = %d, want %d", i, idx, i)
		}
	}
	st := l.Stats()
	if st.Latest == nil || *st.Latest != 2 || st.Earliest == nil || *st.Earliest != 0 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestEmptyLogStats(t *testing.T) {
	l := newTestLog(t)
	st := l.Stats()
	if st.Latest != nil || st.Earliest != nil || st.Next != 0 {
		t.Fatalf("expected empty stats, got %+v", st)
	}
	if items := l.Get(0, 10); len(items) != 0 {
		t.Fatalf("expected no items")
	}
}

func TestAppendDurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)
	l, err := OpenLog(db, "v2")
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	ctx := context.Background()
	if _, err := l.Append(ctx, []Record{{Payload: []byte("x")}, {Payload: []byte("y")}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.TrimThrough(ctx, 0, 0); err != nil {
		t.Fatalf("trim: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2 := openTestDB(t, dir)
	t.Cleanup(func() { _ = db2.Close() })
	l2, err := OpenLog(db2, "v2")
	if err != nil {
		t.Fatalf("reopen log: %v", err)
	}
	idx, err := l2.Append(ctx, []Record{{Payload: []byte("z")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if idx[0] != 2 {
		t.Fatalf("expected index 2 after reopen, got %d", idx[0])
	}
	if st := l2.Stats(); *st.Earliest != 1 {
		t.Fatalf("earliest not restored: %+v", st)
	}
}

func TestStreamsAreIsolated(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	a, _ := OpenLog(db, "a")
	b, _ := OpenLog(db, "b")
	ctx := context.Background()
	if _, err := a.Append(ctx, []Record{{Payload: []byte("1")}, {Payload: []byte("2")}}); err != nil {
		t.Fatalf("append a: %v", err)
	}
	idx, err := b.Append(ctx, []Record{{Payload: []byte("x")}})
	if err != nil {
		t.Fatalf("append b: %v", err)
	}
	if idx[0] != 0 {
		t.Fatalf("stream b should start at 0")
	}
	if got := b.Get(0, 10); len(got) != 1 {
		t.Fatalf("stream b leaked entries: %d", len(got))
	}
}

func TestStageWithoutCommitLeavesLogUnchanged(t *testing.T) {
	l := newTestLog(t)
	b := l.db.NewBatch()
	idx, err := l.Stage(b, 0, Record{Payload: []byte("p")})
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	b.Close()
	if idx != 0 || l.Next() != 0 {
		t.Fatalf("staging must not advance the log")
	}
}

func TestStartAtOffsetsEmptyLog(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	if err := l.StartAt(ctx, 40); err != nil {
		t.Fatalf("start at: %v", err)
	}
	idx, err := l.Append(ctx, []Record{{Payload: []byte("x")}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if idx[0] != 40 {
		t.Fatalf("first index = %d, want 40", idx[0])
	}
	if st := l.Stats(); st.Earliest == nil || *st.Earliest != 40 {
		t.Fatalf("earliest = %v, want 40", st.Earliest)
	}
	if err := l.StartAt(ctx, 41); !errors.Is(err, ErrNotEmpty) {
		t.Fatalf("start at on non-empty log: %v", err)
	}
}
