package migration

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/evstore/internal/eventlog"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	"github.com/rzbill/evstore/pkg/events"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	next      uint64
	staged    []events.IndexedEvent
	committed []events.IndexedEvent
	retired   bool
}

func (f *fakeTarget) NextIndex() uint64 { return f.next }

func (f *fakeTarget) StartAt(_ context.Context, index uint64) error {
	f.next = index
	return nil
}

func (f *fakeTarget) StageMigrated(_ *pebble.Batch, _ int, ev *events.IndexedEvent) error {
	f.staged = append(f.staged, *ev)
	return nil
}

func (f *fakeTarget) CommitMigrated(last uint64) {
	f.committed = append(f.committed, f.staged...)
	f.staged = nil
	f.next = last + 1
}

func (f *fakeTarget) RollbackMigrated() { f.staged = nil }

func (f *fakeTarget) RetireLegacy() { f.retired = true }

func setup(t *testing.T, n int) (*pebblestore.DB, *eventlog.Log) {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	legacy, err := eventlog.OpenLog(db, "v1")
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		rec, err := EncodeLegacy(&events.IndexedEvent{Index: uint64(i), Name: "e"})
		require.NoError(t, err)
		_, err = legacy.Append(context.Background(), []eventlog.Record{rec})
		require.NoError(t, err)
	}
	return db, legacy
}

func TestTickCopiesInBatchesAndRetires(t *testing.T) {
	db, legacy := setup(t, 3)
	target := &fakeTarget{}
	job := New(db, legacy, target, Options{BatchSize: 2})
	ctx := context.Background()

	n, done, err := job.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.False(t, done)

	n, done, err = job.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, done)
	require.True(t, target.retired)
	require.Len(t, target.committed, 3)
	require.True(t, Retired(legacy))

	n, done, err = job.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.True(t, done)
}

func TestTickRejectsMismatchedTarget(t *testing.T) {
	db, legacy := setup(t, 2)
	job := New(db, legacy, &fakeTarget{next: 7}, Options{})
	_, _, err := job.Tick(context.Background())
	require.ErrorIs(t, err, ErrCursorMismatch)
	require.Zero(t, job.Cursor())
}

func TestDecodeLegacyCorrupt(t *testing.T) {
	ev := DecodeLegacy(eventlog.Item{Index: 4, Corrupt: true})
	require.Equal(t, events.IndexedEvent{Index: 4, Name: events.UnknownName}, ev)

	ev = DecodeLegacy(eventlog.Item{Index: 5, Header: []byte{0xc1}})
	require.Equal(t, events.UnknownName, ev.Name)
	require.Equal(t, uint64(5), ev.Index)
}
