package eventstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rzbill/evstore/internal/aggregation"
	"github.com/rzbill/evstore/internal/eventlog"
	"github.com/rzbill/evstore/internal/migration"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	"github.com/rzbill/evstore/pkg/events"
	"github.com/rzbill/evstore/pkg/id"
	"github.com/stretchr/testify/require"
)

func seedLegacy(t *testing.T, db *pebblestore.DB, n int) {
	t.Helper()
	legacy, err := eventlog.OpenLog(db, LegacyStream)
	require.NoError(t, err)
	ts := uint64(time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC).UnixMilli())
	recs := make([]eventlog.Record, n)
	for i := range recs {
		user := fmt.Sprintf("user-%d", i%2)
		rec, err := migration.EncodeLegacy(&events.IndexedEvent{Index: uint64(i), Name: "legacy", Timestamp: ts, User: &user})
		require.NoError(t, err)
		recs[i] = rec
	}
	_, err = legacy.Append(context.Background(), recs)
	require.NoError(t, err)
}

func TestMigrationCopiesLegacyThenRetires(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	seedLegacy(t, db, 5)
	s := openStore(t, db, Options{})
	ctx := context.Background()

	// Live events keep the legacy sequence while migration runs.
	_, err := s.Push(ctx, []events.IdempotentEvent{event(100, "live")})
	require.NoError(t, err)
	require.Equal(t, uint64(5), *s.Stats().Latest)
	require.Equal(t, "live", s.Get(5, 1)[0].Name)

	job := migration.New(db, s.Legacy(), s, migration.Options{BatchSize: 4})
	n, done, err := job.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.False(t, done)
	require.False(t, s.LegacyRetired())

	n, done, err = job.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.True(t, done)
	require.True(t, s.LegacyRetired())

	got := s.Get(0, 10)
	require.Len(t, got, 6)
	for i, ev := range got[:5] {
		require.Equal(t, uint64(i), ev.Index)
		require.Equal(t, "legacy", ev.Name)
		require.Equal(t, fmt.Sprintf("user-%d", i%2), *ev.User)
	}
	require.Equal(t, "live", got[5].Name)

	n, done, err = job.Tick(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.True(t, done)

	_, err = s.Push(ctx, []events.IdempotentEvent{event(101, "after")})
	require.NoError(t, err)
	require.Equal(t, uint64(6), *s.Stats().Latest)

	day := aggregation.Day{Year: 2024, Month: 1, Day: 2}
	page := s.Aggregates(aggregation.Daily, day, 1)
	require.Len(t, page.Results, 2)
	require.Equal(t, uint32(3), page.Results[0].Transactions)
}

func TestMigrationResumesFromCursor(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	db := openDB(t, dir)
	seedLegacy(t, db, 3)
	s := openStore(t, db, Options{})
	_, _, err := migration.New(db, s.Legacy(), s, migration.Options{BatchSize: 2}).Tick(ctx)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db = openDB(t, dir)
	t.Cleanup(func() { _ = db.Close() })
	s = openStore(t, db, Options{})
	job := migration.New(db, s.Legacy(), s, migration.Options{BatchSize: 2})
	require.Equal(t, uint64(2), job.Cursor())
	n, done, err := job.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, done)
	require.Len(t, s.Get(0, 10), 3)
}

func TestMigrationSkipsTrimmedLegacyHead(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	seedLegacy(t, db, 4)
	legacy, err := eventlog.OpenLog(db, LegacyStream)
	require.NoError(t, err)
	_, err = legacy.TrimThrough(context.Background(), 1, 0)
	require.NoError(t, err)

	s := openStore(t, db, Options{})
	retire(t, s)
	got := s.Get(0, 10)
	require.Len(t, got, 2)
	require.Equal(t, uint64(2), got[0].Index)
	require.Equal(t, uint64(2), *s.Stats().Earliest)

	day := aggregation.Day{Year: 2024, Month: 1, Day: 2}
	page := s.Aggregates(aggregation.Daily, day, 1)
	require.Len(t, page.Results, 2)
	require.Equal(t, uint32(1), page.PageCount)

	ts := uint64(time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC).UnixMilli())
	live := events.Event{Name: "live", Timestamp: ts, User: events.PublicValue("bob")}.WithToken(id.TokenFromUint64(9, 9))
	_, err = s.Push(context.Background(), []events.IdempotentEvent{live})
	require.NoError(t, err)
	require.Equal(t, uint64(4), *s.Stats().Latest)

	page = s.Aggregates(aggregation.Daily, day, 1)
	require.Len(t, page.Results, 3)
	require.Equal(t, "bob", page.Results[0].User)
	require.Equal(t, uint32(1), page.Results[0].Transactions)
}

func TestWaitForAppendFollowsRetirement(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	seedLegacy(t, db, 2)
	s := openStore(t, db, Options{})

	woke := make(chan bool, 1)
	go func() { woke <- s.WaitForAppend(context.Background(), 2, 10*time.Second) }()
	time.Sleep(50 * time.Millisecond)

	retire(t, s)
	_, err := s.Push(context.Background(), []events.IdempotentEvent{event(7, "live")})
	require.NoError(t, err)
	require.Equal(t, uint64(2), *s.Stats().Latest)

	select {
	case ok := <-woke:
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter stayed on the retired legacy stream")
	}
}
