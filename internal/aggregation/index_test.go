package aggregation

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	"github.com/rzbill/evstore/pkg/events"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	require.NoError(t, err)
	return db
}

func ms(y int, m time.Month, d, h int) uint64 {
	return uint64(time.Date(y, m, d, h, 30, 0, 0, time.UTC).UnixMilli())
}

func ev(index uint64, ts uint64, user string) *events.IndexedEvent {
	e := &events.IndexedEvent{Index: index, Name: "swap", Timestamp: ts}
	if user != "" {
		e.User = &user
	}
	return e
}

func TestPushCountsDailyAndHourly(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	ix, err := Open(db, Options{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ix.Push(ctx, ev(0, ms(2024, 3, 1, 9), "bob")))
	require.NoError(t, ix.Push(ctx, ev(1, ms(2024, 3, 1, 9), "alice")))
	require.NoError(t, ix.Push(ctx, ev(2, ms(2024, 3, 1, 10), "alice")))
	require.NoError(t, ix.Push(ctx, ev(3, ms(2024, 3, 2, 0), "alice")))

	day := Day{Year: 2024, Month: 3, Day: 1}
	daily := ix.Query(Daily, day, 1)
	require.Equal(t, uint32(1), daily.PageCount)
	require.Len(t, daily.Results, 2)
	require.Equal(t, "alice", daily.Results[0].User)
	require.Equal(t, uint32(2), daily.Results[0].Transactions)
	require.Nil(t, daily.Results[0].DateTime)
	require.Equal(t, "bob", daily.Results[1].User)

	hourly := ix.Query(Hourly, day, 1)
	require.Len(t, hourly.Results, 3)
	require.Equal(t, "2024-03-01 09:00:00", *hourly.Results[0].DateTime)
	require.Equal(t, "alice", hourly.Results[0].User)
	require.Equal(t, "2024-03-01 10:00:00", *hourly.Results[2].DateTime)
}

func TestPushIgnoresOutOfOrderAndAdvancesWithoutUser(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	ix, err := Open(db, Options{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ix.Push(ctx, ev(5, ms(2024, 3, 1, 9), "bob")))
	require.Equal(t, uint64(0), ix.NextEventIndex())

	require.NoError(t, ix.Push(ctx, ev(0, ms(2024, 3, 1, 9), "")))
	require.Equal(t, uint64(1), ix.NextEventIndex())
	require.NoError(t, ix.Push(ctx, ev(0, ms(2024, 3, 1, 9), "bob")))
	require.Equal(t, uint32(0), ix.Query(Daily, Day{2024, 3, 1}, 0).PageCount)
}

func TestHourlyEvictionKeepsMostRecent(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	ix, err := Open(db, Options{HourlyCap: 3})
	require.NoError(t, err)
	ctx := context.Background()

	for h := 0; h < 5; h++ {
		require.NoError(t, ix.Push(ctx, ev(uint64(h), ms(2024, 3, 1, h), "u")))
	}
	require.Equal(t, 3, ix.HourlyBuckets())
	rows := ix.Query(Hourly, Day{2024, 3, 1}, 1).Results
	require.Len(t, rows, 3)
	require.Equal(t, "2024-03-01 02:00:00", *rows[0].DateTime)
	require.Equal(t, "2024-03-01 04:00:00", *rows[2].DateTime)

	// Daily is never evicted.
	require.Equal(t, uint32(5), ix.Query(Daily, Day{2024, 3, 1}, 1).Results[0].Transactions)

	// An event for an hour older than every bucket is evicted immediately.
	require.NoError(t, ix.Push(ctx, ev(5, ms(2024, 2, 1, 0), "u")))
	require.Equal(t, 3, ix.HourlyBuckets())
	require.Empty(t, ix.Query(Hourly, Day{2024, 2, 1}, 1).Results)
}

func TestPagination(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	ix, err := Open(db, Options{})
	require.NoError(t, err)

	b := db.NewBatch()
	ts := ms(2024, 3, 1, 9)
	for i := 0; i < PageSize+1; i++ {
		require.NoError(t, ix.Stage(b, ev(uint64(i), ts, fmt.Sprintf("user-%05d", i))))
	}
	require.NoError(t, db.CommitBatch(context.Background(), b))
	require.NoError(t, b.Close())
	ix.Commit()

	day := Day{2024, 3, 1}
	p0 := ix.Query(Daily, day, 0)
	require.Equal(t, uint32(2), p0.PageCount)
	require.Empty(t, p0.Results)
	require.Len(t, ix.Query(Daily, day, 1).Results, PageSize)
	last := ix.Query(Daily, day, 2).Results
	require.Len(t, last, 1)
	require.Equal(t, fmt.Sprintf("user-%05d", PageSize), last[0].User)
	require.Empty(t, ix.Query(Daily, day, 3).Results)

	empty := ix.Query(Hourly, Day{2020, 1, 1}, 1)
	require.Equal(t, uint32(0), empty.PageCount)
	require.NotNil(t, empty.Results)
}

func TestRollbackRestoresState(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	ix, err := Open(db, Options{HourlyCap: 1})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, ix.Push(ctx, ev(0, ms(2024, 3, 1, 9), "a")))

	b := db.NewBatch()
	require.NoError(t, ix.Stage(b, ev(1, ms(2024, 3, 1, 10), "a")))
	require.Equal(t, uint64(2), ix.NextEventIndex())
	ix.Rollback()
	require.NoError(t, b.Close())

	require.Equal(t, uint64(1), ix.NextEventIndex())
	require.Equal(t, 1, ix.HourlyBuckets())
	rows := ix.Query(Hourly, Day{2024, 3, 1}, 1).Results
	require.Len(t, rows, 1)
	require.Equal(t, "2024-03-01 09:00:00", *rows[0].DateTime)
	require.Equal(t, uint32(1), ix.Query(Daily, Day{2024, 3, 1}, 1).Results[0].Transactions)
}

func TestReopenRestoresState(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	ix, err := Open(db, Options{HourlyCap: 2})
	require.NoError(t, err)
	ctx := context.Background()
	for i, h := range []int{1, 2, 3} {
		require.NoError(t, ix.Push(ctx, ev(uint64(i), ms(2024, 3, 1, h), "a")))
	}
	require.NoError(t, db.Close())

	db = openDB(t, dir)
	t.Cleanup(func() { _ = db.Close() })
	ix, err = Open(db, Options{HourlyCap: 2})
	require.NoError(t, err)
	require.Equal(t, uint64(3), ix.NextEventIndex())
	require.Equal(t, 2, ix.HourlyBuckets())
	require.Equal(t, uint32(3), ix.Query(Daily, Day{2024, 3, 1}, 1).Results[0].Transactions)
}

func TestParse(t *testing.T) {
	d, err := ParseDay("2024-03-01")
	require.NoError(t, err)
	require.Equal(t, Day{2024, 3, 1}, d)
	d, err = ParseDay("2024-1-5")
	require.NoError(t, err)
	require.Equal(t, Day{2024, 1, 5}, d)
	_, err = ParseDay("2024-13-01")
	require.Error(t, err)
	_, err = ParseDay("2024-02-30")
	require.Error(t, err)

	g, err := ParseGrouping("hourly")
	require.NoError(t, err)
	require.Equal(t, Hourly, g)
	_, err = ParseGrouping("weekly")
	require.ErrorIs(t, err, ErrUnknownGrouping)
}

func TestStageStartAtSkipsAheadAndPersists(t *testing.T) {
	dir := t.TempDir()
	db := openDB(t, dir)
	ix, err := Open(db, Options{})
	require.NoError(t, err)

	b := db.NewBatch()
	require.NoError(t, ix.StageStartAt(b, 5))
	require.NoError(t, db.CommitBatch(context.Background(), b))
	ix.Commit()
	require.NoError(t, b.Close())
	require.Equal(t, uint64(5), ix.NextEventIndex())

	b = db.NewBatch()
	require.NoError(t, ix.StageStartAt(b, 3))
	require.NoError(t, b.Close())
	require.Equal(t, uint64(5), ix.NextEventIndex())

	require.NoError(t, ix.Push(context.Background(), ev(5, ms(2024, 3, 1, 9), "a")))
	require.Len(t, ix.Query(Daily, Day{2024, 3, 1}, 1).Results, 1)
	require.NoError(t, db.Close())

	db = openDB(t, dir)
	t.Cleanup(func() { _ = db.Close() })
	ix, err = Open(db, Options{})
	require.NoError(t, err)
	require.Equal(t, uint64(6), ix.NextEventIndex())
}

func TestTimestampBeyondYearRangeIsNotCounted(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	ix, err := Open(db, Options{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ix.Push(ctx, ev(0, math.MaxUint64, "a")))
	require.Equal(t, uint64(1), ix.NextEventIndex())
	require.Zero(t, ix.HourlyBuckets())

	require.NoError(t, ix.Push(ctx, ev(1, ms(2024, 3, 1, 9), "a")))
	require.Equal(t, 1, ix.HourlyBuckets())
}
