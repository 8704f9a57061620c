package eventstore

import (
	"bytes"
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rzbill/evstore/internal/aggregation"
	"github.com/rzbill/evstore/internal/anonymize"
	"github.com/rzbill/evstore/internal/eventlog"
	"github.com/rzbill/evstore/internal/migration"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	"github.com/rzbill/evstore/pkg/events"
	"github.com/rzbill/evstore/pkg/id"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func openDB(t *testing.T, dir string) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	require.NoError(t, err)
	return db
}

func openStore(t *testing.T, db *pebblestore.DB, opts Options) *Store {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = quartz.NewMock(t)
	}
	s, err := Open(context.Background(), db, opts)
	require.NoError(t, err)
	return s
}

// newStore opens a store on a fresh database with the (empty) legacy stream
// already retired.
func newStore(t *testing.T, opts Options) *Store {
	t.Helper()
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	s := openStore(t, db, opts)
	retire(t, s)
	return s
}

func retire(t *testing.T, s *Store) {
	t.Helper()
	job := migration.New(s.DB(), s.Legacy(), s, migration.Options{})
	for {
		_, done, err := job.Tick(context.Background())
		require.NoError(t, err)
		if done {
			return
		}
	}
}

func installSalt(t *testing.T, s *Store) {
	t.Helper()
	installed, err := s.EnsureSalt(context.Background(), bytes.NewReader(bytes.Repeat([]byte{3}, anonymize.SaltSize)))
	require.NoError(t, err)
	require.True(t, installed)
}

func event(n uint64, name string) events.IdempotentEvent {
	return events.Event{Name: name, Timestamp: 1_700_000_000_000 + n}.WithToken(id.TokenFromUint64(0, n+1))
}

func TestPushAssignsGaplessIndicesAcrossBatches(t *testing.T) {
	s := newStore(t, Options{})
	ctx := context.Background()

	res, err := s.Push(ctx, []events.IdempotentEvent{event(0, "a"), event(1, "b")})
	require.NoError(t, err)
	require.Equal(t, 2, res.Accepted)
	_, err = s.Push(ctx, []events.IdempotentEvent{event(2, "c")})
	require.NoError(t, err)

	got := s.Get(0, 10)
	require.Len(t, got, 3)
	for i, ev := range got {
		require.Equal(t, uint64(i), ev.Index)
	}
	st := s.Stats()
	require.Equal(t, uint64(0), *st.Earliest)
	require.Equal(t, uint64(2), *st.Latest)
	require.Empty(t, s.Get(3, 10))
}

func TestDuplicateTokensStoredOnce(t *testing.T) {
	s := newStore(t, Options{})
	ctx := context.Background()
	ev := event(0, "swap")

	res, err := s.Push(ctx, []events.IdempotentEvent{ev, ev})
	require.NoError(t, err)
	require.Equal(t, PushResult{Accepted: 1, Duplicates: 1}, res)

	res, err = s.Push(ctx, []events.IdempotentEvent{ev})
	require.NoError(t, err)
	require.Equal(t, 1, res.Duplicates)
	require.Len(t, s.Get(0, 10), 1)
}

func TestRoundTripWithBucketing(t *testing.T) {
	s := newStore(t, Options{GranularityMs: 1000})
	ctx := context.Background()
	in := events.Event{
		Name:      "login",
		Timestamp: 2150,
		User:      events.PublicValue("alice"),
		Source:    events.PublicValue("web"),
		Payload:   []byte(`{"k":1}`),
	}.WithToken(id.NewToken())

	_, err := s.Push(ctx, []events.IdempotentEvent{in})
	require.NoError(t, err)
	got := s.Get(0, 1)
	require.Len(t, got, 1)
	require.Equal(t, "login", got[0].Name)
	require.Equal(t, uint64(2000), got[0].Timestamp)
	require.Equal(t, "alice", *got[0].User)
	require.Equal(t, "web", *got[0].Source)
	require.Equal(t, []byte(`{"k":1}`), got[0].Payload)
}

func TestAnonymizedEventsWaitForSalt(t *testing.T) {
	s := newStore(t, Options{})
	ctx := context.Background()

	hidden := events.Event{Name: "a", User: events.AnonymizedValue("alice")}.WithToken(id.TokenFromUint64(1, 1))
	public := events.Event{Name: "b", User: events.PublicValue("bob")}.WithToken(id.TokenFromUint64(1, 2))

	res, err := s.Push(ctx, []events.IdempotentEvent{hidden, public})
	require.NoError(t, err)
	require.Equal(t, 2, res.Deferred, "events behind a deferred one wait too")
	require.Nil(t, s.Stats().Latest)
	require.Equal(t, uint64(2), s.DeferredPending())

	installSalt(t, s)
	require.Zero(t, s.DeferredPending())

	got := s.Get(0, 10)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Name)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), *got[0].User)
	require.Equal(t, "b", got[1].Name)
	require.Equal(t, "bob", *got[1].User)

	// A deferred token is still deduplicated.
	res, err = s.Push(ctx, []events.IdempotentEvent{hidden})
	require.NoError(t, err)
	require.Equal(t, 1, res.Duplicates)
}

func TestPublicEventsSkipDeferralWithoutSalt(t *testing.T) {
	s := newStore(t, Options{})
	res, err := s.Push(context.Background(), []events.IdempotentEvent{event(0, "x")})
	require.NoError(t, err)
	require.Equal(t, 1, res.Accepted)
	require.False(t, s.SaltReady())
}

func TestRemoveClampsReads(t *testing.T) {
	s := newStore(t, Options{})
	ctx := context.Background()
	for i := uint64(0); i < 5; i++ {
		_, err := s.Push(ctx, []events.IdempotentEvent{event(i, "e")})
		require.NoError(t, err)
	}
	n, err := s.Remove(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)

	got := s.Get(0, 10)
	require.Len(t, got, 2)
	require.Equal(t, uint64(3), got[0].Index)
	require.Equal(t, uint64(3), *s.Stats().Earliest)

	_, err = s.Push(ctx, []events.IdempotentEvent{event(9, "e")})
	require.NoError(t, err)
	require.Equal(t, uint64(5), *s.Stats().Latest)
}

func TestRemoveRefusedDuringMigration(t *testing.T) {
	db := openDB(t, t.TempDir())
	t.Cleanup(func() { _ = db.Close() })
	s := openStore(t, db, Options{})
	_, err := s.Remove(context.Background(), 0)
	require.ErrorIs(t, err, ErrMigrationInProgress)
}

func TestCorruptRecordsReadAsUnknown(t *testing.T) {
	s := newStore(t, Options{})
	ctx := context.Background()
	for i := uint64(0); i < 3; i++ {
		_, err := s.Push(ctx, []events.IdempotentEvent{event(i, "ok")})
		require.NoError(t, err)
	}
	require.NoError(t, s.DB().Set(eventlog.KeyLogEntry(CurrentStream, 1), []byte("garbage")))
	header, err := msgpack.Marshal(&storedEvent{Index: 2, Name: 999, User: ptr(uint32(998))})
	require.NoError(t, err)
	require.NoError(t, s.DB().Set(eventlog.KeyLogEntry(CurrentStream, 2), eventlog.EncodeRecord(header, nil)))

	got := s.Get(0, 10)
	require.Len(t, got, 3)
	require.Equal(t, "ok", got[0].Name)
	require.Equal(t, events.UnknownName, got[1].Name)
	require.Equal(t, uint64(1), got[1].Index)
	require.Equal(t, events.UnknownName, got[2].Name)
	require.Nil(t, got[2].User)
}

func TestReopenResumesState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	clock := quartz.NewMock(t)

	db := openDB(t, dir)
	s := openStore(t, db, Options{Clock: clock})
	retire(t, s)
	installSalt(t, s)
	_, err := s.Push(ctx, []events.IdempotentEvent{event(0, "a"), event(1, "b")})
	require.NoError(t, err)
	before := s.Get(0, 2)
	require.NoError(t, db.Close())

	db = openDB(t, dir)
	t.Cleanup(func() { _ = db.Close() })
	s = openStore(t, db, Options{Clock: clock})
	require.True(t, s.LegacyRetired())
	require.True(t, s.SaltReady())
	require.Equal(t, before, s.Get(0, 2))

	res, err := s.Push(ctx, []events.IdempotentEvent{event(1, "b"), event(2, "c")})
	require.NoError(t, err)
	require.Equal(t, PushResult{Accepted: 1, Duplicates: 1}, res)
	require.Equal(t, uint64(2), *s.Stats().Latest)
}

func TestDedupWindowExpires(t *testing.T) {
	clock := quartz.NewMock(t)
	s := newStore(t, Options{Clock: clock, DedupWindow: time.Minute})
	ctx := context.Background()

	_, err := s.Push(ctx, []events.IdempotentEvent{event(0, "a")})
	require.NoError(t, err)
	clock.Set(clock.Now().Add(2 * time.Minute)).MustWait(ctx)
	res, err := s.Push(ctx, []events.IdempotentEvent{event(0, "a")})
	require.NoError(t, err)
	require.Equal(t, 1, res.Accepted)
}

func TestAggregatesFollowIngestion(t *testing.T) {
	s := newStore(t, Options{})
	ctx := context.Background()
	ts := uint64(time.Date(2024, 5, 4, 13, 10, 0, 0, time.UTC).UnixMilli())
	for i := uint64(0); i < 3; i++ {
		ev := events.Event{Name: "swap", Timestamp: ts, User: events.PublicValue("u")}.WithToken(id.TokenFromUint64(2, i))
		_, err := s.Push(ctx, []events.IdempotentEvent{ev})
		require.NoError(t, err)
	}
	page := s.Aggregates(aggregation.Hourly, aggregation.Day{Year: 2024, Month: 5, Day: 4}, 1)
	require.Len(t, page.Results, 1)
	require.Equal(t, "2024-05-04 13:00:00", *page.Results[0].DateTime)
	require.Equal(t, uint32(3), page.Results[0].Transactions)
}

func ptr[T any](v T) *T { return &v }
