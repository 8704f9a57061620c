package aggregation

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/evstore/internal/storage/pebble"
	"github.com/rzbill/evstore/pkg/events"
	logpkg "github.com/rzbill/evstore/pkg/log"
)

const (
	// HourlyMaxEntries is the number of hourly buckets retained (70 days).
	HourlyMaxEntries = 24 * 70
	// PageSize is the number of rows per query page.
	PageSize = 1000
)

// Grouping selects daily or hourly rows.
type Grouping string

const (
	Daily  Grouping = "daily"
	Hourly Grouping = "hourly"
)

// ErrUnknownGrouping is returned by ParseGrouping.
var ErrUnknownGrouping = errors.New("aggregation: grouping must be daily or hourly")

// ParseGrouping accepts "daily" or "hourly".
func ParseGrouping(s string) (Grouping, error) {
	switch Grouping(s) {
	case Daily, Hourly:
		return Grouping(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownGrouping, s)
}

// ParseDay parses YYYY-MM-DD. Month and day may omit the leading zero.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-1-2", s)
	if err != nil {
		return Day{}, fmt.Errorf("aggregation: invalid date %q: %w", s, err)
	}
	return Day{Year: uint16(t.Year()), Month: uint8(t.Month()), Day: uint8(t.Day())}, nil
}

type counts map[string]uint32

// Options tunes an Index.
type Options struct {
	// HourlyCap overrides HourlyMaxEntries when positive.
	HourlyCap int
	Logger    logpkg.Logger
}

// Index is not safe for concurrent use; the store runtime serializes access.
type Index struct {
	db        *pebblestore.DB
	hourlyCap int
	logger    logpkg.Logger

	daily  map[Day]counts
	hourly map[Hour]counts
	hours  []Hour // ascending
	next   uint64

	// undo reverts in-memory changes made by Stage when the batch fails.
	undo []func()
}

// Open loads counters and the next expected index from db.
func Open(db *pebblestore.DB, opts Options) (*Index, error) {
	ix := &Index{
		db:        db,
		hourlyCap: opts.HourlyCap,
		daily:     map[Day]counts{},
		hourly:    map[Hour]counts{},
	}
	if ix.hourlyCap <= 0 {
		ix.hourlyCap = HourlyMaxEntries
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	ix.logger = opts.Logger.With(logpkg.Component("aggregation"))

	v, err := db.Get(nextKey)
	switch {
	case err == nil:
		if len(v) != 8 {
			return nil, fmt.Errorf("aggregation: corrupt next index")
		}
		ix.next = binary.BigEndian.Uint64(v)
	case pebblestore.IsNotFound(err):
	default:
		return nil, err
	}

	err = db.ScanPrefix(dailyPrefix, func(k, v []byte) error {
		rest := k[len(dailyPrefix):]
		if len(rest) < 4 || len(v) != 4 {
			return fmt.Errorf("aggregation: malformed daily key %q", k)
		}
		d := parseDay(rest)
		bucket(ix.daily, d)[string(rest[4:])] = binary.BigEndian.Uint32(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = db.ScanPrefix(hourlyPrefix, func(k, v []byte) error {
		rest := k[len(hourlyPrefix):]
		if len(rest) < 5 || len(v) != 4 {
			return fmt.Errorf("aggregation: malformed hourly key %q", k)
		}
		h := Hour{Day: parseDay(rest), Hour: rest[4]}
		c, ok := ix.hourly[h]
		if !ok {
			c = counts{}
			ix.hourly[h] = c
			ix.hours = append(ix.hours, h)
		}
		c[string(rest[5:])] = binary.BigEndian.Uint32(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ix, nil
}

func bucket[K comparable](m map[K]counts, k K) counts {
	c, ok := m[k]
	if !ok {
		c = counts{}
		m[k] = c
	}
	return c
}

// NextEventIndex is the index the next folded event must carry.
func (ix *Index) NextEventIndex() uint64 { return ix.next }

// HourlyBuckets returns the number of hourly buckets held.
func (ix *Index) HourlyBuckets() int { return len(ix.hours) }

// Stage folds ev into the counters and writes the changes into b. Call
// Commit after b commits or Rollback if it does not. Stage may be called for
// several consecutive events before one commit.
func (ix *Index) Stage(b *pebble.Batch, ev *events.IndexedEvent) error {
	if ev.Index != ix.next {
		return nil
	}
	prevNext := ix.next
	ix.next = ev.Index + 1
	ix.undo = append(ix.undo, func() { ix.next = prevNext })
	if err := b.Set(nextKey, binary.BigEndian.AppendUint64(nil, ix.next), nil); err != nil {
		return err
	}
	if ev.User == nil {
		return nil
	}
	user := *ev.User

	t := time.Unix(int64(ev.Timestamp/1000), 0).UTC()
	if t.Year() > math.MaxUint16 {
		ix.logger.Warn("timestamp outside aggregation range; not counted",
			logpkg.Uint64("index", ev.Index), logpkg.Uint64("timestamp", ev.Timestamp))
		return nil
	}
	day := Day{Year: uint16(t.Year()), Month: uint8(t.Month()), Day: uint8(t.Day())}
	hour := Hour{Day: day, Hour: uint8(t.Hour())}

	if err := increment(ix, b, ix.daily, day, user, dailyKey(day, user)); err != nil {
		return err
	}
	if _, ok := ix.hourly[hour]; !ok {
		ix.insertHour(hour)
	}
	if err := increment(ix, b, ix.hourly, hour, user, hourlyKey(hour, user)); err != nil {
		return err
	}
	for len(ix.hours) > ix.hourlyCap {
		if err := ix.evictOldest(b); err != nil {
			return err
		}
	}
	return nil
}

// StageStartAt moves the next expected index forward to index when the
// events below it will never be folded, as after a head removal. It never
// moves backwards.
func (ix *Index) StageStartAt(b *pebble.Batch, index uint64) error {
	if index <= ix.next {
		return nil
	}
	prevNext := ix.next
	ix.next = index
	ix.undo = append(ix.undo, func() { ix.next = prevNext })
	return b.Set(nextKey, binary.BigEndian.AppendUint64(nil, ix.next), nil)
}

func increment[K comparable](ix *Index, b *pebble.Batch, m map[K]counts, k K, user string, key []byte) error {
	c, exists := m[k]
	if !exists {
		c = counts{}
		m[k] = c
		ix.undo = append(ix.undo, func() { delete(m, k) })
	}
	prev, had := c[user]
	c[user] = prev + 1
	ix.undo = append(ix.undo, func() {
		if had {
			c[user] = prev
		} else {
			delete(c, user)
		}
	})
	return b.Set(key, countValue(prev+1), nil)
}

func (ix *Index) insertHour(h Hour) {
	i := sort.Search(len(ix.hours), func(i int) bool { return !ix.hours[i].less(h) })
	ix.hours = append(ix.hours, Hour{})
	copy(ix.hours[i+1:], ix.hours[i:])
	ix.hours[i] = h
	ix.undo = append(ix.undo, func() { ix.removeHour(h) })
}

func (ix *Index) removeHour(h Hour) {
	for i, x := range ix.hours {
		if x == h {
			ix.hours = append(ix.hours[:i], ix.hours[i+1:]...)
			return
		}
	}
}

func (ix *Index) evictOldest(b *pebble.Batch) error {
	h := ix.hours[0]
	prefix := hourlyBucketPrefix(h)
	if err := b.DeleteRange(prefix, pebblestore.PrefixEnd(prefix), nil); err != nil {
		return err
	}
	c := ix.hourly[h]
	delete(ix.hourly, h)
	ix.hours = ix.hours[1:]
	ix.undo = append(ix.undo, func() {
		ix.hourly[h] = c
		ix.insertHour(h)
	})
	return nil
}

// Commit keeps staged changes.
func (ix *Index) Commit() { ix.undo = ix.undo[:0] }

// Rollback reverts staged changes in reverse order.
func (ix *Index) Rollback() {
	undo := ix.undo
	ix.undo = nil
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
	ix.undo = ix.undo[:0]
}

// Push folds a single event and commits it.
func (ix *Index) Push(ctx context.Context, ev *events.IndexedEvent) error {
	b := ix.db.NewBatch()
	defer b.Close()
	if err := ix.Stage(b, ev); err != nil {
		ix.Rollback()
		return err
	}
	if err := ix.db.CommitBatch(ctx, b); err != nil {
		ix.Rollback()
		return err
	}
	ix.Commit()
	return nil
}
