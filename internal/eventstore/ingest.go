package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/evstore/internal/anonymize"
	"github.com/rzbill/evstore/internal/eventlog"
	"github.com/rzbill/evstore/internal/metrics"
	"github.com/rzbill/evstore/internal/migration"
	"github.com/rzbill/evstore/pkg/events"
	logpkg "github.com/rzbill/evstore/pkg/log"
	"github.com/vmihailenco/msgpack/v5"
)

// PushResult counts the outcome of each pushed event.
type PushResult struct {
	Accepted   int
	Duplicates int
	Deferred   int
	Failed     int
}

// Push ingests evs in order. Each event is applied in its own batch; a
// failing event does not stop the rest and its error is returned joined with
// any others. A failed event is not recorded by dedup, so a retry of the
// same token is accepted.
func (s *Store) Push(ctx context.Context, evs []events.IdempotentEvent) (PushResult, error) {
	var res PushResult
	var errs []error
	for i := range evs {
		outcome, err := s.pushOne(ctx, &evs[i])
		s.metrics.IncEvents(outcome)
		switch outcome {
		case metrics.OutcomeAccepted:
			res.Accepted++
		case metrics.OutcomeDuplicate:
			res.Duplicates++
		case metrics.OutcomeDeferred:
			res.Deferred++
		default:
			res.Failed++
			s.logger.Error("event not stored", logpkg.Str("token", evs[i].Token.String()), logpkg.Err(err))
			errs = append(errs, fmt.Errorf("event %s: %w", evs[i].Token, err))
		}
	}
	s.refreshGauges()
	return res, errors.Join(errs...)
}

func (s *Store) pushOne(ctx context.Context, in *events.IdempotentEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return metrics.OutcomeFailed, err
	}
	b := s.db.NewBatch()
	defer b.Close()

	fresh, err := s.dedup.TryAccept(ctx, b, in.Token, s.nowMs())
	if err != nil {
		return metrics.OutcomeFailed, err
	}
	if !fresh {
		return metrics.OutcomeDuplicate, nil
	}

	ev := *in
	ev.Timestamp = anonymize.Bucket(ev.Timestamp, s.granularityMs)

	if s.DeferredPending() > 0 || (anonymize.NeedsSalt(&ev) && !s.salt.Ready()) {
		idx, err := s.stageDeferred(b, &ev)
		if err == nil {
			err = s.db.CommitBatch(ctx, b)
		}
		if err != nil {
			s.dedup.Forget(in.Token)
			return metrics.OutcomeFailed, err
		}
		s.deferred.Applied(idx)
		return metrics.OutcomeDeferred, nil
	}

	resolved, err := s.resolve(&ev)
	if err != nil {
		s.dedup.Forget(in.Token)
		return metrics.OutcomeFailed, err
	}
	st, err := s.stageLive(b, resolved)
	if err == nil {
		err = s.db.CommitBatch(ctx, b)
	}
	if err != nil {
		st.rollback()
		s.dedup.Forget(in.Token)
		return metrics.OutcomeFailed, err
	}
	st.apply()
	return metrics.OutcomeAccepted, nil
}

// resolve anonymizes user and source. The caller guarantees the salt is
// present when either needs it.
func (s *Store) resolve(ev *events.IdempotentEvent) (*events.IndexedEvent, error) {
	salt, _ := s.salt.Get()
	user, err := anonymize.Resolve(ev.User, salt)
	if err != nil {
		return nil, err
	}
	source, err := anonymize.Resolve(ev.Source, salt)
	if err != nil {
		return nil, err
	}
	return &events.IndexedEvent{
		Name:      ev.Name,
		Timestamp: ev.Timestamp,
		User:      user,
		Source:    source,
		Payload:   ev.Payload,
	}, nil
}

// staged publishes or discards writes made into a batch.
type staged struct {
	apply    func()
	rollback func()
}

// stageLive writes ev into the active stream, assigning its index.
func (s *Store) stageLive(b *pebble.Batch, ev *events.IndexedEvent) (staged, error) {
	if !s.legacyRetired.Load() {
		ev.Index = s.legacy.Next()
		rec, err := migration.EncodeLegacy(ev)
		if err != nil {
			return staged{rollback: func() {}}, err
		}
		idx, err := s.legacy.Stage(b, 0, rec)
		if err != nil {
			return staged{rollback: func() {}}, err
		}
		return staged{apply: func() { s.legacy.Applied(idx) }, rollback: func() {}}, nil
	}
	ev.Index = s.current.Next()
	if err := s.stageCurrent(b, 0, ev); err != nil {
		s.rollbackCurrent()
		return staged{rollback: func() {}}, err
	}
	idx := ev.Index
	return staged{apply: func() { s.commitCurrent(idx) }, rollback: s.rollbackCurrent}, nil
}

// stageCurrent interns ev's strings and writes it into the current stream
// and the aggregation index. ev.Index must be the n-th next index.
func (s *Store) stageCurrent(b *pebble.Batch, n int, ev *events.IndexedEvent) error {
	if want := s.current.Next() + uint64(n); ev.Index != want {
		return fmt.Errorf("eventstore: staging index %d, want %d", ev.Index, want)
	}
	se := storedEvent{Index: ev.Index, Timestamp: ev.Timestamp}
	var err error
	if se.Name, err = s.interner.Stage(b, ev.Name); err != nil {
		return err
	}
	if se.User, err = s.internOpt(b, ev.User); err != nil {
		return err
	}
	if se.Source, err = s.internOpt(b, ev.Source); err != nil {
		return err
	}
	header, err := msgpack.Marshal(&se)
	if err != nil {
		return err
	}
	if _, err := s.current.Stage(b, n, eventlog.Record{Header: header, Payload: ev.Payload}); err != nil {
		return err
	}
	return s.agg.Stage(b, ev)
}

func (s *Store) internOpt(b *pebble.Batch, v *string) (*uint32, error) {
	if v == nil {
		return nil, nil
	}
	id, err := s.interner.Stage(b, *v)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Store) commitCurrent(last uint64) {
	s.interner.Commit()
	s.agg.Commit()
	s.current.Applied(last)
}

func (s *Store) rollbackCurrent() {
	s.interner.Rollback()
	s.agg.Rollback()
}

func (s *Store) stageDeferred(b *pebble.Batch, ev *events.IdempotentEvent) (uint64, error) {
	body, err := msgpack.Marshal(ev)
	if err != nil {
		return 0, err
	}
	return s.deferred.Stage(b, 0, eventlog.Record{Header: body})
}
