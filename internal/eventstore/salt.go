package eventstore

import (
	"context"
	"io"

	"github.com/rzbill/evstore/internal/anonymize"
	"github.com/rzbill/evstore/internal/eventlog"
	"github.com/rzbill/evstore/internal/metrics"
	"github.com/rzbill/evstore/pkg/events"
	logpkg "github.com/rzbill/evstore/pkg/log"
	"github.com/vmihailenco/msgpack/v5"
)

const drainChunk = 256

// EnsureSalt installs a salt read from r (crypto/rand when nil) unless one
// exists, then drains deferred events. It reports whether a salt was
// installed by this call.
func (s *Store) EnsureSalt(ctx context.Context, r io.Reader) (bool, error) {
	if s.salt.Ready() {
		return false, nil
	}
	salt, err := anonymize.GenerateSalt(r)
	if err != nil {
		return false, err
	}
	if err := s.InstallSalt(ctx, salt); err != nil {
		return false, err
	}
	return true, nil
}

// InstallSalt sets the salt once and drains every deferred event.
func (s *Store) InstallSalt(ctx context.Context, salt anonymize.Salt) error {
	if err := s.salt.Install(salt); err != nil {
		return err
	}
	s.logger.Info("anonymization salt installed", logpkg.Uint64("deferred_pending", s.DeferredPending()))
	_, err := s.DrainDeferred(ctx, -1)
	return err
}

// DrainDeferred moves up to limit deferred events (all when limit < 0) into the
// active stream in arrival order. It does nothing until the salt is set.
func (s *Store) DrainDeferred(ctx context.Context, limit int) (int, error) {
	if !s.salt.Ready() {
		return 0, nil
	}
	n := 0
	defer s.refreshGauges()
	for (limit < 0 || n < limit) && s.DeferredPending() > 0 {
		chunk := uint64(drainChunk)
		if limit >= 0 && uint64(limit-n) < chunk {
			chunk = uint64(limit - n)
		}
		items := s.deferred.Get(s.drained, chunk)
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			if err := s.drainOne(ctx, it); err != nil {
				return n, err
			}
			n++
		}
	}
	if s.DeferredPending() == 0 && s.drained > 0 {
		if _, err := s.deferred.TrimThrough(ctx, s.drained-1, 0); err != nil {
			s.logger.Warn("trim drained deferred events", logpkg.Err(err))
		}
	}
	if n > 0 {
		s.logger.Info("drained deferred events", logpkg.Int("count", n))
	}
	return n, nil
}

func (s *Store) drainOne(ctx context.Context, it eventlog.Item) error {
	b := s.db.NewBatch()
	defer b.Close()

	st := staged{apply: func() {}, rollback: func() {}}
	var ev events.IdempotentEvent
	decodeErr := errCorruptDeferred
	if !it.Corrupt {
		decodeErr = msgpack.Unmarshal(it.Header, &ev)
	}
	if decodeErr != nil {
		s.logger.Error("dropping undecodable deferred event", logpkg.Uint64("deferred_index", it.Index), logpkg.Err(decodeErr))
	} else {
		resolved, err := s.resolve(&ev)
		if err != nil {
			return err
		}
		if st, err = s.stageLive(b, resolved); err != nil {
			return err
		}
	}
	err := s.deferred.StageCursor(b, drainCursor, it.Index+1)
	if err == nil {
		err = s.db.CommitBatch(ctx, b)
	}
	if err != nil {
		st.rollback()
		return err
	}
	st.apply()
	s.drained = it.Index + 1
	if decodeErr == nil {
		s.metrics.IncEvents(metrics.OutcomeAccepted)
	}
	return nil
}
