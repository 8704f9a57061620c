package eventstore

import (
	"context"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/evstore/internal/migration"
	"github.com/rzbill/evstore/pkg/events"
)

var _ migration.Target = (*Store)(nil)

// The Store is the migration job's target: copied events go through the
// same staging as live events on the current stream.

func (s *Store) NextIndex() uint64 { return s.current.Next() }

// StartAt positions the current stream and the aggregation index at index
// in one batch.
func (s *Store) StartAt(ctx context.Context, index uint64) error {
	b := s.db.NewBatch()
	defer b.Close()
	if err := s.current.StageStartAt(b, index); err != nil {
		return err
	}
	if err := s.agg.StageStartAt(b, index); err != nil {
		s.agg.Rollback()
		return err
	}
	if err := s.db.CommitBatch(ctx, b); err != nil {
		s.agg.Rollback()
		return err
	}
	s.current.StartedAt(index)
	s.agg.Commit()
	return nil
}

func (s *Store) StageMigrated(b *pebble.Batch, n int, ev *events.IndexedEvent) error {
	return s.stageCurrent(b, n, ev)
}

func (s *Store) CommitMigrated(last uint64) {
	s.commitCurrent(last)
	s.refreshGauges()
}

func (s *Store) RollbackMigrated() { s.rollbackCurrent() }

func (s *Store) RetireLegacy() {
	s.markRetired()
	s.refreshGauges()
}
