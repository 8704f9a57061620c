package eventstore

import (
	"context"
	"errors"

	logpkg "github.com/rzbill/evstore/pkg/log"
)

var errCorruptDeferred = errors.New("eventstore: corrupt deferred record")

// Remove deletes every event with index <= upToInclusive. Indices of the
// remaining events do not change. It is refused while migration runs.
func (s *Store) Remove(ctx context.Context, upToInclusive uint64) (uint64, error) {
	if !s.legacyRetired.Load() {
		return 0, ErrMigrationInProgress
	}
	n, err := s.current.TrimThrough(ctx, upToInclusive, 0)
	if n > 0 {
		s.logger.Info("removed events", logpkg.Int("count", n), logpkg.Uint64("up_to", upToInclusive))
		if cerr := s.current.CompactTrimmed(); cerr != nil {
			s.logger.Warn("compact removed range", logpkg.Err(cerr))
		}
	}
	return uint64(n), err
}
