package eventsvc

import (
	"context"
	"time"

	"github.com/rzbill/evstore/internal/aggregation"
	"github.com/rzbill/evstore/internal/eventstore"
	"github.com/rzbill/evstore/internal/runtime"
	"github.com/rzbill/evstore/pkg/events"
	logpkg "github.com/rzbill/evstore/pkg/log"
)

// MaxWait caps long-poll reads.
const MaxWait = 30 * time.Second

// Service is safe for concurrent use; store access is serialized by the
// runtime.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

// New returns a Service. A nil logger gets a default one.
func New(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Service{rt: rt, logger: logger.With(logpkg.Component("events"))}
}

// PushEvents ingests args.Events for caller. Events that fail to store are
// reported in the returned error; resending the batch is safe because
// stored events are deduplicated by token.
func (s *Service) PushEvents(ctx context.Context, caller string, args events.PushEventsArgs) (events.PushEventsResponse, error) {
	if !s.rt.InitArgs().CanPush(caller) {
		return events.PushEventsResponse{}, unauthorized(actionPush)
	}
	if len(args.Events) == 0 {
		return events.PushEventsResponse{}, nil
	}
	var res eventstore.PushResult
	err := s.rt.Mutate(ctx, func(st *eventstore.Store) error {
		var err error
		res, err = st.Push(ctx, args.Events)
		return err
	})
	s.logger.Debug("push",
		logpkg.Str(logpkg.CallerKey, caller),
		logpkg.Int("accepted", res.Accepted),
		logpkg.Int("duplicates", res.Duplicates),
		logpkg.Int("deferred", res.Deferred),
		logpkg.Int("failed", res.Failed))
	return events.PushEventsResponse{}, err
}

// Events returns a window of stored events. With WaitMs > 0 and nothing at
// or after Start, it waits up to WaitMs (capped at MaxWait) for an append.
func (s *Service) Events(ctx context.Context, caller string, args events.EventsArgs) (events.EventsResponse, error) {
	if !s.rt.InitArgs().CanRead(caller) {
		return events.EventsResponse{}, unauthorized(actionRead)
	}
	filter, err := newCELFilter(args.Filter)
	if err != nil {
		return events.EventsResponse{}, invalid("filter: %v", err)
	}
	length := args.Length
	if limit := s.rt.Config().ReadMaxLength; length > limit {
		length = limit
	}

	resp, err := s.read(ctx, args.Start, length)
	if err != nil {
		return resp, err
	}
	if len(resp.Events) == 0 && length > 0 && args.WaitMs > 0 {
		wait := min(time.Duration(args.WaitMs)*time.Millisecond, MaxWait)
		if s.rt.WaitForAppend(ctx, args.Start, wait) {
			if resp, err = s.read(ctx, args.Start, length); err != nil {
				return resp, err
			}
		}
	}
	if filter.enabled {
		kept := resp.Events[:0]
		for i := range resp.Events {
			if filter.Eval(&resp.Events[i]) {
				kept = append(kept, resp.Events[i])
			}
		}
		resp.Events = kept
	}
	return resp, nil
}

func (s *Service) read(ctx context.Context, start, length uint64) (events.EventsResponse, error) {
	var resp events.EventsResponse
	err := s.rt.Read(ctx, func(st *eventstore.Store) error {
		resp.Events = st.Get(start, length)
		stats := st.Stats()
		resp.LatestEventIndex = stats.Latest
		resp.EarliestEventIndex = stats.Earliest
		return nil
	})
	if resp.Events == nil {
		resp.Events = []events.IndexedEvent{}
	}
	return resp, err
}

// RemoveEvents deletes every event with index <= UpToInclusive.
func (s *Service) RemoveEvents(ctx context.Context, caller string, args events.RemoveEventsArgs) (events.RemoveEventsResponse, error) {
	init := s.rt.InitArgs()
	if !init.RemovalEnabled {
		return events.RemoveEventsResponse{}, ErrRemovalDisabled
	}
	if !init.CanRemove(caller) {
		return events.RemoveEventsResponse{}, unauthorized(actionRemove)
	}
	var removed uint64
	err := s.rt.Mutate(ctx, func(st *eventstore.Store) error {
		var err error
		removed, err = st.Remove(ctx, args.UpToInclusive)
		return err
	})
	if err == nil {
		s.logger.Info("events removed", logpkg.Str(logpkg.CallerKey, caller), logpkg.Uint64("removed", removed))
	}
	return events.RemoveEventsResponse{Removed: removed}, err
}

// Allowlists returns the deployment allow-lists. Any caller may ask.
func (s *Service) Allowlists(context.Context) events.Allowlists {
	return s.rt.InitArgs().Allowlists()
}

// Aggregates returns one page of per-user counts for date (YYYY-MM-DD).
func (s *Service) Aggregates(ctx context.Context, date, grouping string, page int) (aggregation.Page, error) {
	day, err := aggregation.ParseDay(date)
	if err != nil {
		return aggregation.Page{}, invalid("%v", err)
	}
	g, err := aggregation.ParseGrouping(grouping)
	if err != nil {
		return aggregation.Page{}, invalid("%v", err)
	}
	if page < 0 {
		return aggregation.Page{}, invalid("page must not be negative")
	}
	var out aggregation.Page
	err = s.rt.Read(ctx, func(st *eventstore.Store) error {
		out = st.Aggregates(g, day, page)
		return nil
	})
	return out, err
}

// Health reports whether the runtime is serving.
func (s *Service) Health(ctx context.Context) error {
	return s.rt.CheckHealth(ctx)
}
