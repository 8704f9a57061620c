package producer

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rzbill/evstore/pkg/events"
	"github.com/rzbill/evstore/pkg/id"
	logpkg "github.com/rzbill/evstore/pkg/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	DefaultFlushDelay   = 300 * time.Second
	DefaultMaxBatchSize = 1000
)

// ErrPermanent marks a push failure that must not be retried. Transports
// wrap errors with Permanent.
var ErrPermanent = errors.New("producer: permanent push failure")

// Permanent wraps err so that the producer drops the batch instead of
// retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrPermanent, err)
}

// IsPermanent reports whether err is ErrPermanent or a PermissionDenied
// gRPC status.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent) || status.Code(err) == codes.PermissionDenied
}

// Transport delivers one batch. It must return when ctx is done.
type Transport interface {
	PushEvents(ctx context.Context, batch []events.IdempotentEvent) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, batch []events.IdempotentEvent) error

func (f TransportFunc) PushEvents(ctx context.Context, batch []events.IdempotentEvent) error {
	return f(ctx, batch)
}

// Options configures a Producer. Zero values take the defaults.
type Options struct {
	FlushDelay   time.Duration
	MaxBatchSize int
	// RetryDelay is the wait before resending a failed batch. Defaults to
	// FlushDelay.
	RetryDelay time.Duration
	// Classify reports whether a push error is permanent. Defaults to
	// IsPermanent.
	Classify func(error) bool
	Clock    quartz.Clock
	Logger   logpkg.Logger
}

// Info is a snapshot of the producer state.
type Info struct {
	FlushDelay      time.Duration
	MaxBatchSize    int
	Pending         int
	FlushInProgress bool
	InFlight        int
	Scheduled       bool
	NextFlush       time.Time
	Flushed         uint64
	Dropped         uint64
}

type outcome struct {
	gen   uint64 // timer generation; zero for flush completions
	batch []events.IdempotentEvent
	err   error
}

// Producer is safe for concurrent use.
type Producer struct {
	transport Transport
	clock     quartz.Clock
	logger    logpkg.Logger
	opts      Options

	results  chan outcome
	stopped  chan struct{}
	loopDone chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	flushes  sync.WaitGroup

	mu        sync.Mutex
	pending   []events.IdempotentEvent
	inFlight  int
	flushing  bool
	gen       uint64
	timer     *quartz.Timer
	nextFlush time.Time
	flushed   uint64
	dropped   uint64
	closed    bool
}

// New starts a producer with an empty buffer.
func New(t Transport, opts Options) *Producer {
	return NewWithEvents(t, opts, nil)
}

// NewWithEvents starts a producer whose buffer holds evs, typically saved
// with TakeEvents before a restart, and schedules their delivery.
func NewWithEvents(t Transport, opts Options, evs []events.IdempotentEvent) *Producer {
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = DefaultFlushDelay
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = opts.FlushDelay
	}
	if opts.Classify == nil {
		opts.Classify = IsPermanent
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Producer{
		transport: t,
		clock:     opts.Clock,
		logger:    opts.Logger.With(logpkg.Component("producer")),
		opts:      opts,
		results:   make(chan outcome, 16),
		stopped:   make(chan struct{}),
		loopDone:  make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		pending:   slices.Clone(evs),
	}
	go p.loop()

	p.mu.Lock()
	p.processLocked()
	p.mu.Unlock()
	return p
}

// Push buffers ev under a fresh token.
func (p *Producer) Push(ev events.Event) {
	p.PushMany(ev)
}

// PushMany buffers evs, each under a fresh token.
func (p *Producer) PushMany(evs ...events.Event) {
	if len(evs) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ev := range evs {
		p.pending = append(p.pending, ev.WithToken(id.NewToken()))
	}
	p.processLocked()
}

// TakeEvents empties the buffer and returns its contents. A batch in
// flight is not included.
func (p *Producer) TakeEvents() []events.IdempotentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pending
	p.pending = nil
	p.cancelTimerLocked()
	return out
}

func (p *Producer) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{
		FlushDelay:      p.opts.FlushDelay,
		MaxBatchSize:    p.opts.MaxBatchSize,
		Pending:         len(p.pending),
		FlushInProgress: p.flushing,
		InFlight:        p.inFlight,
		Scheduled:       !p.nextFlush.IsZero(),
		NextFlush:       p.nextFlush,
		Flushed:         p.flushed,
		Dropped:         p.dropped,
	}
}

// Close stops timers, cancels a batch in flight and waits for background
// work. A cancelled batch returns to the buffer, so TakeEvents after Close
// yields every undelivered event.
func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancelTimerLocked()
	p.mu.Unlock()

	p.cancel()
	p.flushes.Wait()
	close(p.stopped)
	<-p.loopDone
}

// loop applies timer and flush outcomes until Close. Flushes have finished
// by the time stopped closes, so draining the channel sees all of them.
func (p *Producer) loop() {
	defer close(p.loopDone)
	for {
		select {
		case r := <-p.results:
			p.handle(r)
		case <-p.stopped:
			for {
				select {
				case r := <-p.results:
					p.handle(r)
				default:
					return
				}
			}
		}
	}
}

func (p *Producer) post(r outcome) {
	select {
	case p.results <- r:
	case <-p.stopped:
	}
}

func (p *Producer) handle(r outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.gen != 0 {
		if r.gen != p.gen || p.nextFlush.IsZero() {
			return
		}
		p.nextFlush = time.Time{}
		p.timer = nil
		p.startFlushLocked()
		return
	}

	p.flushing = false
	p.inFlight = 0
	n := len(r.batch)
	switch {
	case r.err == nil:
		p.flushed += uint64(n)
		p.logger.Debug("batch pushed", logpkg.Int("events", n))
		p.processLocked()
	case p.opts.Classify(r.err):
		p.dropped += uint64(n)
		p.logger.Error("batch rejected, dropping events", logpkg.Int("events", n), logpkg.Err(r.err))
		p.processLocked()
	default:
		p.pending = slices.Concat(r.batch, p.pending)
		if !p.closed {
			p.logger.Warn("batch push failed, will retry",
				logpkg.Int("events", n),
				logpkg.Duration("retry_in", p.opts.RetryDelay),
				logpkg.Err(r.err))
			p.scheduleLocked(p.opts.RetryDelay)
		}
	}
}

// processLocked decides what the buffer needs next: an immediate flush when
// a full batch is waiting, otherwise a flush after FlushDelay unless one is
// already scheduled.
func (p *Producer) processLocked() {
	if p.flushing || p.closed || len(p.pending) == 0 {
		return
	}
	if len(p.pending) >= p.opts.MaxBatchSize {
		p.startFlushLocked()
		return
	}
	if p.nextFlush.IsZero() {
		p.scheduleLocked(p.opts.FlushDelay)
	}
}

// scheduleLocked replaces any unfired timer with one that fires after d.
func (p *Producer) scheduleLocked(d time.Duration) {
	p.cancelTimerLocked()
	p.gen++
	gen := p.gen
	p.nextFlush = p.clock.Now().Add(d)
	p.timer = p.clock.AfterFunc(d, func() { p.post(outcome{gen: gen}) }, "producer", "flush")
}

func (p *Producer) cancelTimerLocked() {
	p.gen++
	p.nextFlush = time.Time{}
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Producer) startFlushLocked() {
	p.cancelTimerLocked()
	if p.flushing || p.closed || len(p.pending) == 0 {
		return
	}
	n := min(len(p.pending), p.opts.MaxBatchSize)
	batch := slices.Clone(p.pending[:n])
	p.pending = slices.Clone(p.pending[n:])
	p.flushing = true
	p.inFlight = n

	p.flushes.Add(1)
	go func() {
		defer p.flushes.Done()
		err := p.transport.PushEvents(p.ctx, batch)
		p.post(outcome{batch: batch, err: err})
	}()
}
