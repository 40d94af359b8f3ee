// Package planner plays back queued targets one at a time.
//
// A Scheduler drains a queue.PointQueue on its own goroutine. Every target
// goes through a Mover (solve, encode, send); after a successful send the
// scheduler waits a fixed delay on a timer before advancing. Unreachable
// targets are skipped without consuming the delay.
package planner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"scara/motion"
	"scara/motion/kinematics"
	"scara/motion/queue"
)

// DefaultDelay is the pause between consecutive targets
const DefaultDelay = 15 * time.Second

var (
	ErrRunning    = errors.New("playback already running")
	ErrNotRunning = errors.New("playback not running")
)

// State of the scheduler
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// FinishReason tells why a playback ended
type FinishReason int

const (
	Exhausted FinishReason = iota + 1 // Queue ran empty
	Cancelled                         // Cancel was called
	Aborted                           // Parent context was done
)

func (r FinishReason) String() string {
	switch r {
	case Exhausted:
		return "exhausted"
	case Cancelled:
		return "cancelled"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// Mover drives a single target through the motion pipeline
type Mover interface {
	MoveTo(ctx context.Context, target motion.Target) error
}

// Playback describes one drain of the queue
type Playback struct {
	ID      uuid.UUID
	Started time.Time
	Index   int // Targets taken from the queue so far
	Sent    int
	Skipped int
	Failed  int
}

// Observer receives playback progress. Calls come from the playback goroutine.
type Observer interface {
	PlaybackStarted(p Playback)
	PlaybackWaiting(p Playback, next time.Time)
	PlaybackFinished(p Playback, reason FinishReason)
}

type nopObserver struct{}

func (nopObserver) PlaybackStarted(Playback)               {}
func (nopObserver) PlaybackWaiting(Playback, time.Time)    {}
func (nopObserver) PlaybackFinished(Playback, FinishReason) {}

type playbackKey struct{}

// PlaybackID returns the ID of the playback whose goroutine is calling a Mover
func PlaybackID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(playbackKey{}).(uuid.UUID)
	return id, ok
}

// run is the transient state of one playback
type run struct {
	playback Playback
	ctx      context.Context
	cancel   context.CancelFunc
	reason   FinishReason // Set by Cancel before ctx is cancelled
}

// Scheduler is the Idle/Running state machine that drains a PointQueue
type Scheduler struct {
	mover    Mover
	clock    clock.Clock
	delay    time.Duration
	observer Observer
	log      zerolog.Logger
	metrics  playbackMetrics

	mu    sync.Mutex
	state State
	run   *run

	wg sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithDelay sets the pause after each sent target
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.delay = d }
}

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithObserver registers a progress observer
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// New creates an idle scheduler
func New(mover Mover, opts ...Option) *Scheduler {
	s := &Scheduler{
		mover:    mover,
		clock:    clock.New(),
		delay:    DefaultDelay,
		observer: nopObserver{},
		log:      zerolog.Nop(),
		state:    Idle,
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.metrics, err = newPlaybackMetrics()
	if err != nil {
		s.log.Warn().Err(err).Msg("playback metrics disabled")
	}

	return s
}

// Delay returns the configured inter-target delay
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// State returns the current state
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the active playback, if any
func (s *Scheduler) Current() (Playback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return Playback{}, false
	}
	return s.run.playback, true
}

// Start begins draining q. It returns immediately; playback continues on
// its own goroutine until the queue is empty, Cancel is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context, q *queue.PointQueue) (Playback, error) {
	s.mu.Lock()
	if s.state == Running {
		s.mu.Unlock()
		return Playback{}, ErrRunning
	}

	id := uuid.New()
	runCtx, cancel := context.WithCancel(context.WithValue(ctx, playbackKey{}, id))
	r := &run{
		playback: Playback{ID: id, Started: s.clock.Now()},
		ctx:      runCtx,
		cancel:   cancel,
	}
	s.run = r
	s.state = Running
	p := r.playback
	s.mu.Unlock()

	s.log.Info().Str("playback", p.ID.String()).Int("pending", q.Len()).
		Dur("delay", s.delay).Msg("playback started")
	s.observer.PlaybackStarted(p)

	s.wg.Add(1)
	go s.loop(r, q)

	return p, nil
}

// Cancel stops the running playback. The scheduler is Idle when it returns;
// no further target is sent by the cancelled playback.
func (s *Scheduler) Cancel() error {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	r := s.run
	r.reason = Cancelled
	s.run = nil
	s.state = Idle
	s.mu.Unlock()

	r.cancel()
	return nil
}

// Wait blocks until every playback goroutine has exited
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// loop is the playback goroutine; each pass takes the next target
func (s *Scheduler) loop(r *run, q *queue.PointQueue) {
	defer s.wg.Done()
	defer r.cancel()

	for {
		if r.ctx.Err() != nil {
			s.finish(r, 0)
			return
		}

		// The queue is checked before every send, so a Clear during the
		// previous delay ends playback here
		target, ok := q.DrainNext()
		if !ok {
			s.finish(r, Exhausted)
			return
		}

		index := s.update(r, func(p *Playback) { p.Index++ })
		err := s.mover.MoveTo(r.ctx, target)
		if r.ctx.Err() != nil {
			s.finish(r, 0)
			return
		}

		logger := s.log.With().Str("playback", r.playback.ID.String()).Int("index", index).
			Stringer("target", target).Logger()

		if errors.Is(err, kinematics.ErrUnreachable) {
			s.update(r, func(p *Playback) { p.Skipped++ })
			s.metrics.skipped.Add(r.ctx, 1)
			logger.Warn().Err(err).Msg("skipping unreachable target")
			continue
		}

		if err != nil {
			s.update(r, func(p *Playback) { p.Failed++ })
			s.metrics.failed.Add(r.ctx, 1)
			logger.Error().Err(err).Msg("send failed, continuing")
		} else {
			s.update(r, func(p *Playback) { p.Sent++ })
			s.metrics.sent.Add(r.ctx, 1)
			logger.Debug().Msg("target sent")
		}

		if !s.wait(r) {
			s.finish(r, 0)
			return
		}
	}
}

// wait pauses for the inter-target delay; false means the run was stopped
func (s *Scheduler) wait(r *run) bool {
	if s.delay <= 0 {
		return r.ctx.Err() == nil
	}

	timer := s.clock.Timer(s.delay)
	defer timer.Stop()

	s.mu.Lock()
	p := r.playback
	s.mu.Unlock()
	s.observer.PlaybackWaiting(p, s.clock.Now().Add(s.delay))

	select {
	case <-timer.C:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// update applies fn to the playback under the lock and returns the index
func (s *Scheduler) update(r *run, fn func(p *Playback)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&r.playback)
	return r.playback.Index
}

// finish tears the run down. A run marked by Cancel always reports Cancelled;
// otherwise a zero reason means the parent context ended.
func (s *Scheduler) finish(r *run, reason FinishReason) {
	s.mu.Lock()
	if r.reason != 0 {
		reason = r.reason
	} else if reason == 0 {
		reason = Aborted
	}
	if s.run == r {
		s.run = nil
		s.state = Idle
	}
	p := r.playback
	s.mu.Unlock()

	s.metrics.sessions.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason.String())))
	s.log.Info().Str("playback", p.ID.String()).Stringer("reason", reason).
		Int("sent", p.Sent).Int("skipped", p.Skipped).Int("failed", p.Failed).
		Msg("playback finished")
	s.observer.PlaybackFinished(p, reason)
}
