// Package session is the single surface adapters drive the arm through.
//
// A Session owns the solver, the controller sender, the point queue and the
// playback scheduler. One-shot moves, direct angle commands and playback all
// run the same solve, encode and send pipeline, and every attempt is
// reported to a Listener and, when configured, recorded in a journal.
package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"scara/journal"
	"scara/motion"
	"scara/motion/gcode"
	"scara/motion/kinematics"
	"scara/motion/planner"
	"scara/motion/queue"
	"scara/protocol"
)

// Sender delivers joint angles to the controller
type Sender interface {
	SendAngles(ctx context.Context, angles motion.JointAngles) error
}

// Recorder stores command attempts
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Session coordinates the motion pipeline for one controller
type Session struct {
	solver   kinematics.Kinematics
	sender   Sender
	queue    *queue.PointQueue
	sched    *planner.Scheduler
	listener Listener
	recorder Recorder
	log      zerolog.Logger

	schedOpts []planner.Option

	// poseMu orders pose updates and their notifications against Reset
	poseMu sync.Mutex

	mu   sync.Mutex
	last motion.JointAngles
}

// Option configures a Session
type Option func(*Session)

// WithListener registers the notification listener
func WithListener(l Listener) Option {
	return func(s *Session) {
		if l != nil {
			s.listener = l
		}
	}
}

// WithRecorder records every command attempt
func WithRecorder(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithPlayback passes options through to the playback scheduler
func WithPlayback(opts ...planner.Option) Option {
	return func(s *Session) { s.schedOpts = append(s.schedOpts, opts...) }
}

// New creates an idle session with an empty queue
func New(solver kinematics.Kinematics, sender Sender, opts ...Option) *Session {
	s := &Session{
		solver:   solver,
		sender:   sender,
		queue:    queue.New(),
		listener: NopListener{},
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	schedOpts := append([]planner.Option{
		planner.WithLogger(s.log),
		planner.WithObserver(s.listener),
	}, s.schedOpts...)
	s.sched = planner.New(playbackMover{s}, schedOpts...)

	return s
}

// MoveTo solves and sends a one-shot move. An unreachable target is
// reported and returned without sending anything.
func (s *Session) MoveTo(ctx context.Context, x, y float64) error {
	return s.move(ctx, journal.SourceMove, "", motion.Target{X: x, Y: y})
}

// EnqueuePoint appends a target for playback
func (s *Session) EnqueuePoint(x, y float64) {
	s.queue.Enqueue(motion.Target{X: x, Y: y})
}

// SetAnglesDirectly sends joint angles without solving
func (s *Session) SetAnglesDirectly(ctx context.Context, theta1, theta2 float64) error {
	angles := motion.JointAngles{Theta1: theta1, Theta2: theta2}
	entry := journal.Entry{Source: journal.SourceAngles}
	if err := s.updatePose(ctx, angles); err != nil {
		return s.cancelled(ctx, entry, angles, err)
	}
	return s.send(ctx, entry, angles)
}

// Reset cancels playback, clears the queue and zeroes the last angles.
// Nothing is sent to the controller.
func (s *Session) Reset() {
	if err := s.sched.Cancel(); err == nil {
		s.log.Info().Msg("playback cancelled by reset")
	}
	s.queue.Clear()

	s.poseMu.Lock()
	defer s.poseMu.Unlock()
	s.setLast(motion.JointAngles{})
	s.listener.AnglesUpdated(motion.JointAngles{})
}

// StartPlayback drains the queue in the background
func (s *Session) StartPlayback(ctx context.Context) (planner.Playback, error) {
	return s.sched.Start(ctx, s.queue)
}

// CancelPlayback stops the running playback
func (s *Session) CancelPlayback() error {
	return s.sched.Cancel()
}

// WaitPlayback blocks until the playback goroutine has exited
func (s *Session) WaitPlayback() {
	s.sched.Wait()
}

// PlaybackState returns Idle or Running
func (s *Session) PlaybackState() planner.State {
	return s.sched.State()
}

// Current returns the active playback, if any
func (s *Session) Current() (planner.Playback, bool) {
	return s.sched.Current()
}

// Delay returns the inter-target playback delay
func (s *Session) Delay() time.Duration {
	return s.sched.Delay()
}

// Points returns a copy of the pending targets
func (s *Session) Points() []motion.Target {
	return s.queue.Snapshot()
}

// LastAngles returns the most recently commanded angles
func (s *Session) LastAngles() motion.JointAngles {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// LoadProgram enqueues every target of a G-code point program and returns
// how many were added. A bad program leaves the queue untouched.
func (s *Session) LoadProgram(r io.Reader) (int, error) {
	targets, err := gcode.LoadProgram(r)
	if err != nil {
		return 0, err
	}
	for _, t := range targets {
		s.queue.Enqueue(t)
	}
	return len(targets), nil
}

// Close stops playback and closes the sender and recorder when they
// are closable
func (s *Session) Close() error {
	_ = s.sched.Cancel()
	s.sched.Wait()

	var err error
	if c, ok := s.sender.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	if c, ok := s.recorder.(io.Closer); ok {
		err = multierr.Append(err, c.Close())
	}
	return err
}

func (s *Session) move(ctx context.Context, source, playback string, target motion.Target) error {
	entry := journal.Entry{
		Source:    source,
		Playback:  playback,
		HasTarget: true,
		X:         target.X,
		Y:         target.Y,
	}

	angles, err := s.solver.Solve(target)
	if err != nil {
		var rerr *kinematics.ReachabilityError
		if errors.As(err, &rerr) {
			s.listener.Unreachable(rerr)
		}
		entry.Status = journal.StatusUnreachable
		entry.Error = err.Error()
		s.record(ctx, entry)
		return err
	}

	// A playback cancelled while solving must not publish its pose
	if err := s.updatePose(ctx, angles); err != nil {
		return s.cancelled(ctx, entry, angles, err)
	}
	return s.send(ctx, entry, angles)
}

// updatePose records and announces angles unless ctx is already done.
// Cancel happens before Reset takes poseMu, so a cancelled move can never
// overwrite the pose Reset restored.
func (s *Session) updatePose(ctx context.Context, angles motion.JointAngles) error {
	s.poseMu.Lock()
	defer s.poseMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	s.setLast(angles)
	s.listener.AnglesUpdated(angles)
	return nil
}

func (s *Session) cancelled(ctx context.Context, entry journal.Entry, angles motion.JointAngles, err error) error {
	entry.Theta1, entry.Theta2 = angles.Theta1, angles.Theta2
	entry.Status = journal.StatusCancelled
	entry.Error = err.Error()
	s.record(ctx, entry)
	return err
}

func (s *Session) send(ctx context.Context, entry journal.Entry, angles motion.JointAngles) error {
	entry.Theta1, entry.Theta2 = angles.Theta1, angles.Theta2
	entry.Line = string(protocol.Encode(angles))

	err := s.sender.SendAngles(ctx, angles)
	switch {
	case err == nil:
		entry.Status = journal.StatusSent
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		entry.Status = journal.StatusCancelled
		entry.Error = err.Error()
	default:
		entry.Status = journal.StatusFailed
		entry.Error = err.Error()
		s.listener.TransportFailed(err)
	}

	s.record(ctx, entry)
	return err
}

func (s *Session) record(ctx context.Context, e journal.Entry) {
	if s.recorder == nil {
		return
	}
	// Cancelled commands are still journaled
	if err := s.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn().Err(err).Msg("failed to journal command")
	}
}

func (s *Session) setLast(angles motion.JointAngles) {
	s.mu.Lock()
	s.last = angles
	s.mu.Unlock()
}

// playbackMover feeds scheduler targets through the session pipeline
type playbackMover struct {
	s *Session
}

func (m playbackMover) MoveTo(ctx context.Context, target motion.Target) error {
	id := ""
	if pid, ok := planner.PlaybackID(ctx); ok {
		id = pid.String()
	}
	return m.s.move(ctx, journal.SourcePlayback, id, target)
}
