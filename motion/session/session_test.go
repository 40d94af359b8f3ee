package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scara/host/controller"
	"scara/host/serial"
	"scara/journal"
	"scara/motion"
	"scara/motion/kinematics"
	"scara/motion/planner"
)

const testDelay = 15 * time.Second

type fakeSender struct {
	mu     sync.Mutex
	sent   []motion.JointAngles
	err    error
	closed bool
}

func (f *fakeSender) SendAngles(ctx context.Context, angles motion.JointAngles) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, angles)
	return nil
}

func (f *fakeSender) Sent() []motion.JointAngles {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]motion.JointAngles(nil), f.sent...)
}

func (f *fakeSender) Close() error {
	f.closed = true
	return errors.New("sender close failed")
}

type recordingListener struct {
	NopListener

	mu          sync.Mutex
	angles      []motion.JointAngles
	unreachable []*kinematics.ReachabilityError
	transport   []error

	waiting  chan planner.Playback
	finished chan planner.FinishReason
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		waiting:  make(chan planner.Playback, 16),
		finished: make(chan planner.FinishReason, 4),
	}
}

func (l *recordingListener) AnglesUpdated(a motion.JointAngles) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.angles = append(l.angles, a)
}

func (l *recordingListener) Unreachable(err *kinematics.ReachabilityError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unreachable = append(l.unreachable, err)
}

func (l *recordingListener) TransportFailed(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transport = append(l.transport, err)
}

func (l *recordingListener) PlaybackWaiting(p planner.Playback, _ time.Time) {
	l.waiting <- p
}

func (l *recordingListener) PlaybackFinished(_ planner.Playback, reason planner.FinishReason) {
	l.finished <- reason
}

func (l *recordingListener) counts() (angles, unreachable, transport int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.angles), len(l.unreachable), len(l.transport)
}

func (l *recordingListener) nextWaiting(t *testing.T) planner.Playback {
	t.Helper()
	select {
	case p := <-l.waiting:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PlaybackWaiting")
	}
	return planner.Playback{}
}

func (l *recordingListener) nextFinished(t *testing.T) planner.FinishReason {
	t.Helper()
	select {
	case r := <-l.finished:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for PlaybackFinished")
	}
	return 0
}

func newSolver(t *testing.T) *kinematics.Scara {
	t.Helper()
	k, err := kinematics.NewScara(290, 180)
	require.NoError(t, err)
	return k
}

func newJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestMoveToSendsSolvedAngles(t *testing.T) {
	solver := newSolver(t)
	sender := &fakeSender{}
	listener := newRecordingListener()
	s := New(solver, sender, WithListener(listener))

	require.NoError(t, s.MoveTo(context.Background(), 400, 0))

	want, err := solver.Solve(motion.Target{X: 400, Y: 0})
	require.NoError(t, err)
	assert.Equal(t, []motion.JointAngles{want}, sender.Sent())
	assert.Equal(t, want, s.LastAngles())
	assert.Equal(t, []motion.JointAngles{want}, listener.angles)
}

func TestMoveToUnreachableSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	listener := newRecordingListener()
	j := newJournal(t)
	s := New(newSolver(t), sender, WithListener(listener), WithRecorder(j))

	err := s.MoveTo(context.Background(), 500, 0)
	assert.ErrorIs(t, err, kinematics.ErrTooFar)
	err = s.MoveTo(context.Background(), 50, 0)
	assert.ErrorIs(t, err, kinematics.ErrTooNear)

	assert.Empty(t, sender.Sent())
	assert.Equal(t, motion.JointAngles{}, s.LastAngles())
	angles, unreachable, transport := listener.counts()
	assert.Equal(t, 0, angles)
	assert.Equal(t, 2, unreachable)
	assert.Equal(t, 0, transport)

	entries, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, journal.StatusUnreachable, entries[0].Status)
	assert.Equal(t, 50.0, entries[0].X)
	assert.Empty(t, entries[0].Line)
}

func TestTransportFailureIsReportedAndRecoverable(t *testing.T) {
	sender := &fakeSender{err: errors.New("write /dev/ttyACM0: input/output error")}
	listener := newRecordingListener()
	j := newJournal(t)
	s := New(newSolver(t), sender, WithListener(listener), WithRecorder(j))
	ctx := context.Background()

	err := s.MoveTo(ctx, 300, 100)
	assert.ErrorContains(t, err, "input/output error")
	_, _, transport := listener.counts()
	assert.Equal(t, 1, transport)

	sender.mu.Lock()
	sender.err = nil
	sender.mu.Unlock()
	require.NoError(t, s.MoveTo(ctx, 300, 100))
	assert.Len(t, sender.Sent(), 1)

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, journal.StatusSent, entries[0].Status)
	assert.Equal(t, journal.StatusFailed, entries[1].Status)
	assert.Equal(t, entries[0].Line, entries[1].Line)
}

func TestCancelledContextIsNotATransportFailure(t *testing.T) {
	listener := newRecordingListener()
	j := newJournal(t)
	s := New(newSolver(t), &fakeSender{}, WithListener(listener), WithRecorder(j))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.MoveTo(ctx, 400, 0)
	assert.ErrorIs(t, err, context.Canceled)
	_, _, transport := listener.counts()
	assert.Equal(t, 0, transport)

	entries, err := j.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, journal.StatusCancelled, entries[0].Status)
}

func TestSetAnglesDirectlyBypassesSolver(t *testing.T) {
	port := serial.NewMockPort()
	link := controller.New(port)
	j := newJournal(t)
	s := New(newSolver(t), link, WithRecorder(j))

	require.NoError(t, s.SetAnglesDirectly(context.Background(), 720, -45.5))
	assert.Equal(t, []string{"720.00,-45.50\n"}, port.Lines())
	assert.Equal(t, motion.JointAngles{Theta1: 720, Theta2: -45.5}, s.LastAngles())

	entries, err := j.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, journal.SourceAngles, entries[0].Source)
	assert.False(t, entries[0].HasTarget)
	assert.Equal(t, "720.00,-45.50\n", entries[0].Line)
}

func TestEnqueueKeepsOrderAndDuplicates(t *testing.T) {
	s := New(newSolver(t), &fakeSender{})
	s.EnqueuePoint(300, 0)
	s.EnqueuePoint(0, 300)
	s.EnqueuePoint(300, 0)

	assert.Equal(t, []motion.Target{{X: 300}, {Y: 300}, {X: 300}}, s.Points())
}

func TestPlaybackThroughSession(t *testing.T) {
	mock := clock.NewMock()
	sender := &fakeSender{}
	listener := newRecordingListener()
	j := newJournal(t)
	s := New(newSolver(t), sender,
		WithListener(listener),
		WithRecorder(j),
		WithPlayback(planner.WithClock(mock), planner.WithDelay(testDelay)))

	s.EnqueuePoint(400, 0)
	s.EnqueuePoint(900, 0)
	s.EnqueuePoint(0, 400)

	p, err := s.StartPlayback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, planner.Running, s.PlaybackState())

	listener.nextWaiting(t)
	assert.Len(t, sender.Sent(), 1)
	mock.Add(testDelay)

	w := listener.nextWaiting(t)
	assert.Equal(t, 1, w.Skipped)
	assert.Len(t, sender.Sent(), 2)
	mock.Add(testDelay)

	assert.Equal(t, planner.Exhausted, listener.nextFinished(t))
	s.WaitPlayback()
	assert.Equal(t, planner.Idle, s.PlaybackState())
	assert.Empty(t, s.Points())

	entries, err := j.ForPlayback(context.Background(), p.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	statuses := []string{entries[0].Status, entries[1].Status, entries[2].Status}
	assert.Equal(t, []string{journal.StatusSent, journal.StatusUnreachable, journal.StatusSent}, statuses)
	for _, e := range entries {
		assert.Equal(t, journal.SourcePlayback, e.Source)
	}
}

func TestResetDuringPlayback(t *testing.T) {
	mock := clock.NewMock()
	sender := &fakeSender{}
	listener := newRecordingListener()
	s := New(newSolver(t), sender,
		WithListener(listener),
		WithPlayback(planner.WithClock(mock), planner.WithDelay(testDelay)))

	s.EnqueuePoint(400, 0)
	s.EnqueuePoint(0, 400)
	_, err := s.StartPlayback(context.Background())
	require.NoError(t, err)
	listener.nextWaiting(t)
	require.NotEqual(t, motion.JointAngles{}, s.LastAngles())

	s.Reset()
	assert.Equal(t, planner.Idle, s.PlaybackState())
	assert.Empty(t, s.Points())
	assert.Equal(t, motion.JointAngles{}, s.LastAngles())
	assert.Equal(t, planner.Cancelled, listener.nextFinished(t))

	s.WaitPlayback()
	mock.Add(10 * testDelay)
	assert.Len(t, sender.Sent(), 1)

	listener.mu.Lock()
	last := listener.angles[len(listener.angles)-1]
	listener.mu.Unlock()
	assert.Equal(t, motion.JointAngles{}, last)
	assert.ErrorIs(t, s.CancelPlayback(), planner.ErrNotRunning)
}

func TestLoadProgram(t *testing.T) {
	s := New(newSolver(t), &fakeSender{})
	s.EnqueuePoint(1, 1)

	n, err := s.LoadProgram(strings.NewReader("G0 X300 Y0\nG1 Y50\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []motion.Target{{X: 1, Y: 1}, {X: 300}, {X: 300, Y: 50}}, s.Points())

	_, err = s.LoadProgram(strings.NewReader("G0 X10\nG1 Yoops\n"))
	var ierr *motion.InputError
	require.ErrorAs(t, err, &ierr)
	assert.Len(t, s.Points(), 3)
}

func TestCloseCombinesErrors(t *testing.T) {
	sender := &fakeSender{}
	j := newJournal(t)
	s := New(newSolver(t), sender, WithRecorder(j))

	err := s.Close()
	assert.ErrorContains(t, err, "sender close failed")
	assert.True(t, sender.closed)

	err = j.Record(context.Background(), journal.Entry{Source: journal.SourceMove, Status: journal.StatusSent})
	assert.Error(t, err)
}

// gatedSolver blocks inside Solve until released
type gatedSolver struct {
	*kinematics.Scara
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSolver) Solve(target motion.Target) (motion.JointAngles, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Scara.Solve(target)
}

func TestResetWhilePlaybackIsSolving(t *testing.T) {
	solver := &gatedSolver{
		Scara:   newSolver(t),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	sender := &fakeSender{}
	listener := newRecordingListener()
	j := newJournal(t)
	s := New(solver, sender,
		WithListener(listener),
		WithRecorder(j),
		WithPlayback(planner.WithClock(clock.NewMock()), planner.WithDelay(testDelay)))

	s.EnqueuePoint(400, 0)
	p, err := s.StartPlayback(context.Background())
	require.NoError(t, err)

	select {
	case <-solver.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("playback never reached the solver")
	}

	s.Reset()
	close(solver.release)
	assert.Equal(t, planner.Cancelled, listener.nextFinished(t))
	s.WaitPlayback()

	assert.Equal(t, motion.JointAngles{}, s.LastAngles())
	assert.Empty(t, sender.Sent())

	listener.mu.Lock()
	last := listener.angles[len(listener.angles)-1]
	listener.mu.Unlock()
	assert.Equal(t, motion.JointAngles{}, last)

	entries, err := j.ForPlayback(context.Background(), p.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, journal.StatusCancelled, entries[0].Status)
}
