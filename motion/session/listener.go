package session

import (
	"time"

	"github.com/rs/zerolog"

	"scara/motion"
	"scara/motion/kinematics"
	"scara/motion/planner"
)

// Listener receives session notifications for display and logging.
// Playback callbacks come from the playback goroutine.
type Listener interface {
	planner.Observer

	// AnglesUpdated is called after every successful solve, after a direct
	// angle command and after Reset
	AnglesUpdated(angles motion.JointAngles)
	Unreachable(err *kinematics.ReachabilityError)
	TransportFailed(err error)
}

// NopListener ignores every notification
type NopListener struct{}

func (NopListener) AnglesUpdated(motion.JointAngles)                        {}
func (NopListener) Unreachable(*kinematics.ReachabilityError)               {}
func (NopListener) TransportFailed(error)                                   {}
func (NopListener) PlaybackStarted(planner.Playback)                        {}
func (NopListener) PlaybackWaiting(planner.Playback, time.Time)             {}
func (NopListener) PlaybackFinished(planner.Playback, planner.FinishReason) {}

// LogListener writes notifications to a logger
type LogListener struct {
	Log zerolog.Logger
}

func (l LogListener) AnglesUpdated(angles motion.JointAngles) {
	l.Log.Info().Float64("theta1", angles.Theta1).Float64("theta2", angles.Theta2).Msg("angles updated")
}

func (l LogListener) Unreachable(err *kinematics.ReachabilityError) {
	l.Log.Warn().Stringer("target", err.Target).Stringer("reason", err.Reason).
		Float64("distance", err.Distance).Msg("target unreachable")
}

func (l LogListener) TransportFailed(err error) {
	l.Log.Error().Err(err).Msg("transport failure")
}

func (l LogListener) PlaybackStarted(p planner.Playback) {
	l.Log.Info().Str("playback", p.ID.String()).Msg("playback started")
}

func (l LogListener) PlaybackWaiting(p planner.Playback, next time.Time) {
	l.Log.Debug().Str("playback", p.ID.String()).Int("index", p.Index).
		Time("next", next).Msg("waiting for next target")
}

func (l LogListener) PlaybackFinished(p planner.Playback, reason planner.FinishReason) {
	l.Log.Info().Str("playback", p.ID.String()).Stringer("reason", reason).
		Int("sent", p.Sent).Int("skipped", p.Skipped).Int("failed", p.Failed).
		Msg("playback finished")
}
