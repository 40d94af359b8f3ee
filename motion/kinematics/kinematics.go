package kinematics

import (
	"errors"
	"fmt"

	"scara/motion"
)

// Kinematics defines the interface for coordinate transformations
type Kinematics interface {
	// Solve converts a Cartesian target to joint angles
	Solve(target motion.Target) (motion.JointAngles, error)

	// Forward converts joint angles back to an end-effector position
	Forward(angles motion.JointAngles) motion.Target

	// CheckReach validates that a target is within the reachable workspace
	CheckReach(target motion.Target) error
}

// Reason identifies which side of the workspace a target fell off
type Reason int

const (
	TooFar Reason = iota + 1
	TooNear
)

func (r Reason) String() string {
	switch r {
	case TooFar:
		return "too far"
	case TooNear:
		return "too near"
	}
	return "unknown"
}

var (
	// ErrUnreachable matches any ReachabilityError
	ErrUnreachable = errors.New("target out of reach")
	ErrTooFar      = fmt.Errorf("%w: beyond outer radius", ErrUnreachable)
	ErrTooNear     = fmt.Errorf("%w: inside inner radius", ErrUnreachable)
)

// ReachabilityError reports a target outside the arm's annulus
type ReachabilityError struct {
	Reason   Reason
	Target   motion.Target
	Distance float64 // Distance from base to target (mm)
	Limit    float64 // Radius that was violated (mm)
}

func (e *ReachabilityError) Error() string {
	return fmt.Sprintf("target %s out of reach (%s): r=%.2fmm, limit %.2fmm",
		e.Target, e.Reason, e.Distance, e.Limit)
}

// Is lets errors.Is match ErrTooFar, ErrTooNear and ErrUnreachable
func (e *ReachabilityError) Is(target error) bool {
	switch target {
	case ErrUnreachable:
		return true
	case ErrTooFar:
		return e.Reason == TooFar
	case ErrTooNear:
		return e.Reason == TooNear
	}
	return false
}
