package kinematics

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"scara/motion"
)

// Scara implements two-link planar kinematics.
// The solver always picks the elbow-up branch (Theta2 in [0°, 180°]).
type Scara struct {
	l1 float64
	l2 float64
}

// NewScara creates a solver for the given link lengths in millimeters
func NewScara(l1, l2 float64) (*Scara, error) {
	if !(l1 > 0) || math.IsInf(l1, 0) {
		return nil, errors.New("link 1 length must be a positive finite number")
	}
	if !(l2 > 0) || math.IsInf(l2, 0) {
		return nil, errors.New("link 2 length must be a positive finite number")
	}

	return &Scara{l1: l1, l2: l2}, nil
}

// Links returns the link lengths
func (k *Scara) Links() (l1, l2 float64) {
	return k.l1, k.l2
}

// Annulus returns the inner and outer radius of the reachable workspace
func (k *Scara) Annulus() (inner, outer float64) {
	return math.Abs(k.l1 - k.l2), k.l1 + k.l2
}

// CheckReach validates that the target lies inside the annulus.
// Both boundaries are reachable (fully folded / fully extended).
func (k *Scara) CheckReach(target motion.Target) error {
	r := r2.Norm(r2.Vec{X: target.X, Y: target.Y})
	inner, outer := k.Annulus()

	// NaN fails both comparisons below, so test the accepted range instead
	if !(r <= outer) {
		return &ReachabilityError{Reason: TooFar, Target: target, Distance: r, Limit: outer}
	}
	if r < inner {
		return &ReachabilityError{Reason: TooNear, Target: target, Distance: r, Limit: inner}
	}

	return nil
}

// Solve converts a Cartesian target to joint angles
func (k *Scara) Solve(target motion.Target) (motion.JointAngles, error) {
	if err := k.CheckReach(target); err != nil {
		return motion.JointAngles{}, err
	}

	x, y := target.X, target.Y
	r2sq := x*x + y*y

	// Law of cosines; rounding at the boundaries can push the ratio past ±1
	cosElbow := (r2sq - k.l1*k.l1 - k.l2*k.l2) / (2 * k.l1 * k.l2)
	cosElbow = math.Max(-1, math.Min(1, cosElbow))
	elbow := math.Acos(cosElbow)

	k1 := k.l1 + k.l2*math.Cos(elbow)
	k2 := k.l2 * math.Sin(elbow)
	base := math.Atan2(y, x) - math.Atan2(k2, k1)

	return motion.JointAngles{
		Theta1: degrees(base),
		Theta2: degrees(elbow),
	}, nil
}

// Forward computes the end-effector position for the given joint angles
func (k *Scara) Forward(angles motion.JointAngles) motion.Target {
	base := radians(angles.Theta1)
	elbow := base + radians(angles.Theta2)

	shoulder := r2.Scale(k.l1, r2.Vec{X: math.Cos(base), Y: math.Sin(base)})
	end := r2.Add(shoulder, r2.Scale(k.l2, r2.Vec{X: math.Cos(elbow), Y: math.Sin(elbow)}))

	return motion.Target{X: end.X, Y: end.Y}
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
