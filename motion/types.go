package motion

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Target represents an end-effector position in millimeters,
// with the origin at the arm's base joint
type Target struct {
	X float64
	Y float64
}

// String formats the target as "(x, y)"
func (t Target) String() string {
	return fmt.Sprintf("(%g, %g)", t.X, t.Y)
}

// JointAngles holds the two joint angles in degrees.
// Theta1 is measured from the positive X axis, Theta2 relative to the first link.
type JointAngles struct {
	Theta1 float64 // Base angle
	Theta2 float64 // Elbow angle
}

// String formats the angles for display
func (a JointAngles) String() string {
	return fmt.Sprintf("θ1=%.2f° θ2=%.2f°", a.Theta1, a.Theta2)
}

// InputError reports numeric text from an adapter that could not be used
type InputError struct {
	Field string // Name of the offending field (e.g. "x", "theta1")
	Value string // Raw text as received
	Err   error  // Underlying parse error, if any
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// ParseNumber parses a finite decimal number entered for the named field
func ParseNumber(field, text string) (float64, error) {
	s := strings.TrimSpace(text)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var ne *strconv.NumError
		if errors.As(err, &ne) {
			err = ne.Err
		}
		return 0, &InputError{Field: field, Value: text, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &InputError{Field: field, Value: text, Err: errNotFinite}
	}
	return v, nil
}

// ParseTarget parses X and Y coordinate text into a Target.
// Nothing is returned unless both values are valid.
func ParseTarget(xText, yText string) (Target, error) {
	x, err := ParseNumber("x", xText)
	if err != nil {
		return Target{}, err
	}
	y, err := ParseNumber("y", yText)
	if err != nil {
		return Target{}, err
	}
	return Target{X: x, Y: y}, nil
}

// ParseAngles parses base and elbow angle text into JointAngles
func ParseAngles(theta1Text, theta2Text string) (JointAngles, error) {
	t1, err := ParseNumber("theta1", theta1Text)
	if err != nil {
		return JointAngles{}, err
	}
	t2, err := ParseNumber("theta2", theta2Text)
	if err != nil {
		return JointAngles{}, err
	}
	return JointAngles{Theta1: t1, Theta2: t2}, nil
}

var errNotFinite = errors.New("value must be finite")
