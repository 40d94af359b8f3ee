package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"scara/motion"
)

var (
	ErrMissingTerminator = errors.New("command line not terminated")
	ErrFieldCount        = errors.New("command line must have exactly two fields")
	ErrLineTooLong       = errors.New("command line too long")
)

// Encode formats joint angles as a command line.
// Any value is accepted; NaN and infinities are written in their text form.
func Encode(angles motion.JointAngles) []byte {
	buf := make([]byte, 0, 24)
	buf = appendAngle(buf, angles.Theta1)
	buf = append(buf, Separator)
	buf = appendAngle(buf, angles.Theta2)
	buf = append(buf, Terminator)
	return buf
}

// appendAngle writes v with fixed precision, never as "-0.00"
func appendAngle(buf []byte, v float64) []byte {
	s := strconv.FormatFloat(v, 'f', Precision, 64)
	if s == "-0.00" {
		s = "0.00"
	}
	return append(buf, s...)
}

// Decode parses a single command line back into joint angles
func Decode(line []byte) (motion.JointAngles, error) {
	if len(line) > LineMax {
		return motion.JointAngles{}, ErrLineTooLong
	}
	if len(line) == 0 || line[len(line)-1] != Terminator {
		return motion.JointAngles{}, ErrMissingTerminator
	}

	fields := bytes.Split(bytes.TrimRight(line[:len(line)-1], "\r"), []byte{Separator})
	if len(fields) != 2 {
		return motion.JointAngles{}, ErrFieldCount
	}

	theta1, err := strconv.ParseFloat(string(fields[0]), 64)
	if err != nil {
		return motion.JointAngles{}, fmt.Errorf("failed to decode base angle: %w", err)
	}
	theta2, err := strconv.ParseFloat(string(fields[1]), 64)
	if err != nil {
		return motion.JointAngles{}, fmt.Errorf("failed to decode elbow angle: %w", err)
	}

	return motion.JointAngles{Theta1: theta1, Theta2: theta2}, nil
}
