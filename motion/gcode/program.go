package gcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"

	"scara/motion"
)

var errNotFinite = errors.New("coordinate out of range")

// Program turns G-code commands into targets. It tracks the current
// position and the G90/G91 positioning mode.
type Program struct {
	parser   *Parser
	position motion.Target
	absolute bool
	ended    bool
	targets  []motion.Target
}

// NewProgram creates a program in absolute mode starting at the origin
func NewProgram() *Program {
	return &Program{
		parser:   NewParser(),
		absolute: true,
	}
}

// Execute applies one parsed command
func (p *Program) Execute(cmd *Command) error {
	if cmd == nil || p.ended {
		return nil
	}

	switch cmd.Type {
	case 'G':
		return p.executeG(cmd)
	case 'M':
		// M2/M30: program end
		if cmd.Number == 2 || cmd.Number == 30 {
			p.ended = true
		}
	}
	return nil
}

func (p *Program) executeG(cmd *Command) error {
	switch cmd.Number {
	case 0, 1: // Move
		return p.doMove(cmd)
	case 90: // Absolute positioning
		p.absolute = true
	case 91: // Relative positioning
		p.absolute = false
	case 92: // Set position
		p.position.X = cmd.GetParameter('X', p.position.X)
		p.position.Y = cmd.GetParameter('Y', p.position.Y)
	}
	return nil
}

func (p *Program) doMove(cmd *Command) error {
	hasX, hasY := cmd.HasParameter('X'), cmd.HasParameter('Y')
	if !hasX && !hasY {
		return nil
	}

	next := p.position
	if p.absolute {
		if hasX {
			next.X = cmd.Parameters['X']
		}
		if hasY {
			next.Y = cmd.Parameters['Y']
		}
	} else {
		next.X += cmd.GetParameter('X', 0)
		next.Y += cmd.GetParameter('Y', 0)
	}

	if math.IsInf(next.X, 0) || math.IsInf(next.Y, 0) {
		return errNotFinite
	}

	p.position = next
	p.targets = append(p.targets, next)
	return nil
}

// Position returns the current programmed position
func (p *Program) Position() motion.Target {
	return p.position
}

// Targets returns the targets produced so far
func (p *Program) Targets() []motion.Target {
	return p.targets
}

// LoadProgram reads a point program and returns its targets in order.
// Either every line is valid and all targets are returned, or an
// *motion.InputError names the first bad line and nothing is returned.
func LoadProgram(r io.Reader) ([]motion.Target, error) {
	prog := NewProgram()
	scanner := bufio.NewScanner(r)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		cmd, err := prog.parser.ParseLine(line)
		if err == nil {
			err = prog.Execute(cmd)
		}
		if err != nil {
			return nil, &motion.InputError{
				Field: fmt.Sprintf("line %d", lineNum),
				Value: line,
				Err:   err,
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}

	return prog.Targets(), nil
}
