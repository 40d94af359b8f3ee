// Package gcode reads point programs: plain G-code files whose G0/G1 moves
// become playback targets.
package gcode

import (
	"errors"
	"fmt"
	"strconv"
)

var errNoNumber = errors.New("missing numeric value")

// Command represents a parsed G-code command
type Command struct {
	Type       byte             // 'G', 'M', 'T'
	Number     int              // Command number (e.g., 0 for G0, 90 for G90)
	Parameters map[byte]float64 // Parameters (X, Y, P, etc.)
	Comment    string           // Comment text
}

// HasParameter checks if a parameter exists in the command
func (cmd *Command) HasParameter(param byte) bool {
	_, ok := cmd.Parameters[param]
	return ok
}

// GetParameter gets a parameter value, or returns the default if not present
func (cmd *Command) GetParameter(param byte, defaultValue float64) float64 {
	if val, ok := cmd.Parameters[param]; ok {
		return val
	}
	return defaultValue
}

// Parser handles G-code parsing
type Parser struct{}

// NewParser creates a new G-code parser
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine parses a single line of G-code.
// Blank lines return a nil command; a parameter letter without a number is an error.
func (p *Parser) ParseLine(line string) (*Command, error) {
	if len(line) == 0 {
		return nil, nil
	}

	cmd := &Command{
		Parameters: make(map[byte]float64),
	}

	i := skipSpace(line, 0)
	if i >= len(line) {
		return nil, nil
	}

	// Check for comment
	if line[i] == ';' || line[i] == '(' {
		cmd.Comment = line[i:]
		return cmd, nil
	}

	// Parse command type (G, M, T)
	if c := toUpper(line[i]); c == 'G' || c == 'M' || c == 'T' {
		cmd.Type = c
		i++

		num, next, err := parseInt(line, i)
		if err != nil {
			return nil, fmt.Errorf("%c code: %w", cmd.Type, err)
		}
		cmd.Number = num
		i = next
	}

	// Parse parameters
	for {
		i = skipSpace(line, i)
		if i >= len(line) {
			break
		}

		// Check for comment
		if line[i] == ';' || line[i] == '(' {
			cmd.Comment = line[i:]
			break
		}

		if !isLetter(line[i]) {
			return nil, fmt.Errorf("unexpected character %q at column %d", line[i], i+1)
		}

		letter := toUpper(line[i])
		i++

		value, next, err := parseFloat(line, i)
		if err != nil {
			return nil, fmt.Errorf("parameter %c: %w", letter, err)
		}
		cmd.Parameters[letter] = value
		i = next
	}

	return cmd, nil
}

func skipSpace(s string, pos int) int {
	for pos < len(s) && (s[pos] == ' ' || s[pos] == '\t' || s[pos] == '\r') {
		pos++
	}
	return pos
}

// numberSpan returns the end of the signed decimal starting at pos, or pos
// when there is none. A lone sign or dot is not a number.
func numberSpan(s string, pos int, allowFraction bool) int {
	i := pos
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}

	if allowFraction && i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}

	if digits == 0 {
		return pos
	}
	return i
}

// parseInt parses an integer at pos and returns it with the position after it
func parseInt(s string, pos int) (int, int, error) {
	end := numberSpan(s, pos, false)
	if end == pos {
		return 0, pos, errNoNumber
	}
	v, err := strconv.Atoi(s[pos:end])
	return v, end, err
}

// parseFloat parses a decimal at pos and returns it with the position after it
func parseFloat(s string, pos int) (float64, int, error) {
	end := numberSpan(s, pos, true)
	if end == pos {
		return 0, pos, errNoNumber
	}
	v, err := strconv.ParseFloat(s[pos:end], 64)
	if err != nil {
		// Out of range values come back as ±Inf and are rejected by the caller
		var ne *strconv.NumError
		if !errors.As(err, &ne) || ne.Err != strconv.ErrRange {
			return 0, end, err
		}
	}
	return v, end, nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isLetter checks if a byte is a letter
func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// toUpper converts a byte to uppercase
func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
