// Package protocol implements the line protocol spoken by the arm controller.
//
// Each command is a single ASCII line carrying the base and elbow angles in
// degrees, rounded to two decimals:
//
//	<theta1>,<theta2>\n
//
// There is no framing beyond the newline, no escaping and no checksum.
package protocol

// Protocol constants
const (
	Separator  = ','  // Field separator
	Terminator = '\n' // Line terminator
	Precision  = 2    // Fractional digits per angle

	// LineMax bounds a decoded line; anything longer is not a command
	LineMax = 64
)
