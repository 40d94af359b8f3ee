package motion

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget(" 400 ", "-12.5")
	require.NoError(t, err)
	assert.Equal(t, Target{X: 400, Y: -12.5}, target)
}

func TestParseTargetRejectsBadInput(t *testing.T) {
	tests := []struct {
		x, y  string
		field string
	}{
		{"abc", "0", "x"},
		{"0", "", "y"},
		{" ", "10", "x"},
		{"NaN", "10", "x"},
		{"10", "+Inf", "y"},
	}

	for _, tc := range tests {
		_, err := ParseTarget(tc.x, tc.y)
		require.Error(t, err, "x=%q y=%q", tc.x, tc.y)

		var inputErr *InputError
		require.True(t, errors.As(err, &inputErr))
		assert.Equal(t, tc.field, inputErr.Field)
	}
}

func TestParseAngles(t *testing.T) {
	angles, err := ParseAngles("90", "-45.25")
	require.NoError(t, err)
	assert.Equal(t, JointAngles{Theta1: 90, Theta2: -45.25}, angles)

	_, err = ParseAngles("90", "ninety")
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, "theta2", inputErr.Field)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
}

func TestInputErrorMessage(t *testing.T) {
	err := &InputError{Field: "x", Value: "1,5"}
	assert.Equal(t, `invalid x "1,5"`, err.Error())
}
