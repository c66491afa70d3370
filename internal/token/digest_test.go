package token

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_Deterministic(t *testing.T) {
	a := Compute("A1B2C3D4", 7, 1700000000, "secret", DefaultLen)
	b := Compute("A1B2C3D4", 7, 1700000000, "secret", DefaultLen)

	assert.Equal(t, a, b)
	assert.Len(t, a.MAC, DefaultLen)
	assert.Equal(t, int64(1700000000), a.Counter)
}

func TestCompute_InputSensitivity(t *testing.T) {
	base := Compute("A1B2C3D4", 7, 1700000000, "secret", DefaultLen)

	assert.NotEqual(t, base.MAC, Compute("A1B2C3D5", 7, 1700000000, "secret", DefaultLen).MAC, "uid change")
	assert.NotEqual(t, base.MAC, Compute("A1B2C3D4", 8, 1700000000, "secret", DefaultLen).MAC, "device change")
	assert.NotEqual(t, base.MAC, Compute("A1B2C3D4", 7, 1700000001, "secret", DefaultLen).MAC, "counter change")
	assert.NotEqual(t, base.MAC, Compute("A1B2C3D4", 7, 1700000000, "other", DefaultLen).MAC, "secret change")
}

func TestCompute_UIDNormalization(t *testing.T) {
	plain := Compute("04A1B2C3", 7, 1, "secret", DefaultLen)
	seps := Compute(" 04:a1-b2:c3 ", 7, 1, "secret", DefaultLen)
	spaced := Compute("04 A1 B2 C3", 7, 1, "secret", DefaultLen)

	assert.Equal(t, plain.MAC, seps.MAC)
	assert.Equal(t, plain.MAC, spaced.MAC)
}

func TestCompute_ClampsLength(t *testing.T) {
	short := Compute("A1B2C3D4", 7, 1, "secret", 1)
	assert.Len(t, short.MAC, MinLen)

	long := Compute("A1B2C3D4", 7, 1, "secret", 1000)
	assert.Len(t, long.MAC, maxLen)
}

func TestParse_RoundTrip(t *testing.T) {
	d := Compute("A1B2C3D4", 7, 1700000000, "secret", DefaultLen)

	got, err := Parse(d.String(), DefaultLen)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestParse_AcceptsUppercaseMAC(t *testing.T) {
	got, err := Parse("42:ABCDEF012345", DefaultLen)
	require.NoError(t, err)
	assert.Equal(t, "abcdef012345", got.MAC)
	assert.Equal(t, int64(42), got.Counter)
}

func TestParse_OddLength(t *testing.T) {
	got, err := Parse("1:abcde", 5)
	require.NoError(t, err)
	assert.Equal(t, "abcde", got.MAC)
}

func TestParse_Malformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"no separator", "abcdef012345"},
		{"non-numeric counter", "x:abcdef012345"},
		{"negative counter", "-1:abcdef012345"},
		{"wrong length", "1:abcd"},
		{"non-hex digest", "1:zzzzzzzzzzzz"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.raw, DefaultLen)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat), "want ErrFormat, got %v", err)
		})
	}
}
