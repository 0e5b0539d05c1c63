package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		minutes int
		ok      bool
	}{
		{"00:00", 0, true},
		{"09:30", 570, true},
		{"23:59", 1439, true},
		{"", 0, false},
		{"9", 0, false},
		{"24:00", 0, false},
		{"12:60", 0, false},
		{"ab:cd", 0, false},
	}
	for _, tc := range cases {
		minutes, ok := ParseClock(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.minutes, minutes, tc.in)
	}
}
