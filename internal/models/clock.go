package models

import (
	"strconv"
	"strings"
)

// ParseClock parses an "HH:MM" wall-clock string into minutes since midnight.
// Session work hours and tenant quiet hours are both stored in this form.
func ParseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}
