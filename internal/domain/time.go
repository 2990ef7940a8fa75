package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the cumulative-time dimension's capacity (§4.2).
const MinutesPerDay = 1440

// TimeStrToMinutes converts a "HH:MM" clock string to minutes since midnight.
func TimeStrToMinutes(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return h*60 + m, nil
}

// MinutesToTimeStr converts minutes since midnight to a "HH:MM" clock
// string, wrapping at 24h.
func MinutesToTimeStr(minutes int) string {
	minutes = ((minutes % MinutesPerDay) + MinutesPerDay) % MinutesPerDay
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// AddMinutesToTimeStr adds minutes to a "HH:MM" string, wrapping at 24h.
func AddMinutesToTimeStr(s string, minutes int) (string, error) {
	base, err := TimeStrToMinutes(s)
	if err != nil {
		return "", err
	}
	return MinutesToTimeStr(base + minutes), nil
}
