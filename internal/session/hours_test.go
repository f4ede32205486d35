package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func hkTime(t *testing.T, value string) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Hong_Kong")
	if err != nil {
		loc = time.FixedZone("HKT", 8*3600)
	}
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		t.Fatalf("parse %s: %v", value, err)
	}
	return ts
}

func TestCurrentPhases(t *testing.T) {
	cases := []struct {
		at   string
		want Phase
	}{
		{"2026-08-31 08:00", PhasePreMarket}, // Monday
		{"2026-08-31 09:29", PhasePreMarket},
		{"2026-08-31 09:30", PhaseMorning},
		{"2026-08-31 11:59", PhaseMorning},
		{"2026-08-31 12:00", PhaseLunch},
		{"2026-08-31 12:59", PhaseLunch},
		{"2026-08-31 13:00", PhaseAfternoon},
		{"2026-08-31 15:59", PhaseAfternoon},
		{"2026-08-31 16:00", PhaseAfterHours},
		{"2026-08-29 10:00", PhaseWeekend}, // Saturday
		{"2026-08-30 14:00", PhaseWeekend}, // Sunday
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Current(hkTime(t, tc.at)), "at %s", tc.at)
	}
}

func TestGuardOpen(t *testing.T) {
	morning := NewGuardWithClock(false, func() time.Time { return hkTime(t, "2026-08-31 10:00") })
	open, phase := morning.Open()
	assert.True(t, open)
	assert.Equal(t, PhaseMorning, phase)

	lunch := NewGuardWithClock(false, func() time.Time { return hkTime(t, "2026-08-31 12:30") })
	open, phase = lunch.Open()
	assert.False(t, open)
	assert.Equal(t, PhaseLunch, phase)

	weekend := NewGuardWithClock(false, func() time.Time { return hkTime(t, "2026-08-30 10:00") })
	open, _ = weekend.Open()
	assert.False(t, open)
}

func TestGuardForceOpen(t *testing.T) {
	g := NewGuardWithClock(true, func() time.Time { return hkTime(t, "2026-08-30 03:00") })
	open, _ := g.Open()
	assert.True(t, open)
}

func TestCurrentConvertsToExchangeTime(t *testing.T) {
	// 02:00 UTC is 10:00 in Hong Kong.
	utc := time.Date(2026, 8, 31, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, PhaseMorning, Current(utc))
}
