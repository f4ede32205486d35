// Package session knows the HKEX trading calendar well enough to refuse
// orders outside continuous trading.
package session

import "time"

var hk = mustLoad("Asia/Hong_Kong")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("HKT", 8*3600)
	}
	return loc
}

// Phase names the part of the trading day a timestamp falls into.
type Phase string

const (
	PhasePreMarket  Phase = "pre_market"
	PhaseMorning    Phase = "morning"
	PhaseLunch      Phase = "lunch"
	PhaseAfternoon  Phase = "afternoon"
	PhaseAfterHours Phase = "after_hours"
	PhaseWeekend    Phase = "weekend"
)

// Guard reports whether the market accepts orders. ForceOpen bypasses
// the calendar for paper trading and tests.
type Guard struct {
	ForceOpen bool
	nowFn     func() time.Time
}

func NewGuard(forceOpen bool) *Guard {
	return &Guard{ForceOpen: forceOpen, nowFn: time.Now}
}

// NewGuardWithClock pins the guard to a clock, for tests.
func NewGuardWithClock(forceOpen bool, now func() time.Time) *Guard {
	return &Guard{ForceOpen: forceOpen, nowFn: now}
}

// Current returns the phase at t in exchange time.
func Current(t time.Time) Phase {
	t = t.In(hk)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return PhaseWeekend
	}
	mins := t.Hour()*60 + t.Minute()
	switch {
	case mins < 9*60+30:
		return PhasePreMarket
	case mins < 12*60:
		return PhaseMorning
	case mins < 13*60:
		return PhaseLunch
	case mins < 16*60:
		return PhaseAfternoon
	default:
		return PhaseAfterHours
	}
}

// Open reports whether orders can trade now, with the phase for the
// rejection message when they cannot.
func (g *Guard) Open() (bool, Phase) {
	if g.ForceOpen {
		return true, PhaseMorning
	}
	now := time.Now()
	if g.nowFn != nil {
		now = g.nowFn()
	}
	phase := Current(now)
	return phase == PhaseMorning || phase == PhaseAfternoon, phase
}
