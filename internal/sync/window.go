package sync

import (
	"fmt"
	"time"
)

const clockLayout = "15:04"

// Window is a daily time-of-day range during which scheduled cycles may
// start. End before Start wraps past midnight; Start equal to End is open
// all day.
type Window struct {
	start    time.Duration
	end      time.Duration
	location *time.Location
}

// ParseWindow builds a window from HH:MM clock times. An empty location
// means UTC.
func ParseWindow(start, end, location string) (*Window, error) {
	s, err := parseClock(start)
	if err != nil {
		return nil, fmt.Errorf("invalid window start: %w", err)
	}
	e, err := parseClock(end)
	if err != nil {
		return nil, fmt.Errorf("invalid window end: %w", err)
	}
	loc := time.UTC
	if location != "" {
		if loc, err = time.LoadLocation(location); err != nil {
			return nil, fmt.Errorf("invalid window location: %w", err)
		}
	}
	return &Window{start: s, end: e, location: loc}, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse(clockLayout, v)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (w *Window) sinceMidnight(t time.Time) (time.Time, time.Duration) {
	local := t.In(w.location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.location)
	return midnight, local.Sub(midnight)
}

// Contains reports whether t falls inside the window. A nil window always
// contains t.
func (w *Window) Contains(t time.Time) bool {
	if w == nil || w.start == w.end {
		return true
	}
	_, off := w.sinceMidnight(t)
	if w.start < w.end {
		return off >= w.start && off < w.end
	}
	return off >= w.start || off < w.end
}

// NextStart returns t when the window is open, otherwise the next time it
// opens.
func (w *Window) NextStart(t time.Time) time.Time {
	if w.Contains(t) {
		return t
	}
	midnight, off := w.sinceMidnight(t)
	if off < w.start {
		return midnight.Add(w.start)
	}
	return midnight.AddDate(0, 0, 1).Add(w.start)
}

func (w *Window) String() string {
	if w == nil {
		return "always"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d %s",
		int(w.start.Hours()), int(w.start.Minutes())%60,
		int(w.end.Hours()), int(w.end.Minutes())%60,
		w.location)
}
