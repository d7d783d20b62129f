package util

import (
	"fmt"
	"time"
)

// DateKeyLayout is the layout of calendar date keys.
const DateKeyLayout = "2006-01-02"

// Clock derives calendar date keys in a fixed location. Cache entries are
// keyed by the local calendar date at computation time, so the location
// decides when "today" rolls over.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock creates a Clock for the given location. A nil location means
// time.Local.
func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.Local
	}
	return &Clock{loc: loc, now: time.Now}
}

// LoadClock creates a Clock from an IANA zone name. "" and "Local" select
// time.Local.
func LoadClock(name string) (*Clock, error) {
	if name == "" || name == "Local" {
		return NewClock(time.Local), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", name, err)
	}
	return NewClock(loc), nil
}

// WithNow returns a copy of the clock that reads the current time from now.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	return &Clock{loc: c.loc, now: now}
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Location returns the clock's location.
func (c *Clock) Location() *time.Location { return c.loc }

// DateKey returns the calendar date of t in the clock's location.
func (c *Clock) DateKey(t time.Time) string {
	return t.In(c.loc).Format(DateKeyLayout)
}

// Today returns the date key for the current time.
func (c *Clock) Today() string {
	return c.DateKey(c.now())
}

// UntilNextDay returns the time left from t until the next local midnight.
func (c *Clock) UntilNextDay(t time.Time) time.Duration {
	local := t.In(c.loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.loc)
	return next.Sub(local)
}
