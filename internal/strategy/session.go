package strategy

import (
	"fmt"
	"time"
)

// Clock abstracts wall time so tests can drive the engine's calendar.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

// Session is the daily trading window in market-local time. Both bounds are
// inclusive offsets from local midnight.
type Session struct {
	Open     time.Duration
	Close    time.Duration
	Location *time.Location
}

// KRXSession is the regular Korea Exchange session, 09:00 to 15:30 Seoul
// time.
func KRXSession() Session {
	s, err := ParseSession("09:00", "15:30", "Asia/Seoul")
	if err != nil {
		// No zoneinfo available; Seoul has no DST so a fixed offset is exact.
		return Session{
			Open:     9 * time.Hour,
			Close:    15*time.Hour + 30*time.Minute,
			Location: time.FixedZone("KST", 9*60*60),
		}
	}
	return s
}

// AllDay is a session that never closes, for paper trading and tests.
func AllDay(loc *time.Location) Session {
	if loc == nil {
		loc = time.Local
	}
	return Session{Open: 0, Close: 24 * time.Hour, Location: loc}
}

// ParseSession builds a Session from "HH:MM" bounds and an IANA zone name.
func ParseSession(open, close, tz string) (Session, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Session{}, fmt.Errorf("session: load location %q: %w", tz, err)
	}
	o, err := clockOffset(open)
	if err != nil {
		return Session{}, fmt.Errorf("session: open: %w", err)
	}
	c, err := clockOffset(close)
	if err != nil {
		return Session{}, fmt.Errorf("session: close: %w", err)
	}
	if c <= o {
		return Session{}, fmt.Errorf("session: close %s is not after open %s", close, open)
	}
	return Session{Open: o, Close: c, Location: loc}, nil
}

func clockOffset(hhmm string) (time.Duration, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Contains reports whether t falls inside the window.
func (s Session) Contains(t time.Time) bool {
	local := t.In(s.location())
	offset := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second
	return offset >= s.Open && offset <= s.Close
}

// Day returns the market-local calendar date of t.
func (s Session) Day(t time.Time) string {
	return t.In(s.location()).Format("2006-01-02")
}

func (s Session) location() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}
