// Package calendar holds the day arithmetic used to bucket completions.
//
// A Day is a calendar date, not an instant. Instants are mapped onto days
// through a Calendar pinned to one reference timezone; the rest of the
// application only ever sees Day values. Serving users in different
// timezones with one Calendar is a known limitation: a completion recorded
// late in the evening for one user may land on the next day for the server.
package calendar

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ISOLayout is the canonical external key of a Day.
const ISOLayout = "2006-01-02"

// ErrInvalidDate is returned by ParseISODate for anything that is not a real
// YYYY-MM-DD calendar date.
var ErrInvalidDate = errors.New("invalid date")

var isoPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Day is a calendar date. The zero value is not a valid day.
type Day struct {
	y int
	m time.Month
	d int
}

// Date builds a Day, normalizing overflowing components the way time.Date
// does (Jan 32 becomes Feb 1).
func Date(year int, month time.Month, day int) Day {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Day{y: t.Year(), m: t.Month(), d: t.Day()}
}

func (d Day) Year() int         { return d.y }
func (d Day) Month() time.Month { return d.m }
func (d Day) DayOfMonth() int   { return d.d }
func (d Day) IsZero() bool      { return d == Day{} }
func (d Day) Before(o Day) bool { return d.utc().Before(o.utc()) }
func (d Day) After(o Day) bool  { return d.utc().After(o.utc()) }
func (d Day) AddDays(n int) Day { return Date(d.y, d.m, d.d+n) }
func (d Day) utc() time.Time    { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// String returns the zero-padded ISO key, e.g. "2024-01-05".
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.y, int(d.m), d.d)
}

// Start returns midnight of the day in loc.
func (d Day) Start(loc *time.Location) time.Time {
	return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, loc)
}

// DaysBetween returns to-from in whole days.
func DaysBetween(from, to Day) int {
	return int(to.utc().Sub(from.utc()).Hours() / 24)
}

// Span lists every day of the half-open interval [from, to) in ascending
// order. It returns nil when to is not after from.
func Span(from, to Day) []Day {
	n := DaysBetween(from, to)
	if n <= 0 {
		return nil
	}
	out := make([]Day, 0, n)
	for cur := from; cur.Before(to); cur = cur.AddDays(1) {
		out = append(out, cur)
	}
	return out
}

// ParseISODate parses strictly YYYY-MM-DD. Strings that match the pattern but
// name no real date (2024-13-01, 2023-02-29) are rejected too.
func ParseISODate(s string) (Day, error) {
	if !isoPattern.MatchString(s) {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	y, _ := strconv.Atoi(s[0:4])
	m, _ := strconv.Atoi(s[5:7])
	d, _ := strconv.Atoi(s[8:10])
	day := Date(y, time.Month(m), d)
	if day.y != y || int(day.m) != m || day.d != d {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return day, nil
}

// Range is the half-open interval [Start, End) covered by one day.
type Range struct {
	Start time.Time
	End   time.Time
}

// Calendar maps instants onto days in a single reference timezone.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Calendar for loc. A nil loc means the server's local zone.
func New(loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{loc: loc, now: time.Now}
}

// WithClock returns a copy of c that reads the current time from now.
func (c *Calendar) WithClock(now func() time.Time) *Calendar {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Calendar) Location() *time.Location { return c.loc }

// Now returns the current instant in the calendar's timezone.
func (c *Calendar) Now() time.Time { return c.now().In(c.loc) }

// DayOf returns the calendar day t falls on in the reference timezone.
func (c *Calendar) DayOf(t time.Time) Day {
	t = t.In(c.loc)
	return Day{y: t.Year(), m: t.Month(), d: t.Day()}
}

// Today is DayOf(Now()).
func (c *Calendar) Today() Day { return c.DayOf(c.now()) }

// DayRange returns the bounds of the day containing t, or of today when t is
// nil. End is the next midnight, so days across a DST switch last 23 or 25
// hours.
func (c *Calendar) DayRange(t *time.Time) Range {
	ref := c.now()
	if t != nil {
		ref = *t
	}
	d := c.DayOf(ref)
	return Range{Start: d.Start(c.loc), End: d.AddDays(1).Start(c.loc)}
}

// ToISODate formats the local calendar day of t.
func (c *Calendar) ToISODate(t time.Time) string {
	return c.DayOf(t).String()
}
