package tracker

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/iliyamo/routine-tracker/internal/calendar"
)

// Sliding history window bounds, in days.
const (
	MinWindowDays     = 7
	MaxWindowDays     = 180
	DefaultWindowDays = 28

	// MaxRangeDays caps explicit from/to requests.
	MaxRangeDays = 366
)

// DayStatus is one entry of a projected history.
type DayStatus struct {
	Day       calendar.Day
	Completed bool
}

// ClampWindow bounds a requested window length to [MinWindowDays, MaxWindowDays].
func ClampWindow(n int) int {
	return min(max(n, MinWindowDays), MaxWindowDays)
}

// ParseWindow reads the "days" query value.  Fractions are truncated and
// the result clamped.  Empty, non-numeric and non-finite input falls back to
// DefaultWindowDays.
func ParseWindow(raw string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return DefaultWindowDays
	}
	// clamp before converting so huge values cannot overflow int
	f = math.Max(MinWindowDays, math.Min(MaxWindowDays, f))
	return ClampWindow(int(f))
}

// ParseRange validates an explicit [from, to) pair of ISO dates.
func ParseRange(fromKey, toKey string) (calendar.Day, calendar.Day, error) {
	from, err := calendar.ParseISODate(fromKey)
	if err != nil {
		return calendar.Day{}, calendar.Day{}, fmt.Errorf("%w: from: %w", ErrInvalidRange, err)
	}
	to, err := calendar.ParseISODate(toKey)
	if err != nil {
		return calendar.Day{}, calendar.Day{}, fmt.Errorf("%w: to: %w", ErrInvalidRange, err)
	}
	if !to.After(from) {
		return calendar.Day{}, calendar.Day{}, fmt.Errorf("%w: to must be after from", ErrInvalidRange)
	}
	if calendar.DaysBetween(from, to) > MaxRangeDays {
		return calendar.Day{}, calendar.Day{}, fmt.Errorf("%w: more than %d days", ErrInvalidRange, MaxRangeDays)
	}
	return from, to, nil
}

// Window returns the [from, to) range of the n days ending today, today
// included.  n is clamped first.
func (s *Service) Window(n int) (calendar.Day, calendar.Day) {
	n = ClampWindow(n)
	today := s.cal.Today()
	return today.AddDays(-(n - 1)), today.AddDays(1)
}

// ProjectDays turns a set of completed days into a dense, ascending
// sequence covering [from, to).  Days outside the set are emitted as not
// completed.
func ProjectDays(days DaySet, from, to calendar.Day) []DayStatus {
	span := calendar.Span(from, to)
	out := make([]DayStatus, len(span))
	for i, d := range span {
		out[i] = DayStatus{Day: d, Completed: days.Has(d)}
	}
	return out
}

// Project loads the completions of a routine and projects them over
// [from, to).  The caller must have checked ownership already; History is
// the ownership-checked entry point.
func (s *Service) Project(ctx context.Context, routineID uint64, from, to calendar.Day) ([]DayStatus, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: %s..%s", ErrInvalidRange, from, to)
	}
	cs, err := s.completions.ListCompletions(ctx, routineID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	return ProjectDays(NewDaySet(cs), from, to), nil
}

// History is Project for a routine owned by userID.
func (s *Service) History(ctx context.Context, userID, routineID uint64, from, to calendar.Day) ([]DayStatus, error) {
	if _, err := s.routines.FindRoutineOwnedBy(ctx, routineID, userID); err != nil {
		return nil, err
	}
	return s.Project(ctx, routineID, from, to)
}
