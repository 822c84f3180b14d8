package tracker

import (
	"github.com/iliyamo/routine-tracker/internal/calendar"
	"github.com/iliyamo/routine-tracker/internal/model"
)

// DefaultStreakWindowDays is how far back streaks look.  Longer streaks are
// reported as the window length; the bound keeps the dashboard to one
// fixed-size query.
const DefaultStreakWindowDays = 180

// DaySet is the set of days on which a routine was completed.
type DaySet map[calendar.Day]struct{}

// NewDaySet collects the days of cs.
func NewDaySet(cs []model.Completion) DaySet {
	s := make(DaySet, len(cs))
	for _, c := range cs {
		s[c.Day] = struct{}{}
	}
	return s
}

// Has reports whether d is in the set.
func (s DaySet) Has(d calendar.Day) bool {
	_, ok := s[d]
	return ok
}

// Streak counts consecutive completed days walking backwards.  The walk
// starts at asOf when it is already completed and at the day before
// otherwise, so an unfinished today does not reset yesterday's streak.
func Streak(days DaySet, asOf calendar.Day, completedToday bool) int {
	cur := asOf
	if !completedToday {
		cur = asOf.AddDays(-1)
	}
	n := 0
	for days.Has(cur) {
		n++
		cur = cur.AddDays(-1)
	}
	return n
}
