package model

import (
    "time"

    "github.com/iliyamo/routine-tracker/internal/calendar"
)

// Completion records that a routine was done on a calendar day.  Rows
// only exist for completed days; absence means not completed.  The pair
// (RoutineID, Day) is unique in the `completions` table.
type Completion struct {
    ID        uint64       // completions.id
    RoutineID uint64       // completions.routine_id
    Day       calendar.Day // completions.day stored as YYYY-MM-DD
    Completed bool         // completions.completed, always true
    CreatedAt time.Time    // completions.created_at
}
