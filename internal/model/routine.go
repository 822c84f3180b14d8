package model

import "time"

// Routine represents a habit a user tracks once per day.  It corresponds
// to a row in the `routines` table.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the routine; every query is scoped by it.
//  Title     – display title, never blank.
//  Color     – one of Palette.
//  CreatedAt – timestamp when the routine was created.
//  UpdatedAt – timestamp of last update.
type Routine struct {
    ID        uint64    // routines.id
    UserID    uint64    // routines.user_id
    Title     string    // routines.title
    Color     string    // routines.color
    CreatedAt time.Time // routines.created_at
    UpdatedAt time.Time // routines.updated_at
}

// RoutinePatch carries the optional fields of an update.  Nil means
// "leave unchanged".
type RoutinePatch struct {
    Title *string
    Color *string
}

// Empty reports whether the patch changes nothing.
func (p RoutinePatch) Empty() bool { return p.Title == nil && p.Color == nil }
