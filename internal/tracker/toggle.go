package tracker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/routine-tracker/internal/calendar"
	"github.com/iliyamo/routine-tracker/internal/queue"
	"github.com/iliyamo/routine-tracker/internal/repository"
)

// MaxToggleAttempts bounds the retries after losing a race to a concurrent
// toggle of the same routine and day.
const MaxToggleAttempts = 3

var errLostRace = errors.New("lost race")

// Toggle flips the completion of a routine on day: a completed day becomes
// not completed and vice versa.  A zero day means today.  It returns the
// new state.
//
// The unique key on (routine, day) arbitrates concurrent toggles.  When the
// row this call expected to create already exists, or the row it expected
// to delete is already gone, the state is re-read and the toggle retried.
// After MaxToggleAttempts the error wraps repository.ErrConflict.
func (s *Service) Toggle(ctx context.Context, userID, routineID uint64, day calendar.Day) (bool, error) {
	rt, err := s.routines.FindRoutineOwnedBy(ctx, routineID, userID)
	if err != nil {
		return false, err
	}
	if day.IsZero() {
		day = s.cal.Today()
	}

	for attempt := 1; attempt <= MaxToggleAttempts; attempt++ {
		completed, err := s.toggleOnce(ctx, rt.ID, day)
		if err == nil {
			s.emit(ctx, queue.ActivityEvent{
				Type:      queue.EventCompletionToggled,
				UserID:    userID,
				RoutineID: rt.ID,
				Title:     rt.Title,
				Day:       day.String(),
				Completed: completed,
			})
			return completed, nil
		}
		if !errors.Is(err, errLostRace) {
			return false, err
		}
		s.log.Debug("toggle lost race, retrying",
			zap.Uint64("routine_id", rt.ID), zap.String("day", day.String()), zap.Int("attempt", attempt))
	}
	return false, fmt.Errorf("toggle routine %d on %s: %w", rt.ID, day, repository.ErrConflict)
}

func (s *Service) toggleOnce(ctx context.Context, routineID uint64, day calendar.Day) (bool, error) {
	existing, err := s.completions.FindCompletion(ctx, routineID, day)
	switch {
	case err == nil:
		if err := s.completions.DeleteCompletion(ctx, existing.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return false, errLostRace
			}
			return false, fmt.Errorf("delete completion: %w", err)
		}
		return false, nil
	case errors.Is(err, repository.ErrNotFound):
		if _, err := s.completions.CreateCompletion(ctx, routineID, day); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return false, errLostRace
			}
			return false, fmt.Errorf("create completion: %w", err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("find completion: %w", err)
	}
}
