// Package tracker implements routines, daily completion toggling, streaks
// and history projection on top of the repository stores.  Every entry
// point takes the requesting user's id explicitly; there is no ambient
// identity.
package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iliyamo/routine-tracker/internal/calendar"
	"github.com/iliyamo/routine-tracker/internal/model"
	"github.com/iliyamo/routine-tracker/internal/queue"
)

// MaxTitleLength is the longest accepted routine title, in runes.
const MaxTitleLength = 200

// RoutineStore is the subset of the routine repository the service uses.
type RoutineStore interface {
	Create(ctx context.Context, rt *model.Routine) error
	FindRoutineOwnedBy(ctx context.Context, id, userID uint64) (*model.Routine, error)
	ListByUser(ctx context.Context, userID uint64) ([]*model.Routine, error)
	Update(ctx context.Context, id, userID uint64, patch model.RoutinePatch) error
	DeleteByIDAndUser(ctx context.Context, id, userID uint64) error
}

// CompletionStore is the subset of the completion repository the service uses.
type CompletionStore interface {
	FindCompletion(ctx context.Context, routineID uint64, day calendar.Day) (*model.Completion, error)
	CreateCompletion(ctx context.Context, routineID uint64, day calendar.Day) (*model.Completion, error)
	DeleteCompletion(ctx context.Context, id uint64) error
	ListCompletions(ctx context.Context, routineID uint64, from, to calendar.Day) ([]model.Completion, error)
	ListCompletionsFor(ctx context.Context, routineIDs []uint64, from, to calendar.Day) (map[uint64][]model.Completion, error)
}

// EventPublisher receives activity events.  Failures are logged, never
// returned to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ActivityEvent) error
}

// Options tune a Service.  Zero values select the defaults.
type Options struct {
	StreakWindowDays int
	Events           EventPublisher
	Logger           *zap.Logger
}

// Service is the routine tracker.
type Service struct {
	routines    RoutineStore
	completions CompletionStore
	cal         *calendar.Calendar
	window      int
	events      EventPublisher
	log         *zap.Logger
}

// New wires a Service.
func New(routines RoutineStore, completions CompletionStore, cal *calendar.Calendar, opts Options) *Service {
	if routines == nil || completions == nil || cal == nil {
		panic("tracker: nil dependency passed to New")
	}
	s := &Service{
		routines:    routines,
		completions: completions,
		cal:         cal,
		window:      opts.StreakWindowDays,
		events:      opts.Events,
		log:         opts.Logger,
	}
	if s.window <= 0 {
		s.window = DefaultStreakWindowDays
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Calendar exposes the reference calendar so handlers parse and default
// days the same way the service does.
func (s *Service) Calendar() *calendar.Calendar { return s.cal }

// RoutineSummary is one dashboard row.
type RoutineSummary struct {
	Routine        *model.Routine
	TodayCompleted bool
	Streak         int
}

// Dashboard lists the user's routines with the completion state of day and
// the current streak.  A zero day means today.  All completions come from
// one batched query over the streak window.
func (s *Service) Dashboard(ctx context.Context, userID uint64, day calendar.Day) ([]RoutineSummary, error) {
	if day.IsZero() {
		day = s.cal.Today()
	}
	routines, err := s.routines.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	ids := make([]uint64, len(routines))
	for i, rt := range routines {
		ids[i] = rt.ID
	}
	grouped, err := s.completions.ListCompletionsFor(ctx, ids, day.AddDays(-s.window), day.AddDays(1))
	if err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}

	out := make([]RoutineSummary, len(routines))
	for i, rt := range routines {
		set := NewDaySet(grouped[rt.ID])
		done := set.Has(day)
		out[i] = RoutineSummary{Routine: rt, TodayCompleted: done, Streak: Streak(set, day, done)}
	}
	return out, nil
}

// ComputeStreak returns the streak of one routine as of asOf, looking back
// at most the configured window.  Ownership must be checked by the caller.
func (s *Service) ComputeStreak(ctx context.Context, routineID uint64, asOf calendar.Day, completedToday bool) (int, error) {
	cs, err := s.completions.ListCompletions(ctx, routineID, asOf.AddDays(-s.window), asOf.AddDays(1))
	if err != nil {
		return 0, fmt.Errorf("list completions: %w", err)
	}
	return Streak(NewDaySet(cs), asOf, completedToday), nil
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrTitleTooLong
	}
	return title, nil
}

// CreateRoutine stores a new routine for userID.  An unknown colour falls
// back to model.DefaultColor.
func (s *Service) CreateRoutine(ctx context.Context, userID uint64, title, color string) (*model.Routine, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	rt := &model.Routine{UserID: userID, Title: title, Color: model.ColorOrDefault(color)}
	if err := s.routines.Create(ctx, rt); err != nil {
		return nil, fmt.Errorf("create routine: %w", err)
	}
	s.emit(ctx, queue.ActivityEvent{Type: queue.EventRoutineCreated, UserID: userID, RoutineID: rt.ID, Title: rt.Title})
	return rt, nil
}

// UpdateRoutine changes title and/or colour.  A blank title is ignored as in
// "not provided"; a colour outside the palette is rejected.
func (s *Service) UpdateRoutine(ctx context.Context, userID, routineID uint64, title, color *string) error {
	var patch model.RoutinePatch
	if title != nil && strings.TrimSpace(*title) != "" {
		t, err := normalizeTitle(*title)
		if err != nil {
			return err
		}
		patch.Title = &t
	}
	if color != nil {
		if !model.ValidColor(*color) {
			return fmt.Errorf("%w: %q", ErrInvalidColor, *color)
		}
		c := *color
		patch.Color = &c
	}
	if patch.Empty() {
		return ErrNoChanges
	}
	if err := s.routines.Update(ctx, routineID, userID, patch); err != nil {
		return err
	}
	s.emit(ctx, queue.ActivityEvent{Type: queue.EventRoutineUpdated, UserID: userID, RoutineID: routineID})
	return nil
}

// DeleteRoutine removes a routine and its completions.
func (s *Service) DeleteRoutine(ctx context.Context, userID, routineID uint64) error {
	if err := s.routines.DeleteByIDAndUser(ctx, routineID, userID); err != nil {
		return err
	}
	s.emit(ctx, queue.ActivityEvent{Type: queue.EventRoutineDeleted, UserID: userID, RoutineID: routineID})
	return nil
}

func (s *Service) emit(ctx context.Context, ev queue.ActivityEvent) {
	if s.events == nil {
		return
	}
	now := s.cal.Now()
	ev.OccurredAt = now.UTC().Format(time.RFC3339)
	ev.LocalDay = s.cal.ToISODate(now)
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish activity event failed",
			zap.String("type", ev.Type), zap.Uint64("routine_id", ev.RoutineID), zap.Error(err))
	}
}
