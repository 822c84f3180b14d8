package handler

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/routine-tracker/internal/calendar"
    "github.com/iliyamo/routine-tracker/internal/tracker"
)

// RoutineHandler serves the /routines endpoints.
type RoutineHandler struct {
    Tracker *tracker.Service
    Log     *zap.Logger
}

// NewRoutineHandler panics when svc is nil.
func NewRoutineHandler(svc *tracker.Service, log *zap.Logger) *RoutineHandler {
    if svc == nil {
        panic("nil tracker passed to NewRoutineHandler")
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &RoutineHandler{Tracker: svc, Log: log}
}

type routineItem struct {
    ID             uint64 `json:"id"`
    Title          string `json:"title"`
    Color          string `json:"color"`
    TodayCompleted bool   `json:"todayCompleted"`
    Streak         int    `json:"streak"`
}

type historyItem struct {
    Date      string `json:"date"`
    Completed bool   `json:"completed"`
}

type historyResp struct {
    Days    *int          `json:"days,omitempty"`
    History []historyItem `json:"history"`
}

// List handles GET /routines.  ?date=YYYY-MM-DD views another day; an
// unparsable date falls back to today.
func (h *RoutineHandler) List(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    var day calendar.Day
    if key := strings.TrimSpace(c.QueryParam("date")); key != "" {
        day, _ = calendar.ParseISODate(key)
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    rows, err := h.Tracker.Dashboard(ctx, uid, day)
    if err != nil {
        return respondError(c, h.Log, err)
    }

    out := make([]routineItem, len(rows))
    for i, r := range rows {
        out[i] = routineItem{
            ID:             r.Routine.ID,
            Title:          r.Routine.Title,
            Color:          r.Routine.Color,
            TodayCompleted: r.TodayCompleted,
            Streak:         r.Streak,
        }
    }
    return c.JSON(http.StatusOK, echo.Map{"routines": out})
}

// Create handles POST /routines.
func (h *RoutineHandler) Create(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    var body struct {
        Title string `json:"title"`
        Color string `json:"color"`
    }
    if err := c.Bind(&body); err != nil {
        return jsonError(c, http.StatusBadRequest, "invalid request body")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    rt, err := h.Tracker.CreateRoutine(ctx, uid, body.Title, body.Color)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"id": rt.ID})
}

// Update handles PATCH /routines/:id.  Only title and color can change.
func (h *RoutineHandler) Update(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    id, ok := routineID(c)
    if !ok {
        return jsonError(c, http.StatusBadRequest, "invalid id")
    }
    var body struct {
        Title *string `json:"title"`
        Color *string `json:"color"`
    }
    if err := c.Bind(&body); err != nil {
        return jsonError(c, http.StatusBadRequest, "invalid request body")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Tracker.UpdateRoutine(ctx, uid, id, body.Title, body.Color); err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Delete handles DELETE /routines/:id and removes its completions too.
func (h *RoutineHandler) Delete(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    id, ok := routineID(c)
    if !ok {
        return jsonError(c, http.StatusBadRequest, "invalid id")
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if err := h.Tracker.DeleteRoutine(ctx, uid, id); err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Check handles POST /routines/:id/check.  The day comes from ?date=, else
// from a JSON body {"date": ...}, else today.
func (h *RoutineHandler) Check(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    id, ok := routineID(c)
    if !ok {
        return jsonError(c, http.StatusBadRequest, "invalid id")
    }

    key := strings.TrimSpace(c.QueryParam("date"))
    if key == "" {
        var body struct {
            Date string `json:"date"`
        }
        if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
            return jsonError(c, http.StatusBadRequest, "invalid request body")
        }
        key = strings.TrimSpace(body.Date)
    }
    var day calendar.Day
    if key != "" {
        if day, err = calendar.ParseISODate(key); err != nil {
            return respondError(c, h.Log, err)
        }
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    if day.IsZero() {
        day = h.Tracker.Calendar().Today()
    }
    done, err := h.Tracker.Toggle(ctx, uid, id, day)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"todayCompleted": done, "date": day.String()})
}

// History handles GET /routines/:id/history.  Either from and to (ISO
// dates, to exclusive) or days (sliding window ending today) select the
// range.
func (h *RoutineHandler) History(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    id, ok := routineID(c)
    if !ok {
        return jsonError(c, http.StatusBadRequest, "invalid id")
    }

    var resp historyResp
    var from, to calendar.Day
    fromKey, toKey := c.QueryParam("from"), c.QueryParam("to")
    if fromKey != "" && toKey != "" {
        if from, to, err = tracker.ParseRange(fromKey, toKey); err != nil {
            return respondError(c, h.Log, err)
        }
    } else {
        n := tracker.ParseWindow(c.QueryParam("days"))
        resp.Days = &n
        from, to = h.Tracker.Window(n)
    }

    ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
    defer cancel()
    days, err := h.Tracker.History(ctx, uid, id, from, to)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    resp.History = make([]historyItem, len(days))
    for i, d := range days {
        resp.History[i] = historyItem{Date: d.Day.String(), Completed: d.Completed}
    }
    return c.JSON(http.StatusOK, resp)
}
