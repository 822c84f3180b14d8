package queue

import (
    "encoding/json"
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap/zaptest"
)

func TestFormatLine(t *testing.T) {
    line := FormatLine(ActivityEvent{
        Type:       EventCompletionToggled,
        UserID:     7,
        RoutineID:  3,
        Title:      "Run",
        Day:        "2024-01-05",
        Completed:  true,
        OccurredAt: "2024-01-05T08:00:00Z",
    })
    assert.Equal(t, "[2024-01-05T08:00:00Z] completion.toggled | user_id=7 | routine_id=3 | title=\"Run\" | day=2024-01-05 | completed=true\n", line)

    line = FormatLine(ActivityEvent{Type: EventRoutineDeleted, UserID: 7, RoutineID: 3, OccurredAt: "x"})
    assert.Equal(t, "[x] routine.deleted | user_id=7 | routine_id=3\n", line)
}

func TestHandleMessage_AppendsLines(t *testing.T) {
    dir := t.TempDir()
    c := &Consumer{LogPath: filepath.Join(dir, "logs", "activity.log"), Log: zaptest.NewLogger(t)}

    for _, ev := range []ActivityEvent{
        {Type: EventRoutineCreated, UserID: 1, RoutineID: 2, Title: "Read", OccurredAt: "t1"},
        {Type: EventCompletionToggled, UserID: 1, RoutineID: 2, Day: "2024-02-01", Completed: false, OccurredAt: "t2"},
    } {
        body, err := json.Marshal(ev)
        require.NoError(t, err)
        require.NoError(t, c.HandleMessage(body))
    }

    data, err := os.ReadFile(c.LogPath)
    require.NoError(t, err)
    assert.Equal(t,
        "[t1] routine.created | user_id=1 | routine_id=2 | title=\"Read\"\n"+
            "[t2] completion.toggled | user_id=1 | routine_id=2 | day=2024-02-01 | completed=false\n",
        string(data))
}

func TestHandleMessage_RejectsMalformed(t *testing.T) {
    c := &Consumer{LogPath: filepath.Join(t.TempDir(), "activity.log"), Log: zaptest.NewLogger(t)}
    assert.Error(t, c.HandleMessage([]byte("not json")))
    assert.Error(t, c.HandleMessage([]byte(`{"user_id":1}`)))
    _, err := os.Stat(c.LogPath)
    assert.True(t, os.IsNotExist(err))
}
