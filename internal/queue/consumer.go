// Package queue contains the background consumer that listens to the
// routine.activity queue and appends one line per event to an activity log.
package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Consumer drains ActivityQueueName into a log file.
type Consumer struct {
    URL     string
    LogPath string
    Log     *zap.Logger
}

// Run connects to RabbitMQ, declares the queue (durable), and consumes
// messages until ctx is cancelled.  Broker failures are retried with
// exponential backoff; a malformed message is rejected without requeue so
// the loop keeps going.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.Log.Warn("activity-consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return nil
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        c.Log.Warn("activity-consumer: consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return nil
        }
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.Log.Warn("activity-consumer: set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(ActivityQueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.ConsumeWithContext(ctx, ActivityQueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for d := range msgs {
        if err := c.HandleMessage(d.Body); err != nil {
            c.Log.Warn("activity-consumer: handle message failed", zap.Error(err))
            _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
            continue
        }
        _ = d.Ack(false)
    }
    return errors.New("deliveries channel closed")
}

// HandleMessage decodes one ActivityEvent and appends it to LogPath.
func (c *Consumer) HandleMessage(body []byte) error {
    var ev ActivityEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" {
        return errors.New("event without type")
    }
    if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(FormatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// FormatLine renders an event as a single human-friendly log line.
func FormatLine(ev ActivityEvent) string {
    line := fmt.Sprintf("[%s] %s | user_id=%d | routine_id=%d", ev.OccurredAt, ev.Type, ev.UserID, ev.RoutineID)
    if ev.Title != "" {
        line += fmt.Sprintf(" | title=%q", ev.Title)
    }
    if ev.Type == EventCompletionToggled {
        line += fmt.Sprintf(" | day=%s | completed=%t", ev.Day, ev.Completed)
    }
    return line + "\n"
}
