// Package service provides the RabbitMQ publisher for domain events.
// Publish only enqueues; a background worker owns the broker connection,
// so a slow or unreachable broker never holds up a request.
package service

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    q "github.com/iliyamo/routine-tracker/internal/queue"
)

// Publisher tuning.
const (
    DefaultDialTimeout    = 3 * time.Second
    DefaultPublishTimeout = 3 * time.Second
    DefaultQueueSize      = 256

    // redialBackoff is how long the worker drops events after a failed dial.
    redialBackoff = 5 * time.Second
)

var (
    // ErrQueueFull is returned by Publish when the worker is falling behind.
    ErrQueueFull = errors.New("event queue full")
    // ErrPublisherClosed is returned by Publish after Close.
    ErrPublisherClosed = errors.New("publisher closed")
)

// Publisher publishes ActivityEvents to the routine.activity queue.
type Publisher struct {
    url            string
    log            *zap.Logger
    dialTimeout    time.Duration
    publishTimeout time.Duration

    queue chan q.ActivityEvent
    stop  chan struct{}
    done  chan struct{}
    once  sync.Once

    // owned by the worker goroutine
    conn    *amqp.Connection
    ch      *amqp.Channel
    retryAt time.Time
}

// NewPublisher starts a Publisher for the broker at url.  Nothing is dialled
// until the first event arrives.  Close stops the worker.
func NewPublisher(url string, log *zap.Logger) *Publisher {
    return newPublisher(url, log, DefaultDialTimeout, DefaultQueueSize)
}

func newPublisher(url string, log *zap.Logger, dialTimeout time.Duration, size int) *Publisher {
    if log == nil {
        log = zap.NewNop()
    }
    p := &Publisher{
        url:            url,
        log:            log,
        dialTimeout:    dialTimeout,
        publishTimeout: DefaultPublishTimeout,
        queue:          make(chan q.ActivityEvent, size),
        stop:           make(chan struct{}),
        done:           make(chan struct{}),
    }
    go p.run()
    return p
}

// Publish hands event to the worker without blocking.  Delivery failures
// are logged by the worker.
func (p *Publisher) Publish(ctx context.Context, event q.ActivityEvent) error {
    select {
    case <-p.stop:
        return ErrPublisherClosed
    case <-ctx.Done():
        return ctx.Err()
    default:
    }
    select {
    case p.queue <- event:
        return nil
    default:
        p.log.Warn("rabbitmq: event dropped", zap.String("type", event.Type), zap.Error(ErrQueueFull))
        return ErrQueueFull
    }
}

// Close stops the worker, dropping queued events, and releases the broker
// connection.  It waits at most for one in-flight dial or publish.
func (p *Publisher) Close() error {
    p.once.Do(func() { close(p.stop) })
    <-p.done
    if dropped := len(p.queue); dropped > 0 {
        p.log.Warn("rabbitmq: events dropped on close", zap.Int("count", dropped))
    }
    return p.reset()
}

func (p *Publisher) run() {
    defer close(p.done)
    for {
        select {
        case <-p.stop:
            return
        case ev := <-p.queue:
            if err := p.send(ev); err != nil {
                p.log.Warn("rabbitmq: publish failed",
                    zap.String("type", ev.Type), zap.Uint64("routine_id", ev.RoutineID), zap.Error(err))
            }
        }
    }
}

func (p *Publisher) send(ev q.ActivityEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }
    ch, err := p.channel()
    if err != nil {
        return err
    }

    ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
    defer cancel()
    err = ch.PublishWithContext(ctx,
        "",                  // default exchange
        q.ActivityQueueName, // routing key = queue name
        false,               // mandatory
        false,               // immediate
        amqp.Publishing{
            ContentType:  "application/json",
            DeliveryMode: amqp.Persistent,
            Timestamp:    time.Now().UTC(),
            Type:         ev.Type,
            Body:         body,
        })
    if err != nil {
        _ = p.reset()
        return fmt.Errorf("publish: %w", err)
    }
    return nil
}

// channel returns an open channel, dialling with a bounded handshake when
// needed.  After a failed dial it refuses to redial until redialBackoff.
func (p *Publisher) channel() (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() {
        return p.ch, nil
    }
    if p.conn == nil || p.conn.IsClosed() {
        if wait := time.Until(p.retryAt); wait > 0 {
            return nil, fmt.Errorf("dial: broker unavailable, retry in %s", wait.Round(time.Second))
        }
        conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.dialTimeout)})
        if err != nil {
            p.retryAt = time.Now().Add(redialBackoff)
            return nil, fmt.Errorf("dial: %w", err)
        }
        p.conn = conn
    }
    ch, err := p.conn.Channel()
    if err != nil {
        _ = p.reset()
        return nil, fmt.Errorf("channel open: %w", err)
    }
    if _, err := ch.QueueDeclare(q.ActivityQueueName, true, false, false, false, nil); err != nil {
        _ = ch.Close()
        return nil, fmt.Errorf("queue declare: %w", err)
    }
    p.ch = ch
    return ch, nil
}

func (p *Publisher) reset() error {
    if p.ch != nil {
        _ = p.ch.Close()
        p.ch = nil
    }
    if p.conn != nil {
        err := p.conn.Close()
        p.conn = nil
        return err
    }
    return nil
}
