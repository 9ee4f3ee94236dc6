package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/dutch-auction/internal/model"
)

// NotificationWriter persists a notification.
type NotificationWriter interface {
    InsertNotification(ctx context.Context, n model.Notification) error
}

// StartNotificationConsumer connects to RabbitMQ, declares the
// notification.requested queue (durable) and stores every message through
// w.  It reconnects with exponential backoff and returns only once ctx is
// cancelled.  Malformed messages are rejected without requeue so they
// cannot loop.
func StartNotificationConsumer(ctx context.Context, url string, w NotificationWriter, logger *zap.Logger) error {
    log := logger.With(zap.String("component", "notification-consumer"))
    backoff := time.Second
    for {
        conn, err := amqp.Dial(url)
        if err != nil {
            log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second
        log.Info("connected to broker")

        err = consumeLoop(ctx, conn, w, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn("consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
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

func consumeLoop(ctx context.Context, conn *amqp.Connection, w NotificationWriter, log *zap.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        log.Warn("set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(NotificationQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(NotificationQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := handleMessage(ctx, d.Body, w); err != nil {
                log.Warn("handle message failed", zap.Error(err))
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func handleMessage(ctx context.Context, body []byte, w NotificationWriter) error {
    var ev NotificationRequestedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    n, err := ev.Notification()
    if err != nil {
        return err
    }
    if err := w.InsertNotification(ctx, n); err != nil {
        return fmt.Errorf("insert notification: %w", err)
    }
    return nil
}
