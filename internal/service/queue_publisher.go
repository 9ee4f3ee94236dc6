// Package service holds the outbound adapters of the auction core: the
// RabbitMQ publisher for notification requests and its direct-to-store
// fallback.
package service

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/dutch-auction/internal/model"
    q "github.com/iliyamo/dutch-auction/internal/queue"
)

// Notifier delivers one notification.
type Notifier interface {
    Notify(ctx context.Context, n model.Notification) error
}

// QueueNotifier publishes notification requests to the
// "notification.requested" queue.  When the broker is unreachable the
// request is handed to the fallback, if any, so a broker outage never loses
// a sale notification.
type QueueNotifier struct {
    url      string
    fallback Notifier
    logger   *zap.Logger
}

// NewQueueNotifier returns a publisher for the broker at url.
func NewQueueNotifier(url string, fallback Notifier, logger *zap.Logger) *QueueNotifier {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &QueueNotifier{url: url, fallback: fallback, logger: logger}
}

// Notify publishes n.  Errors are logged and returned so the caller can
// choose to ignore them.
func (p *QueueNotifier) Notify(ctx context.Context, n model.Notification) error {
    err := p.publish(ctx, q.NewNotificationRequested(n))
    if err == nil {
        return nil
    }
    p.logger.Warn("rabbitmq publish failed", zap.Uint64("user_id", n.UserID), zap.String("type", n.Type), zap.Error(err))
    if p.fallback == nil {
        return err
    }
    return p.fallback.Notify(ctx, n)
}

func (p *QueueNotifier) publish(ctx context.Context, event q.NotificationRequestedEvent) error {
    conn, err := amqp.Dial(p.url)
    if err != nil {
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return err
    }
    defer func() { _ = ch.Close() }()

    // Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(
        q.NotificationQueue, // name
        true,                // durable
        false,               // autoDelete
        false,               // exclusive
        false,               // noWait
        nil,                 // args
    ); err != nil {
        return err
    }

    body, err := json.Marshal(event)
    if err != nil {
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    return ch.PublishWithContext(ctx,
        "",                  // default exchange
        q.NotificationQueue, // routing key = queue name
        false,               // mandatory
        false,               // immediate
        pub,
    )
}

// NotificationStore persists notifications.
type NotificationStore interface {
    InsertNotification(ctx context.Context, n model.Notification) error
}

// StoreNotifier writes notifications straight to the store.  It is used
// when RabbitMQ is disabled and as the QueueNotifier fallback.
type StoreNotifier struct {
    store  NotificationStore
    logger *zap.Logger
}

// NewStoreNotifier returns a notifier backed by store.
func NewStoreNotifier(store NotificationStore, logger *zap.Logger) *StoreNotifier {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &StoreNotifier{store: store, logger: logger}
}

func (s *StoreNotifier) Notify(ctx context.Context, n model.Notification) error {
    if err := s.store.InsertNotification(ctx, n); err != nil {
        return err
    }
    s.logger.Debug("notification stored", zap.Uint64("user_id", n.UserID), zap.String("type", n.Type))
    return nil
}
