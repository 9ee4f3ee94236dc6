// Package queue defines message payloads exchanged over the message broker
// and the consumer that persists them.
package queue

import (
    "fmt"
    "time"

    "github.com/iliyamo/dutch-auction/internal/model"
)

// NotificationQueue is the durable queue notification requests go through.
const NotificationQueue = "notification.requested"

// NotificationRequestedEvent is published whenever the auction core wants a
// user notified (a sale to the seller, an order confirmation to the buyer).
// Consumers persist it without querying the auction tables.
type NotificationRequestedEvent struct {
    UserID      uint64         `json:"user_id"`
    Type        string         `json:"type"`
    Title       string         `json:"title"`
    Message     string         `json:"message"`
    Metadata    map[string]any `json:"metadata,omitempty"`
    RequestedAt string         `json:"requested_at"`
}

// NewNotificationRequested builds the event for n.
func NewNotificationRequested(n model.Notification) NotificationRequestedEvent {
    at := n.CreatedAt
    if at.IsZero() {
        at = time.Now()
    }
    return NotificationRequestedEvent{
        UserID:      n.UserID,
        Type:        n.Type,
        Title:       n.Title,
        Message:     n.Message,
        Metadata:    n.Metadata,
        RequestedAt: at.UTC().Format(time.RFC3339Nano),
    }
}

// Notification converts the event back into the domain record.
func (e NotificationRequestedEvent) Notification() (model.Notification, error) {
    if e.UserID == 0 || e.Type == "" {
        return model.Notification{}, fmt.Errorf("notification event missing user_id or type")
    }
    n := model.Notification{
        UserID:   e.UserID,
        Type:     e.Type,
        Title:    e.Title,
        Message:  e.Message,
        Metadata: e.Metadata,
    }
    if e.RequestedAt != "" {
        at, err := time.Parse(time.RFC3339Nano, e.RequestedAt)
        if err != nil {
            return model.Notification{}, fmt.Errorf("requested_at: %w", err)
        }
        n.CreatedAt = at
    }
    return n, nil
}
