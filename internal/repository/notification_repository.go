package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/iliyamo/dutch-auction/internal/model"
)

// NotificationRepo persists notifications delivered by the queue consumer.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a new NotificationRepo bound to the given database.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// InsertNotification stores n.  A zero CreatedAt is replaced by the current time.
func (r *NotificationRepo) InsertNotification(ctx context.Context, n model.Notification) error {
	var meta any
	if len(n.Metadata) > 0 {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, message, metadata, created_at) VALUES (?,?,?,?,?,?)`,
		n.UserID, n.Type, n.Title, n.Message, meta, created.UTC())
	return err
}
