package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/dutch-auction/internal/model"
)

// MessageRepo stores the append-only live chat of auctions.  created_at is
// stored with microsecond precision and, together with the id, orders the
// stream delivered to viewers.
type MessageRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewMessageRepo returns a new MessageRepo bound to the given database.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// AppendMessage inserts m and populates its ID and CreatedAt.
func (r *MessageRepo) AppendMessage(ctx context.Context, m *model.ChatMessage) error {
	created := r.now().Truncate(time.Microsecond)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO auction_messages (auction_id, user_id, content, created_at) VALUES (?,?,?,?)`,
		m.AuctionID, m.UserID, m.Content, created)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	m.CreatedAt = created
	return nil
}

// MessagesSince returns up to limit messages that sort strictly after the
// (after, afterID) watermark, oldest first.
func (r *MessageRepo) MessagesSince(ctx context.Context, auctionID uint64, after time.Time, afterID uint64, limit int) ([]model.ChatMessage, error) {
	const q = `SELECT id, auction_id, user_id, content, created_at FROM auction_messages
        WHERE auction_id = ? AND (created_at > ? OR (created_at = ? AND id > ?))
        ORDER BY created_at ASC, id ASC LIMIT ?`
	after = after.UTC()
	return r.query(ctx, q, auctionID, after, after, afterID, normalizeLimit(limit, 100, 500))
}

// RecentMessages returns the latest limit messages, oldest first.
func (r *MessageRepo) RecentMessages(ctx context.Context, auctionID uint64, limit int) ([]model.ChatMessage, error) {
	const q = `SELECT id, auction_id, user_id, content, created_at FROM (
            SELECT id, auction_id, user_id, content, created_at FROM auction_messages
            WHERE auction_id = ? ORDER BY created_at DESC, id DESC LIMIT ?
        ) t ORDER BY created_at ASC, id ASC`
	return r.query(ctx, q, auctionID, normalizeLimit(limit, 50, 200))
}

func (r *MessageRepo) query(ctx context.Context, q string, args ...any) ([]model.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.ChatMessage{}
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.AuctionID, &m.UserID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
