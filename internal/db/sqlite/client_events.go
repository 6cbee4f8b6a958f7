package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hiyaok/guardbot/internal/db"
)

// Join events share the message_events table under their own type tag
// so the anti-raid window reuses the same pruning story.
const joinEventType = "join"

func (c *sqliteClient) AppendMessageEvent(ctx context.Context, event *db.MessageEvent) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO message_events (user_id, chat_id, created_at, type)
		VALUES (:user_id, :chat_id, :created_at, :type)
	`, event)
	return err
}

func (c *sqliteClient) CountMessageEvents(ctx context.Context, userID, chatID int64, since time.Time) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM message_events
		WHERE chat_id = ? AND user_id = ? AND created_at >= ?
	`, chatID, userID, since)
	return count, err
}

func (c *sqliteClient) CountJoinEvents(ctx context.Context, chatID int64, since time.Time) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM message_events
		WHERE chat_id = ? AND type = ? AND created_at >= ?
	`, chatID, joinEventType, since)
	return count, err
}

func (c *sqliteClient) GetWarning(ctx context.Context, chatID, userID int64) (*db.Warning, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var warning db.Warning
	err := c.db.GetContext(ctx, &warning, `
		SELECT chat_id, user_id, count, last_warning, reasons
		FROM warnings WHERE chat_id = ? AND user_id = ?
	`, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &warning, nil
}

func (c *sqliteClient) SaveWarning(ctx context.Context, warning *db.Warning) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO warnings (chat_id, user_id, count, last_warning, reasons)
		VALUES (:chat_id, :user_id, :count, :last_warning, :reasons)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			count = excluded.count,
			last_warning = excluded.last_warning,
			reasons = excluded.reasons
	`, warning)
	return err
}

func (c *sqliteClient) DeleteWarning(ctx context.Context, chatID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx,
		`DELETE FROM warnings WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	return err
}
