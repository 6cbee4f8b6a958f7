package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hiyaok/guardbot/internal/db"
)

func (c *sqliteClient) GetPendingInput(ctx context.Context, userID int64) (*db.PendingInput, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var pending db.PendingInput
	err := c.db.GetContext(ctx, &pending, `
		SELECT user_id, operation, chat_id, created_at
		FROM pending_inputs WHERE user_id = ?
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &pending, nil
}

// SetPendingInput replaces any existing request for the user: the
// single-row-per-user key makes "last request wins" structural.
func (c *sqliteClient) SetPendingInput(ctx context.Context, userID int64, operation string, chatID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO pending_inputs (user_id, operation, chat_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			operation = excluded.operation,
			chat_id = excluded.chat_id,
			created_at = excluded.created_at
	`, userID, operation, chatID, time.Now())
	return err
}

func (c *sqliteClient) ClearPendingInput(ctx context.Context, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM pending_inputs WHERE user_id = ?`, userID)
	return err
}

func (c *sqliteClient) ClearPendingInputsForGroup(ctx context.Context, chatID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM pending_inputs WHERE chat_id = ?`, chatID)
	return err
}
