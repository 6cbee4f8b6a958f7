package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hiyaok/guardbot/internal/db"
)

func (c *sqliteClient) GetUser(ctx context.Context, userID int64) (*db.User, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var user db.User
	err := c.db.GetContext(ctx, &user, `
		SELECT id, username, first_name, last_name, is_bot,
		       message_count, warning_count, trust_score, spam_score, captcha_fails,
		       created_at, last_activity
		FROM users WHERE id = ?
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (c *sqliteClient) UpsertUser(ctx context.Context, user *db.User) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.LastActivity = now

	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO users (id, username, first_name, last_name, is_bot,
			message_count, warning_count, trust_score, spam_score, captcha_fails,
			created_at, last_activity)
		VALUES (:id, :username, :first_name, :last_name, :is_bot,
			:message_count, :warning_count, :trust_score, :spam_score, :captcha_fails,
			:created_at, :last_activity)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			is_bot = excluded.is_bot,
			message_count = excluded.message_count,
			warning_count = excluded.warning_count,
			trust_score = excluded.trust_score,
			spam_score = excluded.spam_score,
			captcha_fails = excluded.captcha_fails,
			last_activity = excluded.last_activity
	`, user)
	return err
}

func (c *sqliteClient) SetUserSpamScore(ctx context.Context, userID int64, score int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `UPDATE users SET spam_score = ? WHERE id = ?`, score, userID)
	return err
}
