package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hiyaok/guardbot/internal/db"
)

func (c *sqliteClient) CreateCaptchaChallenge(ctx context.Context, challenge *db.CaptchaChallenge) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now()
	}
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO captcha_challenges (chat_id, user_id, success_uuid, message_id, created_at, expires_at)
		VALUES (:chat_id, :user_id, :success_uuid, :message_id, :created_at, :expires_at)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			success_uuid = excluded.success_uuid,
			message_id = excluded.message_id,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, challenge)
	return err
}

func (c *sqliteClient) GetCaptchaChallenge(ctx context.Context, chatID, userID int64) (*db.CaptchaChallenge, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var challenge db.CaptchaChallenge
	err := c.db.GetContext(ctx, &challenge, `
		SELECT chat_id, user_id, success_uuid, message_id, created_at, expires_at
		FROM captcha_challenges WHERE chat_id = ? AND user_id = ?
	`, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &challenge, nil
}

func (c *sqliteClient) DeleteCaptchaChallenge(ctx context.Context, chatID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx,
		`DELETE FROM captcha_challenges WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	return err
}

func (c *sqliteClient) ListExpiredCaptchaChallenges(ctx context.Context, now time.Time) ([]*db.CaptchaChallenge, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var challenges []*db.CaptchaChallenge
	err := c.db.SelectContext(ctx, &challenges, `
		SELECT chat_id, user_id, success_uuid, message_id, created_at, expires_at
		FROM captcha_challenges WHERE expires_at <= ?
	`, now)
	return challenges, err
}
