package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hiyaok/guardbot/internal/db"
)

func (c *sqliteClient) GetGroup(ctx context.Context, chatID int64) (*db.Group, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var group db.Group
	err := c.db.GetContext(ctx, &group, `
		SELECT id, title, username, owner_id, settings, created_at, updated_at
		FROM groups WHERE id = ?
	`, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}

	if err := c.db.SelectContext(ctx, &group.Admins,
		`SELECT user_id FROM group_admins WHERE chat_id = ?`, chatID); err != nil {
		return nil, err
	}
	if err := c.db.SelectContext(ctx, &group.Blacklist,
		`SELECT user_id FROM group_blacklist WHERE chat_id = ?`, chatID); err != nil {
		return nil, err
	}
	if err := c.db.SelectContext(ctx, &group.BlockedWords,
		`SELECT word FROM blocked_words WHERE chat_id = ?`, chatID); err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *sqliteClient) UpsertGroup(ctx context.Context, group *db.Group) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now

	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO groups (id, title, username, owner_id, settings, created_at, updated_at)
		VALUES (:id, :title, :username, :owner_id, :settings, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			username = excluded.username,
			owner_id = excluded.owner_id,
			settings = excluded.settings,
			updated_at = excluded.updated_at
	`, group)
	return err
}

func (c *sqliteClient) DeleteGroup(ctx context.Context, chatID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, query := range []string{
		`DELETE FROM groups WHERE id = ?`,
		`DELETE FROM group_admins WHERE chat_id = ?`,
		`DELETE FROM group_blacklist WHERE chat_id = ?`,
		`DELETE FROM blocked_words WHERE chat_id = ?`,
		`DELETE FROM warnings WHERE chat_id = ?`,
		`DELETE FROM notes WHERE chat_id = ?`,
		`DELETE FROM custom_commands WHERE chat_id = ?`,
		`DELETE FROM captcha_challenges WHERE chat_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, query, chatID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (c *sqliteClient) ListGroupsManagedBy(ctx context.Context, userID int64) ([]*db.Group, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var groups []*db.Group
	err := c.db.SelectContext(ctx, &groups, `
		SELECT id, title, username, owner_id, settings, created_at, updated_at
		FROM groups
		WHERE owner_id = ?
		   OR id IN (SELECT chat_id FROM group_admins WHERE user_id = ?)
		ORDER BY title
	`, userID, userID)
	return groups, err
}

func (c *sqliteClient) SetGroupAdmins(ctx context.Context, chatID int64, userIDs []int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM group_admins WHERE chat_id = ?`, chatID); err != nil {
		return err
	}
	stmt, err := tx.PreparexContext(ctx, `INSERT OR IGNORE INTO group_admins (chat_id, user_id) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, userID := range userIDs {
		if _, err := stmt.ExecContext(ctx, chatID, userID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (c *sqliteClient) AddToBlacklist(ctx context.Context, chatID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_blacklist (chat_id, user_id) VALUES (?, ?)`, chatID, userID)
	return err
}

func (c *sqliteClient) RemoveFromBlacklist(ctx context.Context, chatID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx,
		`DELETE FROM group_blacklist WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	return err
}

func (c *sqliteClient) AddBlockedWord(ctx context.Context, chatID int64, word string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blocked_words (chat_id, word) VALUES (?, ?)`, chatID, word)
	return err
}

func (c *sqliteClient) RemoveBlockedWord(ctx context.Context, chatID int64, word string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx,
		`DELETE FROM blocked_words WHERE chat_id = ? AND word = ?`, chatID, word)
	return err
}
