package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hiyaok/guardbot/internal/db"
)

func (c *sqliteClient) SaveNote(ctx context.Context, note *db.Note) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}
	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO notes (chat_id, name, content, created_by, created_at)
		VALUES (:chat_id, :name, :content, :created_by, :created_at)
		ON CONFLICT(chat_id, name) DO UPDATE SET
			content = excluded.content,
			created_by = excluded.created_by,
			created_at = excluded.created_at
	`, note)
	return err
}

func (c *sqliteClient) GetNote(ctx context.Context, chatID int64, name string) (*db.Note, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var note db.Note
	err := c.db.GetContext(ctx, &note, `
		SELECT chat_id, name, content, created_by, created_at
		FROM notes WHERE chat_id = ? AND name = ?
	`, chatID, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &note, nil
}

func (c *sqliteClient) ListNotes(ctx context.Context, chatID int64) ([]*db.Note, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var notes []*db.Note
	err := c.db.SelectContext(ctx, &notes, `
		SELECT chat_id, name, content, created_by, created_at
		FROM notes WHERE chat_id = ? ORDER BY name
	`, chatID)
	return notes, err
}

func (c *sqliteClient) DeleteNote(ctx context.Context, chatID int64, name string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM notes WHERE chat_id = ? AND name = ?`, chatID, name)
	return err
}

func (c *sqliteClient) SaveCustomCommand(ctx context.Context, cmd *db.CustomCommand) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.NamedExecContext(ctx, `
		INSERT INTO custom_commands (chat_id, command, response, created_by)
		VALUES (:chat_id, :command, :response, :created_by)
		ON CONFLICT(chat_id, command) DO UPDATE SET
			response = excluded.response,
			created_by = excluded.created_by
	`, cmd)
	return err
}

func (c *sqliteClient) GetCustomCommand(ctx context.Context, chatID int64, command string) (*db.CustomCommand, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var cmd db.CustomCommand
	err := c.db.GetContext(ctx, &cmd, `
		SELECT chat_id, command, response, created_by
		FROM custom_commands WHERE chat_id = ? AND command = ?
	`, chatID, command)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &cmd, nil
}

func (c *sqliteClient) DeleteCustomCommand(ctx context.Context, chatID int64, command string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx,
		`DELETE FROM custom_commands WHERE chat_id = ? AND command = ?`, chatID, command)
	return err
}
