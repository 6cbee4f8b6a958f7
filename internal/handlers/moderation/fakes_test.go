package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/hiyaok/guardbot/internal/bot"
	"github.com/hiyaok/guardbot/internal/db"
)

type restrictCall struct {
	chatID      int64
	userID      int64
	permissions api.ChatPermissions
	untilUnix   int64
}

type removeCall struct {
	chatID    int64
	userID    int64
	untilUnix int64
}

// fakeTransport records moderation calls. Admins listed in admins are
// reported as chat administrators of every chat; the bot itself is
// always an admin with full rights.
type fakeTransport struct {
	mu       sync.Mutex
	admins   []int64
	fail     error
	restrict []restrictCall
	removals []removeCall
	unbans   []int64
	deleted  []int
	sent     []string
}

const fakeBotID int64 = 1000

func (f *fakeTransport) BotID() int64        { return fakeBotID }
func (f *fakeTransport) BotUsername() string { return "guardbot" }

func (f *fakeTransport) GetChatMember(_ context.Context, _ int64, userID int64) (api.ChatMember, error) {
	return api.ChatMember{User: &api.User{ID: userID}, Status: "member"}, nil
}

func (f *fakeTransport) GetChatAdministrators(_ context.Context, _ int64) ([]api.ChatMember, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	members := []api.ChatMember{{
		User:               &api.User{ID: fakeBotID, IsBot: true},
		Status:             "administrator",
		CanDeleteMessages:  true,
		CanRestrictMembers: true,
	}}
	for _, id := range f.admins {
		members = append(members, api.ChatMember{
			User:   &api.User{ID: id},
			Status: "administrator",
		})
	}
	return members, nil
}

func (f *fakeTransport) RestrictMember(_ context.Context, chatID, userID int64, permissions *api.ChatPermissions, untilUnix int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restrict = append(f.restrict, restrictCall{chatID: chatID, userID: userID, permissions: *permissions, untilUnix: untilUnix})
	return nil
}

func (f *fakeTransport) RemoveMember(_ context.Context, chatID, userID int64, untilUnix int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removals = append(f.removals, removeCall{chatID: chatID, userID: userID, untilUnix: untilUnix})
	return nil
}

func (f *fakeTransport) UnbanMember(_ context.Context, _, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbans = append(f.unbans, userID)
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeTransport) SendMessage(_ context.Context, _ int64, text string, _ *bot.SendOptions) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return len(f.sent), nil
}

func (f *fakeTransport) EditMessageText(_ context.Context, _ int64, _ int, _ string, _ *api.InlineKeyboardMarkup) error {
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, _, _ string) error { return nil }

// fakeStore is an in-memory escalation and flood store.
type fakeStore struct {
	mu       sync.Mutex
	warnings map[string]*db.Warning
	users    map[int64]*db.User
	count    int
	countErr error
	saveErr  error
	getErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		warnings: map[string]*db.Warning{},
		users:    map[int64]*db.User{},
	}
}

func warningKey(chatID, userID int64) string {
	return fmt.Sprintf("%d/%d", chatID, userID)
}

func (f *fakeStore) GetWarning(_ context.Context, chatID, userID int64) (*db.Warning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	w, ok := f.warnings[warningKey(chatID, userID)]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *w
	copied.Reasons = append(db.ReasonList{}, w.Reasons...)
	return &copied, nil
}

func (f *fakeStore) SaveWarning(_ context.Context, warning *db.Warning) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	copied := *warning
	copied.Reasons = append(db.ReasonList{}, warning.Reasons...)
	f.warnings[warningKey(warning.ChatID, warning.UserID)] = &copied
	return nil
}

func (f *fakeStore) DeleteWarning(_ context.Context, chatID, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.warnings, warningKey(chatID, userID))
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, userID int64) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) UpsertUser(_ context.Context, user *db.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

func (f *fakeStore) CountMessageEvents(_ context.Context, _, _ int64, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.count, nil
}

var errStorageDown = errors.New("storage down")
