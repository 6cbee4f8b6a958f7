package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/hiyaok/guardbot/internal/bot"
	"github.com/hiyaok/guardbot/internal/db"
	"github.com/hiyaok/guardbot/internal/event"
	"github.com/hiyaok/guardbot/internal/handlers/moderation"
)

const (
	testChatID int64 = -100500
	memberID   int64 = 42
	adminID    int64 = 7
	botID      int64 = 1000
)

type fakeDB struct {
	db.Client

	mu          sync.Mutex
	groups      map[int64]*db.Group
	warnings    map[string]*db.Warning
	users       map[int64]*db.User
	captchas    map[string]*db.CaptchaChallenge
	events      []*db.MessageEvent
	groupErr    error
	messageRate int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		groups:   map[int64]*db.Group{},
		warnings: map[string]*db.Warning{},
		users:    map[int64]*db.User{},
	}
}

func wkey(chatID, userID int64) string { return fmt.Sprintf("%d/%d", chatID, userID) }

func (f *fakeDB) GetGroup(_ context.Context, chatID int64) (*db.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groupErr != nil {
		return nil, f.groupErr
	}
	group, ok := f.groups[chatID]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *group
	return &copied, nil
}

func (f *fakeDB) UpsertGroup(_ context.Context, group *db.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *group
	f.groups[group.ID] = &copied
	return nil
}

func (f *fakeDB) AppendMessageEvent(_ context.Context, ev *db.MessageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeDB) CountMessageEvents(_ context.Context, _, _ int64, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messageRate, nil
}

func (f *fakeDB) GetWarning(_ context.Context, chatID, userID int64) (*db.Warning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.warnings[wkey(chatID, userID)]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *w
	return &copied, nil
}

func (f *fakeDB) SaveWarning(_ context.Context, warning *db.Warning) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *warning
	f.warnings[wkey(warning.ChatID, warning.UserID)] = &copied
	return nil
}

func (f *fakeDB) GetUser(_ context.Context, userID int64) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeDB) UpsertUser(_ context.Context, user *db.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *user
	f.users[user.ID] = &copied
	return nil
}

type fakeTransport struct {
	bot.Transport

	mu       sync.Mutex
	deleted  []int
	restrict []int64
	removals []int64
	sent     []string
}

func (f *fakeTransport) BotID() int64        { return botID }
func (f *fakeTransport) BotUsername() string { return "guardbot" }

func (f *fakeTransport) GetChatAdministrators(_ context.Context, _ int64) ([]api.ChatMember, error) {
	return []api.ChatMember{
		{
			User:               &api.User{ID: botID, IsBot: true},
			Status:             "administrator",
			CanDeleteMessages:  true,
			CanRestrictMembers: true,
		},
		{User: &api.User{ID: adminID}, Status: "administrator"},
	}, nil
}

func (f *fakeTransport) RestrictMember(_ context.Context, _, userID int64, _ *api.ChatPermissions, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restrict = append(f.restrict, userID)
	return nil
}

func (f *fakeTransport) RemoveMember(_ context.Context, _, userID int64, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removals = append(f.removals, userID)
	return nil
}

func (f *fakeTransport) UnbanMember(_ context.Context, _, _ int64) error { return nil }

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

func (f *fakeTransport) AnswerCallback(_ context.Context, _, _ string) error { return nil }

type fakeService struct {
	transport *fakeTransport
	store     *fakeDB
}

func (f *fakeService) GetBot() bot.Transport { return f.transport }
func (f *fakeService) GetDB() db.Client      { return f.store }

func (f *fakeService) GetGroup(ctx context.Context, chat *api.Chat) (*db.Group, error) {
	return f.store.GetGroup(ctx, chat.ID)
}

func (f *fakeService) RegisterGroup(ctx context.Context, chat *api.Chat, _ int64) (*db.Group, error) {
	return f.store.GetGroup(ctx, chat.ID)
}

func (f *fakeService) RegisterUser(_ context.Context, user *api.User) (*db.User, error) {
	return &db.User{ID: user.ID}, nil
}

func (f *fakeService) GetLanguage(_ context.Context, _ int64) string { return "en" }

func newTestModerator(store *fakeDB, transport *fakeTransport) *Moderator {
	service := &fakeService{transport: transport, store: store}
	admins := moderation.NewAdminChecker(transport, time.Minute)
	events := event.NewBus()
	executor := moderation.NewExecutor(transport, admins, events)
	escalator := moderation.NewEscalator(store, executor, admins, events)
	flood := moderation.NewFloodDetector(store)
	chain := moderation.NewChain(transport.BotUsername())
	return NewModerator(service, chain, flood, escalator, executor, admins, events, nil)
}

func groupMessage(userID int64, text string) *api.Update {
	msg := &api.Message{
		MessageID: 77,
		From:      &api.User{ID: userID, FirstName: "Someone"},
		Chat:      api.Chat{ID: testChatID, Type: "supergroup"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		command := strings.Fields(text)[0]
		msg.Entities = []api.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	}
	return &api.Update{Message: msg}
}

func seedGroup(store *fakeDB, mutate func(*db.Group)) {
	group := &db.Group{
		ID:       testChatID,
		Title:    "test group",
		OwnerID:  adminID,
		Settings: db.DefaultSettings(),
	}
	if mutate != nil {
		mutate(group)
	}
	store.groups[testChatID] = group
}

func TestModeratorDeletesLinkWithoutWarning(t *testing.T) {
	t.Parallel()

	store := newFakeDB()
	seedGroup(store, func(g *db.Group) { g.Settings.AntiLink = true })
	transport := &fakeTransport{}
	mod := newTestModerator(store, transport)

	u := groupMessage(memberID, "join https://spam.example.com now")
	proceed, err := mod.Handle(context.Background(), u, &u.Message.Chat, u.Message.From)
	if err != nil {
		t.Fatal(err)
	}
	if proceed {
		t.Error("violating message must stop the chain")
	}
	if len(transport.deleted) != 1 || transport.deleted[0] != 77 {
		t.Errorf("got deleted %v, want the offending message", transport.deleted)
	}
	// Link removal is delete plus reply only.
	if _, err := store.GetWarning(context.Background(), testChatID, memberID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("link removal must not record a warning, got err=%v", err)
	}
}

func TestModeratorWarnsOnSpam(t *testing.T) {
	t.Parallel()

	store := newFakeDB()
	seedGroup(store, func(g *db.Group) { g.Settings.AntiSpam = true })
	transport := &fakeTransport{}
	mod := newTestModerator(store, transport)

	u := groupMessage(memberID, "BUY NOW LIMITED OFFER TODAY")
	proceed, err := mod.Handle(context.Background(), u, &u.Message.Chat, u.Message.From)
	if err != nil {
		t.Fatal(err)
	}
	if proceed {
		t.Error("spam message must stop the chain")
	}
	warning, err := store.GetWarning(context.Background(), testChatID, memberID)
	if err != nil {
		t.Fatal(err)
	}
	if warning.Count != 1 {
		t.Errorf("got warning count %d, want 1", warning.Count)
	}
}

func TestModeratorDeletesForeignCommand(t *testing.T) {
	t.Parallel()

	store := newFakeDB()
	seedGroup(store, func(g *db.Group) { g.Settings.AntiCommand = true })
	transport := &fakeTransport{}
	mod := newTestModerator(store, transport)

	u := groupMessage(memberID, "/settings@otherbot")
	proceed, err := mod.Handle(context.Background(), u, &u.Message.Chat, u.Message.From)
	if err != nil {
		t.Fatal(err)
	}
	if proceed {
		t.Error("foreign command must stop the chain")
	}
	if len(transport.deleted) != 1 || transport.deleted[0] != 77 {
		t.Errorf("got deleted %v, want the foreign command removed", transport.deleted)
	}
}

func TestModeratorDeletesBlacklistedCommand(t *testing.T) {
	t.Parallel()

	store := newFakeDB()
	seedGroup(store, func(g *db.Group) { g.Blacklist = []int64{memberID} })
	transport := &fakeTransport{}
	mod := newTestModerator(store, transport)

	u := groupMessage(memberID, "/free_money")
	proceed, err := mod.Handle(context.Background(), u, &u.Message.Chat, u.Message.From)
	if err != nil {
		t.Fatal(err)
	}
	if proceed {
		t.Error("blacklisted sender's message must stop the chain")
	}
	if len(transport.deleted) != 1 || transport.deleted[0] != 77 {
		t.Errorf("got deleted %v, want the blacklisted message removed", transport.deleted)
	}
	// Removal only: nothing restricted, nothing removed, no warning.
	if len(transport.removals) != 0 || len(transport.restrict) != 0 {
		t.Errorf("blacklist removal must not touch membership, got removals=%v restrict=%v", transport.removals, transport.restrict)
	}
	if _, err := store.GetWarning(context.Background(), testChatID, memberID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("blacklist removal must not record a warning, got err=%v", err)
	}
}

func TestModeratorDispatchesAdminCommand(t *testing.T) {
	t.Parallel()

	store := newFakeDB()
	seedGroup(store, func(g *db.Group) { g.Settings.AntiCommand = true })
	transport := &fakeTransport{}
	mod := newTestModerator(store, transport)

	u := groupMessage(adminID, "/warns")
	proceed, err := mod.Handle(context.Background(), u, &u.Message.Chat, u.Message.From)
	if err != nil {
		t.Fatal(err)
	}
	if proceed {
		t.Error("handled command must consume the update")
	}
	if len(transport.deleted) != 0 {
		t.Errorf("admin command deleted: %v", transport.deleted)
	}
	if len(transport.sent) == 0 {
		t.Error("expected a command reply")
	}
}

func TestModeratorExemptsAdmins(t *testing.T) {
	t.Parallel()

	store := newFakeDB()
	seedGroup(store, func(g *db.Group) { g.Settings.AntiLink = true })
	transport := &fakeTransport{}
	mod := newTestModerator(store, transport)

	u := groupMessage(adminID, "look at https://example.com")
	proceed, err := mod.Handle(context.Background(), u, &u.Message.Chat, u.Message.From)
	if err != nil {
		t.Fatal(err)
	}
	if !proceed {
		t.Error("admin message must pass through")
	}
	if len(transport.deleted) != 0 {
		t.Errorf("admin message deleted: %v", transport.deleted)
	}
}

func TestModeratorFailsOpenOnStorageError(t *testing.T) {
	t.Parallel()

	store := newFakeDB()
	store.groupErr = errors.New("storage down")
	transport := &fakeTransport{}
	mod := newTestModerator(store, transport)

	u := groupMessage(memberID, "https://spam.example.com")
	proceed, err := mod.Handle(context.Background(), u, &u.Message.Chat, u.Message.From)
	if err != nil {
		t.Fatal(err)
	}
	if !proceed {
		t.Error("storage trouble must let the message through")
	}
	if len(transport.deleted) != 0 {
		t.Error("nothing may be deleted when state is unavailable")
	}
}

func TestModeratorFloodTriggersMute(t *testing.T) {
	t.Parallel()

	store := newFakeDB()
	seedGroup(store, nil)
	store.messageRate = db.DefaultSettings().FloodThreshold
	transport := &fakeTransport{}
	mod := newTestModerator(store, transport)

	u := groupMessage(memberID, "another innocent looking message")
	proceed, err := mod.Handle(context.Background(), u, &u.Message.Chat, u.Message.From)
	if err != nil {
		t.Fatal(err)
	}
	if proceed {
		t.Error("flooding message must stop the chain")
	}
	if len(transport.restrict) != 1 || transport.restrict[0] != memberID {
		t.Errorf("got restrict calls %v, want the flooder muted", transport.restrict)
	}
	if len(transport.deleted) != 1 {
		t.Errorf("got deleted %v, want the flooding message removed", transport.deleted)
	}
}

func TestModeratorBelowFloodThresholdPasses(t *testing.T) {
	t.Parallel()

	store := newFakeDB()
	seedGroup(store, nil)
	store.messageRate = db.DefaultSettings().FloodThreshold - 1
	transport := &fakeTransport{}
	mod := newTestModerator(store, transport)

	u := groupMessage(memberID, "hello everyone")
	proceed, err := mod.Handle(context.Background(), u, &u.Message.Chat, u.Message.From)
	if err != nil {
		t.Fatal(err)
	}
	if !proceed {
		t.Error("clean message under the threshold must pass")
	}
}

func TestModeratorRecordsIngress(t *testing.T) {
	t.Parallel()

	store := newFakeDB()
	seedGroup(store, nil)
	transport := &fakeTransport{}
	mod := newTestModerator(store, transport)

	u := groupMessage(memberID, "hello")
	if _, err := mod.Handle(context.Background(), u, &u.Message.Chat, u.Message.From); err != nil {
		t.Fatal(err)
	}
	if len(store.events) != 1 {
		t.Fatalf("got %d events, want 1", len(store.events))
	}
	if store.events[0].UserID != memberID || store.events[0].ChatID != testChatID {
		t.Errorf("event recorded against wrong keys: %+v", store.events[0])
	}
}

func TestModeratorIgnoresPrivateChats(t *testing.T) {
	t.Parallel()

	store := newFakeDB()
	transport := &fakeTransport{}
	mod := newTestModerator(store, transport)

	u := groupMessage(memberID, "hello")
	u.Message.Chat = api.Chat{ID: memberID, Type: "private"}
	proceed, err := mod.Handle(context.Background(), u, &u.Message.Chat, u.Message.From)
	if err != nil {
		t.Fatal(err)
	}
	if !proceed {
		t.Error("private chats are not moderated")
	}
}
