package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/hiyaok/guardbot/internal/db"
)

// ServiceBot defines transport-specific operations
type ServiceBot interface {
	GetBot() Transport
}

// ServiceDB defines database-specific operations
type ServiceDB interface {
	GetDB() db.Client
}

// Service defines the core bot service interface
type Service interface {
	ServiceBot
	ServiceDB
	GetGroup(ctx context.Context, chat *api.Chat) (*db.Group, error)
	RegisterGroup(ctx context.Context, chat *api.Chat, addedBy int64) (*db.Group, error)
	RegisterUser(ctx context.Context, user *api.User) (*db.User, error)
	GetLanguage(ctx context.Context, chatID int64) string
}

// Handler is one stage of the update pipeline. Returning proceed=false
// stops the chain for this update.
type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}

// SendOptions carries the optional knobs of an outgoing message.
type SendOptions struct {
	ReplyTo     int
	ParseMode   string
	ReplyMarkup any
}

// Transport is the chat-transport surface the core consumes. The
// production implementation wraps the Telegram Bot API client; tests
// substitute fakes.
type Transport interface {
	BotID() int64
	BotUsername() string

	GetChatMember(ctx context.Context, chatID, userID int64) (api.ChatMember, error)
	GetChatAdministrators(ctx context.Context, chatID int64) ([]api.ChatMember, error)
	RestrictMember(ctx context.Context, chatID, userID int64, permissions *api.ChatPermissions, untilUnix int64) error
	RemoveMember(ctx context.Context, chatID, userID int64, untilUnix int64) error
	UnbanMember(ctx context.Context, chatID, userID int64) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (int, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *api.InlineKeyboardMarkup) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
