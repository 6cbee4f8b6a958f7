package bot

import (
	"context"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
)

const msgNoRights = "not enough rights"

// ErrNoPrivileges marks transport rejections caused by the bot missing
// a chat permission, so callers can distinguish them from plain
// transport failures.
var ErrNoPrivileges = errors.New("no privileges")

type tgTransport struct {
	bot *api.BotAPI
}

// NewTransport wraps a connected Bot API client.
func NewTransport(bot *api.BotAPI) Transport {
	return &tgTransport{bot: bot}
}

func (t *tgTransport) BotID() int64 {
	return t.bot.Self.ID
}

func (t *tgTransport) BotUsername() string {
	return t.bot.Self.UserName
}

func (t *tgTransport) GetChatMember(ctx context.Context, chatID, userID int64) (api.ChatMember, error) {
	select {
	case <-ctx.Done():
		return api.ChatMember{}, ctx.Err()
	default:
	}
	member, err := t.bot.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	})
	if err != nil {
		return api.ChatMember{}, errors.WithMessage(err, "cant get chat member")
	}
	return member, nil
}

func (t *tgTransport) GetChatAdministrators(ctx context.Context, chatID int64) ([]api.ChatMember, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	admins, err := t.bot.GetChatAdministrators(api.ChatAdministratorsConfig{
		ChatConfig: api.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return nil, errors.WithMessage(err, "cant get chat administrators")
	}
	return admins, nil
}

func (t *tgTransport) RestrictMember(ctx context.Context, chatID, userID int64, permissions *api.ChatPermissions, untilUnix int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := t.bot.Request(api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		Permissions:                   permissions,
		UntilDate:                     untilUnix,
		UseIndependentChatPermissions: true,
	}); err != nil {
		return withPrivilegeError(err, "restrict")
	}
	return nil
}

func (t *tgTransport) RemoveMember(ctx context.Context, chatID, userID int64, untilUnix int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := t.bot.Request(api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		UntilDate: untilUnix,
	}); err != nil {
		return withPrivilegeError(err, "remove")
	}
	return nil
}

func (t *tgTransport) UnbanMember(ctx context.Context, chatID, userID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := t.bot.Request(api.UnbanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		OnlyIfBanned: true,
	}); err != nil {
		return withPrivilegeError(err, "unban")
	}
	return nil
}

func (t *tgTransport) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := t.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
		return withPrivilegeError(err, "delete message")
	}
	return nil
}

func (t *tgTransport) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}
	msg := api.NewMessage(chatID, text)
	if opts != nil {
		if opts.ReplyTo != 0 {
			msg.ReplyParameters.MessageID = opts.ReplyTo
			msg.ReplyParameters.AllowSendingWithoutReply = true
		}
		msg.ParseMode = opts.ParseMode
		msg.ReplyMarkup = opts.ReplyMarkup
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return 0, errors.WithMessage(err, "cant send message")
	}
	return sent.MessageID, nil
}

func (t *tgTransport) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, markup *api.InlineKeyboardMarkup) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	edit := api.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = markup
	if _, err := t.bot.Send(edit); err != nil {
		return errors.WithMessage(err, "cant edit message")
	}
	return nil
}

func (t *tgTransport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := t.bot.Request(api.NewCallback(callbackID, text)); err != nil {
		return errors.WithMessage(err, "cant answer callback")
	}
	return nil
}

func withPrivilegeError(err error, operation string) error {
	if strings.Contains(err.Error(), msgNoRights) {
		return ErrNoPrivileges
	}
	return errors.WithMessagef(err, "cant %s", operation)
}
