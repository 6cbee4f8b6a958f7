package bot

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hiyaok/guardbot/internal/config"
)

const (
	UpdateTimeout = 5 * time.Minute
)

type (
	UpdateProcessor struct {
		s              Service
		updateHandlers []Handler
	}

	MessageType string
)

const (
	MessageTypeText      MessageType = "text"
	MessageTypePhoto     MessageType = "photo"
	MessageTypeVideo     MessageType = "video"
	MessageTypeAudio     MessageType = "audio"
	MessageTypeVoice     MessageType = "voice"
	MessageTypeDocument  MessageType = "document"
	MessageTypeSticker   MessageType = "sticker"
	MessageTypeAnimation MessageType = "animation"
	MessageTypeService   MessageType = "service"
)

var registeredHandlers = make(map[string]Handler)

func RegisterUpdateHandler(title string, handler Handler) {
	registeredHandlers[title] = handler
}

func NewUpdateProcessor(s Service) *UpdateProcessor {
	enabledHandlers := make([]Handler, 0)
	for _, handlerName := range config.Get().EnabledHandlers {
		if _, ok := registeredHandlers[handlerName]; !ok || registeredHandlers[handlerName] == nil {
			log.Warnf("no registered handler: %s", handlerName)
			continue
		}
		enabledHandlers = append(enabledHandlers, registeredHandlers[handlerName])
	}

	return &UpdateProcessor{
		s:              s,
		updateHandlers: enabledHandlers,
	}
}

func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) error {
	if u == nil {
		return errors.New("update is nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var updateTime time.Time
	switch {
	case u.Message != nil:
		updateTime = time.Unix(int64(u.Message.Date), 0)
	case u.EditedMessage != nil:
		updateTime = time.Unix(int64(u.EditedMessage.Date), 0)
	default:
		updateTime = time.Now()
	}
	if time.Since(updateTime) > UpdateTimeout {
		log.WithFields(log.Fields{
			"update_time": updateTime,
			"age":         time.Since(updateTime),
		}).Debug("Skipping outdated update")
		return nil
	}

	chat := u.FromChat()
	if chat == nil && u.MyChatMember != nil {
		chat = &u.MyChatMember.Chat
	}
	if chat == nil && u.ChatMember != nil {
		chat = &u.ChatMember.Chat
	}

	user := u.SentFrom()
	if user == nil && u.MyChatMember != nil {
		user = &u.MyChatMember.From
	}
	if user == nil && u.ChatMember != nil {
		user = &u.ChatMember.From
	}

	ctx, span := otel.Tracer("guardbot").Start(ctx, "update")
	defer span.End()
	if chat != nil {
		span.SetAttributes(attribute.Int64("chat_id", chat.ID))
	}

	for _, handler := range up.updateHandlers {
		if handler == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		proceed, err := handler.Handle(ctx, u, chat, user)
		if err != nil {
			return errors.WithMessage(err, "handling error")
		}
		if !proceed {
			log.Trace("not proceeding")
			return nil
		}
	}
	return nil
}

// GetUpdatesChans starts long polling and hands updates over a channel,
// terminating on context cancellation or poll failure.
func GetUpdatesChans(ctx context.Context, bot *api.BotAPI, cfg api.UpdateConfig) (api.UpdatesChannel, chan error) {
	ch := make(chan api.Update, bot.Buffer)
	chErr := make(chan error)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			select {
			case <-ctx.Done():
				chErr <- ctx.Err()
				return
			default:
				updates, err := bot.GetUpdates(cfg)
				if err != nil {
					chErr <- err
					return
				}
				for _, update := range updates {
					if update.UpdateID >= cfg.Offset {
						cfg.Offset = update.UpdateID + 1
						select {
						case ch <- update:
						case <-ctx.Done():
							chErr <- ctx.Err()
							return
						}
					}
				}
			}
		}
	}()

	return ch, chErr
}

func GetUN(user *api.User) string {
	if user == nil {
		return ""
	}
	userName := user.UserName
	if len(userName) == 0 {
		userName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	return userName
}

func GetFullName(user *api.User) string {
	if user == nil {
		return ""
	}
	fullName := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if len(fullName) == 0 {
		fullName = user.UserName
	}
	return fullName
}

// GetMessageType classifies a message by the media it carries.
func GetMessageType(msg *api.Message) MessageType {
	switch {
	case msg == nil:
		return MessageTypeText
	case msg.Photo != nil:
		return MessageTypePhoto
	case msg.Video != nil:
		return MessageTypeVideo
	case msg.Audio != nil:
		return MessageTypeAudio
	case msg.Voice != nil:
		return MessageTypeVoice
	case msg.Document != nil:
		return MessageTypeDocument
	case msg.Sticker != nil:
		return MessageTypeSticker
	case msg.Animation != nil:
		return MessageTypeAnimation
	case isServiceMessage(msg):
		return MessageTypeService
	default:
		return MessageTypeText
	}
}

func isServiceMessage(msg *api.Message) bool {
	if msg == nil {
		return false
	}
	return msg.NewChatMembers != nil ||
		msg.LeftChatMember != nil ||
		msg.NewChatTitle != "" ||
		msg.NewChatPhoto != nil ||
		msg.DeleteChatPhoto ||
		msg.PinnedMessage != nil ||
		msg.VideoChatStarted != nil ||
		msg.VideoChatEnded != nil
}

// IsForwarded reports whether the message was forwarded from anywhere.
func IsForwarded(msg *api.Message) bool {
	return msg != nil && msg.ForwardOrigin != nil
}
