package private

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hiyaok/guardbot/internal/bot"
	"github.com/hiyaok/guardbot/internal/db"
	"github.com/hiyaok/guardbot/internal/i18n"
)

// Conversation drives the private-chat settings dialog. Menu navigation
// runs on callback queries; free-text steps go through a single pending
// input slot per user, where requesting a new input replaces the old one
// and an arriving text consumes the slot before validation.
type Conversation struct {
	s bot.Service
}

func NewConversation(s bot.Service) *Conversation {
	return &Conversation{s: s}
}

func (c *Conversation) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u.CallbackQuery != nil {
		if u.CallbackQuery.Message == nil || !u.CallbackQuery.Message.Chat.IsPrivate() {
			return true, nil
		}
		return false, c.handleCallback(ctx, u.CallbackQuery)
	}
	if u.Message == nil || chat == nil || !chat.IsPrivate() || user == nil {
		return true, nil
	}
	msg := u.Message

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			if _, err := c.s.RegisterUser(ctx, user); err != nil {
				log.WithField("object", "Conversation").WithError(err).Warn("cant register user")
			}
			return false, c.renderMenu(ctx, user.ID, 0, screenMain, 0)
		case "cancel":
			if err := c.s.GetDB().ClearPendingInput(ctx, user.ID); err != nil {
				return false, err
			}
			return false, c.renderMenu(ctx, user.ID, 0, screenMain, 0)
		}
		return false, nil
	}

	pending, err := c.s.GetDB().GetPendingInput(ctx, user.ID)
	if errors.Is(err, db.ErrNotFound) {
		return false, c.renderMenu(ctx, user.ID, 0, screenMain, 0)
	}
	if err != nil {
		return false, err
	}
	return false, c.consumePendingInput(ctx, user.ID, pending, msg.Text)
}

// consumePendingInput clears the slot first so the text is used at most
// once, then validates and applies it.
func (c *Conversation) consumePendingInput(ctx context.Context, userID int64, pending *db.PendingInput, text string) error {
	if err := c.s.GetDB().ClearPendingInput(ctx, userID); err != nil {
		return errors.Wrap(err, "cant consume pending input")
	}
	lang := c.userLanguage(ctx, pending.ChatID)

	group, err := c.s.GetDB().GetGroup(ctx, pending.ChatID)
	if err != nil {
		c.say(ctx, userID, i18n.Get("Group not found.", lang))
		return nil
	}
	text = strings.TrimSpace(text)

	switch pending.Operation {
	case db.OpAddToBlacklist:
		targetID, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			c.say(ctx, userID, i18n.Get("Invalid user ID. Send a numeric ID.", lang))
			return c.renderMenu(ctx, userID, 0, screenGroup, pending.ChatID)
		}
		if err := c.s.GetDB().AddToBlacklist(ctx, group.ID, targetID); err != nil {
			return err
		}
		c.say(ctx, userID, fmt.Sprintf(i18n.Get("User %d added to the blacklist.", lang), targetID))
	case db.OpAddBlockedWord:
		if err := c.s.GetDB().AddBlockedWord(ctx, group.ID, strings.ToLower(text)); err != nil {
			return err
		}
		c.say(ctx, userID, i18n.Get("Blocked word added.", lang))
	case db.OpRemoveBlockedWord:
		if err := c.s.GetDB().RemoveBlockedWord(ctx, group.ID, strings.ToLower(text)); err != nil {
			return err
		}
		c.say(ctx, userID, i18n.Get("Blocked word removed.", lang))
	case db.OpEditWelcomeMessage:
		group.Settings.WelcomeMessage = text
		if err := c.s.GetDB().UpsertGroup(ctx, group); err != nil {
			return err
		}
		c.say(ctx, userID, i18n.Get("Welcome message updated.", lang))
	case db.OpEditRulesText:
		group.Settings.RulesText = text
		if err := c.s.GetDB().UpsertGroup(ctx, group); err != nil {
			return err
		}
		c.say(ctx, userID, i18n.Get("Group rules updated.", lang))
	default:
		log.WithField("object", "Conversation").WithField("operation", pending.Operation).Warn("unknown pending operation")
		return nil
	}
	return c.renderMenu(ctx, userID, 0, screenGroup, pending.ChatID)
}

func (c *Conversation) handleCallback(ctx context.Context, query *api.CallbackQuery) error {
	userID := query.From.ID
	messageID := query.Message.MessageID
	parts := strings.Split(query.Data, ";")
	ack := func() error { return c.s.GetBot().AnswerCallback(ctx, query.ID, "") }

	switch parts[0] {
	case "menu":
		if err := c.renderMenu(ctx, userID, messageID, screenMain, 0); err != nil {
			return err
		}
		return ack()
	case "groups":
		if err := c.renderMenu(ctx, userID, messageID, screenGroups, 0); err != nil {
			return err
		}
		return ack()
	case "group", "protections", "media", "penalties":
		chatID, err := c.authorizedChat(ctx, userID, parts)
		if err != nil {
			return c.deny(ctx, query)
		}
		screen := map[string]string{
			"group":       screenGroup,
			"protections": screenProtections,
			"media":       screenMedia,
			"penalties":   screenPenalties,
		}[parts[0]]
		if err := c.renderMenu(ctx, userID, messageID, screen, chatID); err != nil {
			return err
		}
		return ack()
	case "toggle":
		if len(parts) < 3 {
			return ack()
		}
		chatID, err := c.authorizedChat(ctx, userID, parts)
		if err != nil {
			return c.deny(ctx, query)
		}
		screen, err := c.applyToggle(ctx, chatID, parts[2])
		if err != nil {
			return err
		}
		if err := c.renderMenu(ctx, userID, messageID, screen, chatID); err != nil {
			return err
		}
		return ack()
	case "cycle":
		if len(parts) < 3 {
			return ack()
		}
		chatID, err := c.authorizedChat(ctx, userID, parts)
		if err != nil {
			return c.deny(ctx, query)
		}
		if err := c.applyCycle(ctx, chatID, parts[2]); err != nil {
			return err
		}
		if err := c.renderMenu(ctx, userID, messageID, screenPenalties, chatID); err != nil {
			return err
		}
		return ack()
	case "input":
		if len(parts) < 3 {
			return ack()
		}
		chatID, err := c.authorizedChat(ctx, userID, parts)
		if err != nil {
			return c.deny(ctx, query)
		}
		// Replaces whatever input was pending before.
		if err := c.s.GetDB().SetPendingInput(ctx, userID, parts[2], chatID); err != nil {
			return err
		}
		c.say(ctx, userID, c.prompt(parts[2], c.userLanguage(ctx, chatID)))
		return ack()
	}
	return ack()
}

// authorizedChat parses the chat id from callback parts and verifies the
// caller manages that group.
func (c *Conversation) authorizedChat(ctx context.Context, userID int64, parts []string) (int64, error) {
	if len(parts) < 2 {
		return 0, errors.New("no chat id")
	}
	chatID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, err
	}
	group, err := c.s.GetDB().GetGroup(ctx, chatID)
	if err != nil {
		return 0, err
	}
	if !group.IsGroupAdmin(userID) {
		return 0, errors.New("not a group admin")
	}
	return chatID, nil
}

func (c *Conversation) deny(ctx context.Context, query *api.CallbackQuery) error {
	return c.s.GetBot().AnswerCallback(ctx, query.ID, i18n.Get("Group not found.", "en"))
}

func (c *Conversation) prompt(operation, lang string) string {
	switch operation {
	case db.OpAddToBlacklist:
		return i18n.Get("Send the numeric ID of the user to blacklist.", lang)
	case db.OpAddBlockedWord:
		return i18n.Get("Send the word to block.", lang)
	case db.OpRemoveBlockedWord:
		return i18n.Get("Send the word to unblock.", lang)
	case db.OpEditWelcomeMessage:
		return i18n.Get("Send the new welcome message.", lang)
	case db.OpEditRulesText:
		return i18n.Get("Send the new group rules.", lang)
	}
	return ""
}

func (c *Conversation) userLanguage(ctx context.Context, chatID int64) string {
	if chatID == 0 {
		return "en"
	}
	return c.s.GetLanguage(ctx, chatID)
}

func (c *Conversation) say(ctx context.Context, userID int64, text string) {
	if text == "" {
		return
	}
	if _, err := c.s.GetBot().SendMessage(ctx, userID, text, nil); err != nil {
		log.WithField("object", "Conversation").WithError(err).Warn("cant send message")
	}
}
