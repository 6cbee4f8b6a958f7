package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hiyaok/guardbot/internal/bot"
	"github.com/hiyaok/guardbot/internal/db"
	"github.com/hiyaok/guardbot/internal/event"
	"github.com/hiyaok/guardbot/internal/handlers/moderation"
	"github.com/hiyaok/guardbot/internal/i18n"
)

// raidJoinThreshold is how many joins within one minute count as a raid.
const raidJoinThreshold = 10

// Membership reacts to member churn: the bot being added to or thrown out
// of groups, new members joining (anti-bot, anti-raid, captcha, welcome)
// and administrator reshuffles.
type Membership struct {
	s              bot.Service
	executor       *moderation.Executor
	admins         *moderation.AdminChecker
	events         *event.Bus
	captchaTimeout time.Duration

	mutex        sync.Mutex
	lastWelcomes map[int64]int
}

func NewMembership(s bot.Service, executor *moderation.Executor, admins *moderation.AdminChecker, events *event.Bus, captchaTimeout time.Duration) *Membership {
	return &Membership{
		s:              s,
		executor:       executor,
		admins:         admins,
		events:         events,
		captchaTimeout: captchaTimeout,
		lastWelcomes:   map[int64]int{},
	}
}

func (h *Membership) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	switch {
	case u.MyChatMember != nil:
		return false, h.handleOwnMembership(ctx, u.MyChatMember)
	case u.ChatMember != nil:
		// Administrator lists went stale.
		h.admins.Invalidate(u.ChatMember.Chat.ID)
		return true, nil
	case u.CallbackQuery != nil && strings.HasPrefix(u.CallbackQuery.Data, "captcha;"):
		return false, h.handleCaptchaAnswer(ctx, u.CallbackQuery)
	case u.Message == nil || chat == nil:
		return true, nil
	}

	msg := u.Message
	if !chat.IsGroup() && !chat.IsSuperGroup() {
		return true, nil
	}
	if len(msg.NewChatMembers) > 0 {
		return false, h.handleJoins(ctx, chat, msg)
	}
	return true, nil
}

func (h *Membership) handleOwnMembership(ctx context.Context, upd *api.ChatMemberUpdated) error {
	entry := log.WithField("object", "Membership").WithField("chat_id", upd.Chat.ID)
	status := upd.NewChatMember.Status
	switch status {
	case "member", "administrator":
		_, err := h.s.RegisterGroup(ctx, &upd.Chat, upd.From.ID)
		h.admins.Invalidate(upd.Chat.ID)
		return err
	case "left", "kicked":
		entry.Info("removed from group, dropping its state")
		if err := h.s.GetDB().ClearPendingInputsForGroup(ctx, upd.Chat.ID); err != nil {
			entry.WithError(err).Warn("cant clear pending inputs")
		}
		return h.s.GetDB().DeleteGroup(ctx, upd.Chat.ID)
	}
	return nil
}

func (h *Membership) handleJoins(ctx context.Context, chat *api.Chat, msg *api.Message) error {
	group, err := h.s.GetGroup(ctx, chat)
	if err != nil {
		return errors.Wrap(err, "cant load group")
	}
	entry := log.WithField("object", "Membership").WithField("chat_id", chat.ID)

	for i := range msg.NewChatMembers {
		member := msg.NewChatMembers[i]
		if member.ID == h.s.GetBot().BotID() {
			continue
		}
		if _, err := h.s.RegisterUser(ctx, &member); err != nil {
			entry.WithError(err).Warn("cant register joiner")
		}
		if err := h.s.GetDB().AppendMessageEvent(ctx, &db.MessageEvent{
			UserID:    member.ID,
			ChatID:    chat.ID,
			CreatedAt: time.Now(),
			Type:      "join",
		}); err != nil {
			entry.WithError(err).Warn("cant record join event")
		}

		if group.Settings.AntiBot && member.IsBot {
			if err := h.executor.Apply(ctx, group, member.ID, bot.GetFullName(&member), db.ActionKick, "bot account", 0); err != nil {
				entry.WithError(err).Warn("cant kick joined bot")
				continue
			}
			h.events.Enqueue(event.Event{Notification: &event.Notification{
				ChatID: chat.ID,
				Text:   i18n.Get("A new bot was detected and removed from the group.", group.Settings.Language),
			}})
			continue
		}

		if group.Settings.AntiRaid && h.isRaid(ctx, chat.ID) {
			entry.WithField("user_id", member.ID).Info("join burst, removing joiner")
			if err := h.executor.Apply(ctx, group, member.ID, bot.GetFullName(&member), db.ActionKick, "raid protection", 0); err != nil {
				entry.WithError(err).Warn("cant kick raid joiner")
			}
			continue
		}

		if group.Settings.CaptchaOnJoin {
			if err := h.challenge(ctx, group, &member); err != nil {
				entry.WithError(err).Warn("cant issue captcha")
			}
			continue
		}

		if group.Settings.WelcomeEnabled {
			h.welcome(ctx, group, &member)
		}
	}
	return nil
}

func (h *Membership) isRaid(ctx context.Context, chatID int64) bool {
	count, err := h.s.GetDB().CountJoinEvents(ctx, chatID, time.Now().Add(-time.Minute))
	if err != nil {
		log.WithField("object", "Membership").WithError(err).Warn("cant count joins")
		return false
	}
	return count >= raidJoinThreshold
}

func (h *Membership) challenge(ctx context.Context, group *db.Group, member *api.User) error {
	muted := api.ChatPermissions{}
	if err := h.s.GetBot().RestrictMember(ctx, group.ID, member.ID, &muted, 0); err != nil {
		return errors.Wrap(err, "cant restrict joiner")
	}

	token := uuid.New()
	markup := api.NewInlineKeyboardMarkup(api.NewInlineKeyboardRow(
		api.NewInlineKeyboardButtonData("🚻", fmt.Sprintf("captcha;%s", token)),
	))
	text := fmt.Sprintf(i18n.Get("Hello %s, welcome to %s!", group.Settings.Language), bot.GetFullName(member), group.Title) +
		"\n" + i18n.Get("Please solve the captcha to start chatting.", group.Settings.Language)
	messageID, err := h.s.GetBot().SendMessage(ctx, group.ID, text, &bot.SendOptions{ReplyMarkup: markup})
	if err != nil {
		return errors.Wrap(err, "cant send captcha")
	}

	now := time.Now()
	return h.s.GetDB().CreateCaptchaChallenge(ctx, &db.CaptchaChallenge{
		ChatID:      group.ID,
		UserID:      member.ID,
		SuccessUUID: token,
		MessageID:   messageID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(h.captchaTimeout),
	})
}

func (h *Membership) handleCaptchaAnswer(ctx context.Context, query *api.CallbackQuery) error {
	if query.From == nil || query.Message == nil {
		return nil
	}
	chatID := query.Message.Chat.ID
	challenge, err := h.s.GetDB().GetCaptchaChallenge(ctx, chatID, query.From.ID)
	if errors.Is(err, db.ErrNotFound) {
		// Someone else pressed the button.
		return h.s.GetBot().AnswerCallback(ctx, query.ID, i18n.Get("This captcha is not for you.", h.s.GetLanguage(ctx, chatID)))
	}
	if err != nil {
		return err
	}
	token := strings.TrimPrefix(query.Data, "captcha;")
	if token != challenge.SuccessUUID {
		return h.s.GetBot().AnswerCallback(ctx, query.ID, "")
	}

	unrestricted := api.ChatPermissions{
		CanSendMessages:       true,
		CanSendAudios:         true,
		CanSendDocuments:      true,
		CanSendPhotos:         true,
		CanSendVideos:         true,
		CanSendVideoNotes:     true,
		CanSendVoiceNotes:     true,
		CanSendPolls:          true,
		CanSendOtherMessages:  true,
		CanAddWebPagePreviews: true,
	}
	if err := h.s.GetBot().RestrictMember(ctx, chatID, query.From.ID, &unrestricted, 0); err != nil {
		return errors.Wrap(err, "cant lift captcha restriction")
	}
	_ = h.s.GetBot().DeleteMessage(ctx, chatID, challenge.MessageID)
	if err := h.s.GetDB().DeleteCaptchaChallenge(ctx, chatID, query.From.ID); err != nil {
		return err
	}
	if err := h.s.GetBot().AnswerCallback(ctx, query.ID, ""); err != nil {
		return err
	}

	group, err := h.s.GetDB().GetGroup(ctx, chatID)
	if err == nil && group.Settings.WelcomeEnabled {
		h.welcome(ctx, group, query.From)
	}
	return nil
}

func (h *Membership) welcome(ctx context.Context, group *db.Group, member *api.User) {
	template := group.Settings.WelcomeMessage
	var text string
	if template == "" {
		text = fmt.Sprintf(i18n.Get("Hello %s, welcome to %s!", group.Settings.Language), bot.GetFullName(member), group.Title)
	} else {
		text = tool.ExecTemplate(template, map[string]any{
			"user":  bot.GetFullName(member),
			"group": group.Title,
		})
	}

	h.mutex.Lock()
	previous := h.lastWelcomes[group.ID]
	h.mutex.Unlock()
	if group.Settings.WelcomeDeletePrevious && previous != 0 {
		_ = h.s.GetBot().DeleteMessage(ctx, group.ID, previous)
	}

	messageID, err := h.s.GetBot().SendMessage(ctx, group.ID, text, nil)
	if err != nil {
		log.WithField("object", "Membership").WithError(err).Warn("cant send welcome")
		return
	}
	h.mutex.Lock()
	h.lastWelcomes[group.ID] = messageID
	h.mutex.Unlock()
}
