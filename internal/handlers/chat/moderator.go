package chat

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/hiyaok/guardbot/internal/bot"
	"github.com/hiyaok/guardbot/internal/db"
	"github.com/hiyaok/guardbot/internal/event"
	"github.com/hiyaok/guardbot/internal/handlers/moderation"
	"github.com/hiyaok/guardbot/internal/i18n"
	"github.com/hiyaok/guardbot/internal/observability"
)

// SpamScorer asynchronously rates a message and is free to be a no-op.
// The verdict is advisory: it updates the sender's stored spam score and
// never deletes anything by itself.
type SpamScorer interface {
	Score(ctx context.Context, userID int64, text string)
}

// Moderator is the group-message pipeline: it records ingress, exempts
// administrators, runs the content filter chain, then the flood check,
// and hands violations to the escalator.
type Moderator struct {
	s        bot.Service
	chain    *moderation.Chain
	flood    *moderation.FloodDetector
	esc      *moderation.Escalator
	executor *moderation.Executor
	admins   *moderation.AdminChecker
	events   *event.Bus
	scorer   SpamScorer
	commands *groupCommands
}

func NewModerator(
	s bot.Service,
	chain *moderation.Chain,
	flood *moderation.FloodDetector,
	esc *moderation.Escalator,
	executor *moderation.Executor,
	admins *moderation.AdminChecker,
	events *event.Bus,
	scorer SpamScorer,
) *Moderator {
	m := &Moderator{
		s:        s,
		chain:    chain,
		flood:    flood,
		esc:      esc,
		executor: executor,
		admins:   admins,
		events:   events,
		scorer:   scorer,
	}
	m.commands = newGroupCommands(s, esc, executor, admins)
	return m
}

func (m *Moderator) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u.Message == nil || chat == nil || user == nil {
		return true, nil
	}
	if !chat.IsGroup() && !chat.IsSuperGroup() {
		return true, nil
	}
	msg := u.Message
	if user.ID == m.s.GetBot().BotID() {
		return true, nil
	}

	done := observability.StartMessageProcessing()
	entry := log.WithField("object", "Moderator").WithField("chat_id", chat.ID).WithField("user_id", user.ID)

	if _, err := m.s.RegisterUser(ctx, user); err != nil {
		entry.WithError(err).Warn("cant register user")
	}
	group, err := m.s.GetGroup(ctx, chat)
	if err != nil {
		// Storage trouble never silences the whole group.
		entry.WithError(err).Error("cant load group, letting message through")
		done("storage_error")
		return true, nil
	}
	if err := m.s.GetDB().AppendMessageEvent(ctx, &db.MessageEvent{
		UserID:    user.ID,
		ChatID:    chat.ID,
		CreatedAt: time.Now(),
		Type:      string(bot.GetMessageType(msg)),
	}); err != nil {
		entry.WithError(err).Warn("cant record message event")
	}
	if m.scorer != nil && msg.Text != "" {
		m.scorer.Score(ctx, user.ID, msg.Text)
	}

	if bot.GetMessageType(msg) == bot.MessageTypeService {
		if group.Settings.AntiService && m.admins.BotCanDelete(ctx, chat.ID) {
			_ = m.s.GetBot().DeleteMessage(ctx, chat.ID, msg.MessageID)
		}
		done("service")
		return false, nil
	}

	admin, err := m.admins.IsAdministrator(ctx, chat.ID, user.ID)
	if err != nil {
		entry.WithError(err).Warn("cant check admin status, letting message through")
		done("admin_check_error")
		return true, nil
	}
	if admin || group.IsGroupAdmin(user.ID) {
		if msg.IsCommand() {
			proceed, err := m.commands.dispatch(ctx, group, msg, user)
			done("command")
			return proceed, err
		}
		done("admin")
		return true, nil
	}

	canDelete := m.admins.BotCanDelete(ctx, chat.ID)

	// Commands from regular members still pass through the chain first,
	// so blacklist and anti_command verdicts apply to them.
	if verdict := m.chain.Evaluate(group, msg); verdict != nil {
		m.applyVerdict(ctx, group, msg, user, verdict, canDelete)
		done("filtered")
		return false, nil
	}

	if msg.IsCommand() {
		proceed, err := m.commands.dispatch(ctx, group, msg, user)
		done("command")
		return proceed, err
	}

	if group.Settings.AntiFlood {
		flooding, err := m.flood.IsFlooding(ctx, user.ID, chat.ID, moderation.Threshold(&group.Settings), time.Now())
		if err != nil {
			entry.WithError(err).Warn("cant evaluate flood, letting message through")
			done("flood_check_error")
			return true, nil
		}
		if flooding {
			m.handleFlood(ctx, group, msg, user, canDelete)
			done("flood")
			return false, nil
		}
	}

	done("ok")
	return true, nil
}

func (m *Moderator) applyVerdict(ctx context.Context, group *db.Group, msg *api.Message, user *api.User, verdict *moderation.Verdict, canDelete bool) {
	entry := log.WithField("object", "Moderator").WithField("filter", verdict.Filter)
	observability.RecordFilterVerdict(verdict.Filter)

	if verdict.Delete && canDelete {
		if err := m.s.GetBot().DeleteMessage(ctx, group.ID, msg.MessageID); err != nil {
			entry.WithError(err).Warn("cant delete message")
		}
	}
	if verdict.ReplyKey != "" {
		text := fmt.Sprintf(i18n.Get(verdict.ReplyKey, group.Settings.Language), verdict.ReplyArgs...)
		m.events.Enqueue(event.Event{Notification: &event.Notification{ChatID: group.ID, Text: text}})
	}

	if verdict.Warn {
		if _, err := m.esc.Warn(ctx, group, user.ID, bot.GetFullName(user), verdict.WarnReason); err != nil {
			entry.WithError(err).Warn("cant record warning")
		}
	}
}

func (m *Moderator) handleFlood(ctx context.Context, group *db.Group, msg *api.Message, user *api.User, canDelete bool) {
	entry := log.WithField("object", "Moderator").WithField("chat_id", group.ID).WithField("user_id", user.ID)
	observability.RecordFloodDetection()

	if canDelete {
		if err := m.s.GetBot().DeleteMessage(ctx, group.ID, msg.MessageID); err != nil {
			entry.WithError(err).Warn("cant delete flood message")
		}
	}

	displayName := bot.GetFullName(user)
	action := group.Settings.FloodAction
	if action == "" {
		action = db.DefaultSettings().FloodAction
	}
	if action == db.ActionWarn {
		if _, err := m.esc.Warn(ctx, group, user.ID, displayName, "flooding"); err != nil {
			entry.WithError(err).Warn("cant warn flooder")
		}
		return
	}
	duration := time.Duration(group.Settings.FloodMuteDuration) * time.Minute
	if err := m.executor.Apply(ctx, group, user.ID, displayName, action, i18n.Get("Flood detected", group.Settings.Language), duration); err != nil {
		entry.WithError(err).Warn("cant apply flood action")
	}
}
