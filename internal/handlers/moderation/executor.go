package moderation

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hiyaok/guardbot/internal/bot"
	"github.com/hiyaok/guardbot/internal/db"
	"github.com/hiyaok/guardbot/internal/event"
	"github.com/hiyaok/guardbot/internal/i18n"
	"github.com/hiyaok/guardbot/internal/observability"
)

// kickBanWindow keeps a kick from becoming a permanent ban: banning with a
// near-future until date lets the user rejoin right away.
const kickBanWindow = 60 * time.Second

var mutedPermissions = api.ChatPermissions{}

// Executor turns a decided moderation action into Bot API calls and emits
// the matching notification and audit events. It does not decide anything
// itself; deciding is the filter chain's and the escalator's job.
type Executor struct {
	transport bot.Transport
	admins    *AdminChecker
	events    *event.Bus
}

func NewExecutor(transport bot.Transport, admins *AdminChecker, events *event.Bus) *Executor {
	return &Executor{transport: transport, admins: admins, events: events}
}

// Apply performs action against userID in group. duration only matters for
// mute; zero means permanent. Administrators are rechecked here so an
// action decided on stale data still cannot hit an admin.
func (e *Executor) Apply(ctx context.Context, group *db.Group, userID int64, displayName, action, reason string, duration time.Duration) error {
	entry := log.WithField("object", "Executor").
		WithField("chat_id", group.ID).
		WithField("user_id", userID).
		WithField("action", action)

	if admin, err := e.admins.IsAdministrator(ctx, group.ID, userID); err != nil {
		return errors.Wrap(err, "cant verify admin status")
	} else if admin {
		return ErrTargetIsAdmin
	}
	if !e.admins.BotCanRestrict(ctx, group.ID) {
		return bot.ErrNoPrivileges
	}

	var err error
	switch action {
	case db.ActionMute:
		until := int64(0)
		if duration > 0 {
			until = time.Now().Add(duration).Unix()
		}
		err = e.transport.RestrictMember(ctx, group.ID, userID, &mutedPermissions, until)
	case db.ActionKick:
		if err = e.transport.RemoveMember(ctx, group.ID, userID, time.Now().Add(kickBanWindow).Unix()); err == nil {
			err = e.transport.UnbanMember(ctx, group.ID, userID)
		}
	case db.ActionBan:
		err = e.transport.RemoveMember(ctx, group.ID, userID, 0)
	default:
		return errors.Wrap(ErrUnknownAction, action)
	}
	if err != nil {
		entry.WithError(err).Error("action failed")
		return err
	}

	observability.RecordModerationAction(action)
	e.notify(group, userID, displayName, action, reason, duration)
	return nil
}

// Unban lifts a ban. Unlike Apply it carries no admin recheck: the target
// of an unban is not a member.
func (e *Executor) Unban(ctx context.Context, group *db.Group, userID int64) error {
	if !e.admins.BotCanRestrict(ctx, group.ID) {
		return bot.ErrNoPrivileges
	}
	if err := e.transport.UnbanMember(ctx, group.ID, userID); err != nil {
		return err
	}
	observability.RecordModerationAction("unban")
	e.emitAudit(group, userID, "unban", "", 0)
	if e.events != nil {
		e.events.Enqueue(event.Event{Notification: &event.Notification{
			ChatID:     group.ID,
			Text:       fmt.Sprintf(i18n.Get("User %d has been unbanned", group.Settings.Language), userID),
			LogChannel: logChannel(group),
		}})
	}
	return nil
}

// Unmute restores the group default permissions for userID.
func (e *Executor) Unmute(ctx context.Context, group *db.Group, userID int64) error {
	if !e.admins.BotCanRestrict(ctx, group.ID) {
		return bot.ErrNoPrivileges
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
	if err := e.transport.RestrictMember(ctx, group.ID, userID, &unrestricted, 0); err != nil {
		return err
	}
	observability.RecordModerationAction("unmute")
	e.emitAudit(group, userID, "unmute", "", 0)
	return nil
}

func (e *Executor) notify(group *db.Group, userID int64, displayName, action, reason string, duration time.Duration) {
	e.emitAudit(group, userID, action, reason, duration)
	if e.events == nil {
		return
	}
	lang := group.Settings.Language
	var text string
	switch action {
	case db.ActionMute:
		text = fmt.Sprintf(i18n.Get("%s has been muted", lang), displayName)
	case db.ActionKick:
		text = fmt.Sprintf(i18n.Get("%s has been kicked from the group", lang), displayName)
	case db.ActionBan:
		text = fmt.Sprintf(i18n.Get("%s has been banned from the group", lang), displayName)
	}
	if reason != "" {
		text += "\n" + fmt.Sprintf(i18n.Get("Reason: %s", lang), reason)
	}
	e.events.Enqueue(event.Event{Notification: &event.Notification{
		ChatID:     group.ID,
		Text:       text,
		LogChannel: logChannel(group),
	}})
}

func (e *Executor) emitAudit(group *db.Group, userID int64, action, reason string, duration time.Duration) {
	if e.events == nil {
		return
	}
	e.events.Enqueue(event.Event{Audit: &event.AuditRecord{
		ChatID:   group.ID,
		TargetID: userID,
		Action:   action,
		Reason:   reason,
		Duration: duration,
		At:       time.Now(),
	}})
}
