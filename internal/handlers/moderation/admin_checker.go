package moderation

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"

	"github.com/hiyaok/guardbot/internal/bot"
)

const adminCacheSize = 1024

// AdminChecker answers "is this user an administrator of this chat" and
// "does the bot hold this right" from a short-lived cache, so the hot
// message path does not call getChatAdministrators per message.
type AdminChecker struct {
	transport bot.Transport
	cache     *expirable.LRU[int64, []api.ChatMember]
}

func NewAdminChecker(transport bot.Transport, ttl time.Duration) *AdminChecker {
	return &AdminChecker{
		transport: transport,
		cache:     expirable.NewLRU[int64, []api.ChatMember](adminCacheSize, nil, ttl),
	}
}

func (a *AdminChecker) administrators(ctx context.Context, chatID int64) ([]api.ChatMember, error) {
	if members, ok := a.cache.Get(chatID); ok {
		return members, nil
	}
	members, err := a.transport.GetChatAdministrators(ctx, chatID)
	if err != nil {
		return nil, err
	}
	a.cache.Add(chatID, members)
	return members, nil
}

// IsAdministrator reports whether userID is a creator or administrator of
// chatID. A transport failure is returned to the caller, which decides the
// fail-open policy.
func (a *AdminChecker) IsAdministrator(ctx context.Context, chatID, userID int64) (bool, error) {
	members, err := a.administrators(ctx, chatID)
	if err != nil {
		return false, err
	}
	for _, member := range members {
		if member.User != nil && member.User.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

// BotCanDelete reports whether the bot may delete messages in chatID.
func (a *AdminChecker) BotCanDelete(ctx context.Context, chatID int64) bool {
	return a.botRight(ctx, chatID, func(m *api.ChatMember) bool { return m.CanDeleteMessages })
}

// BotCanRestrict reports whether the bot may restrict or ban members in chatID.
func (a *AdminChecker) BotCanRestrict(ctx context.Context, chatID int64) bool {
	return a.botRight(ctx, chatID, func(m *api.ChatMember) bool { return m.CanRestrictMembers })
}

func (a *AdminChecker) botRight(ctx context.Context, chatID int64, right func(*api.ChatMember) bool) bool {
	botID := a.transport.BotID()
	members, err := a.administrators(ctx, chatID)
	if err != nil {
		log.WithField("object", "AdminChecker").WithField("method", "botRight").
			WithField("chat_id", chatID).WithError(err).Warn("cant list administrators")
		return false
	}
	for i := range members {
		member := members[i]
		if member.User == nil || member.User.ID != botID {
			continue
		}
		if member.IsCreator() {
			return true
		}
		return right(&member)
	}
	return false
}

// Invalidate drops the cached administrator list for chatID. Called when the
// bot observes an administrator promotion or demotion.
func (a *AdminChecker) Invalidate(chatID int64) {
	a.cache.Remove(chatID)
}
