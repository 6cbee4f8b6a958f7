package event

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/hiyaok/guardbot/internal/bot"
)

const deliverTimeout = 10 * time.Second

// NewChatNotifier delivers notifications to their chat and, when a log
// channel is configured, mirrors them there.
func NewChatNotifier(transport bot.Transport) Subscriber {
	return func(e Event) {
		if e.Notification == nil {
			return
		}
		n := e.Notification
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		defer cancel()

		opts := &bot.SendOptions{ReplyTo: n.ReplyTo}
		if _, err := transport.SendMessage(ctx, n.ChatID, n.Text, opts); err != nil {
			log.WithField("object", "ChatNotifier").WithField("chat_id", n.ChatID).
				WithError(err).Warn("cant deliver notification")
		}
		if n.LogChannel != 0 && n.LogChannel != n.ChatID {
			if _, err := transport.SendMessage(ctx, n.LogChannel, n.Text, nil); err != nil {
				log.WithField("object", "ChatNotifier").WithField("chat_id", n.LogChannel).
					WithError(err).Warn("cant mirror to log channel")
			}
		}
	}
}

// NewAuditSink records executed actions in the structured audit log.
func NewAuditSink(logger *zap.Logger) Subscriber {
	return func(e Event) {
		if e.Audit == nil || logger == nil {
			return
		}
		a := e.Audit
		logger.Info("moderation action",
			zap.Int64("chat_id", a.ChatID),
			zap.Int64("actor_id", a.ActorID),
			zap.Int64("target_id", a.TargetID),
			zap.String("action", a.Action),
			zap.String("reason", a.Reason),
			zap.Duration("duration", a.Duration),
			zap.Time("at", a.At),
		)
	}
}
