package chat

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hiyaok/guardbot/internal/bot"
	"github.com/hiyaok/guardbot/internal/infra"
)

const sweepInterval = 30 * time.Second

// CaptchaSweeper periodically removes joiners who never answered their
// captcha: the challenge message is deleted, the user is kicked and their
// failure counter bumped.
type CaptchaSweeper struct {
	s      bot.Service
	cancel context.CancelFunc
	done   chan struct{}
}

func NewCaptchaSweeper(s bot.Service) *CaptchaSweeper {
	return &CaptchaSweeper{s: s}
}

func (c *CaptchaSweeper) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	var closeDone sync.Once
	go infra.GoRecoverable(-1, "captcha sweeper", func() {
		defer closeDone.Do(func() { close(c.done) })
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sweep(ctx)
			}
		}
	})
	return nil
}

func (c *CaptchaSweeper) Stop(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *CaptchaSweeper) sweep(ctx context.Context) {
	entry := log.WithField("object", "CaptchaSweeper")
	expired, err := c.s.GetDB().ListExpiredCaptchaChallenges(ctx, time.Now())
	if err != nil {
		entry.WithError(err).Warn("cant list expired challenges")
		return
	}
	for _, challenge := range expired {
		_ = c.s.GetBot().DeleteMessage(ctx, challenge.ChatID, challenge.MessageID)
		if err := c.s.GetBot().RemoveMember(ctx, challenge.ChatID, challenge.UserID, time.Now().Add(time.Minute).Unix()); err != nil {
			entry.WithField("chat_id", challenge.ChatID).WithField("user_id", challenge.UserID).
				WithError(err).Warn("cant remove silent joiner")
		}
		if err := c.s.GetDB().DeleteCaptchaChallenge(ctx, challenge.ChatID, challenge.UserID); err != nil {
			entry.WithError(err).Warn("cant drop challenge")
			continue
		}
		c.bumpFails(ctx, challenge.UserID)
	}
}

func (c *CaptchaSweeper) bumpFails(ctx context.Context, userID int64) {
	user, err := c.s.GetDB().GetUser(ctx, userID)
	if err != nil {
		return
	}
	user.CaptchaFails++
	_ = c.s.GetDB().UpsertUser(ctx, user)
}
