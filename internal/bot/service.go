package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hiyaok/guardbot/internal/config"
	"github.com/hiyaok/guardbot/internal/db"
)

type service struct {
	bot Transport
	db  db.Client
}

func NewService(bot Transport, db db.Client) *service {
	return &service{
		bot: bot,
		db:  db,
	}
}

func (s *service) GetBot() Transport {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

// GetGroup loads the group, registering it with default settings when
// it is not known yet.
func (s *service) GetGroup(ctx context.Context, chat *api.Chat) (*db.Group, error) {
	if chat == nil {
		return nil, errors.New("nil chat")
	}
	group, err := s.db.GetGroup(ctx, chat.ID)
	if err == nil {
		return group, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	return s.RegisterGroup(ctx, chat, 0)
}

// RegisterGroup creates the group record with default settings and a
// fresh admin cache. The user who added the bot becomes the owner;
// when unknown, the chat creator does.
func (s *service) RegisterGroup(ctx context.Context, chat *api.Chat, addedBy int64) (*db.Group, error) {
	if chat == nil {
		return nil, errors.New("nil chat")
	}
	group := &db.Group{
		ID:       chat.ID,
		Title:    chat.Title,
		Username: chat.UserName,
		OwnerID:  addedBy,
		Settings: db.DefaultSettings(),
	}

	admins, err := s.bot.GetChatAdministrators(ctx, chat.ID)
	if err != nil {
		log.WithField("chat_id", chat.ID).WithError(err).Warn("cant fetch administrators on registration")
	}
	adminIDs := make([]int64, 0, len(admins))
	for _, admin := range admins {
		adminIDs = append(adminIDs, admin.User.ID)
		if group.OwnerID == 0 && admin.IsCreator() {
			group.OwnerID = admin.User.ID
		}
	}

	if err := s.db.UpsertGroup(ctx, group); err != nil {
		return nil, errors.WithMessage(err, "cant register group")
	}
	if len(adminIDs) > 0 {
		if err := s.db.SetGroupAdmins(ctx, chat.ID, adminIDs); err != nil {
			return nil, errors.WithMessage(err, "cant store group admins")
		}
	}
	group.Admins = adminIDs
	log.WithFields(log.Fields{"chat_id": chat.ID, "title": chat.Title}).Info("registered new group")
	return group, nil
}

// RegisterUser upserts the user row, bumping the message counter.
func (s *service) RegisterUser(ctx context.Context, user *api.User) (*db.User, error) {
	if user == nil {
		return nil, errors.New("nil user")
	}
	known, err := s.db.GetUser(ctx, user.ID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if known == nil {
		known = &db.User{ID: user.ID, TrustScore: 50}
	}
	known.UserName = user.UserName
	known.FirstName = user.FirstName
	known.LastName = user.LastName
	known.IsBot = user.IsBot
	known.MessageCount++
	if err := s.db.UpsertUser(ctx, known); err != nil {
		return nil, errors.WithMessage(err, "cant register user")
	}
	return known, nil
}

func (s *service) GetLanguage(ctx context.Context, chatID int64) string {
	group, err := s.db.GetGroup(ctx, chatID)
	if err != nil || group.Settings.Language == "" {
		return config.Get().DefaultLanguage
	}
	return group.Settings.Language
}
