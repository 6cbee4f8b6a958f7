package private

import (
	"context"
	"fmt"
	"strconv"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/hiyaok/guardbot/internal/bot"
	"github.com/hiyaok/guardbot/internal/db"
	"github.com/hiyaok/guardbot/internal/i18n"
)

const (
	screenMain        = "main"
	screenGroups      = "groups"
	screenGroup       = "group"
	screenProtections = "protections"
	screenMedia       = "media"
	screenPenalties   = "penalties"
)

// renderMenu draws one screen of the settings dialog. messageID = 0 sends
// a fresh message, otherwise the existing one is edited in place. Screens
// are rendered from current state, never patched incrementally.
func (c *Conversation) renderMenu(ctx context.Context, userID int64, messageID int, screen string, chatID int64) error {
	var (
		text   string
		markup api.InlineKeyboardMarkup
		err    error
	)
	switch screen {
	case screenMain:
		text = i18n.Get("Hi! I keep your groups clean. Pick an option:", "en")
		markup = api.NewInlineKeyboardMarkup(
			api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData("My groups", "groups")),
		)
	case screenGroups:
		text, markup, err = c.groupsScreen(ctx, userID)
	case screenGroup:
		text, markup, err = c.groupScreen(ctx, chatID)
	case screenProtections:
		text, markup, err = c.protectionsScreen(ctx, chatID)
	case screenMedia:
		text, markup, err = c.mediaScreen(ctx, chatID)
	case screenPenalties:
		text, markup, err = c.penaltiesScreen(ctx, chatID)
	default:
		return errors.Errorf("unknown screen %q", screen)
	}
	if err != nil {
		return err
	}

	if messageID == 0 {
		_, err = c.s.GetBot().SendMessage(ctx, userID, text, &bot.SendOptions{ReplyMarkup: markup})
		return err
	}
	return c.s.GetBot().EditMessageText(ctx, userID, messageID, text, &markup)
}

func (c *Conversation) groupsScreen(ctx context.Context, userID int64) (string, api.InlineKeyboardMarkup, error) {
	groups, err := c.s.GetDB().ListGroupsManagedBy(ctx, userID)
	if err != nil {
		return "", api.InlineKeyboardMarkup{}, err
	}
	if len(groups) == 0 {
		return i18n.Get("You do not manage any groups I am in.", "en"), api.NewInlineKeyboardMarkup(
			api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData("« Back", "menu")),
		), nil
	}
	rows := make([][]api.InlineKeyboardButton, 0, len(groups)+1)
	for _, group := range groups {
		title := group.Title
		if title == "" {
			title = strconv.FormatInt(group.ID, 10)
		}
		rows = append(rows, api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(title, fmt.Sprintf("group;%d", group.ID)),
		))
	}
	rows = append(rows, api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData("« Back", "menu")))
	return i18n.Get("Pick a group to manage:", "en"), api.NewInlineKeyboardMarkup(rows...), nil
}

func (c *Conversation) groupScreen(ctx context.Context, chatID int64) (string, api.InlineKeyboardMarkup, error) {
	group, err := c.s.GetDB().GetGroup(ctx, chatID)
	if err != nil {
		return "", api.InlineKeyboardMarkup{}, err
	}
	text := fmt.Sprintf("%s\n%s", group.Title, i18n.Get("What would you like to configure?", "en"))
	markup := api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("Protections", fmt.Sprintf("protections;%d", chatID)),
			api.NewInlineKeyboardButtonData("Media", fmt.Sprintf("media;%d", chatID)),
		),
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("Penalties", fmt.Sprintf("penalties;%d", chatID)),
		),
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("Blacklist user", fmt.Sprintf("input;%d;%s", chatID, db.OpAddToBlacklist)),
		),
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("Block word", fmt.Sprintf("input;%d;%s", chatID, db.OpAddBlockedWord)),
			api.NewInlineKeyboardButtonData("Unblock word", fmt.Sprintf("input;%d;%s", chatID, db.OpRemoveBlockedWord)),
		),
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("Welcome text", fmt.Sprintf("input;%d;%s", chatID, db.OpEditWelcomeMessage)),
			api.NewInlineKeyboardButtonData("Rules text", fmt.Sprintf("input;%d;%s", chatID, db.OpEditRulesText)),
		),
		api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData("« Back", "groups")),
	)
	return text, markup, nil
}

func (c *Conversation) protectionsScreen(ctx context.Context, chatID int64) (string, api.InlineKeyboardMarkup, error) {
	group, err := c.s.GetDB().GetGroup(ctx, chatID)
	if err != nil {
		return "", api.InlineKeyboardMarkup{}, err
	}
	s := group.Settings
	toggle := func(label string, on bool, key string) api.InlineKeyboardButton {
		return api.NewInlineKeyboardButtonData(flag(on)+" "+label, fmt.Sprintf("toggle;%d;%s", chatID, key))
	}
	markup := api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(toggle("Anti-spam", s.AntiSpam, "anti_spam"), toggle("Anti-flood", s.AntiFlood, "anti_flood")),
		api.NewInlineKeyboardRow(toggle("Anti-link", s.AntiLink, "anti_link"), toggle("Anti-forward", s.AntiForward, "anti_forward")),
		api.NewInlineKeyboardRow(toggle("Anti-command", s.AntiCommand, "anti_command"), toggle("Anti-service", s.AntiService, "anti_service")),
		api.NewInlineKeyboardRow(toggle("Anti-bot", s.AntiBot, "anti_bot"), toggle("Anti-raid", s.AntiRaid, "anti_raid")),
		api.NewInlineKeyboardRow(toggle("Captcha on join", s.CaptchaOnJoin, "captcha_on_join"), toggle("Welcome", s.WelcomeEnabled, "welcome_enabled")),
		api.NewInlineKeyboardRow(toggle("Action log", s.LogActions, "log_actions")),
		api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData("« Back", fmt.Sprintf("group;%d", chatID))),
	)
	return i18n.Get("Tap a protection to toggle it:", "en"), markup, nil
}

func (c *Conversation) mediaScreen(ctx context.Context, chatID int64) (string, api.InlineKeyboardMarkup, error) {
	group, err := c.s.GetDB().GetGroup(ctx, chatID)
	if err != nil {
		return "", api.InlineKeyboardMarkup{}, err
	}
	s := group.Settings
	toggle := func(label string, on bool, key string) api.InlineKeyboardButton {
		return api.NewInlineKeyboardButtonData(flag(on)+" "+label, fmt.Sprintf("toggle;%d;%s", chatID, key))
	}
	markup := api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(toggle("Photos", s.AllowPhotos, "allow_photos"), toggle("Videos", s.AllowVideos, "allow_videos")),
		api.NewInlineKeyboardRow(toggle("Audio", s.AllowAudios, "allow_audios"), toggle("Voice", s.AllowVoice, "allow_voice")),
		api.NewInlineKeyboardRow(toggle("Documents", s.AllowDocuments, "allow_documents"), toggle("Stickers", s.AllowStickers, "allow_stickers")),
		api.NewInlineKeyboardRow(toggle("GIFs", s.AllowAnimations, "allow_animations")),
		api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData("« Back", fmt.Sprintf("group;%d", chatID))),
	)
	return i18n.Get("Tap a media type to allow or forbid it:", "en"), markup, nil
}

func (c *Conversation) penaltiesScreen(ctx context.Context, chatID int64) (string, api.InlineKeyboardMarkup, error) {
	group, err := c.s.GetDB().GetGroup(ctx, chatID)
	if err != nil {
		return "", api.InlineKeyboardMarkup{}, err
	}
	s := group.Settings
	markup := api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData(
			fmt.Sprintf("Max warnings: %d", s.MaxWarnings), fmt.Sprintf("cycle;%d;max_warnings", chatID))),
		api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData(
			fmt.Sprintf("On max warnings: %s", s.WarningAction), fmt.Sprintf("cycle;%d;warning_action", chatID))),
		api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData(
			fmt.Sprintf("Flood threshold: %d/min", s.FloodThreshold), fmt.Sprintf("cycle;%d;flood_threshold", chatID))),
		api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData(
			fmt.Sprintf("On flood: %s", s.FloodAction), fmt.Sprintf("cycle;%d;flood_action", chatID))),
		api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData(
			fmt.Sprintf("Mute duration: %d min", s.FloodMuteDuration), fmt.Sprintf("cycle;%d;mute_duration", chatID))),
		api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData("« Back", fmt.Sprintf("group;%d", chatID))),
	)
	return i18n.Get("Penalty settings:", "en"), markup, nil
}

// applyToggle flips one boolean setting and returns the screen it lives on.
func (c *Conversation) applyToggle(ctx context.Context, chatID int64, key string) (string, error) {
	group, err := c.s.GetDB().GetGroup(ctx, chatID)
	if err != nil {
		return "", err
	}
	s := &group.Settings
	screen := screenProtections
	switch key {
	case "anti_spam":
		s.AntiSpam = !s.AntiSpam
	case "anti_flood":
		s.AntiFlood = !s.AntiFlood
	case "anti_link":
		s.AntiLink = !s.AntiLink
	case "anti_forward":
		s.AntiForward = !s.AntiForward
	case "anti_command":
		s.AntiCommand = !s.AntiCommand
	case "anti_service":
		s.AntiService = !s.AntiService
	case "anti_bot":
		s.AntiBot = !s.AntiBot
	case "anti_raid":
		s.AntiRaid = !s.AntiRaid
	case "captcha_on_join":
		s.CaptchaOnJoin = !s.CaptchaOnJoin
	case "welcome_enabled":
		s.WelcomeEnabled = !s.WelcomeEnabled
	case "log_actions":
		s.LogActions = !s.LogActions
	case "allow_photos":
		s.AllowPhotos, screen = !s.AllowPhotos, screenMedia
	case "allow_videos":
		s.AllowVideos, screen = !s.AllowVideos, screenMedia
	case "allow_audios":
		s.AllowAudios, screen = !s.AllowAudios, screenMedia
	case "allow_voice":
		s.AllowVoice, screen = !s.AllowVoice, screenMedia
	case "allow_documents":
		s.AllowDocuments, screen = !s.AllowDocuments, screenMedia
	case "allow_stickers":
		s.AllowStickers, screen = !s.AllowStickers, screenMedia
	case "allow_animations":
		s.AllowAnimations, screen = !s.AllowAnimations, screenMedia
	default:
		return "", errors.Errorf("unknown toggle %q", key)
	}
	return screen, c.s.GetDB().UpsertGroup(ctx, group)
}

var actionCycle = []string{db.ActionWarn, db.ActionMute, db.ActionKick, db.ActionBan}

// applyCycle advances one enumerated or stepped numeric setting.
func (c *Conversation) applyCycle(ctx context.Context, chatID int64, key string) error {
	group, err := c.s.GetDB().GetGroup(ctx, chatID)
	if err != nil {
		return err
	}
	s := &group.Settings
	switch key {
	case "max_warnings":
		s.MaxWarnings++
		if s.MaxWarnings > 5 {
			s.MaxWarnings = 1
		}
	case "warning_action":
		s.WarningAction = nextAction(s.WarningAction)
	case "flood_threshold":
		s.FloodThreshold += 5
		if s.FloodThreshold > 30 {
			s.FloodThreshold = 5
		}
	case "flood_action":
		s.FloodAction = nextAction(s.FloodAction)
	case "mute_duration":
		switch s.FloodMuteDuration {
		case 15:
			s.FloodMuteDuration = 60
		case 60:
			s.FloodMuteDuration = 24 * 60
		case 24 * 60:
			s.FloodMuteDuration = 15
		default:
			s.FloodMuteDuration = 60
		}
	default:
		return errors.Errorf("unknown cycle %q", key)
	}
	return c.s.GetDB().UpsertGroup(ctx, group)
}

func nextAction(current string) string {
	for i, action := range actionCycle {
		if action == current {
			return actionCycle[(i+1)%len(actionCycle)]
		}
	}
	return actionCycle[0]
}

func flag(on bool) string {
	if on {
		return "✅"
	}
	return "❌"
}
