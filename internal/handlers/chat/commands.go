package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hiyaok/guardbot/internal/bot"
	"github.com/hiyaok/guardbot/internal/db"
	"github.com/hiyaok/guardbot/internal/handlers/moderation"
	"github.com/hiyaok/guardbot/internal/i18n"
)

// groupCommands routes slash commands issued inside groups. Moderation
// commands are admin only; the rest are open to everyone.
type groupCommands struct {
	s        bot.Service
	esc      *moderation.Escalator
	executor *moderation.Executor
	admins   *moderation.AdminChecker
}

func newGroupCommands(s bot.Service, esc *moderation.Escalator, executor *moderation.Executor, admins *moderation.AdminChecker) *groupCommands {
	return &groupCommands{s: s, esc: esc, executor: executor, admins: admins}
}

// dispatch returns proceed=false when the command was consumed here.
func (c *groupCommands) dispatch(ctx context.Context, group *db.Group, msg *api.Message, user *api.User) (bool, error) {
	command := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	lang := group.Settings.Language

	switch command {
	case "start", "help":
		c.reply(ctx, group, msg, c.helpText(lang))
		return false, nil
	case "rules":
		rules := group.Settings.RulesText
		if rules == "" {
			rules = i18n.Get("No rules have been set for this group yet.", lang)
		}
		c.reply(ctx, group, msg, rules)
		return false, nil
	case "id":
		c.reply(ctx, group, msg, fmt.Sprintf("chat: %d\nuser: %d", group.ID, user.ID))
		return false, nil
	case "wordlist":
		if len(group.BlockedWords) == 0 {
			c.reply(ctx, group, msg, i18n.Get("No blocked words configured.", lang))
			return false, nil
		}
		c.reply(ctx, group, msg, strings.Join(group.BlockedWords, ", "))
		return false, nil
	case "warns":
		targetID, _ := c.target(msg, args)
		if targetID == 0 {
			targetID = user.ID
		}
		warning, err := c.esc.Status(ctx, group.ID, targetID)
		if err != nil {
			return false, err
		}
		maxWarnings := group.Settings.MaxWarnings
		c.reply(ctx, group, msg, fmt.Sprintf(i18n.Get("Warning %d/%d", lang), warning.Count, maxWarnings))
		return false, nil
	case "notes":
		return false, c.listNotes(ctx, group, msg)
	case "get":
		return false, c.getNote(ctx, group, msg, args)
	}

	admin, err := c.isAdmin(ctx, group, user.ID)
	if err != nil {
		log.WithField("object", "groupCommands").WithError(err).Warn("cant check admin status")
		return false, nil
	}
	if !admin {
		// Unknown or privileged command from a regular member: it may
		// still be a stored custom command.
		return false, c.tryCustomCommand(ctx, group, msg, command)
	}

	switch command {
	case "warn":
		return false, c.cmdWarn(ctx, group, msg, args)
	case "unwarn":
		targetID, err := c.target(msg, args)
		if err != nil {
			c.reply(ctx, group, msg, i18n.Get("Invalid user ID. Send a numeric ID.", lang))
			return false, nil
		}
		return false, c.esc.Forgive(ctx, group.ID, targetID)
	case "mute":
		return false, c.cmdAction(ctx, group, msg, args, db.ActionMute)
	case "unmute":
		targetID, err := c.target(msg, args)
		if err != nil {
			c.reply(ctx, group, msg, i18n.Get("Invalid user ID. Send a numeric ID.", lang))
			return false, nil
		}
		return false, c.executor.Unmute(ctx, group, targetID)
	case "kick":
		return false, c.cmdAction(ctx, group, msg, args, db.ActionKick)
	case "ban":
		return false, c.cmdAction(ctx, group, msg, args, db.ActionBan)
	case "unban":
		targetID, err := c.target(msg, args)
		if err != nil {
			c.reply(ctx, group, msg, i18n.Get("Invalid user ID. Send a numeric ID.", lang))
			return false, nil
		}
		return false, c.executor.Unban(ctx, group, targetID)
	case "bl":
		targetID, err := c.target(msg, args)
		if err != nil {
			c.reply(ctx, group, msg, i18n.Get("Invalid user ID. Send a numeric ID.", lang))
			return false, nil
		}
		if err := c.s.GetDB().AddToBlacklist(ctx, group.ID, targetID); err != nil {
			return false, err
		}
		c.reply(ctx, group, msg, fmt.Sprintf(i18n.Get("User %d added to the blacklist.", lang), targetID))
		return false, nil
	case "unbl":
		targetID, err := c.target(msg, args)
		if err != nil {
			c.reply(ctx, group, msg, i18n.Get("Invalid user ID. Send a numeric ID.", lang))
			return false, nil
		}
		return false, c.s.GetDB().RemoveFromBlacklist(ctx, group.ID, targetID)
	case "addword":
		if args == "" {
			return false, nil
		}
		if err := c.s.GetDB().AddBlockedWord(ctx, group.ID, strings.ToLower(args)); err != nil {
			return false, err
		}
		c.reply(ctx, group, msg, i18n.Get("Blocked word added.", lang))
		return false, nil
	case "rmword":
		if args == "" {
			return false, nil
		}
		if err := c.s.GetDB().RemoveBlockedWord(ctx, group.ID, strings.ToLower(args)); err != nil {
			return false, err
		}
		c.reply(ctx, group, msg, i18n.Get("Blocked word removed.", lang))
		return false, nil
	case "save":
		return false, c.saveNote(ctx, group, msg, user, args)
	case "delnote":
		return false, c.s.GetDB().DeleteNote(ctx, group.ID, strings.ToLower(args))
	case "addcmd":
		return false, c.addCustomCommand(ctx, group, msg, user, args)
	case "delcmd":
		return false, c.s.GetDB().DeleteCustomCommand(ctx, group.ID, strings.ToLower(strings.TrimPrefix(args, "/")))
	}
	return false, c.tryCustomCommand(ctx, group, msg, command)
}

func (c *groupCommands) cmdWarn(ctx context.Context, group *db.Group, msg *api.Message, args string) error {
	targetID, reason := c.targetAndReason(msg, args)
	if targetID == 0 {
		c.reply(ctx, group, msg, i18n.Get("Invalid user ID. Send a numeric ID.", group.Settings.Language))
		return nil
	}
	displayName := c.targetName(msg, targetID)
	_, err := c.esc.Warn(ctx, group, targetID, displayName, reason)
	if errors.Is(err, moderation.ErrTargetIsAdmin) {
		c.reply(ctx, group, msg, i18n.Get("Cannot act on a group administrator.", group.Settings.Language))
		return nil
	}
	return err
}

func (c *groupCommands) cmdAction(ctx context.Context, group *db.Group, msg *api.Message, args, action string) error {
	lang := group.Settings.Language
	targetID, reason := c.targetAndReason(msg, args)
	if targetID == 0 {
		c.reply(ctx, group, msg, i18n.Get("Invalid user ID. Send a numeric ID.", lang))
		return nil
	}
	duration := time.Duration(group.Settings.FloodMuteDuration) * time.Minute
	err := c.executor.Apply(ctx, group, targetID, c.targetName(msg, targetID), action, reason, duration)
	switch {
	case errors.Is(err, moderation.ErrTargetIsAdmin):
		c.reply(ctx, group, msg, i18n.Get("Cannot act on a group administrator.", lang))
		return nil
	case errors.Is(err, bot.ErrNoPrivileges):
		c.reply(ctx, group, msg, i18n.Get("I need to be an administrator to do that.", lang))
		return nil
	}
	return err
}

// target resolves the command target from the replied-to message or a
// numeric argument.
func (c *groupCommands) target(msg *api.Message, args string) (int64, error) {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		return msg.ReplyToMessage.From.ID, nil
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, errors.New("no target")
	}
	return strconv.ParseInt(fields[0], 10, 64)
}

func (c *groupCommands) targetAndReason(msg *api.Message, args string) (int64, string) {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		return msg.ReplyToMessage.From.ID, args
	}
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, ""
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, ""
	}
	return id, strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
}

func (c *groupCommands) targetName(msg *api.Message, targetID int64) string {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && msg.ReplyToMessage.From.ID == targetID {
		return bot.GetFullName(msg.ReplyToMessage.From)
	}
	return strconv.FormatInt(targetID, 10)
}

func (c *groupCommands) isAdmin(ctx context.Context, group *db.Group, userID int64) (bool, error) {
	if group.IsGroupAdmin(userID) {
		return true, nil
	}
	return c.admins.IsAdministrator(ctx, group.ID, userID)
}

func (c *groupCommands) saveNote(ctx context.Context, group *db.Group, msg *api.Message, user *api.User, args string) error {
	fields := strings.SplitN(args, " ", 2)
	if len(fields) < 2 {
		return nil
	}
	return c.s.GetDB().SaveNote(ctx, &db.Note{
		ChatID:    group.ID,
		Name:      strings.ToLower(fields[0]),
		Content:   strings.TrimSpace(fields[1]),
		CreatedBy: user.ID,
		CreatedAt: time.Now(),
	})
}

func (c *groupCommands) getNote(ctx context.Context, group *db.Group, msg *api.Message, args string) error {
	if args == "" {
		return nil
	}
	note, err := c.s.GetDB().GetNote(ctx, group.ID, strings.ToLower(strings.Fields(args)[0]))
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	c.reply(ctx, group, msg, note.Content)
	return nil
}

func (c *groupCommands) listNotes(ctx context.Context, group *db.Group, msg *api.Message) error {
	notes, err := c.s.GetDB().ListNotes(ctx, group.ID)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		c.reply(ctx, group, msg, i18n.Get("No notes saved in this group.", group.Settings.Language))
		return nil
	}
	names := make([]string, 0, len(notes))
	for _, note := range notes {
		names = append(names, "- "+note.Name)
	}
	c.reply(ctx, group, msg, strings.Join(names, "\n"))
	return nil
}

func (c *groupCommands) addCustomCommand(ctx context.Context, group *db.Group, msg *api.Message, user *api.User, args string) error {
	fields := strings.SplitN(args, " ", 2)
	if len(fields) < 2 {
		return nil
	}
	return c.s.GetDB().SaveCustomCommand(ctx, &db.CustomCommand{
		ChatID:    group.ID,
		Command:   strings.ToLower(strings.TrimPrefix(fields[0], "/")),
		Response:  strings.TrimSpace(fields[1]),
		CreatedBy: user.ID,
	})
}

func (c *groupCommands) tryCustomCommand(ctx context.Context, group *db.Group, msg *api.Message, command string) error {
	custom, err := c.s.GetDB().GetCustomCommand(ctx, group.ID, strings.ToLower(command))
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	c.reply(ctx, group, msg, custom.Response)
	return nil
}

func (c *groupCommands) reply(ctx context.Context, group *db.Group, msg *api.Message, text string) {
	if text == "" {
		return
	}
	if _, err := c.s.GetBot().SendMessage(ctx, group.ID, text, &bot.SendOptions{ReplyTo: msg.MessageID}); err != nil {
		log.WithField("object", "groupCommands").WithError(err).Warn("cant send reply")
	}
}

func (c *groupCommands) helpText(lang string) string {
	return i18n.Get("Available commands:", lang) + "\n" +
		"/rules /id /warns /notes /get <name>\n" +
		i18n.Get("Admin commands:", lang) + "\n" +
		"/warn /unwarn /mute /unmute /kick /ban /unban\n" +
		"/bl /unbl /addword /rmword /wordlist\n" +
		"/save /delnote /addcmd /delcmd"
}
