package moderation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/hiyaok/guardbot/internal/bot"
	"github.com/hiyaok/guardbot/internal/db"
)

// Verdict is the decision of the first filter that matched a message.
// A nil Verdict means the message passed the whole chain.
type Verdict struct {
	Filter string

	Delete     bool
	Warn       bool
	WarnReason string

	ReplyKey  string
	ReplyArgs []any
}

type filter struct {
	name  string
	check func(group *db.Group, msg *api.Message) *Verdict
}

// Chain evaluates the content filters in their fixed order and returns
// the first matching verdict. Evaluation is pure: no I/O, no state.
type Chain struct {
	filters []filter
}

// NewChain builds the filter chain. botUsername disambiguates commands
// addressed to other bots from commands addressed to this one.
func NewChain(botUsername string) *Chain {
	return &Chain{filters: []filter{
		{name: "blacklist", check: checkBlacklist},
		{name: "anti_link", check: checkLinks},
		{name: "blocked_words", check: checkBlockedWords},
		{name: "anti_spam", check: checkSpam},
		{name: "anti_command", check: makeCommandCheck(botUsername)},
		{name: "anti_forward", check: checkForward},
		{name: "media", check: checkMedia},
	}}
}

// Evaluate runs the chain against one message. The first filter that
// matches short-circuits the rest.
func (c *Chain) Evaluate(group *db.Group, msg *api.Message) *Verdict {
	if group == nil || msg == nil {
		return nil
	}
	for _, f := range c.filters {
		if v := f.check(group, msg); v != nil {
			v.Filter = f.name
			return v
		}
	}
	return nil
}

func checkBlacklist(group *db.Group, msg *api.Message) *Verdict {
	if msg.From == nil || !group.IsBlacklisted(msg.From.ID) {
		return nil
	}
	// Blacklisted senders get their messages dropped silently.
	return &Verdict{Delete: true}
}

var linkPattern = regexp.MustCompile(`(?i)(https?://\S+)|(www\.\S+)|(\S+\.(com|org|net|id|io|me|co|biz|info|ru))`)

func checkLinks(group *db.Group, msg *api.Message) *Verdict {
	if !group.Settings.AntiLink {
		return nil
	}
	text := messageText(msg)
	if linkPattern.FindString(text) == "" {
		return nil
	}
	// A whitelist entry anywhere in the text exempts the whole message.
	lowered := strings.ToLower(text)
	for _, allowed := range group.Settings.WhitelistLinks {
		if allowed != "" && strings.Contains(lowered, strings.ToLower(allowed)) {
			return nil
		}
	}
	return &Verdict{
		Delete:   true,
		ReplyKey: "Links are not allowed in this group!",
	}
}

func checkBlockedWords(group *db.Group, msg *api.Message) *Verdict {
	text := strings.ToLower(messageText(msg))
	if text == "" {
		return nil
	}
	for _, word := range group.BlockedWords {
		if word != "" && strings.Contains(text, strings.ToLower(word)) {
			return &Verdict{
				Delete:   true,
				ReplyKey: "Your message contains a word that is blocked in this group!",
			}
		}
	}
	return nil
}

const (
	spamCapsMinLength  = 16
	spamRepeatRunLimit = 6
	spamMaxLength      = 1000
)

func checkSpam(group *db.Group, msg *api.Message) *Verdict {
	if !group.Settings.AntiSpam {
		return nil
	}
	text := messageText(msg)
	if !looksLikeSpam(text) {
		return nil
	}
	return &Verdict{
		Delete:     true,
		Warn:       true,
		WarnReason: "spam",
		ReplyKey:   "Your message was detected as spam.",
	}
}

func looksLikeSpam(text string) bool {
	if text == "" {
		return false
	}
	if utf8.RuneCountInString(text) > spamMaxLength {
		return true
	}
	if utf8.RuneCountInString(text) >= spamCapsMinLength && hasLetter(text) && strings.ToUpper(text) == text {
		return true
	}
	run, last := 0, rune(-1)
	for _, r := range text {
		if r == last {
			run++
			if run >= spamRepeatRunLimit {
				return true
			}
			continue
		}
		last, run = r, 1
	}
	return false
}

func hasLetter(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func makeCommandCheck(botUsername string) func(*db.Group, *api.Message) *Verdict {
	mention := "@" + strings.ToLower(botUsername)
	return func(group *db.Group, msg *api.Message) *Verdict {
		if !group.Settings.AntiCommand {
			return nil
		}
		text := msg.Text
		if !strings.HasPrefix(text, "/") {
			return nil
		}
		command := strings.ToLower(strings.Fields(text)[0])
		if command == "/start" {
			return nil
		}
		if botUsername != "" && strings.Contains(command, mention) {
			return nil
		}
		return &Verdict{Delete: true}
	}
}

func checkForward(group *db.Group, msg *api.Message) *Verdict {
	if !group.Settings.AntiForward || !bot.IsForwarded(msg) {
		return nil
	}
	return &Verdict{Delete: true}
}

func checkMedia(group *db.Group, msg *api.Message) *Verdict {
	var label string
	switch bot.GetMessageType(msg) {
	case bot.MessageTypePhoto:
		if !group.Settings.AllowPhotos {
			label = "Photos"
		}
	case bot.MessageTypeVideo:
		if !group.Settings.AllowVideos {
			label = "Videos"
		}
	case bot.MessageTypeAudio:
		if !group.Settings.AllowAudios {
			label = "Audio"
		}
	case bot.MessageTypeVoice:
		if !group.Settings.AllowVoice {
			label = "Voice messages"
		}
	case bot.MessageTypeDocument:
		if !group.Settings.AllowDocuments {
			label = "Documents"
		}
	case bot.MessageTypeSticker:
		if !group.Settings.AllowStickers {
			label = "Stickers"
		}
	case bot.MessageTypeAnimation:
		if !group.Settings.AllowAnimations {
			label = "GIFs"
		}
	}
	if label == "" {
		return nil
	}
	return &Verdict{
		Delete:    true,
		ReplyKey:  "%s is not allowed in this group!",
		ReplyArgs: []any{label},
	}
}

func messageText(msg *api.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}
