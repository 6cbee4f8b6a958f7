package moderation

import (
	"strings"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/hiyaok/guardbot/internal/db"
)

func testGroup() *db.Group {
	return &db.Group{
		ID:       -100500,
		Title:    "test group",
		Settings: db.DefaultSettings(),
	}
}

func textMessage(text string) *api.Message {
	return &api.Message{
		MessageID: 1,
		From:      &api.User{ID: 42, FirstName: "Sender"},
		Text:      text,
	}
}

func TestChainBlacklistShortCircuits(t *testing.T) {
	t.Parallel()

	group := testGroup()
	group.Blacklist = []int64{42}
	group.Settings.AntiLink = true

	// A blacklisted sender matches before any content filter runs,
	// even when the message would also trip anti-link.
	verdict := NewChain("guardbot").Evaluate(group, textMessage("https://spam.example.com"))
	if verdict == nil {
		t.Fatal("expected a verdict")
	}
	if verdict.Filter != "blacklist" {
		t.Errorf("got filter %q, want blacklist", verdict.Filter)
	}
	if !verdict.Delete {
		t.Errorf("blacklist verdict should delete, got %+v", verdict)
	}
	// Removal is silent: no reply and no warning.
	if verdict.Warn || verdict.ReplyKey != "" {
		t.Errorf("blacklist verdict should stay silent, got %+v", verdict)
	}
}

func TestChainLinks(t *testing.T) {
	t.Parallel()

	chain := NewChain("guardbot")

	for _, tt := range []struct {
		name      string
		text      string
		whitelist []string
		want      bool
	}{
		{name: "http url", text: "check https://evil.example.com now", want: true},
		{name: "www url", text: "visit www.evil.example please", want: true},
		{name: "bare domain", text: "see evil.com", want: true},
		{name: "plain text", text: "no links here", want: false},
		{name: "whitelisted substring", text: "see https://t.me/guardbot", whitelist: []string{"t.me"}, want: false},
		{name: "whitelist anywhere in text", text: "join https://evil.ru or t.me/guardbot", whitelist: []string{"t.me"}, want: false},
		{name: "whitelist misses", text: "see https://evil.ru", whitelist: []string{"t.me"}, want: true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			group := testGroup()
			group.Settings.AntiLink = true
			group.Settings.WhitelistLinks = tt.whitelist

			verdict := chain.Evaluate(group, textMessage(tt.text))
			if got := verdict != nil; got != tt.want {
				t.Errorf("got match=%v, want %v (verdict %+v)", got, tt.want, verdict)
			}
			if tt.want && verdict.Filter != "anti_link" {
				t.Errorf("got filter %q, want anti_link", verdict.Filter)
			}
			if tt.want && verdict.Warn {
				t.Errorf("link removal should not warn, got %+v", verdict)
			}
		})
	}
}

func TestChainLinksDisabled(t *testing.T) {
	t.Parallel()

	group := testGroup()
	group.Settings.AntiLink = false
	if verdict := NewChain("guardbot").Evaluate(group, textMessage("https://evil.example.com")); verdict != nil {
		t.Errorf("disabled anti-link still matched: %+v", verdict)
	}
}

func TestChainBlockedWords(t *testing.T) {
	t.Parallel()

	group := testGroup()
	group.BlockedWords = []string{"casino"}

	verdict := NewChain("guardbot").Evaluate(group, textMessage("Best CASINO in town"))
	if verdict == nil || verdict.Filter != "blocked_words" {
		t.Fatalf("expected blocked_words verdict, got %+v", verdict)
	}
	if !verdict.Delete || verdict.ReplyKey == "" {
		t.Errorf("blocked word should delete and reply, got %+v", verdict)
	}
	if verdict.Warn {
		t.Errorf("blocked word should not warn, got %+v", verdict)
	}
}

func TestChainSpamHeuristics(t *testing.T) {
	t.Parallel()

	chain := NewChain("guardbot")

	for _, tt := range []struct {
		name string
		text string
		want bool
	}{
		{name: "long caps", text: "BUY NOW LIMITED OFFER", want: true},
		{name: "short caps", text: "OK THANKS", want: false},
		{name: "repeated char", text: "heeeeeello", want: true},
		{name: "five repeats pass", text: "heeeeello", want: false},
		{name: "oversized", text: strings.Repeat("word ", 250), want: true},
		{name: "regular sentence", text: "hello there, how are you?", want: false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			verdict := chain.Evaluate(testGroup(), textMessage(tt.text))
			if got := verdict != nil; got != tt.want {
				t.Errorf("got match=%v, want %v", got, tt.want)
			}
			if tt.want && verdict.WarnReason != "spam" {
				t.Errorf("got reason %q, want spam", verdict.WarnReason)
			}
		})
	}
}

func TestChainCommands(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		text string
		want bool
	}{
		{name: "foreign command", text: "/settings@otherbot", want: true},
		{name: "bare command", text: "/flip", want: true},
		{name: "start allowed", text: "/start", want: false},
		{name: "own command allowed", text: "/rules@guardbot", want: false},
		{name: "regular text", text: "hello /world later", want: false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			group := testGroup()
			group.Settings.AntiCommand = true

			verdict := NewChain("guardbot").Evaluate(group, textMessage(tt.text))
			if got := verdict != nil; got != tt.want {
				t.Errorf("got match=%v, want %v (verdict %+v)", got, tt.want, verdict)
			}
		})
	}
}

func TestChainForward(t *testing.T) {
	t.Parallel()

	group := testGroup()
	group.Settings.AntiForward = true

	msg := textMessage("forwarded content")
	msg.ForwardOrigin = &api.MessageOrigin{Type: "user"}

	verdict := NewChain("guardbot").Evaluate(group, msg)
	if verdict == nil || verdict.Filter != "anti_forward" {
		t.Fatalf("expected anti_forward verdict, got %+v", verdict)
	}
	if verdict.Warn {
		t.Error("forward removal should not warn")
	}
}

func TestChainMedia(t *testing.T) {
	t.Parallel()

	group := testGroup()
	group.Settings.AllowStickers = false

	msg := &api.Message{
		MessageID: 2,
		From:      &api.User{ID: 42},
		Sticker:   &api.Sticker{FileID: "sticker"},
	}
	verdict := NewChain("guardbot").Evaluate(group, msg)
	if verdict == nil || verdict.Filter != "media" {
		t.Fatalf("expected media verdict, got %+v", verdict)
	}

	group.Settings.AllowStickers = true
	if verdict := NewChain("guardbot").Evaluate(group, msg); verdict != nil {
		t.Errorf("allowed sticker still matched: %+v", verdict)
	}
}

func TestChainCaptionIsFiltered(t *testing.T) {
	t.Parallel()

	group := testGroup()
	group.BlockedWords = []string{"promo"}

	msg := &api.Message{
		MessageID: 3,
		From:      &api.User{ID: 42},
		Photo:     []api.PhotoSize{{FileID: "photo"}},
		Caption:   "big promo inside",
	}
	verdict := NewChain("guardbot").Evaluate(group, msg)
	if verdict == nil || verdict.Filter != "blocked_words" {
		t.Fatalf("expected blocked_words verdict on caption, got %+v", verdict)
	}
}
