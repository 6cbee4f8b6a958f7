package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type (
	// Group is one moderated chat with its protection settings and
	// per-chat moderation state.
	Group struct {
		ID        int64         `db:"id"`
		Title     string        `db:"title"`
		Username  string        `db:"username"`
		OwnerID   int64         `db:"owner_id"`
		Settings  GroupSettings `db:"settings"`
		CreatedAt time.Time     `db:"created_at"`
		UpdatedAt time.Time     `db:"updated_at"`

		// Loaded alongside the row, not columns of the groups table.
		Admins       []int64  `db:"-"`
		Blacklist    []int64  `db:"-"`
		BlockedWords []string `db:"-"`
	}

	// GroupSettings persists as a single JSON column, defaults applied
	// at group creation via DefaultSettings.
	GroupSettings struct {
		AntiSpam      bool `json:"anti_spam"`
		AntiBot       bool `json:"anti_bot"`
		AntiFlood     bool `json:"anti_flood"`
		AntiRaid      bool `json:"anti_raid"`
		AntiCommand   bool `json:"anti_command"`
		AntiForward   bool `json:"anti_forward"`
		AntiLink      bool `json:"anti_link"`
		AntiService   bool `json:"anti_service"`
		CaptchaOnJoin bool `json:"captcha_on_join"`

		MaxWarnings       int    `json:"max_warnings"`
		WarningAction     string `json:"warning_action"`
		WarningExpiryDays int    `json:"warning_expiry_days"`
		FloodThreshold    int    `json:"flood_threshold"`
		FloodAction       string `json:"flood_action"`
		FloodMuteDuration int    `json:"flood_mute_duration"`

		WelcomeEnabled        bool   `json:"welcome_enabled"`
		WelcomeMessage        string `json:"welcome_message"`
		WelcomeDeletePrevious bool   `json:"welcome_delete_previous"`

		WhitelistLinks []string `json:"whitelist_links"`

		AllowPhotos     bool `json:"allow_photos"`
		AllowVideos     bool `json:"allow_videos"`
		AllowAudios     bool `json:"allow_audios"`
		AllowVoice      bool `json:"allow_voice"`
		AllowDocuments  bool `json:"allow_documents"`
		AllowStickers   bool `json:"allow_stickers"`
		AllowAnimations bool `json:"allow_animations"`

		RulesText  string `json:"rules_text"`
		Language   string `json:"language"`
		LogActions bool   `json:"log_actions"`
		LogChannel int64  `json:"log_channel"`
	}

	// Warning is the escalation record for one user in one group.
	// The store keeps at most one row per (chat_id, user_id).
	Warning struct {
		ChatID      int64      `db:"chat_id"`
		UserID      int64      `db:"user_id"`
		Count       int        `db:"count"`
		LastWarning time.Time  `db:"last_warning"`
		Reasons     ReasonList `db:"reasons"`
	}

	ReasonList []string

	// User is one observed account, mutated on every inbound message.
	User struct {
		ID           int64     `db:"id"`
		UserName     string    `db:"username"`
		FirstName    string    `db:"first_name"`
		LastName     string    `db:"last_name"`
		IsBot        bool      `db:"is_bot"`
		MessageCount int64     `db:"message_count"`
		WarningCount int64     `db:"warning_count"`
		TrustScore   int       `db:"trust_score"`
		SpamScore    int       `db:"spam_score"`
		CaptchaFails int       `db:"captcha_fails"`
		CreatedAt    time.Time `db:"created_at"`
		LastActivity time.Time `db:"last_activity"`
	}

	// MessageEvent is an append-only fact consumed by the flood
	// sliding-window count. Never mutated.
	MessageEvent struct {
		UserID    int64     `db:"user_id"`
		ChatID    int64     `db:"chat_id"`
		CreatedAt time.Time `db:"created_at"`
		Type      string    `db:"type"`
	}

	// PendingInput is the single outstanding free-text request for a
	// user in a private chat. Setting a new one replaces the old.
	PendingInput struct {
		UserID    int64     `db:"user_id"`
		Operation string    `db:"operation"`
		ChatID    int64     `db:"chat_id"`
		CreatedAt time.Time `db:"created_at"`
	}

	Note struct {
		ChatID    int64     `db:"chat_id"`
		Name      string    `db:"name"`
		Content   string    `db:"content"`
		CreatedBy int64     `db:"created_by"`
		CreatedAt time.Time `db:"created_at"`
	}

	CustomCommand struct {
		ChatID    int64  `db:"chat_id"`
		Command   string `db:"command"`
		Response  string `db:"response"`
		CreatedBy int64  `db:"created_by"`
	}

	// CaptchaChallenge is a pending join challenge; the success token
	// is carried in the inline keyboard callback data.
	CaptchaChallenge struct {
		ChatID      int64     `db:"chat_id"`
		UserID      int64     `db:"user_id"`
		SuccessUUID string    `db:"success_uuid"`
		MessageID   int       `db:"message_id"`
		CreatedAt   time.Time `db:"created_at"`
		ExpiresAt   time.Time `db:"expires_at"`
	}
)

// Pending input operations, one per settings-menu "send me text" step.
const (
	OpAddToBlacklist     = "add_to_blacklist"
	OpAddBlockedWord     = "add_blocked_word"
	OpRemoveBlockedWord  = "remove_blocked_word"
	OpEditWelcomeMessage = "edit_welcome_message"
	OpEditRulesText      = "edit_rules_text"
)

func (s GroupSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *GroupSettings) Scan(v any) error {
	if v == nil {
		return nil
	}
	switch data := v.(type) {
	case string:
		return json.Unmarshal([]byte(data), s)
	case []byte:
		return json.Unmarshal(data, s)
	default:
		return fmt.Errorf("cannot scan type %T into GroupSettings", v)
	}
}

func (r ReasonList) Value() (driver.Value, error) {
	if r == nil {
		r = ReasonList{}
	}
	return json.Marshal(r)
}

func (r *ReasonList) Scan(v any) error {
	if v == nil {
		return nil
	}
	switch data := v.(type) {
	case string:
		return json.Unmarshal([]byte(data), r)
	case []byte:
		return json.Unmarshal(data, r)
	default:
		return fmt.Errorf("cannot scan type %T into ReasonList", v)
	}
}

// IsBlacklisted reports whether the loaded blacklist contains userID.
func (g *Group) IsBlacklisted(userID int64) bool {
	if g == nil {
		return false
	}
	for _, id := range g.Blacklist {
		if id == userID {
			return true
		}
	}
	return false
}

// IsGroupAdmin reports whether userID is in the cached admin list.
func (g *Group) IsGroupAdmin(userID int64) bool {
	if g == nil {
		return false
	}
	if g.OwnerID == userID {
		return true
	}
	for _, id := range g.Admins {
		if id == userID {
			return true
		}
	}
	return false
}
