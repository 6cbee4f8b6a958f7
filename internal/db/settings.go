package db

import "errors"

var ErrNotFound = errors.New("not found")

// Escalation / flood actions recognized in settings.
const (
	ActionWarn = "warn"
	ActionMute = "mute"
	ActionKick = "kick"
	ActionBan  = "ban"
)

// DefaultSettings returns the settings applied to a newly registered
// group. Kept apart from the storage layer so storage never carries
// policy defaults.
func DefaultSettings() GroupSettings {
	return GroupSettings{
		AntiSpam:  true,
		AntiBot:   true,
		AntiFlood: true,
		AntiRaid:  true,

		MaxWarnings:       3,
		WarningAction:     ActionMute,
		WarningExpiryDays: 7,
		FloodThreshold:    5,
		FloodAction:       ActionMute,
		FloodMuteDuration: 60,

		WelcomeEnabled:        true,
		WelcomeMessage:        "Hello {{ .user }}, welcome to {{ .group }}!",
		WelcomeDeletePrevious: true,

		AllowPhotos:     true,
		AllowVideos:     true,
		AllowAudios:     true,
		AllowVoice:      true,
		AllowDocuments:  true,
		AllowStickers:   true,
		AllowAnimations: true,

		RulesText:  "No rules have been set for this group yet.",
		Language:   "en",
		LogActions: true,
	}
}
