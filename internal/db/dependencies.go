package db

import (
	"context"
	"time"
)

// Client is the datastore facade consumed by the moderation core.
type Client interface {
	Close() error

	GetGroup(ctx context.Context, chatID int64) (*Group, error)
	UpsertGroup(ctx context.Context, group *Group) error
	DeleteGroup(ctx context.Context, chatID int64) error
	ListGroupsManagedBy(ctx context.Context, userID int64) ([]*Group, error)
	SetGroupAdmins(ctx context.Context, chatID int64, userIDs []int64) error

	AddToBlacklist(ctx context.Context, chatID, userID int64) error
	RemoveFromBlacklist(ctx context.Context, chatID, userID int64) error
	AddBlockedWord(ctx context.Context, chatID int64, word string) error
	RemoveBlockedWord(ctx context.Context, chatID int64, word string) error

	GetUser(ctx context.Context, userID int64) (*User, error)
	UpsertUser(ctx context.Context, user *User) error
	SetUserSpamScore(ctx context.Context, userID int64, score int) error

	AppendMessageEvent(ctx context.Context, event *MessageEvent) error
	CountMessageEvents(ctx context.Context, userID, chatID int64, since time.Time) (int, error)
	CountJoinEvents(ctx context.Context, chatID int64, since time.Time) (int, error)

	GetWarning(ctx context.Context, chatID, userID int64) (*Warning, error)
	SaveWarning(ctx context.Context, warning *Warning) error
	DeleteWarning(ctx context.Context, chatID, userID int64) error

	GetPendingInput(ctx context.Context, userID int64) (*PendingInput, error)
	SetPendingInput(ctx context.Context, userID int64, operation string, chatID int64) error
	ClearPendingInput(ctx context.Context, userID int64) error
	ClearPendingInputsForGroup(ctx context.Context, chatID int64) error

	SaveNote(ctx context.Context, note *Note) error
	GetNote(ctx context.Context, chatID int64, name string) (*Note, error)
	ListNotes(ctx context.Context, chatID int64) ([]*Note, error)
	DeleteNote(ctx context.Context, chatID int64, name string) error

	SaveCustomCommand(ctx context.Context, cmd *CustomCommand) error
	GetCustomCommand(ctx context.Context, chatID int64, command string) (*CustomCommand, error)
	DeleteCustomCommand(ctx context.Context, chatID int64, command string) error

	CreateCaptchaChallenge(ctx context.Context, challenge *CaptchaChallenge) error
	GetCaptchaChallenge(ctx context.Context, chatID, userID int64) (*CaptchaChallenge, error)
	DeleteCaptchaChallenge(ctx context.Context, chatID, userID int64) error
	ListExpiredCaptchaChallenges(ctx context.Context, now time.Time) ([]*CaptchaChallenge, error)
}
