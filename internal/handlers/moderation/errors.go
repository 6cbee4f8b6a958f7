package moderation

import "github.com/pkg/errors"

var (
	// ErrTargetIsAdmin marks the defined no-op outcome of trying to act
	// on a group administrator.
	ErrTargetIsAdmin = errors.New("target is a group administrator")

	// ErrUnknownAction rejects action names outside warn/mute/kick/ban/unban.
	ErrUnknownAction = errors.New("unknown moderation action")
)
