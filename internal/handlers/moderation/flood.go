package moderation

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hiyaok/guardbot/internal/db"
)

// floodWindow is the sliding interval over which messages are counted.
const floodWindow = time.Minute

type floodStore interface {
	CountMessageEvents(ctx context.Context, userID, chatID int64, since time.Time) (int, error)
}

// FloodDetector decides whether a user currently exceeds the per-minute
// message budget of a group. It is a pure query over the recorded message
// events: checking twice for the same moment yields the same answer, the
// detector itself records nothing.
type FloodDetector struct {
	store floodStore
}

func NewFloodDetector(store floodStore) *FloodDetector {
	return &FloodDetector{store: store}
}

// IsFlooding reports whether userID sent at least threshold messages in
// chatID within the last minute, the message under evaluation included.
func (f *FloodDetector) IsFlooding(ctx context.Context, userID, chatID int64, threshold int, now time.Time) (bool, error) {
	if threshold <= 0 {
		return false, nil
	}
	count, err := f.store.CountMessageEvents(ctx, userID, chatID, now.Add(-floodWindow))
	if err != nil {
		return false, errors.Wrap(err, "cant count message events")
	}
	return count >= threshold, nil
}

// Threshold resolves the effective flood threshold for a group.
func Threshold(settings *db.GroupSettings) int {
	if settings == nil || settings.FloodThreshold <= 0 {
		return db.DefaultSettings().FloodThreshold
	}
	return settings.FloodThreshold
}
