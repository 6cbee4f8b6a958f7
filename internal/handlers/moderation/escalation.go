package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/hiyaok/guardbot/internal/db"
	"github.com/hiyaok/guardbot/internal/event"
	"github.com/hiyaok/guardbot/internal/i18n"
	"github.com/hiyaok/guardbot/internal/observability"
)

type escalationStore interface {
	GetWarning(ctx context.Context, chatID, userID int64) (*db.Warning, error)
	SaveWarning(ctx context.Context, warning *db.Warning) error
	DeleteWarning(ctx context.Context, chatID, userID int64) error
	GetUser(ctx context.Context, userID int64) (*db.User, error)
	UpsertUser(ctx context.Context, user *db.User) error
}

// Outcome reports what a warning turned into.
type Outcome struct {
	Count  int
	Max    int
	Action string
	// Escalated is set when the warning reached the threshold and
	// the configured action was dispatched.
	Escalated bool
}

// Escalator owns the warning records. It serializes read-modify-write
// per (chat, user) pair so concurrent violations never lose an increment.
type Escalator struct {
	store    escalationStore
	executor *Executor
	admins   *AdminChecker
	events   *event.Bus

	mutex sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEscalator(store escalationStore, executor *Executor, admins *AdminChecker, events *event.Bus) *Escalator {
	return &Escalator{
		store:    store,
		executor: executor,
		admins:   admins,
		events:   events,
		locks:    map[string]*sync.Mutex{},
	}
}

func (e *Escalator) lock(chatID, userID int64) *sync.Mutex {
	key := fmt.Sprintf("%d:%d", chatID, userID)
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if l, ok := e.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	e.locks[key] = l
	return l
}

// Warn records one violation against userID in group and escalates to the
// configured action when the count reaches the group threshold. Group
// administrators are never warned.
func (e *Escalator) Warn(ctx context.Context, group *db.Group, userID int64, displayName, reason string) (*Outcome, error) {
	entry := log.WithField("object", "Escalator").
		WithField("chat_id", group.ID).
		WithField("user_id", userID)

	if admin, err := e.isAdmin(ctx, group, userID); err != nil {
		entry.WithError(err).Warn("cant verify admin status, refusing to warn")
		return nil, err
	} else if admin {
		return nil, ErrTargetIsAdmin
	}

	l := e.lock(group.ID, userID)
	l.Lock()
	defer l.Unlock()

	warning, err := e.store.GetWarning(ctx, group.ID, userID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		warning = &db.Warning{ChatID: group.ID, UserID: userID}
	case err != nil:
		return nil, errors.Wrap(err, "cant load warning")
	}

	now := time.Now()
	if expired(warning, group.Settings.WarningExpiryDays, now) {
		entry.WithField("stale_count", warning.Count).Debug("warnings expired, resetting")
		warning.Count = 0
		warning.Reasons = db.ReasonList{}
	}

	warning.Count++
	warning.Reasons = append(warning.Reasons, reason)
	warning.LastWarning = now
	if err := e.store.SaveWarning(ctx, warning); err != nil {
		return nil, errors.Wrap(err, "cant save warning")
	}
	e.bumpUserCounter(ctx, userID)

	maxWarnings := group.Settings.MaxWarnings
	if maxWarnings <= 0 {
		maxWarnings = db.DefaultSettings().MaxWarnings
	}
	outcome := &Outcome{Count: warning.Count, Max: maxWarnings, Action: db.ActionWarn}

	if warning.Count < maxWarnings {
		e.notifyWarned(group, displayName, reason, warning.Count, maxWarnings)
		observability.RecordModerationAction(db.ActionWarn)
		return outcome, nil
	}

	action := group.Settings.WarningAction
	if action == "" {
		action = db.DefaultSettings().WarningAction
	}
	outcome.Action = action
	outcome.Escalated = true

	// The warning action itself may only be mute, kick or ban; a
	// threshold configured as plain warn escalates no further.
	if action != db.ActionWarn {
		duration := time.Duration(group.Settings.FloodMuteDuration) * time.Minute
		escalationReason := fmt.Sprintf("warnings %d/%d: %s", warning.Count, maxWarnings, reason)
		if err := e.executor.Apply(ctx, group, userID, displayName, action, escalationReason, duration); err != nil {
			// The increment stands so the next violation retriggers.
			return outcome, errors.Wrapf(err, "cant apply %s", action)
		}
	}

	warning.Count = 0
	warning.Reasons = db.ReasonList{}
	if err := e.store.SaveWarning(ctx, warning); err != nil {
		entry.WithError(err).Error("cant reset warning after escalation")
	}
	return outcome, nil
}

// Forgive drops the warning record of userID in chatID.
func (e *Escalator) Forgive(ctx context.Context, chatID, userID int64) error {
	l := e.lock(chatID, userID)
	l.Lock()
	defer l.Unlock()
	return e.store.DeleteWarning(ctx, chatID, userID)
}

// Status returns the current warning count without mutating anything.
func (e *Escalator) Status(ctx context.Context, chatID, userID int64) (*db.Warning, error) {
	warning, err := e.store.GetWarning(ctx, chatID, userID)
	if errors.Is(err, db.ErrNotFound) {
		return &db.Warning{ChatID: chatID, UserID: userID}, nil
	}
	return warning, err
}

func (e *Escalator) isAdmin(ctx context.Context, group *db.Group, userID int64) (bool, error) {
	if group.IsGroupAdmin(userID) {
		return true, nil
	}
	if e.admins == nil {
		return false, nil
	}
	return e.admins.IsAdministrator(ctx, group.ID, userID)
}

func (e *Escalator) bumpUserCounter(ctx context.Context, userID int64) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return
	}
	user.WarningCount++
	if err := e.store.UpsertUser(ctx, user); err != nil {
		log.WithField("object", "Escalator").WithError(err).Debug("cant bump warning counter")
	}
}

func (e *Escalator) notifyWarned(group *db.Group, displayName, reason string, count, max int) {
	if e.events == nil {
		return
	}
	lang := group.Settings.Language
	text := fmt.Sprintf(i18n.Get("Warning for %s", lang), displayName) + "\n" +
		fmt.Sprintf(i18n.Get("Warning %d/%d", lang), count, max)
	if reason != "" {
		text += "\n" + fmt.Sprintf(i18n.Get("Reason: %s", lang), reason)
	}
	e.events.Enqueue(event.Event{Notification: &event.Notification{
		ChatID:     group.ID,
		Text:       text,
		LogChannel: logChannel(group),
	}})
}

func expired(warning *db.Warning, expiryDays int, now time.Time) bool {
	if warning.Count == 0 || warning.LastWarning.IsZero() {
		return false
	}
	if expiryDays <= 0 {
		expiryDays = db.DefaultSettings().WarningExpiryDays
	}
	return now.Sub(warning.LastWarning) > time.Duration(expiryDays)*24*time.Hour
}

func logChannel(group *db.Group) int64 {
	if !group.Settings.LogActions {
		return 0
	}
	return group.Settings.LogChannel
}
