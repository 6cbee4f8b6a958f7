package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/hiyaok/guardbot/internal/db"
)

func newTestExecutor(transport *fakeTransport) *Executor {
	return NewExecutor(transport, NewAdminChecker(transport, time.Minute), nil)
}

func TestExecutorMuteUntilDate(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	executor := newTestExecutor(transport)
	group := testGroup()

	if err := executor.Apply(context.Background(), group, 42, "Violator", db.ActionMute, "spam", time.Hour); err != nil {
		t.Fatal(err)
	}
	if len(transport.restrict) != 1 {
		t.Fatalf("got %d restrict calls, want 1", len(transport.restrict))
	}
	call := transport.restrict[0]
	if call.permissions.CanSendMessages {
		t.Error("muted member must not send messages")
	}
	want := time.Now().Add(time.Hour).Unix()
	if call.untilUnix < want-5 || call.untilUnix > want+5 {
		t.Errorf("got until %d, want about %d", call.untilUnix, want)
	}
}

func TestExecutorMuteWithoutDurationIsPermanent(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	if err := newTestExecutor(transport).Apply(context.Background(), testGroup(), 42, "Violator", db.ActionMute, "", 0); err != nil {
		t.Fatal(err)
	}
	if transport.restrict[0].untilUnix != 0 {
		t.Errorf("got until %d, want 0", transport.restrict[0].untilUnix)
	}
}

func TestExecutorKickBansBrieflyThenUnbans(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	if err := newTestExecutor(transport).Apply(context.Background(), testGroup(), 42, "Violator", db.ActionKick, "bot account", 0); err != nil {
		t.Fatal(err)
	}
	if len(transport.removals) != 1 {
		t.Fatalf("got %d removals, want 1", len(transport.removals))
	}
	until := transport.removals[0].untilUnix
	now := time.Now().Unix()
	if until <= now || until > now+120 {
		t.Errorf("kick until %d not within the short ban window from %d", until, now)
	}
	if len(transport.unbans) != 1 || transport.unbans[0] != 42 {
		t.Errorf("kick must unban afterwards, got %v", transport.unbans)
	}
}

func TestExecutorBanIsPermanent(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	if err := newTestExecutor(transport).Apply(context.Background(), testGroup(), 42, "Violator", db.ActionBan, "blacklisted", 0); err != nil {
		t.Fatal(err)
	}
	if len(transport.removals) != 1 || transport.removals[0].untilUnix != 0 {
		t.Errorf("got removals %v, want one permanent ban", transport.removals)
	}
	if len(transport.unbans) != 0 {
		t.Error("ban must not unban")
	}
}

func TestExecutorRefusesAdminTarget(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{admins: []int64{42}}
	err := newTestExecutor(transport).Apply(context.Background(), testGroup(), 42, "Admin", db.ActionBan, "", 0)
	if !errors.Is(err, ErrTargetIsAdmin) {
		t.Fatalf("got %v, want ErrTargetIsAdmin", err)
	}
	if len(transport.removals) != 0 {
		t.Error("no call may reach the transport for an admin target")
	}
}

func TestExecutorRejectsUnknownAction(t *testing.T) {
	t.Parallel()

	err := newTestExecutor(&fakeTransport{}).Apply(context.Background(), testGroup(), 42, "Violator", "explode", "", 0)
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("got %v, want ErrUnknownAction", err)
	}
}

func TestExecutorUnmuteRestoresPermissions(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	if err := newTestExecutor(transport).Unmute(context.Background(), testGroup(), 42); err != nil {
		t.Fatal(err)
	}
	if len(transport.restrict) != 1 {
		t.Fatalf("got %d restrict calls, want 1", len(transport.restrict))
	}
	perms := transport.restrict[0].permissions
	if !perms.CanSendMessages || !perms.CanSendPhotos {
		t.Errorf("permissions not restored: %+v", perms)
	}
}
