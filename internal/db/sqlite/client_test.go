package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/hiyaok/guardbot/internal/db"
)

func newTestClient(t *testing.T) *sqliteClient {
	t.Helper()
	client, err := NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGroupRoundtrip(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	group := &db.Group{
		ID:       -100500,
		Title:    "test group",
		Username: "testgroup",
		OwnerID:  7,
		Settings: db.DefaultSettings(),
	}
	group.Settings.AntiLink = true
	group.Settings.WhitelistLinks = []string{"t.me"}

	if err := client.UpsertGroup(ctx, group); err != nil {
		t.Fatal(err)
	}
	if err := client.SetGroupAdmins(ctx, group.ID, []int64{7, 8}); err != nil {
		t.Fatal(err)
	}
	if err := client.AddToBlacklist(ctx, group.ID, 666); err != nil {
		t.Fatal(err)
	}
	if err := client.AddBlockedWord(ctx, group.ID, "casino"); err != nil {
		t.Fatal(err)
	}

	loaded, err := client.GetGroup(ctx, group.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(group.Settings, loaded.Settings); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{7, 8}, loaded.Admins, cmpopts.SortSlices(func(a, b int64) bool { return a < b })); diff != "" {
		t.Errorf("admins mismatch (-want +got):\n%s", diff)
	}
	if len(loaded.Blacklist) != 1 || loaded.Blacklist[0] != 666 {
		t.Errorf("got blacklist %v", loaded.Blacklist)
	}
	if len(loaded.BlockedWords) != 1 || loaded.BlockedWords[0] != "casino" {
		t.Errorf("got blocked words %v", loaded.BlockedWords)
	}
}

func TestGetGroupNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	if _, err := client.GetGroup(context.Background(), -1); err != db.ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPendingInputLastRequestWins(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	if err := client.SetPendingInput(ctx, 42, db.OpAddToBlacklist, -100500); err != nil {
		t.Fatal(err)
	}
	if err := client.SetPendingInput(ctx, 42, db.OpAddBlockedWord, -100600); err != nil {
		t.Fatal(err)
	}

	pending, err := client.GetPendingInput(ctx, 42)
	if err != nil {
		t.Fatal(err)
	}
	if pending.Operation != db.OpAddBlockedWord || pending.ChatID != -100600 {
		t.Errorf("got %+v, want the later request", pending)
	}

	if err := client.ClearPendingInput(ctx, 42); err != nil {
		t.Fatal(err)
	}
	if _, err := client.GetPendingInput(ctx, 42); err != db.ErrNotFound {
		t.Fatalf("got %v after clear, want ErrNotFound", err)
	}
}

func TestClearPendingInputsForGroup(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	if err := client.SetPendingInput(ctx, 42, db.OpEditRulesText, -100500); err != nil {
		t.Fatal(err)
	}
	if err := client.SetPendingInput(ctx, 43, db.OpEditRulesText, -100600); err != nil {
		t.Fatal(err)
	}
	if err := client.ClearPendingInputsForGroup(ctx, -100500); err != nil {
		t.Fatal(err)
	}

	if _, err := client.GetPendingInput(ctx, 42); err != db.ErrNotFound {
		t.Error("pending input of the dropped group survived")
	}
	if _, err := client.GetPendingInput(ctx, 43); err != nil {
		t.Error("pending input of another group was dropped")
	}
}

func TestWarningUpsert(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	warning := &db.Warning{
		ChatID:      -100500,
		UserID:      42,
		Count:       1,
		LastWarning: time.Now(),
		Reasons:     db.ReasonList{"spam"},
	}
	if err := client.SaveWarning(ctx, warning); err != nil {
		t.Fatal(err)
	}
	warning.Count = 2
	warning.Reasons = append(warning.Reasons, "flooding")
	if err := client.SaveWarning(ctx, warning); err != nil {
		t.Fatal(err)
	}

	loaded, err := client.GetWarning(ctx, -100500, 42)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Count != 2 {
		t.Errorf("got count %d, want 2", loaded.Count)
	}
	if diff := cmp.Diff(db.ReasonList{"spam", "flooding"}, loaded.Reasons); diff != "" {
		t.Errorf("reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageEventWindow(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		if err := client.AppendMessageEvent(ctx, &db.MessageEvent{
			UserID:    42,
			ChatID:    -100500,
			CreatedAt: now.Add(-time.Duration(i*10) * time.Second),
			Type:      "text",
		}); err != nil {
			t.Fatal(err)
		}
	}
	// One old event outside any reasonable window.
	if err := client.AppendMessageEvent(ctx, &db.MessageEvent{
		UserID:    42,
		ChatID:    -100500,
		CreatedAt: now.Add(-time.Hour),
		Type:      "text",
	}); err != nil {
		t.Fatal(err)
	}

	count, err := client.CountMessageEvents(ctx, 42, -100500, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Errorf("got %d events in window, want 5", count)
	}
}

func TestJoinEventsCountedSeparately(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		if err := client.AppendMessageEvent(ctx, &db.MessageEvent{
			UserID:    int64(100 + i),
			ChatID:    -100500,
			CreatedAt: now,
			Type:      "join",
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := client.AppendMessageEvent(ctx, &db.MessageEvent{
		UserID:    42,
		ChatID:    -100500,
		CreatedAt: now,
		Type:      "text",
	}); err != nil {
		t.Fatal(err)
	}

	count, err := client.CountJoinEvents(ctx, -100500, now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("got %d joins, want 3", count)
	}
}

func TestDeleteGroupDropsEverything(t *testing.T) {
	t.Parallel()

	client := newTestClient(t)
	ctx := context.Background()

	group := &db.Group{ID: -100500, Title: "doomed", Settings: db.DefaultSettings()}
	if err := client.UpsertGroup(ctx, group); err != nil {
		t.Fatal(err)
	}
	if err := client.AddBlockedWord(ctx, group.ID, "casino"); err != nil {
		t.Fatal(err)
	}
	if err := client.SaveWarning(ctx, &db.Warning{ChatID: group.ID, UserID: 42, Count: 1, LastWarning: time.Now()}); err != nil {
		t.Fatal(err)
	}

	if err := client.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := client.GetGroup(ctx, group.ID); err != db.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound", err)
	}
	if _, err := client.GetWarning(ctx, group.ID, 42); err != db.ErrNotFound {
		t.Errorf("warning survived group deletion: %v", err)
	}
}
