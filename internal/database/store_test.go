package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/firtigh/firtigh/internal/database"
	"github.com/firtigh/firtigh/internal/ledger"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func TestRecordUsage_DailyAggregate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	records := []ledger.UsageRecord{
		{Timestamp: now, GroupID: -100, Model: "A", PromptTokens: 60, OutputTokens: 40, CostUSD: 0.01},
		{Timestamp: now.Add(time.Hour), GroupID: -200, Model: "A", PromptTokens: 90, OutputTokens: 60, CostUSD: 0.02},
		{Timestamp: now, GroupID: -100, Model: "B", PromptTokens: 10, OutputTokens: 10, CostUSD: 0.001},
	}
	for _, rec := range records {
		if err := store.RecordUsage(ctx, rec); err != nil {
			t.Fatalf("RecordUsage() error = %v", err)
		}
	}

	rows, err := store.UsageSince(ctx, "2026-08-30")
	if err != nil {
		t.Fatalf("UsageSince() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("UsageSince() returned %d rows, want 2 (one per model)", len(rows))
	}

	a := rows[0]
	if a.Model != "A" || a.Requests != 2 || a.PromptTokens != 150 || a.OutputTokens != 100 {
		t.Errorf("model A aggregate = %+v, want 2 requests, 150 prompt, 100 output", a)
	}
	b := rows[1]
	if b.Model != "B" || b.Requests != 1 || b.PromptTokens != 10 {
		t.Errorf("model B aggregate = %+v, want 1 request, 10 prompt", b)
	}
}

func TestIncrementCapabilityUsage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := store.IncrementCapabilityUsage(ctx, "2026-08-30", "web_search")
		if err != nil {
			t.Fatalf("IncrementCapabilityUsage() error = %v", err)
		}
		if got != want {
			t.Errorf("IncrementCapabilityUsage() = %d, want %d", got, want)
		}
	}

	// A different day starts its own counter.
	got, err := store.IncrementCapabilityUsage(ctx, "2026-08-31", "web_search")
	if err != nil {
		t.Fatalf("IncrementCapabilityUsage() error = %v", err)
	}
	if got != 1 {
		t.Errorf("IncrementCapabilityUsage() next day = %d, want 1", got)
	}
}

func TestRecentMessagesInGroup(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		msg := &database.Message{
			GroupID:   -100,
			UserID:    1,
			MessageID: i,
			Sender:    "Ali",
			Content:   "پیام",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	messages, err := store.RecentMessagesInGroup(ctx, -100, 3)
	if err != nil {
		t.Fatalf("RecentMessagesInGroup() error = %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("RecentMessagesInGroup() returned %d messages, want 3", len(messages))
	}
	for i, want := range []int{3, 4, 5} {
		if messages[i].MessageID != want {
			t.Errorf("messages[%d].MessageID = %d, want %d (chronological order)", i, messages[i].MessageID, want)
		}
	}
}

func TestSaveUserProfile_Upsert(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	profile := &database.UserProfile{
		UserID:       42,
		GroupID:      -100,
		Traits:       `{"کنجکاو":1}`,
		Topics:       `{}`,
		Interests:    `{}`,
		Sentiments:   `{}`,
		MessageCount: 1,
	}
	if err := store.SaveUserProfile(ctx, profile); err != nil {
		t.Fatalf("SaveUserProfile() error = %v", err)
	}

	profile.MessageCount = 7
	profile.Sentiments = `{"positive":3}`
	if err := store.SaveUserProfile(ctx, profile); err != nil {
		t.Fatalf("SaveUserProfile() second save error = %v", err)
	}

	profiles, err := store.GroupUserProfiles(ctx, -100)
	if err != nil {
		t.Fatalf("GroupUserProfiles() error = %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("GroupUserProfiles() returned %d profiles, want 1 upserted row", len(profiles))
	}
	if profiles[0].MessageCount != 7 || profiles[0].Sentiments != `{"positive":3}` {
		t.Errorf("profile = %+v, want the updated message count and sentiments", profiles[0])
	}
}

func TestDeleteGroupData(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	for _, groupID := range []int64{-100, -200} {
		msg := &database.Message{GroupID: groupID, UserID: 1, Sender: "Ali", Content: "پیام", Timestamp: now}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
		item := &database.MemoryItem{GroupID: groupID, Topic: "سفر", Content: "میرم شمال", UserID: 1}
		if err := store.SaveMemoryItem(ctx, item); err != nil {
			t.Fatalf("SaveMemoryItem() error = %v", err)
		}
	}

	if err := store.DeleteGroupData(ctx, -100); err != nil {
		t.Fatalf("DeleteGroupData() error = %v", err)
	}

	if messages, err := store.RecentMessagesInGroup(ctx, -100, 10); err != nil || len(messages) != 0 {
		t.Errorf("RecentMessagesInGroup(-100) = %d messages, err %v; want 0 after delete", len(messages), err)
	}
	if items, err := store.GroupMemoryItems(ctx, -100); err != nil || len(items) != 0 {
		t.Errorf("GroupMemoryItems(-100) = %d items, err %v; want 0 after delete", len(items), err)
	}

	// The other group is untouched.
	if messages, err := store.RecentMessagesInGroup(ctx, -200, 10); err != nil || len(messages) != 1 {
		t.Errorf("RecentMessagesInGroup(-200) = %d messages, err %v; want 1", len(messages), err)
	}
}

func TestPruneUsageBefore(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	old := ledger.UsageRecord{Timestamp: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), Model: "A", PromptTokens: 10}
	recent := ledger.UsageRecord{Timestamp: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC), Model: "A", PromptTokens: 20}
	for _, rec := range []ledger.UsageRecord{old, recent} {
		if err := store.RecordUsage(ctx, rec); err != nil {
			t.Fatalf("RecordUsage() error = %v", err)
		}
	}

	if err := store.PruneUsageBefore(ctx, "2026-08-01"); err != nil {
		t.Fatalf("PruneUsageBefore() error = %v", err)
	}

	rows, err := store.UsageSince(ctx, "2026-01-01")
	if err != nil {
		t.Fatalf("UsageSince() error = %v", err)
	}
	if len(rows) != 1 || rows[0].Date != "2026-08-30" {
		t.Errorf("UsageSince() after prune = %+v, want only the recent aggregate", rows)
	}
}
