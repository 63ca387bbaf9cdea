package groups_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/firtigh/firtigh/internal/groups"
)

// memBackend keeps everything in maps so tests can inspect what the manager
// persisted and control what hydration returns.
type memBackend struct {
	mu       sync.Mutex
	messages map[int64][]groups.Message
	profiles map[string]*groups.UserProfile
	snippets map[int64]map[string][]groups.Snippet
	loadErr  error
}

func newMemBackend() *memBackend {
	return &memBackend{
		messages: make(map[int64][]groups.Message),
		profiles: make(map[string]*groups.UserProfile),
		snippets: make(map[int64]map[string][]groups.Snippet),
	}
}

func (b *memBackend) LoadGroup(_ context.Context, groupID int64, historyCap int) ([]groups.Message, map[int64]*groups.UserProfile, map[string][]groups.Snippet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return nil, nil, nil, b.loadErr
	}
	history := b.messages[groupID]
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	out := make([]groups.Message, len(history))
	copy(out, history)
	return out, nil, nil, nil
}

func (b *memBackend) AppendMessage(_ context.Context, msg groups.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[msg.GroupID] = append(b.messages[msg.GroupID], msg)
	return nil
}

func (b *memBackend) SaveProfile(_ context.Context, profile *groups.UserProfile) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := fmt.Sprintf("%d/%d", profile.GroupID, profile.UserID)
	b.profiles[key] = profile
	return nil
}

func (b *memBackend) AppendSnippet(_ context.Context, groupID int64, topic string, s groups.Snippet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.snippets[groupID] == nil {
		b.snippets[groupID] = make(map[string][]groups.Snippet)
	}
	b.snippets[groupID][topic] = append(b.snippets[groupID][topic], s)
	return nil
}

func testMessage(groupID, userID int64, id int, text string) groups.Message {
	return groups.Message{
		MessageID: id,
		GroupID:   groupID,
		UserID:    userID,
		Sender:    fmt.Sprintf("user%d", userID),
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
}

func TestAppend_HistoryCap(t *testing.T) {
	t.Parallel()

	m := groups.NewManager(newMemBackend(), groups.Limits{HistoryCap: 3}, nil)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		m.Append(ctx, testMessage(-100, 1, i, fmt.Sprintf("msg %d", i)))
	}

	history := m.History(ctx, -100)
	if len(history) != 3 {
		t.Fatalf("History() returned %d messages, want 3", len(history))
	}
	for i, want := range []int{3, 4, 5} {
		if history[i].MessageID != want {
			t.Errorf("History()[%d].MessageID = %d, want %d", i, history[i].MessageID, want)
		}
	}
}

func TestPartitionIsolation(t *testing.T) {
	t.Parallel()

	m := groups.NewManager(newMemBackend(), groups.Limits{}, nil)
	ctx := context.Background()

	m.Append(ctx, testMessage(-100, 1, 1, "group one"))
	m.Append(ctx, testMessage(-200, 1, 1, "group two"))
	m.Observe(ctx, -100, 1, groups.Observation{
		Topics:    []string{"فوتبال"},
		Memorable: map[string]string{"سفر": "میرم شمال"},
	})

	if history := m.History(ctx, -200); len(history) != 1 || history[0].Text != "group two" {
		t.Errorf("History(-200) = %v, want only its own message", history)
	}
	if memory := m.Memory(ctx, -200); len(memory) != 0 {
		t.Errorf("Memory(-200) = %v, want empty", memory)
	}
	profile := m.Profile(ctx, -200, 1)
	if profile == nil {
		t.Fatal("Profile(-200, 1) = nil, want a profile from the appended message")
	}
	if len(profile.Topics) != 0 {
		t.Errorf("Profile(-200, 1).Topics = %v, want the other group's observation isolated", profile.Topics)
	}
}

func TestObserve_ProfilePruning(t *testing.T) {
	t.Parallel()

	m := groups.NewManager(newMemBackend(), groups.Limits{ProfileEntries: 2}, nil)
	ctx := context.Background()

	// "b" is observed most, then "c"; "a" should be pruned away.
	for i := 0; i < 3; i++ {
		m.Observe(ctx, -100, 1, groups.Observation{Topics: []string{"b"}})
	}
	for i := 0; i < 2; i++ {
		m.Observe(ctx, -100, 1, groups.Observation{Topics: []string{"c"}})
	}
	m.Observe(ctx, -100, 1, groups.Observation{Topics: []string{"a"}})

	profile := m.Profile(ctx, -100, 1)
	if profile == nil {
		t.Fatal("Profile() = nil")
	}
	if len(profile.Topics) != 2 {
		t.Fatalf("Topics = %v, want 2 entries", profile.Topics)
	}
	if profile.Topics["b"] != 3 || profile.Topics["c"] != 2 {
		t.Errorf("Topics = %v, want b:3 and c:2 kept", profile.Topics)
	}
}

func TestObserve_Sentiment(t *testing.T) {
	t.Parallel()

	m := groups.NewManager(newMemBackend(), groups.Limits{}, nil)
	ctx := context.Background()

	m.Observe(ctx, -100, 1, groups.Observation{Sentiment: "positive"})
	m.Observe(ctx, -100, 1, groups.Observation{Sentiment: "positive"})
	m.Observe(ctx, -100, 1, groups.Observation{Sentiment: "bogus"})

	profile := m.Profile(ctx, -100, 1)
	if profile == nil {
		t.Fatal("Profile() = nil")
	}
	if got := profile.DominantSentiment(); got != "positive" {
		t.Errorf("DominantSentiment() = %q, want positive", got)
	}
	if _, ok := profile.SentimentCounts["bogus"]; ok {
		t.Error("unknown sentiment label was tallied, want it ignored")
	}
}

func TestObserve_SnippetCap(t *testing.T) {
	t.Parallel()

	backend := newMemBackend()
	m := groups.NewManager(backend, groups.Limits{SnippetsPerTopic: 2}, nil)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		m.Observe(ctx, -100, 1, groups.Observation{
			Memorable: map[string]string{"سفر": fmt.Sprintf("snippet %d", i)},
		})
	}

	memory := m.Memory(ctx, -100)
	snippets := memory["سفر"]
	if len(snippets) != 2 {
		t.Fatalf("memory holds %d snippets, want 2", len(snippets))
	}
	if snippets[0].Text != "snippet 3" || snippets[1].Text != "snippet 4" {
		t.Errorf("memory = %v, want the two newest snippets", snippets)
	}

	// The backend still sees every snippet; only the hot copy is capped.
	if persisted := backend.snippets[-100]["سفر"]; len(persisted) != 4 {
		t.Errorf("backend holds %d snippets, want all 4", len(persisted))
	}
}

func TestReset_Rehydrates(t *testing.T) {
	t.Parallel()

	backend := newMemBackend()
	m := groups.NewManager(backend, groups.Limits{}, nil)
	ctx := context.Background()

	m.Append(ctx, testMessage(-100, 1, 1, "persisted"))
	m.Reset(-100)

	// The stored row survives, so the partition comes back with it.
	if history := m.History(ctx, -100); len(history) != 1 {
		t.Fatalf("History() after reset = %d messages, want 1 rehydrated", len(history))
	}

	// Clearing the backend first makes the reset stick.
	backend.mu.Lock()
	delete(backend.messages, -100)
	backend.mu.Unlock()
	m.Reset(-100)
	if history := m.History(ctx, -100); len(history) != 0 {
		t.Errorf("History() after backend wipe and reset = %d messages, want 0", len(history))
	}
}

func TestHydrate_LoadFailure(t *testing.T) {
	t.Parallel()

	backend := newMemBackend()
	backend.loadErr = errors.New("database locked")
	m := groups.NewManager(backend, groups.Limits{}, nil)
	ctx := context.Background()

	// The group still works, it just starts cold.
	m.Append(ctx, testMessage(-100, 1, 1, "hello"))
	if history := m.History(ctx, -100); len(history) != 1 {
		t.Errorf("History() = %d messages after failed hydration, want 1", len(history))
	}
}
