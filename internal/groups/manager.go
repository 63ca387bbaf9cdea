package groups

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Defaults mirror the limits the group state has always run with.
const (
	DefaultHistoryCap       = 1000
	DefaultSnippetsPerTopic = 10
	DefaultProfileEntries   = 10
)

// Backend is the slice of the persistence layer the manager writes through
// to. All methods are best-effort from the manager's point of view: a
// failed write is logged and the in-memory partition stays authoritative.
type Backend interface {
	LoadGroup(ctx context.Context, groupID int64, historyCap int) ([]Message, map[int64]*UserProfile, map[string][]Snippet, error)
	AppendMessage(ctx context.Context, msg Message) error
	SaveProfile(ctx context.Context, profile *UserProfile) error
	AppendSnippet(ctx context.Context, groupID int64, topic string, s Snippet) error
}

// Limits bound the state retained per group partition.
type Limits struct {
	HistoryCap       int
	SnippetsPerTopic int
	ProfileEntries   int
}

func (l Limits) withDefaults() Limits {
	if l.HistoryCap <= 0 {
		l.HistoryCap = DefaultHistoryCap
	}
	if l.SnippetsPerTopic <= 0 {
		l.SnippetsPerTopic = DefaultSnippetsPerTopic
	}
	if l.ProfileEntries <= 0 {
		l.ProfileEntries = DefaultProfileEntries
	}
	return l
}

// partition is the isolated state of one group. Its mutex serializes all
// mutations for that group; partitions of different groups never contend.
type partition struct {
	mu       sync.Mutex
	loaded   bool
	history  []Message
	profiles map[int64]*UserProfile
	memory   map[string][]Snippet
}

// Manager owns the partition map. The map-level lock is held only for
// partition lookup, never across a partition operation.
type Manager struct {
	mu         sync.Mutex
	partitions map[int64]*partition

	backend Backend
	limits  Limits
	logger  *slog.Logger
}

// NewManager creates a partition manager backed by the given store.
func NewManager(backend Backend, limits Limits, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		partitions: make(map[int64]*partition),
		backend:    backend,
		limits:     limits.withDefaults(),
		logger:     logger.With("component", "groups"),
	}
}

func (m *Manager) partitionFor(groupID int64) *partition {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[groupID]
	if !ok {
		p = &partition{
			profiles: make(map[int64]*UserProfile),
			memory:   make(map[string][]Snippet),
		}
		m.partitions[groupID] = p
	}
	return p
}

// hydrate loads the partition from the backend on first touch. Called with
// the partition lock held. Load failures leave an empty partition; the
// group still works, it just starts cold.
func (m *Manager) hydrate(ctx context.Context, groupID int64, p *partition) {
	if p.loaded {
		return
	}
	p.loaded = true
	if m.backend == nil {
		return
	}
	history, profiles, memory, err := m.backend.LoadGroup(ctx, groupID, m.limits.HistoryCap)
	if err != nil {
		m.logger.WarnContext(ctx, "Failed to load group state, starting empty", "group_id", groupID, "error", err)
		return
	}
	p.history = history
	if profiles != nil {
		p.profiles = profiles
	}
	if memory != nil {
		p.memory = memory
	}
	m.logger.DebugContext(ctx, "Group state loaded",
		"group_id", groupID, "messages", len(history), "profiles", len(p.profiles), "topics", len(p.memory))
}

// Append records a message in the group's history, evicting the oldest
// entries beyond the history cap, and bumps the sender's message count.
func (m *Manager) Append(ctx context.Context, msg Message) {
	p := m.partitionFor(msg.GroupID)
	p.mu.Lock()
	defer p.mu.Unlock()
	m.hydrate(ctx, msg.GroupID, p)

	p.history = append(p.history, msg)
	if over := len(p.history) - m.limits.HistoryCap; over > 0 {
		p.history = p.history[over:]
	}

	prof, ok := p.profiles[msg.UserID]
	if !ok {
		prof = NewUserProfile(msg.GroupID, msg.UserID)
		p.profiles[msg.UserID] = prof
	}
	prof.MessageCount++
	prof.UpdatedAt = msg.Timestamp

	if m.backend != nil {
		if err := m.backend.AppendMessage(ctx, msg); err != nil {
			m.logger.WarnContext(ctx, "Failed to persist message", "group_id", msg.GroupID, "error", err)
		}
	}
}

// History returns a copy of the group's history in insertion order.
func (m *Manager) History(ctx context.Context, groupID int64) []Message {
	p := m.partitionFor(groupID)
	p.mu.Lock()
	defer p.mu.Unlock()
	m.hydrate(ctx, groupID, p)

	out := make([]Message, len(p.history))
	copy(out, p.history)
	return out
}

// Profile returns a snapshot of the user's profile in the group, or nil
// when the user has never been observed there.
func (m *Manager) Profile(ctx context.Context, groupID, userID int64) *UserProfile {
	p := m.partitionFor(groupID)
	p.mu.Lock()
	defer p.mu.Unlock()
	m.hydrate(ctx, groupID, p)

	prof, ok := p.profiles[userID]
	if !ok {
		return nil
	}
	return snapshotProfile(prof)
}

// Memory returns a snapshot of the group's topic-indexed memory.
func (m *Manager) Memory(ctx context.Context, groupID int64) map[string][]Snippet {
	p := m.partitionFor(groupID)
	p.mu.Lock()
	defer p.mu.Unlock()
	m.hydrate(ctx, groupID, p)

	out := make(map[string][]Snippet, len(p.memory))
	for topic, snippets := range p.memory {
		cp := make([]Snippet, len(snippets))
		copy(cp, snippets)
		out[topic] = cp
	}
	return out
}

// Observe folds an analyzed observation into the sender's profile and, for
// memorable snippets, into the group memory. Frequency maps are pruned to
// the configured entry cap; per-topic snippet lists drop their oldest entry
// beyond the cap.
func (m *Manager) Observe(ctx context.Context, groupID, userID int64, obs Observation) {
	p := m.partitionFor(groupID)
	p.mu.Lock()
	defer p.mu.Unlock()
	m.hydrate(ctx, groupID, p)

	prof, ok := p.profiles[userID]
	if !ok {
		prof = NewUserProfile(groupID, userID)
		p.profiles[userID] = prof
	}

	bump(prof.Traits, obs.Traits, m.limits.ProfileEntries)
	bump(prof.Topics, obs.Topics, m.limits.ProfileEntries)
	bump(prof.Interests, obs.Interests, m.limits.ProfileEntries)
	if _, known := prof.SentimentCounts[obs.Sentiment]; known {
		prof.SentimentCounts[obs.Sentiment]++
	}
	prof.UpdatedAt = time.Now().UTC()

	for topic, text := range obs.Memorable {
		if topic == "" || text == "" {
			continue
		}
		s := Snippet{Text: text, UserID: userID}
		p.memory[topic] = append(p.memory[topic], s)
		if over := len(p.memory[topic]) - m.limits.SnippetsPerTopic; over > 0 {
			p.memory[topic] = p.memory[topic][over:]
		}
		if m.backend != nil {
			if err := m.backend.AppendSnippet(ctx, groupID, topic, s); err != nil {
				m.logger.WarnContext(ctx, "Failed to persist memory snippet", "group_id", groupID, "topic", topic, "error", err)
			}
		}
	}

	if m.backend != nil {
		if err := m.backend.SaveProfile(ctx, snapshotProfile(prof)); err != nil {
			m.logger.WarnContext(ctx, "Failed to persist profile", "group_id", groupID, "user_id", userID, "error", err)
		}
	}
}

// Reset drops the group's in-memory state. The next touch rehydrates from
// the backend, so callers clearing a group should delete its stored rows
// first.
func (m *Manager) Reset(groupID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions, groupID)
}

func bump(counts map[string]int, entries []string, limit int) {
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		counts[e]++
	}
	prune(counts, limit)
}

// prune keeps only the limit most frequent entries, ties broken
// alphabetically to keep pruning deterministic.
func prune(counts map[string]int, limit int) {
	if len(counts) <= limit {
		return
	}
	keep := topN(counts, limit)
	keepSet := make(map[string]struct{}, len(keep))
	for _, k := range keep {
		keepSet[k] = struct{}{}
	}
	for k := range counts {
		if _, ok := keepSet[k]; !ok {
			delete(counts, k)
		}
	}
}

func snapshotProfile(p *UserProfile) *UserProfile {
	cp := &UserProfile{
		UserID:          p.UserID,
		GroupID:         p.GroupID,
		Traits:          copyCounts(p.Traits),
		Topics:          copyCounts(p.Topics),
		Interests:       copyCounts(p.Interests),
		SentimentCounts: copyCounts(p.SentimentCounts),
		MessageCount:    p.MessageCount,
		UpdatedAt:       p.UpdatedAt,
	}
	return cp
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
