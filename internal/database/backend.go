package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/firtigh/firtigh/internal/groups"
)

// GroupBackend adapts the Store to the persistence surface the group state
// manager expects, translating between in-memory frequency maps and their
// JSON column encodings.
type GroupBackend struct {
	store  Store
	logger *slog.Logger
}

// NewGroupBackend wraps a store as a groups persistence backend.
func NewGroupBackend(store Store, logger *slog.Logger) *GroupBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupBackend{store: store, logger: logger.With("component", "group_backend")}
}

// LoadGroup reads a group's history, profiles, and memory from the store.
func (b *GroupBackend) LoadGroup(ctx context.Context, groupID int64, historyCap int) ([]groups.Message, map[int64]*groups.UserProfile, map[string][]groups.Snippet, error) {
	rows, err := b.store.RecentMessagesInGroup(ctx, groupID, historyCap)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load messages: %w", err)
	}
	history := make([]groups.Message, 0, len(rows))
	for _, row := range rows {
		history = append(history, groups.Message{
			MessageID: row.MessageID,
			GroupID:   row.GroupID,
			UserID:    row.UserID,
			Sender:    row.Sender,
			Text:      row.Content,
			Timestamp: row.Timestamp,
			ReplyToID: row.ReplyToID,
		})
	}

	profileRows, err := b.store.GroupUserProfiles(ctx, groupID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	profiles := make(map[int64]*groups.UserProfile, len(profileRows))
	for _, row := range profileRows {
		profile, err := decodeProfile(row)
		if err != nil {
			b.logger.WarnContext(ctx, "Skipping undecodable profile row",
				"group_id", groupID, "user_id", row.UserID, "error", err)
			continue
		}
		profiles[row.UserID] = profile
	}

	items, err := b.store.GroupMemoryItems(ctx, groupID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load memory: %w", err)
	}
	memory := make(map[string][]groups.Snippet)
	for _, item := range items {
		memory[item.Topic] = append(memory[item.Topic], groups.Snippet{
			Text:   item.Content,
			UserID: item.UserID,
		})
	}

	return history, profiles, memory, nil
}

// AppendMessage persists one group message.
func (b *GroupBackend) AppendMessage(ctx context.Context, msg groups.Message) error {
	row := &Message{
		GroupID:   msg.GroupID,
		UserID:    msg.UserID,
		MessageID: msg.MessageID,
		Sender:    msg.Sender,
		Content:   msg.Text,
		ReplyToID: msg.ReplyToID,
		Timestamp: msg.Timestamp,
	}
	return b.store.SaveMessage(ctx, row)
}

// SaveProfile persists a profile snapshot.
func (b *GroupBackend) SaveProfile(ctx context.Context, profile *groups.UserProfile) error {
	row, err := encodeProfile(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	return b.store.SaveUserProfile(ctx, row)
}

// AppendSnippet persists a remembered snippet under its topic.
func (b *GroupBackend) AppendSnippet(ctx context.Context, groupID int64, topic string, s groups.Snippet) error {
	item := &MemoryItem{
		GroupID: groupID,
		Topic:   topic,
		Content: s.Text,
		UserID:  s.UserID,
	}
	return b.store.SaveMemoryItem(ctx, item)
}

func encodeProfile(p *groups.UserProfile) (*UserProfile, error) {
	traits, err := json.Marshal(p.Traits)
	if err != nil {
		return nil, err
	}
	topics, err := json.Marshal(p.Topics)
	if err != nil {
		return nil, err
	}
	interests, err := json.Marshal(p.Interests)
	if err != nil {
		return nil, err
	}
	sentiments, err := json.Marshal(p.SentimentCounts)
	if err != nil {
		return nil, err
	}
	return &UserProfile{
		UserID:       p.UserID,
		GroupID:      p.GroupID,
		Traits:       string(traits),
		Topics:       string(topics),
		Interests:    string(interests),
		Sentiments:   string(sentiments),
		MessageCount: p.MessageCount,
		UpdatedAt:    p.UpdatedAt,
	}, nil
}

func decodeProfile(row UserProfile) (*groups.UserProfile, error) {
	profile := groups.NewUserProfile(row.GroupID, row.UserID)
	profile.MessageCount = row.MessageCount
	profile.UpdatedAt = row.UpdatedAt

	columns := []struct {
		raw    string
		target *map[string]int
	}{
		{row.Traits, &profile.Traits},
		{row.Topics, &profile.Topics},
		{row.Interests, &profile.Interests},
		{row.Sentiments, &profile.SentimentCounts},
	}
	for _, c := range columns {
		if c.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c.raw), c.target); err != nil {
			return nil, err
		}
	}
	return profile, nil
}
