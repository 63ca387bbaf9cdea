package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/firtigh/firtigh/internal/ledger"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessage inserts a new message record.
	SaveMessage(ctx context.Context, message *Message) error

	// RecentMessagesInGroup retrieves the most recent 'limit' messages for a
	// group, returned in chronological order.
	RecentMessagesInGroup(ctx context.Context, groupID int64, limit int) ([]Message, error)

	// SaveUserProfile inserts or updates a per-group user profile.
	SaveUserProfile(ctx context.Context, profile *UserProfile) error

	// GroupUserProfiles retrieves all stored profiles for a group.
	GroupUserProfiles(ctx context.Context, groupID int64) ([]UserProfile, error)

	// SaveMemoryItem appends a remembered snippet for a group topic.
	SaveMemoryItem(ctx context.Context, item *MemoryItem) error

	// GroupMemoryItems retrieves a group's memory snippets in insertion order.
	GroupMemoryItems(ctx context.Context, groupID int64) ([]MemoryItem, error)

	// RecordUsage appends a usage record and updates the matching
	// (date, model) daily aggregate in the same transaction.
	RecordUsage(ctx context.Context, rec ledger.UsageRecord) error

	// UsageSince retrieves daily aggregates on or after the given date.
	UsageSince(ctx context.Context, since string) ([]ledger.DailyUsage, error)

	// IncrementCapabilityUsage bumps the per-day counter for a capability
	// and returns the new count.
	IncrementCapabilityUsage(ctx context.Context, day, capability string) (int, error)

	// DeleteGroupData deletes a group's messages, profiles, and memory in a
	// single transaction.
	DeleteGroupData(ctx context.Context, groupID int64) error

	// PruneUsageBefore deletes usage records and aggregates older than the
	// given date.
	PruneUsageBefore(ctx context.Context, before string) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveMessage inserts a new message record.
func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.GroupID == 0 {
		return fmt.Errorf("message must have a non-zero group_id")
	}
	if message.UserID == 0 {
		return fmt.Errorf("message must have a non-zero user_id")
	}
	if message.Timestamp.IsZero() {
		return fmt.Errorf("message must have a non-zero timestamp")
	}

	message.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO messages (group_id, user_id, message_id, sender, content, reply_to_id, timestamp, created_at)
        VALUES (:group_id, :user_id, :message_id, :sender, :content, :reply_to_id, :timestamp, :created_at);
    `

	result, err := s.db.NamedExecContext(ctx, query, message)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message", "group_id", message.GroupID, "user_id", message.UserID, "error", err)
		return fmt.Errorf("failed to save message (group %d, user %d): %w", message.GroupID, message.UserID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // row IDs stay far below the uint boundary
		message.ID = uint(id)
	}

	s.logger.DebugContext(ctx, "Message saved successfully",
		"group_id", message.GroupID, "user_id", message.UserID, "message_id", message.MessageID)
	return nil
}

// RecentMessagesInGroup retrieves the most recent 'limit' messages for a
// group. The query walks newest-first; the result is reversed so callers
// get chronological order.
func (s *sqlxStore) RecentMessagesInGroup(ctx context.Context, groupID int64, limit int) ([]Message, error) {
	if groupID == 0 {
		return nil, fmt.Errorf("group_id cannot be zero")
	}
	if limit <= 0 {
		limit = 100
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var messages []Message
	query := `
        SELECT id, group_id, user_id, message_id, sender, content, reply_to_id, timestamp, created_at
        FROM messages
        WHERE group_id = ?
        ORDER BY timestamp DESC, id DESC
        LIMIT ?;
    `

	err := s.db.SelectContext(ctx, &messages, query, groupID, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent messages", "group_id", groupID, "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to get recent messages for group %d: %w", groupID, err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	s.logger.DebugContext(ctx, "Fetched recent messages", "group_id", groupID, "count", len(messages))
	return messages, nil
}

// SaveUserProfile inserts or updates a per-group user profile.
func (s *sqlxStore) SaveUserProfile(ctx context.Context, profile *UserProfile) error {
	if profile == nil {
		return fmt.Errorf("cannot save nil user profile")
	}

	profile.UpdatedAt = time.Now().UTC()

	query := `
        INSERT INTO user_profiles (
            user_id, group_id, traits, topics, interests, sentiments,
            message_count, updated_at
        ) VALUES (
            :user_id, :group_id, :traits, :topics, :interests, :sentiments,
            :message_count, :updated_at
        )
        ON CONFLICT(user_id, group_id) DO UPDATE SET
            traits = excluded.traits,
            topics = excluded.topics,
            interests = excluded.interests,
            sentiments = excluded.sentiments,
            message_count = excluded.message_count,
            updated_at = excluded.updated_at;
    `

	if _, err := s.db.NamedExecContext(ctx, query, profile); err != nil {
		s.logger.ErrorContext(ctx, "Error saving user profile",
			"user_id", profile.UserID, "group_id", profile.GroupID, "error", err)
		return fmt.Errorf("failed to save user profile for user %d in group %d: %w", profile.UserID, profile.GroupID, err)
	}

	s.logger.DebugContext(ctx, "User profile saved successfully",
		"user_id", profile.UserID, "group_id", profile.GroupID)
	return nil
}

// GroupUserProfiles retrieves all stored profiles for a group.
func (s *sqlxStore) GroupUserProfiles(ctx context.Context, groupID int64) ([]UserProfile, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var profiles []UserProfile
	query := `
        SELECT user_id, group_id, traits, topics, interests, sentiments,
               message_count, updated_at
        FROM user_profiles
        WHERE group_id = ?;
    `

	if err := s.db.SelectContext(ctx, &profiles, query, groupID); err != nil {
		s.logger.ErrorContext(ctx, "Error getting group profiles", "group_id", groupID, "error", err)
		return nil, fmt.Errorf("failed to get user profiles for group %d: %w", groupID, err)
	}

	return profiles, nil
}

// SaveMemoryItem appends a remembered snippet for a group topic.
func (s *sqlxStore) SaveMemoryItem(ctx context.Context, item *MemoryItem) error {
	if item == nil {
		return fmt.Errorf("cannot save nil memory item")
	}
	if item.Topic == "" || item.Content == "" {
		return fmt.Errorf("memory item must have a topic and content")
	}

	item.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO memory_items (group_id, topic, content, user_id, created_at)
        VALUES (:group_id, :topic, :content, :user_id, :created_at);
    `

	result, err := s.db.NamedExecContext(ctx, query, item)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving memory item",
			"group_id", item.GroupID, "topic", item.Topic, "error", err)
		return fmt.Errorf("failed to save memory item for group %d: %w", item.GroupID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // row IDs stay far below the uint boundary
		item.ID = uint(id)
	}

	return nil
}

// GroupMemoryItems retrieves a group's memory snippets in insertion order.
func (s *sqlxStore) GroupMemoryItems(ctx context.Context, groupID int64) ([]MemoryItem, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var items []MemoryItem
	query := `
        SELECT id, group_id, topic, content, user_id, created_at
        FROM memory_items
        WHERE group_id = ?
        ORDER BY id ASC;
    `

	if err := s.db.SelectContext(ctx, &items, query, groupID); err != nil {
		s.logger.ErrorContext(ctx, "Error getting group memory", "group_id", groupID, "error", err)
		return nil, fmt.Errorf("failed to get memory items for group %d: %w", groupID, err)
	}

	return items, nil
}

// RecordUsage appends a usage record and updates the matching (date, model)
// daily aggregate. Both writes happen in one transaction so concurrent
// recorders never lose counts.
func (s *sqlxStore) RecordUsage(ctx context.Context, rec ledger.UsageRecord) error {
	if rec.Model == "" {
		return fmt.Errorf("usage record must have a model")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for usage record", "model", rec.Model, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	insertQuery := `
        INSERT INTO usage_records (timestamp, group_id, model, prompt_tokens, output_tokens, cost_usd)
        VALUES (:timestamp, :group_id, :model, :prompt_tokens, :output_tokens, :cost_usd);
    `
	if _, err := tx.NamedExecContext(ctx, insertQuery, rec); err != nil {
		s.logger.ErrorContext(ctx, "Error inserting usage record", "model", rec.Model, "error", err)
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	upsertQuery := `
        INSERT INTO daily_usage (date, model, requests, prompt_tokens, output_tokens, cost_usd)
        VALUES (?, ?, 1, ?, ?, ?)
        ON CONFLICT(date, model) DO UPDATE SET
            requests = requests + 1,
            prompt_tokens = prompt_tokens + excluded.prompt_tokens,
            output_tokens = output_tokens + excluded.output_tokens,
            cost_usd = cost_usd + excluded.cost_usd;
    `
	date := rec.Timestamp.UTC().Format("2006-01-02")
	if _, err := tx.ExecContext(ctx, upsertQuery, date, rec.Model, rec.PromptTokens, rec.OutputTokens, rec.CostUSD); err != nil {
		s.logger.ErrorContext(ctx, "Error updating daily usage aggregate", "date", date, "model", rec.Model, "error", err)
		return fmt.Errorf("failed to update daily usage for %s/%s: %w", date, rec.Model, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit usage transaction", "model", rec.Model, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Usage recorded",
		"model", rec.Model, "prompt_tokens", rec.PromptTokens, "output_tokens", rec.OutputTokens)
	return nil
}

// UsageSince retrieves daily aggregates on or after the given date, ordered
// by date then model.
func (s *sqlxStore) UsageSince(ctx context.Context, since string) ([]ledger.DailyUsage, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var rows []ledger.DailyUsage
	query := `
        SELECT date, model, requests, prompt_tokens, output_tokens, cost_usd
        FROM daily_usage
        WHERE date >= ?
        ORDER BY date ASC, model ASC;
    `

	if err := s.db.SelectContext(ctx, &rows, query, since); err != nil {
		s.logger.ErrorContext(ctx, "Error querying daily usage", "since", since, "error", err)
		return nil, fmt.Errorf("failed to query daily usage since %s: %w", since, err)
	}

	return rows, nil
}

// IncrementCapabilityUsage bumps the per-day counter for a capability and
// returns the new count. The upsert makes concurrent increments safe.
func (s *sqlxStore) IncrementCapabilityUsage(ctx context.Context, day, capability string) (int, error) {
	if day == "" || capability == "" {
		return 0, fmt.Errorf("day and capability must be non-empty")
	}

	var count int
	query := `
        INSERT INTO capability_usage (date, capability, count)
        VALUES (?, ?, 1)
        ON CONFLICT(date, capability) DO UPDATE SET count = count + 1
        RETURNING count;
    `

	if err := s.db.GetContext(ctx, &count, query, day, capability); err != nil {
		s.logger.ErrorContext(ctx, "Error incrementing capability usage",
			"date", day, "capability", capability, "error", err)
		return 0, fmt.Errorf("failed to increment usage for %s on %s: %w", capability, day, err)
	}

	return count, nil
}

// DeleteGroupData deletes a group's messages, profiles, and memory in a
// single transaction so the reset is all-or-nothing.
func (s *sqlxStore) DeleteGroupData(ctx context.Context, groupID int64) error {
	if groupID == 0 {
		return fmt.Errorf("group_id cannot be zero")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for group reset", "group_id", groupID, "error", err)
		return fmt.Errorf("failed to begin transaction for group reset: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	var deleted [3]int64
	for i, table := range []string{"messages", "user_profiles", "memory_items"} {
		result, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE group_id = ?`, groupID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error deleting group rows", "table", table, "group_id", groupID, "error", err)
			return fmt.Errorf("failed to delete %s for group %d: %w", table, groupID, err)
		}
		deleted[i], _ = result.RowsAffected()
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit group reset transaction", "group_id", groupID, "error", err)
		return fmt.Errorf("failed to commit group reset transaction: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Group data reset",
		"group_id", groupID,
		"messages_deleted", deleted[0],
		"profiles_deleted", deleted[1],
		"memory_deleted", deleted[2])
	return nil
}

// PruneUsageBefore deletes usage records and aggregates older than the
// given date.
func (s *sqlxStore) PruneUsageBefore(ctx context.Context, before string) error {
	if before == "" {
		return fmt.Errorf("cutoff date must be non-empty")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for usage prune", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM usage_records WHERE date(timestamp) < ?`, before); err != nil {
		s.logger.ErrorContext(ctx, "Error pruning usage records", "before", before, "error", err)
		return fmt.Errorf("failed to prune usage records before %s: %w", before, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_usage WHERE date < ?`, before); err != nil {
		s.logger.ErrorContext(ctx, "Error pruning daily usage", "before", before, "error", err)
		return fmt.Errorf("failed to prune daily usage before %s: %w", before, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM capability_usage WHERE date < ?`, before); err != nil {
		s.logger.ErrorContext(ctx, "Error pruning capability usage", "before", before, "error", err)
		return fmt.Errorf("failed to prune capability usage before %s: %w", before, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit usage prune transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Pruned usage data", "before", before)
	return nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}
