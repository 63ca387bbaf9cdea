package database

import "time"

// Message is a stored group message row.
type Message struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	GroupID   int64     `db:"group_id"`
	UserID    int64     `db:"user_id"`
	MessageID int       `db:"message_id"`
	Sender    string    `db:"sender"`
	Content   string    `db:"content"`
	ReplyToID int       `db:"reply_to_id"`
	Timestamp time.Time `db:"timestamp"`
}

// UserProfile is a stored per-group user profile row. The frequency maps
// are stored as JSON text columns and decoded when a group is loaded.
type UserProfile struct {
	UserID  int64 `db:"user_id"`
	GroupID int64 `db:"group_id"`

	Traits     string `db:"traits"`
	Topics     string `db:"topics"`
	Interests  string `db:"interests"`
	Sentiments string `db:"sentiments"`

	MessageCount int       `db:"message_count"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// MemoryItem is one remembered snippet row, indexed by group and topic.
type MemoryItem struct {
	ID        uint      `db:"id"`
	GroupID   int64     `db:"group_id"`
	Topic     string    `db:"topic"`
	Content   string    `db:"content"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}
