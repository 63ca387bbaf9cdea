// Package groups holds the per-group conversational state: bounded message
// history, accumulated user profiles, and topic-indexed group memory. State
// is partitioned strictly by group ID; partitions never share locks and no
// operation touches another group's data.
package groups

import (
	"sort"
	"time"
)

// Message is one received group message. Immutable once recorded.
type Message struct {
	MessageID int
	GroupID   int64
	UserID    int64
	Sender    string
	Text      string
	Timestamp time.Time

	// ReplyToID is the message ID this one replies to, or 0.
	ReplyToID int
}

// UserProfile accumulates behavioral attributes for one user within one
// group. Traits, topics, and interests carry frequency counts so pruning
// keeps the most often observed entries.
type UserProfile struct {
	UserID  int64
	GroupID int64

	Traits    map[string]int
	Topics    map[string]int
	Interests map[string]int

	SentimentCounts map[string]int

	MessageCount int
	UpdatedAt    time.Time
}

// NewUserProfile returns an empty profile for the given user and group.
func NewUserProfile(groupID, userID int64) *UserProfile {
	return &UserProfile{
		UserID:          userID,
		GroupID:         groupID,
		Traits:          make(map[string]int),
		Topics:          make(map[string]int),
		Interests:       make(map[string]int),
		SentimentCounts: map[string]int{"positive": 0, "negative": 0, "neutral": 0},
	}
}

// DominantSentiment returns the sentiment with the highest tally, or
// "neutral" when nothing has been observed. Ties break alphabetically so
// the answer is stable.
func (p *UserProfile) DominantSentiment() string {
	best, bestCount := "neutral", 0
	keys := make([]string, 0, len(p.SentimentCounts))
	for k := range p.SentimentCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if c := p.SentimentCounts[k]; c > bestCount {
			best, bestCount = k, c
		}
	}
	return best
}

// TopTraits returns up to n traits ordered by descending frequency, ties
// broken alphabetically.
func (p *UserProfile) TopTraits(n int) []string { return topN(p.Traits, n) }

// TopTopics returns up to n discussed topics by descending frequency.
func (p *UserProfile) TopTopics(n int) []string { return topN(p.Topics, n) }

// TopInterests returns up to n interests by descending frequency.
func (p *UserProfile) TopInterests(n int) []string { return topN(p.Interests, n) }

func topN(m map[string]int, n int) []string {
	if n <= 0 || len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Snippet is one remembered statement attributed to the user who made it.
type Snippet struct {
	Text   string
	UserID int64
}

// Observation is the distilled outcome of analyzing one message: what it
// revealed about the sender and what, if anything, is worth remembering.
type Observation struct {
	Traits    []string
	Topics    []string
	Interests []string
	Sentiment string

	// Memorable snippets keyed by topic label.
	Memorable map[string]string
}
