package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/firtigh/firtigh/internal/groups"
)

const (
	// profileTopEntries caps how many traits, topics, and interests of a
	// profile survive compression.
	profileTopEntries = 2

	// snippetBudget caps each remembered snippet's length in the memory
	// section.
	snippetBudget = 200

	snippetSeparator = " | "
)

// sentimentLabels maps the tallied sentiment keys to their rendered Persian
// form.
var sentimentLabels = map[string]string{
	"positive": "مثبت",
	"negative": "منفی",
	"neutral":  "خنثی",
}

// CompressProfile renders a user profile as a single pipe-separated line.
// Only populated fields appear, each holding at most the top two entries by
// observed frequency, so the same profile always compresses to the same
// line. The tone field carries the dominant observed sentiment.
func CompressProfile(p *groups.UserProfile) string {
	if p == nil {
		return ""
	}

	fields := make([]string, 0, 4)
	if traits := p.TopTraits(profileTopEntries); len(traits) > 0 {
		fields = append(fields, "خصوصیات: "+strings.Join(traits, "، "))
	}
	if topics := p.TopTopics(profileTopEntries); len(topics) > 0 {
		fields = append(fields, "موضوعات: "+strings.Join(topics, "، "))
	}
	if interests := p.TopInterests(profileTopEntries); len(interests) > 0 {
		fields = append(fields, "علایق: "+strings.Join(interests, "، "))
	}
	if tone := dominantToneLabel(p); tone != "" {
		fields = append(fields, "لحن: "+tone)
	}
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " | ")
}

// dominantToneLabel renders the profile's dominant sentiment, or "" when no
// sentiment has been observed yet.
func dominantToneLabel(p *groups.UserProfile) string {
	total := 0
	for _, c := range p.SentimentCounts {
		total += c
	}
	if total == 0 {
		return ""
	}
	dominant := p.DominantSentiment()
	if label, ok := sentimentLabels[dominant]; ok {
		return label
	}
	return dominant
}

// CompressMemory renders group memory as one line per topic, topics in
// sorted order. Snippets within a topic keep their stored order, joined
// with a separator, each clipped to the snippet budget, each attributed to
// the user who said it.
func CompressMemory(memory map[string][]groups.Snippet) string {
	if len(memory) == 0 {
		return ""
	}

	topics := make([]string, 0, len(memory))
	for topic := range memory {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	lines := make([]string, 0, len(topics))
	for _, topic := range topics {
		snippets := memory[topic]
		if len(snippets) == 0 {
			continue
		}
		parts := make([]string, 0, len(snippets))
		for _, s := range snippets {
			text := truncateRunes(s.Text, snippetBudget)
			parts = append(parts, fmt.Sprintf("%s (UID %d)", text, s.UserID))
		}
		lines = append(lines, topic+": "+strings.Join(parts, snippetSeparator))
	}
	return strings.Join(lines, "\n")
}
