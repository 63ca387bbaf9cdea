// Package prompt builds the model request: it trims conversation history to
// a character budget, compresses profiles and group memory into compact
// context lines, and assembles the final completion payload.
package prompt

import (
	"fmt"
	"strings"

	"github.com/firtigh/firtigh/internal/groups"
)

const (
	// DefaultHistoryBudget caps the rendered history section in characters.
	DefaultHistoryBudget = 4000

	// MaxReplyDepth bounds how far a reply chain is followed when pulling
	// referenced messages into scope.
	MaxReplyDepth = 3
)

// RenderMessage formats one history line the way it appears in the prompt.
func RenderMessage(msg groups.Message) string {
	return fmt.Sprintf("%s: %s", msg.Sender, msg.Text)
}

// TruncateHistory selects the most recent messages whose rendered forms fit
// within budget characters, walking newest to oldest and returning the
// selection in chronological order. When even the newest message alone
// exceeds the budget, it is hard-clipped to the budget so the reply context
// is never empty. Messages referenced through reply chains of the selected
// ones are included up to MaxReplyDepth hops.
func TruncateHistory(history []groups.Message, budget int) []groups.Message {
	if budget <= 0 || len(history) == 0 {
		return nil
	}

	byID := make(map[int]int, len(history))
	for i, msg := range history {
		if msg.MessageID != 0 {
			byID[msg.MessageID] = i
		}
	}

	selected := make(map[int]bool, len(history))
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		if selected[i] {
			continue
		}
		cost := len(RenderMessage(history[i]))
		if used+cost > budget {
			if used == 0 {
				// Nothing fits at all. Keep a clipped copy of the newest
				// message rather than dropping the whole window, unless the
				// budget is too small for even a bare rendered line.
				clipped := clip(history[i], budget)
				if len(RenderMessage(clipped)) > budget {
					return nil
				}
				return []groups.Message{clipped}
			}
			break
		}
		used += cost
		selected[i] = true
		used = followReplies(history, byID, selected, i, used, budget)
	}

	out := make([]groups.Message, 0, len(selected))
	for i, msg := range history {
		if selected[i] {
			out = append(out, msg)
		}
	}
	return out
}

// followReplies walks the reply chain of history[idx] up to MaxReplyDepth
// hops, selecting referenced messages while they still fit the budget. It
// returns the updated character usage.
func followReplies(history []groups.Message, byID map[int]int, selected map[int]bool, idx, used, budget int) int {
	replyTo := history[idx].ReplyToID
	for depth := 0; depth < MaxReplyDepth && replyTo != 0; depth++ {
		ref, ok := byID[replyTo]
		if !ok {
			break
		}
		if !selected[ref] {
			cost := len(RenderMessage(history[ref]))
			if used+cost > budget {
				break
			}
			used += cost
			selected[ref] = true
		}
		replyTo = history[ref].ReplyToID
	}
	return used
}

// clip returns a copy of msg shortened so the rendered line fits within
// budget characters, cutting on rune boundaries. When the budget is smaller
// than the sender prefix itself, the sender is shortened too; the rendered
// line never goes below the bare "sender: " form.
func clip(msg groups.Message, budget int) groups.Message {
	rendered := RenderMessage(msg)
	if len(rendered) <= budget {
		return msg
	}
	overhead := len(rendered) - len(msg.Text)
	if room := budget - overhead; room > 0 {
		msg.Text = truncateRunes(msg.Text, room)
		return msg
	}

	msg.Text = ""
	if budget >= 2 {
		msg.Sender = truncateRunes(msg.Sender, budget-2)
	} else {
		msg.Sender = ""
	}
	return msg
}

// truncateRunes cuts s to at most max bytes without splitting a UTF-8
// sequence.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// RenderHistory joins selected messages into the history section body.
func RenderHistory(history []groups.Message) string {
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, RenderMessage(msg))
	}
	return strings.Join(lines, "\n")
}
