// Package classify decides how much conversational context a message needs.
// Trivial exchanges (short greetings) skip profile, memory, and history
// assembly entirely; everything else gets the full context payload.
package classify

import (
	"strings"
	"unicode"
)

// DefaultShortThreshold is the token count below which a message is
// considered "short" for classification purposes.
const DefaultShortThreshold = 6

// greetingTokens is the fixed set of salutations recognized by the
// classifier: Persian greetings used in the target groups plus common
// English ones. Single-word greetings match whole words only, so "hi"
// does not fire inside "history"; multi-word greetings match as phrases.
var greetingTokens = []string{
	"سلام",
	"درود",
	"صبح بخیر",
	"عصر بخیر",
	"شب بخیر",
	"خسته نباشید",
	"hello",
	"hi",
	"hey",
	"good morning",
	"good evening",
}

// Classifier reports whether a message needs the full context payload.
type Classifier struct {
	shortThreshold int
}

// New returns a Classifier with the given short-message token threshold.
// A non-positive threshold falls back to DefaultShortThreshold.
func New(shortThreshold int) *Classifier {
	if shortThreshold <= 0 {
		shortThreshold = DefaultShortThreshold
	}
	return &Classifier{shortThreshold: shortThreshold}
}

// NeedsFullContext returns false only when the text is both a greeting and
// short; every other input, including empty or ambiguous text, yields true.
// False positives cost tokens; false negatives would cost answer quality,
// so the bias runs toward true.
func (c *Classifier) NeedsFullContext(text string) bool {
	return !(isGreeting(text) && isShort(text, c.shortThreshold))
}

func isGreeting(text string) bool {
	lowered := strings.ToLower(text)
	words := strings.Fields(lowered)
	for i, w := range words {
		words[i] = strings.TrimFunc(w, unicode.IsPunct)
	}
	for _, g := range greetingTokens {
		if strings.Contains(g, " ") {
			if strings.Contains(lowered, g) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == g {
				return true
			}
		}
	}
	return false
}

func isShort(text string, threshold int) bool {
	return len(strings.Fields(text)) < threshold
}
