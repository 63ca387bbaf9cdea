// Package tools maintains the capability manifest exposed to the completion
// service: which external functions are advertised for a given message, and
// the daily usage quotas that gate the expensive ones.
package tools

import (
	"regexp"
	"strings"
)

// Capability identifies an external function the completion service may call.
type Capability string

// Capabilities known to the selector. Anything else must arrive through the
// mandatory-include set or it is never advertised.
const (
	CapWebSearch   Capability = "web_search"
	CapLinkExtract Capability = "link_extract"
	CapWeather     Capability = "weather"
	CapGeocode     Capability = "geocode"
	CapChatHistory Capability = "chat_history"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// rule associates a capability with the keywords (and optional pattern)
// that trigger it. Rules are evaluated in order, so the manifest order is
// deterministic for a given input.
type rule struct {
	capability Capability
	keywords   []string
	pattern    *regexp.Regexp
}

// selectionTable maps message content to capabilities. New capabilities are
// added here as data, not as branching logic in the selector.
var selectionTable = []rule{
	{
		capability: CapWebSearch,
		keywords:   []string{"جستجو", "سرچ", "بگرد", "اخبار", "خبر", "search", "news"},
	},
	{
		capability: CapLinkExtract,
		keywords:   []string{"لینک", "محتوای این"},
		pattern:    urlPattern,
	},
	{
		capability: CapWeather,
		keywords:   []string{"هوا", "آب و هوا", "دما", "بارون", "باران", "weather"},
	},
	{
		capability: CapGeocode,
		keywords:   []string{"کجاست", "آدرس", "مختصات", "موقعیت", "نقشه", "location"},
	},
	{
		capability: CapChatHistory,
		keywords:   []string{"خلاصه", "تاریخچه", "چی گفته شد", "چه گفته شد", "صحبت شد", "history", "summarize"},
	},
}

// Selector chooses the capability manifest for a message.
type Selector struct{}

// NewSelector returns a Selector backed by the package selection table.
func NewSelector() *Selector {
	return &Selector{}
}

// Select returns the capabilities to advertise for the given message text.
// A capability is included when one of its keywords occurs in the lower-cased
// text, its pattern matches, or it appears in the mandatory set. Mandatory
// capabilities are always included, table match or not. The result keeps
// table order first, then any mandatory capabilities outside the table in
// their given order.
func (s *Selector) Select(text string, mandatory []Capability) []Capability {
	lowered := strings.ToLower(text)

	mandatorySet := make(map[Capability]struct{}, len(mandatory))
	for _, c := range mandatory {
		mandatorySet[c] = struct{}{}
	}

	var selected []Capability
	seen := make(map[Capability]struct{})

	for _, r := range selectionTable {
		if _, ok := mandatorySet[r.capability]; ok || r.matches(lowered) {
			if _, dup := seen[r.capability]; !dup {
				selected = append(selected, r.capability)
				seen[r.capability] = struct{}{}
			}
		}
	}

	for _, c := range mandatory {
		if _, dup := seen[c]; !dup {
			selected = append(selected, c)
			seen[c] = struct{}{}
		}
	}

	return selected
}

func (r rule) matches(lowered string) bool {
	for _, kw := range r.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return r.pattern != nil && r.pattern.MatchString(lowered)
}
