package tools_test

import (
	"testing"

	"github.com/firtigh/firtigh/internal/tools"
)

func TestSelect(t *testing.T) {
	t.Parallel()

	s := tools.NewSelector()

	tests := []struct {
		name      string
		text      string
		mandatory []tools.Capability
		want      []tools.Capability
	}{
		{
			name: "Search request",
			text: "جستجو کن قیمت طلا",
			want: []tools.Capability{tools.CapWebSearch},
		},
		{
			name: "News keyword",
			text: "آخرین اخبار ایران چیه؟",
			want: []tools.Capability{tools.CapWebSearch},
		},
		{
			name: "Bare URL triggers link extraction",
			text: "این رو بخون https://example.com/article",
			want: []tools.Capability{tools.CapLinkExtract},
		},
		{
			name: "Weather question",
			text: "هوا فردا چطوره؟",
			want: []tools.Capability{tools.CapWeather},
		},
		{
			name: "Location question",
			text: "این رستوران کجاست؟",
			want: []tools.Capability{tools.CapGeocode},
		},
		{
			name: "History request",
			text: "یه خلاصه از بحث امروز بده",
			want: []tools.Capability{tools.CapChatHistory},
		},
		{
			name: "No match and no mandatory",
			text: "چطوری رفیق؟",
			want: nil,
		},
		{
			name:      "Mandatory always included",
			text:      "چطوری رفیق؟",
			mandatory: []tools.Capability{tools.CapChatHistory},
			want:      []tools.Capability{tools.CapChatHistory},
		},
		{
			name:      "Match plus mandatory keeps table order",
			text:      "سرچ کن هوای تهران",
			mandatory: []tools.Capability{tools.CapChatHistory},
			want:      []tools.Capability{tools.CapWebSearch, tools.CapWeather, tools.CapChatHistory},
		},
		{
			name:      "Mandatory duplicate of a match is not repeated",
			text:      "جستجو کن قیمت طلا",
			mandatory: []tools.Capability{tools.CapWebSearch},
			want:      []tools.Capability{tools.CapWebSearch},
		},
		{
			name:      "Unknown mandatory capability appended",
			text:      "چطوری؟",
			mandatory: []tools.Capability{tools.Capability("image_gen")},
			want:      []tools.Capability{tools.Capability("image_gen")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := s.Select(tt.text, tt.mandatory)
			if len(got) != len(tt.want) {
				t.Fatalf("Select(%q) = %v, want %v", tt.text, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Select(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
				}
			}
		})
	}
}
