package classify_test

import (
	"testing"

	"github.com/firtigh/firtigh/internal/classify"
)

func TestNeedsFullContext(t *testing.T) {
	t.Parallel()

	c := classify.New(0)

	tests := []struct {
		name string
		text string
		want bool
	}{
		{
			name: "Persian greeting alone",
			text: "سلام",
			want: false,
		},
		{
			name: "Persian greeting with short addressing",
			text: "سلام فیرتیق",
			want: false,
		},
		{
			name: "English greeting alone",
			text: "hello",
			want: false,
		},
		{
			name: "Greeting followed by a real question",
			text: "سلام، میشه بگی دیروز توی گروه چه بحثی شد و کی چی گفت؟",
			want: true,
		},
		{
			name: "Short but not a greeting",
			text: "قیمت دلار چنده؟",
			want: true,
		},
		{
			name: "Empty text",
			text: "",
			want: true,
		},
		{
			name: "Greeting token inside another word",
			text: "show me the history",
			want: true,
		},
		{
			name: "Greeting with trailing punctuation",
			text: "سلام!",
			want: false,
		},
		{
			name: "Long English greeting sentence",
			text: "hello everyone I was wondering if anyone here knows about visas",
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := c.NeedsFullContext(tt.text); got != tt.want {
				t.Errorf("NeedsFullContext(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestNeedsFullContext_Threshold(t *testing.T) {
	t.Parallel()

	// Five words is under the default threshold of six, so a greeting of
	// five words still skips context.
	c := classify.New(6)
	if c.NeedsFullContext("سلام سلام سلام سلام سلام") {
		t.Error("NeedsFullContext() = true for five-word greeting, want false")
	}
	if !c.NeedsFullContext("سلام سلام سلام سلام سلام سلام") {
		t.Error("NeedsFullContext() = false for six-word greeting, want true")
	}

	// A stricter threshold reclassifies multi-word greetings.
	strict := classify.New(2)
	if strict.NeedsFullContext("سلام") {
		t.Error("NeedsFullContext() = true for single-word greeting under strict threshold, want false")
	}
	if !strict.NeedsFullContext("سلام فیرتیق") {
		t.Error("NeedsFullContext() = false for two-word greeting under strict threshold, want true")
	}
}
