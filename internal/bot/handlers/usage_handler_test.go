package handlers

import "testing"

func TestParseDaysArg(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want int
	}{
		{
			name: "No argument",
			text: "/token_usage",
			want: 30,
		},
		{
			name: "Explicit window",
			text: "/token_usage 7",
			want: 7,
		},
		{
			name: "Command with bot mention",
			text: "/token_usage@firtigh_bot 14",
			want: 14,
		},
		{
			name: "Non-numeric argument",
			text: "/token_usage week",
			want: 30,
		},
		{
			name: "Zero days",
			text: "/token_usage 0",
			want: 30,
		},
		{
			name: "Negative days",
			text: "/token_usage -5",
			want: 30,
		},
		{
			name: "Clamped to a year",
			text: "/token_usage 9999",
			want: 365,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := parseDaysArg(tt.text); got != tt.want {
				t.Errorf("parseDaysArg(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}
