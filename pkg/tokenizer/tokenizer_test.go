package tokenizer

import "testing"

func TestCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hello", 1},
		{"hello world", 2},
		{"state-of-the-art snake_case", 2},
		{"a, b.", 4},
	}
	for _, tt := range tests {
		if got := Count(tt.text); got != tt.want {
			t.Errorf("Count(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	text := "one two three four five"

	if got := Truncate(text, 3); got != "one two three" {
		t.Errorf("Truncate = %q, want %q", got, "one two three")
	}
	if got := Truncate(text, 100); got != text {
		t.Errorf("Truncate beyond length changed text: %q", got)
	}
	if got := Truncate(text, 0); got != "" {
		t.Errorf("Truncate(0) = %q, want empty", got)
	}
}
