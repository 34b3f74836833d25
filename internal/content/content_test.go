package content

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML tags", "Hello <b>World</b>", "Hello World"},
		{"Script tag", "<script>alert('xss')</script>Hello", "Hello"},
		{"Link", "<a href='javascript:alert(1)'>Click me</a>", "Click me"},
		{"Entities", "Tom &amp; Jerry", "Tom & Jerry"},
		{"Whitespace", "  line one\n\nline two ", "line one line two"},
		{"Emoji", "I am 🤖", "I am 🤖"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.input); got != tt.expected {
				t.Errorf("PlainText() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected string
	}{
		{"Empty", ``, ""},
		{"Not JSON", `nope`, ""},
		{"Sender and subject", `{"from":{"name":"Alice","email":"a@example.com"},"subject":"Lunch?"}`, "Alice: Lunch?"},
		{"Email fallback", `{"from":{"email":"a@example.com"},"snippet":"see <i>attached</i>"}`, "a@example.com: see attached"},
		{"Text only", `{"text":"You have 3 new messages"}`, "You have 3 new messages"},
		{"Sender only", `{"from":{"name":"<b>Bob</b>"}}`, "Bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Summary(json.RawMessage(tt.payload)); got != tt.expected {
				t.Errorf("Summary() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSummary_Truncates(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"text": strings.Repeat("ж", 500)})
	got := Summary(payload)
	if n := utf8.RuneCountInString(got); n != MaxSummaryLength {
		t.Errorf("expected %d runes, got %d", MaxSummaryLength, n)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis, got %q", got)
	}
}
