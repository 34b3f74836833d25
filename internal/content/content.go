package content

import (
	"encoding/json"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const MaxSummaryLength = 140

var policy = bluemonday.StrictPolicy()

// PlainText strips every HTML element from the input and returns readable text.
// Push payloads carry mail snippets that may contain arbitrary markup.
func PlainText(input string) string {
	text := html.UnescapeString(policy.Sanitize(input))
	return strings.Join(strings.Fields(text), " ")
}

type summaryPayload struct {
	From struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"from"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
	Text    string `json:"text"`
}

// Summary builds a one-line plain text description of a push payload
// for the notification indicator. Unknown payload shapes give an empty summary.
func Summary(payload json.RawMessage) string {
	if len(payload) == 0 {
		return ""
	}
	var p summaryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}

	from := PlainText(p.From.Name)
	if from == "" {
		from = PlainText(p.From.Email)
	}
	body := PlainText(p.Subject)
	if body == "" {
		body = PlainText(p.Snippet)
	}
	if body == "" {
		body = PlainText(p.Text)
	}

	var summary string
	switch {
	case from != "" && body != "":
		summary = from + ": " + body
	case from != "":
		summary = from
	default:
		summary = body
	}
	return truncate(summary, MaxSummaryLength)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
