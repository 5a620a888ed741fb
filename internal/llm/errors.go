package llm

import (
	"fmt"
	"strings"
)

const (
	bodySnippetLimit = 2000
	compatScanLimit  = 5000
)

// Error is the single failure kind returned by the client. StatusCode is 0
// for transport failures.
type Error struct {
	Message    string
	StatusCode int
	transient  bool
}

func (e *Error) Error() string { return e.Message }

// Transient reports whether retrying the same request may succeed:
// transport failures, 429 and 5xx.
func (e *Error) Transient() bool { return e.transient }

func transportError(err error) *Error {
	return &Error{Message: fmt.Sprintf("LLM request failed: %v", err), transient: true}
}

func statusError(status int, url string, body []byte, contentType string) *Error {
	hint := ""
	if looksLikeHTML(body, contentType) {
		hint = " (got an HTML page instead of JSON; check that the LLM base URL points at an OpenAI-compatible API)"
	}
	return &Error{
		Message:    fmt.Sprintf("LLM error %d at %s: %s%s", status, url, snippet(body, bodySnippetLimit), hint),
		StatusCode: status,
		transient:  status == 429 || status >= 500,
	}
}

func looksLikeHTML(body []byte, contentType string) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	head := strings.ToLower(snippet(body, 512))
	return strings.Contains(head, "<!doctype html") || strings.Contains(head, "<html")
}

// snippet returns at most limit runes of body.
func snippet(body []byte, limit int) string {
	r := []rune(string(body))
	if len(r) > limit {
		r = r[:limit]
	}
	return string(r)
}
