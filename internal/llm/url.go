package llm

import "strings"

// ChatCompletionsURL accepts "https://host" and "https://host/v1" style
// bases and returns the chat completions endpoint.
func ChatCompletionsURL(base string) string {
	return apiURL(base, "/chat/completions")
}

// ModelsURL returns the models listing endpoint for base.
func ModelsURL(base string) string {
	return apiURL(base, "/models")
}

func apiURL(base, path string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, "/v1") {
		return base + path
	}
	return base + "/v1" + path
}
