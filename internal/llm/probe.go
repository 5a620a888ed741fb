package llm

import (
	"context"
	"encoding/json"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// ProbeResult describes the models endpoint of the configured provider.
type ProbeResult struct {
	URL        string   `json:"url"`
	StatusCode int      `json:"status_code"`
	OK         bool     `json:"ok"`
	Models     []string `json:"models,omitempty"`
	Body       string   `json:"body,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Probe lists models with the configured credentials. Transport failures
// are reported in the result, not as an error.
func (c *Client) Probe(ctx context.Context) *ProbeResult {
	url := ModelsURL(c.cfg.BaseURL)
	res := &ProbeResult{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	c.authorize(req, c.cfg.APIKey)

	resp, err := c.do(req)
	if err != nil {
		res.Error = transportError(err).Error()
		return res
	}
	res.StatusCode = resp.status
	res.OK = resp.status >= 200 && resp.status < 300
	if !res.OK {
		res.Body = snippet(resp.body, bodySnippetLimit)
		return res
	}

	var list openai.ModelsList
	if err := json.Unmarshal(resp.body, &list); err != nil {
		res.Body = snippet(resp.body, bodySnippetLimit)
		return res
	}
	for _, m := range list.Models {
		res.Models = append(res.Models, m.ID)
	}
	return res
}
