package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestAcceptsDoubleEncodedBody(t *testing.T) {
	req, err := ParseRequest([]byte(`"{\"prompt\":\"Say hi\",\"chat_id\":42,\"bot_api_key\":\"1:abc\"}"`))
	require.NoError(t, err)
	require.NotNil(t, req.Prompt)
	assert.Equal(t, "Say hi", *req.Prompt)
	assert.Equal(t, FlexInt64(42), req.ChatID)
}

func TestParseRequestNumericStrings(t *testing.T) {
	req, err := ParseRequest([]byte(`{"prompt_id":"daily","chat_id":"-100123","user_id":"7","bot_api_key":"1:abc"}`))
	require.NoError(t, err)
	assert.Equal(t, FlexInt64(-100123), req.ChatID)
	assert.Equal(t, FlexInt64(7), req.UserID)
	assert.Equal(t, "daily", req.SlugLabel())
}

func TestParseRequestRejects(t *testing.T) {
	cases := map[string]struct {
		body  string
		field string
	}{
		"not json":        {`hello`, "body"},
		"empty":           {``, "body"},
		"array":           {`[1,2]`, "body"},
		"missing token":   {`{"prompt":"x","chat_id":1}`, "bot_api_key"},
		"missing chat":    {`{"prompt":"x","bot_api_key":"1:abc"}`, "chat_id"},
		"bad chat":        {`{"prompt":"x","chat_id":"abc","bot_api_key":"1:abc"}`, "body"},
		"temperature":     {`{"prompt":"x","chat_id":1,"bot_api_key":"1:abc","temperature":3}`, "temperature"},
		"max tokens":      {`{"prompt":"x","chat_id":1,"bot_api_key":"1:abc","max_tokens":9000}`, "max_tokens"},
		"params not dict": {`{"prompt":"x","chat_id":1,"bot_api_key":"1:abc","params":[1]}`, "params"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tc.body))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Fields)
			assert.Equal(t, tc.field, verr.Fields[0].Field)
			assert.Contains(t, verr.Error(), "Validation error: ")
		})
	}
}

func TestSlugLabel(t *testing.T) {
	prompt := "x"
	assert.Equal(t, "__raw__", (&Request{Prompt: &prompt, PromptID: "daily"}).SlugLabel())
	assert.Equal(t, "daily", (&Request{PromptID: "daily"}).SlugLabel())
	assert.Equal(t, "__missing__", (&Request{}).SlugLabel())
}
