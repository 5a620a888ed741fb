// Package security holds helpers that keep credentials out of logs and
// reject unusable endpoint configuration.
package security

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	maskKeepHead = 6
	maskKeepTail = 4
)

// MaskSecret keeps the first 6 and last 4 characters of s. Short values are
// replaced entirely.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= maskKeepHead+maskKeepTail {
		return "***"
	}
	return string(r[:maskKeepHead]) + "***" + string(r[len(r)-maskKeepTail:])
}

var botTokenInPath = regexp.MustCompile(`/bot([^/\s]+)`)

// MaskBotTokenInURL masks the token segment of a Bot API URL
// (".../bot<token>/sendMessage").
func MaskBotTokenInURL(s string) string {
	return botTokenInPath.ReplaceAllStringFunc(s, func(m string) string {
		return "/bot" + MaskSecret(m[len("/bot"):])
	})
}

// SecretFields are JSON keys whose values are masked by MaskJSON.
var SecretFields = []string{"bot_api_key", "api_key", "password"}

// MaskJSON returns body with the values of SecretFields masked at any depth.
// Bodies that are not JSON objects (including double-encoded strings that
// decode to objects) are returned with only bot-token URLs masked.
func MaskJSON(body []byte) string {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return MaskBotTokenInURL(string(body))
	}
	if s, ok := v.(string); ok {
		var inner any
		if json.Unmarshal([]byte(s), &inner) == nil {
			v = inner
		}
	}
	out, err := json.Marshal(maskValue(v))
	if err != nil {
		return "<unloggable body>"
	}
	return string(out)
}

func maskValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if isSecretField(k) {
				if s, ok := val.(string); ok {
					t[k] = MaskSecret(s)
					continue
				}
			}
			t[k] = maskValue(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = maskValue(t[i])
		}
		return t
	}
	return v
}

func isSecretField(k string) bool {
	for _, f := range SecretFields {
		if strings.EqualFold(k, f) {
			return true
		}
	}
	return false
}
