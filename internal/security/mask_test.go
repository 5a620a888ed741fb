package security

import (
	"strings"
	"testing"
)

func TestMaskSecret(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "***"},
		{"1234567890", "***"},
		{"123456:ABCDEFGHIJ", "123456***GHIJ"},
	}
	for _, tc := range cases {
		if got := MaskSecret(tc.in); got != tc.want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMaskBotTokenInURL(t *testing.T) {
	in := `Post "https://api.telegram.org/bot123456:SECRETSECRETXYZ1/sendMessage": dial tcp: timeout`
	got := MaskBotTokenInURL(in)
	if strings.Contains(got, "SECRETSECRET") {
		t.Fatalf("token leaked: %s", got)
	}
	if !strings.Contains(got, "/bot123456***XYZ1/sendMessage") {
		t.Fatalf("unexpected masking: %s", got)
	}
}

func TestMaskJSON(t *testing.T) {
	body := []byte(`{"chat_id":1,"bot_api_key":"123456:SECRETSECRETXYZ1","params":{"password":"hunter2hunter2"}}`)
	got := MaskJSON(body)
	if strings.Contains(got, "SECRETSECRET") || strings.Contains(got, "hunter2hunter2") {
		t.Fatalf("secret leaked: %s", got)
	}
	if !strings.Contains(got, `"chat_id":1`) {
		t.Fatalf("non-secret field lost: %s", got)
	}
}

func TestMaskJSONDoubleEncoded(t *testing.T) {
	body := []byte(`"{\"bot_api_key\":\"123456:SECRETSECRETXYZ1\"}"`)
	got := MaskJSON(body)
	if strings.Contains(got, "SECRETSECRET") {
		t.Fatalf("secret leaked: %s", got)
	}
}
