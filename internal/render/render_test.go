package render

import (
	"errors"
	"strings"
	"testing"
)

func TestRenderSubstitutesParams(t *testing.T) {
	r := New()
	got, err := r.Render("user", "Forecast for {{.sign}} on {{.date | upper}}", map[string]any{
		"sign": "Leo",
		"date": "monday",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if got != "Forecast for Leo on MONDAY" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestRenderMissingVariableFails(t *testing.T) {
	r := New()
	tests := []struct {
		name   string
		params map[string]any
	}{
		{name: "nil params", params: nil},
		{name: "other key", params: map[string]any{"other": 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Render("user", "Hi {{.name}}", tc.params)
			var rerr *Error
			if !errors.As(err, &rerr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if !strings.Contains(err.Error(), "name") {
				t.Fatalf("error should mention the variable: %v", err)
			}
		})
	}
}

func TestRenderSyntaxError(t *testing.T) {
	_, err := New().Render("system", "Hi {{.name", map[string]any{"name": "x"})
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Name != "system" {
		t.Fatalf("expected syntax *Error, got %v", err)
	}
}

func TestRenderDefaultFunc(t *testing.T) {
	got, err := New().Render("user", `{{default "friend" .name}}`, map[string]any{"name": ""})
	if err != nil || got != "friend" {
		t.Fatalf("got %q, %v", got, err)
	}
}
