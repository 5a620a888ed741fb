package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kayz/tgbridge/internal/store"
)

// Request is the inbound submit payload.
type Request struct {
	Prompt      *string        `json:"prompt,omitempty"`
	System      *string        `json:"system,omitempty"`
	PromptID    string         `json:"prompt_id,omitempty" validate:"max=128"`
	Params      map[string]any `json:"params,omitempty"`
	BotAPIKey   string         `json:"bot_api_key" validate:"required"`
	ChatID      FlexInt64      `json:"chat_id" validate:"required"`
	UserID      FlexInt64      `json:"user_id,omitempty"`
	ParseMode   string         `json:"parse_mode,omitempty"`
	SendPDF     bool           `json:"send_pdf,omitempty"`
	Model       *string        `json:"model,omitempty" validate:"omitempty,min=1,max=128"`
	Temperature *float64       `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int           `json:"max_tokens,omitempty" validate:"omitempty,gte=0,lte=8192"`
}

// SlugLabel is the prompt_slug recorded for the request.
func (r *Request) SlugLabel() string {
	switch {
	case r.Prompt != nil:
		return store.SlugRaw
	case r.PromptID != "":
		return r.PromptID
	}
	return store.SlugMissing
}

func (r *Request) params() map[string]any {
	if r.Params == nil {
		return map[string]any{}
	}
	return r.Params
}

// FlexInt64 decodes from a JSON number or a numeric string.
type FlexInt64 int64

func (v *FlexInt64) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
	}
	if s == "" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) {
			return fmt.Errorf("expected an integer id, got %s", s)
		}
		n = int64(f)
	}
	*v = FlexInt64(n)
	return nil
}

// FieldError is one validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports a malformed submit payload.
type ValidationError struct {
	RequestID string
	Fields    []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "Validation error: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ParseRequest decodes and validates body. The payload may be a JSON object
// or a JSON string holding one. Failures are *ValidationError.
func ParseRequest(body []byte) (*Request, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '"' {
		var inner string
		if err := json.Unmarshal(body, &inner); err != nil {
			return nil, invalid("body", "invalid JSON string: "+err.Error())
		}
		body = []byte(strings.TrimSpace(inner))
	}
	if len(body) == 0 {
		return nil, invalid("body", "empty payload")
	}
	if body[0] != '{' {
		return nil, invalid("body", "expected a JSON object")
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, invalid(typeErr.Field, fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value))
		}
		return nil, invalid("body", err.Error())
	}

	if err := validate.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, invalid("body", err.Error())
		}
		out := &ValidationError{}
		for _, fe := range verrs {
			out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: describe(fe)})
		}
		return nil, out
	}
	return &req, nil
}

func invalid(field, msg string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: msg}}}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field required"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "failed " + fe.Tag() + " check"
}
