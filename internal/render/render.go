// Package render renders prompt templates with strict variable lookup: a
// variable missing from params is always an error.
package render

import (
	"fmt"
	"strings"
	"text/template"
)

// Error reports a template that failed to parse or execute.
type Error struct {
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render %s template: %v", e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Renderer renders Go text/template sources.
type Renderer struct {
	funcs template.FuncMap
}

func New() *Renderer {
	return &Renderer{funcs: template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"trim":  strings.TrimSpace,
		"default": func(def, v any) any {
			if v == nil || v == "" {
				return def
			}
			return v
		},
	}}
}

// Render executes source against params. name only labels errors.
func (r *Renderer) Render(name, source string, params map[string]any) (string, error) {
	tmpl, err := template.New(name).Funcs(r.funcs).Option("missingkey=error").Parse(source)
	if err != nil {
		return "", &Error{Name: name, Err: err}
	}
	if params == nil {
		params = map[string]any{}
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, params); err != nil {
		return "", &Error{Name: name, Err: err}
	}
	return b.String(), nil
}
