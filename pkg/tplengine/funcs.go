package tplengine

import (
	"html"
	"text/template"
)

// escapeFuncs are available in every format. HTML templates escape
// contextually, the helpers matter for text output embedding markup.
func escapeFuncs() map[string]any {
	return map[string]any{
		"htmlEscape":     template.HTMLEscapeString,
		"htmlAttrEscape": html.EscapeString,
		"jsEscape":       template.JSEscapeString,
	}
}
