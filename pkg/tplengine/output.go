package tplengine

import (
	"io/fs"

	"github.com/compozy/relay/engine/response"
)

// OutputTypes returns the html, json and text output types. Each renders
// the template files of fsys under templates/ with its own extension, so
// "Shop/Add" resolves to templates/Shop/Add.html for html output.
func OutputTypes(fsys fs.FS, cacheSize int) []*response.OutputType {
	newEngine := func(format EngineFormat, ext string) *TemplateEngine {
		return NewEngine(format, WithFS(fsys, "templates/%s."+ext), WithCacheSize(cacheSize))
	}
	return []*response.OutputType{
		{Name: "html", ContentType: "text/html; charset=utf-8", Renderer: newEngine(FormatHTML, "html")},
		{Name: "json", ContentType: "application/json", Renderer: newEngine(FormatJSON, "json")},
		{Name: "text", ContentType: "text/plain; charset=utf-8", Renderer: newEngine(FormatText, "txt")},
	}
}
