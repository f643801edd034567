package tplengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"maps"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

// EngineFormat represents the format of the template engine output
type EngineFormat string

const (
	// FormatHTML renders with contextual HTML escaping
	FormatHTML EngineFormat = "html"
	// FormatYAML represents YAML output format
	FormatYAML EngineFormat = "yaml"
	// FormatJSON represents JSON output format
	FormatJSON EngineFormat = "json"
	// FormatText represents plain text output format
	FormatText EngineFormat = "text"
)

const defaultCacheSize = 256

// ErrTemplateNotFound is returned when a named template is neither
// registered nor present in the template file system.
var ErrTemplateNotFound = errors.New("template not found")

type executor interface {
	Execute(w io.Writer, data any) error
}

// Option configures a TemplateEngine.
type Option func(*TemplateEngine)

// WithFS loads templates missing from the engine from fsys. Template
// names are turned into paths with pattern, e.g. "templates/%s.html".
func WithFS(fsys fs.FS, pattern string) Option {
	return func(e *TemplateEngine) {
		e.fsys = fsys
		e.pattern = pattern
	}
}

// WithCacheSize bounds the number of parsed template files kept.
func WithCacheSize(size int) Option {
	return func(e *TemplateEngine) {
		e.cacheSize = size
	}
}

// TemplateEngine is the main template engine struct
type TemplateEngine struct {
	mu           sync.RWMutex
	templates    map[string]executor
	globalValues map[string]any
	format       EngineFormat
	fsys         fs.FS
	pattern      string
	cacheSize    int
	files        *lru.Cache[string, executor]
}

// ProcessResult contains the result of processing a template
type ProcessResult struct {
	Text string
	YAML any
	JSON any
}

// NewEngine creates a new template engine with the specified format
func NewEngine(format EngineFormat, opts ...Option) *TemplateEngine {
	e := &TemplateEngine{
		templates:    make(map[string]executor),
		globalValues: make(map[string]any),
		format:       format,
		cacheSize:    defaultCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cacheSize <= 0 {
		e.cacheSize = defaultCacheSize
	}
	// size is positive
	e.files, _ = lru.New[string, executor](e.cacheSize)
	return e
}

// Format returns the output format of the engine.
func (e *TemplateEngine) Format() EngineFormat {
	return e.format
}

func (e *TemplateEngine) parse(name, text string) (executor, error) {
	if e.format == FormatHTML {
		tmpl, err := htmltemplate.New(name).Option("missingkey=zero").Funcs(sprig.HtmlFuncMap()).Funcs(htmltemplate.FuncMap(escapeFuncs())).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template: %w", err)
		}
		return tmpl, nil
	}
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Funcs(template.FuncMap(escapeFuncs())).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl, nil
}

// AddTemplate adds a template to the engine
func (e *TemplateEngine) AddTemplate(name, templateStr string) error {
	tmpl, err := e.parse(name, templateStr)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[name] = tmpl
	return nil
}

// HasTemplate returns true if the template contains template markers
func HasTemplate(template string) bool {
	return strings.Contains(template, "{{")
}

func (e *TemplateEngine) lookup(name string) (executor, error) {
	e.mu.RLock()
	tmpl, ok := e.templates[name]
	e.mu.RUnlock()
	if ok {
		return tmpl, nil
	}
	if e.fsys == nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	path := fmt.Sprintf(e.pattern, name)
	if cached, ok := e.files.Get(path); ok {
		return cached, nil
	}
	data, err := fs.ReadFile(e.fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	tmpl, err = e.parse(name, string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	e.files.Add(path, tmpl)
	return tmpl, nil
}

// Purge drops every cached template file.
func (e *TemplateEngine) Purge() {
	e.files.Purge()
}

// Render renders the template name with attrs and checks the result
// against the engine format.
func (e *TemplateEngine) Render(_ context.Context, name string, attrs map[string]any) ([]byte, error) {
	tmpl, err := e.lookup(name)
	if err != nil {
		return nil, err
	}
	rendered, err := e.renderTemplate(tmpl, attrs)
	if err != nil {
		return nil, err
	}
	if _, err := e.decode(rendered); err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return []byte(rendered), nil
}

// RenderString renders a template string
func (e *TemplateEngine) RenderString(templateStr string, context map[string]any) (string, error) {
	if !HasTemplate(templateStr) {
		return templateStr, nil
	}
	tmpl, err := e.parse("inline", templateStr)
	if err != nil {
		return "", err
	}
	return e.renderTemplate(tmpl, context)
}

// renderTemplate renders a parsed template with the given context
func (e *TemplateEngine) renderTemplate(tmpl executor, context map[string]any) (string, error) {
	processedContext := e.preprocessContext(context)
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, processedContext); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return buf.String(), nil
}

// ProcessString processes a template string and returns the result
func (e *TemplateEngine) ProcessString(templateStr string, context map[string]any) (*ProcessResult, error) {
	rendered, err := e.RenderString(templateStr, context)
	if err != nil {
		return nil, err
	}
	result := &ProcessResult{Text: rendered}
	decoded, err := e.decode(rendered)
	if err != nil {
		return nil, err
	}
	switch e.format {
	case FormatYAML:
		result.YAML = decoded
	case FormatJSON:
		result.JSON = decoded
	}
	return result, nil
}

func (e *TemplateEngine) decode(rendered string) (any, error) {
	var obj any
	switch e.format {
	case FormatYAML:
		if err := yaml.Unmarshal([]byte(rendered), &obj); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal([]byte(rendered), &obj); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	}
	return obj, nil
}

// AddGlobalValue adds a global value to the template engine
func (e *TemplateEngine) AddGlobalValue(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.globalValues[name] = value
}

// preprocessContext copies the attributes and adds the global values.
// Attributes win over globals of the same name.
func (e *TemplateEngine) preprocessContext(ctx map[string]any) map[string]any {
	e.mu.RLock()
	result := maps.Clone(e.globalValues)
	e.mu.RUnlock()
	maps.Copy(result, ctx)
	return result
}
