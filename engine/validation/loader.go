package validation

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/compozy/relay/engine/core"
	"github.com/compozy/relay/engine/request"
	"github.com/compozy/relay/pkg/logger"
	"github.com/goccy/go-yaml"
	lru "github.com/hashicorp/golang-lru/v2"
)

// File is a declarative validator file of one controller.
type File struct {
	// Definitions registers custom classes as variants of existing ones.
	Definitions map[string]DefinitionSpec `yaml:"definitions"`
	// Severity, Method and Required apply to every top level node that
	// does not set them and are inherited further down the tree.
	Severity   string `yaml:"severity"`
	Method     string `yaml:"method"`
	Required   *bool  `yaml:"required"`
	Validators []Node `yaml:"validators"`
}

// DefinitionSpec declares a custom validator class.
type DefinitionSpec struct {
	Class  string         `yaml:"class"`
	Params map[string]any `yaml:"params"`
}

// Node declares one validator and its children.
type Node struct {
	Class      string            `yaml:"class"`
	Name       string            `yaml:"name"`
	Severity   string            `yaml:"severity"`
	Method     string            `yaml:"method"`
	Required   *bool             `yaml:"required"`
	Source     string            `yaml:"source"`
	Arguments  []string          `yaml:"arguments"`
	Keys       map[string]string `yaml:"keys"`
	Errors     map[string]string `yaml:"errors"`
	Params     map[string]any    `yaml:"params"`
	Validators []Node            `yaml:"validators"`
}

// ParseFile decodes and checks a validator file.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse validator file: %w", err)
	}
	for i := range f.Validators {
		if err := checkNode(&f.Validators[i], fmt.Sprintf("validators[%d]", i)); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

func checkNode(n *Node, path string) error {
	if strings.TrimSpace(n.Class) == "" {
		return fmt.Errorf("%w: %s has no class", ErrInvalidTree, path)
	}
	if normalizeClass(n.Class) == "not" && len(n.Validators) != 1 {
		return fmt.Errorf("%w: %s (not) needs exactly one child, got %d", ErrInvalidTree, path, len(n.Validators))
	}
	for i := range n.Validators {
		if err := checkNode(&n.Validators[i], fmt.Sprintf("%s.validators[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

// Loader reads validator files from a file system and caches the parsed
// result by path.
type Loader struct {
	fsys  fs.FS
	cache *lru.Cache[string, *File]
}

// NewLoader creates a loader over fsys keeping up to size parsed files.
func NewLoader(fsys fs.FS, size int) (*Loader, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, *File](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create validator file cache: %w", err)
	}
	return &Loader{fsys: fsys, cache: cache}, nil
}

// Load returns the parsed file at path. A missing file yields an error
// matching fs.ErrNotExist.
func (l *Loader) Load(path string) (*File, error) {
	if f, ok := l.cache.Get(path); ok {
		return f, nil
	}
	data, err := fs.ReadFile(l.fsys, path)
	if err != nil {
		return nil, err
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.cache.Add(path, f)
	return f, nil
}

// Purge drops every cached file.
func (l *Loader) Purge() {
	l.cache.Purge()
}

// Apply builds the validators of the file at path into m. A missing file
// is not an error; the controller simply has no declarative validators.
func (l *Loader) Apply(ctx context.Context, m *Manager, path string) error {
	log := logger.FromContext(ctx).With("component", "validation_loader")
	f, err := l.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Debug("No validator file", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	if err := f.Build(m); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	log.Debug("Validator file applied", "path", path, "validators", len(f.Validators))
	return nil
}

// Build registers the definitions of f in the registry of m and creates its
// validator tree under m.
func (f *File) Build(m *Manager) error {
	for class, def := range f.Definitions {
		if err := m.Registry().Define(class, def.Class, def.Params); err != nil {
			return fmt.Errorf("definition %s: %w", class, err)
		}
	}
	for i := range f.Validators {
		node := f.Validators[i]
		if node.Severity == "" {
			node.Severity = f.Severity
		}
		if node.Method == "" {
			node.Method = f.Method
		}
		if node.Required == nil {
			node.Required = f.Required
		}
		if err := buildNode(m, &node, nil); err != nil {
			return err
		}
	}
	return nil
}

func buildNode(m *Manager, n *Node, parent Container) error {
	params := core.Params(core.CloneMap(n.Params))
	if n.Severity != "" {
		params.Set("severity", n.Severity)
	}
	if n.Method != "" {
		params.Set("method", n.Method)
	}
	if n.Required != nil {
		params.Set("required", *n.Required)
	}
	src := request.Source(n.Source)
	args := make([]Argument, 0, len(n.Arguments))
	for _, name := range n.Arguments {
		args = append(args, Argument{Name: name, Source: src})
	}
	v, err := m.CreateValidator(Spec{
		Class:     n.Class,
		Name:      n.Name,
		Arguments: args,
		Keys:      n.Keys,
		Errors:    n.Errors,
		Params:    params,
	}, parent)
	if err != nil {
		return err
	}
	if len(n.Validators) == 0 {
		return nil
	}
	c, ok := v.(Container)
	if !ok {
		return fmt.Errorf("%w: %s (%s) cannot have children", ErrInvalidTree, v.Name(), n.Class)
	}
	for i := range n.Validators {
		if err := buildNode(m, &n.Validators[i], c); err != nil {
			return err
		}
	}
	return nil
}
