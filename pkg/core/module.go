package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/aretw0/expipe/pkg/codec"
)

// TemplateIdentifierKey is the template field supplying the default name of
// modules created from it.
const TemplateIdentifierKey = "identifier"

// ModuleOwner is implemented by everything that owns modules: projects,
// actions, entities and modules themselves.
type ModuleOwner interface {
	Modules() *Manager[*Module]
	GetModule(ctx context.Context, name string) (*Module, error)
	RequireModule(ctx context.Context, name string, opts ...ModuleOption) (*Module, error)
	CreateModule(ctx context.Context, name string, opts ...ModuleOption) (*Module, error)
	DeleteModule(ctx context.Context, name string) error
}

var (
	_ ModuleOwner = (*Project)(nil)
	_ ModuleOwner = (*Action)(nil)
	_ ModuleOwner = (*Entity)(nil)
	_ ModuleOwner = (*Module)(nil)
)

// ModuleOption customizes module creation.
type ModuleOption func(*moduleRequest)

type moduleRequest struct {
	contents    any
	hasContents bool
	template    string
	overwrite   bool
}

// WithContents sets the initial contents: a map, a list or a codec.Array.
func WithContents(v any) ModuleOption {
	return func(r *moduleRequest) {
		r.contents = v
		r.hasContents = true
	}
}

// FromTemplate copies the contents of a project template. When no name is
// given, the template's identifier field names the module.
func FromTemplate(name string) ModuleOption {
	return func(r *moduleRequest) { r.template = name }
}

// Overwrite replaces an existing module instead of failing or returning it.
func Overwrite() ModuleOption {
	return func(r *moduleRequest) { r.overwrite = true }
}

// moduleSet is the module collection of one owner.
type moduleSet struct {
	s       *Session
	project string
	path    string
	owner   string
	// nested is set when the members are keys of a module document, so
	// only map-valued keys count as modules.
	nested bool
}

// Modules lists the modules of the owner.
func (m *moduleSet) Modules() *Manager[*Module] {
	mgr := &Manager[*Module]{
		s:      m.s,
		kind:   "module",
		parent: m.owner,
		path:   m.path,
		open:   m.open,
		remove: m.DeleteModule,
	}
	if m.nested {
		mgr.member = func(ctx context.Context, id string) (bool, error) {
			v, err := m.s.Backend.Get(ctx, Join(m.path, id), true)
			if err != nil {
				return false, err
			}
			_, ok := v.(map[string]any)
			return ok, nil
		}
	}
	return mgr
}

func (m *moduleSet) open(name string) *Module {
	path := Join(m.path, name)
	return &Module{
		moduleSet: moduleSet{
			s:       m.s,
			project: m.project,
			path:    path,
			owner:   fmt.Sprintf("module %q", path),
			nested:  true,
		},
		name: name,
	}
}

// GetModule returns an existing module.
func (m *moduleSet) GetModule(ctx context.Context, name string) (*Module, error) {
	return m.Modules().Get(ctx, name)
}

// RequireModule returns the module name, creating it when absent. An
// existing module is returned untouched unless Overwrite is given.
func (m *moduleSet) RequireModule(ctx context.Context, name string, opts ...ModuleOption) (*Module, error) {
	return m.writeModule(ctx, name, opts, false)
}

// CreateModule creates a module, failing with ErrExists if the name is
// taken and Overwrite is not given.
func (m *moduleSet) CreateModule(ctx context.Context, name string, opts ...ModuleOption) (*Module, error) {
	return m.writeModule(ctx, name, opts, true)
}

func (m *moduleSet) writeModule(ctx context.Context, name string, opts []ModuleOption, strict bool) (*Module, error) {
	var req moduleRequest
	for _, opt := range opts {
		opt(&req)
	}
	name, contents, err := m.resolve(ctx, name, req)
	if err != nil {
		return nil, err
	}
	ok, err := m.Modules().Contains(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok && !req.overwrite {
		if strict {
			return nil, exists("module", name, m.owner)
		}
		return m.open(name), nil
	}
	if err := m.s.Backend.Set(ctx, Join(m.path, name), contents); err != nil {
		return nil, fmt.Errorf("write module %q: %w", name, err)
	}
	m.s.logger().Debug("module written", "owner", m.owner, "module", name, "template", req.template)
	return m.open(name), nil
}

// resolve settles the module name and contents from the request.
func (m *moduleSet) resolve(ctx context.Context, name string, req moduleRequest) (string, any, error) {
	contents := req.contents
	if req.template != "" {
		if req.hasContents {
			return "", nil, fmt.Errorf("%w: contents and template are mutually exclusive", ErrInvalid)
		}
		tmpl, err := newProject(m.s, m.project).template(ctx, req.template)
		if err != nil {
			return "", nil, err
		}
		ident, _ := tmpl[TemplateIdentifierKey].(string)
		if ident == "" {
			return "", nil, fmt.Errorf("template %q: %w: no %s field", req.template, ErrInvalid, TemplateIdentifierKey)
		}
		if name == "" {
			name = ident
		}
		contents = tmpl
	}
	if err := ValidateID(name); err != nil {
		return "", nil, fmt.Errorf("module: %w", err)
	}
	if contents == nil {
		contents = map[string]any{}
	}
	switch codec.KindOf(contents) {
	case codec.KindMap, codec.KindList, codec.KindArray:
	default:
		return "", nil, &TypeError{Field: "contents", Expected: "map, list or array", Got: contents}
	}
	return name, contents, nil
}

// DeleteModule removes a module and its nested modules.
func (m *moduleSet) DeleteModule(ctx context.Context, name string) error {
	ok, err := m.Modules().Contains(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("module", name, m.owner)
	}
	return m.s.Backend.Delete(ctx, Join(m.path, name))
}

func (m *moduleSet) deleteModules(ctx context.Context) error {
	names, err := m.Modules().Keys(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := m.DeleteModule(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Module is a free-form document of parameters or results attached to a
// project, an action, an entity or another module.
type Module struct {
	moduleSet
	name string
}

// Name returns the module name within its owner.
func (m *Module) Name() string { return m.name }

// Path returns the backend path of the module document.
func (m *Module) Path() string { return m.path }

func (m *Module) String() string { return m.path }

// Contents returns the decoded module document.
func (m *Module) Contents(ctx context.Context) (any, error) {
	v, err := m.s.Backend.Get(ctx, m.path, false)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, notFound("module", m.name, "")
	}
	return v, nil
}

// ToMap returns the contents of a map-valued module.
func (m *Module) ToMap(ctx context.Context) (map[string]any, error) {
	v, err := m.Contents(ctx)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, &TypeError{Field: m.name, Expected: "map", Got: v}
	}
	return doc, nil
}

// Keys returns the top-level keys of a map-valued module.
func (m *Module) Keys(ctx context.Context) ([]string, error) {
	v, err := m.s.Backend.Get(ctx, m.path, true)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, &TypeError{Field: m.name, Expected: "map", Got: v}
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Value returns the value stored under key.
func (m *Module) Value(ctx context.Context, key string) (any, error) {
	if err := ValidateID(key); err != nil {
		return nil, err
	}
	v, err := m.s.Backend.Get(ctx, Join(m.path, key), false)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, notFound("key", key, fmt.Sprintf("module %q", m.name))
	}
	return v, nil
}

// SetValue stores v under key. A nil value removes the key.
func (m *Module) SetValue(ctx context.Context, key string, v any) error {
	if err := ValidateID(key); err != nil {
		return err
	}
	if v == nil {
		return m.s.Backend.Delete(ctx, Join(m.path, key))
	}
	return m.s.Backend.Set(ctx, Join(m.path, key), v)
}

// Update merges values into the module document.
func (m *Module) Update(ctx context.Context, values map[string]any) error {
	for k := range values {
		if err := ValidateID(k); err != nil {
			return err
		}
	}
	return m.s.Backend.Update(ctx, m.path, values)
}

// ToJSON renders the module in its encoded document form.
func (m *Module) ToJSON(ctx context.Context) ([]byte, error) {
	v, err := m.Contents(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := codec.Default.Encode(v)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Template is a reusable module blueprint stored at project level.
type Template struct {
	s    *Session
	path string
	name string
}

func (t *Template) Name() string { return t.name }

// Contents returns the decoded template document.
func (t *Template) Contents(ctx context.Context) (any, error) {
	v, err := t.s.Backend.Get(ctx, t.path, false)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, notFound("template", t.name, "")
	}
	return v, nil
}

// ToMap returns the template document.
func (t *Template) ToMap(ctx context.Context) (map[string]any, error) {
	v, err := t.Contents(ctx)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, &TypeError{Field: t.name, Expected: "map", Got: v}
	}
	return doc, nil
}

// Identifier returns the identifier field, or "" when absent.
func (t *Template) Identifier(ctx context.Context) (string, error) {
	doc, err := t.ToMap(ctx)
	if err != nil {
		return "", err
	}
	id, _ := doc[TemplateIdentifierKey].(string)
	return id, nil
}
