package core

import (
	"context"
	"errors"
	"fmt"
)

// Project is the root of the hierarchy: it owns actions, entities,
// templates and project-level modules.
type Project struct {
	moduleSet
	s  *Session
	id string
}

func newProject(s *Session, id string) *Project {
	return &Project{
		moduleSet: moduleSet{
			s:       s,
			project: id,
			path:    s.Layout.Collection(id, Owner{}, Modules),
			owner:   fmt.Sprintf("project %q", id),
		},
		s:  s,
		id: id,
	}
}

// ID returns the project identifier.
func (p *Project) ID() string { return p.id }

func (p *Project) String() string { return p.id }

// Attributes returns the project attribute document.
func (p *Project) Attributes(ctx context.Context) (map[string]any, error) {
	v, err := p.s.Backend.Get(ctx, p.s.Layout.ProjectAttributes(p.id), false)
	if err != nil {
		return nil, err
	}
	attrs, _ := v.(map[string]any)
	if attrs == nil {
		return nil, notFound("project", p.id, "")
	}
	return attrs, nil
}

// Attribute returns a single project attribute, or nil when unset.
func (p *Project) Attribute(ctx context.Context, key string) (any, error) {
	if err := ValidateID(key); err != nil {
		return nil, err
	}
	return p.s.Backend.Get(ctx, Join(p.s.Layout.ProjectAttributes(p.id), key), false)
}

// SetAttribute stores a project attribute. A nil value removes it.
func (p *Project) SetAttribute(ctx context.Context, key string, value any) error {
	if err := ValidateID(key); err != nil {
		return err
	}
	path := Join(p.s.Layout.ProjectAttributes(p.id), key)
	if value == nil {
		return p.s.Backend.Delete(ctx, path)
	}
	return p.s.Backend.Set(ctx, path, value)
}

// Actions lists the actions of the project.
func (p *Project) Actions() *Manager[*Action] {
	return &Manager[*Action]{
		s:      p.s,
		kind:   "action",
		parent: p.owner,
		path:   p.s.Layout.Collection(p.id, Owner{}, Actions),
		open:   p.openAction,
		remove: p.DeleteAction,
	}
}

func (p *Project) openAction(id string) *Action {
	return &Action{record: newRecord(p.s, p.id, Actions, id)}
}

// GetAction returns an existing action.
func (p *Project) GetAction(ctx context.Context, id string) (*Action, error) {
	return p.Actions().Get(ctx, id)
}

// RequireAction returns the action id, creating it when absent.
func (p *Project) RequireAction(ctx context.Context, id string) (*Action, error) {
	a, err := p.GetAction(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return p.CreateAction(ctx, id)
	}
	return a, err
}

// CreateAction creates a new action, failing with ErrExists if it is
// already present.
func (p *Project) CreateAction(ctx context.Context, id string) (*Action, error) {
	if err := p.createRecord(ctx, Actions, "action", id); err != nil {
		return nil, err
	}
	return p.openAction(id), nil
}

// DeleteAction removes an action together with its messages and modules.
func (p *Project) DeleteAction(ctx context.Context, id string) error {
	a, err := p.GetAction(ctx, id)
	if err != nil {
		return err
	}
	return a.remove(ctx)
}

// Entities lists the entities of the project.
func (p *Project) Entities() *Manager[*Entity] {
	return &Manager[*Entity]{
		s:      p.s,
		kind:   "entity",
		parent: p.owner,
		path:   p.s.Layout.Collection(p.id, Owner{}, Entities),
		open:   p.openEntity,
		remove: p.DeleteEntity,
	}
}

func (p *Project) openEntity(id string) *Entity {
	return &Entity{record: newRecord(p.s, p.id, Entities, id)}
}

// GetEntity returns an existing entity.
func (p *Project) GetEntity(ctx context.Context, id string) (*Entity, error) {
	return p.Entities().Get(ctx, id)
}

// RequireEntity returns the entity id, creating it when absent.
func (p *Project) RequireEntity(ctx context.Context, id string) (*Entity, error) {
	e, err := p.GetEntity(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return p.CreateEntity(ctx, id)
	}
	return e, err
}

// CreateEntity creates a new entity, failing with ErrExists if it is
// already present.
func (p *Project) CreateEntity(ctx context.Context, id string) (*Entity, error) {
	if err := p.createRecord(ctx, Entities, "entity", id); err != nil {
		return nil, err
	}
	return p.openEntity(id), nil
}

// DeleteEntity removes an entity together with its messages and modules.
func (p *Project) DeleteEntity(ctx context.Context, id string) error {
	e, err := p.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	return e.remove(ctx)
}

func (p *Project) createRecord(ctx context.Context, kind Collection, name, id string) error {
	if err := ValidateID(id); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	ok, err := p.s.Backend.Exists(ctx, p.s.Layout.Object(p.id, kind, id))
	if err != nil {
		return err
	}
	if ok {
		return exists(name, id, p.owner)
	}
	attrs := map[string]any{AttrRegistered: FormatDatetime(p.s.now())}
	if err := p.s.Backend.Set(ctx, p.s.Layout.Attributes(p.id, kind, id), attrs); err != nil {
		return fmt.Errorf("create %s %q: %w", name, id, err)
	}
	p.s.logger().Debug("record created", "project", p.id, "kind", name, "id", id)
	return nil
}

// Templates lists the templates of the project.
func (p *Project) Templates() *Manager[*Template] {
	path := p.s.Layout.Collection(p.id, Owner{}, Templates)
	return &Manager[*Template]{
		s:      p.s,
		kind:   "template",
		parent: p.owner,
		path:   path,
		open: func(id string) *Template {
			return &Template{s: p.s, path: Join(path, id), name: id}
		},
		remove: p.DeleteTemplate,
	}
}

// GetTemplate returns an existing template.
func (p *Project) GetTemplate(ctx context.Context, name string) (*Template, error) {
	return p.Templates().Get(ctx, name)
}

// RequireTemplate returns the template name, creating it from contents when
// absent. An existing template is returned unchanged.
func (p *Project) RequireTemplate(ctx context.Context, name string, contents map[string]any) (*Template, error) {
	t, err := p.GetTemplate(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return p.CreateTemplate(ctx, name, contents)
	}
	return t, err
}

// CreateTemplate stores a new template, failing with ErrExists if the name
// is taken.
func (p *Project) CreateTemplate(ctx context.Context, name string, contents map[string]any) (*Template, error) {
	if err := ValidateID(name); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	m := p.Templates()
	ok, err := m.Contains(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, exists("template", name, p.owner)
	}
	if contents == nil {
		contents = map[string]any{}
	}
	if err := p.s.Backend.Set(ctx, Join(m.path, name), contents); err != nil {
		return nil, fmt.Errorf("create template %q: %w", name, err)
	}
	return m.open(name), nil
}

// DeleteTemplate removes a template. Modules created from it are kept.
func (p *Project) DeleteTemplate(ctx context.Context, name string) error {
	m := p.Templates()
	ok, err := m.Contains(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return notFound("template", name, p.owner)
	}
	return p.s.Backend.Delete(ctx, Join(m.path, name))
}

// template returns the contents of the named template.
func (p *Project) template(ctx context.Context, name string) (map[string]any, error) {
	t, err := p.GetTemplate(ctx, name)
	if err != nil {
		return nil, err
	}
	return t.ToMap(ctx)
}

func (p *Project) children(ctx context.Context) (int, error) {
	total := 0
	for _, n := range []func(context.Context) (int, error){
		p.Actions().Len,
		p.Entities().Len,
		p.Modules().Len,
		p.Templates().Len,
	} {
		c, err := n(ctx)
		if err != nil {
			return 0, err
		}
		total += c
	}
	return total, nil
}

// deleteChildren cascades through every owned object. Failures stop the
// cascade and leave the remainder in place.
func (p *Project) deleteChildren(ctx context.Context) error {
	actions, err := p.Actions().Keys(ctx)
	if err != nil {
		return err
	}
	for _, id := range actions {
		if err := p.DeleteAction(ctx, id); err != nil {
			return err
		}
	}
	entities, err := p.Entities().Keys(ctx)
	if err != nil {
		return err
	}
	for _, id := range entities {
		if err := p.DeleteEntity(ctx, id); err != nil {
			return err
		}
	}
	if err := p.deleteModules(ctx); err != nil {
		return err
	}
	templates, err := p.Templates().Keys(ctx)
	if err != nil {
		return err
	}
	for _, name := range templates {
		if err := p.DeleteTemplate(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
