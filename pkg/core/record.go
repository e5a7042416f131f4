package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Attribute names shared by actions and entities.
const (
	AttrType     = "type"
	AttrLocation = "location"
	AttrDatetime = "datetime"
	AttrUsers    = "users"
	AttrTags     = "tags"
	AttrEntities = "entities"

	// AttrRegistered holds the creation time of projects, actions and
	// entities. It is written once and never validated.
	AttrRegistered = "registered"
)

type attrKind int

const (
	attrString attrKind = iota
	attrDatetime
	attrSet
)

var knownAttributes = map[string]attrKind{
	AttrType:     attrString,
	AttrLocation: attrString,
	AttrDatetime: attrDatetime,
	AttrUsers:    attrSet,
	AttrTags:     attrSet,
	AttrEntities: attrSet,
}

// record is the shared body of actions and entities.
type record struct {
	moduleSet
	s       *Session
	project string
	kind    Collection
	id      string
}

func newRecord(s *Session, project string, kind Collection, id string) *record {
	owner := Owner{Kind: kind, ID: id}
	desc := fmt.Sprintf("%s %q", singular(kind), id)
	return &record{
		moduleSet: moduleSet{
			s:       s,
			project: project,
			path:    s.Layout.Collection(project, owner, Modules),
			owner:   desc,
		},
		s:       s,
		project: project,
		kind:    kind,
		id:      id,
	}
}

// ID returns the identifier within the project.
func (r *record) ID() string { return r.id }

// Project returns the identifier of the owning project.
func (r *record) Project() string { return r.project }

func (r *record) String() string { return r.project + "/" + r.id }

func (r *record) attrPath(name string) string {
	return Join(r.s.Layout.Attributes(r.project, r.kind, r.id), name)
}

// Attributes returns every stored attribute.
func (r *record) Attributes(ctx context.Context) (map[string]any, error) {
	v, err := r.s.Backend.Get(ctx, r.s.Layout.Attributes(r.project, r.kind, r.id), false)
	if err != nil {
		return nil, err
	}
	attrs, _ := v.(map[string]any)
	if attrs == nil {
		attrs = map[string]any{}
	}
	return attrs, nil
}

// Attribute returns the raw stored value of name, or nil when unset.
func (r *record) Attribute(ctx context.Context, name string) (any, error) {
	if err := ValidateID(name); err != nil {
		return nil, err
	}
	return r.s.Backend.Get(ctx, r.attrPath(name), false)
}

// SetAttribute stores an attribute by name. Known attributes are checked:
// type and location take a string, datetime a time.Time or a timestamp
// string, users, tags and entities a list of strings. A nil value unsets
// the attribute.
func (r *record) SetAttribute(ctx context.Context, name string, value any) error {
	if err := ValidateID(name); err != nil {
		return err
	}
	if value == nil {
		return r.s.Backend.Delete(ctx, r.attrPath(name))
	}
	if kind, ok := knownAttributes[name]; ok {
		v, err := normalizeAttribute(name, kind, value)
		if err != nil {
			return err
		}
		value = v
	}
	return r.s.Backend.Set(ctx, r.attrPath(name), value)
}

func normalizeAttribute(name string, kind attrKind, value any) (any, error) {
	switch kind {
	case attrString:
		s, ok := value.(string)
		if !ok {
			return nil, &TypeError{Field: name, Expected: "string", Got: value}
		}
		return s, nil
	case attrDatetime:
		switch t := value.(type) {
		case time.Time:
			return FormatDatetime(t), nil
		case *time.Time:
			if t != nil {
				return FormatDatetime(*t), nil
			}
		case string:
			if _, err := ParseDatetime(t); err != nil {
				return nil, fmt.Errorf("%s: %w: %v", name, ErrInvalid, err)
			}
			return t, nil
		}
		return nil, &TypeError{Field: name, Expected: "datetime", Got: value}
	default:
		items, err := stringSet(name, value)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, nil
	}
}

// stringSet converts value to a de-duplicated list of strings, keeping the
// first occurrence of each.
func stringSet(name string, value any) ([]string, error) {
	var raw []any
	switch v := value.(type) {
	case []string:
		raw = make([]any, len(v))
		for i, s := range v {
			raw[i] = s
		}
	case []any:
		raw = v
	default:
		return nil, &TypeError{Field: name, Expected: "list of strings", Got: value}
	}
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, &TypeError{Field: name, Expected: "list of strings", Got: value}
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out, nil
}

func (r *record) stringAttr(ctx context.Context, name string) (string, error) {
	v, err := r.Attribute(ctx, name)
	if err != nil || v == nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", &TypeError{Field: name, Expected: "string", Got: v}
	}
	return s, nil
}

func (r *record) setAttr(ctx context.Context, name string) ([]string, error) {
	v, err := r.Attribute(ctx, name)
	if err != nil || v == nil {
		return nil, err
	}
	return stringSet(name, v)
}

// Type returns the type attribute, or "" when unset.
func (r *record) Type(ctx context.Context) (string, error) { return r.stringAttr(ctx, AttrType) }

// SetType sets the type attribute.
func (r *record) SetType(ctx context.Context, v string) error {
	return r.SetAttribute(ctx, AttrType, v)
}

// Location returns the location attribute, or "" when unset.
func (r *record) Location(ctx context.Context) (string, error) {
	return r.stringAttr(ctx, AttrLocation)
}

// SetLocation sets the location attribute.
func (r *record) SetLocation(ctx context.Context, v string) error {
	return r.SetAttribute(ctx, AttrLocation, v)
}

// Datetime returns the datetime attribute, or the zero time when unset.
func (r *record) Datetime(ctx context.Context) (time.Time, error) {
	s, err := r.stringAttr(ctx, AttrDatetime)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	return ParseDatetime(s)
}

// SetDatetime sets the datetime attribute.
func (r *record) SetDatetime(ctx context.Context, t time.Time) error {
	return r.SetAttribute(ctx, AttrDatetime, t)
}

// Users returns the users attribute, or nil when unset.
func (r *record) Users(ctx context.Context) ([]string, error) { return r.setAttr(ctx, AttrUsers) }

// SetUsers replaces the users attribute. Duplicates are dropped.
func (r *record) SetUsers(ctx context.Context, users ...string) error {
	return r.SetAttribute(ctx, AttrUsers, users)
}

// Tags returns the tags attribute, or nil when unset.
func (r *record) Tags(ctx context.Context) ([]string, error) { return r.setAttr(ctx, AttrTags) }

// SetTags replaces the tags attribute. Duplicates are dropped.
func (r *record) SetTags(ctx context.Context, tags ...string) error {
	return r.SetAttribute(ctx, AttrTags, tags)
}

// AddTags adds tags not yet present.
func (r *record) AddTags(ctx context.Context, tags ...string) error {
	cur, err := r.Tags(ctx)
	if err != nil {
		return err
	}
	return r.SetTags(ctx, append(cur, tags...)...)
}

func (r *record) messagePath() string {
	return r.s.Layout.Collection(r.project, Owner{Kind: r.kind, ID: r.id}, Messages)
}

// Messages lists the messages attached to this object.
func (r *record) Messages() *Manager[*Message] {
	path := r.messagePath()
	return &Manager[*Message]{
		s:      r.s,
		kind:   "message",
		parent: r.owner,
		path:   path,
		open: func(id string) *Message {
			return &Message{s: r.s, path: Join(path, id), id: id}
		},
		remove: r.DeleteMessage,
	}
}

// GetMessage returns an existing message.
func (r *record) GetMessage(ctx context.Context, id string) (*Message, error) {
	return r.Messages().Get(ctx, id)
}

// MessageOption customizes CreateMessage.
type MessageOption func(*messageFields)

type messageFields struct {
	user     string
	datetime time.Time
}

// WithUser sets the message author. Defaults to the session user.
func WithUser(user string) MessageOption {
	return func(f *messageFields) { f.user = user }
}

// WithDatetime sets the message timestamp. Defaults to now.
func WithDatetime(t time.Time) MessageOption {
	return func(f *messageFields) { f.datetime = t }
}

// CreateMessage appends a message and returns it. The identifier is
// generated by the backend when it supports Push, otherwise it is a
// random UUID.
func (r *record) CreateMessage(ctx context.Context, text string, opts ...MessageOption) (*Message, error) {
	f := messageFields{user: r.s.Username}
	for _, opt := range opts {
		opt(&f)
	}
	if text == "" {
		return nil, fmt.Errorf("create message: %w: text is required", ErrInvalid)
	}
	if f.user == "" {
		return nil, fmt.Errorf("create message: %w: user is required", ErrInvalid)
	}
	if f.datetime.IsZero() {
		f.datetime = r.s.now()
	}
	doc := map[string]any{
		"text":     text,
		"user":     f.user,
		"datetime": FormatDatetime(f.datetime),
	}
	path := r.messagePath()
	id, err := r.s.Backend.Push(ctx, path, doc)
	if errors.Is(err, ErrUnsupported) {
		id = uuid.NewString()
		err = r.s.Backend.Set(ctx, Join(path, id), doc)
	}
	if err != nil {
		return nil, fmt.Errorf("create message in %s: %w", r.owner, err)
	}
	r.s.logger().Debug("message created", "owner", r.String(), "id", id)
	return &Message{s: r.s, path: Join(path, id), id: id}, nil
}

// DeleteMessage removes a message.
func (r *record) DeleteMessage(ctx context.Context, id string) error {
	m, err := r.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	return r.s.Backend.Delete(ctx, m.path)
}

// remove deletes messages, then modules, then the object itself. The
// sequence is not atomic: a failure leaves the remaining parts in place.
func (r *record) remove(ctx context.Context) error {
	msgs, err := r.Messages().Keys(ctx)
	if err != nil {
		return err
	}
	for _, id := range msgs {
		if err := r.DeleteMessage(ctx, id); err != nil {
			return err
		}
	}
	if err := r.deleteModules(ctx); err != nil {
		return err
	}
	for _, path := range []string{r.messagePath(), r.moduleSet.path} {
		if err := r.s.Backend.Delete(ctx, path); err != nil {
			return err
		}
	}
	if err := r.s.Backend.Delete(ctx, r.s.Layout.Object(r.project, r.kind, r.id)); err != nil {
		return err
	}
	r.s.logger().Info("record deleted", "kind", singular(r.kind), "id", r.String())
	return nil
}

// Action is something that happened in a project: a measurement, a
// session, a procedure.
type Action struct {
	*record
}

// Entities returns the entity identifiers this action refers to.
func (a *Action) Entities(ctx context.Context) ([]string, error) {
	return a.setAttr(ctx, AttrEntities)
}

// SetEntities replaces the referenced entities. They need not exist.
func (a *Action) SetEntities(ctx context.Context, ids ...string) error {
	return a.SetAttribute(ctx, AttrEntities, ids)
}

// Entity is a thing taking part in actions: a sample, a device, a person.
type Entity struct {
	*record
}
