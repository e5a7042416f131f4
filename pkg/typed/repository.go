// Package typed maps module contents onto Go structs.
package typed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aretw0/expipe/pkg/codec"
	"github.com/aretw0/expipe/pkg/core"
)

// Model is a typed view of one module.
type Model[T any] struct {
	Name  string
	Data  T
	Saver Saver[T] // Active Record reference
}

// Saver persists a model. Implemented by Repository.
type Saver[T any] interface {
	Save(ctx context.Context, m *Model[T]) error
}

// Save persists the model through the repository it came from.
func (m *Model[T]) Save(ctx context.Context) error {
	if m.Saver == nil {
		return fmt.Errorf("model is detached (missing Saver)")
	}
	return m.Saver.Save(ctx, m)
}

// Repository reads and writes the modules of one owner as T values.
// T is converted through its JSON form, so struct tags apply. Quantities
// appear in that form as {"value", "unit", "uncertainty"} objects.
type Repository[T any] struct {
	owner core.ModuleOwner
}

// NewRepository wraps the modules of owner.
func NewRepository[T any](owner core.ModuleOwner) *Repository[T] {
	return &Repository[T]{owner: owner}
}

// Save writes m, replacing any module of the same name.
func (r *Repository[T]) Save(ctx context.Context, m *Model[T]) error {
	data, err := json.Marshal(m.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal typed data: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var contents map[string]any
	if err := dec.Decode(&contents); err != nil {
		return fmt.Errorf("typed data must encode as an object: %w", err)
	}
	if _, err := r.owner.RequireModule(ctx, m.Name, core.WithContents(contents), core.Overwrite()); err != nil {
		return err
	}
	if m.Saver == nil {
		m.Saver = r
	}
	return nil
}

// Get loads the module name into a T.
func (r *Repository[T]) Get(ctx context.Context, name string) (*Model[T], error) {
	mod, err := r.owner.GetModule(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, mod)
}

// List returns every module of the owner, sorted by name.
func (r *Repository[T]) List(ctx context.Context) ([]*Model[T], error) {
	mods, err := r.owner.Modules().Values(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Model[T], 0, len(mods))
	for _, mod := range mods {
		m, err := r.load(ctx, mod)
		if err != nil {
			return nil, fmt.Errorf("failed to process module %s: %w", mod.Name(), err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Delete removes a module.
func (r *Repository[T]) Delete(ctx context.Context, name string) error {
	return r.owner.DeleteModule(ctx, name)
}

func (r *Repository[T]) load(ctx context.Context, mod *core.Module) (*Model[T], error) {
	contents, err := mod.ToMap(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := codec.Default.Encode(contents)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(strip(doc))
	if err != nil {
		return nil, fmt.Errorf("contents marshal failed: %w", err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal to target type failed: %w", err)
	}
	return &Model[T]{Name: mod.Name(), Data: v, Saver: r}, nil
}

// strip drops the numeric-key markers added by the codec.
func strip(v any) any {
	switch t := v.(type) {
	case map[string]any:
		delete(t, codec.ForceDictKey)
		for k, e := range t {
			t[k] = strip(e)
		}
	case []any:
		for i, e := range t {
			t[i] = strip(e)
		}
	}
	return v
}
