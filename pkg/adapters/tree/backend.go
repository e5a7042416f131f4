// Package tree implements core.Backend on top of any store that can hold
// documents at slash-separated paths.
//
// A path either names a document, lies inside a document or names a
// collection whose children are documents or further collections. Reads
// and writes below a document are resolved against the nearest ancestor
// document and applied with a read-modify-write cycle.
package tree

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/introspection"

	"github.com/aretw0/expipe/pkg/codec"
	"github.com/aretw0/expipe/pkg/core"
)

// Nodes is the physical store under a tree Backend.
type Nodes interface {
	// Load returns the raw document stored exactly at path.
	Load(ctx context.Context, path []string) (doc any, ok bool, err error)
	// Store writes a raw document at path.
	Store(ctx context.Context, path []string, doc any) error
	// Remove deletes the document at path and everything below it.
	// A missing path is not an error.
	Remove(ctx context.Context, path []string) error
	// Children lists the names directly below path that hold a document or
	// a non-empty collection.
	Children(ctx context.Context, path []string) ([]string, error)
}

// Sequencer is implemented by nodes that can generate child keys.
type Sequencer interface {
	NextID(ctx context.Context, path []string) (string, error)
}

// Backend adapts Nodes to core.Backend.
type Backend struct {
	nodes    Nodes
	codec    *codec.Codec
	logger   *slog.Logger
	readOnly bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithCodec overrides the value codec.
func WithCodec(c *codec.Codec) Option {
	return func(b *Backend) { b.codec = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithReadOnly rejects every write with core.ErrReadOnly.
func WithReadOnly(ro bool) Option {
	return func(b *Backend) { b.readOnly = ro }
}

// New wraps nodes into a Backend.
func New(nodes Nodes, opts ...Option) *Backend {
	b := &Backend{nodes: nodes, codec: codec.Default}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Nodes returns the underlying store.
func (b *Backend) Nodes() Nodes { return b.nodes }

var _ core.Backend = (*Backend)(nil)

// locate finds the outermost document at or above segs. It returns the
// number of segments naming the document, or -1 when there is none.
func (b *Backend) locate(ctx context.Context, segs []string) (int, any, error) {
	for i := 1; i <= len(segs); i++ {
		doc, ok, err := b.nodes.Load(ctx, segs[:i])
		if err != nil {
			return -1, nil, err
		}
		if ok {
			return i, doc, nil
		}
	}
	return -1, nil, nil
}

// Exists implements core.Backend.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	segs := core.Split(path)
	n, doc, err := b.locate(ctx, segs)
	if err != nil {
		return false, err
	}
	if n >= 0 {
		if n == len(segs) {
			return true, nil
		}
		_, ok := dig(doc, segs[n:])
		return ok, nil
	}
	children, err := b.nodes.Children(ctx, segs)
	if err != nil {
		return false, err
	}
	return len(children) > 0, nil
}

// Get implements core.Backend.
func (b *Backend) Get(ctx context.Context, path string, shallow bool) (any, error) {
	segs := core.Split(path)
	n, doc, err := b.locate(ctx, segs)
	if err != nil {
		return nil, err
	}
	var raw any
	switch {
	case n >= 0 && n < len(segs):
		raw, _ = dig(doc, segs[n:])
	case shallow:
		raw, err = b.shallow(ctx, segs, doc, n == len(segs))
	default:
		raw, err = b.assemble(ctx, segs, doc, n == len(segs))
	}
	if err != nil {
		return nil, err
	}
	if shallow {
		return keysOf(raw), nil
	}
	return b.codec.Decode(raw), nil
}

// shallow lists the keys of the document at segs together with its
// children, without loading the children.
func (b *Backend) shallow(ctx context.Context, segs []string, doc any, isDoc bool) (any, error) {
	children, err := b.nodes.Children(ctx, segs)
	if err != nil {
		return nil, err
	}
	if isDoc && len(children) == 0 {
		return doc, nil
	}
	out := map[string]any{}
	if m, ok := doc.(map[string]any); ok && isDoc {
		for k := range m {
			out[k] = true
		}
	}
	for _, c := range children {
		out[c] = true
	}
	if len(out) == 0 && !isDoc {
		return nil, nil
	}
	return out, nil
}

// assemble builds the full subtree rooted at segs.
func (b *Backend) assemble(ctx context.Context, segs []string, doc any, isDoc bool) (any, error) {
	children, err := b.nodes.Children(ctx, segs)
	if err != nil {
		return nil, err
	}
	if isDoc && len(children) == 0 {
		return doc, nil
	}
	out := map[string]any{}
	if m, ok := doc.(map[string]any); ok && isDoc {
		for k, v := range m {
			out[k] = v
		}
	}
	for _, c := range children {
		child := append(append([]string(nil), segs...), c)
		cdoc, ok, err := b.nodes.Load(ctx, child)
		if err != nil {
			return nil, err
		}
		v, err := b.assemble(ctx, child, cdoc, ok)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out[c] = v
		}
	}
	if len(out) == 0 && !isDoc {
		return nil, nil
	}
	return out, nil
}

// Set implements core.Backend.
func (b *Backend) Set(ctx context.Context, path string, value any) error {
	if err := b.writable("set", path); err != nil {
		return err
	}
	segs := core.Split(path)
	if len(segs) == 0 {
		return fmt.Errorf("set: %w: empty path", core.ErrInvalid)
	}
	enc, err := b.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}
	if enc == nil {
		return b.Delete(ctx, path)
	}
	n, doc, err := b.locate(ctx, segs[:len(segs)-1])
	if err != nil {
		return err
	}
	if n >= 0 {
		b.debug("set", path)
		return b.nodes.Store(ctx, segs[:n], seal(setIn(doc, segs[n:], enc)))
	}
	if err := b.nodes.Remove(ctx, segs); err != nil {
		return err
	}
	b.debug("set", path)
	return b.nodes.Store(ctx, segs, enc)
}

// Push implements core.Backend.
func (b *Backend) Push(ctx context.Context, path string, value any) (string, error) {
	if err := b.writable("push", path); err != nil {
		return "", err
	}
	seq, ok := b.nodes.(Sequencer)
	if !ok {
		return "", fmt.Errorf("push %q: %w", path, core.ErrUnsupported)
	}
	id, err := seq.NextID(ctx, core.Split(path))
	if err != nil {
		return "", err
	}
	if err := b.Set(ctx, core.Join(path, id), value); err != nil {
		return "", err
	}
	return id, nil
}

// Update implements core.Backend.
func (b *Backend) Update(ctx context.Context, path string, values map[string]any) error {
	if err := b.writable("update", path); err != nil {
		return err
	}
	segs := core.Split(path)
	if len(segs) == 0 {
		return fmt.Errorf("update: %w: empty path", core.ErrInvalid)
	}
	enc := make(map[string]any, len(values))
	for k, v := range values {
		e, err := b.codec.Encode(v)
		if err != nil {
			return fmt.Errorf("update %q: %s: %w", path, k, err)
		}
		enc[k] = e
	}
	n, doc, err := b.locate(ctx, segs)
	if err != nil {
		return err
	}
	if n < 0 {
		children, err := b.nodes.Children(ctx, segs)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			for k, v := range values {
				if err := b.Set(ctx, core.Join(path, k), v); err != nil {
					return err
				}
			}
			return nil
		}
		doc, n = map[string]any{}, len(segs)
	}
	target, _ := dig(doc, segs[n:])
	m, ok := target.(map[string]any)
	if !ok {
		m = map[string]any{}
	}
	delete(m, codec.ForceDictKey)
	for k, v := range enc {
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = v
	}
	if len(m) == 0 {
		m[codec.ForceDictKey] = true
	}
	b.debug("update", path)
	return b.nodes.Store(ctx, segs[:n], seal(setIn(doc, segs[n:], m)))
}

// Delete implements core.Backend.
func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := b.writable("delete", path); err != nil {
		return err
	}
	segs := core.Split(path)
	if len(segs) == 0 {
		return fmt.Errorf("delete: %w: empty path", core.ErrInvalid)
	}
	n, doc, err := b.locate(ctx, segs[:len(segs)-1])
	if err != nil {
		return err
	}
	if n >= 0 {
		root, changed := deleteIn(doc, segs[n:])
		if !changed {
			return nil
		}
		b.debug("delete", path)
		return b.nodes.Store(ctx, segs[:n], seal(root))
	}
	b.debug("delete", path)
	return b.nodes.Remove(ctx, segs)
}

// Watch forwards to the nodes when they can report changes.
func (b *Backend) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	w, ok := b.nodes.(core.Watchable)
	if !ok {
		return nil, fmt.Errorf("watch: %w", core.ErrUnsupported)
	}
	return w.Watch(ctx, pattern)
}

func (b *Backend) writable(op, path string) error {
	if b.readOnly {
		return fmt.Errorf("%s %q: %w", op, path, core.ErrReadOnly)
	}
	return nil
}

func (b *Backend) debug(op, path string) {
	if b.logger != nil {
		b.logger.Debug("tree write", "op", op, "path", path)
	}
}

// BackendState is the introspection snapshot of a Backend.
type BackendState struct {
	Nodes    string `json:"nodes"`
	ReadOnly bool   `json:"read_only"`
	Detail   any    `json:"detail,omitempty"`
}

// State implements introspection.Introspectable.
func (b *Backend) State() any {
	st := BackendState{Nodes: fmt.Sprintf("%T", b.nodes), ReadOnly: b.readOnly}
	if comp, ok := b.nodes.(introspection.Component); ok {
		st.Nodes = comp.ComponentType()
	}
	if in, ok := b.nodes.(introspection.Introspectable); ok {
		st.Detail = in.State()
	}
	return st
}

// ComponentType implements introspection.Component.
func (b *Backend) ComponentType() string {
	if comp, ok := b.nodes.(introspection.Component); ok {
		return comp.ComponentType()
	}
	return "tree"
}

var _ introspection.Introspectable = (*Backend)(nil)
var _ introspection.Component = (*Backend)(nil)
