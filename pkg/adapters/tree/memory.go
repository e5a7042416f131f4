package tree

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Nodes implementation. Documents are deep-copied
// on the way in and out.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]any
	seq  int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]any)}
}

// NewMemoryBackend is shorthand for New(NewMemory(), opts...).
func NewMemoryBackend(opts ...Option) *Backend {
	return New(NewMemory(), opts...)
}

func key(path []string) string { return strings.Join(path, "/") }

func (m *Memory) Load(_ context.Context, path []string) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[key(path)]
	return clone(doc), ok, nil
}

func (m *Memory) Store(_ context.Context, path []string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key(path)] = clone(doc)
	return nil
}

func (m *Memory) Remove(_ context.Context, path []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(path)
	for p := range m.docs {
		if p == k || strings.HasPrefix(p, k+"/") {
			delete(m.docs, p)
		}
	}
	return nil
}

func (m *Memory) Children(_ context.Context, path []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := key(path)
	if prefix != "" {
		prefix += "/"
	}
	seen := map[string]bool{}
	for p := range m.docs {
		if !strings.HasPrefix(p, prefix) || p == strings.TrimSuffix(prefix, "/") {
			continue
		}
		name, _, _ := strings.Cut(p[len(prefix):], "/")
		if name != "" {
			seen[name] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// NextID returns increasing, fixed-width keys so lexical order follows
// insertion order.
func (m *Memory) NextID(context.Context, []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return fmt.Sprintf("m%08d", m.seq), nil
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *Memory) ComponentType() string { return "memory" }
