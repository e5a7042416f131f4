// Package fs stores documents as YAML files: every document lives in
// <path>.yaml and every collection is a directory.
package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/expipe/pkg/adapters/tree"
	"github.com/aretw0/expipe/pkg/git"
)

// Ext is the extension of document files.
const Ext = ".yaml"

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path      string
	MustExist bool
	Logger    *slog.Logger
	// Versioned records every write as a git commit in Path.
	Versioned bool
	// Author is the commit identity used when Versioned is set.
	Author string
	// ErrorHandler receives asynchronous watcher errors. Optional.
	ErrorHandler func(error)
}

// Repository implements tree.Nodes on a directory.
type Repository struct {
	Path   string
	config Config
	git    *git.Client

	mu            sync.RWMutex
	watcherActive bool
	writes        int
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	r := &Repository{Path: config.Path, config: config}
	if config.Versioned {
		r.git = git.NewClient(config.Path, config.Logger)
		r.git.Name = config.Author
		if config.Author != "" {
			r.git.Email = config.Author + "@expipe.local"
		}
	}
	return r
}

// Open initializes a repository and wraps it into a tree backend.
func Open(ctx context.Context, config Config, opts ...tree.Option) (*tree.Backend, error) {
	r := NewRepository(config)
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}
	if config.Logger != nil {
		opts = append([]tree.Option{tree.WithLogger(config.Logger)}, opts...)
	}
	return tree.New(r, opts...), nil
}

// Initialize creates the root directory and, when versioned, the git
// repository.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.config.MustExist {
		info, err := os.Stat(r.Path)
		if os.IsNotExist(err) {
			return fmt.Errorf("data path does not exist: %s", r.Path)
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("data path is not a directory: %s", r.Path)
		}
	} else if err := os.MkdirAll(r.Path, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if r.git == nil {
		return nil
	}
	if !git.IsInstalled() {
		return fmt.Errorf("versioned store requires git, which is not installed")
	}
	if !r.git.IsRepo(ctx) {
		if err := r.git.Init(ctx); err != nil {
			return fmt.Errorf("failed to git init: %w", err)
		}
	}
	return r.ensureIgnore()
}

// ensureIgnore keeps the lock and temp files out of history.
func (r *Repository) ensureIgnore() error {
	ignorePath := filepath.Join(r.Path, ".gitignore")
	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	lines := strings.Split(string(content), "\n")
	want := []string{git.LockName, TempFilePrefix + "*"}
	var missing []string
	for _, w := range want {
		found := false
		for _, l := range lines {
			if strings.TrimSpace(l) == w {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, w)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	text := string(content)
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	text += strings.Join(missing, "\n") + "\n"
	return writeFileAtomic(ignorePath, []byte(text), 0644)
}

func (r *Repository) dir(path []string) string {
	return filepath.Join(append([]string{r.Path}, path...)...)
}

func (r *Repository) file(path []string) string {
	return r.dir(path) + Ext
}

// Load implements tree.Nodes.
func (r *Repository) Load(_ context.Context, path []string) (any, bool, error) {
	if len(path) == 0 {
		return nil, false, nil
	}
	data, err := os.ReadFile(r.file(path))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	doc, err := parse(data)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", r.file(path), err)
	}
	return doc, true, nil
}

// Store implements tree.Nodes.
func (r *Repository) Store(ctx context.Context, path []string, doc any) error {
	if len(path) == 0 {
		return fmt.Errorf("cannot store a document at the root")
	}
	data, err := serialize(doc)
	if err != nil {
		return err
	}
	filename := r.file(path)
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := writeFileAtomic(filename, data, 0644); err != nil {
		return err
	}
	return r.record(ctx, "set "+strings.Join(path, "/"), filename)
}

// Remove implements tree.Nodes.
func (r *Repository) Remove(ctx context.Context, path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("cannot remove the root")
	}
	filename, dir := r.file(path), r.dir(path)
	_, ferr := os.Stat(filename)
	_, derr := os.Stat(dir)
	if os.IsNotExist(ferr) && os.IsNotExist(derr) {
		return nil
	}
	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	r.prune(filepath.Dir(dir))
	var removed []string
	if ferr == nil {
		removed = append(removed, filename)
	}
	if derr == nil {
		removed = append(removed, dir)
	}
	return r.record(ctx, "delete "+strings.Join(path, "/"), removed...)
}

// prune removes empty directories from dir up to the root.
func (r *Repository) prune(dir string) {
	root := filepath.Clean(r.Path)
	for dir = filepath.Clean(dir); dir != root && strings.HasPrefix(dir, root); dir = filepath.Dir(dir) {
		if os.Remove(dir) != nil {
			return
		}
	}
}

// Children implements tree.Nodes.
func (r *Repository) Children(_ context.Context, path []string) ([]string, error) {
	entries, err := os.ReadDir(r.dir(path))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || isTempFile(name) {
			continue
		}
		switch {
		case e.IsDir():
			if r.hasContent(filepath.Join(r.dir(path), name)) {
				seen[name] = true
			}
		case strings.HasSuffix(name, Ext):
			seen[strings.TrimSuffix(name, Ext)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// hasContent reports whether dir holds at least one document, at any depth.
func (r *Repository) hasContent(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || found {
			return filepath.SkipDir
		}
		if d.IsDir() && p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), Ext) && !isTempFile(d.Name()) {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

func (r *Repository) record(ctx context.Context, msg string, paths ...string) error {
	r.mu.Lock()
	r.writes++
	r.mu.Unlock()
	if r.git == nil {
		return nil
	}
	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		rp, err := filepath.Rel(r.Path, p)
		if err != nil {
			return err
		}
		rel = append(rel, rp)
	}
	if err := r.git.Record(ctx, msg, rel...); err != nil {
		return fmt.Errorf("failed to record change: %w", err)
	}
	return nil
}

var _ tree.Nodes = (*Repository)(nil)
