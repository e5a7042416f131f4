package fs_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/expipe/pkg/adapters/fs"
)

func seedDocuments(tb testing.TB, dir string, n int) {
	tb.Helper()
	coll := filepath.Join(dir, "neuro", "actions")
	require.NoError(tb, os.MkdirAll(coll, 0755))
	for i := 0; i < n; i++ {
		content := fmt.Sprintf("type: recording\ntags: [bench, load]\nindex: %d\n", i)
		require.NoError(tb, os.WriteFile(filepath.Join(coll, fmt.Sprintf("a-%05d.yaml", i)), []byte(content), 0644))
	}
}

// BenchmarkShallowList_2k measures listing a large collection.
// Run with: go test -bench=ShallowList -benchmem -run=^$ ./pkg/adapters/fs/...
func BenchmarkShallowList_2k(b *testing.B) {
	dir := b.TempDir()
	seedDocuments(b, dir, 2000)

	ctx := context.Background()
	backend, err := fs.Open(ctx, fs.Config{Path: dir})
	require.NoError(b, err)

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		v, err := backend.Get(ctx, "neuro/actions", true)
		if err != nil {
			b.Fatal(err)
		}
		if got := len(v.(map[string]any)); got != 2000 {
			b.Fatalf("expected 2000 keys, got %d", got)
		}
	}
}

func TestScale_ListThenRead(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scale test in short mode")
	}

	dir := t.TempDir()
	seedDocuments(t, dir, 2000)

	ctx := context.Background()
	backend, err := fs.Open(ctx, fs.Config{Path: dir})
	require.NoError(t, err)

	start := time.Now()
	v, err := backend.Get(ctx, "neuro/actions", true)
	require.NoError(t, err)
	t.Logf("Shallow list (2k): %v", time.Since(start))
	require.Len(t, v, 2000)

	start = time.Now()
	full, err := backend.Get(ctx, "neuro/actions", false)
	require.NoError(t, err)
	t.Logf("Full read (2k): %v", time.Since(start))

	doc := full.(map[string]any)["a-01234"].(map[string]any)
	require.Equal(t, 1234, doc["index"])
	require.Equal(t, []any{"bench", "load"}, doc["tags"])
}
