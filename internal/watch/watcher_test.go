package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type batches struct {
	mu  sync.Mutex
	got [][]string
}

func (b *batches) record(ctx context.Context, changed []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, changed)
}

func (b *batches) all() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.got...)
}

func TestWatcher_RebuildsOnSourceChange(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	out := filepath.Join(root, "dist")
	require.NoError(t, os.MkdirAll(src, 0755))
	require.NoError(t, os.MkdirAll(out, 0755))

	var b batches
	w, err := New(root, []string{".ts"}, b.record, WithDebounce(60*time.Millisecond), WithIgnore(out))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(out, "bundle.ts"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.md"), []byte("x"), 0644))
	target := filepath.Join(src, "entry.ts")
	require.NoError(t, os.WriteFile(target, []byte("export const a = 1\n"), 0644))

	assert.Eventually(t, func() bool { return len(b.all()) > 0 }, 5*time.Second, 20*time.Millisecond)

	got := b.all()
	for _, batch := range got {
		assert.Equal(t, []string{target}, batch)
	}
	stats := w.Stats()
	assert.GreaterOrEqual(t, stats.Rebuilds, 1)
	assert.Equal(t, target, stats.LastEventPath)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), []string{".ts"}, func(context.Context, []string) {})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()
}

func TestSkipDir(t *testing.T) {
	assert.True(t, skipDir("node_modules"))
	assert.True(t, skipDir(".git"))
	assert.False(t, skipDir("src"))
}
