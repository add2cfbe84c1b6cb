package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCache_FirstWriteWins(t *testing.T) {
	c := NewCache()

	actual, loaded := c.LoadOrStore("fp", []byte("first"), nil)
	assert.False(t, loaded)
	assert.Equal(t, "first", string(actual))

	actual, loaded = c.LoadOrStore("fp", []byte("second"), nil)
	assert.True(t, loaded)
	assert.Equal(t, "first", string(actual))

	got, ok := c.Get("fp")
	require.True(t, ok)
	assert.Equal(t, "first", string(got))
	assert.Equal(t, 1, c.Len())
}

func TestCache_Missing(t *testing.T) {
	_, ok := NewCache().Get("absent")
	assert.False(t, ok)
}

func TestCache_InputChangeMisses(t *testing.T) {
	dir := t.TempDir()
	dep := writeInput(t, dir, "dep.ts", "export const base = 1;\n")
	c := NewCache()

	c.LoadOrStore("fp", []byte("base=1"), []string{dep})
	got, ok := c.Get("fp")
	require.True(t, ok)
	assert.Equal(t, "base=1", string(got))

	writeInput(t, dir, "dep.ts", "export const base = 2;\n")
	_, ok = c.Get("fp")
	assert.False(t, ok, "artifact bundled from the old dep.ts must not be served")

	actual, loaded := c.LoadOrStore("fp", []byte("base=2"), []string{dep})
	assert.False(t, loaded)
	assert.Equal(t, "base=2", string(actual))
	assert.Equal(t, 2, c.Len())

	// Reverting the input makes the first artifact valid again.
	writeInput(t, dir, "dep.ts", "export const base = 1;\n")
	got, ok = c.Get("fp")
	require.True(t, ok)
	assert.Equal(t, "base=1", string(got))
}

func TestCache_MissingInputIsNotStored(t *testing.T) {
	c := NewCache()
	actual, loaded := c.LoadOrStore("fp", []byte("code"), []string{filepath.Join(t.TempDir(), "gone.ts")})
	assert.False(t, loaded)
	assert.Equal(t, "code", string(actual))
	assert.Equal(t, 0, c.Len())
}

func TestDigest(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.ts", "a")
	b := writeInput(t, dir, "b.ts", "b")

	ab, err := Digest([]string{a, b})
	require.NoError(t, err)
	ba, err := Digest([]string{b, a})
	require.NoError(t, err)
	assert.Equal(t, ab, ba)

	writeInput(t, dir, "b.ts", "B")
	changed, err := Digest([]string{a, b})
	require.NoError(t, err)
	assert.NotEqual(t, ab, changed)

	_, err = Digest([]string{filepath.Join(dir, "missing.ts")})
	assert.Error(t, err)
}

func TestCache_ConcurrentWriters(t *testing.T) {
	dir := t.TempDir()
	dep := writeInput(t, dir, "dep.ts", "shared")
	c := NewCache()
	const writers = 32

	results := make([]string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actual, _ := c.LoadOrStore("shared", []byte(fmt.Sprintf("writer-%d", i)), []string{dep})
			results[i] = string(actual)
		}(i)
	}
	wg.Wait()

	winner, ok := c.Get("shared")
	require.True(t, ok)
	for i, r := range results {
		assert.Equal(t, string(winner), r, "writer %d observed a different artifact", i)
	}
	assert.Equal(t, 1, c.Len())
}

func TestProcess_Shared(t *testing.T) {
	assert.Same(t, Process(), Process())
}
