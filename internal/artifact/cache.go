// Package artifact holds bundled closed-block artifacts for the lifetime of the
// process, keyed by module fingerprint and the content of the bundled inputs.
package artifact

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/xxh3"
)

// Cache is a concurrent-safe, first-write-wins artifact store. Entries are
// never evicted or replaced. An artifact is only returned while every file it
// was bundled from still has the content it had when stored.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string][]byte
	manifests map[string][][]string
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		entries:   make(map[string][]byte),
		manifests: make(map[string][][]string),
	}
}

// Digest hashes the current content of inputs. The result does not depend on
// their order. A missing file is an error.
func Digest(inputs []string) (string, error) {
	sorted := append([]string(nil), inputs...)
	sort.Strings(sorted)

	h := xxh3.New()
	for _, path := range sorted {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to hash input: %w", err)
		}
		fmt.Fprintf(h, "%s\x00%016x\x00", path, xxh3.Hash(data))
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func key(fingerprint, digest string) string {
	return fingerprint + "/" + digest
}

// Get returns the artifact stored for fingerprint whose inputs are unchanged
// on disk.
func (c *Cache) Get(fingerprint string) ([]byte, bool) {
	c.mu.RLock()
	manifests := c.manifests[fingerprint]
	c.mu.RUnlock()

	for _, inputs := range manifests {
		digest, err := Digest(inputs)
		if err != nil {
			continue
		}
		c.mu.RLock()
		data, ok := c.entries[key(fingerprint, digest)]
		c.mu.RUnlock()
		if ok {
			return data, true
		}
	}
	return nil, false
}

// LoadOrStore stores data, bundled from inputs, unless an artifact for the
// same fingerprint and input content is already present, and returns the
// artifact that is now authoritative. loaded is true when an earlier write
// won. Data whose inputs cannot be hashed is returned without being stored.
func (c *Cache) LoadOrStore(fingerprint string, data []byte, inputs []string) (actual []byte, loaded bool) {
	digest, err := Digest(inputs)
	if err != nil {
		return data, false
	}
	k := key(fingerprint, digest)

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[k]; ok {
		return existing, true
	}
	c.entries[k] = data
	c.addManifest(fingerprint, inputs)
	return data, false
}

// addManifest records the input set of fingerprint once. Callers hold mu.
func (c *Cache) addManifest(fingerprint string, inputs []string) {
	sorted := append([]string(nil), inputs...)
	sort.Strings(sorted)
	joined := strings.Join(sorted, "\x00")
	for _, m := range c.manifests[fingerprint] {
		if strings.Join(m, "\x00") == joined {
			return
		}
	}
	c.manifests[fingerprint] = append(c.manifests[fingerprint], sorted)
}

// Len returns the number of stored artifacts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

var (
	processOnce  sync.Once
	processCache *Cache
)

// Process returns the cache shared by every build in this process.
func Process() *Cache {
	processOnce.Do(func() { processCache = NewCache() })
	return processCache
}
