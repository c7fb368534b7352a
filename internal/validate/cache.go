package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Cache stores validation outcomes keyed by the raw input string.
// Implementations must be safe for concurrent use. Entries are never evicted.
type Cache interface {
	Get(address string) (valid bool, found bool)
	Put(address string, valid bool)
}

// MemoryCache is an append-only in-process Cache.
type MemoryCache struct {
	m sync.Map
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get returns the cached outcome for address.
func (c *MemoryCache) Get(address string) (bool, bool) {
	v, ok := c.m.Load(address)
	if !ok {
		return false, false
	}
	return v.(bool), true
}

// Put records the outcome for address. The first stored value wins.
func (c *MemoryCache) Put(address string, valid bool) {
	c.m.LoadOrStore(address, valid)
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// DiskCache keeps outcomes as one small file per address under a directory,
// fronted by a MemoryCache so each address hits the disk at most once per
// process.
type DiskCache struct {
	dir string
	mem *MemoryCache
}

// NewDiskCache creates a DiskCache rooted at dir, creating it if needed.
func NewDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("disk cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &DiskCache{dir: dir, mem: NewMemoryCache()}, nil
}

// Get returns the cached outcome for address, consulting disk on a memory miss.
func (c *DiskCache) Get(address string) (bool, bool) {
	if ok, found := c.mem.Get(address); found {
		return ok, true
	}

	data, err := os.ReadFile(c.path(address))
	if err != nil {
		return false, false
	}

	ok := string(data) == "1"
	c.mem.Put(address, ok)
	return ok, true
}

// Put records the outcome in memory and on disk. Disk write failures are
// logged and otherwise ignored; the memory entry still serves this process.
func (c *DiskCache) Put(address string, valid bool) {
	c.mem.Put(address, valid)

	value := "0"
	if valid {
		value = "1"
	}
	if err := os.WriteFile(c.path(address), []byte(value), 0o644); err != nil {
		slog.Warn("failed to persist email validation result", "dir", c.dir, "error", err)
	}
}

func (c *DiskCache) path(address string) string {
	sum := sha256.Sum256([]byte(address))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".emv")
}
