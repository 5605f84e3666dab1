package discovery

import (
	"os"
	"sync"
	"time"
)

// Cache holds the most recent FileScan and Graph per project root. A repeat
// scan consults the prior result first: it is reused while every tracked
// file still exists and none has an mtime later than the one recorded for
// it. Otherwise the whole tree is walked and every file re-fingerprinted.
// Files added since the prior scan are not tracked, so adding a file alone
// does not invalidate the cached scan.
type Cache struct {
	mu     sync.Mutex
	scans  map[string]*FileScan
	graphs map[string]*Graph
}

func NewCache() *Cache {
	return &Cache{scans: map[string]*FileScan{}, graphs: map[string]*Graph{}}
}

// ScanIncremental returns the cached scan for root if nothing tracked has
// changed since it was taken; otherwise it performs (and caches) a fresh
// scan. force bypasses the cache entirely.
func (c *Cache) ScanIncremental(root string, force bool) (*FileScan, bool, error) {
	c.mu.Lock()
	prior, ok := c.scans[root]
	c.mu.Unlock()

	if ok && !force && !anyFileChangedSince(prior) {
		return prior, true, nil
	}

	fresh, err := Scan(root)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	c.scans[root] = fresh
	c.mu.Unlock()
	return fresh, false, nil
}

func anyFileChangedSince(scan *FileScan) bool {
	for path, entry := range scan.byPath {
		info, err := os.Stat(path)
		if err != nil {
			return true // file disappeared: scan is stale
		}
		if info.ModTime().After(entry.ModTime) {
			return true
		}
	}
	return false
}

// CachedGraph returns the graph cached for root, if any.
func (c *Cache) CachedGraph(root string) (*Graph, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.graphs[root]
	return g, ok
}

func (c *Cache) StoreGraph(root string, g *Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graphs[root] = g
}

// Invalidate drops the scan and graph cached for root, used by the
// orchestrator's --force-refresh and by clean builds.
func (c *Cache) Invalidate(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scans, root)
	delete(c.graphs, root)
}

// Stats reports cache occupancy for the daemon's cache_stats callback.
type Stats struct {
	ScannedRoots int
	CachedGraphs int
	AsOf         time.Time
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{ScannedRoots: len(c.scans), CachedGraphs: len(c.graphs), AsOf: time.Now()}
}
