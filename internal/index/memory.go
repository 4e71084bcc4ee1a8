package index

import (
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/voicectl/internal/health"
)

// MemoryIndex keeps the latest health result per service.
// It is the source the API reads; Redis only mirrors it.
type MemoryIndex struct {
	mu         sync.RWMutex
	results    map[string]health.Result // service -> latest result
	lastUpdate time.Time                // Timestamp of last write
}

// NewMemoryIndex creates a new memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		results: make(map[string]health.Result),
	}
}

// Put stores res as the latest result for its service
func (idx *MemoryIndex) Put(res health.Result) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.results[res.Service] = res
	idx.lastUpdate = time.Now()
}

// Replace swaps the whole content of the index
func (idx *MemoryIndex) Replace(results []health.Result) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.results = make(map[string]health.Result, len(results))
	for _, res := range results {
		idx.results[res.Service] = res
	}
	idx.lastUpdate = time.Now()
}

// Get retrieves the latest result for a service
func (idx *MemoryIndex) Get(service string) (health.Result, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	res, ok := idx.results[service]
	return res, ok
}

// All returns every stored result ordered by service name
func (idx *MemoryIndex) All() []health.Result {
	idx.mu.RLock()
	out := make([]health.Result, 0, len(idx.results))
	for _, res := range idx.results {
		out = append(out, res)
	}
	idx.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Delete removes the result of a service
func (idx *MemoryIndex) Delete(service string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.results, service)
}

// Count returns the number of services with a stored result
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.results)
}

// LastUpdate returns the timestamp of the last write
func (idx *MemoryIndex) LastUpdate() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastUpdate
}
