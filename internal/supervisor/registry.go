package supervisor

import (
	"sort"
	"sync"

	"github.com/MrSnakeDoc/voicectl/internal/catalog"
)

// Registry maps service names to records. Records are created lazily and
// never removed. It is safe for concurrent use.
type Registry struct {
	catalog *catalog.Catalog

	mu      sync.Mutex
	records map[string]*Record
}

// NewRegistry creates an empty registry over the given catalog.
func NewRegistry(c *catalog.Catalog) *Registry {
	return &Registry{
		catalog: c,
		records: make(map[string]*Record),
	}
}

// GetOrCreate returns the record for name, creating it on first use.
// Concurrent first calls for the same name get the same record.
func (r *Registry) GetOrCreate(name string) (*Record, error) {
	def, ok := r.catalog.Lookup(name)
	if !ok {
		return nil, &UnknownServiceError{Name: name, Known: r.catalog.Names()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[name]
	if !ok {
		rec = newRecord(def)
		r.records[name] = rec
	}
	return rec, nil
}

// Lookup returns an existing record without creating one.
func (r *Registry) Lookup(name string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	return rec, ok
}

// Records returns the records created so far, ordered by name.
func (r *Registry) Records() []*Record {
	r.mu.Lock()
	out := make([]*Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns every known service name, whether or not a record exists.
func (r *Registry) Names() []string {
	return r.catalog.Names()
}

// Catalog returns the catalog backing the registry.
func (r *Registry) Catalog() *catalog.Catalog {
	return r.catalog
}
