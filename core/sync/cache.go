package sync

import "sync"

// Lookup caches resolved identifiers for slowly-changing reference data
// (campaigns, custom fields, option groups and values, location types,
// membership statuses). Entries live for the whole process; there is no
// eviction and no TTL. The zero identifier is a regular cached value and
// marks a permanent "not found".
type Lookup interface {
	// Resolve returns the cached identifier for (category, key), if present.
	Resolve(category, key string) (int64, bool)
	// Store inserts or overwrites the identifier for (category, key).
	Store(category, key string, id int64)
}

// NewLookup creates an empty in-memory lookup cache safe for concurrent use.
func NewLookup() Lookup {
	return &memoryLookup{
		entries: make(map[string]map[string]int64),
	}
}

type memoryLookup struct {
	mu      sync.RWMutex
	entries map[string]map[string]int64
}

func (l *memoryLookup) Resolve(category, key string) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byKey, ok := l.entries[category]
	if !ok {
		return 0, false
	}
	id, ok := byKey[key]
	return id, ok
}

func (l *memoryLookup) Store(category, key string, id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byKey, ok := l.entries[category]
	if !ok {
		// The category map is created and populated under the same lock, so
		// readers never observe a category without its key map.
		byKey = make(map[string]int64)
		l.entries[category] = byKey
	}
	byKey[key] = id
}
