package store

import (
	"strings"
	"sync"
)

// indexRegistry tracks which composite indexes exist, keyed by collection
// and field sequence. Both adapters consult it before serving an ordered
// filtered query so the missing-index failure mode behaves the same
// everywhere.
type indexRegistry struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func newIndexRegistry() *indexRegistry {
	return &indexRegistry{keys: make(map[string]struct{})}
}

func indexKey(collection string, fields []string) string {
	return collection + "|" + strings.Join(fields, ",")
}

func (r *indexRegistry) add(collection string, fields []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[indexKey(collection, fields)] = struct{}{}
}

func (r *indexRegistry) has(collection string, fields []string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.keys[indexKey(collection, fields)]
	return ok
}

// queryIndexFields is the field sequence an ordered filtered query needs:
// filter fields in declaration order, ordering field last.
func queryIndexFields(filters []Filter, order *Order) []string {
	fields := make([]string, 0, len(filters)+1)
	for _, f := range filters {
		fields = append(fields, f.Field)
	}
	fields = append(fields, order.Field)
	return fields
}
