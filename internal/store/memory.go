package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements the full capability set in process. It backs the
// dev profile and the test suites, and emulates the managed store's index
// provisioning model so the fallback query path can be exercised without a
// real backend.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]map[string]Document // collection -> key -> doc
	subs    map[int]*memorySub
	nextSub int
	indexes *indexRegistry
	clock   func() time.Time
}

type memorySub struct {
	collection string
	filters    []Filter
	onSnapshot func([]Document)

	seq uint64 // last snapshot sequence issued, guarded by the store mutex

	deliverMu sync.Mutex
	delivered uint64 // highest sequence handed to onSnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string]map[string]Document),
		subs:    make(map[int]*memorySub),
		indexes: newIndexRegistry(),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the commit clock. Tests use it to get strictly
// increasing, deterministic server timestamps.
func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *MemoryStore) Get(ctx context.Context, collection, key string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneWithID(doc, key), nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters []Filter, order *Order, limit int64) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(collection, filters, order, limit)
}

func (s *MemoryStore) queryLocked(collection string, filters []Filter, order *Order, limit int64) ([]Document, error) {
	if order != nil && len(filters) > 0 && !s.indexes.has(collection, queryIndexFields(filters, order)) {
		return nil, ErrMissingIndex
	}
	out := make([]Document, 0)
	for key, doc := range s.data[collection] {
		if matchesAll(doc, filters) {
			out = append(out, cloneWithID(doc, key))
		}
	}
	if order != nil {
		sortByField(out, order.Field, order.Desc)
	} else {
		// map iteration order is random; pin it so repeated unordered
		// queries are at least stable
		sort.Slice(out, func(i, j int) bool {
			a, _ := out[i]["id"].(string)
			b, _ := out[j]["id"].(string)
			return a < b
		})
	}
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string, filters []Filter, onSnapshot func([]Document), onError func(error)) (func(), error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	sub := &memorySub{collection: collection, filters: filters, onSnapshot: onSnapshot}
	s.subs[id] = sub
	sub.seq++
	initial := pendingSnapshot{sub: sub, seq: sub.seq}
	var err error
	initial.docs, err = s.queryLocked(collection, filters, nil, 0)
	s.mu.Unlock()
	if err != nil {
		// unordered queries cannot miss an index; nothing else fails here
		return func() {}, err
	}
	deliver([]pendingSnapshot{initial})

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
	return release, nil
}

func (s *MemoryStore) Put(ctx context.Context, collection, key string, doc Document, merge bool) error {
	s.mu.Lock()
	resolved := resolveTimestamps(doc, s.clock())
	col := s.collectionLocked(collection)
	if existing, ok := col[key]; ok && merge {
		next := make(Document, len(existing)+len(resolved))
		for k, v := range existing {
			next[k] = v
		}
		for k, v := range resolved {
			next[k] = v
		}
		col[key] = next
	} else {
		col[key] = cloneDoc(resolved)
	}
	pending := s.snapshotsLocked(collection)
	s.mu.Unlock()
	deliver(pending)
	return nil
}

func (s *MemoryStore) Add(ctx context.Context, collection string, doc Document) (string, error) {
	key := uuid.NewString()
	s.mu.Lock()
	s.collectionLocked(collection)[key] = cloneDoc(resolveTimestamps(doc, s.clock()))
	pending := s.snapshotsLocked(collection)
	s.mu.Unlock()
	deliver(pending)
	return key, nil
}

func (s *MemoryStore) ProvisionIndex(ctx context.Context, collection string, fields ...string) error {
	s.indexes.add(collection, fields)
	return nil
}

func (s *MemoryStore) collectionLocked(collection string) map[string]Document {
	col, ok := s.data[collection]
	if !ok {
		col = make(map[string]Document)
		s.data[collection] = col
	}
	return col
}

type pendingSnapshot struct {
	sub  *memorySub
	seq  uint64
	docs []Document
}

// snapshotsLocked recomputes the visible set for every listener on the
// changed collection and stamps each snapshot with the subscription's next
// sequence number. Callbacks run after the lock is dropped so they can call
// back into the store.
func (s *MemoryStore) snapshotsLocked(collection string) []pendingSnapshot {
	var pending []pendingSnapshot
	for _, sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		docs, err := s.queryLocked(collection, sub.filters, nil, 0)
		if err != nil {
			continue
		}
		sub.seq++
		pending = append(pending, pendingSnapshot{sub: sub, seq: sub.seq, docs: docs})
	}
	return pending
}

// deliver invokes the callbacks in sequence order per subscription. A
// snapshot that lost the race to a newer one is dropped rather than handed
// over stale, so the last delivery always reflects the newest computed set.
func deliver(pending []pendingSnapshot) {
	for _, p := range pending {
		p.sub.deliverMu.Lock()
		if p.seq > p.sub.delivered {
			p.sub.delivered = p.seq
			p.sub.onSnapshot(p.docs)
		}
		p.sub.deliverMu.Unlock()
	}
}

func matchesAll(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !matches(doc, f) {
			return false
		}
	}
	return true
}

func matches(doc Document, f Filter) bool {
	v, ok := doc[f.Field]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return v == f.Value
	case OpContains:
		switch arr := v.(type) {
		case []string:
			for _, e := range arr {
				if e == f.Value {
					return true
				}
			}
		case []any:
			for _, e := range arr {
				if e == f.Value {
					return true
				}
			}
		}
		return false
	}
	return false
}

func sortByField(docs []Document, field string, desc bool) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, aok := docs[i][field].(time.Time)
		b, bok := docs[j][field].(time.Time)
		if aok && bok {
			if desc {
				return a.After(b)
			}
			return a.Before(b)
		}
		// documents without the ordering field sort last
		return aok && !bok
	})
}

func cloneDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func cloneWithID(doc Document, key string) Document {
	out := cloneDoc(doc)
	out["id"] = key
	return out
}
