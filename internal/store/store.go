// Package store defines the capability set this service expects from the
// managed document store: point reads, filtered queries, push-based
// subscriptions and keyed/unkeyed writes. Adapters classify failures with
// the sentinel errors below; callers branch with errors.Is, never on
// message text.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when no document exists under the key.
	ErrNotFound = errors.New("not found")
	// ErrMissingIndex is returned by Query when a filter+order combination
	// has no provisioned composite index. Index provisioning is asynchronous
	// and out-of-band, so callers must be prepared to see this on any
	// ordered query.
	ErrMissingIndex = errors.New("missing index")
)

// Document is a raw stored document. Adapters inject the document key under
// "id" on every read; writes never need to carry it.
type Document map[string]any

type Op string

const (
	OpEq       Op = "=="
	OpContains Op = "array-contains"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

func Contains(field string, value any) Filter {
	return Filter{Field: field, Op: OpContains, Value: value}
}

type Order struct {
	Field string
	Desc  bool
}

type serverTimestamp struct{}

// ServerTimestamp is a write-time sentinel resolved by the adapter to the
// store clock at commit, so ordering across clients follows server arrival
// order rather than client wall clocks.
var ServerTimestamp any = serverTimestamp{}

type Store interface {
	// Get returns the document stored under key, or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Document, error)

	// Query returns every document matching filters. A nil order leaves
	// result order unspecified. Ordered queries that also filter require a
	// provisioned composite index and fail with ErrMissingIndex otherwise;
	// order-only queries ride the per-field indexes every collection has.
	// A limit of zero means no ceiling.
	Query(ctx context.Context, collection string, filters []Filter, order *Order, limit int64) ([]Document, error)

	// Subscribe opens a long-lived filtered listener. Every delivery hands
	// onSnapshot the full current result set, replacing the previous one.
	// Stream failures after setup go to onError; the listener stays
	// registered in its failed state. The returned release func must be
	// called exactly once when the consuming view goes away.
	Subscribe(ctx context.Context, collection string, filters []Filter, onSnapshot func([]Document), onError func(error)) (func(), error)

	// Put writes doc under key. With merge set, fields absent from doc keep
	// their stored values; without it the document is replaced. Upserts in
	// both modes.
	Put(ctx context.Context, collection, key string, doc Document, merge bool) error

	// Add stores doc under a fresh store-assigned key and returns it.
	Add(ctx context.Context, collection string, doc Document) (string, error)

	// ProvisionIndex builds the composite index for the given field
	// sequence (filter fields first, ordering field last). Maintenance
	// side-channel, not part of the runtime contract.
	ProvisionIndex(ctx context.Context, collection string, fields ...string) error
}

// resolveTimestamps copies doc with every ServerTimestamp sentinel replaced
// by now. Adapters call it once per write, so one commit gets one clock
// reading across all its fields.
func resolveTimestamps(doc Document, now time.Time) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		if _, ok := v.(serverTimestamp); ok {
			out[k] = now
			continue
		}
		out[k] = v
	}
	return out
}
