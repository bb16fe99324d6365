// Package store persists the full record set of a queue. The engine treats
// every operation as load-mutate-save and never assumes partial updates, so
// adapters only need two data operations plus a store-scoped exclusive lock
// around the whole cycle.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"venq/common"
)

type MessageStore interface {
	// Acquire takes the store-scoped exclusive lock that serializes one full
	// load-mutate-save cycle. The wait is bounded by the context; on timeout
	// the operation fails as retryable instead of hanging. The returned
	// release must be called exactly once.
	Acquire(ctx context.Context) (release func(), err error)

	// Load returns the full record set in insertion order.
	Load(ctx context.Context) ([]common.Message, error)

	// Save replaces the full record set atomically: concurrent readers see
	// either the previous or the new set, never an interleaving.
	Save(ctx context.Context, msgs []common.Message) error

	// HealthCheck reports whether the backing medium is reachable.
	HealthCheck(ctx context.Context) bool

	// Backing describes the persisted location (file path, db path, endpoint).
	Backing() string

	Close() error
}

// RecordsETag derives a content-addressed entity tag for a record set. The
// remote adapter and the records endpoint use it for optimistic concurrency:
// a save against a set that changed since it was loaded is rejected.
func RecordsETag(msgs []common.Message) string {
	h := fnv.New64a()
	for i := range msgs {
		h.Write([]byte(msgs[i].ID))
		h.Write([]byte{0})
		h.Write([]byte(msgs[i].CurrentReceiptHandle))
		h.Write([]byte{0})
		raw, _ := json.Marshal(msgs[i])
		h.Write(raw)
	}
	return fmt.Sprintf("%q", fmt.Sprintf("%d-%x", len(msgs), h.Sum64()))
}
