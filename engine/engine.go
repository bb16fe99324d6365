// Package engine implements the visibility-timeout lifecycle over a snapshot
// of queue records. All operations are pure with respect to time: "now" comes
// from an injectable clock, and expired visibility windows are cleaned up
// lazily at the start of every operation instead of by a background sweep.
package engine

import (
	"encoding/json"
	"time"

	"venq/common"
)

type Engine struct {
	now       func() time.Time
	newHandle func() string
}

func New() *Engine {
	return &Engine{
		now:       time.Now,
		newHandle: newReceiptHandle,
	}
}

// NewWithClock builds an engine with a custom clock and handle generator.
// A nil newHandle falls back to the default generator.
func NewWithClock(now func() time.Time, newHandle func() string) *Engine {
	if newHandle == nil {
		newHandle = newReceiptHandle
	}
	return &Engine{
		now:       now,
		newHandle: newHandle,
	}
}

// Cleanup makes every record whose invisibility window has expired visible
// again by clearing invisible_until together with its receipt handle. It is
// idempotent and runs implicitly at the start of every other operation.
func (e *Engine) Cleanup(msgs []common.Message) ([]common.Message, bool) {
	now := e.now()
	changed := false
	for i := range msgs {
		if msgs[i].InvisibleUntil != nil && !msgs[i].InvisibleUntil.After(now) {
			msgs[i].InvisibleUntil = nil
			msgs[i].CurrentReceiptHandle = ""
			changed = true
		}
	}
	return msgs, changed
}

// Add appends a new record, visible immediately with zeroed counters.
// Adding an id that is already present is an idempotent no-op.
func (e *Engine) Add(msgs []common.Message, id string, body json.RawMessage) ([]common.Message, bool, bool) {
	msgs, changed := e.Cleanup(msgs)
	for i := range msgs {
		if msgs[i].ID == id {
			return msgs, false, changed
		}
	}
	msgs = append(msgs, common.Message{
		ID:        id,
		Body:      body,
		CreatedAt: e.now().UTC(),
	})
	return msgs, true, true
}

// Receive selects up to MaxMessages visible records in insertion order,
// increments their receive counters and either deletes them (delete-after-receive)
// or hides them for the visibility timeout under a freshly issued receipt handle.
// Non-positive MaxMessages, or a non-positive timeout without delete-after-receive,
// yields an empty result rather than an error.
func (e *Engine) Receive(msgs []common.Message, opts common.ReceiveOptions) ([]common.Message, []common.ReceivedMessage, bool) {
	msgs, changed := e.Cleanup(msgs)

	if opts.MaxMessages <= 0 {
		return msgs, nil, changed
	}
	if opts.VisibilityTimeout <= 0 && !opts.DeleteAfterReceive {
		return msgs, nil, changed
	}
	maxMessages := opts.MaxMessages
	if maxMessages > common.MaxMessagesPerReceive {
		maxMessages = common.MaxMessagesPerReceive
	}

	now := e.now().UTC()
	var received []common.ReceivedMessage
	var toDelete map[string]bool

	for i := range msgs {
		if len(received) == maxMessages {
			break
		}
		if msgs[i].InvisibleUntil != nil {
			continue
		}
		if opts.OnlyNew && msgs[i].ReceiveCount > 0 {
			continue
		}

		msgs[i].ReceiveCount++
		if msgs[i].FirstReceivedAt == nil {
			firstReceivedAt := now
			msgs[i].FirstReceivedAt = &firstReceivedAt
		}

		emitted := common.ReceivedMessage{
			ID:              msgs[i].ID,
			Body:            msgs[i].Body,
			CreatedAt:       msgs[i].CreatedAt,
			ReceiveCount:    msgs[i].ReceiveCount,
			FirstReceivedAt: msgs[i].FirstReceivedAt,
		}

		if opts.DeleteAfterReceive {
			if toDelete == nil {
				toDelete = make(map[string]bool)
			}
			toDelete[msgs[i].ID] = true
		} else {
			invisibleUntil := now.Add(opts.VisibilityTimeout)
			msgs[i].InvisibleUntil = &invisibleUntil
			msgs[i].CurrentReceiptHandle = e.newHandle()
			emitted.ReceiptHandle = msgs[i].CurrentReceiptHandle
		}
		received = append(received, emitted)
	}

	if len(toDelete) > 0 {
		kept := msgs[:0]
		for _, msg := range msgs {
			if !toDelete[msg.ID] {
				kept = append(kept, msg)
			}
		}
		msgs = kept
	}

	return msgs, received, changed || len(received) > 0
}

// DeleteByHandle removes the record whose current receipt handle matches
// exactly. A handle that was never issued, was superseded by a later receive,
// or was invalidated by expiry simply reports false.
func (e *Engine) DeleteByHandle(msgs []common.Message, handle string) ([]common.Message, bool, bool) {
	msgs, changed := e.Cleanup(msgs)
	if handle == "" {
		return msgs, false, changed
	}
	for i := range msgs {
		if msgs[i].CurrentReceiptHandle == handle {
			msgs = append(msgs[:i], msgs[i+1:]...)
			return msgs, true, true
		}
	}
	return msgs, false, changed
}

// DeleteByID removes a record by primary key regardless of its visibility
// state. It bypasses the receipt-handle safety check, so a concurrently
// processing consumer will lose the message.
func (e *Engine) DeleteByID(msgs []common.Message, id string) ([]common.Message, bool, bool) {
	msgs, changed := e.Cleanup(msgs)
	for i := range msgs {
		if msgs[i].ID == id {
			msgs = append(msgs[:i], msgs[i+1:]...)
			return msgs, true, true
		}
	}
	return msgs, false, changed
}

// Update replaces the record's body only. Lifecycle fields (receive count,
// visibility, handle, timestamps) are untouched.
func (e *Engine) Update(msgs []common.Message, id string, body json.RawMessage) ([]common.Message, bool, bool) {
	msgs, changed := e.Cleanup(msgs)
	for i := range msgs {
		if msgs[i].ID == id {
			msgs[i].Body = body
			return msgs, true, true
		}
	}
	return msgs, false, changed
}

// ExistsBatch returns the subset of ids present in the record set, in the
// order they were asked for. Single pass over each side, no per-id scans.
func (e *Engine) ExistsBatch(msgs []common.Message, ids []string) []string {
	present := make(map[string]bool, len(msgs))
	for i := range msgs {
		present[msgs[i].ID] = true
	}

	existing := make([]string, 0, len(ids))
	for _, id := range ids {
		if present[id] {
			existing = append(existing, id)
		}
	}
	return existing
}

// Stats computes queue counters after cleanup.
func (e *Engine) Stats(msgs []common.Message) ([]common.Message, common.QueueStats, bool) {
	msgs, changed := e.Cleanup(msgs)

	stats := common.QueueStats{Total: len(msgs)}
	for i := range msgs {
		if msgs[i].InvisibleUntil == nil {
			stats.Visible++
		} else {
			stats.Invisible++
		}
		if msgs[i].ReceiveCount == 0 {
			stats.NeverReceived++
		}
		stats.TotalReceiveCount += msgs[i].ReceiveCount
	}
	return msgs, stats, changed
}
