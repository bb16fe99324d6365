package common

import (
	"encoding/json"
	"time"
)

// Message is the persisted queue record. Visibility is derived from
// InvisibleUntil compared against the current time, there is no stored
// visibility flag that could go stale.
type Message struct {
	ID                   string          `json:"id"`
	Body                 json.RawMessage `json:"body"`
	CreatedAt            time.Time       `json:"created_at"`
	ReceiveCount         int             `json:"receive_count"`
	FirstReceivedAt      *time.Time      `json:"first_received_at,omitempty"`
	InvisibleUntil       *time.Time      `json:"invisible_until,omitempty"`
	CurrentReceiptHandle string          `json:"current_receipt_handle,omitempty"`
}

// VisibleAt reports whether the message is visible at the given instant.
// An InvisibleUntil in the past counts as visible (lazy expiry).
func (m *Message) VisibleAt(now time.Time) bool {
	return m.InvisibleUntil == nil || !now.Before(*m.InvisibleUntil)
}

// ReceiveOptions controls a single receive call.
type ReceiveOptions struct {
	MaxMessages        int
	VisibilityTimeout  time.Duration
	DeleteAfterReceive bool
	OnlyNew            bool
}

// ReceivedMessage is a Message as emitted by receive: the record fields plus
// the receipt handle issued for this receive. ReceiptHandle is empty when the
// message was auto-deleted on receive.
type ReceivedMessage struct {
	ID              string          `json:"id"`
	Body            json.RawMessage `json:"body"`
	CreatedAt       time.Time       `json:"created_at"`
	ReceiveCount    int             `json:"receive_count"`
	FirstReceivedAt *time.Time      `json:"first_received_at,omitempty"`
	ReceiptHandle   string          `json:"receipt_handle,omitempty"`
}

// QueueStats is the snapshot reported by the stats operation, computed after
// expired visibility timeouts have been cleaned up.
type QueueStats struct {
	Total             int    `json:"total"`
	Visible           int    `json:"visible"`
	Invisible         int    `json:"invisible"`
	NeverReceived     int    `json:"never_received"`
	TotalReceiveCount int    `json:"total_receive_count"`
	Backing           string `json:"backing,omitempty"`
}
