package engine

import "github.com/google/uuid"

const receiptHandlePrefix = "rcpt-"

// newReceiptHandle issues an opaque one-time token for a single receive event.
// Every issuance is unique; callers must compare handles by exact match and
// never parse them.
func newReceiptHandle() string {
	return receiptHandlePrefix + uuid.NewString()
}
