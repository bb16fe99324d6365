package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReceiptHandlesAreUniquePerIssuance(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		handle := newReceiptHandle()
		assert.NotEmpty(t, handle)
		assert.False(t, seen[handle], "handle issued twice: %s", handle)
		seen[handle] = true
	}
}
