package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"venq/common"
	"venq/configs"
	"venq/engine"
	"venq/metrics"
	"venq/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runs before all tests and configures the test environment
func TestMain(m *testing.M) {
	// we do not need logging during the tests
	zerolog.SetGlobalLevel(zerolog.Disabled)

	code := m.Run()

	os.Exit(code)
}

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (fc *fakeClock) Now() time.Time {
	return fc.now
}

func (fc *fakeClock) Advance(d time.Duration) {
	fc.now = fc.now.Add(d)
}

func newTestQueueService(t *testing.T, fc *fakeClock) *QueueService {
	t.Helper()

	fileStore, err := store.NewFileStore(filepath.Join(t.TempDir(), "test-queue.json"), time.Second)
	require.NoError(t, err)

	eng := engine.NewWithClock(fc.Now, nil)
	return NewQueueServiceWithEngine("test-queue", fileStore, eng, configs.NewAppConfig(), metrics.NewMetricsService(false))
}

func TestAddThenGetRoundTrip(t *testing.T) {
	qs := newTestQueueService(t, newFakeClock())
	ctx := context.Background()

	id, err := qs.Add(ctx, json.RawMessage(`{"x":1}`), "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msg, err := qs.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.JSONEq(t, `{"x":1}`, string(msg.Body))
	assert.Equal(t, 0, msg.ReceiveCount)
	assert.Nil(t, msg.FirstReceivedAt)
	assert.Nil(t, msg.InvisibleUntil)

	has, err := qs.Has(ctx, id)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = qs.Has(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAddValidatesBody(t *testing.T) {
	qs := newTestQueueService(t, newFakeClock())
	ctx := context.Background()

	_, err := qs.Add(ctx, json.RawMessage(`{"broken":`), "")
	assert.ErrorIs(t, err, common.ErrBadRequestInvalidBody)

	_, err = qs.Add(ctx, nil, "")
	assert.ErrorIs(t, err, common.ErrBadRequestInvalidBody)

	_, err = qs.Add(ctx, json.RawMessage(`[1,2,3]`), "")
	assert.ErrorIs(t, err, common.ErrBadRequestBodyNotObject)
}

func TestAddWithExistingIDIsNoOp(t *testing.T) {
	qs := newTestQueueService(t, newFakeClock())
	ctx := context.Background()

	id, err := qs.Add(ctx, json.RawMessage(`{"x":1}`), "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)

	id, err = qs.Add(ctx, json.RawMessage(`{"x":2}`), "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)

	msg, err := qs.Get(ctx, "fixed-id")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.JSONEq(t, `{"x":1}`, string(msg.Body), "second add must not overwrite")

	all, err := qs.GetAll(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReceiveLifecycleScenario(t *testing.T) {
	fc := newFakeClock()
	qs := newTestQueueService(t, fc)
	ctx := context.Background()

	id, err := qs.Add(ctx, json.RawMessage(`{"x":1}`), "")
	require.NoError(t, err)

	opts := common.ReceiveOptions{MaxMessages: 1, VisibilityTimeout: 5 * time.Second}

	first, err := qs.Receive(ctx, opts)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, id, first[0].ID)
	assert.Equal(t, 1, first[0].ReceiveCount)
	require.NotEmpty(t, first[0].ReceiptHandle)

	// immediately after: invisible
	second, err := qs.Receive(ctx, opts)
	require.NoError(t, err)
	assert.Empty(t, second)

	// after the window expires: redelivered with a fresh handle
	fc.Advance(5 * time.Second)
	third, err := qs.Receive(ctx, opts)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, id, third[0].ID)
	assert.Equal(t, 2, third[0].ReceiveCount)
	assert.NotEqual(t, first[0].ReceiptHandle, third[0].ReceiptHandle)
}

func TestDeleteByHandleExactlyOnce(t *testing.T) {
	fc := newFakeClock()
	qs := newTestQueueService(t, fc)
	ctx := context.Background()

	id, err := qs.Add(ctx, json.RawMessage(`{"x":1}`), "")
	require.NoError(t, err)

	received, err := qs.Receive(ctx, common.ReceiveOptions{MaxMessages: 1, VisibilityTimeout: time.Minute})
	require.NoError(t, err)
	require.Len(t, received, 1)

	deleted, err := qs.DeleteByHandle(ctx, received[0].ReceiptHandle)
	require.NoError(t, err)
	assert.True(t, deleted)

	// the record is gone and the handle is dead
	deleted, err = qs.DeleteByHandle(ctx, received[0].ReceiptHandle)
	require.NoError(t, err)
	assert.False(t, deleted)

	msg, err := qs.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestDeleteAfterReceiveRemovesPermanently(t *testing.T) {
	qs := newTestQueueService(t, newFakeClock())
	ctx := context.Background()

	id, err := qs.Add(ctx, json.RawMessage(`{"x":1}`), "")
	require.NoError(t, err)

	received, err := qs.Receive(ctx, common.ReceiveOptions{MaxMessages: 1, DeleteAfterReceive: true})
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Empty(t, received[0].ReceiptHandle)

	msg, err := qs.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestUpdateKeepsLifecycleFields(t *testing.T) {
	fc := newFakeClock()
	qs := newTestQueueService(t, fc)
	ctx := context.Background()

	id, err := qs.Add(ctx, json.RawMessage(`{"x":1}`), "")
	require.NoError(t, err)

	received, err := qs.Receive(ctx, common.ReceiveOptions{MaxMessages: 1, VisibilityTimeout: time.Hour})
	require.NoError(t, err)
	require.Len(t, received, 1)

	updated, err := qs.Update(ctx, id, json.RawMessage(`{"x":2}`))
	require.NoError(t, err)
	assert.True(t, updated)

	msg, err := qs.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.JSONEq(t, `{"x":2}`, string(msg.Body))
	assert.Equal(t, 1, msg.ReceiveCount)
	assert.NotNil(t, msg.InvisibleUntil, "update must not reset visibility")

	updated, err = qs.Update(ctx, "missing", json.RawMessage(`{"x":3}`))
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestExistsBatch(t *testing.T) {
	qs := newTestQueueService(t, newFakeClock())
	ctx := context.Background()

	for _, id := range []string{"a", "c"} {
		_, err := qs.Add(ctx, json.RawMessage(`{}`), id)
		require.NoError(t, err)
	}

	existing, err := qs.ExistsBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, existing)
}

func TestClearAndStats(t *testing.T) {
	fc := newFakeClock()
	qs := newTestQueueService(t, fc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := qs.Add(ctx, json.RawMessage(`{"n":1}`), "")
		require.NoError(t, err)
	}
	_, err := qs.Receive(ctx, common.ReceiveOptions{MaxMessages: 1, VisibilityTimeout: time.Minute})
	require.NoError(t, err)

	stats, err := qs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Visible)
	assert.Equal(t, 1, stats.Invisible)
	assert.Equal(t, 2, stats.NeverReceived)
	assert.Equal(t, 1, stats.TotalReceiveCount)
	assert.NotEmpty(t, stats.Backing)

	require.NoError(t, qs.Clear(ctx))

	stats, err = qs.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total)
}

func TestCleanupExpiredPersistsVisibilityReset(t *testing.T) {
	fc := newFakeClock()
	qs := newTestQueueService(t, fc)
	ctx := context.Background()

	id, err := qs.Add(ctx, json.RawMessage(`{"x":1}`), "")
	require.NoError(t, err)

	_, err = qs.Receive(ctx, common.ReceiveOptions{MaxMessages: 1, VisibilityTimeout: time.Second})
	require.NoError(t, err)

	fc.Advance(time.Second)
	require.NoError(t, qs.CleanupExpired(ctx))

	msg, err := qs.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Nil(t, msg.InvisibleUntil)
	assert.Empty(t, msg.CurrentReceiptHandle)
	assert.Equal(t, 1, msg.ReceiveCount)
}

func TestReplaceRecordsChecksEntityTag(t *testing.T) {
	qs := newTestQueueService(t, newFakeClock())
	ctx := context.Background()

	_, err := qs.Add(ctx, json.RawMessage(`{"x":1}`), "a")
	require.NoError(t, err)

	msgs, etag, err := qs.Records(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	// matching tag: accepted
	newTag, err := qs.ReplaceRecords(ctx, nil, etag)
	require.NoError(t, err)
	assert.NotEqual(t, etag, newTag)

	// stale tag: rejected as a conflict
	_, err = qs.ReplaceRecords(ctx, msgs, etag)
	assert.ErrorIs(t, err, common.ErrStoreConflict)
}

func TestReplaceRecordsValidatesInvariants(t *testing.T) {
	qs := newTestQueueService(t, newFakeClock())
	ctx := context.Background()

	until := time.Now().Add(time.Minute)
	badPairing := []common.Message{{
		ID:             "a",
		Body:           json.RawMessage(`{}`),
		CreatedAt:      time.Now(),
		InvisibleUntil: &until, // no handle alongside the window
	}}
	_, err := qs.ReplaceRecords(ctx, badPairing, "")
	assert.ErrorIs(t, err, common.ErrBadRequestInvalidRecords)

	duplicates := []common.Message{
		{ID: "a", Body: json.RawMessage(`{}`), CreatedAt: time.Now()},
		{ID: "a", Body: json.RawMessage(`{}`), CreatedAt: time.Now()},
	}
	_, err = qs.ReplaceRecords(ctx, duplicates, "")
	assert.ErrorIs(t, err, common.ErrBadRequestInvalidRecords)
}
