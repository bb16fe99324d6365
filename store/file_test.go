package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"venq/common"

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

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "queue.json"), time.Second)
	require.NoError(t, err)
	return fileStore
}

func testMessages() []common.Message {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(30 * time.Second)
	return []common.Message{
		{
			ID:        "a",
			Body:      json.RawMessage(`{"x":1}`),
			CreatedAt: now,
		},
		{
			ID:                   "b",
			Body:                 json.RawMessage(`{"y":"z"}`),
			CreatedAt:            now,
			ReceiveCount:         2,
			FirstReceivedAt:      &now,
			InvisibleUntil:       &until,
			CurrentReceiptHandle: "rcpt-test",
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	fileStore := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, fileStore.Save(ctx, testMessages()))

	loaded, err := fileStore.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "a", loaded[0].ID)
	assert.JSONEq(t, `{"x":1}`, string(loaded[0].Body))
	assert.Equal(t, 0, loaded[0].ReceiveCount)
	assert.Nil(t, loaded[0].FirstReceivedAt)
	assert.Nil(t, loaded[0].InvisibleUntil)

	assert.Equal(t, "b", loaded[1].ID)
	assert.Equal(t, 2, loaded[1].ReceiveCount)
	require.NotNil(t, loaded[1].InvisibleUntil)
	assert.True(t, loaded[1].InvisibleUntil.Equal(testMessages()[1].InvisibleUntil.UTC()))
	assert.Equal(t, "rcpt-test", loaded[1].CurrentReceiptHandle)
}

func TestFileStoreLoadMissingFileIsEmpty(t *testing.T) {
	fileStore := newTestFileStore(t)

	loaded, err := fileStore.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStoreLoadEmptyFileIsEmpty(t *testing.T) {
	fileStore := newTestFileStore(t)
	require.NoError(t, os.WriteFile(fileStore.Backing(), []byte{}, 0644))

	loaded, err := fileStore.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestFileStoreLoadCorruptFileFails(t *testing.T) {
	fileStore := newTestFileStore(t)
	require.NoError(t, os.WriteFile(fileStore.Backing(), []byte(`{"not":"an array`), 0644))

	_, err := fileStore.Load(context.Background())
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestFileStoreSaveNilWritesEmptyArray(t *testing.T) {
	fileStore := newTestFileStore(t)
	ctx := context.Background()

	require.NoError(t, fileStore.Save(ctx, nil))

	content, err := os.ReadFile(fileStore.Backing())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(content))
}

func TestFileStoreAcquireRelease(t *testing.T) {
	fileStore := newTestFileStore(t)
	ctx := context.Background()

	release, err := fileStore.Acquire(ctx)
	require.NoError(t, err)
	release()

	// reacquirable after release
	release, err = fileStore.Acquire(ctx)
	require.NoError(t, err)
	release()
}

func TestFileStoreHealthCheck(t *testing.T) {
	fileStore := newTestFileStore(t)
	ctx := context.Background()

	// missing file counts as healthy: the queue just never persisted anything
	assert.True(t, fileStore.HealthCheck(ctx))

	require.NoError(t, fileStore.Save(ctx, testMessages()))
	assert.True(t, fileStore.HealthCheck(ctx))

	require.NoError(t, os.WriteFile(fileStore.Backing(), []byte("garbage"), 0644))
	assert.False(t, fileStore.HealthCheck(ctx))
}
