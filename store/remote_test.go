package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"venq/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecordsServer mimics the venq server's per-queue records resource with
// entity-tag checking.
type fakeRecordsServer struct {
	mu     sync.Mutex
	msgs   []common.Message
	apiKey string
}

func (frs *fakeRecordsServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v1/queues/q1/records", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("X-API-Key") != frs.apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		frs.mu.Lock()
		defer frs.mu.Unlock()

		switch req.Method {
		case http.MethodGet:
			w.Header().Set("ETag", RecordsETag(frs.msgs))
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(frs.msgs)
		case http.MethodPut:
			if ifMatch := req.Header.Get("If-Match"); ifMatch != "" && ifMatch != RecordsETag(frs.msgs) {
				w.WriteHeader(http.StatusPreconditionFailed)
				return
			}
			var incoming []common.Message
			if err := json.NewDecoder(req.Body).Decode(&incoming); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			frs.msgs = incoming
			w.Header().Set("ETag", RecordsETag(frs.msgs))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	return mux
}

func TestRemoteStoreLoadSaveRoundTrip(t *testing.T) {
	fake := &fakeRecordsServer{apiKey: "test-secret"}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	remoteStore := NewRemoteStore(server.URL, "q1", "test-secret", time.Second)
	defer remoteStore.Close()
	ctx := context.Background()

	release, err := remoteStore.Acquire(ctx)
	require.NoError(t, err)
	defer release()

	loaded, err := remoteStore.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	msgs := testMessages()
	require.NoError(t, remoteStore.Save(ctx, msgs))

	loaded, err = remoteStore.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "a", loaded[0].ID)
	assert.Equal(t, "rcpt-test", loaded[1].CurrentReceiptHandle)
}

func TestRemoteStoreSaveConflict(t *testing.T) {
	fake := &fakeRecordsServer{apiKey: "test-secret"}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	remoteStore := NewRemoteStore(server.URL, "q1", "test-secret", time.Second)
	defer remoteStore.Close()
	ctx := context.Background()

	_, err := remoteStore.Load(ctx)
	require.NoError(t, err)

	// another client changes the set after our load
	fake.mu.Lock()
	fake.msgs = testMessages()
	fake.mu.Unlock()

	err = remoteStore.Save(ctx, nil)
	assert.ErrorIs(t, err, common.ErrStoreConflict)
}

func TestRemoteStoreRejectedAuthIsUnavailable(t *testing.T) {
	fake := &fakeRecordsServer{apiKey: "right-key"}
	server := httptest.NewServer(fake.handler())
	defer server.Close()

	remoteStore := NewRemoteStore(server.URL, "q1", "wrong-key", time.Second)
	defer remoteStore.Close()

	_, err := remoteStore.Load(context.Background())
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestRemoteStoreHealthCheck(t *testing.T) {
	fake := &fakeRecordsServer{apiKey: "test-secret"}
	server := httptest.NewServer(fake.handler())

	remoteStore := NewRemoteStore(server.URL, "q1", "test-secret", time.Second)
	defer remoteStore.Close()

	assert.True(t, remoteStore.HealthCheck(context.Background()))

	server.Close()
	assert.False(t, remoteStore.HealthCheck(context.Background()))
}
