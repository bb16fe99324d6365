package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"venq/common"

	"github.com/rs/zerolog/log"
)

// RemoteStore maps Load/Save onto a per-queue records resource of a venq
// server, so a thin client gets the exact same engine semantics as the
// embedded adapters. Each call is one authenticated HTTP request with a
// bounded timeout. The server hands out an entity tag on load; save sends it
// back via If-Match, so a cycle that raced another client fails with a
// retryable conflict instead of overwriting its write.
type RemoteStore struct {
	baseURL string
	queue   string
	apiKey  string
	client  *http.Client

	mu   sync.Mutex
	etag string
}

func NewRemoteStore(baseURL string, queue string, apiKey string, timeout time.Duration) *RemoteStore {
	return &RemoteStore{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		queue:   queue,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Acquire only serializes this client's own cycles: cross-client atomicity
// comes from the server's request serialization plus the If-Match check.
func (rs *RemoteStore) Acquire(ctx context.Context) (func(), error) {
	rs.mu.Lock()
	return rs.mu.Unlock, nil
}

func (rs *RemoteStore) Load(ctx context.Context) ([]common.Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rs.recordsURL(), nil)
	if err != nil {
		return nil, common.ErrInternal
	}
	req.Header.Set("X-API-Key", rs.apiKey)

	resp, err := rs.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("queue", rs.queue).Msg("failed to load records from remote store")
		return nil, common.ErrStoreUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error().Int("status", resp.StatusCode).Str("queue", rs.queue).Msg("remote store rejected load")
		return nil, common.ErrStoreUnavailable
	}

	var msgs []common.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		log.Error().Err(err).Str("queue", rs.queue).Msg("failed to decode records from remote store")
		return nil, common.ErrStoreUnavailable
	}
	if msgs == nil {
		msgs = []common.Message{}
	}

	rs.etag = resp.Header.Get("ETag")
	return msgs, nil
}

func (rs *RemoteStore) Save(ctx context.Context, msgs []common.Message) error {
	if msgs == nil {
		msgs = []common.Message{}
	}
	body, err := json.Marshal(msgs)
	if err != nil {
		return common.ErrInternal
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, rs.recordsURL(), bytes.NewReader(body))
	if err != nil {
		return common.ErrInternal
	}
	req.Header.Set("X-API-Key", rs.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if rs.etag != "" {
		req.Header.Set("If-Match", rs.etag)
	}

	resp, err := rs.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("queue", rs.queue).Msg("failed to save records to remote store")
		return common.ErrStoreUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPreconditionFailed:
		log.Warn().Str("queue", rs.queue).Msg("records changed since load, save rejected")
		return common.ErrStoreConflict
	case resp.StatusCode >= 300:
		log.Error().Int("status", resp.StatusCode).Str("queue", rs.queue).Msg("remote store rejected save")
		return common.ErrStoreUnavailable
	}

	rs.etag = resp.Header.Get("ETag")
	return nil
}

func (rs *RemoteStore) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rs.baseURL+"/healthcheck", nil)
	if err != nil {
		return false
	}

	resp, err := rs.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 300
}

func (rs *RemoteStore) Backing() string {
	return rs.recordsURL()
}

func (rs *RemoteStore) Close() error {
	rs.client.CloseIdleConnections()
	return nil
}

func (rs *RemoteStore) recordsURL() string {
	return fmt.Sprintf("%s/api/v1/queues/%s/records", rs.baseURL, rs.queue)
}

var _ MessageStore = (*RemoteStore)(nil)
