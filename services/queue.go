package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"venq/common"
	"venq/configs"
	"venq/engine"
	"venq/metrics"
	"venq/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// QueueService is the public operation surface over one queue: it validates
// inputs, runs the lifecycle engine inside the store's load-mutate-save
// critical section and persists the result. Each call is its own atomic unit
// against the store; conflicts from the remote adapter's optimistic save are
// retried a bounded number of times.
type QueueService struct {
	queueName      string
	messageStore   store.MessageStore
	eng            *engine.Engine
	appConfigs     *configs.AppConfigs
	metricsService metrics.Service
}

func NewQueueService(queueName string, messageStore store.MessageStore, appConfigs *configs.AppConfigs, metricsService metrics.Service) *QueueService {
	return NewQueueServiceWithEngine(queueName, messageStore, engine.New(), appConfigs, metricsService)
}

// NewQueueServiceWithEngine lets tests supply an engine with a fake clock.
func NewQueueServiceWithEngine(queueName string, messageStore store.MessageStore, eng *engine.Engine, appConfigs *configs.AppConfigs, metricsService metrics.Service) *QueueService {
	return &QueueService{
		queueName:      queueName,
		messageStore:   messageStore,
		eng:            eng,
		appConfigs:     appConfigs,
		metricsService: metricsService,
	}
}

func (qs *QueueService) Add(ctx context.Context, body json.RawMessage, id string) (string, error) {
	if err := validateBody(body); err != nil {
		return "", err
	}

	if id == "" {
		messageId, err := uuid.NewV7()
		if err != nil {
			log.Error().Err(err).Msg("failed to generate new message ID")
			return "", common.ErrInternal
		}
		id = messageId.String()
	}

	var added bool
	err := qs.withRecords(ctx, func(msgs []common.Message) ([]common.Message, bool, error) {
		var changed bool
		msgs, added, changed = qs.eng.Add(msgs, id, body)
		return msgs, changed, nil
	})
	if err != nil {
		return "", err
	}

	if added {
		qs.metricsService.IncMessagesAddedTotalBy(1, qs.queueName)
	} else {
		log.Warn().Str("queue", qs.queueName).Str("message_id", id).Msg("message id already present, add is a no-op")
	}
	return id, nil
}

// GetAll returns the full record set, invisible messages included, after
// expired visibility windows have been cleaned up. A positive limit caps the
// result, zero means all.
func (qs *QueueService) GetAll(ctx context.Context, limit int) ([]common.Message, error) {
	var out []common.Message
	err := qs.withRecords(ctx, func(msgs []common.Message) ([]common.Message, bool, error) {
		msgs, changed := qs.eng.Cleanup(msgs)

		n := len(msgs)
		if limit > 0 && limit < n {
			n = limit
		}
		out = make([]common.Message, n)
		copy(out, msgs[:n])
		return msgs, changed, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (qs *QueueService) Get(ctx context.Context, id string) (*common.Message, error) {
	var found *common.Message
	err := qs.withRecords(ctx, func(msgs []common.Message) ([]common.Message, bool, error) {
		msgs, changed := qs.eng.Cleanup(msgs)
		for i := range msgs {
			if msgs[i].ID == id {
				msg := msgs[i]
				found = &msg
				break
			}
		}
		return msgs, changed, nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (qs *QueueService) Has(ctx context.Context, id string) (bool, error) {
	msg, err := qs.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return msg != nil, nil
}

// ExistsBatch returns the subset of ids present in the queue, in the order
// they were asked for.
func (qs *QueueService) ExistsBatch(ctx context.Context, ids []string) ([]string, error) {
	var existing []string
	err := qs.withRecords(ctx, func(msgs []common.Message) ([]common.Message, bool, error) {
		msgs, changed := qs.eng.Cleanup(msgs)
		existing = qs.eng.ExistsBatch(msgs, ids)
		return msgs, changed, nil
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

func (qs *QueueService) Receive(ctx context.Context, opts common.ReceiveOptions) ([]common.ReceivedMessage, error) {
	var received []common.ReceivedMessage
	err := qs.withRecords(ctx, func(msgs []common.Message) ([]common.Message, bool, error) {
		var changed bool
		msgs, received, changed = qs.eng.Receive(msgs, opts)
		return msgs, changed, nil
	})
	if err != nil {
		return nil, err
	}

	if len(received) > 0 {
		qs.metricsService.IncMessagesReceivedTotalBy(int64(len(received)), qs.queueName)
		if opts.DeleteAfterReceive {
			qs.metricsService.IncMessagesDeletedTotalBy(int64(len(received)), qs.queueName, metrics.DeletedAfterReceiveReason)
		}
	}
	return received, nil
}

// DeleteByHandle removes the record owning the receipt handle. False means
// the handle matched nothing: never issued, already consumed, superseded by a
// later receive, or invalidated by visibility expiry. The caller cannot tell
// these apart, so none of them is an error.
func (qs *QueueService) DeleteByHandle(ctx context.Context, handle string) (bool, error) {
	var deleted bool
	err := qs.withRecords(ctx, func(msgs []common.Message) ([]common.Message, bool, error) {
		var changed bool
		msgs, deleted, changed = qs.eng.DeleteByHandle(msgs, handle)
		return msgs, changed, nil
	})
	if err != nil {
		return false, err
	}

	if deleted {
		qs.metricsService.IncMessagesDeletedTotalBy(1, qs.queueName, metrics.DeletedByHandleReason)
	} else {
		log.Warn().Str("queue", qs.queueName).Msg("receipt handle not found or stale")
		qs.metricsService.IncStaleHandleRejectionsTotalBy(1, qs.queueName)
	}
	return deleted, nil
}

// DeleteByID removes a record by id regardless of visibility, bypassing the
// receipt-handle safety check.
func (qs *QueueService) DeleteByID(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := qs.withRecords(ctx, func(msgs []common.Message) ([]common.Message, bool, error) {
		var changed bool
		msgs, deleted, changed = qs.eng.DeleteByID(msgs, id)
		return msgs, changed, nil
	})
	if err != nil {
		return false, err
	}

	if deleted {
		qs.metricsService.IncMessagesDeletedTotalBy(1, qs.queueName, metrics.DeletedByIDReason)
	} else {
		log.Warn().Str("queue", qs.queueName).Str("message_id", id).Msg("message not found for delete")
	}
	return deleted, nil
}

// Update replaces the message body only; visibility, counters and timestamps
// are untouched.
func (qs *QueueService) Update(ctx context.Context, id string, body json.RawMessage) (bool, error) {
	if err := validateBody(body); err != nil {
		return false, err
	}

	var updated bool
	err := qs.withRecords(ctx, func(msgs []common.Message) ([]common.Message, bool, error) {
		var changed bool
		msgs, updated, changed = qs.eng.Update(msgs, id, body)
		return msgs, changed, nil
	})
	if err != nil {
		return false, err
	}

	if updated {
		qs.metricsService.IncMessagesUpdatedTotalBy(1, qs.queueName)
	} else {
		log.Warn().Str("queue", qs.queueName).Str("message_id", id).Msg("message not found for update")
	}
	return updated, nil
}

func (qs *QueueService) Clear(ctx context.Context) error {
	var cleared int
	err := qs.withRecords(ctx, func(msgs []common.Message) ([]common.Message, bool, error) {
		cleared = len(msgs)
		return []common.Message{}, true, nil
	})
	if err != nil {
		return err
	}

	if cleared > 0 {
		qs.metricsService.IncMessagesDeletedTotalBy(int64(cleared), qs.queueName, metrics.DeletedByClearReason)
	}
	return nil
}

func (qs *QueueService) Stats(ctx context.Context) (*common.QueueStats, error) {
	var stats common.QueueStats
	err := qs.withRecords(ctx, func(msgs []common.Message) ([]common.Message, bool, error) {
		var changed bool
		msgs, stats, changed = qs.eng.Stats(msgs)
		return msgs, changed, nil
	})
	if err != nil {
		return nil, err
	}

	stats.Backing = qs.messageStore.Backing()
	return &stats, nil
}

func (qs *QueueService) HealthCheck(ctx context.Context) bool {
	return qs.messageStore.HealthCheck(ctx)
}

// CleanupExpired runs the visibility cleanup explicitly. It is already run
// implicitly by every other operation, this is for manual invocation only.
func (qs *QueueService) CleanupExpired(ctx context.Context) error {
	return qs.withRecords(ctx, func(msgs []common.Message) ([]common.Message, bool, error) {
		msgs, changed := qs.eng.Cleanup(msgs)
		return msgs, changed, nil
	})
}

// Records exposes the raw persisted set plus its entity tag for the records
// resource that remote stores load from.
func (qs *QueueService) Records(ctx context.Context) ([]common.Message, string, error) {
	release, err := qs.messageStore.Acquire(ctx)
	if err != nil {
		return nil, "", err
	}
	defer release()

	msgs, err := qs.messageStore.Load(ctx)
	if err != nil {
		return nil, "", err
	}
	return msgs, store.RecordsETag(msgs), nil
}

// ReplaceRecords overwrites the persisted set on behalf of a remote store's
// save. A non-empty ifMatch must equal the current set's entity tag, otherwise
// the write raced another client and is rejected with a conflict.
func (qs *QueueService) ReplaceRecords(ctx context.Context, msgs []common.Message, ifMatch string) (string, error) {
	if err := validateRecords(msgs); err != nil {
		return "", err
	}
	if msgs == nil {
		msgs = []common.Message{}
	}

	release, err := qs.messageStore.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if ifMatch != "" {
		current, err := qs.messageStore.Load(ctx)
		if err != nil {
			return "", err
		}
		if store.RecordsETag(current) != ifMatch {
			return "", common.ErrStoreConflict
		}
	}

	if err := qs.messageStore.Save(ctx, msgs); err != nil {
		return "", err
	}
	return store.RecordsETag(msgs), nil
}

func (qs *QueueService) Close() error {
	return qs.messageStore.Close()
}

// withRecords runs op inside the store's critical section and persists the
// mutated set when op reports a change. A save failure is always surfaced:
// the in-memory mutation must never silently diverge from persisted truth.
func (qs *QueueService) withRecords(ctx context.Context, op func(msgs []common.Message) ([]common.Message, bool, error)) error {
	var lastErr error
	for attempt := 0; attempt <= qs.appConfigs.SaveRetryAttempts; attempt++ {
		lastErr = qs.runOnce(ctx, op)
		if !errors.Is(lastErr, common.ErrStoreConflict) {
			return lastErr
		}
		log.Warn().Str("queue", qs.queueName).Int("attempt", attempt+1).Msg("store conflict, retrying operation")
	}
	return lastErr
}

func (qs *QueueService) runOnce(ctx context.Context, op func(msgs []common.Message) ([]common.Message, bool, error)) error {
	release, err := qs.messageStore.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	msgs, err := qs.messageStore.Load(ctx)
	if err != nil {
		return err
	}

	msgs, changed, err := op(msgs)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return qs.messageStore.Save(ctx, msgs)
}

func validateBody(body json.RawMessage) error {
	if len(body) == 0 || !json.Valid(body) {
		return common.ErrBadRequestInvalidBody
	}
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return common.ErrBadRequestBodyNotObject
	}
	return nil
}

func validateRecords(msgs []common.Message) error {
	seen := make(map[string]bool, len(msgs))
	for i := range msgs {
		if msgs[i].ID == "" || seen[msgs[i].ID] {
			return common.ErrBadRequestInvalidRecords
		}
		seen[msgs[i].ID] = true

		// invisible_until and the receipt handle are both set or both absent
		if (msgs[i].InvisibleUntil != nil) != (msgs[i].CurrentReceiptHandle != "") {
			return common.ErrBadRequestInvalidRecords
		}
		if msgs[i].ReceiveCount < 0 || (msgs[i].FirstReceivedAt != nil) != (msgs[i].ReceiveCount > 0) {
			return common.ErrBadRequestInvalidRecords
		}
	}
	return nil
}
