package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"venq/common"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SqliteStore persists one queue's record set in a shared SQLite database.
// Save replaces the queue's rows inside a single transaction, which together
// with SQLite's own file locking gives whole-set atomicity; an in-process
// mutex serializes the surrounding load-mutate-save cycle.
type SqliteStore struct {
	db     *sql.DB
	dbPath string
	queue  string
	mu     sync.Mutex
}

// NewSqliteStore scopes a store to one queue. The *sql.DB is shared between
// queues and stays owned by the caller; Close here is a no-op.
func NewSqliteStore(db *sql.DB, dbPath string, queue string) *SqliteStore {
	return &SqliteStore{
		db:     db,
		dbPath: dbPath,
		queue:  queue,
	}
}

func (ss *SqliteStore) Acquire(ctx context.Context) (func(), error) {
	ss.mu.Lock()
	return ss.mu.Unlock, nil
}

func (ss *SqliteStore) Load(ctx context.Context) ([]common.Message, error) {
	query := `
		SELECT id, body, created_at, receive_count, first_received_at, invisible_until, receipt_handle
		FROM messages
		WHERE queue = ?
		ORDER BY position ASC;`

	rows, err := ss.db.QueryContext(ctx, query, ss.queue)
	if err != nil {
		log.Error().Err(err).Str("queue", ss.queue).Msg("failed to load queue records")
		return nil, common.ErrStoreUnavailable
	}
	defer rows.Close()

	msgs := []common.Message{}
	for rows.Next() {
		var (
			msg             common.Message
			body            string
			createdAt       int64
			firstReceivedAt sql.NullInt64
			invisibleUntil  sql.NullInt64
			receiptHandle   sql.NullString
		)
		if err := rows.Scan(&msg.ID, &body, &createdAt, &msg.ReceiveCount, &firstReceivedAt, &invisibleUntil, &receiptHandle); err != nil {
			log.Error().Err(err).Str("queue", ss.queue).Msg("failed to scan queue record")
			return nil, common.ErrStoreUnavailable
		}

		msg.Body = []byte(body)
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		if firstReceivedAt.Valid {
			first := time.UnixMilli(firstReceivedAt.Int64).UTC()
			msg.FirstReceivedAt = &first
		}
		if invisibleUntil.Valid {
			until := time.UnixMilli(invisibleUntil.Int64).UTC()
			msg.InvisibleUntil = &until
		}
		if receiptHandle.Valid {
			msg.CurrentReceiptHandle = receiptHandle.String
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		log.Error().Err(err).Str("queue", ss.queue).Msg("failed to iterate queue records")
		return nil, common.ErrStoreUnavailable
	}
	return msgs, nil
}

func (ss *SqliteStore) Save(ctx context.Context, msgs []common.Message) error {
	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error().Err(err).Str("queue", ss.queue).Msg("failed to begin save transaction")
		return common.ErrStoreUnavailable
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE queue = ?;`, ss.queue); err != nil {
		log.Error().Err(err).Str("queue", ss.queue).Msg("failed to clear queue records")
		return common.ErrStoreUnavailable
	}

	insert := `
		INSERT INTO messages (queue, id, body, created_at, receive_count, first_received_at, invisible_until, receipt_handle)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?);`

	for i := range msgs {
		var (
			firstReceivedAt sql.NullInt64
			invisibleUntil  sql.NullInt64
			receiptHandle   sql.NullString
		)
		if msgs[i].FirstReceivedAt != nil {
			firstReceivedAt = sql.NullInt64{Int64: msgs[i].FirstReceivedAt.UnixMilli(), Valid: true}
		}
		if msgs[i].InvisibleUntil != nil {
			invisibleUntil = sql.NullInt64{Int64: msgs[i].InvisibleUntil.UnixMilli(), Valid: true}
		}
		if msgs[i].CurrentReceiptHandle != "" {
			receiptHandle = sql.NullString{String: msgs[i].CurrentReceiptHandle, Valid: true}
		}

		_, err := tx.ExecContext(ctx, insert,
			ss.queue,                      // queue
			msgs[i].ID,                    // id
			string(msgs[i].Body),          // body
			msgs[i].CreatedAt.UnixMilli(), // created_at
			msgs[i].ReceiveCount,          // receive_count
			firstReceivedAt,               // first_received_at
			invisibleUntil,                // invisible_until
			receiptHandle,                 // receipt_handle
		)
		if err != nil {
			log.Error().Err(err).Str("queue", ss.queue).Str("message_id", msgs[i].ID).Msg("failed to insert queue record")
			return common.ErrStoreUnavailable
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Str("queue", ss.queue).Msg("failed to commit save transaction")
		return common.ErrStoreUnavailable
	}
	return nil
}

func (ss *SqliteStore) HealthCheck(ctx context.Context) bool {
	return ss.db.PingContext(ctx) == nil
}

func (ss *SqliteStore) Backing() string {
	return fmt.Sprintf("sqlite:%s#%s", ss.dbPath, ss.queue)
}

func (ss *SqliteStore) Close() error {
	return nil
}

var _ MessageStore = (*SqliteStore)(nil)
