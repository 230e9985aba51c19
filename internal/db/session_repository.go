package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ridewire/dispatchsync/internal/models"
)

// SessionRepository persists in-flight session state: optimistic
// messages not yet acknowledged and mark-read ids not yet echoed back.
// On daemon restart this is the only state the backend cannot rebuild.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// SavePendingMessage stores an unacknowledged optimistic message.
func (r *SessionRepository) SavePendingMessage(ctx context.Context, msg models.Message) error {
	if msg.ClientTempID == "" {
		return errors.New("client temp id required")
	}

	return withRetry(ctx, 0, 0, func() error {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO pending_messages (client_temp_id, thread_id, body, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(client_temp_id) DO UPDATE SET
				body = excluded.body
		`,
			msg.ClientTempID,
			string(msg.ThreadID),
			msg.Body,
			msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to store pending message: %w", err)
		}
		return nil
	})
}

// DeletePendingMessage removes a pending message once acknowledged or
// discarded. Unknown ids are a no-op.
func (r *SessionRepository) DeletePendingMessage(ctx context.Context, clientTempID string) error {
	return withRetry(ctx, 0, 0, func() error {
		_, err := r.db.ExecContext(ctx,
			`DELETE FROM pending_messages WHERE client_temp_id = ?`, clientTempID)
		if err != nil {
			return fmt.Errorf("failed to delete pending message: %w", err)
		}
		return nil
	})
}

// ListPendingMessages returns all cached pending messages ordered by
// creation time.
func (r *SessionRepository) ListPendingMessages(ctx context.Context) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT client_temp_id, thread_id, body, created_at
		FROM pending_messages
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var (
			msg        models.Message
			threadID   string
			createdRaw string
		)
		if err := rows.Scan(&msg.ClientTempID, &threadID, &msg.Body, &createdRaw); err != nil {
			return nil, fmt.Errorf("failed to scan pending message: %w", err)
		}
		msg.ThreadID = models.ThreadID(threadID)
		msg.Direction = models.DirectionFromDispatcher
		msg.DeliveryState = models.DeliveryStatePending
		if t, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
			msg.CreatedAt = t
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pending message query error: %w", err)
	}

	return messages, nil
}

// SaveMarkReads stores mark-read ids awaiting backend acknowledgement.
func (r *SessionRepository) SaveMarkReads(ctx context.Context, threadID models.ThreadID, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pending_mark_reads (message_id, thread_id, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(message_id) DO NOTHING
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare mark-read insert: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id, string(threadID), now); err != nil {
				return fmt.Errorf("failed to store mark-read id: %w", err)
			}
		}
		return nil
	})
}

// DeleteMarkReads removes acknowledged mark-read ids.
func (r *SessionRepository) DeleteMarkReads(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`DELETE FROM pending_mark_reads WHERE message_id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare mark-read delete: %w", err)
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return fmt.Errorf("failed to delete mark-read id: %w", err)
			}
		}
		return nil
	})
}

// ListMarkReads returns all cached mark-read ids keyed by message id.
func (r *SessionRepository) ListMarkReads(ctx context.Context) (map[int64]models.ThreadID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT message_id, thread_id FROM pending_mark_reads`)
	if err != nil {
		return nil, fmt.Errorf("failed to query mark-reads: %w", err)
	}
	defer rows.Close()

	marks := make(map[int64]models.ThreadID)
	for rows.Next() {
		var (
			id       int64
			threadID string
		)
		if err := rows.Scan(&id, &threadID); err != nil {
			return nil, fmt.Errorf("failed to scan mark-read: %w", err)
		}
		marks[id] = models.ThreadID(threadID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mark-read query error: %w", err)
	}

	return marks, nil
}
