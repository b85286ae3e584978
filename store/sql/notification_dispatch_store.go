package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-billing-sync/core"
)

// NotificationDispatchStore is the send-side dedupe ledger. Only successful
// sends are recorded, so a retryable failure keeps the key unseen.
type NotificationDispatchStore struct {
	db   *bun.DB
	repo repository.Repository[*notificationDispatchRecord]
}

func NewNotificationDispatchStore(db *bun.DB) (*NotificationDispatchStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*notificationDispatchRecord](db, notificationDispatchHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid notification dispatch repository wiring: %w", err)
		}
	}
	return &NotificationDispatchStore{db: db, repo: repo}, nil
}

func (s *NotificationDispatchStore) Seen(ctx context.Context, idempotencyKey string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: notification dispatch store is not configured")
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return false, fmt.Errorf("sqlstore: notification idempotency key is required")
	}
	count, err := s.db.NewSelect().
		Model((*notificationDispatchRecord)(nil)).
		Where("?TableAlias.idempotency_key = ?", idempotencyKey).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *NotificationDispatchStore) Record(ctx context.Context, dispatch core.NotificationDispatch) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: notification dispatch store is not configured")
	}
	dispatch.IdempotencyKey = strings.TrimSpace(dispatch.IdempotencyKey)
	if dispatch.IdempotencyKey == "" {
		return fmt.Errorf("sqlstore: notification idempotency key is required")
	}

	record := &notificationDispatchRecord{
		ID:             dispatch.ID,
		TemplateID:     dispatch.TemplateID,
		RecipientKey:   dispatch.RecipientKey,
		IdempotencyKey: dispatch.IdempotencyKey,
		Status:         dispatch.Status,
		Error:          dispatch.Error,
		Metadata:       dispatch.Metadata,
		CreatedAt:      dispatch.CreatedAt,
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}
