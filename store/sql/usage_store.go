package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-billing-sync/core"
)

// UsageStore is append-only. The unique index on event_id absorbs replays of
// the same provider submission.
type UsageStore struct {
	db   *bun.DB
	repo repository.Repository[*usageRecordRecord]
}

func NewUsageStore(db *bun.DB) (*UsageStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*usageRecordRecord](db, usageRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid usage repository wiring: %w", err)
		}
	}
	return &UsageStore{db: db, repo: repo}, nil
}

func (s *UsageStore) Create(ctx context.Context, record core.UsageRecord) (core.UsageRecord, error) {
	if s == nil || s.db == nil {
		return core.UsageRecord{}, fmt.Errorf("sqlstore: usage store is not configured")
	}
	record.EventID = strings.TrimSpace(record.EventID)
	if record.EventID == "" {
		return core.UsageRecord{}, fmt.Errorf("sqlstore: usage event id is required")
	}
	if strings.TrimSpace(record.SubscriptionID) == "" {
		return core.UsageRecord{}, fmt.Errorf("sqlstore: usage subscription id is required")
	}

	row := &usageRecordRecord{
		ID:             record.ID,
		SubscriptionID: record.SubscriptionID,
		MeterID:        record.MeterID,
		Quantity:       record.Quantity,
		Timestamp:      record.Timestamp.UTC(),
		EventID:        record.EventID,
		CreatedAt:      record.CreatedAt,
	}
	if strings.TrimSpace(row.ID) == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return s.getByEventID(ctx, record.EventID)
		}
		return core.UsageRecord{}, err
	}
	return usageRecordToDomain(row), nil
}

func (s *UsageStore) ListBySubscription(
	ctx context.Context,
	subscriptionID string,
	start time.Time,
	end time.Time,
) ([]core.UsageRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: usage store is not configured")
	}
	var rows []*usageRecordRecord
	err := s.db.NewSelect().
		Model(&rows).
		Where("?TableAlias.subscription_id = ?", strings.TrimSpace(subscriptionID)).
		Where("?TableAlias.timestamp >= ?", start.UTC()).
		Where("?TableAlias.timestamp < ?", end.UTC()).
		Order("timestamp ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.UsageRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, usageRecordToDomain(row))
	}
	return out, nil
}

func (s *UsageStore) getByEventID(ctx context.Context, eventID string) (core.UsageRecord, error) {
	row := &usageRecordRecord{}
	err := s.db.NewSelect().
		Model(row).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.UsageRecord{}, fmt.Errorf("sqlstore: usage record %q not found", eventID)
		}
		return core.UsageRecord{}, err
	}
	return usageRecordToDomain(row), nil
}

func usageRecordToDomain(row *usageRecordRecord) core.UsageRecord {
	if row == nil {
		return core.UsageRecord{}
	}
	return core.UsageRecord{
		ID:             row.ID,
		SubscriptionID: row.SubscriptionID,
		MeterID:        row.MeterID,
		Quantity:       row.Quantity,
		Timestamp:      row.Timestamp,
		EventID:        row.EventID,
		CreatedAt:      row.CreatedAt,
	}
}
