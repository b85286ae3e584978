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

type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*subscriptionRecord]
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*subscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{db: db, repo: repo}, nil
}

func (s *SubscriptionStore) Create(ctx context.Context, subscription core.Subscription) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	subscription.ExternalID = strings.TrimSpace(subscription.ExternalID)
	if subscription.ExternalID == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription external id is required")
	}

	now := time.Now().UTC()
	record := subscriptionToRecord(subscription)
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Subscription{}, err
	}
	return subscriptionToDomain(record), nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	record := &subscriptionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Subscription{}, core.ErrSubscriptionNotFound
		}
		return core.Subscription{}, err
	}
	return subscriptionToDomain(record), nil
}

func (s *SubscriptionStore) GetByExternalID(ctx context.Context, externalID string) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	record := &subscriptionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Subscription{}, core.ErrSubscriptionNotFound
		}
		return core.Subscription{}, err
	}
	return subscriptionToDomain(record), nil
}

func (s *SubscriptionStore) Update(ctx context.Context, subscription core.Subscription) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	if strings.TrimSpace(subscription.ID) == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription id is required")
	}

	record := subscriptionToRecord(subscription)
	record.UpdatedAt = time.Now().UTC()
	result, err := s.db.NewUpdate().
		Model(record).
		WherePK().
		ExcludeColumn("created_at").
		Exec(ctx)
	if err != nil {
		return core.Subscription{}, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.Subscription{}, core.ErrSubscriptionNotFound
	}
	return s.Get(ctx, subscription.ID)
}

func subscriptionToRecord(subscription core.Subscription) *subscriptionRecord {
	return &subscriptionRecord{
		ID:                 subscription.ID,
		ExternalID:         subscription.ExternalID,
		CustomerID:         subscription.CustomerID,
		PriceID:            subscription.PriceID,
		Status:             subscription.Status,
		Quantity:           subscription.Quantity,
		CurrentPeriodStart: subscription.CurrentPeriodStart,
		CurrentPeriodEnd:   subscription.CurrentPeriodEnd,
		CancelAtPeriodEnd:  subscription.CancelAtPeriodEnd,
		CanceledAt:         subscription.CanceledAt,
		TrialStart:         subscription.TrialStart,
		TrialEnd:           subscription.TrialEnd,
		PausedAt:           subscription.PausedAt,
		CreatedAt:          subscription.CreatedAt,
		UpdatedAt:          subscription.UpdatedAt,
	}
}

func subscriptionToDomain(record *subscriptionRecord) core.Subscription {
	if record == nil {
		return core.Subscription{}
	}
	return core.Subscription{
		ID:                 record.ID,
		ExternalID:         record.ExternalID,
		CustomerID:         record.CustomerID,
		PriceID:            record.PriceID,
		Status:             record.Status,
		Quantity:           record.Quantity,
		CurrentPeriodStart: record.CurrentPeriodStart,
		CurrentPeriodEnd:   record.CurrentPeriodEnd,
		CancelAtPeriodEnd:  record.CancelAtPeriodEnd,
		CanceledAt:         record.CanceledAt,
		TrialStart:         record.TrialStart,
		TrialEnd:           record.TrialEnd,
		PausedAt:           record.PausedAt,
		CreatedAt:          record.CreatedAt,
		UpdatedAt:          record.UpdatedAt,
	}
}
