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

type CustomerStore struct {
	db   *bun.DB
	repo repository.Repository[*customerRecord]
}

func NewCustomerStore(db *bun.DB) (*CustomerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*customerRecord](db, customerHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid customer repository wiring: %w", err)
		}
	}
	return &CustomerStore{db: db, repo: repo}, nil
}

func (s *CustomerStore) Create(ctx context.Context, customer core.Customer) (core.Customer, error) {
	if s == nil || s.db == nil {
		return core.Customer{}, fmt.Errorf("sqlstore: customer store is not configured")
	}
	customer.ExternalID = strings.TrimSpace(customer.ExternalID)
	if customer.ExternalID == "" {
		return core.Customer{}, fmt.Errorf("sqlstore: customer external id is required")
	}

	now := time.Now().UTC()
	record := customerToRecord(customer)
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Customer{}, err
	}
	return customerToDomain(record), nil
}

func (s *CustomerStore) Get(ctx context.Context, id string) (core.Customer, error) {
	if s == nil || s.db == nil {
		return core.Customer{}, fmt.Errorf("sqlstore: customer store is not configured")
	}
	record := &customerRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Customer{}, core.ErrCustomerNotFound
		}
		return core.Customer{}, err
	}
	return customerToDomain(record), nil
}

func (s *CustomerStore) GetByExternalID(ctx context.Context, externalID string) (core.Customer, error) {
	if s == nil || s.db == nil {
		return core.Customer{}, fmt.Errorf("sqlstore: customer store is not configured")
	}
	record := &customerRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Customer{}, core.ErrCustomerNotFound
		}
		return core.Customer{}, err
	}
	return customerToDomain(record), nil
}

func (s *CustomerStore) Update(ctx context.Context, customer core.Customer) (core.Customer, error) {
	if s == nil || s.db == nil {
		return core.Customer{}, fmt.Errorf("sqlstore: customer store is not configured")
	}
	if strings.TrimSpace(customer.ID) == "" {
		return core.Customer{}, fmt.Errorf("sqlstore: customer id is required")
	}

	record := customerToRecord(customer)
	record.UpdatedAt = time.Now().UTC()
	result, err := s.db.NewUpdate().
		Model(record).
		WherePK().
		ExcludeColumn("created_at").
		Exec(ctx)
	if err != nil {
		return core.Customer{}, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.Customer{}, core.ErrCustomerNotFound
	}
	return s.Get(ctx, customer.ID)
}

func customerToRecord(customer core.Customer) *customerRecord {
	return &customerRecord{
		ID:                     customer.ID,
		ExternalID:             customer.ExternalID,
		TenantID:               customer.TenantID,
		Email:                  customer.Email,
		Name:                   customer.Name,
		DefaultPaymentMethodID: customer.DefaultPaymentMethodID,
		Balance:                customer.Balance,
		Delinquent:             customer.Delinquent,
		DeactivatedAt:          customer.DeactivatedAt,
		CreatedAt:              customer.CreatedAt,
		UpdatedAt:              customer.UpdatedAt,
	}
}

func customerToDomain(record *customerRecord) core.Customer {
	if record == nil {
		return core.Customer{}
	}
	return core.Customer{
		ID:                     record.ID,
		ExternalID:             record.ExternalID,
		TenantID:               record.TenantID,
		Email:                  record.Email,
		Name:                   record.Name,
		DefaultPaymentMethodID: record.DefaultPaymentMethodID,
		Balance:                record.Balance,
		Delinquent:             record.Delinquent,
		DeactivatedAt:          record.DeactivatedAt,
		CreatedAt:              record.CreatedAt,
		UpdatedAt:              record.UpdatedAt,
	}
}
