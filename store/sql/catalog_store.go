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

type ProductStore struct {
	db   *bun.DB
	repo repository.Repository[*productRecord]
}

func NewProductStore(db *bun.DB) (*ProductStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*productRecord](db, productHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid product repository wiring: %w", err)
		}
	}
	return &ProductStore{db: db, repo: repo}, nil
}

func (s *ProductStore) Create(ctx context.Context, product core.Product) (core.Product, error) {
	if s == nil || s.db == nil {
		return core.Product{}, fmt.Errorf("sqlstore: product store is not configured")
	}
	product.ExternalID = strings.TrimSpace(product.ExternalID)
	if product.ExternalID == "" {
		return core.Product{}, fmt.Errorf("sqlstore: product external id is required")
	}

	now := time.Now().UTC()
	record := &productRecord{
		ID:          product.ID,
		ExternalID:  product.ExternalID,
		Name:        product.Name,
		Description: product.Description,
		Active:      product.Active,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   now,
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Product{}, err
	}
	return productToDomain(record), nil
}

func (s *ProductStore) Get(ctx context.Context, id string) (core.Product, error) {
	if s == nil || s.db == nil {
		return core.Product{}, fmt.Errorf("sqlstore: product store is not configured")
	}
	record := &productRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Product{}, core.ErrProductNotFound
		}
		return core.Product{}, err
	}
	return productToDomain(record), nil
}

func (s *ProductStore) GetByExternalID(ctx context.Context, externalID string) (core.Product, error) {
	if s == nil || s.db == nil {
		return core.Product{}, fmt.Errorf("sqlstore: product store is not configured")
	}
	record := &productRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Product{}, core.ErrProductNotFound
		}
		return core.Product{}, err
	}
	return productToDomain(record), nil
}

func (s *ProductStore) Update(ctx context.Context, product core.Product) (core.Product, error) {
	if s == nil || s.db == nil {
		return core.Product{}, fmt.Errorf("sqlstore: product store is not configured")
	}
	if strings.TrimSpace(product.ID) == "" {
		return core.Product{}, fmt.Errorf("sqlstore: product id is required")
	}

	record := &productRecord{
		ID:          product.ID,
		ExternalID:  product.ExternalID,
		Name:        product.Name,
		Description: product.Description,
		Active:      product.Active,
		UpdatedAt:   time.Now().UTC(),
	}
	result, err := s.db.NewUpdate().
		Model(record).
		WherePK().
		ExcludeColumn("created_at").
		Exec(ctx)
	if err != nil {
		return core.Product{}, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.Product{}, core.ErrProductNotFound
	}
	return s.Get(ctx, product.ID)
}

func productToDomain(record *productRecord) core.Product {
	if record == nil {
		return core.Product{}
	}
	return core.Product{
		ID:          record.ID,
		ExternalID:  record.ExternalID,
		Name:        record.Name,
		Description: record.Description,
		Active:      record.Active,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

type PriceStore struct {
	db   *bun.DB
	repo repository.Repository[*priceRecord]
}

func NewPriceStore(db *bun.DB) (*PriceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*priceRecord](db, priceHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid price repository wiring: %w", err)
		}
	}
	return &PriceStore{db: db, repo: repo}, nil
}

func (s *PriceStore) Create(ctx context.Context, price core.Price) (core.Price, error) {
	if s == nil || s.db == nil {
		return core.Price{}, fmt.Errorf("sqlstore: price store is not configured")
	}
	price.ExternalID = strings.TrimSpace(price.ExternalID)
	if price.ExternalID == "" {
		return core.Price{}, fmt.Errorf("sqlstore: price external id is required")
	}

	now := time.Now().UTC()
	record := priceToRecord(price)
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Price{}, err
	}
	return priceToDomain(record), nil
}

func (s *PriceStore) Get(ctx context.Context, id string) (core.Price, error) {
	if s == nil || s.db == nil {
		return core.Price{}, fmt.Errorf("sqlstore: price store is not configured")
	}
	record := &priceRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Price{}, core.ErrPriceNotFound
		}
		return core.Price{}, err
	}
	return priceToDomain(record), nil
}

func (s *PriceStore) GetByExternalID(ctx context.Context, externalID string) (core.Price, error) {
	if s == nil || s.db == nil {
		return core.Price{}, fmt.Errorf("sqlstore: price store is not configured")
	}
	record := &priceRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Price{}, core.ErrPriceNotFound
		}
		return core.Price{}, err
	}
	return priceToDomain(record), nil
}

func (s *PriceStore) Update(ctx context.Context, price core.Price) (core.Price, error) {
	if s == nil || s.db == nil {
		return core.Price{}, fmt.Errorf("sqlstore: price store is not configured")
	}
	if strings.TrimSpace(price.ID) == "" {
		return core.Price{}, fmt.Errorf("sqlstore: price id is required")
	}

	record := priceToRecord(price)
	record.UpdatedAt = time.Now().UTC()
	result, err := s.db.NewUpdate().
		Model(record).
		WherePK().
		ExcludeColumn("created_at").
		Exec(ctx)
	if err != nil {
		return core.Price{}, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.Price{}, core.ErrPriceNotFound
	}
	return s.Get(ctx, price.ID)
}

func priceToRecord(price core.Price) *priceRecord {
	return &priceRecord{
		ID:            price.ID,
		ExternalID:    price.ExternalID,
		ProductID:     price.ProductID,
		Currency:      price.Currency,
		UnitAmount:    price.UnitAmount,
		Interval:      price.Interval,
		IntervalCount: price.IntervalCount,
		UsageType:     price.UsageType,
		Active:        price.Active,
		CreatedAt:     price.CreatedAt,
		UpdatedAt:     price.UpdatedAt,
	}
}

func priceToDomain(record *priceRecord) core.Price {
	if record == nil {
		return core.Price{}
	}
	return core.Price{
		ID:            record.ID,
		ExternalID:    record.ExternalID,
		ProductID:     record.ProductID,
		Currency:      record.Currency,
		UnitAmount:    record.UnitAmount,
		Interval:      record.Interval,
		IntervalCount: record.IntervalCount,
		UsageType:     record.UsageType,
		Active:        record.Active,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}
