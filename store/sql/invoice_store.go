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

type InvoiceStore struct {
	db   *bun.DB
	repo repository.Repository[*invoiceRecord]
}

func NewInvoiceStore(db *bun.DB) (*InvoiceStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*invoiceRecord](db, invoiceHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid invoice repository wiring: %w", err)
		}
	}
	return &InvoiceStore{db: db, repo: repo}, nil
}

func (s *InvoiceStore) Create(ctx context.Context, invoice core.Invoice) (core.Invoice, error) {
	if s == nil || s.db == nil {
		return core.Invoice{}, fmt.Errorf("sqlstore: invoice store is not configured")
	}
	invoice.ExternalID = strings.TrimSpace(invoice.ExternalID)
	if invoice.ExternalID == "" {
		return core.Invoice{}, fmt.Errorf("sqlstore: invoice external id is required")
	}
	if strings.TrimSpace(invoice.CustomerID) == "" {
		return core.Invoice{}, fmt.Errorf("sqlstore: invoice customer id is required")
	}

	now := time.Now().UTC()
	record := invoiceToRecord(invoice)
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.Invoice{}, err
	}
	return invoiceToDomain(record), nil
}

func (s *InvoiceStore) Get(ctx context.Context, id string) (core.Invoice, error) {
	if s == nil || s.db == nil {
		return core.Invoice{}, fmt.Errorf("sqlstore: invoice store is not configured")
	}
	record := &invoiceRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Invoice{}, core.ErrInvoiceNotFound
		}
		return core.Invoice{}, err
	}
	return invoiceToDomain(record), nil
}

func (s *InvoiceStore) GetByExternalID(ctx context.Context, externalID string) (core.Invoice, error) {
	if s == nil || s.db == nil {
		return core.Invoice{}, fmt.Errorf("sqlstore: invoice store is not configured")
	}
	record := &invoiceRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Invoice{}, core.ErrInvoiceNotFound
		}
		return core.Invoice{}, err
	}
	return invoiceToDomain(record), nil
}

func (s *InvoiceStore) Update(ctx context.Context, invoice core.Invoice) (core.Invoice, error) {
	if s == nil || s.db == nil {
		return core.Invoice{}, fmt.Errorf("sqlstore: invoice store is not configured")
	}
	if strings.TrimSpace(invoice.ID) == "" {
		return core.Invoice{}, fmt.Errorf("sqlstore: invoice id is required")
	}

	record := invoiceToRecord(invoice)
	record.UpdatedAt = time.Now().UTC()
	result, err := s.db.NewUpdate().
		Model(record).
		WherePK().
		ExcludeColumn("created_at").
		Exec(ctx)
	if err != nil {
		return core.Invoice{}, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.Invoice{}, core.ErrInvoiceNotFound
	}
	return s.Get(ctx, invoice.ID)
}

func invoiceToRecord(invoice core.Invoice) *invoiceRecord {
	return &invoiceRecord{
		ID:              invoice.ID,
		ExternalID:      invoice.ExternalID,
		CustomerID:      invoice.CustomerID,
		SubscriptionID:  invoice.SubscriptionID,
		Status:          invoice.Status,
		Currency:        invoice.Currency,
		AmountDue:       invoice.AmountDue,
		AmountPaid:      invoice.AmountPaid,
		AmountRemaining: invoice.AmountRemaining,
		Subtotal:        invoice.Subtotal,
		Total:           invoice.Total,
		Tax:             invoice.Tax,
		PeriodStart:     invoice.PeriodStart,
		PeriodEnd:       invoice.PeriodEnd,
		DueDate:         invoice.DueDate,
		PaidAt:          invoice.PaidAt,
		AttemptCount:    invoice.AttemptCount,
		CreatedAt:       invoice.CreatedAt,
		UpdatedAt:       invoice.UpdatedAt,
	}
}

func invoiceToDomain(record *invoiceRecord) core.Invoice {
	if record == nil {
		return core.Invoice{}
	}
	return core.Invoice{
		ID:              record.ID,
		ExternalID:      record.ExternalID,
		CustomerID:      record.CustomerID,
		SubscriptionID:  record.SubscriptionID,
		Status:          record.Status,
		Currency:        record.Currency,
		AmountDue:       record.AmountDue,
		AmountPaid:      record.AmountPaid,
		AmountRemaining: record.AmountRemaining,
		Subtotal:        record.Subtotal,
		Total:           record.Total,
		Tax:             record.Tax,
		PeriodStart:     record.PeriodStart,
		PeriodEnd:       record.PeriodEnd,
		DueDate:         record.DueDate,
		PaidAt:          record.PaidAt,
		AttemptCount:    record.AttemptCount,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
	}
}
