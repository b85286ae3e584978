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

// LedgerStore is the durable event ledger. The unique index on event_id makes
// Insert the single dedupe point for duplicate webhook deliveries.
type LedgerStore struct {
	db   *bun.DB
	repo repository.Repository[*ledgerEntryRecord]
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*ledgerEntryRecord](db, ledgerEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid ledger repository wiring: %w", err)
		}
	}
	return &LedgerStore{db: db, repo: repo}, nil
}

func (s *LedgerStore) Insert(ctx context.Context, entry core.LedgerEntry) (core.LedgerEntry, bool, error) {
	if s == nil || s.db == nil {
		return core.LedgerEntry{}, false, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	entry.EventID = strings.TrimSpace(entry.EventID)
	if entry.EventID == "" {
		return core.LedgerEntry{}, false, fmt.Errorf("sqlstore: ledger event id is required")
	}

	record := &ledgerEntryRecord{
		ID:         uuid.NewString(),
		EventID:    entry.EventID,
		EventType:  entry.EventType,
		Livemode:   entry.Livemode,
		Payload:    append([]byte(nil), entry.Payload...),
		Status:     entry.Status,
		RetryCount: entry.RetryCount,
		Error:      entry.Error,
		CreatedAt:  entry.CreatedAt,
	}
	if record.Status == "" {
		record.Status = core.LedgerStatusPending
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.GetByEventID(ctx, entry.EventID)
			if getErr != nil {
				return core.LedgerEntry{}, false, getErr
			}
			return existing, false, nil
		}
		return core.LedgerEntry{}, false, err
	}
	return ledgerEntryToDomain(record), true, nil
}

func (s *LedgerStore) GetByEventID(ctx context.Context, eventID string) (core.LedgerEntry, error) {
	if s == nil || s.db == nil {
		return core.LedgerEntry{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	record := &ledgerEntryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.LedgerEntry{}, core.ErrLedgerEntryNotFound
		}
		return core.LedgerEntry{}, err
	}
	return ledgerEntryToDomain(record), nil
}

func (s *LedgerStore) MarkProcessing(ctx context.Context, eventID string) (core.LedgerEntry, error) {
	if s == nil || s.db == nil {
		return core.LedgerEntry{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*ledgerEntryRecord)(nil)).
		Set("status = ?", core.LedgerStatusProcessing).
		Where("event_id = ?", strings.TrimSpace(eventID)).
		Exec(ctx)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	return s.GetByEventID(ctx, eventID)
}

func (s *LedgerStore) MarkCompleted(ctx context.Context, eventID string, processedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: ledger store is not configured")
	}
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}
	result, err := s.db.NewUpdate().
		Model((*ledgerEntryRecord)(nil)).
		Set("status = ?", core.LedgerStatusCompleted).
		Set("error = ''").
		Set("processed_at = ?", processedAt.UTC()).
		Where("event_id = ?", strings.TrimSpace(eventID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.ErrLedgerEntryNotFound
	}
	return nil
}

func (s *LedgerStore) MarkFailed(ctx context.Context, eventID string, cause error) (core.LedgerEntry, error) {
	if s == nil || s.db == nil {
		return core.LedgerEntry{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	result, err := s.db.NewUpdate().
		Model((*ledgerEntryRecord)(nil)).
		Set("status = ?", core.LedgerStatusFailed).
		Set("retry_count = retry_count + 1").
		Set("error = ?", message).
		Where("event_id = ?", strings.TrimSpace(eventID)).
		Exec(ctx)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.LedgerEntry{}, core.ErrLedgerEntryNotFound
	}
	return s.GetByEventID(ctx, eventID)
}

func (s *LedgerStore) ListFailed(ctx context.Context, limit int) ([]core.LedgerEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	var records []*ledgerEntryRecord
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", core.LedgerStatusFailed).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.LedgerEntry, 0, len(records))
	for _, record := range records {
		out = append(out, ledgerEntryToDomain(record))
	}
	return out, nil
}

func ledgerEntryToDomain(record *ledgerEntryRecord) core.LedgerEntry {
	if record == nil {
		return core.LedgerEntry{}
	}
	return core.LedgerEntry{
		ID:          record.ID,
		EventID:     record.EventID,
		EventType:   record.EventType,
		Livemode:    record.Livemode,
		Payload:     append([]byte(nil), record.Payload...),
		Status:      record.Status,
		RetryCount:  record.RetryCount,
		Error:       record.Error,
		CreatedAt:   record.CreatedAt,
		ProcessedAt: record.ProcessedAt,
	}
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
