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

// SkipStore tracks reconciliations that were deliberately skipped. At most one
// unresolved row exists per (kind, external_id); Record is a no-op while one
// is pending.
type SkipStore struct {
	db   *bun.DB
	repo repository.Repository[*syncSkipRecord]
}

func NewSkipStore(db *bun.DB) (*SkipStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncSkipRecord](db, syncSkipHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid skip repository wiring: %w", err)
		}
	}
	return &SkipStore{db: db, repo: repo}, nil
}

func (s *SkipStore) Record(ctx context.Context, skip core.SyncSkip) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: skip store is not configured")
	}
	skip.ExternalID = strings.TrimSpace(skip.ExternalID)
	if skip.ExternalID == "" {
		return fmt.Errorf("sqlstore: skip external id is required")
	}
	if skip.Kind == "" {
		return fmt.Errorf("sqlstore: skip kind is required")
	}

	pending, err := s.db.NewSelect().
		Model((*syncSkipRecord)(nil)).
		Where("?TableAlias.kind = ?", string(skip.Kind)).
		Where("?TableAlias.external_id = ?", skip.ExternalID).
		Where("?TableAlias.resolved_at IS NULL").
		Count(ctx)
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}

	record := &syncSkipRecord{
		ID:         skip.ID,
		Kind:       string(skip.Kind),
		ExternalID: skip.ExternalID,
		Reason:     skip.Reason,
		Attempts:   skip.Attempts,
		CreatedAt:  skip.CreatedAt,
	}
	if strings.TrimSpace(record.ID) == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.NewInsert().Model(record).Exec(ctx)
	return err
}

func (s *SkipStore) ListPending(ctx context.Context, limit int) ([]core.SyncSkip, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: skip store is not configured")
	}
	var records []*syncSkipRecord
	query := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.resolved_at IS NULL").
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.SyncSkip, 0, len(records))
	for _, record := range records {
		out = append(out, syncSkipToDomain(record))
	}
	return out, nil
}

func (s *SkipStore) Resolve(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: skip store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*syncSkipRecord)(nil)).
		Set("resolved_at = ?", time.Now().UTC()).
		Where("id = ?", strings.TrimSpace(id)).
		Where("resolved_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("sqlstore: pending skip %q not found", id)
	}
	return nil
}

func (s *SkipStore) Touch(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: skip store is not configured")
	}
	_, err := s.db.NewUpdate().
		Model((*syncSkipRecord)(nil)).
		Set("attempts = attempts + 1").
		Where("id = ?", strings.TrimSpace(id)).
		Exec(ctx)
	return err
}

func syncSkipToDomain(record *syncSkipRecord) core.SyncSkip {
	if record == nil {
		return core.SyncSkip{}
	}
	return core.SyncSkip{
		ID:         record.ID,
		Kind:       core.EntityKind(record.Kind),
		ExternalID: record.ExternalID,
		Reason:     record.Reason,
		Attempts:   record.Attempts,
		CreatedAt:  record.CreatedAt,
		ResolvedAt: record.ResolvedAt,
	}
}
