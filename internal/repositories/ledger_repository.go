package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"wingman/internal/models/db_models"
)

// LedgerRepository is append-only: there is no update or delete.
type LedgerRepository interface {
	WithTx(tx *gorm.DB) LedgerRepository
	Insert(ctx context.Context, entry *db_models.LedgerEntry) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]db_models.LedgerEntry, int64, error)
	FindByReference(ctx context.Context, referenceID uuid.UUID, kind db_models.LedgerKind) (*db_models.LedgerEntry, error)
}

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

func (l *ledgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: tx}
}

func (l *ledgerRepository) Insert(ctx context.Context, entry *db_models.LedgerEntry) error {
	return l.db.WithContext(ctx).Create(entry).Error
}

func (l *ledgerRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]db_models.LedgerEntry, int64, error) {
	var total int64
	q := l.db.WithContext(ctx).Model(&db_models.LedgerEntry{}).Where("account_id = ?", accountID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []db_models.LedgerEntry
	err := l.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (l *ledgerRepository) FindByReference(ctx context.Context, referenceID uuid.UUID, kind db_models.LedgerKind) (*db_models.LedgerEntry, error) {
	var entry db_models.LedgerEntry
	err := l.db.WithContext(ctx).
		Where("reference_id = ? AND kind = ?", referenceID, kind).
		First(&entry).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
