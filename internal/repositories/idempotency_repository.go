package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wingman/internal/models/db_models"
)

type IdempotencyRepository interface {
	WithTx(tx *gorm.DB) IdempotencyRepository
	// Claim inserts an in_progress record for (account, scope, key). When the
	// key already exists the stored record is returned with claimed=false.
	Claim(ctx context.Context, accountID uuid.UUID, scope, key string, now, expiresAt int64) (rec *db_models.IdempotencyRecord, claimed bool, err error)
	Complete(ctx context.Context, id uuid.UUID, response datatypes.JSON) error
	Release(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now int64) (int64, error)
}

type idempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: db}
}

func (r *idempotencyRepository) WithTx(tx *gorm.DB) IdempotencyRepository {
	return &idempotencyRepository{db: tx}
}

func (r *idempotencyRepository) Claim(ctx context.Context, accountID uuid.UUID, scope, key string, now, expiresAt int64) (*db_models.IdempotencyRecord, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		rec := &db_models.IdempotencyRecord{
			AccountID: accountID,
			Scope:     scope,
			Key:       key,
			Status:    db_models.IdempotencyInProgress,
			CreatedAt: now,
			ExpiresAt: expiresAt,
		}
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(rec)
		if res.Error != nil {
			return nil, false, res.Error
		}
		if res.RowsAffected == 1 {
			return rec, true, nil
		}

		var existing db_models.IdempotencyRecord
		err := r.db.WithContext(ctx).
			Where("account_id = ? AND scope = ? AND key = ?", accountID, scope, key).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// released between our insert and read; try again
			continue
		}
		if err != nil {
			return nil, false, err
		}
		if existing.ExpiresAt > now {
			return &existing, false, nil
		}
		if err := r.db.WithContext(ctx).
			Where("id = ? AND expires_at <= ?", existing.ID, now).
			Delete(&db_models.IdempotencyRecord{}).Error; err != nil {
			return nil, false, err
		}
	}
	return nil, false, errors.New("idempotency key contended")
}

func (r *idempotencyRepository) Complete(ctx context.Context, id uuid.UUID, response datatypes.JSON) error {
	return r.db.WithContext(ctx).Model(&db_models.IdempotencyRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":   db_models.IdempotencyCompleted,
			"response": response,
		}).Error
}

func (r *idempotencyRepository) Release(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, db_models.IdempotencyInProgress).
		Delete(&db_models.IdempotencyRecord{}).Error
}

func (r *idempotencyRepository) DeleteExpired(ctx context.Context, now int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&db_models.IdempotencyRecord{})
	return res.RowsAffected, res.Error
}
