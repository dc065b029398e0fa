package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"wingman/internal/models/db_models"
)

type AnalysisRepository interface {
	WithTx(tx *gorm.DB) AnalysisRepository
	Create(ctx context.Context, req *db_models.AnalysisRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*db_models.AnalysisRequest, error)
	FindByIDForAccount(ctx context.Context, id, accountID uuid.UUID) (*db_models.AnalysisRequest, error)

	// FindCached returns the newest done request with this fingerprint created
	// at or after since. It only reads.
	FindCached(ctx context.Context, accountID uuid.UUID, fingerprint string, since int64) (*db_models.AnalysisRequest, error)

	// MarkDone and MarkFailed only move a queued request; false means some
	// other worker already finished it.
	MarkDone(ctx context.Context, id uuid.UUID, result datatypes.JSON, tokens int, at int64) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, at int64) (bool, error)
	SetRefundEntry(ctx context.Context, id, entryID uuid.UUID) error

	ListQueued(ctx context.Context, createdBefore int64, limit int) ([]db_models.AnalysisRequest, error)
}

type analysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) AnalysisRepository {
	return &analysisRepository{db: db}
}

func (r *analysisRepository) WithTx(tx *gorm.DB) AnalysisRepository {
	return &analysisRepository{db: tx}
}

func (r *analysisRepository) Create(ctx context.Context, req *db_models.AnalysisRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *analysisRepository) first(q *gorm.DB) (*db_models.AnalysisRequest, error) {
	var req db_models.AnalysisRequest
	if err := q.First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *analysisRepository) FindByID(ctx context.Context, id uuid.UUID) (*db_models.AnalysisRequest, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *analysisRepository) FindByIDForAccount(ctx context.Context, id, accountID uuid.UUID) (*db_models.AnalysisRequest, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID))
}

func (r *analysisRepository) FindCached(ctx context.Context, accountID uuid.UUID, fingerprint string, since int64) (*db_models.AnalysisRequest, error) {
	return r.first(r.db.WithContext(ctx).
		Where("account_id = ? AND fingerprint = ? AND status = ? AND created_at >= ?",
			accountID, fingerprint, db_models.AnalysisDone, since).
		Order("created_at DESC"))
}

func (r *analysisRepository) MarkDone(ctx context.Context, id uuid.UUID, result datatypes.JSON, tokens int, at int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.AnalysisRequest{}).
		Where("id = ? AND status = ?", id, db_models.AnalysisQueued).
		Updates(map[string]interface{}{
			"status":        db_models.AnalysisDone,
			"result":        result,
			"tokens_actual": tokens,
			"completed_at":  at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *analysisRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&db_models.AnalysisRequest{}).
		Where("id = ? AND status = ?", id, db_models.AnalysisQueued).
		Updates(map[string]interface{}{
			"status":         db_models.AnalysisFailed,
			"failure_reason": reason,
			"completed_at":   at,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *analysisRepository) SetRefundEntry(ctx context.Context, id, entryID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&db_models.AnalysisRequest{}).
		Where("id = ?", id).
		Update("refund_entry_id", entryID).Error
}

func (r *analysisRepository) ListQueued(ctx context.Context, createdBefore int64, limit int) ([]db_models.AnalysisRequest, error) {
	var reqs []db_models.AnalysisRequest
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", db_models.AnalysisQueued, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&reqs).Error
	return reqs, err
}
