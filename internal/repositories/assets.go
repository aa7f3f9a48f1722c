package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rohits-web03/meshforge/internal/models"
)

var ErrAssetNotFound = errors.New("model not found")

// AssetRepository stores saved-model metadata. Blob bytes live elsewhere and
// are never touched here.
type AssetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

func (r *AssetRepository) CreateAsset(ctx context.Context, rec *models.AssetRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// ListAssets returns owner's records, newest first.
func (r *AssetRepository) ListAssets(ctx context.Context, owner uuid.UUID) ([]models.AssetRecord, error) {
	var recs []models.AssetRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("created_at DESC").
		Find(&recs).Error
	return recs, err
}

func (r *AssetRepository) GetAsset(ctx context.Context, owner, id uuid.UUID) (*models.AssetRecord, error) {
	var rec models.AssetRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, owner).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteAssets removes owner's records with the given ids and reports how many
// were deleted. Ids belonging to other owners are ignored.
func (r *AssetRepository) DeleteAssets(ctx context.Context, owner uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", owner, ids).
		Delete(&models.AssetRecord{})
	return res.RowsAffected, res.Error
}
