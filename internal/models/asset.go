package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AssetRecord is one saved model. A nil path means that asset was never
// produced; a non-nil path may still point at a blob that is being uploaded.
type AssetRecord struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID       uuid.UUID `json:"userId" gorm:"column:user_id;type:uuid;index;not null"`
	Name          string    `json:"name" gorm:"not null"`
	GLBPath       *string   `json:"glbPath" gorm:"column:glb_path"`
	USDZPath      *string   `json:"usdzPath" gorm:"column:usdz_path"`
	ThumbnailPath *string   `json:"thumbnailPath" gorm:"column:thumbnail_path"`
	CreatedAt     time.Time `json:"createdAt" gorm:"index"`
}

func (AssetRecord) TableName() string {
	return "user_models"
}

func (a *AssetRecord) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
