package repositories

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rohits-web03/meshforge/internal/models"
)

// ConnectDatabase opens the postgres database at dsn and migrates it.
func ConnectDatabase(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("successfully connected to database")
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.AssetRecord{},
	); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
