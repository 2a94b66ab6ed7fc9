package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/proofing/internal/recordstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillFavoritesUpdatedAt = "2024-05-01_backfill_favorites_updated_at"
	migrationBackfillCommentsUpdatedAt  = "2024-05-01_backfill_comments_updated_at"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillFavoritesUpdatedAt, apply: backfillUpdatedAt(recordstore.TableFavorites)},
		{name: migrationBackfillCommentsUpdatedAt, apply: backfillUpdatedAt(recordstore.TableComments)},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before updated_at existed carry 0; they were never edited.
func backfillUpdatedAt(table string) func(*gorm.DB) error {
	return func(db *gorm.DB) error {
		return db.Table(table).
			Where("updated_at = 0").
			Update("updated_at", gorm.Expr("created_at")).Error
	}
}
