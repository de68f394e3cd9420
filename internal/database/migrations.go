package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillSnapshotCounts = "2026-09-02_backfill_recording_snapshot_counts"
	migrationBackfillAudioFlags     = "2026-09-02_backfill_recording_audio_flags"
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
		{name: migrationBackfillSnapshotCounts, apply: backfillSnapshotCounts},
		{name: migrationBackfillAudioFlags, apply: backfillAudioFlags},
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

// Headers written before snapshot_count existed carry the column default.
func backfillSnapshotCounts(db *gorm.DB) error {
	counts := db.Model(&store.SnapshotModel{}).
		Select("COUNT(*)").
		Where("recording_snapshots.recording_id = recordings.recording_id")
	return db.Model(&store.RecordingModel{}).
		Where("snapshot_count = 0").
		Update("snapshot_count", counts).Error
}

func backfillAudioFlags(db *gorm.DB) error {
	return db.Model(&store.RecordingModel{}).
		Where("has_audio = ? AND audio IS NOT NULL AND length(audio) > 0", false).
		Update("has_audio", true).Error
}
