package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/replay/internal/recording"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("store: database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opSave    = "store.save"
	opLoad    = "store.load"
	opList    = "store.list"
	opDelete  = "store.delete"
	opSummary = "store.summaries"
)

// RecordingModel is the persisted header of a recording.
type RecordingModel struct {
	RecordingID   string `gorm:"column:recording_id;primaryKey;size:190;not null"`
	Name          string `gorm:"column:name;size:255;not null"`
	CreatedAtMs   int64  `gorm:"column:created_at_ms;not null;index:idx_recordings_created"`
	DurationMs    int64  `gorm:"column:duration_ms;not null"`
	SnapshotCount int    `gorm:"column:snapshot_count;not null;default:0"`
	HasAudio      bool   `gorm:"column:has_audio;not null;default:false"`
	AudioOffsetMs int64  `gorm:"column:audio_offset_ms;not null;default:0"`
	Audio         []byte `gorm:"column:audio;type:blob"`
}

// TableName provides the explicit table binding for GORM.
func (RecordingModel) TableName() string {
	return "recordings"
}

// SnapshotModel stores one snapshot of a recording.
type SnapshotModel struct {
	RecordingID string `gorm:"column:recording_id;primaryKey;size:190;not null"`
	Sequence    int    `gorm:"column:seq;primaryKey;not null"`
	TimestampMs int64  `gorm:"column:timestamp_ms;not null"`
	Content     string `gorm:"column:content;type:text;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SnapshotModel) TableName() string {
	return "recording_snapshots"
}

// GormConfig describes the dependencies of a GormStore.
type GormConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// GormStore persists recordings through GORM. The schema is created by database.OpenSQLite.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore constructs a GormStore.
func NewGormStore(cfg GormConfig) (*GormStore, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &GormStore{db: cfg.Database, logger: logger}, nil
}

// Save writes the recording header and its snapshots in one transaction.
func (s *GormStore) Save(ctx context.Context, rec *recording.Recording) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	header := RecordingModel{
		RecordingID:   rec.ID.String(),
		Name:          rec.Name,
		CreatedAtMs:   rec.CreatedAt.UnixMilli(),
		DurationMs:    rec.Duration,
		SnapshotCount: len(rec.Snapshots),
		HasAudio:      rec.HasAudio(),
		AudioOffsetMs: rec.AudioOffset,
		Audio:         rec.AudioTrack,
	}
	rows := make([]SnapshotModel, 0, len(rec.Snapshots))
	for index, snapshot := range rec.Snapshots {
		rows = append(rows, SnapshotModel{
			RecordingID: header.RecordingID,
			Sequence:    index,
			TimestampMs: snapshot.Timestamp,
			Content:     snapshot.Content,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&RecordingModel{}).Where("recording_id = ?", header.RecordingID).Count(&existing).Error; err != nil {
			s.logError(opSave, "existence_check_failed", err, zap.String("recording_id", header.RecordingID))
			return err
		}
		if existing > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateRecording, header.RecordingID)
		}
		if err := tx.Create(&header).Error; err != nil {
			s.logError(opSave, "header_insert_failed", err, zap.String("recording_id", header.RecordingID))
			return err
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			s.logError(opSave, "snapshot_insert_failed", err,
				zap.String("recording_id", header.RecordingID),
				zap.Int("snapshot_count", len(rows)))
			return err
		}
		return nil
	})
}

// Load reads the recording and its snapshots.
func (s *GormStore) Load(ctx context.Context, id recording.RecordingID) (*recording.Recording, error) {
	var header RecordingModel
	err := s.db.WithContext(ctx).Where("recording_id = ?", id.String()).Take(&header).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", recording.ErrNotFound, id)
	}
	if err != nil {
		s.logError(opLoad, "header_select_failed", err, zap.String("recording_id", id.String()))
		return nil, err
	}
	var rows []SnapshotModel
	if err := s.db.WithContext(ctx).Where("recording_id = ?", header.RecordingID).Order("seq ASC").Find(&rows).Error; err != nil {
		s.logError(opLoad, "snapshot_select_failed", err, zap.String("recording_id", id.String()))
		return nil, err
	}
	return toRecording(header, rows), nil
}

// List reads every recording in creation order.
func (s *GormStore) List(ctx context.Context) ([]*recording.Recording, error) {
	var headers []RecordingModel
	if err := s.db.WithContext(ctx).Order("created_at_ms ASC, recording_id ASC").Find(&headers).Error; err != nil {
		s.logError(opList, "header_select_failed", err)
		return nil, err
	}
	if len(headers) == 0 {
		return []*recording.Recording{}, nil
	}
	identifiers := make([]string, 0, len(headers))
	for _, header := range headers {
		identifiers = append(identifiers, header.RecordingID)
	}
	var rows []SnapshotModel
	if err := s.db.WithContext(ctx).Where("recording_id IN ?", identifiers).Order("recording_id ASC, seq ASC").Find(&rows).Error; err != nil {
		s.logError(opList, "snapshot_select_failed", err)
		return nil, err
	}
	grouped := make(map[string][]SnapshotModel, len(headers))
	for _, row := range rows {
		grouped[row.RecordingID] = append(grouped[row.RecordingID], row)
	}
	result := make([]*recording.Recording, 0, len(headers))
	for _, header := range headers {
		result = append(result, toRecording(header, grouped[header.RecordingID]))
	}
	return result, nil
}

// Summaries reads recording headers in creation order without loading audio or snapshots.
func (s *GormStore) Summaries(ctx context.Context) ([]recording.Summary, error) {
	var headers []RecordingModel
	err := s.db.WithContext(ctx).
		Select("recording_id", "name", "created_at_ms", "duration_ms", "snapshot_count", "has_audio").
		Order("created_at_ms ASC, recording_id ASC").
		Find(&headers).Error
	if err != nil {
		s.logError(opSummary, "header_select_failed", err)
		return nil, err
	}
	result := make([]recording.Summary, 0, len(headers))
	for _, header := range headers {
		result = append(result, recording.Summary{
			ID:            recording.RecordingID(header.RecordingID),
			Name:          header.Name,
			CreatedAt:     time.UnixMilli(header.CreatedAtMs).UTC(),
			Duration:      header.DurationMs,
			SnapshotCount: header.SnapshotCount,
			HasAudio:      header.HasAudio,
		})
	}
	return result, nil
}

// Delete removes the recording and its snapshots in one transaction.
func (s *GormStore) Delete(ctx context.Context, id recording.RecordingID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("recording_id = ?", id.String()).Delete(&RecordingModel{})
		if result.Error != nil {
			s.logError(opDelete, "header_delete_failed", result.Error, zap.String("recording_id", id.String()))
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", recording.ErrNotFound, id)
		}
		if err := tx.Where("recording_id = ?", id.String()).Delete(&SnapshotModel{}).Error; err != nil {
			s.logError(opDelete, "snapshot_delete_failed", err, zap.String("recording_id", id.String()))
			return err
		}
		return nil
	})
}

func toRecording(header RecordingModel, rows []SnapshotModel) *recording.Recording {
	snapshots := make([]recording.Snapshot, 0, len(rows))
	for _, row := range rows {
		snapshots = append(snapshots, recording.Snapshot{Timestamp: row.TimestampMs, Content: row.Content})
	}
	var audioTrack []byte
	if len(header.Audio) > 0 {
		audioTrack = header.Audio
	}
	return &recording.Recording{
		ID:          recording.RecordingID(header.RecordingID),
		Name:        header.Name,
		CreatedAt:   time.UnixMilli(header.CreatedAtMs).UTC(),
		Duration:    header.DurationMs,
		Snapshots:   snapshots,
		AudioTrack:  audioTrack,
		AudioOffset: header.AudioOffsetMs,
	}
}

func (s *GormStore) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("recording store error", attrs...)
}
