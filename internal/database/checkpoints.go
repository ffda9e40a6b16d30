package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/crmcore/internal/document"
)

// StoredCheckpoint stores a snappy-compressed document snapshot per canonical position.
type StoredCheckpoint struct {
	Position     int    `gorm:"column:position;primaryKey;autoIncrement:false"`
	LastEventID  string `gorm:"column:last_event_id;size:190;not null"`
	PrefixDigest string `gorm:"column:prefix_digest;size:64;not null"`
	Snapshot     []byte `gorm:"column:snapshot;not null"`
}

// TableName provides the explicit table binding for GORM.
func (StoredCheckpoint) TableName() string {
	return "checkpoints"
}

type snapshotBody struct {
	Document json.RawMessage      `json:"document"`
	Rejected []document.Rejection `json:"rejected"`
}

// CheckpointStore persists checkpoints keyed by position.
type CheckpointStore struct {
	db *gorm.DB
}

// NewCheckpointStore wraps db.
func NewCheckpointStore(db *gorm.DB) (*CheckpointStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &CheckpointStore{db: db}, nil
}

// SaveCheckpoint stores checkpoint, replacing any checkpoint at the same position.
func (s *CheckpointStore) SaveCheckpoint(ctx context.Context, checkpoint document.Checkpoint) error {
	canonical, err := document.Canonical(checkpoint.Document)
	if err != nil {
		return err
	}
	body, err := json.Marshal(snapshotBody{Document: canonical, Rejected: checkpoint.Rejected})
	if err != nil {
		return fmt.Errorf("encode checkpoint %d: %w", checkpoint.Position, err)
	}
	record := StoredCheckpoint{
		Position:     checkpoint.Position,
		LastEventID:  checkpoint.LastEventID,
		PrefixDigest: checkpoint.PrefixDigest,
		Snapshot:     snappy.Encode(nil, body),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "position"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_event_id", "prefix_digest", "snapshot"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("save checkpoint %d: %w", checkpoint.Position, err)
	}
	return nil
}

// LatestCheckpoint returns the checkpoint with the greatest position not above maxPosition.
func (s *CheckpointStore) LatestCheckpoint(ctx context.Context, maxPosition int) (document.Checkpoint, bool, error) {
	var record StoredCheckpoint
	err := s.db.WithContext(ctx).
		Where("position <= ?", maxPosition).
		Order("position DESC").
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return document.Checkpoint{}, false, nil
	}
	if err != nil {
		return document.Checkpoint{}, false, fmt.Errorf("query checkpoint: %w", err)
	}

	body, err := snappy.Decode(nil, record.Snapshot)
	if err != nil {
		return document.Checkpoint{}, false, fmt.Errorf("decompress checkpoint %d: %w", record.Position, err)
	}
	var decoded snapshotBody
	if err := json.Unmarshal(body, &decoded); err != nil {
		return document.Checkpoint{}, false, fmt.Errorf("decode checkpoint %d: %w", record.Position, err)
	}
	doc, err := document.Decode(decoded.Document)
	if err != nil {
		return document.Checkpoint{}, false, err
	}
	return document.Checkpoint{
		LastEventID:  record.LastEventID,
		Position:     record.Position,
		PrefixDigest: record.PrefixDigest,
		Document:     doc,
		Rejected:     decoded.Rejected,
	}, true, nil
}

// DeleteCheckpointsAfter removes every checkpoint beyond position.
func (s *CheckpointStore) DeleteCheckpointsAfter(ctx context.Context, position int) error {
	if err := s.db.WithContext(ctx).Where("position > ?", position).Delete(&StoredCheckpoint{}).Error; err != nil {
		return fmt.Errorf("delete checkpoints after %d: %w", position, err)
	}
	return nil
}
