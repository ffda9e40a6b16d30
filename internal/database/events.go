package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

var errMissingDatabase = errors.New("database handle is required")

// StoredEvent is one row of the append-only event log.
type StoredEvent struct {
	Seq             int64  `gorm:"column:seq;primaryKey;autoIncrement"`
	EventID         string `gorm:"column:event_id;size:190;not null;uniqueIndex:idx_events_event_id"`
	EventType       string `gorm:"column:event_type;size:190;not null"`
	EntityID        string `gorm:"column:entity_id;size:190;not null;default:'';index:idx_events_entity"`
	PayloadJSON     string `gorm:"column:payload_json;type:text;not null"`
	TimestampMillis int64  `gorm:"column:timestamp_ms;not null"`
	DeviceID        string `gorm:"column:device_id;size:190;not null"`
	StoredAtSeconds int64  `gorm:"column:stored_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (StoredEvent) TableName() string {
	return "events"
}

// EventStore persists events in arrival order and ignores ids it already holds.
type EventStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewEventStore wraps db; a nil clock means time.Now.
func NewEventStore(db *gorm.DB, clock func() time.Time) (*EventStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if clock == nil {
		clock = time.Now
	}
	return &EventStore{db: db, clock: clock}, nil
}

// Append stores the events whose id is new and reports how many were inserted.
// An event without an entityId is stored under the id its payload carries.
func (s *EventStore) Append(ctx context.Context, batch []events.Event) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	storedAt := s.clock().UTC().Unix()
	added := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, event := range batch {
			payload, err := events.EncodePayload(event.Payload)
			if err != nil {
				return fmt.Errorf("encode payload of %s: %w", event.ID, err)
			}
			record := StoredEvent{
				EventID:         event.ID,
				EventType:       string(event.Type),
				EntityID:        storedEntityID(event),
				PayloadJSON:     string(payload),
				TimestampMillis: event.Timestamp,
				DeviceID:        event.DeviceID,
				StoredAtSeconds: storedAt,
			}
			insert := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "event_id"}},
				DoNothing: true,
			}).Create(&record)
			if insert.Error != nil {
				return fmt.Errorf("insert event %s: %w", event.ID, insert.Error)
			}
			added += int(insert.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// Events returns every stored event in arrival order.
func (s *EventStore) Events(ctx context.Context) ([]events.Event, error) {
	var records []StoredEvent
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	loaded := make([]events.Event, 0, len(records))
	for _, record := range records {
		event, err := record.toEvent()
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, event)
	}
	return loaded, nil
}

// Count returns the number of stored events.
func (s *EventStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&StoredEvent{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// storedEntityID fills entity_id from payload.id for events whose envelope left it out.
func storedEntityID(event events.Event) string {
	if event.EntityID != "" {
		return event.EntityID
	}
	resolved, err := events.ResolveEntityID(event)
	if err != nil {
		return ""
	}
	return resolved
}

func (record StoredEvent) toEvent() (events.Event, error) {
	eventType := events.Type(record.EventType)
	payload, err := events.DecodePayload(eventType, []byte(record.PayloadJSON))
	if err != nil {
		return events.Event{}, fmt.Errorf("stored event %s: %w", record.EventID, err)
	}
	return events.Event{
		ID:        record.EventID,
		Type:      eventType,
		EntityID:  record.EntityID,
		Payload:   payload,
		Timestamp: record.TimestampMillis,
		DeviceID:  record.DeviceID,
	}, nil
}
