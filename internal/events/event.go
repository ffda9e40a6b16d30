package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Type names exactly one entity-family/action pair.
type Type string

const (
	TypeOrganizationCreated Type = "organization.created"
	TypeOrganizationUpdated Type = "organization.updated"
	TypeOrganizationDeleted Type = "organization.deleted"

	TypeAccountCreated Type = "account.created"
	TypeAccountUpdated Type = "account.updated"
	TypeAccountDeleted Type = "account.deleted"

	TypeContactCreated       Type = "contact.created"
	TypeContactUpdated       Type = "contact.updated"
	TypeContactMethodAdded   Type = "contact.method.added"
	TypeContactMethodUpdated Type = "contact.method.updated"
	TypeContactMethodRemoved Type = "contact.method.removed"
	TypeContactDeleted       Type = "contact.deleted"

	TypeNoteCreated Type = "note.created"
	TypeNoteUpdated Type = "note.updated"
	TypeNoteDeleted Type = "note.deleted"

	TypeInteractionCreated Type = "interaction.created"
	TypeInteractionUpdated Type = "interaction.updated"
	TypeInteractionDeleted Type = "interaction.deleted"

	TypeAccountContactLinked   Type = "relation.account_contact.linked"
	TypeAccountContactUnlinked Type = "relation.account_contact.unlinked"
	TypeEntityLinked           Type = "relation.linked"
	TypeEntityUnlinked         Type = "relation.unlinked"
)

// Family names an entity family.
type Family string

const (
	FamilyOrganization Family = "organization"
	FamilyAccount      Family = "account"
	FamilyContact      Family = "contact"
	FamilyNote         Family = "note"
	FamilyInteraction  Family = "interaction"
	FamilyRelation     Family = "relation"
)

// Valid reports whether the family is known.
func (family Family) Valid() bool {
	switch family {
	case FamilyOrganization, FamilyAccount, FamilyContact, FamilyNote, FamilyInteraction, FamilyRelation:
		return true
	}
	return false
}

// Linkable reports whether records of the family may be the end of an entity link.
func (family Family) Linkable() bool {
	return family.Valid() && family != FamilyRelation
}

// Family returns the entity family encoded in the type's namespace.
func (eventType Type) Family() Family {
	prefix, _, _ := strings.Cut(string(eventType), ".")
	return Family(prefix)
}

// IsCreation reports whether events of this type bring an entity into existence.
func (eventType Type) IsCreation() bool {
	switch eventType {
	case TypeOrganizationCreated, TypeAccountCreated, TypeContactCreated, TypeNoteCreated,
		TypeInteractionCreated, TypeAccountContactLinked, TypeEntityLinked:
		return true
	}
	return false
}

// EntityKey identifies an entity across families.
type EntityKey struct {
	Family Family
	ID     string
}

// KeyOf builds an EntityKey.
func KeyOf(family Family, id string) EntityKey {
	return EntityKey{Family: family, ID: id}
}

// String renders the key as family:id.
func (key EntityKey) String() string {
	return string(key.Family) + ":" + key.ID
}

// Event is an immutable record of one state change authored by one device.
type Event struct {
	ID        string
	Type      Type
	EntityID  string
	Payload   Payload
	Timestamp int64
	DeviceID  string
}

type wireEvent struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	EntityID  string          `json:"entityId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	DeviceID  string          `json:"deviceId"`
}

// New builds an event whose type is taken from the payload.
func New(id string, payload Payload, timestamp int64, deviceID string) Event {
	event := Event{
		ID:        id,
		Payload:   payload,
		Timestamp: timestamp,
		DeviceID:  deviceID,
	}
	if payload != nil {
		event.Type = payload.EventType()
	}
	return event
}

// MarshalJSON renders the wire/storage shape.
func (event Event) MarshalJSON() ([]byte, error) {
	rawPayload, err := EncodePayload(event.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		ID:        event.ID,
		Type:      event.Type,
		EntityID:  event.EntityID,
		Payload:   rawPayload,
		Timestamp: event.Timestamp,
		DeviceID:  event.DeviceID,
	})
}

// UnmarshalJSON decodes the wire shape; unknown event types fail with ErrUnhandledEventType.
func (event *Event) UnmarshalJSON(data []byte) error {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	payload, err := DecodePayload(wire.Type, wire.Payload)
	if err != nil {
		return err
	}
	*event = Event{
		ID:        wire.ID,
		Type:      wire.Type,
		EntityID:  wire.EntityID,
		Payload:   payload,
		Timestamp: wire.Timestamp,
		DeviceID:  wire.DeviceID,
	}
	return nil
}

// Validate checks the envelope fields every stored or exchanged event must carry.
func (event Event) Validate() error {
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("%w: empty event id", ErrInvalidPayload)
	}
	if strings.TrimSpace(event.DeviceID) == "" {
		return fmt.Errorf("%w: empty device id", ErrInvalidPayload)
	}
	if event.Payload == nil {
		return fmt.Errorf("%w: missing payload for %s", ErrInvalidPayload, event.Type)
	}
	if event.Payload.EventType() != event.Type {
		return fmt.Errorf("%w: payload for %s carried as %s", ErrInvalidPayload, event.Payload.EventType(), event.Type)
	}
	return nil
}

// EncodePayload renders a payload as JSON; a nil payload encodes as an empty object.
func EncodePayload(payload Payload) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(payload); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.TrimRight(buffer.Bytes(), "\n")), nil
}
