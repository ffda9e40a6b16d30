package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

type payloadDecoder func(json.RawMessage) (Payload, error)

var payloadDecoders = map[Type]payloadDecoder{
	TypeOrganizationCreated:    decodeAs[OrganizationCreated],
	TypeOrganizationUpdated:    decodeAs[OrganizationUpdated],
	TypeOrganizationDeleted:    decodeAs[OrganizationDeleted],
	TypeAccountCreated:         decodeAs[AccountCreated],
	TypeAccountUpdated:         decodeAs[AccountUpdated],
	TypeAccountDeleted:         decodeAs[AccountDeleted],
	TypeContactCreated:         decodeAs[ContactCreated],
	TypeContactUpdated:         decodeAs[ContactUpdated],
	TypeContactMethodAdded:     decodeAs[ContactMethodAdded],
	TypeContactMethodUpdated:   decodeAs[ContactMethodUpdated],
	TypeContactMethodRemoved:   decodeAs[ContactMethodRemoved],
	TypeContactDeleted:         decodeAs[ContactDeleted],
	TypeNoteCreated:            decodeAs[NoteCreated],
	TypeNoteUpdated:            decodeAs[NoteUpdated],
	TypeNoteDeleted:            decodeAs[NoteDeleted],
	TypeInteractionCreated:     decodeAs[InteractionCreated],
	TypeInteractionUpdated:     decodeAs[InteractionUpdated],
	TypeInteractionDeleted:     decodeAs[InteractionDeleted],
	TypeAccountContactLinked:   decodeAs[AccountContactLinked],
	TypeAccountContactUnlinked: decodeAs[AccountContactUnlinked],
	TypeEntityLinked:           decodeAs[EntityLinked],
	TypeEntityUnlinked:         decodeAs[EntityUnlinked],
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var payload T
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return payload, nil
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return payload, nil
}

// Known reports whether a payload shape is registered for the type.
func (eventType Type) Known() bool {
	_, ok := payloadDecoders[eventType]
	return ok
}

// DecodePayload decodes raw JSON into the payload shape registered for eventType.
func DecodePayload(eventType Type, raw json.RawMessage) (Payload, error) {
	decode, ok := payloadDecoders[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnhandledEventType, string(eventType))
	}
	payload, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return payload, nil
}

// knownTypes lists every registered event type in lexical order.
func knownTypes() []Type {
	known := make([]Type, 0, len(payloadDecoders))
	for eventType := range payloadDecoders {
		known = append(known, eventType)
	}
	slices.Sort(known)
	return known
}
