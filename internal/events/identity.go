package events

import "fmt"

// ResolveEntityID is the single choke point deriving an event's target id.
// payload.id and entityId must agree when both are present; at least one is required.
func ResolveEntityID(event Event) (string, error) {
	payloadID := ""
	if event.Payload != nil {
		payloadID = event.Payload.PayloadID()
	}
	entityID := event.EntityID

	switch {
	case payloadID != "" && entityID != "" && payloadID != entityID:
		return "", fmt.Errorf("%w: payload.id %q, entityId %q", ErrIdentityMismatch, payloadID, entityID)
	case payloadID != "":
		return payloadID, nil
	case entityID != "":
		return entityID, nil
	default:
		return "", fmt.Errorf("%w: %s %s", ErrMissingIdentity, event.Type, event.ID)
	}
}

// TargetKey resolves the event's target and qualifies it with the event family.
func TargetKey(event Event) (EntityKey, error) {
	id, err := ResolveEntityID(event)
	if err != nil {
		return EntityKey{}, err
	}
	return KeyOf(event.Type.Family(), id), nil
}

// Dependencies lists the entity keys whose creation must precede the event:
// the target for non-creation events, then every entity the payload references.
func Dependencies(event Event) []EntityKey {
	var dependencies []EntityKey
	if !event.Type.IsCreation() {
		if key, err := TargetKey(event); err == nil {
			dependencies = append(dependencies, key)
		}
	}
	if referencer, ok := event.Payload.(Referencer); ok {
		for _, reference := range referencer.References() {
			if reference.ID == "" || !reference.Family.Valid() {
				continue
			}
			dependencies = append(dependencies, reference)
		}
	}
	return dependencies
}
