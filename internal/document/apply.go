package document

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
	"golang.org/x/text/unicode/norm"
)

// Apply folds one event into doc and returns the resulting document.
// On error the returned document is doc, unchanged.
func Apply(doc Document, event events.Event) (Document, error) {
	next, err := apply(doc.normalized().clone(), event)
	if err != nil {
		return doc, err
	}
	return next, nil
}

// apply folds event into doc in place. doc must be normalized and owned by
// the caller. Reducers validate before they write, so a failed event leaves
// doc untouched.
func apply(doc Document, event events.Event) (Document, error) {
	if !event.Type.Known() {
		return doc, fmt.Errorf("%w: %q", events.ErrUnhandledEventType, string(event.Type))
	}
	if event.Payload == nil {
		return doc, fmt.Errorf("%w: missing payload for %s", events.ErrInvalidPayload, event.Type)
	}
	if event.Payload.EventType() != event.Type {
		return doc, fmt.Errorf("%w: payload for %s carried as %s", events.ErrInvalidPayload, event.Payload.EventType(), event.Type)
	}
	id, err := events.ResolveEntityID(event)
	if err != nil {
		return doc, err
	}

	var next Document
	switch payload := event.Payload.(type) {
	case events.OrganizationCreated:
		next, err = createOrganization(doc, event, id, payload)
	case events.OrganizationUpdated:
		next, err = updateOrganization(doc, event, id, payload)
	case events.OrganizationDeleted:
		next, err = deleteOrganization(doc, event, id)
	case events.AccountCreated:
		next, err = createAccount(doc, event, id, payload)
	case events.AccountUpdated:
		next, err = updateAccount(doc, event, id, payload)
	case events.AccountDeleted:
		next, err = deleteAccount(doc, event, id)
	case events.ContactCreated:
		next, err = createContact(doc, event, id, payload)
	case events.ContactUpdated:
		next, err = updateContact(doc, event, id, payload)
	case events.ContactMethodAdded:
		next, err = addContactMethod(doc, event, id, payload)
	case events.ContactMethodUpdated:
		next, err = replaceContactMethod(doc, event, id, payload)
	case events.ContactMethodRemoved:
		next, err = removeContactMethod(doc, event, id, payload)
	case events.ContactDeleted:
		next, err = deleteContact(doc, event, id)
	case events.NoteCreated:
		next, err = createNote(doc, event, id, payload)
	case events.NoteUpdated:
		next, err = updateNote(doc, event, id, payload)
	case events.NoteDeleted:
		next, err = deleteNote(doc, event, id)
	case events.InteractionCreated:
		next, err = createInteraction(doc, event, id, payload)
	case events.InteractionUpdated:
		next, err = updateInteraction(doc, event, id, payload)
	case events.InteractionDeleted:
		next, err = deleteInteraction(doc, event, id)
	case events.AccountContactLinked:
		next, err = linkAccountContact(doc, event, id, payload)
	case events.AccountContactUnlinked:
		next, err = unlinkAccountContact(doc, event, id)
	case events.EntityLinked:
		next, err = linkEntities(doc, event, id, payload)
	case events.EntityUnlinked:
		next, err = unlinkEntities(doc, event, id)
	default:
		return doc, fmt.Errorf("%w: %s carries %T", events.ErrUnhandledEventType, event.Type, event.Payload)
	}
	if err != nil {
		return doc, err
	}
	return next, nil
}

func ensureCreatable(doc Document, key events.EntityKey) error {
	if doc.Exists(key) {
		return fmt.Errorf("%w: %s", events.ErrDuplicateEntity, key)
	}
	if doc.Deleted(key) {
		return fmt.Errorf("%w: %s was deleted", events.ErrDuplicateEntity, key)
	}
	return nil
}

func notFound(doc Document, key events.EntityKey) error {
	if doc.Deleted(key) {
		return fmt.Errorf("%w: %w: %s", events.ErrEntityNotFound, events.ErrEntityDeleted, key)
	}
	return fmt.Errorf("%w: %s", events.ErrEntityNotFound, key)
}

func requireExisting(doc Document, keys ...events.EntityKey) error {
	for _, key := range keys {
		if !doc.Exists(key) {
			return notFound(doc, key)
		}
	}
	return nil
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", events.ErrInvalidPayload, field)
	}
	return nil
}

// normalizeText trims and NFC-normalizes identifying text so that devices
// entering composed and decomposed forms converge on the same bytes.
func normalizeText(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}

func put[V any](entities map[string]V, id string, value V) map[string]V {
	entities[id] = value
	return entities
}

func drop[V any](entities map[string]V, id string) map[string]V {
	delete(entities, id)
	return entities
}

func (doc Document) withTombstone(key events.EntityKey, event events.Event) Document {
	doc.Tombstones = put(doc.Tombstones, key.String(), Tombstone{
		Family:    key.Family,
		ID:        key.ID,
		DeletedAt: event.Timestamp,
		EventID:   event.ID,
		DeviceID:  event.DeviceID,
	})
	return doc
}

// withoutLinksTo removes every relation referencing key and tombstones the removed relations.
func (doc Document) withoutLinksTo(key events.EntityKey, event events.Event) Document {
	var removed []string
	for linkID, link := range doc.AccountContacts {
		if (key.Family == events.FamilyAccount && link.AccountID == key.ID) ||
			(key.Family == events.FamilyContact && link.ContactID == key.ID) {
			removed = append(removed, linkID)
		}
	}
	for _, linkID := range removed {
		delete(doc.AccountContacts, linkID)
	}

	removedAccountContacts := len(removed)
	for linkID, link := range doc.EntityLinks {
		if link.Source.Key() == key || link.Target.Key() == key {
			removed = append(removed, linkID)
		}
	}
	for _, linkID := range removed[removedAccountContacts:] {
		delete(doc.EntityLinks, linkID)
	}

	for _, linkID := range removed {
		relationKey := events.KeyOf(events.FamilyRelation, linkID)
		doc.Tombstones[relationKey.String()] = Tombstone{
			Family:    events.FamilyRelation,
			ID:        linkID,
			DeletedAt: event.Timestamp,
			EventID:   event.ID,
			DeviceID:  event.DeviceID,
		}
	}
	return doc
}
