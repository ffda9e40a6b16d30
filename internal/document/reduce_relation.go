package document

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

func linkAccountContact(doc Document, event events.Event, id string, payload events.AccountContactLinked) (Document, error) {
	if err := ensureCreatable(doc, events.KeyOf(events.FamilyRelation, id)); err != nil {
		return doc, err
	}
	if err := requireText("accountId", payload.AccountID); err != nil {
		return doc, err
	}
	if err := requireText("contactId", payload.ContactID); err != nil {
		return doc, err
	}
	if err := requireExisting(doc, payload.References()...); err != nil {
		return doc, err
	}
	for _, link := range doc.AccountContacts {
		if link.AccountID == payload.AccountID && link.ContactID == payload.ContactID {
			return doc, fmt.Errorf("%w: account %s already linked to contact %s", events.ErrDuplicateEntity, payload.AccountID, payload.ContactID)
		}
	}

	doc.AccountContacts = put(doc.AccountContacts, id, AccountContactLink{
		ID:        id,
		AccountID: payload.AccountID,
		ContactID: payload.ContactID,
		Role:      payload.Role,
		CreatedAt: event.Timestamp,
	})
	return doc, nil
}

func unlinkAccountContact(doc Document, event events.Event, id string) (Document, error) {
	key := events.KeyOf(events.FamilyRelation, id)
	if _, found := doc.AccountContacts[id]; !found {
		return doc, notFound(doc, key)
	}
	doc.AccountContacts = drop(doc.AccountContacts, id)
	return doc.withTombstone(key, event), nil
}

func linkEntities(doc Document, event events.Event, id string, payload events.EntityLinked) (Document, error) {
	if err := ensureCreatable(doc, events.KeyOf(events.FamilyRelation, id)); err != nil {
		return doc, err
	}
	if err := events.ValidateEnum("linkType", payload.LinkType); err != nil {
		return doc, err
	}
	for _, end := range []struct {
		field string
		ref   events.EntityRef
	}{{"source", payload.Source}, {"target", payload.Target}} {
		if !end.ref.Type.Linkable() {
			return doc, fmt.Errorf("%w: %s.type %q", events.ErrInvalidEnumValue, end.field, string(end.ref.Type))
		}
		if err := requireText(end.field+".id", end.ref.ID); err != nil {
			return doc, err
		}
	}
	if payload.Source == payload.Target {
		return doc, fmt.Errorf("%w: %s cannot link to itself", events.ErrInvalidPayload, payload.Source.Key())
	}
	if err := requireExisting(doc, payload.Source.Key(), payload.Target.Key()); err != nil {
		return doc, err
	}

	doc.EntityLinks = put(doc.EntityLinks, id, EntityLink{
		ID:        id,
		Source:    payload.Source,
		Target:    payload.Target,
		LinkType:  payload.LinkType,
		CreatedAt: event.Timestamp,
	})
	return doc, nil
}

func unlinkEntities(doc Document, event events.Event, id string) (Document, error) {
	key := events.KeyOf(events.FamilyRelation, id)
	if _, found := doc.EntityLinks[id]; !found {
		return doc, notFound(doc, key)
	}
	doc.EntityLinks = drop(doc.EntityLinks, id)
	return doc.withTombstone(key, event), nil
}
