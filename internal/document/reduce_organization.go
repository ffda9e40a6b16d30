package document

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

func createOrganization(doc Document, event events.Event, id string, payload events.OrganizationCreated) (Document, error) {
	key := events.KeyOf(events.FamilyOrganization, id)
	if err := ensureCreatable(doc, key); err != nil {
		return doc, err
	}
	if err := requireText("name", payload.Name); err != nil {
		return doc, err
	}
	status := payload.Status
	if status == "" {
		status = events.OrganizationStatusActive
	}
	if err := events.ValidateEnum("status", status); err != nil {
		return doc, err
	}

	doc.Organizations = put(doc.Organizations, id, Organization{
		ID:          id,
		Name:        normalizeText(payload.Name),
		Status:      status,
		Industry:    payload.Industry,
		Website:     payload.Website,
		Description: payload.Description,
		CreatedAt:   event.Timestamp,
		UpdatedAt:   event.Timestamp,
	})
	return doc, nil
}

func updateOrganization(doc Document, event events.Event, id string, payload events.OrganizationUpdated) (Document, error) {
	organization, found := doc.Organizations[id]
	if !found {
		return doc, notFound(doc, events.KeyOf(events.FamilyOrganization, id))
	}
	if payload.Name != nil {
		if err := requireText("name", *payload.Name); err != nil {
			return doc, err
		}
		organization.Name = normalizeText(*payload.Name)
	}
	if payload.Status != nil {
		if err := events.ValidateEnum("status", *payload.Status); err != nil {
			return doc, err
		}
		organization.Status = *payload.Status
	}
	if payload.Industry != nil {
		organization.Industry = *payload.Industry
	}
	if payload.Website != nil {
		organization.Website = *payload.Website
	}
	if payload.Description != nil {
		organization.Description = *payload.Description
	}
	organization.UpdatedAt = event.Timestamp

	doc.Organizations = put(doc.Organizations, id, organization)
	return doc, nil
}

func deleteOrganization(doc Document, event events.Event, id string) (Document, error) {
	key := events.KeyOf(events.FamilyOrganization, id)
	if _, found := doc.Organizations[id]; !found {
		return doc, notFound(doc, key)
	}
	if dependent, referenced := organizationDependent(doc, id); referenced {
		return doc, fmt.Errorf("%w: %s is referenced by %s", events.ErrEntityInUse, key, dependent)
	}

	doc.Organizations = drop(doc.Organizations, id)
	doc = doc.withoutLinksTo(key, event)
	return doc.withTombstone(key, event), nil
}

// organizationDependent finds a record whose organizationId points at id.
// The smallest key is reported so the error text is stable.
func organizationDependent(doc Document, organizationID string) (events.EntityKey, bool) {
	var found []events.EntityKey
	for _, account := range doc.Accounts {
		if account.OrganizationID == organizationID {
			found = append(found, events.KeyOf(events.FamilyAccount, account.ID))
		}
	}
	for _, contact := range doc.Contacts {
		if contact.OrganizationID == organizationID {
			found = append(found, events.KeyOf(events.FamilyContact, contact.ID))
		}
	}
	for _, note := range doc.Notes {
		if note.OrganizationID == organizationID {
			found = append(found, events.KeyOf(events.FamilyNote, note.ID))
		}
	}
	for _, interaction := range doc.Interactions {
		if interaction.OrganizationID == organizationID {
			found = append(found, events.KeyOf(events.FamilyInteraction, interaction.ID))
		}
	}
	if len(found) == 0 {
		return events.EntityKey{}, false
	}
	smallest := found[0]
	for _, candidate := range found[1:] {
		if candidate.String() < smallest.String() {
			smallest = candidate
		}
	}
	return smallest, true
}
