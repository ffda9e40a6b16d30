package document

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

func createInteraction(doc Document, event events.Event, id string, payload events.InteractionCreated) (Document, error) {
	if err := ensureCreatable(doc, events.KeyOf(events.FamilyInteraction, id)); err != nil {
		return doc, err
	}
	if err := events.ValidateEnum("kind", payload.Kind); err != nil {
		return doc, err
	}
	if err := checkDuration(payload.DurationMinutes); err != nil {
		return doc, err
	}
	if payload.OrganizationID != "" {
		if err := requireExisting(doc, events.KeyOf(events.FamilyOrganization, payload.OrganizationID)); err != nil {
			return doc, err
		}
	}
	occurredAt := payload.OccurredAt
	if occurredAt == 0 {
		occurredAt = event.Timestamp
	}

	doc.Interactions = put(doc.Interactions, id, Interaction{
		ID:              id,
		Kind:            payload.Kind,
		OccurredAt:      occurredAt,
		Summary:         payload.Summary,
		DurationMinutes: payload.DurationMinutes,
		OrganizationID:  payload.OrganizationID,
		CreatedAt:       event.Timestamp,
		UpdatedAt:       event.Timestamp,
	})
	return doc, nil
}

func updateInteraction(doc Document, event events.Event, id string, payload events.InteractionUpdated) (Document, error) {
	interaction, found := doc.Interactions[id]
	if !found {
		return doc, notFound(doc, events.KeyOf(events.FamilyInteraction, id))
	}
	if payload.Kind != nil {
		if err := events.ValidateEnum("kind", *payload.Kind); err != nil {
			return doc, err
		}
		interaction.Kind = *payload.Kind
	}
	if payload.DurationMinutes != nil {
		if err := checkDuration(*payload.DurationMinutes); err != nil {
			return doc, err
		}
		interaction.DurationMinutes = *payload.DurationMinutes
	}
	if payload.OccurredAt != nil {
		interaction.OccurredAt = *payload.OccurredAt
	}
	if payload.Summary != nil {
		interaction.Summary = *payload.Summary
	}
	interaction.UpdatedAt = event.Timestamp

	doc.Interactions = put(doc.Interactions, id, interaction)
	return doc, nil
}

func deleteInteraction(doc Document, event events.Event, id string) (Document, error) {
	key := events.KeyOf(events.FamilyInteraction, id)
	if _, found := doc.Interactions[id]; !found {
		return doc, notFound(doc, key)
	}
	doc.Interactions = drop(doc.Interactions, id)
	doc = doc.withoutLinksTo(key, event)
	return doc.withTombstone(key, event), nil
}

func checkDuration(minutes int) error {
	if minutes < 0 {
		return fmt.Errorf("%w: durationMinutes %d is negative", events.ErrInvalidPayload, minutes)
	}
	return nil
}
