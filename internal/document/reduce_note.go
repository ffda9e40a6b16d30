package document

import "github.com/MarcoPoloResearchLab/crmcore/internal/events"

func createNote(doc Document, event events.Event, id string, payload events.NoteCreated) (Document, error) {
	if err := ensureCreatable(doc, events.KeyOf(events.FamilyNote, id)); err != nil {
		return doc, err
	}
	if payload.OrganizationID != "" {
		if err := requireExisting(doc, events.KeyOf(events.FamilyOrganization, payload.OrganizationID)); err != nil {
			return doc, err
		}
	}
	doc.Notes = put(doc.Notes, id, Note{
		ID:             id,
		Title:          payload.Title,
		Body:           payload.Body,
		OrganizationID: payload.OrganizationID,
		CreatedAt:      event.Timestamp,
		UpdatedAt:      event.Timestamp,
	})
	return doc, nil
}

func updateNote(doc Document, event events.Event, id string, payload events.NoteUpdated) (Document, error) {
	note, found := doc.Notes[id]
	if !found {
		return doc, notFound(doc, events.KeyOf(events.FamilyNote, id))
	}
	if payload.Title != nil {
		note.Title = *payload.Title
	}
	if payload.Body != nil {
		note.Body = *payload.Body
	}
	note.UpdatedAt = event.Timestamp

	doc.Notes = put(doc.Notes, id, note)
	return doc, nil
}

func deleteNote(doc Document, event events.Event, id string) (Document, error) {
	key := events.KeyOf(events.FamilyNote, id)
	if _, found := doc.Notes[id]; !found {
		return doc, notFound(doc, key)
	}
	doc.Notes = drop(doc.Notes, id)
	doc = doc.withoutLinksTo(key, event)
	return doc.withTombstone(key, event), nil
}
