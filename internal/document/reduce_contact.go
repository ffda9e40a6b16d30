package document

import (
	"fmt"
	"slices"
	"strings"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

func createContact(doc Document, event events.Event, id string, payload events.ContactCreated) (Document, error) {
	if err := ensureCreatable(doc, events.KeyOf(events.FamilyContact, id)); err != nil {
		return doc, err
	}
	if err := events.ValidateEnum("type", payload.Kind); err != nil {
		return doc, err
	}
	if payload.Methods == nil || payload.Methods.Emails == nil || payload.Methods.Phones == nil {
		return doc, fmt.Errorf("%w: methods.emails and methods.phones are required", events.ErrInvalidPayload)
	}
	if payload.OrganizationID != "" {
		if err := requireExisting(doc, events.KeyOf(events.FamilyOrganization, payload.OrganizationID)); err != nil {
			return doc, err
		}
	}
	emails, err := normalizeMethods(events.MethodTypeEmails, payload.Methods.Emails)
	if err != nil {
		return doc, err
	}
	phones, err := normalizeMethods(events.MethodTypePhones, payload.Methods.Phones)
	if err != nil {
		return doc, err
	}

	contact := Contact{
		ID:             id,
		Kind:           payload.Kind,
		Name:           normalizeText(payload.Name),
		FirstName:      normalizeText(payload.FirstName),
		LastName:       normalizeText(payload.LastName),
		Title:          payload.Title,
		OrganizationID: payload.OrganizationID,
		Methods:        ContactMethods{Emails: emails, Phones: phones},
		CreatedAt:      event.Timestamp,
		UpdatedAt:      event.Timestamp,
	}
	contact.DisplayName = displayName(contact.Name, contact.FirstName, contact.LastName)

	doc.Contacts = put(doc.Contacts, id, contact)
	return doc, nil
}

func updateContact(doc Document, event events.Event, id string, payload events.ContactUpdated) (Document, error) {
	contact, found := doc.Contacts[id]
	if !found {
		return doc, notFound(doc, events.KeyOf(events.FamilyContact, id))
	}
	if payload.Kind != nil {
		if err := events.ValidateEnum("type", *payload.Kind); err != nil {
			return doc, err
		}
		contact.Kind = *payload.Kind
	}
	if payload.OrganizationID != nil {
		if *payload.OrganizationID != "" {
			if err := requireExisting(doc, events.KeyOf(events.FamilyOrganization, *payload.OrganizationID)); err != nil {
				return doc, err
			}
		}
		contact.OrganizationID = *payload.OrganizationID
	}
	if payload.Name != nil {
		contact.Name = normalizeText(*payload.Name)
	}
	if payload.FirstName != nil {
		contact.FirstName = normalizeText(*payload.FirstName)
	}
	if payload.LastName != nil {
		contact.LastName = normalizeText(*payload.LastName)
	}
	if payload.Title != nil {
		contact.Title = *payload.Title
	}
	contact.DisplayName = displayName(contact.Name, contact.FirstName, contact.LastName)
	contact.UpdatedAt = event.Timestamp

	doc.Contacts = put(doc.Contacts, id, contact)
	return doc, nil
}

func addContactMethod(doc Document, event events.Event, id string, payload events.ContactMethodAdded) (Document, error) {
	contact, found := doc.Contacts[id]
	if !found {
		return doc, notFound(doc, events.KeyOf(events.FamilyContact, id))
	}
	if err := events.ValidateEnum("methodType", payload.MethodType); err != nil {
		return doc, err
	}
	method, err := normalizeMethod(payload.MethodType, payload.Method)
	if err != nil {
		return doc, err
	}

	collection := append(slices.Clone(contact.Methods.collection(payload.MethodType)), method)
	contact.Methods = contact.Methods.with(payload.MethodType, withSinglePrimary(collection, len(collection)-1))
	contact.UpdatedAt = event.Timestamp

	doc.Contacts = put(doc.Contacts, id, contact)
	return doc, nil
}

func replaceContactMethod(doc Document, event events.Event, id string, payload events.ContactMethodUpdated) (Document, error) {
	contact, found := doc.Contacts[id]
	if !found {
		return doc, notFound(doc, events.KeyOf(events.FamilyContact, id))
	}
	if err := events.ValidateEnum("methodType", payload.MethodType); err != nil {
		return doc, err
	}
	existing := contact.Methods.collection(payload.MethodType)
	if err := checkIndex(payload.MethodType, payload.Index, len(existing)); err != nil {
		return doc, err
	}
	method, err := normalizeMethod(payload.MethodType, payload.Method)
	if err != nil {
		return doc, err
	}

	collection := slices.Clone(existing)
	collection[payload.Index] = method
	contact.Methods = contact.Methods.with(payload.MethodType, withSinglePrimary(collection, payload.Index))
	contact.UpdatedAt = event.Timestamp

	doc.Contacts = put(doc.Contacts, id, contact)
	return doc, nil
}

func removeContactMethod(doc Document, event events.Event, id string, payload events.ContactMethodRemoved) (Document, error) {
	contact, found := doc.Contacts[id]
	if !found {
		return doc, notFound(doc, events.KeyOf(events.FamilyContact, id))
	}
	if err := events.ValidateEnum("methodType", payload.MethodType); err != nil {
		return doc, err
	}
	existing := contact.Methods.collection(payload.MethodType)
	if err := checkIndex(payload.MethodType, payload.Index, len(existing)); err != nil {
		return doc, err
	}

	collection := slices.Delete(slices.Clone(existing), payload.Index, payload.Index+1)
	contact.Methods = contact.Methods.with(payload.MethodType, collection)
	contact.UpdatedAt = event.Timestamp

	doc.Contacts = put(doc.Contacts, id, contact)
	return doc, nil
}

func deleteContact(doc Document, event events.Event, id string) (Document, error) {
	key := events.KeyOf(events.FamilyContact, id)
	if _, found := doc.Contacts[id]; !found {
		return doc, notFound(doc, key)
	}
	doc.Contacts = drop(doc.Contacts, id)
	doc = doc.withoutLinksTo(key, event)
	return doc.withTombstone(key, event), nil
}

func displayName(name, firstName, lastName string) string {
	if explicit := normalizeText(name); explicit != "" {
		return explicit
	}
	parts := make([]string, 0, 2)
	for _, part := range []string{firstName, lastName} {
		if trimmed := normalizeText(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

func checkIndex(methodType events.MethodType, index, length int) error {
	if index < 0 || index >= length {
		return fmt.Errorf("%w: %s index %d, length %d", events.ErrIndexOutOfRange, methodType, index, length)
	}
	return nil
}

func normalizeMethod(methodType events.MethodType, method events.ContactMethod) (events.ContactMethod, error) {
	if err := requireText(string(methodType)+" value", method.Value); err != nil {
		return events.ContactMethod{}, err
	}
	if err := events.ValidateEnum("label", method.Label); err != nil {
		return events.ContactMethod{}, err
	}
	method.Value = normalizeText(method.Value)
	return method, nil
}

func normalizeMethods(methodType events.MethodType, methods []events.ContactMethod) ([]events.ContactMethod, error) {
	normalized := make([]events.ContactMethod, 0, len(methods))
	primary := -1
	for index, method := range methods {
		next, err := normalizeMethod(methodType, method)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", methodType, index, err)
		}
		if next.Primary && primary < 0 {
			primary = index
		}
		normalized = append(normalized, next)
	}
	if primary >= 0 {
		normalized = withSinglePrimary(normalized, primary)
	}
	return normalized, nil
}

// withSinglePrimary clears the primary flag everywhere except index when index is primary.
// The slice must already be owned by the caller.
func withSinglePrimary(methods []events.ContactMethod, index int) []events.ContactMethod {
	if !methods[index].Primary {
		return methods
	}
	for position := range methods {
		if position != index {
			methods[position].Primary = false
		}
	}
	return methods
}

func (methods ContactMethods) collection(methodType events.MethodType) []events.ContactMethod {
	if methodType == events.MethodTypePhones {
		return methods.Phones
	}
	return methods.Emails
}

func (methods ContactMethods) with(methodType events.MethodType, collection []events.ContactMethod) ContactMethods {
	if methodType == events.MethodTypePhones {
		methods.Phones = collection
	} else {
		methods.Emails = collection
	}
	return methods
}
