package document

import (
	"cmp"
	"slices"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

func sortedValues[V any](entities map[string]V, keep func(V) bool, compare func(a, b V) int) []V {
	values := make([]V, 0, len(entities))
	for _, value := range entities {
		if keep == nil || keep(value) {
			values = append(values, value)
		}
	}
	slices.SortFunc(values, compare)
	return values
}

func byOrganizationID(a, b Organization) int { return cmp.Compare(a.ID, b.ID) }
func byAccountID(a, b Account) int           { return cmp.Compare(a.ID, b.ID) }
func byContactID(a, b Contact) int           { return cmp.Compare(a.ID, b.ID) }
func byNoteID(a, b Note) int                 { return cmp.Compare(a.ID, b.ID) }

func byOccurrence(a, b Interaction) int {
	return cmp.Or(cmp.Compare(a.OccurredAt, b.OccurredAt), cmp.Compare(a.ID, b.ID))
}

// Organization returns the organization with id.
func (doc Document) Organization(id string) (Organization, bool) {
	organization, found := doc.Organizations[id]
	return organization, found
}

// AllOrganizations lists organizations ordered by id.
func (doc Document) AllOrganizations() []Organization {
	return sortedValues(doc.Organizations, nil, byOrganizationID)
}

// Account returns the account with id.
func (doc Document) Account(id string) (Account, bool) {
	account, found := doc.Accounts[id]
	return account, found
}

// AllAccounts lists accounts ordered by id.
func (doc Document) AllAccounts() []Account {
	return sortedValues(doc.Accounts, nil, byAccountID)
}

// AccountsForOrganization lists the accounts owned by an organization.
func (doc Document) AccountsForOrganization(organizationID string) []Account {
	return sortedValues(doc.Accounts, func(account Account) bool {
		return account.OrganizationID == organizationID
	}, byAccountID)
}

// Contact returns the contact with id.
func (doc Document) Contact(id string) (Contact, bool) {
	contact, found := doc.Contacts[id]
	return contact, found
}

// AllContacts lists contacts ordered by id.
func (doc Document) AllContacts() []Contact {
	return sortedValues(doc.Contacts, nil, byContactID)
}

// ContactsForOrganization lists the contacts attached to an organization.
func (doc Document) ContactsForOrganization(organizationID string) []Contact {
	return sortedValues(doc.Contacts, func(contact Contact) bool {
		return contact.OrganizationID == organizationID
	}, byContactID)
}

// ContactsForAccount lists the contacts linked to an account.
func (doc Document) ContactsForAccount(accountID string) []Contact {
	linked := make(map[string]struct{})
	for _, link := range doc.AccountContacts {
		if link.AccountID == accountID {
			linked[link.ContactID] = struct{}{}
		}
	}
	return sortedValues(doc.Contacts, func(contact Contact) bool {
		_, found := linked[contact.ID]
		return found
	}, byContactID)
}

// Note returns the note with id.
func (doc Document) Note(id string) (Note, bool) {
	note, found := doc.Notes[id]
	return note, found
}

// AllNotes lists notes ordered by id.
func (doc Document) AllNotes() []Note {
	return sortedValues(doc.Notes, nil, byNoteID)
}

// NotesForOrganization lists the notes attached to an organization.
func (doc Document) NotesForOrganization(organizationID string) []Note {
	return sortedValues(doc.Notes, func(note Note) bool {
		return note.OrganizationID == organizationID
	}, byNoteID)
}

// Interaction returns the interaction with id.
func (doc Document) Interaction(id string) (Interaction, bool) {
	interaction, found := doc.Interactions[id]
	return interaction, found
}

// AllInteractions lists interactions by occurrence time.
func (doc Document) AllInteractions() []Interaction {
	return sortedValues(doc.Interactions, nil, byOccurrence)
}

// InteractionsForOrganization lists an organization's interactions by occurrence time.
func (doc Document) InteractionsForOrganization(organizationID string) []Interaction {
	return sortedValues(doc.Interactions, func(interaction Interaction) bool {
		return interaction.OrganizationID == organizationID
	}, byOccurrence)
}

// AccountContactLinks lists the links of an account ordered by relation id.
func (doc Document) AccountContactLinks(accountID string) []AccountContactLink {
	return sortedValues(doc.AccountContacts, func(link AccountContactLink) bool {
		return link.AccountID == accountID
	}, func(a, b AccountContactLink) int { return cmp.Compare(a.ID, b.ID) })
}

// LinksForEntity lists the entity links that start or end at ref, ordered by relation id.
func (doc Document) LinksForEntity(ref events.EntityRef) []EntityLink {
	return sortedValues(doc.EntityLinks, func(link EntityLink) bool {
		return link.Source == ref || link.Target == ref
	}, func(a, b EntityLink) int { return cmp.Compare(a.ID, b.ID) })
}
