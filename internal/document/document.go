// Package document holds the materialized aggregate folded from the ordered
// event stream and the reducers that produce it.
//
// A Document is a value. Apply never mutates its input. Folds over many
// events write into a Draft, which owns its maps, and hand out copies.
// Callers must treat the maps of a Document they did not build as read-only.
package document

import (
	"maps"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

// Organization is a materialized organization record.
type Organization struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Status      events.OrganizationStatus `json:"status"`
	Industry    string                    `json:"industry"`
	Website     string                    `json:"website"`
	Description string                    `json:"description"`
	CreatedAt   int64                     `json:"createdAt"`
	UpdatedAt   int64                     `json:"updatedAt"`
}

// Account is a materialized account record owned by an organization.
type Account struct {
	ID             string               `json:"id"`
	OrganizationID string               `json:"organizationId"`
	Name           string               `json:"name"`
	Status         events.AccountStatus `json:"status"`
	Owner          string               `json:"owner"`
	CreatedAt      int64                `json:"createdAt"`
	UpdatedAt      int64                `json:"updatedAt"`
}

// Contact is a materialized contact record. Name holds the explicit name, if any;
// DisplayName is derived from Name or the composed first and last name.
type Contact struct {
	ID             string             `json:"id"`
	Kind           events.ContactKind `json:"type"`
	Name           string             `json:"name"`
	DisplayName    string             `json:"displayName"`
	FirstName      string             `json:"firstName"`
	LastName       string             `json:"lastName"`
	Title          string             `json:"title"`
	OrganizationID string             `json:"organizationId"`
	Methods        ContactMethods     `json:"methods"`
	CreatedAt      int64              `json:"createdAt"`
	UpdatedAt      int64              `json:"updatedAt"`
}

// ContactMethods are the ordered, index-addressed sub-collections of a contact.
type ContactMethods struct {
	Emails []events.ContactMethod `json:"emails"`
	Phones []events.ContactMethod `json:"phones"`
}

// Note is a materialized note record.
type Note struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	OrganizationID string `json:"organizationId"`
	CreatedAt      int64  `json:"createdAt"`
	UpdatedAt      int64  `json:"updatedAt"`
}

// Interaction is a materialized interaction record.
type Interaction struct {
	ID              string                 `json:"id"`
	Kind            events.InteractionKind `json:"kind"`
	OccurredAt      int64                  `json:"occurredAt"`
	Summary         string                 `json:"summary"`
	DurationMinutes int                    `json:"durationMinutes"`
	OrganizationID  string                 `json:"organizationId"`
	CreatedAt       int64                  `json:"createdAt"`
	UpdatedAt       int64                  `json:"updatedAt"`
}

// AccountContactLink relates an account and a contact by value.
type AccountContactLink struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	ContactID string `json:"contactId"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"createdAt"`
}

// EntityLink relates two records of any linkable family by value.
type EntityLink struct {
	ID        string           `json:"id"`
	Source    events.EntityRef `json:"source"`
	Target    events.EntityRef `json:"target"`
	LinkType  events.LinkType  `json:"linkType"`
	CreatedAt int64            `json:"createdAt"`
}

// Tombstone records a deletion so that "deleted" stays distinguishable from "never existed".
type Tombstone struct {
	Family    events.Family `json:"family"`
	ID        string        `json:"id"`
	DeletedAt int64         `json:"deletedAt"`
	EventID   string        `json:"eventId"`
	DeviceID  string        `json:"deviceId"`
}

// Document is the materialized aggregate of every entity family and relation map.
// Tombstones are keyed by events.EntityKey.String().
type Document struct {
	Organizations   map[string]Organization       `json:"organizations"`
	Accounts        map[string]Account            `json:"accounts"`
	Contacts        map[string]Contact            `json:"contacts"`
	Notes           map[string]Note               `json:"notes"`
	Interactions    map[string]Interaction        `json:"interactions"`
	AccountContacts map[string]AccountContactLink `json:"accountContacts"`
	EntityLinks     map[string]EntityLink         `json:"entityLinks"`
	Tombstones      map[string]Tombstone          `json:"tombstones"`
}

// Empty returns the genesis document.
func Empty() Document {
	return Document{
		Organizations:   map[string]Organization{},
		Accounts:        map[string]Account{},
		Contacts:        map[string]Contact{},
		Notes:           map[string]Note{},
		Interactions:    map[string]Interaction{},
		AccountContacts: map[string]AccountContactLink{},
		EntityLinks:     map[string]EntityLink{},
		Tombstones:      map[string]Tombstone{},
	}
}

// clone copies every family map. Records are values and reducers copy method
// slices before changing them, so the copy shares nothing writable with doc.
func (doc Document) clone() Document {
	return Document{
		Organizations:   maps.Clone(doc.Organizations),
		Accounts:        maps.Clone(doc.Accounts),
		Contacts:        maps.Clone(doc.Contacts),
		Notes:           maps.Clone(doc.Notes),
		Interactions:    maps.Clone(doc.Interactions),
		AccountContacts: maps.Clone(doc.AccountContacts),
		EntityLinks:     maps.Clone(doc.EntityLinks),
		Tombstones:      maps.Clone(doc.Tombstones),
	}
}

// normalized fills nil maps, which appear after decoding a snapshot that omitted a family.
func (doc Document) normalized() Document {
	if doc.Organizations == nil {
		doc.Organizations = map[string]Organization{}
	}
	if doc.Accounts == nil {
		doc.Accounts = map[string]Account{}
	}
	if doc.Contacts == nil {
		doc.Contacts = map[string]Contact{}
	}
	if doc.Notes == nil {
		doc.Notes = map[string]Note{}
	}
	if doc.Interactions == nil {
		doc.Interactions = map[string]Interaction{}
	}
	if doc.AccountContacts == nil {
		doc.AccountContacts = map[string]AccountContactLink{}
	}
	if doc.EntityLinks == nil {
		doc.EntityLinks = map[string]EntityLink{}
	}
	if doc.Tombstones == nil {
		doc.Tombstones = map[string]Tombstone{}
	}
	return doc
}

// Exists reports whether a live record exists for key.
func (doc Document) Exists(key events.EntityKey) bool {
	var found bool
	switch key.Family {
	case events.FamilyOrganization:
		_, found = doc.Organizations[key.ID]
	case events.FamilyAccount:
		_, found = doc.Accounts[key.ID]
	case events.FamilyContact:
		_, found = doc.Contacts[key.ID]
	case events.FamilyNote:
		_, found = doc.Notes[key.ID]
	case events.FamilyInteraction:
		_, found = doc.Interactions[key.ID]
	case events.FamilyRelation:
		_, inAccountContacts := doc.AccountContacts[key.ID]
		_, inEntityLinks := doc.EntityLinks[key.ID]
		found = inAccountContacts || inEntityLinks
	}
	return found
}

// Deleted reports whether key carries a tombstone.
func (doc Document) Deleted(key events.EntityKey) bool {
	_, found := doc.Tombstones[key.String()]
	return found
}

// Counts returns the number of live records per map.
func (doc Document) Counts() map[string]int {
	return map[string]int{
		"organizations":   len(doc.Organizations),
		"accounts":        len(doc.Accounts),
		"contacts":        len(doc.Contacts),
		"notes":           len(doc.Notes),
		"interactions":    len(doc.Interactions),
		"accountContacts": len(doc.AccountContacts),
		"entityLinks":     len(doc.EntityLinks),
		"tombstones":      len(doc.Tombstones),
	}
}
