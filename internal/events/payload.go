package events

// Payload is the typed argument set of one event type.
type Payload interface {
	EventType() Type
	PayloadID() string
}

// Referencer is implemented by payloads that point at entities other than their target.
type Referencer interface {
	References() []EntityKey
}

// Identity carries the optional payload.id shared by every payload.
type Identity struct {
	ID string `json:"id,omitempty"`
}

// PayloadID returns payload.id, empty when absent.
func (identity Identity) PayloadID() string {
	return identity.ID
}

// ContactMethod is one entry of a contact's emails or phones.
type ContactMethod struct {
	Value   string      `json:"value"`
	Label   MethodLabel `json:"label,omitempty"`
	Primary bool        `json:"primary,omitempty"`
}

// ContactMethods holds both sub-collections; a nil slice means the key was absent.
type ContactMethods struct {
	Emails []ContactMethod `json:"emails"`
	Phones []ContactMethod `json:"phones"`
}

// EntityRef points at a record by family and id.
type EntityRef struct {
	Type Family `json:"type"`
	ID   string `json:"id"`
}

// Key converts the reference into an EntityKey.
func (ref EntityRef) Key() EntityKey {
	return KeyOf(ref.Type, ref.ID)
}

func organizationReference(organizationID string) []EntityKey {
	if organizationID == "" {
		return nil
	}
	return []EntityKey{KeyOf(FamilyOrganization, organizationID)}
}

// OrganizationCreated creates an organization.
type OrganizationCreated struct {
	Identity
	Name        string             `json:"name"`
	Status      OrganizationStatus `json:"status,omitempty"`
	Industry    string             `json:"industry,omitempty"`
	Website     string             `json:"website,omitempty"`
	Description string             `json:"description,omitempty"`
}

func (OrganizationCreated) EventType() Type { return TypeOrganizationCreated }

// OrganizationUpdated merges the present fields onto an organization.
type OrganizationUpdated struct {
	Identity
	Name        *string             `json:"name,omitempty"`
	Status      *OrganizationStatus `json:"status,omitempty"`
	Industry    *string             `json:"industry,omitempty"`
	Website     *string             `json:"website,omitempty"`
	Description *string             `json:"description,omitempty"`
}

func (OrganizationUpdated) EventType() Type { return TypeOrganizationUpdated }

// OrganizationDeleted deletes an organization.
type OrganizationDeleted struct {
	Identity
}

func (OrganizationDeleted) EventType() Type { return TypeOrganizationDeleted }

// AccountCreated creates an account owned by an organization.
type AccountCreated struct {
	Identity
	OrganizationID string        `json:"organizationId"`
	Name           string        `json:"name"`
	Status         AccountStatus `json:"status,omitempty"`
	Owner          string        `json:"owner,omitempty"`
}

func (AccountCreated) EventType() Type { return TypeAccountCreated }

func (payload AccountCreated) References() []EntityKey {
	return organizationReference(payload.OrganizationID)
}

// AccountUpdated merges the present fields onto an account.
type AccountUpdated struct {
	Identity
	Name   *string        `json:"name,omitempty"`
	Status *AccountStatus `json:"status,omitempty"`
	Owner  *string        `json:"owner,omitempty"`
}

func (AccountUpdated) EventType() Type { return TypeAccountUpdated }

// AccountDeleted deletes an account and its contact links.
type AccountDeleted struct {
	Identity
}

func (AccountDeleted) EventType() Type { return TypeAccountDeleted }

// ContactCreated creates a contact. Both method keys must be present.
type ContactCreated struct {
	Identity
	Kind           ContactKind     `json:"type"`
	Name           string          `json:"name,omitempty"`
	FirstName      string          `json:"firstName,omitempty"`
	LastName       string          `json:"lastName,omitempty"`
	Title          string          `json:"title,omitempty"`
	OrganizationID string          `json:"organizationId,omitempty"`
	Methods        *ContactMethods `json:"methods,omitempty"`
}

func (ContactCreated) EventType() Type { return TypeContactCreated }

func (payload ContactCreated) References() []EntityKey {
	return organizationReference(payload.OrganizationID)
}

// ContactUpdated merges the present fields onto a contact.
type ContactUpdated struct {
	Identity
	Kind           *ContactKind `json:"type,omitempty"`
	Name           *string      `json:"name,omitempty"`
	FirstName      *string      `json:"firstName,omitempty"`
	LastName       *string      `json:"lastName,omitempty"`
	Title          *string      `json:"title,omitempty"`
	OrganizationID *string      `json:"organizationId,omitempty"`
}

func (ContactUpdated) EventType() Type { return TypeContactUpdated }

func (payload ContactUpdated) References() []EntityKey {
	if payload.OrganizationID == nil {
		return nil
	}
	return organizationReference(*payload.OrganizationID)
}

// ContactMethodAdded appends a method to a contact sub-collection.
type ContactMethodAdded struct {
	Identity
	MethodType MethodType    `json:"methodType"`
	Method     ContactMethod `json:"method"`
}

func (ContactMethodAdded) EventType() Type { return TypeContactMethodAdded }

// ContactMethodUpdated replaces the method at Index.
type ContactMethodUpdated struct {
	Identity
	MethodType MethodType    `json:"methodType"`
	Index      int           `json:"index"`
	Method     ContactMethod `json:"method"`
}

func (ContactMethodUpdated) EventType() Type { return TypeContactMethodUpdated }

// ContactMethodRemoved removes the method at Index.
type ContactMethodRemoved struct {
	Identity
	MethodType MethodType `json:"methodType"`
	Index      int        `json:"index"`
}

func (ContactMethodRemoved) EventType() Type { return TypeContactMethodRemoved }

// ContactDeleted deletes a contact.
type ContactDeleted struct {
	Identity
}

func (ContactDeleted) EventType() Type { return TypeContactDeleted }

// NoteCreated creates a note.
type NoteCreated struct {
	Identity
	Title          string `json:"title,omitempty"`
	Body           string `json:"body"`
	OrganizationID string `json:"organizationId,omitempty"`
}

func (NoteCreated) EventType() Type { return TypeNoteCreated }

func (payload NoteCreated) References() []EntityKey {
	return organizationReference(payload.OrganizationID)
}

// NoteUpdated merges the present fields onto a note.
type NoteUpdated struct {
	Identity
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
}

func (NoteUpdated) EventType() Type { return TypeNoteUpdated }

// NoteDeleted deletes a note.
type NoteDeleted struct {
	Identity
}

func (NoteDeleted) EventType() Type { return TypeNoteDeleted }

// InteractionCreated records an interaction. OccurredAt defaults to the event timestamp.
type InteractionCreated struct {
	Identity
	Kind            InteractionKind `json:"kind"`
	OccurredAt      int64           `json:"occurredAt,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	DurationMinutes int             `json:"durationMinutes,omitempty"`
	OrganizationID  string          `json:"organizationId,omitempty"`
}

func (InteractionCreated) EventType() Type { return TypeInteractionCreated }

func (payload InteractionCreated) References() []EntityKey {
	return organizationReference(payload.OrganizationID)
}

// InteractionUpdated merges the present fields onto an interaction.
type InteractionUpdated struct {
	Identity
	Kind            *InteractionKind `json:"kind,omitempty"`
	OccurredAt      *int64           `json:"occurredAt,omitempty"`
	Summary         *string          `json:"summary,omitempty"`
	DurationMinutes *int             `json:"durationMinutes,omitempty"`
}

func (InteractionUpdated) EventType() Type { return TypeInteractionUpdated }

// InteractionDeleted deletes an interaction.
type InteractionDeleted struct {
	Identity
}

func (InteractionDeleted) EventType() Type { return TypeInteractionDeleted }

// AccountContactLinked links a contact to an account under a synthetic relation id.
type AccountContactLinked struct {
	Identity
	AccountID string `json:"accountId"`
	ContactID string `json:"contactId"`
	Role      string `json:"role,omitempty"`
}

func (AccountContactLinked) EventType() Type { return TypeAccountContactLinked }

func (payload AccountContactLinked) References() []EntityKey {
	return []EntityKey{
		KeyOf(FamilyAccount, payload.AccountID),
		KeyOf(FamilyContact, payload.ContactID),
	}
}

// AccountContactUnlinked removes an account-contact link.
type AccountContactUnlinked struct {
	Identity
}

func (AccountContactUnlinked) EventType() Type { return TypeAccountContactUnlinked }

// EntityLinked links two records of any linkable family.
type EntityLinked struct {
	Identity
	Source   EntityRef `json:"source"`
	Target   EntityRef `json:"target"`
	LinkType LinkType  `json:"linkType"`
}

func (EntityLinked) EventType() Type { return TypeEntityLinked }

func (payload EntityLinked) References() []EntityKey {
	return []EntityKey{payload.Source.Key(), payload.Target.Key()}
}

// EntityUnlinked removes a generic entity link.
type EntityUnlinked struct {
	Identity
}

func (EntityUnlinked) EventType() Type { return TypeEntityUnlinked }
