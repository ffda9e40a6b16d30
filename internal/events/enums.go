package events

import "fmt"

// OrganizationStatus enumerates organization lifecycle states.
type OrganizationStatus string

const (
	OrganizationStatusActive   OrganizationStatus = "active"
	OrganizationStatusInactive OrganizationStatus = "inactive"
	OrganizationStatusProspect OrganizationStatus = "prospect"
	OrganizationStatusArchived OrganizationStatus = "archived"
)

// Valid reports whether the status is a member of the fixed set.
func (status OrganizationStatus) Valid() bool {
	switch status {
	case OrganizationStatusActive, OrganizationStatusInactive, OrganizationStatusProspect, OrganizationStatusArchived:
		return true
	}
	return false
}

// AccountStatus enumerates account states.
type AccountStatus string

const (
	AccountStatusOpen   AccountStatus = "open"
	AccountStatusOnHold AccountStatus = "on_hold"
	AccountStatusClosed AccountStatus = "closed"
)

// Valid reports whether the status is a member of the fixed set.
func (status AccountStatus) Valid() bool {
	switch status {
	case AccountStatusOpen, AccountStatusOnHold, AccountStatusClosed:
		return true
	}
	return false
}

// ContactKind distinguishes people inside the organization from everyone else.
type ContactKind string

const (
	ContactKindInternal ContactKind = "internal"
	ContactKindExternal ContactKind = "external"
)

// Valid reports whether the kind is a member of the fixed set.
func (kind ContactKind) Valid() bool {
	return kind == ContactKindInternal || kind == ContactKindExternal
}

// MethodType names a contact sub-collection.
type MethodType string

const (
	MethodTypeEmails MethodType = "emails"
	MethodTypePhones MethodType = "phones"
)

// Valid reports whether the method type names a known sub-collection.
func (methodType MethodType) Valid() bool {
	return methodType == MethodTypeEmails || methodType == MethodTypePhones
}

// MethodLabel classifies a contact method.
type MethodLabel string

const (
	MethodLabelWork     MethodLabel = "work"
	MethodLabelHome     MethodLabel = "home"
	MethodLabelMobile   MethodLabel = "mobile"
	MethodLabelPersonal MethodLabel = "personal"
	MethodLabelOther    MethodLabel = "other"
)

// Valid reports whether the label is a member of the fixed set. The empty label is allowed.
func (label MethodLabel) Valid() bool {
	switch label {
	case "", MethodLabelWork, MethodLabelHome, MethodLabelMobile, MethodLabelPersonal, MethodLabelOther:
		return true
	}
	return false
}

// InteractionKind enumerates interaction channels.
type InteractionKind string

const (
	InteractionKindCall    InteractionKind = "call"
	InteractionKindEmail   InteractionKind = "email"
	InteractionKindMeeting InteractionKind = "meeting"
	InteractionKindMessage InteractionKind = "message"
	InteractionKindOther   InteractionKind = "other"
)

// Valid reports whether the kind is a member of the fixed set.
func (kind InteractionKind) Valid() bool {
	switch kind {
	case InteractionKindCall, InteractionKindEmail, InteractionKindMeeting, InteractionKindMessage, InteractionKindOther:
		return true
	}
	return false
}

// LinkType enumerates generic entity-link semantics.
type LinkType string

const (
	LinkTypeRelated     LinkType = "related"
	LinkTypeMentions    LinkType = "mentions"
	LinkTypeParticipant LinkType = "participant"
	LinkTypeSubject     LinkType = "subject"
)

// Valid reports whether the link type is a member of the fixed set.
func (linkType LinkType) Valid() bool {
	switch linkType {
	case LinkTypeRelated, LinkTypeMentions, LinkTypeParticipant, LinkTypeSubject:
		return true
	}
	return false
}

type enumValue interface {
	~string
	Valid() bool
}

// ValidateEnum returns ErrInvalidEnumValue when value is outside its fixed set.
func ValidateEnum[T enumValue](field string, value T) error {
	if value.Valid() {
		return nil
	}
	return fmt.Errorf("%w: %s %q", ErrInvalidEnumValue, field, string(value))
}
