package document

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

const testDevice = "device-a"

func event(id string, timestamp int64, payload events.Payload) events.Event {
	return events.New(id, payload, timestamp, testDevice)
}

func withID(id string) events.Identity {
	return events.Identity{ID: id}
}

func stringPointer(value string) *string {
	return &value
}

func emptyMethods() *events.ContactMethods {
	return &events.ContactMethods{Emails: []events.ContactMethod{}, Phones: []events.ContactMethod{}}
}

// scenarioEvents creates an organization, a contact with one email, adds a phone and updates the title.
func scenarioEvents() []events.Event {
	return []events.Event{
		event("e1", 1, events.OrganizationCreated{Identity: withID("O1"), Name: "Acme"}),
		event("e2", 2, events.ContactCreated{
			Identity:       withID("C1"),
			Kind:           events.ContactKindExternal,
			FirstName:      "Ada",
			LastName:       "Lovelace",
			OrganizationID: "O1",
			Methods: &events.ContactMethods{
				Emails: []events.ContactMethod{{Value: "ada@acme.test", Label: events.MethodLabelWork, Primary: true}},
				Phones: []events.ContactMethod{},
			},
		}),
		event("e3", 3, events.ContactMethodAdded{
			Identity:   withID("C1"),
			MethodType: events.MethodTypePhones,
			Method:     events.ContactMethod{Value: "+1 555 0100", Label: events.MethodLabelMobile},
		}),
		event("e4", 4, events.ContactUpdated{Identity: withID("C1"), Title: stringPointer("CFO")}),
	}
}

func mustReplay(t *testing.T, ordered []events.Event) Document {
	t.Helper()
	doc, err := Replay(ordered)
	require.NoError(t, err)
	return doc
}

func mustApply(t *testing.T, doc Document, next events.Event) Document {
	t.Helper()
	result, err := Apply(doc, next)
	require.NoError(t, err)
	return result
}
