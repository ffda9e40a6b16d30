package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEntityID(t *testing.T) {
	testCases := []struct {
		name     string
		event    Event
		expected string
		err      error
	}{
		{
			name:     "payload id only",
			event:    Event{Type: TypeContactDeleted, Payload: ContactDeleted{Identity: Identity{ID: "A"}}},
			expected: "A",
		},
		{
			name:     "entity id only",
			event:    Event{Type: TypeContactDeleted, EntityID: "B", Payload: ContactDeleted{}},
			expected: "B",
		},
		{
			name:     "both equal",
			event:    Event{Type: TypeContactDeleted, EntityID: "A", Payload: ContactDeleted{Identity: Identity{ID: "A"}}},
			expected: "A",
		},
		{
			name:  "both unequal",
			event: Event{Type: TypeContactDeleted, EntityID: "B", Payload: ContactDeleted{Identity: Identity{ID: "A"}}},
			err:   ErrIdentityMismatch,
		},
		{
			name:  "neither",
			event: Event{Type: TypeContactDeleted, Payload: ContactDeleted{}},
			err:   ErrMissingIdentity,
		},
		{
			name:     "nil payload falls back to entity id",
			event:    Event{Type: TypeNoteDeleted, EntityID: "N1"},
			expected: "N1",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			id, err := ResolveEntityID(testCase.event)
			if testCase.err != nil {
				require.ErrorIs(t, err, testCase.err)
				assert.Empty(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, id)
		})
	}
}

func TestDependencies(t *testing.T) {
	creation := Event{
		Type: TypeAccountCreated,
		Payload: AccountCreated{
			Identity:       Identity{ID: "A1"},
			OrganizationID: "O1",
			Name:           "Operating",
		},
	}
	assert.Equal(t, []EntityKey{KeyOf(FamilyOrganization, "O1")}, Dependencies(creation))

	update := Event{
		Type:     TypeContactUpdated,
		EntityID: "C1",
		Payload:  ContactUpdated{OrganizationID: stringPointer("O2")},
	}
	assert.Equal(t, []EntityKey{KeyOf(FamilyContact, "C1"), KeyOf(FamilyOrganization, "O2")}, Dependencies(update))

	link := Event{
		Type: TypeEntityLinked,
		Payload: EntityLinked{
			Identity: Identity{ID: "R1"},
			Source:   EntityRef{Type: FamilyNote, ID: "N1"},
			Target:   EntityRef{Type: FamilyContact, ID: "C1"},
			LinkType: LinkTypeMentions,
		},
	}
	assert.Equal(t, []EntityKey{KeyOf(FamilyNote, "N1"), KeyOf(FamilyContact, "C1")}, Dependencies(link))

	unresolvable := Event{Type: TypeNoteUpdated, Payload: NoteUpdated{}}
	assert.Empty(t, Dependencies(unresolvable))
}

func TestKindMapsSentinels(t *testing.T) {
	deleted := wrapDeleted()
	assert.Equal(t, KindEntityDeleted, Kind(deleted))
	assert.ErrorIs(t, deleted, ErrEntityNotFound)
	assert.Equal(t, KindIndexOutOfRange, Kind(NewEventError(2, Event{ID: "e"}, ErrIndexOutOfRange)))
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "", Kind(assert.AnError))
}

func wrapDeleted() error {
	return NewEventError(0, Event{ID: "e1", Type: TypeContactUpdated},
		fmt.Errorf("%w: %w: contact C1", ErrEntityNotFound, ErrEntityDeleted))
}

func stringPointer(value string) *string {
	return &value
}
