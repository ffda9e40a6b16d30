package document

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

func TestReplayIsDeterministic(t *testing.T) {
	first := mustReplay(t, scenarioEvents())
	second := mustReplay(t, scenarioEvents())

	firstBytes, err := Canonical(first)
	require.NoError(t, err)
	secondBytes, err := Canonical(second)
	require.NoError(t, err)
	assert.Equal(t, firstBytes, secondBytes)
}

func TestReplayOfNothingIsEmpty(t *testing.T) {
	doc := mustReplay(t, nil)
	for family, count := range doc.Counts() {
		assert.Zero(t, count, family)
	}
}

func TestResumeMatchesReplay(t *testing.T) {
	ordered := scenarioEvents()
	full := mustReplay(t, ordered)
	expected, err := Fingerprint(full)
	require.NoError(t, err)

	for position := 0; position <= len(ordered); position++ {
		checkpoint := Checkpoint{Position: position, Document: mustReplay(t, ordered[:position])}
		resumed, err := Resume(checkpoint, ordered[position:])
		require.NoError(t, err)

		actual, err := Fingerprint(resumed)
		require.NoError(t, err)
		assert.Equal(t, expected, actual, "position %d", position)
	}
}

func TestResumeReportsAbsoluteIndex(t *testing.T) {
	ordered := scenarioEvents()
	checkpoint := Checkpoint{Position: 1, Document: mustReplay(t, ordered[:1])}

	_, err := Resume(checkpoint, []events.Event{ordered[2]})
	var eventErr *events.EventError
	require.ErrorAs(t, err, &eventErr)
	assert.Equal(t, 1, eventErr.Index)
}

func TestCanonicalSurvivesDecode(t *testing.T) {
	doc := mustReplay(t, scenarioEvents())
	canonical, err := Canonical(doc)
	require.NoError(t, err)

	decoded, err := Decode(canonical)
	require.NoError(t, err)
	roundTripped, err := Canonical(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(canonical), string(roundTripped))

	resumed, err := Resume(Checkpoint{Position: 4, Document: decoded}, []events.Event{
		event("e5", 5, events.NoteCreated{Identity: withID("N1"), Body: "kickoff", OrganizationID: "O1"}),
	})
	require.NoError(t, err)
	assert.Len(t, resumed.NotesForOrganization("O1"), 1)
}

func TestFingerprintDistinguishesDocuments(t *testing.T) {
	ordered := scenarioEvents()
	before, err := Fingerprint(mustReplay(t, ordered[:3]))
	require.NoError(t, err)
	after, err := Fingerprint(mustReplay(t, ordered))
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
	assert.Len(t, after, 64)
}

func TestCanonicalGolden(t *testing.T) {
	doc := mustReplay(t, []events.Event{event("e1", 1000, events.OrganizationCreated{Identity: withID("O1"), Name: "Acme"})})
	canonical, err := Canonical(doc)
	require.NoError(t, err)

	golden := goldie.New(t, goldie.WithFixtureDir("testdata"), goldie.WithNameSuffix(".golden"))
	golden.Assert(t, "single_organization", canonical)
}

func TestMaterializeSkipsRejectedEvents(t *testing.T) {
	ordered := scenarioEvents()
	ordered = append(ordered,
		event("e5", 5, events.ContactDeleted{Identity: withID("C1")}),
		event("e6", 6, events.ContactUpdated{Identity: withID("C1"), Title: stringPointer("CEO")}),
		event("e7", 7, events.NoteCreated{Identity: withID("N1"), Body: "after", OrganizationID: "O1"}),
	)

	var positions []int
	state := Materialize(Checkpoint{}, ordered, 1, func(step Checkpoint) {
		positions = append(positions, step.Position)
	})

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, positions)
	assert.Equal(t, 7, state.Position)
	assert.Equal(t, "e7", state.LastEventID)
	require.Len(t, state.Rejected, 1)
	assert.Equal(t, Rejection{
		Index:   5,
		EventID: "e6",
		Type:    events.TypeContactUpdated,
		Kind:    events.KindEntityDeleted,
		Reason:  state.Rejected[0].Reason,
	}, state.Rejected[0])
	assert.Len(t, state.Document.Notes, 1)

	strict, err := Replay(ordered[:5])
	require.NoError(t, err)
	partial := Materialize(Checkpoint{}, ordered[:5], 0, nil)
	strictFingerprint, err := Fingerprint(strict)
	require.NoError(t, err)
	partialFingerprint, err := Fingerprint(partial.Document)
	require.NoError(t, err)
	assert.Equal(t, strictFingerprint, partialFingerprint)
}

func TestMaterializeFromCheckpointKeepsEarlierRejections(t *testing.T) {
	ordered := scenarioEvents()
	bad := event("x", 2, events.ContactMethodRemoved{Identity: withID("C9"), MethodType: events.MethodTypePhones})
	head := append([]events.Event{ordered[0], bad}, ordered[1:]...)

	full := Materialize(Checkpoint{}, head, 0, nil)
	midway := Materialize(Checkpoint{}, head[:2], 0, nil)
	resumed := Materialize(midway, head[2:], 0, nil)

	assert.Equal(t, full.Rejected, resumed.Rejected)
	assert.Equal(t, full.Position, resumed.Position)
	expected, err := Fingerprint(full.Document)
	require.NoError(t, err)
	actual, err := Fingerprint(resumed.Document)
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func TestMaterializeLeavesCheckpointDocumentUntouched(t *testing.T) {
	ordered := scenarioEvents()
	midway := Materialize(Checkpoint{}, ordered[:2], 0, nil)
	before, err := Fingerprint(midway.Document)
	require.NoError(t, err)

	resumed := Materialize(midway, ordered[2:], 0, nil)
	_, err = Resume(midway, ordered[2:])
	require.NoError(t, err)

	after, err := Fingerprint(midway.Document)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, midway.Document.Contacts["C1"].Methods.Phones)
	assert.Len(t, resumed.Document.Contacts["C1"].Methods.Phones, 1)
}

func TestMaterializeSnapshotsAreIndependent(t *testing.T) {
	ordered := append(scenarioEvents(),
		event("e5", 5, events.ContactDeleted{Identity: withID("C1")}),
		event("e6", 6, events.NoteCreated{Identity: withID("N1"), Body: "late"}),
	)

	var snapshots []Checkpoint
	state := Materialize(Checkpoint{}, ordered, 2, func(step Checkpoint) {
		snapshots = append(snapshots, step)
	})

	require.Len(t, snapshots, 3)
	assert.Equal(t, []int{2, 4, 6}, []int{snapshots[0].Position, snapshots[1].Position, snapshots[2].Position})
	assert.Empty(t, snapshots[0].Document.Contacts["C1"].Methods.Phones)
	assert.Equal(t, "CFO", snapshots[1].Document.Contacts["C1"].Title)
	assert.Empty(t, snapshots[1].Document.Tombstones)
	assert.Empty(t, snapshots[1].Document.Notes)
	assert.NotContains(t, state.Document.Contacts, "C1")

	for _, snapshot := range snapshots {
		resumed := Materialize(snapshot, ordered[snapshot.Position:], 0, nil)
		expected, err := Fingerprint(state.Document)
		require.NoError(t, err)
		actual, err := Fingerprint(resumed.Document)
		require.NoError(t, err)
		assert.Equal(t, expected, actual, "resumed from position %d", snapshot.Position)
	}
}

func TestDraftKeepsStateAcrossFailedEvents(t *testing.T) {
	draft := NewDraft(mustReplay(t, scenarioEvents()))
	require.NoError(t, draft.Apply(event("e5", 5, events.AccountCreated{Identity: withID("A1"), OrganizationID: "O1", Name: "East"})))
	require.NoError(t, draft.Apply(event("e6", 6, events.AccountContactLinked{Identity: withID("R1"), AccountID: "A1", ContactID: "C1"})))
	before, err := Fingerprint(draft.Snapshot())
	require.NoError(t, err)

	err = draft.Apply(event("e7", 7, events.OrganizationDeleted{Identity: withID("O1")}))
	require.ErrorIs(t, err, events.ErrEntityInUse)
	err = draft.Apply(event("e8", 8, events.ContactMethodUpdated{
		Identity:   withID("C1"),
		MethodType: events.MethodTypeEmails,
		Index:      3,
		Method:     events.ContactMethod{Value: "x@acme.test", Label: events.MethodLabelWork},
	}))
	require.ErrorIs(t, err, events.ErrIndexOutOfRange)

	after, err := Fingerprint(draft.Document())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReplayOfLongHistory(t *testing.T) {
	const notes = 20000
	ordered := make([]events.Event, 0, notes)
	for index := range notes {
		id := fmt.Sprintf("N%05d", index)
		ordered = append(ordered, event("e"+id, int64(index+1), events.NoteCreated{Identity: withID(id), Body: "body"}))
	}

	doc := mustReplay(t, ordered)
	assert.Len(t, doc.Notes, notes)

	state := Materialize(Checkpoint{}, ordered, notes/4, nil)
	assert.Len(t, state.Document.Notes, notes)
	assert.Empty(t, state.Rejected)
}

func BenchmarkReplayNotes(b *testing.B) {
	ordered := make([]events.Event, 0, 5000)
	for index := range 5000 {
		id := fmt.Sprintf("N%05d", index)
		ordered = append(ordered, event("e"+id, int64(index+1), events.NoteCreated{Identity: withID(id)}))
	}
	b.ResetTimer()
	for range b.N {
		if _, err := Replay(ordered); err != nil {
			b.Fatal(err)
		}
	}
}
