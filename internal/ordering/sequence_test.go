package ordering

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/crmcore/internal/document"
	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

func stringPointer(value string) *string {
	return &value
}

func methods() *events.ContactMethods {
	return &events.ContactMethods{Emails: []events.ContactMethod{}, Phones: []events.ContactMethod{}}
}

// skewedEvents is a two-device history where device-b's clock runs behind:
// its method addition carries an earlier timestamp than the contact it targets.
func skewedEvents() []events.Event {
	return []events.Event{
		events.New("a1", events.OrganizationCreated{Identity: events.Identity{ID: "O1"}, Name: "Acme"}, 10, "device-a"),
		events.New("a2", events.ContactCreated{Identity: events.Identity{ID: "C1"}, Kind: events.ContactKindExternal, OrganizationID: "O1", Methods: methods()}, 20, "device-a"),
		events.New("b1", events.ContactMethodAdded{
			Identity:   events.Identity{ID: "C1"},
			MethodType: events.MethodTypeEmails,
			Method:     events.ContactMethod{Value: "ada@acme.test"},
		}, 5, "device-b"),
		events.New("b2", events.ContactUpdated{Identity: events.Identity{ID: "C1"}, Title: stringPointer("CFO")}, 25, "device-b"),
		events.New("a3", events.AccountCreated{Identity: events.Identity{ID: "A1"}, OrganizationID: "O1", Name: "East"}, 25, "device-a"),
		events.New("b3", events.AccountContactLinked{Identity: events.Identity{ID: "R1"}, AccountID: "A1", ContactID: "C1"}, 21, "device-b"),
		events.New("a4", events.NoteCreated{Identity: events.Identity{ID: "N1"}, Body: "intro", OrganizationID: "O1"}, 30, "device-a"),
	}
}

func ids(ordered []events.Event) []string {
	result := make([]string, 0, len(ordered))
	for _, event := range ordered {
		result = append(result, event.ID)
	}
	return result
}

func TestCompareBreaksTiesByDeviceThenID(t *testing.T) {
	base := events.Event{ID: "m", Timestamp: 5, DeviceID: "device-b"}

	assert.Negative(t, Compare(events.Event{ID: "z", Timestamp: 4, DeviceID: "device-z"}, base))
	assert.Negative(t, Compare(events.Event{ID: "z", Timestamp: 5, DeviceID: "device-a"}, base))
	assert.Negative(t, Compare(events.Event{ID: "a", Timestamp: 5, DeviceID: "device-b"}, base))
	assert.Zero(t, Compare(base, base))
}

func TestSequenceHoldsEventsUntilCreation(t *testing.T) {
	result, err := Sequence(skewedEvents())
	require.NoError(t, err)

	order := ids(result.Ordered)
	require.Len(t, order, 7)
	assert.Equal(t, []string{"a1", "a2", "b1"}, order[:3])
	assert.Empty(t, result.Pending)

	_, err = document.Replay(result.Ordered)
	require.NoError(t, err)
}

func TestSequenceReleasesRelationAfterBothEnds(t *testing.T) {
	result, err := Sequence(skewedEvents())
	require.NoError(t, err)

	order := ids(result.Ordered)
	assert.Equal(t, []string{"a1", "a2", "b1", "a3", "b3", "b2", "a4"}, order)
}

func TestSequenceDeduplicatesAcrossStreams(t *testing.T) {
	history := skewedEvents()

	result, err := Sequence(history, history[:3], history[5:])
	require.NoError(t, err)

	assert.Len(t, result.Ordered, len(history))
	assert.Equal(t, 5, result.Duplicates)
}

func TestSequenceReportsDanglingDependencies(t *testing.T) {
	history := skewedEvents()
	withoutContact := append([]events.Event{history[0]}, history[2:]...)

	result, err := Sequence(withoutContact)
	require.ErrorIs(t, err, events.ErrDanglingDependency)

	var dangling *DanglingDependencyError
	require.ErrorAs(t, err, &dangling)
	assert.ElementsMatch(t, []string{"b1", "b2", "b3"}, dangling.Missing["contact:C1"])
	assert.Equal(t, []string{"b1", "b3", "b2"}, ids(result.Pending))
	assert.Equal(t, []string{"a1", "a3", "a4"}, ids(result.Ordered))
}

func TestSequenceLetsUnresolvableIdentityThrough(t *testing.T) {
	orphan := events.New("x1", events.ContactDeleted{}, 1, "device-a")

	result, err := Sequence([]events.Event{orphan})
	require.NoError(t, err)
	assert.Equal(t, []string{"x1"}, ids(result.Ordered))
}

func TestPrefixDigests(t *testing.T) {
	result, err := Sequence(skewedEvents())
	require.NoError(t, err)

	digests := PrefixDigests(result.Ordered)
	require.Len(t, digests, len(result.Ordered)+1)
	assert.Equal(t, digests[:3], PrefixDigests(result.Ordered[:2]))
	assert.NotEqual(t, digests[1], digests[2])
}

func TestCommonPrefix(t *testing.T) {
	history := skewedEvents()
	assert.Equal(t, 3, CommonPrefix(history[:3], history))
	assert.Equal(t, 0, CommonPrefix(history[1:], history))
	assert.Equal(t, 0, CommonPrefix(nil, history))
}

func TestSequenceIsIndependentOfArrival(t *testing.T) {
	history := skewedEvents()
	reference, err := Sequence(history)
	require.NoError(t, err)
	referenceDoc, err := document.Replay(reference.Ordered)
	require.NoError(t, err)
	referenceFingerprint, err := document.Fingerprint(referenceDoc)
	require.NoError(t, err)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("any permutation and partition yields the same order and document", prop.ForAll(
		func(seed int64, streamCount int) bool {
			random := rand.New(rand.NewSource(seed))
			shuffled := append([]events.Event(nil), history...)
			random.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

			streams := make([][]events.Event, streamCount)
			for _, event := range shuffled {
				target := random.Intn(streamCount)
				streams[target] = append(streams[target], event)
				if random.Intn(4) == 0 {
					duplicate := random.Intn(streamCount)
					streams[duplicate] = append(streams[duplicate], event)
				}
			}

			result, err := Sequence(streams...)
			if err != nil {
				return false
			}
			doc, err := document.Replay(result.Ordered)
			if err != nil {
				return false
			}
			fingerprint, err := document.Fingerprint(doc)
			if err != nil {
				return false
			}
			return slicesEqual(ids(result.Ordered), ids(reference.Ordered)) && fingerprint == referenceFingerprint
		},
		gen.Int64(),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}

func slicesEqual(left, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for index := range left {
		if left[index] != right[index] {
			return false
		}
	}
	return true
}

func TestExtendDigestsMatchesFullComputation(t *testing.T) {
	result, err := Sequence(skewedEvents())
	require.NoError(t, err)

	partial := PrefixDigests(result.Ordered[:3])
	assert.Equal(t, PrefixDigests(result.Ordered), ExtendDigests(partial, result.Ordered))
	assert.Len(t, partial, 4)
}
