package replica

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/crmcore/internal/document"
	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

type memoryLog struct {
	mu      sync.Mutex
	events  []events.Event
	failing error
}

func (l *memoryLog) Append(_ context.Context, batch []events.Event) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failing != nil {
		return 0, l.failing
	}
	added := 0
	for _, event := range batch {
		if slices.ContainsFunc(l.events, func(existing events.Event) bool { return existing.ID == event.ID }) {
			continue
		}
		l.events = append(l.events, event)
		added++
	}
	return added, nil
}

func (l *memoryLog) Events(context.Context) ([]events.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.events), nil
}

type memoryCheckpoints struct {
	mu          sync.Mutex
	checkpoints map[int]document.Checkpoint
	lookups     int
}

func newMemoryCheckpoints() *memoryCheckpoints {
	return &memoryCheckpoints{checkpoints: make(map[int]document.Checkpoint)}
}

func (s *memoryCheckpoints) SaveCheckpoint(_ context.Context, checkpoint document.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[checkpoint.Position] = checkpoint
	return nil
}

func (s *memoryCheckpoints) LatestCheckpoint(_ context.Context, maxPosition int) (document.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	best := -1
	for position := range s.checkpoints {
		if position <= maxPosition && position > best {
			best = position
		}
	}
	if best < 0 {
		return document.Checkpoint{}, false, nil
	}
	return s.checkpoints[best], true, nil
}

func (s *memoryCheckpoints) DeleteCheckpointsAfter(_ context.Context, position int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for stored := range s.checkpoints {
		if stored > position {
			delete(s.checkpoints, stored)
		}
	}
	return nil
}

func (s *memoryCheckpoints) positions() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	positions := make([]int, 0, len(s.checkpoints))
	for position := range s.checkpoints {
		positions = append(positions, position)
	}
	slices.Sort(positions)
	return positions
}

type sequentialIDs struct {
	prefix string
	next   int
}

func (p *sequentialIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("%s-%03d", p.prefix, p.next), nil
}

func fixedClock(unixMilli int64) func() time.Time {
	return func() time.Time {
		return time.UnixMilli(unixMilli)
	}
}

type replicaFixture struct {
	replica     *Replica
	log         *memoryLog
	checkpoints *memoryCheckpoints
	changes     []Change
}

func newFixture(t *testing.T, deviceID string, wallMilli int64, interval int) *replicaFixture {
	t.Helper()
	fixture := &replicaFixture{log: &memoryLog{}, checkpoints: newMemoryCheckpoints()}
	replica, err := New(Config{
		DeviceID:           deviceID,
		Log:                fixture.log,
		Checkpoints:        fixture.checkpoints,
		CheckpointInterval: interval,
		IDProvider:         &sequentialIDs{prefix: deviceID},
		Clock:              fixedClock(wallMilli),
		OnChange: func(change Change) {
			fixture.changes = append(fixture.changes, change)
		},
	})
	require.NoError(t, err)
	fixture.replica = replica
	return fixture
}

func (f *replicaFixture) mustDispatch(t *testing.T, payloads ...events.Payload) []events.Event {
	t.Helper()
	batch := make([]events.Event, 0, len(payloads))
	for _, payload := range payloads {
		batch = append(batch, events.New("", payload, 0, ""))
	}
	result, err := f.replica.Dispatch(context.Background(), batch)
	require.NoError(t, err)
	require.True(t, result.Success, result.Error)
	return result.Events
}

func fingerprint(t *testing.T, replica *Replica) string {
	t.Helper()
	value, err := document.Fingerprint(replica.Document())
	require.NoError(t, err)
	return value
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
