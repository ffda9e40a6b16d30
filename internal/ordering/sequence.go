// Package ordering derives the canonical total order of an event set.
//
// Events are ordered by (timestamp, deviceId, id). An event whose causal
// dependency, the creation of its target or of an entity its payload
// references, has not yet been ordered is held back and placed immediately
// after that creation. The order is a pure function of the set of events:
// the number of streams, their order and duplicates do not affect it.
package ordering

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

// Compare orders events by timestamp, then device id, then event id.
func Compare(left, right events.Event) int {
	return cmp.Or(
		cmp.Compare(left.Timestamp, right.Timestamp),
		cmp.Compare(left.DeviceID, right.DeviceID),
		cmp.Compare(left.ID, right.ID),
	)
}

// Result is the outcome of sequencing a set of event streams.
type Result struct {
	// Ordered is the canonical order of every event whose dependencies are satisfied.
	Ordered []events.Event
	// Pending holds events whose dependency never arrived, in comparator order.
	Pending []events.Event
	// Duplicates counts the events dropped because their id was already present.
	Duplicates int
}

// DanglingDependencyError lists the dependency keys no event in the set creates.
type DanglingDependencyError struct {
	// Missing maps the rendered key to the ids of the events waiting on it.
	Missing map[string][]string
}

func (e *DanglingDependencyError) Error() string {
	keys := make([]string, 0, len(e.Missing))
	for key := range e.Missing {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s <- [%s]", key, strings.Join(e.Missing[key], ", ")))
	}
	return fmt.Sprintf("%s: %s", events.ErrDanglingDependency, strings.Join(parts, "; "))
}

func (e *DanglingDependencyError) Unwrap() error {
	return events.ErrDanglingDependency
}

// Sequence merges the streams into the canonical order.
// Events still waiting on a dependency are returned in Result.Pending together
// with a *DanglingDependencyError; Result.Ordered is valid in that case too.
func Sequence(streams ...[]events.Event) (Result, error) {
	candidates, duplicates := deduplicate(streams)
	slices.SortFunc(candidates, Compare)

	sequencer := &sequencer{
		created: make(map[events.EntityKey]struct{}),
		parked:  make(map[events.EntityKey][]events.Event),
		ordered: make([]events.Event, 0, len(candidates)),
	}
	for _, event := range candidates {
		sequencer.offer(event)
	}

	result := Result{Ordered: sequencer.ordered, Duplicates: duplicates}
	if len(sequencer.parked) == 0 {
		return result, nil
	}

	missing := make(map[string][]string, len(sequencer.parked))
	for key, waiting := range sequencer.parked {
		result.Pending = append(result.Pending, waiting...)
		ids := make([]string, 0, len(waiting))
		for _, event := range waiting {
			ids = append(ids, event.ID)
		}
		missing[key.String()] = ids
	}
	slices.SortFunc(result.Pending, Compare)
	return result, &DanglingDependencyError{Missing: missing}
}

// deduplicate keeps one event per id, preferring the earliest under Compare.
func deduplicate(streams [][]events.Event) ([]events.Event, int) {
	byID := make(map[string]events.Event)
	duplicates := 0
	for _, stream := range streams {
		for _, event := range stream {
			existing, found := byID[event.ID]
			if !found {
				byID[event.ID] = event
				continue
			}
			duplicates++
			if Compare(event, existing) < 0 {
				byID[event.ID] = event
			}
		}
	}
	unique := make([]events.Event, 0, len(byID))
	for _, event := range byID {
		unique = append(unique, event)
	}
	return unique, duplicates
}

type sequencer struct {
	created map[events.EntityKey]struct{}
	parked  map[events.EntityKey][]events.Event
	ordered []events.Event
}

func (s *sequencer) offer(event events.Event) {
	for _, dependency := range events.Dependencies(event) {
		if _, found := s.created[dependency]; !found {
			s.parked[dependency] = append(s.parked[dependency], event)
			return
		}
	}
	s.emit(event)
}

func (s *sequencer) emit(event events.Event) {
	s.ordered = append(s.ordered, event)
	if !event.Type.IsCreation() {
		return
	}
	key, err := events.TargetKey(event)
	if err != nil {
		return
	}
	if _, found := s.created[key]; found {
		return
	}
	s.created[key] = struct{}{}

	released := s.parked[key]
	if len(released) == 0 {
		return
	}
	delete(s.parked, key)
	slices.SortFunc(released, Compare)
	for _, waiting := range released {
		s.offer(waiting)
	}
}
