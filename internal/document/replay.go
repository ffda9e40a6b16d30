package document

import (
	"slices"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

// Checkpoint is a saved document keyed by the last folded event.
// Position counts the events of the canonical order folded into Document;
// PrefixDigest fingerprints that order so a stale checkpoint is detectable.
type Checkpoint struct {
	LastEventID  string
	Position     int
	PrefixDigest string
	Document     Document
	// Rejected lists the events among the first Position that the tolerant fold skipped.
	Rejected []Rejection
}

// Rejection records an event whose reducer failed at its place in the canonical order.
type Rejection struct {
	Index   int         `json:"index"`
	EventID string      `json:"eventId"`
	Type    events.Type `json:"type"`
	Kind    string      `json:"kind"`
	Reason  string      `json:"reason"`
}

// Draft is a document owned by a single fold. Events applied to a Draft
// write into its maps in place, so folding n events costs O(n) rather than
// copying a family map per event. A Draft is not safe for concurrent use.
type Draft struct {
	doc Document
}

// NewDraft copies base into a draft; base itself is never written.
func NewDraft(base Document) *Draft {
	return &Draft{doc: base.normalized().clone()}
}

// Apply folds event into the draft. A failed event leaves the draft unchanged.
func (d *Draft) Apply(event events.Event) error {
	next, err := apply(d.doc, event)
	if err != nil {
		return err
	}
	d.doc = next
	return nil
}

// Snapshot returns a copy of the draft that later events do not affect.
func (d *Draft) Snapshot() Document {
	return d.doc.clone()
}

// Document releases the draft's document to the caller. The draft must not
// be applied to afterwards.
func (d *Draft) Document() Document {
	doc := d.doc
	d.doc = Document{}
	return doc
}

// Replay folds ordered events from the empty document, stopping at the first failure.
func Replay(ordered []events.Event) (Document, error) {
	return fold(Empty(), ordered, 0)
}

// Resume folds the events that follow checkpoint onto its document.
// Resume(checkpointAt(n), ordered[n:]) equals Replay(ordered).
func Resume(checkpoint Checkpoint, subsequent []events.Event) (Document, error) {
	return fold(checkpoint.Document, subsequent, checkpoint.Position)
}

func fold(doc Document, ordered []events.Event, offset int) (Document, error) {
	draft := NewDraft(doc)
	for index, event := range ordered {
		if err := draft.Apply(event); err != nil {
			return Document{}, events.NewEventError(offset+index, event, err)
		}
	}
	return draft.Document(), nil
}

// Materialize folds subsequent onto from, skipping and recording events whose reducer fails.
// Every replica folding the same order skips the same events, so materialized documents converge.
// observe, when set, receives the state after every event whose position is a multiple
// of every, carrying its own copy of the document; the PrefixDigest is left empty.
func Materialize(from Checkpoint, subsequent []events.Event, every int, observe func(Checkpoint)) Checkpoint {
	draft := NewDraft(from.Document)
	state := Checkpoint{
		LastEventID: from.LastEventID,
		Position:    from.Position,
		Rejected:    slices.Clip(from.Rejected),
	}
	for _, event := range subsequent {
		if err := draft.Apply(event); err != nil {
			state.Rejected = append(state.Rejected, Rejection{
				Index:   state.Position,
				EventID: event.ID,
				Type:    event.Type,
				Kind:    events.Kind(err),
				Reason:  err.Error(),
			})
		}
		state.Position++
		state.LastEventID = event.ID
		if observe != nil && every > 0 && state.Position%every == 0 {
			snapshot := state
			snapshot.Document = draft.Snapshot()
			snapshot.Rejected = slices.Clip(state.Rejected)
			observe(snapshot)
		}
	}
	state.Document = draft.Document()
	return state
}
