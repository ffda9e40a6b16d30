package database

import (
	"context"
	"testing"

	"github.com/MarcoPoloResearchLab/crmcore/internal/document"
	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

func checkpointAt(testContext *testing.T, position int, name string) document.Checkpoint {
	testContext.Helper()
	doc, err := document.Replay([]events.Event{
		events.New("e-1", events.OrganizationCreated{Identity: events.Identity{ID: "O1"}, Name: name}, 1000, "device-a"),
	})
	if err != nil {
		testContext.Fatalf("replay failed: %v", err)
	}
	return document.Checkpoint{
		LastEventID:  "e-1",
		Position:     position,
		PrefixDigest: "digest",
		Document:     doc,
		Rejected:     []document.Rejection{{Index: 0, EventID: "e-0", Type: events.TypeNoteDeleted, Kind: events.KindEntityNotFound, Reason: "missing"}},
	}
}

func TestCheckpointStoreRoundTrip(testContext *testing.T) {
	store, err := NewCheckpointStore(openTestDatabase(testContext))
	if err != nil {
		testContext.Fatalf("unexpected store error: %v", err)
	}
	ctx := context.Background()
	saved := checkpointAt(testContext, 4, "Acme")
	if err := store.SaveCheckpoint(ctx, saved); err != nil {
		testContext.Fatalf("save failed: %v", err)
	}

	loaded, found, err := store.LatestCheckpoint(ctx, 10)
	if err != nil || !found {
		testContext.Fatalf("expected checkpoint, found=%v err=%v", found, err)
	}
	expected, err := document.Fingerprint(saved.Document)
	if err != nil {
		testContext.Fatalf("fingerprint failed: %v", err)
	}
	actual, err := document.Fingerprint(loaded.Document)
	if err != nil {
		testContext.Fatalf("fingerprint failed: %v", err)
	}
	if expected != actual {
		testContext.Fatalf("document changed across storage")
	}
	if loaded.Position != 4 || loaded.LastEventID != "e-1" || loaded.PrefixDigest != "digest" {
		testContext.Fatalf("unexpected checkpoint header: %#v", loaded)
	}
	if len(loaded.Rejected) != 1 || loaded.Rejected[0].EventID != "e-0" {
		testContext.Fatalf("unexpected rejections: %#v", loaded.Rejected)
	}
}

func TestCheckpointStoreSelectsAndPrunes(testContext *testing.T) {
	store, err := NewCheckpointStore(openTestDatabase(testContext))
	if err != nil {
		testContext.Fatalf("unexpected store error: %v", err)
	}
	ctx := context.Background()
	for _, position := range []int{2, 4, 6} {
		if err := store.SaveCheckpoint(ctx, checkpointAt(testContext, position, "Acme")); err != nil {
			testContext.Fatalf("save %d failed: %v", position, err)
		}
	}
	if err := store.SaveCheckpoint(ctx, checkpointAt(testContext, 4, "Replaced")); err != nil {
		testContext.Fatalf("overwrite failed: %v", err)
	}

	latest, found, err := store.LatestCheckpoint(ctx, 5)
	if err != nil || !found {
		testContext.Fatalf("expected checkpoint, found=%v err=%v", found, err)
	}
	if latest.Position != 4 {
		testContext.Fatalf("expected position 4, got %d", latest.Position)
	}
	if latest.Document.Organizations["O1"].Name != "Replaced" {
		testContext.Fatalf("expected overwritten checkpoint, got %q", latest.Document.Organizations["O1"].Name)
	}

	if err := store.DeleteCheckpointsAfter(ctx, 2); err != nil {
		testContext.Fatalf("prune failed: %v", err)
	}
	latest, found, err = store.LatestCheckpoint(ctx, 100)
	if err != nil || !found {
		testContext.Fatalf("expected checkpoint after prune, found=%v err=%v", found, err)
	}
	if latest.Position != 2 {
		testContext.Fatalf("expected position 2 after prune, got %d", latest.Position)
	}

	if _, found, err := store.LatestCheckpoint(ctx, 1); err != nil || found {
		testContext.Fatalf("expected no checkpoint at or below 1, found=%v err=%v", found, err)
	}
}
