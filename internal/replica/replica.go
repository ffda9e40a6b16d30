// Package replica is the single mutation entry point of one device.
//
// A Replica owns the device's materialized document, the canonical order it
// was folded from, and the events still waiting on a dependency. Dispatch
// commits locally authored batches all-or-nothing; Merge folds in events
// received from peers. Both persist to the event log only after the new state
// has been computed in memory.
package replica

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/crmcore/internal/document"
	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
	"github.com/MarcoPoloResearchLab/crmcore/internal/ordering"
)

// DefaultCheckpointInterval is the number of folded events between checkpoints.
const DefaultCheckpointInterval = 256

var noOpLogger = zap.NewNop()

// EventLog is the device's append-only event storage.
type EventLog interface {
	// Append stores the events not already present and reports how many were new.
	Append(ctx context.Context, batch []events.Event) (int, error)
	Events(ctx context.Context) ([]events.Event, error)
}

// CheckpointStore persists folded document snapshots.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, checkpoint document.Checkpoint) error
	// LatestCheckpoint returns the checkpoint with the greatest position not above maxPosition.
	LatestCheckpoint(ctx context.Context, maxPosition int) (document.Checkpoint, bool, error)
	DeleteCheckpointsAfter(ctx context.Context, position int) error
}

// Change describes a committed state transition.
type Change struct {
	Families []events.Family
	EventIDs []string
}

// Config wires a Replica.
type Config struct {
	DeviceID           string
	Log                EventLog
	Checkpoints        CheckpointStore
	CheckpointInterval int
	IDProvider         IDProvider
	Clock              func() time.Time
	Logger             *zap.Logger
	OnChange           func(Change)
}

// DispatchResult reports the outcome of a local batch.
type DispatchResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Kind    string         `json:"kind,omitempty"`
	Events  []events.Event `json:"events,omitempty"`
}

// MergeResult reports the outcome of folding peer events.
type MergeResult struct {
	Received   int                  `json:"received"`
	Added      int                  `json:"added"`
	Duplicates int                  `json:"duplicates"`
	Ordered    int                  `json:"ordered"`
	Pending    []events.Event       `json:"pending"`
	Rejected   []document.Rejection `json:"rejected"`
}

// Replica serializes every mutation of one device's state.
type Replica struct {
	deviceID    string
	log         EventLog
	checkpoints CheckpointStore
	interval    int
	idProvider  IDProvider
	clock       *Clock
	logger      *zap.Logger
	onChange    func(Change)

	mu      sync.RWMutex
	state   document.Checkpoint
	folded  []events.Event
	digests []string
	pending []events.Event
	known   map[string]struct{}
}

// New validates cfg and returns an empty replica; call Load to restore persisted state.
func New(cfg Config) (*Replica, error) {
	if cfg.Log == nil {
		return nil, newServiceError(opReplicaNew, "missing_event_log", errMissingEventLog)
	}
	if cfg.DeviceID == "" {
		return nil, newServiceError(opReplicaNew, "missing_device_id", errMissingDeviceID)
	}

	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	interval := cfg.CheckpointInterval
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Replica{
		deviceID:    cfg.DeviceID,
		log:         cfg.Log,
		checkpoints: cfg.Checkpoints,
		interval:    interval,
		idProvider:  idProvider,
		clock:       NewClock(cfg.Clock),
		logger:      logger,
		onChange:    cfg.OnChange,
		state:       document.Checkpoint{Document: document.Empty()},
		digests:     ordering.PrefixDigests(nil),
		known:       make(map[string]struct{}),
	}, nil
}

// DeviceID returns the local device identifier.
func (r *Replica) DeviceID() string {
	return r.deviceID
}

// Document returns the current materialized document. The value must be treated as read-only.
func (r *Replica) Document() document.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Document
}

// Events returns the folded canonical order followed by the pending events.
func (r *Replica) Events() []events.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(slices.Clone(r.folded), r.pending...)
}

// Pending returns the events waiting on a dependency that has not arrived.
func (r *Replica) Pending() []events.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.pending)
}

// Rejected returns the events of the canonical order whose reducer failed.
func (r *Replica) Rejected() []document.Rejection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.state.Rejected)
}

// Load restores state from the event log, resuming from the newest valid checkpoint.
func (r *Replica) Load(ctx context.Context) (MergeResult, error) {
	stored, err := r.log.Events(ctx)
	if err != nil {
		r.logError(opLoad, "log_read_failed", err)
		return MergeResult{}, newServiceError(opLoad, "log_read_failed", err)
	}

	r.mu.Lock()
	r.reset()
	result, sequenceErr := r.integrate(ctx, opLoad, stored, true)
	r.mu.Unlock()
	if sequenceErr != nil && !isDangling(sequenceErr) {
		return MergeResult{}, sequenceErr
	}
	r.logger.Info("replica loaded",
		zap.String("device_id", r.deviceID),
		zap.Int("events", result.Ordered),
		zap.Int("pending", len(result.Pending)),
		zap.Int("rejected", len(result.Rejected)))
	return result, sequenceErr
}

// Rebuild discards checkpoints and replays the whole log from genesis.
func (r *Replica) Rebuild(ctx context.Context) (MergeResult, error) {
	stored, err := r.log.Events(ctx)
	if err != nil {
		r.logError(opRebuild, "log_read_failed", err)
		return MergeResult{}, newServiceError(opRebuild, "log_read_failed", err)
	}
	if r.checkpoints != nil {
		if err := r.checkpoints.DeleteCheckpointsAfter(ctx, 0); err != nil {
			r.logError(opRebuild, "checkpoint_prune_failed", err)
			return MergeResult{}, newServiceError(opRebuild, "checkpoint_prune_failed", err)
		}
	}

	r.mu.Lock()
	r.reset()
	result, sequenceErr := r.integrate(ctx, opRebuild, stored, false)
	r.mu.Unlock()
	if sequenceErr != nil && !isDangling(sequenceErr) {
		return MergeResult{}, sequenceErr
	}
	r.notify(allFamilies(), nil)
	return result, sequenceErr
}

// Dispatch applies a locally authored batch all-or-nothing.
//
// Missing ids and timestamps are stamped; a missing device id is set to the
// local one. Each event's resolved target id is written into EntityID. The
// batch is applied in order against a working copy and stops at the first
// failure, which is reported in the result and returned as an *events.EventError.
// Only a fully applied batch is appended to the log and becomes visible.
func (r *Replica) Dispatch(ctx context.Context, batch []events.Event) (DispatchResult, error) {
	r.mu.Lock()
	result, change, err := r.dispatchLocked(ctx, batch)
	r.mu.Unlock()
	if change != nil {
		r.notify(change.Families, change.EventIDs)
	}
	return result, err
}

func (r *Replica) dispatchLocked(ctx context.Context, batch []events.Event) (DispatchResult, *Change, error) {
	if len(batch) == 0 {
		return DispatchResult{Success: true}, nil, nil
	}

	stamped := make([]events.Event, 0, len(batch))
	batchIDs := make(map[string]struct{}, len(batch))
	working := document.NewDraft(r.state.Document)
	for index, event := range batch {
		prepared, err := r.stamp(event)
		if err != nil {
			return r.dispatchFailure(index, event, err)
		}
		if err := prepared.Validate(); err != nil {
			return r.dispatchFailure(index, prepared, err)
		}
		_, logged := r.known[prepared.ID]
		_, batched := batchIDs[prepared.ID]
		if logged || batched {
			return r.dispatchFailure(index, prepared, errors.Join(events.ErrDuplicateEntity, errDuplicateEventID))
		}
		batchIDs[prepared.ID] = struct{}{}
		resolved, err := events.ResolveEntityID(prepared)
		if err != nil {
			return r.dispatchFailure(index, prepared, err)
		}
		prepared.EntityID = resolved

		if err := working.Apply(prepared); err != nil {
			return r.dispatchFailure(index, prepared, err)
		}
		stamped = append(stamped, prepared)
	}

	sequenced, sequenceErr := ordering.Sequence(r.folded, r.pending, stamped)
	if sequenceErr != nil && !isDangling(sequenceErr) {
		return DispatchResult{}, nil, sequenceErr
	}
	if index, found := insertedIntoHistory(stamped, r.folded, sequenced.Ordered); found {
		return r.dispatchFailure(index, stamped[index], errors.Join(events.ErrInvalidPayload, errBehindHistory))
	}
	next := r.materialize(ctx, opDispatch, sequenced.Ordered, false)
	if index, rejection, found := rejectedFromBatch(stamped, next.state.Rejected); found {
		return r.dispatchFailure(index, stamped[index], events.KindError(rejection.Kind, rejection.Reason))
	}

	if _, err := r.log.Append(ctx, stamped); err != nil {
		r.logError(opDispatch, "log_append_failed", err, zap.Int("events", len(stamped)))
		return DispatchResult{}, nil, newServiceError(opDispatch, "log_append_failed", err)
	}
	r.commit(ctx, opDispatch, next, sequenced.Pending, stamped)

	return DispatchResult{Success: true, Events: stamped}, changeFor(stamped), nil
}

func (r *Replica) stamp(event events.Event) (events.Event, error) {
	if event.Payload != nil && event.Type == "" {
		event.Type = event.Payload.EventType()
	}
	if event.ID == "" {
		id, err := r.idProvider.NewID()
		if err != nil {
			return event, err
		}
		event.ID = id
	}
	if event.DeviceID == "" {
		event.DeviceID = r.deviceID
	}
	if event.DeviceID != r.deviceID {
		return event, errors.Join(events.ErrInvalidPayload, errForeignDevice)
	}
	if event.Timestamp == 0 {
		event.Timestamp = r.clock.Next()
	} else {
		r.clock.Observe(event.Timestamp)
	}
	return event, nil
}

func (r *Replica) dispatchFailure(index int, event events.Event, cause error) (DispatchResult, *Change, error) {
	err := events.NewEventError(index, event, cause)
	r.logger.Warn("dispatch rejected",
		zap.String("device_id", r.deviceID),
		zap.Int("index", index),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("kind", events.Kind(cause)),
		zap.Error(cause))
	return DispatchResult{Success: false, Error: err.Error(), Kind: events.Kind(cause)}, nil, err
}

// Merge folds events received from a peer into the local state.
// Events already known are ignored. A *ordering.DanglingDependencyError is
// returned together with a valid result when some events still wait on a
// creation that has not arrived; those events are kept and retried on the next merge.
func (r *Replica) Merge(ctx context.Context, incoming []events.Event) (MergeResult, error) {
	for index, event := range incoming {
		if err := event.Validate(); err != nil {
			r.logError(opMerge, "invalid_event", err, zap.String("event_id", event.ID))
			return MergeResult{}, newServiceError(opMerge, "invalid_event", events.NewEventError(index, event, err))
		}
	}

	r.mu.Lock()
	fresh := make([]events.Event, 0, len(incoming))
	seen := make(map[string]struct{}, len(incoming))
	for _, event := range incoming {
		_, known := r.known[event.ID]
		_, repeated := seen[event.ID]
		if known || repeated {
			continue
		}
		seen[event.ID] = struct{}{}
		fresh = append(fresh, event)
	}
	result, err := r.integrate(ctx, opMerge, fresh, false)
	r.mu.Unlock()
	result.Received = len(incoming)
	result.Duplicates = len(incoming) - len(fresh)
	if err != nil && !isDangling(err) {
		return MergeResult{}, err
	}
	if result.Added > 0 {
		r.notify(familiesOf(fresh), idsOf(fresh))
	}
	return result, err
}

// integrate sequences fresh with the current state, materializes and commits. Callers hold r.mu.
func (r *Replica) integrate(ctx context.Context, operation string, fresh []events.Event, useCheckpoints bool) (MergeResult, error) {
	sequenced, sequenceErr := ordering.Sequence(r.folded, r.pending, fresh)
	if sequenceErr != nil {
		if !isDangling(sequenceErr) {
			return MergeResult{}, sequenceErr
		}
		r.logError(operation, "dangling_dependency", sequenceErr,
			zap.Int("pending", len(sequenced.Pending)))
	}
	for _, event := range fresh {
		r.clock.Observe(event.Timestamp)
	}

	next := r.materialize(ctx, operation, sequenced.Ordered, useCheckpoints)
	if operation != opLoad && operation != opRebuild && len(fresh) > 0 {
		if _, err := r.log.Append(ctx, fresh); err != nil {
			r.logError(operation, "log_append_failed", err, zap.Int("events", len(fresh)))
			return MergeResult{}, newServiceError(operation, "log_append_failed", err)
		}
	}
	r.commit(ctx, operation, next, sequenced.Pending, fresh)

	rejected := slices.Clone(r.state.Rejected)
	for _, rejection := range rejected {
		r.logger.Debug("event skipped in canonical order",
			zap.String("operation", operation),
			zap.Int("index", rejection.Index),
			zap.String("event_id", rejection.EventID),
			zap.String("kind", rejection.Kind))
	}
	return MergeResult{
		Added:    len(fresh),
		Ordered:  len(r.folded),
		Pending:  slices.Clone(r.pending),
		Rejected: rejected,
	}, sequenceErr
}

type materialized struct {
	state       document.Checkpoint
	folded      []events.Event
	digests     []string
	prunedAfter int
	snapshots   []document.Checkpoint
}

// materialize computes the state for ordered. It folds only the new suffix when
// the current order is a prefix of ordered, otherwise resumes from the newest
// checkpoint whose prefix digest still matches, otherwise starts at genesis.
func (r *Replica) materialize(ctx context.Context, operation string, ordered []events.Event, useCheckpoints bool) materialized {
	common := ordering.CommonPrefix(r.folded, ordered)
	digests := ordering.ExtendDigests(r.digests[:common+1], ordered)

	next := materialized{folded: ordered, digests: digests, prunedAfter: -1}
	var base document.Checkpoint
	switch {
	case common == len(r.folded):
		base = r.state
	default:
		next.prunedAfter = common
		base = r.resumePoint(ctx, operation, digests, common)
	}
	if useCheckpoints && base.Position == 0 {
		base = r.resumePoint(ctx, operation, digests, len(ordered))
		next.prunedAfter = base.Position
	}

	next.state = document.Materialize(base, ordered[base.Position:], r.interval, func(step document.Checkpoint) {
		step.PrefixDigest = digests[step.Position]
		next.snapshots = append(next.snapshots, step)
	})
	next.state.PrefixDigest = digests[len(ordered)]
	return next
}

// resumePoint returns the newest checkpoint at or below limit whose digest matches, or genesis.
func (r *Replica) resumePoint(ctx context.Context, operation string, digests []string, limit int) document.Checkpoint {
	genesis := document.Checkpoint{Document: document.Empty(), PrefixDigest: digests[0]}
	if r.checkpoints == nil {
		return genesis
	}
	for limit > 0 {
		checkpoint, found, err := r.checkpoints.LatestCheckpoint(ctx, limit)
		if err != nil {
			r.logError(operation, "checkpoint_read_failed", err)
			return genesis
		}
		if !found || checkpoint.Position <= 0 {
			return genesis
		}
		if checkpoint.Position < len(digests) && checkpoint.PrefixDigest == digests[checkpoint.Position] {
			return checkpoint
		}
		limit = checkpoint.Position - 1
	}
	return genesis
}

// commit swaps in the computed state and maintains checkpoints. Callers hold r.mu.
func (r *Replica) commit(ctx context.Context, operation string, next materialized, pending []events.Event, fresh []events.Event) {
	r.state = next.state
	r.folded = next.folded
	r.digests = next.digests
	r.pending = pending
	for _, event := range fresh {
		r.known[event.ID] = struct{}{}
	}

	if r.checkpoints == nil {
		return
	}
	if next.prunedAfter >= 0 {
		if err := r.checkpoints.DeleteCheckpointsAfter(ctx, next.prunedAfter); err != nil {
			r.logError(operation, "checkpoint_prune_failed", err, zap.Int("position", next.prunedAfter))
		}
	}
	for _, snapshot := range next.snapshots {
		if err := r.checkpoints.SaveCheckpoint(ctx, snapshot); err != nil {
			r.logError(opCheckpoint, "save_failed", err, zap.Int("position", snapshot.Position))
			return
		}
	}
}

func (r *Replica) reset() {
	r.state = document.Checkpoint{Document: document.Empty()}
	r.folded = nil
	r.digests = ordering.PrefixDigests(nil)
	r.pending = nil
	r.known = make(map[string]struct{})
}

func (r *Replica) notify(families []events.Family, eventIDs []string) {
	if r.onChange == nil {
		return
	}
	r.onChange(Change{Families: families, EventIDs: eventIDs})
}

func (r *Replica) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.String("device_id", r.deviceID),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("replica error", attrs...)
}

// insertedIntoHistory reports the first batch event that the canonical order
// places among already folded events or ahead of an earlier batch event. Such
// an event would be folded against a different document than the one Dispatch
// validated it on.
func insertedIntoHistory(batch, folded, ordered []events.Event) (int, bool) {
	common := ordering.CommonPrefix(folded, ordered)
	positions := batchPositions(batch)
	previous := -1
	for _, event := range ordered[common:] {
		index, ok := positions[event.ID]
		if !ok {
			continue
		}
		if common < len(folded) || index < previous {
			return index, true
		}
		previous = index
	}
	return 0, false
}

// rejectedFromBatch reports the first batch event the tolerant fold skipped.
func rejectedFromBatch(batch []events.Event, rejected []document.Rejection) (int, document.Rejection, bool) {
	positions := batchPositions(batch)
	for _, rejection := range rejected {
		if index, ok := positions[rejection.EventID]; ok {
			return index, rejection, true
		}
	}
	return 0, document.Rejection{}, false
}

func batchPositions(batch []events.Event) map[string]int {
	positions := make(map[string]int, len(batch))
	for index, event := range batch {
		positions[event.ID] = index
	}
	return positions
}

func isDangling(err error) bool {
	var dangling *ordering.DanglingDependencyError
	return errors.As(err, &dangling)
}

func changeFor(batch []events.Event) *Change {
	return &Change{Families: familiesOf(batch), EventIDs: idsOf(batch)}
}

func familiesOf(batch []events.Event) []events.Family {
	var families []events.Family
	for _, event := range batch {
		family := event.Type.Family()
		if !slices.Contains(families, family) {
			families = append(families, family)
		}
	}
	slices.Sort(families)
	return families
}

func idsOf(batch []events.Event) []string {
	ids := make([]string, 0, len(batch))
	for _, event := range batch {
		ids = append(ids, event.ID)
	}
	return ids
}

func allFamilies() []events.Family {
	return []events.Family{
		events.FamilyAccount,
		events.FamilyContact,
		events.FamilyInteraction,
		events.FamilyNote,
		events.FamilyOrganization,
		events.FamilyRelation,
	}
}
