package remotestore

// WatchChangeAggregator folds a stream of watch frames into consistent
// RemoteEvents. RemoteStore owns the contract; a fresh
// aggregator is allocated whenever a WatchStream enters Starting and
// discarded on interruption, since its state (pending target adds/removes,
// accumulated document changes) is only valid for one stream lifetime.
//
// The interface exists so a WatchStream under test can be driven with a
// scriptable fake; defaultAggregator below is the real implementation.
type WatchChangeAggregator interface {
	// HandleTargetChange folds a TargetChange frame into the aggregator's
	// pending state. Target errors (Removed with a non-OK cause) are
	// reported back to onTargetError instead of being folded in.
	HandleTargetChange(change TargetChange)

	HandleDocumentChange(change DocumentChange)
	HandleExistenceFilter(filter ExistenceFilter)

	// RecordPendingTargetRequest marks id as having an in-flight
	// listen/unlisten so a stale "target not found" signal for it can be
	// ignored rather than treated as a real server-side removal.
	RecordPendingTargetRequest(id TargetID)

	// CreateRemoteEvent produces a RemoteEvent for the given snapshot
	// version from everything folded in so far.
	CreateRemoteEvent(version SnapshotVersion) RemoteEvent

	// RemoveTarget drops all aggregator-local state for id.
	RemoveTarget(id TargetID)
}

// targetMetadata tracks one target's accumulated state between snapshots.
type targetMetadata struct {
	current     bool
	changedDocs map[DocumentKey]struct{}
	removedDocs map[DocumentKey]struct{}
	resumeToken []byte
}

// onTargetError is called by defaultAggregator when it sees a target error
// it cannot suppress (not a pending request). RemoteStore supplies this at
// construction; it drops the target from the registry and calls
// SyncEngine.RejectListen.
type onTargetError func(id TargetID, err error)

// remoteKeysForTarget is how the aggregator asks the sync engine what it
// currently believes is in a target, to compare against an ExistenceFilter.
type remoteKeysForTarget func(id TargetID) map[DocumentKey]struct{}

// defaultAggregator is the real WatchChangeAggregator implementation. It
// folds per-target state incrementally as frames arrive rather than
// recomputing a snapshot from scratch on every reconciliation.
type defaultAggregator struct {
	targetStates map[TargetID]*targetMetadata
	pendingReqs  map[TargetID]int // in-flight listen/unlisten count per target

	existenceFilters map[TargetID]ExistenceFilter
	documentUpdates  map[DocumentKey]any

	onError     onTargetError
	remoteKeys  remoteKeysForTarget
}

// NewWatchChangeAggregator constructs the real aggregator. onError and
// remoteKeys are borrowed handles back into RemoteStore/SyncEngine — never
// ownership.
func NewWatchChangeAggregator(onError onTargetError, remoteKeys remoteKeysForTarget) WatchChangeAggregator {
	return &defaultAggregator{
		targetStates:     make(map[TargetID]*targetMetadata),
		pendingReqs:      make(map[TargetID]int),
		existenceFilters: make(map[TargetID]ExistenceFilter),
		documentUpdates:  make(map[DocumentKey]any),
		onError:          onError,
		remoteKeys:       remoteKeys,
	}
}

func (a *defaultAggregator) RecordPendingTargetRequest(id TargetID) {
	a.pendingReqs[id]++
}

func (a *defaultAggregator) consumePendingRequest(id TargetID) bool {
	n, ok := a.pendingReqs[id]
	if !ok || n == 0 {
		return false
	}
	n--
	if n == 0 {
		delete(a.pendingReqs, id)
	} else {
		a.pendingReqs[id] = n
	}
	return true
}

func (a *defaultAggregator) stateFor(id TargetID) *targetMetadata {
	s, ok := a.targetStates[id]
	if !ok {
		s = &targetMetadata{
			changedDocs: make(map[DocumentKey]struct{}),
			removedDocs: make(map[DocumentKey]struct{}),
		}
		a.targetStates[id] = s
	}
	return s
}

func (a *defaultAggregator) HandleTargetChange(change TargetChange) {
	if change.Type == TargetChangeRemoved && !change.Cause.OK {
		for _, id := range change.TargetIDs {
			// A stale removal for a target we're already re-requesting is
			// not a real server-side error; swallow it.
			if a.consumePendingRequest(id) {
				continue
			}
			delete(a.targetStates, id)
			if a.onError != nil {
				a.onError(id, change.Cause.Err)
			}
		}
		return
	}

	for _, id := range change.TargetIDs {
		s := a.stateFor(id)
		switch change.Type {
		case TargetChangeCurrent:
			s.current = true
		case TargetChangeAdded:
			// Nothing extra to track; presence in targetStates is enough.
		case TargetChangeReset:
			s.changedDocs = make(map[DocumentKey]struct{})
			s.removedDocs = make(map[DocumentKey]struct{})
			s.current = false
		}
		if len(change.ResumeToken) > 0 {
			s.resumeToken = change.ResumeToken
		}
	}
}

func (a *defaultAggregator) HandleDocumentChange(change DocumentChange) {
	a.documentUpdates[change.Key] = change.Doc
	for _, id := range change.UpdatedTargetIDs {
		s := a.stateFor(id)
		delete(s.removedDocs, change.Key)
		s.changedDocs[change.Key] = struct{}{}
	}
	for _, id := range change.RemovedTargetIDs {
		s := a.stateFor(id)
		delete(s.changedDocs, change.Key)
		s.removedDocs[change.Key] = struct{}{}
	}
}

func (a *defaultAggregator) HandleExistenceFilter(filter ExistenceFilter) {
	a.existenceFilters[filter.TargetID] = filter
}

func (a *defaultAggregator) CreateRemoteEvent(version SnapshotVersion) RemoteEvent {
	targetChanges := make(map[TargetID]TargetChangeSet, len(a.targetStates))
	mismatches := make(map[TargetID]struct{})

	for id, s := range a.targetStates {
		cs := TargetChangeSet{
			SnapshotVersion: version,
			ResumeToken:     s.resumeToken,
			Current:         s.current,
		}
		for k := range s.changedDocs {
			cs.ChangedDocs = append(cs.ChangedDocs, k)
		}
		for k := range s.removedDocs {
			cs.RemovedDocs = append(cs.RemovedDocs, k)
		}
		targetChanges[id] = cs

		// Reset the per-snapshot accumulation now that it has been folded
		// into this event; resumeToken/current persist across snapshots.
		s.changedDocs = make(map[DocumentKey]struct{})
		s.removedDocs = make(map[DocumentKey]struct{})
	}

	for id, filter := range a.existenceFilters {
		if a.mismatchesFilter(id, filter) {
			mismatches[id] = struct{}{}
		}
	}
	a.existenceFilters = make(map[TargetID]ExistenceFilter)

	docs := a.documentUpdates
	a.documentUpdates = make(map[DocumentKey]any)

	return RemoteEvent{
		SnapshotVersion:  version,
		TargetChanges:    targetChanges,
		TargetMismatches: mismatches,
		DocumentUpdates:  docs,
	}
}

func (a *defaultAggregator) mismatchesFilter(id TargetID, filter ExistenceFilter) bool {
	if a.remoteKeys == nil {
		return false
	}
	localCount := len(a.remoteKeys(id))
	return localCount != filter.Count
}

func (a *defaultAggregator) RemoveTarget(id TargetID) {
	delete(a.targetStates, id)
	delete(a.existenceFilters, id)
	delete(a.pendingReqs, id)
}
