package remotestore

import "testing"

func TestWatchChangeAggregator_BasicSnapshot(t *testing.T) {
	a := NewWatchChangeAggregator(nil, nil)

	a.HandleTargetChange(TargetChange{Type: TargetChangeAdded, TargetIDs: []TargetID{1}})
	a.HandleTargetChange(TargetChange{Type: TargetChangeCurrent, TargetIDs: []TargetID{1}, ResumeToken: []byte("r1")})
	a.HandleDocumentChange(DocumentChange{Key: "doc/a", Doc: "payload", UpdatedTargetIDs: []TargetID{1}})

	event := a.CreateRemoteEvent(SnapshotVersion(10))

	if event.SnapshotVersion != 10 {
		t.Fatalf("expected snapshot version 10, got %d", event.SnapshotVersion)
	}
	cs, ok := event.TargetChanges[1]
	if !ok {
		t.Fatalf("expected a TargetChangeSet for target 1")
	}
	if !cs.Current {
		t.Fatalf("expected target 1 to be marked Current")
	}
	if string(cs.ResumeToken) != "r1" {
		t.Fatalf("expected resume token r1, got %q", cs.ResumeToken)
	}
	if len(cs.ChangedDocs) != 1 || cs.ChangedDocs[0] != "doc/a" {
		t.Fatalf("expected doc/a to be a changed doc, got %v", cs.ChangedDocs)
	}
	if len(event.DocumentUpdates) != 1 {
		t.Fatalf("expected one document update, got %d", len(event.DocumentUpdates))
	}
}

func TestWatchChangeAggregator_DocumentMoveBetweenChangedAndRemoved(t *testing.T) {
	a := NewWatchChangeAggregator(nil, nil)
	a.HandleTargetChange(TargetChange{Type: TargetChangeAdded, TargetIDs: []TargetID{1}})

	a.HandleDocumentChange(DocumentChange{Key: "doc/a", UpdatedTargetIDs: []TargetID{1}})
	a.HandleDocumentChange(DocumentChange{Key: "doc/a", RemovedTargetIDs: []TargetID{1}})

	event := a.CreateRemoteEvent(SnapshotVersion(1))
	cs := event.TargetChanges[1]
	if len(cs.ChangedDocs) != 0 {
		t.Fatalf("expected doc/a to no longer be a changed doc, got %v", cs.ChangedDocs)
	}
	if len(cs.RemovedDocs) != 1 || cs.RemovedDocs[0] != "doc/a" {
		t.Fatalf("expected doc/a to be a removed doc, got %v", cs.RemovedDocs)
	}
}

func TestWatchChangeAggregator_TargetErrorCallsOnErrorUnlessPending(t *testing.T) {
	var rejected []TargetID
	a := NewWatchChangeAggregator(func(id TargetID, err error) {
		rejected = append(rejected, id)
	}, nil)

	a.HandleTargetChange(TargetChange{Type: TargetChangeAdded, TargetIDs: []TargetID{1, 2}})

	// Target 2 has a pending re-request (e.g. existence-filter recovery in
	// flight); its removal must be swallowed, not surfaced as an error.
	a.RecordPendingTargetRequest(2)

	cause := StatusFromError(errString("target gone"))
	a.HandleTargetChange(TargetChange{Type: TargetChangeRemoved, TargetIDs: []TargetID{1, 2}, Cause: cause})

	if len(rejected) != 1 || rejected[0] != 1 {
		t.Fatalf("expected only target 1 to be rejected, got %v", rejected)
	}
}

func TestWatchChangeAggregator_ExistenceFilterMismatch(t *testing.T) {
	remoteKeys := map[TargetID]map[DocumentKey]struct{}{
		1: {"doc/a": {}, "doc/b": {}},
	}
	a := NewWatchChangeAggregator(nil, func(id TargetID) map[DocumentKey]struct{} {
		return remoteKeys[id]
	})
	a.HandleTargetChange(TargetChange{Type: TargetChangeAdded, TargetIDs: []TargetID{1}})
	a.HandleExistenceFilter(ExistenceFilter{TargetID: 1, Count: 5})

	event := a.CreateRemoteEvent(SnapshotVersion(1))
	if _, ok := event.TargetMismatches[1]; !ok {
		t.Fatalf("expected target 1 to be reported as a mismatch (2 local keys vs filter count 5)")
	}
}

func TestWatchChangeAggregator_ExistenceFilterMatches(t *testing.T) {
	remoteKeys := map[TargetID]map[DocumentKey]struct{}{
		1: {"doc/a": {}},
	}
	a := NewWatchChangeAggregator(nil, func(id TargetID) map[DocumentKey]struct{} {
		return remoteKeys[id]
	})
	a.HandleTargetChange(TargetChange{Type: TargetChangeAdded, TargetIDs: []TargetID{1}})
	a.HandleExistenceFilter(ExistenceFilter{TargetID: 1, Count: 1})

	event := a.CreateRemoteEvent(SnapshotVersion(1))
	if _, ok := event.TargetMismatches[1]; ok {
		t.Fatalf("expected no mismatch when local count equals filter count")
	}
}

func TestWatchChangeAggregator_PerSnapshotAccumulationResets(t *testing.T) {
	a := NewWatchChangeAggregator(nil, nil)
	a.HandleTargetChange(TargetChange{Type: TargetChangeAdded, TargetIDs: []TargetID{1}})
	a.HandleDocumentChange(DocumentChange{Key: "doc/a", UpdatedTargetIDs: []TargetID{1}})

	first := a.CreateRemoteEvent(SnapshotVersion(1))
	if len(first.TargetChanges[1].ChangedDocs) != 1 {
		t.Fatalf("expected one changed doc in the first snapshot")
	}

	second := a.CreateRemoteEvent(SnapshotVersion(2))
	if len(second.TargetChanges[1].ChangedDocs) != 0 {
		t.Fatalf("expected the second snapshot to carry no stale changed docs, got %v", second.TargetChanges[1].ChangedDocs)
	}
}
