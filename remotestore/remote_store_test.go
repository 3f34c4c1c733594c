package remotestore

import (
	"testing"
	"time"
)

func newTestRemoteStore(ds *fakeDatastore, ls *fakeLocalStore, se *fakeSyncEngine) *RemoteStore {
	return NewRemoteStore(testLogger(), ds, ls, se)
}

// TestRemoteStore_ListenDeliversSnapshot covers scenario S1: Listen starts
// the watch stream, which sends the AddTarget request and, once the server
// reports the target Current, delivers a RemoteEvent to the sync engine.
func TestRemoteStore_ListenDeliversSnapshot(t *testing.T) {
	conn := newFakeConn()
	ds := newFakeDatastore()
	ds.queueWatchConn(conn)

	se := newFakeSyncEngine()
	ls := newFakeLocalStore()
	rs := newTestRemoteStore(ds, ls, se)
	defer rs.Shutdown()

	rs.EnableNetwork()
	rs.Listen(QueryData{TargetID: 1, Query: Query{CollectionPath: "rooms"}})

	waitUntil(t, func() bool { return len(conn.sentRequests()) >= 1 })

	conn.pushWatch(WatchFrame{Change: TargetChange{
		Type:            TargetChangeCurrent,
		TargetIDs:       []TargetID{1},
		ResumeToken:     []byte("r1"),
		SnapshotVersion: 7,
	}})

	waitUntil(t, func() bool { return len(se.snapshotEvents()) >= 1 })

	events := se.snapshotEvents()
	if events[0].SnapshotVersion != 7 {
		t.Fatalf("expected snapshot version 7, got %d", events[0].SnapshotVersion)
	}
}

// TestRemoteStore_ExistenceFilterMismatchTriggersRecovery covers S2: an
// existence-filter count mismatch must cause an unwatch of the target
// followed by a re-watch carrying purpose ExistenceFilterMismatch.
func TestRemoteStore_ExistenceFilterMismatchTriggersRecovery(t *testing.T) {
	conn := newFakeConn()
	ds := newFakeDatastore()
	ds.queueWatchConn(conn)

	se := newFakeSyncEngine()
	se.remoteKeys[1] = map[DocumentKey]struct{}{"doc/a": {}}
	ls := newFakeLocalStore()
	rs := newTestRemoteStore(ds, ls, se)
	defer rs.Shutdown()

	rs.EnableNetwork()
	rs.Listen(QueryData{TargetID: 1, ResumeToken: []byte("old")})

	waitUntil(t, func() bool { return len(conn.sentRequests()) >= 1 })

	conn.pushWatch(WatchFrame{Change: TargetChange{
		Type:            TargetChangeCurrent,
		TargetIDs:       []TargetID{1},
		SnapshotVersion: 1,
	}})
	conn.pushWatch(WatchFrame{Change: ExistenceFilter{TargetID: 1, Count: 99}})
	conn.pushWatch(WatchFrame{Change: TargetChange{
		Type:            TargetChangeCurrent,
		TargetIDs:       []TargetID{1},
		SnapshotVersion: 2,
	}})

	waitUntil(t, func() bool { return len(conn.sentRequests()) >= 3 })

	sent := conn.sentRequests()
	sawRemove, sawReAdd := false, false
	for _, r := range sent {
		req := r.(WatchRequest)
		if req.RemoveTarget != nil && *req.RemoveTarget == 1 {
			sawRemove = true
		}
		if req.AddTarget != nil && req.AddTarget.TargetID == 1 && req.AddTarget.Purpose == PurposeExistenceFilterMismatch {
			sawReAdd = true
		}
	}
	if !sawRemove || !sawReAdd {
		t.Fatalf("expected an unwatch/re-watch pair for target 1 after the mismatch, got %+v", sent)
	}
}

// TestRemoteStore_WritePipelineFIFOAndDrain covers S3: FillWritePipeline
// tops up from the local store in BatchID order and the stream drains them
// in the same order.
func TestRemoteStore_WritePipelineFIFOAndDrain(t *testing.T) {
	conn := newFakeConn()
	ds := newFakeDatastore()
	ds.queueWriteConn(conn)

	se := newFakeSyncEngine()
	ls := newFakeLocalStore(
		MutationBatch{BatchID: 1, Mutations: []Mutation{{Key: "doc/a"}}},
		MutationBatch{BatchID: 2, Mutations: []Mutation{{Key: "doc/b"}}},
	)
	rs := newTestRemoteStore(ds, ls, se)
	defer rs.Shutdown()

	rs.EnableNetwork()
	rs.FillWritePipeline()

	waitUntil(t, func() bool { return len(conn.sentRequests()) >= 1 })
	conn.pushWrite(WriteFrame{HandshakeAck: true, StreamToken: []byte("tok")})

	waitUntil(t, func() bool { return len(conn.sentRequests()) >= 3 }) // handshake + 2 batches

	conn.pushWrite(WriteFrame{CommitVersion: 1, Results: []MutationResult{{Key: "doc/a", UpdateTime: 1}}})
	waitUntil(t, func() bool {
		writes := se.snapshotWrites()
		return len(writes) >= 1 && writes[0].Batch.BatchID == 1
	})

	conn.pushWrite(WriteFrame{CommitVersion: 2, Results: []MutationResult{{Key: "doc/b", UpdateTime: 2}}})
	waitUntil(t, func() bool {
		writes := se.snapshotWrites()
		return len(writes) >= 2 && writes[1].Batch.BatchID == 2
	})
}

// TestRemoteStore_PermanentWriteErrorRejectsAndContinues covers S4: a
// permanent write error rejects only the head batch and the pipeline
// refills from the local store to keep draining.
func TestRemoteStore_PermanentWriteErrorRejectsAndContinues(t *testing.T) {
	conn := newFakeConn()
	ds := newFakeDatastore()
	ds.queueWriteConn(conn)
	ds.isPermanentWrite = func(Status) bool { return true }

	se := newFakeSyncEngine()
	ls := newFakeLocalStore(MutationBatch{BatchID: 1})
	rs := newTestRemoteStore(ds, ls, se)
	defer rs.Shutdown()

	rs.EnableNetwork()
	rs.FillWritePipeline()

	waitUntil(t, func() bool { return len(conn.sentRequests()) >= 1 })
	conn.pushWrite(WriteFrame{HandshakeAck: true, StreamToken: []byte("tok")})
	waitUntil(t, func() bool { return len(conn.sentRequests()) >= 2 })

	conn.pushWrite(WriteFrame{Done: true, Status: StatusFromError(errString("invalid argument"))})

	waitUntil(t, func() bool {
		se.mu.Lock()
		defer se.mu.Unlock()
		_, ok := se.rejectedWrites[1]
		return ok
	})
}

// TestRemoteStore_ShutdownWithPendingWritesDoesNotPanic covers S6: shutting
// down while a write is pipelined must tear down cleanly without delivering
// spurious online-state churn.
func TestRemoteStore_ShutdownWithPendingWritesDoesNotPanic(t *testing.T) {
	conn := newFakeConn()
	ds := newFakeDatastore()
	ds.queueWriteConn(conn)

	se := newFakeSyncEngine()
	ls := newFakeLocalStore(MutationBatch{BatchID: 1})
	rs := newTestRemoteStore(ds, ls, se)

	rs.EnableNetwork()
	rs.FillWritePipeline()
	waitUntil(t, func() bool { return len(conn.sentRequests()) >= 1 })

	rs.Shutdown()

	if state := rs.OnlineState(); state != OnlineStateUnknown {
		t.Fatalf("expected Shutdown to leave online state Unknown, got %v", state)
	}
}

// TestRemoteStore_CredentialChange covers S5: CredentialDidChange must stop
// both streams, clear the write pipeline, report Unknown, then re-enable
// networking — resending every still-registered target on a fresh watch
// connection and refilling the write pipeline from the local store's queue
// on a fresh write connection.
func TestRemoteStore_CredentialChange(t *testing.T) {
	conn1 := newFakeConn()
	wconn1 := newFakeConn()
	ds := newFakeDatastore()
	ds.queueWatchConn(conn1)
	ds.queueWriteConn(wconn1)

	se := newFakeSyncEngine()
	ls := newFakeLocalStore(MutationBatch{BatchID: 1, Mutations: []Mutation{{Key: "doc/a"}}})
	rs := newTestRemoteStore(ds, ls, se)
	defer rs.Shutdown()

	rs.EnableNetwork()
	rs.Listen(QueryData{TargetID: 1, Query: Query{CollectionPath: "rooms"}})

	waitUntil(t, func() bool { return len(conn1.sentRequests()) >= 1 })
	waitUntil(t, func() bool { return len(wconn1.sentRequests()) >= 1 })
	wconn1.pushWrite(WriteFrame{HandshakeAck: true, StreamToken: []byte("tok1")})
	waitUntil(t, func() bool { return len(wconn1.sentRequests()) >= 2 }) // handshake + batch 1

	// Bring the watch stream Online so the transition back to Unknown below
	// is observable rather than a no-op dedup against the initial state.
	conn1.pushWatch(WatchFrame{Change: TargetChange{
		Type:            TargetChangeCurrent,
		TargetIDs:       []TargetID{1},
		SnapshotVersion: 5,
		ResumeToken:     []byte("r1"),
	}})
	waitUntil(t, func() bool {
		se.mu.Lock()
		defer se.mu.Unlock()
		return len(se.states) >= 1 && se.states[len(se.states)-1] == OnlineStateOnline
	})

	conn2 := newFakeConn()
	wconn2 := newFakeConn()
	ds.queueWatchConn(conn2)
	ds.queueWriteConn(wconn2)

	rs.CredentialDidChange()

	waitUntil(t, func() bool {
		se.mu.Lock()
		defer se.mu.Unlock()
		return len(se.states) >= 2 && se.states[len(se.states)-1] == OnlineStateUnknown
	})

	waitUntil(t, func() bool { return len(conn2.sentRequests()) >= 1 })
	sawReAdd := false
	for _, r := range conn2.sentRequests() {
		if req, ok := r.(WatchRequest); ok && req.AddTarget != nil && req.AddTarget.TargetID == 1 {
			sawReAdd = true
		}
	}
	if !sawReAdd {
		t.Fatalf("expected target 1 to be re-added on the new watch connection, got %+v", conn2.sentRequests())
	}

	waitUntil(t, func() bool { return len(wconn2.sentRequests()) >= 1 })
	sawHandshake := false
	for _, r := range wconn2.sentRequests() {
		if req, ok := r.(WriteRequest); ok && req.Handshake {
			sawHandshake = true
		}
	}
	if !sawHandshake {
		t.Fatalf("expected a fresh handshake on the new write connection, got %+v", wconn2.sentRequests())
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not satisfied within timeout")
}
