package remotestore

import (
	"context"

	"go.uber.org/zap"
)

// RemoteStore is the coordinator. It owns the registry, the write pipeline,
// the online-state tracker and both stream state machines, and is the only
// thing the sync engine talks to.
//
// The public API methods are safe to call from any goroutine: those that
// touch coordinator state hand off to the single worker goroutine described
// in worker.go and block until that hand-off has run, so callers observe a
// consistent post-state immediately. The delegate callbacks (the On...
// methods) are invoked on the worker by the two streams and do not hand off.
type RemoteStore struct {
	w      *worker
	logger *zap.SugaredLogger

	datastore  Datastore
	localStore LocalStore
	syncEngine SyncEngine

	registry *ListenTargetRegistry
	pipeline *writePipeline
	tracker  *OnlineStateTracker

	watch WatchStream
	write WriteStream

	networkEnabled bool
}

// NewRemoteStore wires a coordinator against its three external
// collaborators: the sync engine, the local store and the
// datastore/transport.
func NewRemoteStore(logger *zap.SugaredLogger, datastore Datastore, localStore LocalStore, syncEngine SyncEngine) *RemoteStore {
	w := newWorker()
	rs := &RemoteStore{
		w:          w,
		logger:     logger,
		datastore:  datastore,
		localStore: localStore,
		syncEngine: syncEngine,
		registry:   NewListenTargetRegistry(),
		pipeline:   newWritePipeline(),
	}
	rs.tracker = NewOnlineStateTracker(w, logger, syncEngine.HandleOnlineStateChange)

	rs.watch = newWatchStream(
		w, logger,
		datastore.DialWatch,
		rs,
		rs.registry,
		rs.tracker,
		rs.lastRemoteSnapshotVersion,
		rs.onTargetTombstoned,
		rs.remoteKeysForTarget,
		rs.shouldStartWatch,
	)
	rs.write = newWriteStream(
		w, logger,
		datastore.DialWrite,
		rs,
		rs.pipeline,
		datastore.IsPermanentError,
		datastore.IsPermanentWriteError,
		rs.clearPersistedStreamToken,
		datastore.InhibitWriteBackoff,
		rs.shouldStartWrite,
	)
	return rs
}

func (rs *RemoteStore) clearPersistedStreamToken() {
	if err := rs.localStore.SetLastStreamToken(context.Background(), nil); err != nil {
		rs.logger.Warnw("Failed to clear persisted stream token", "error", err)
	}
}

// ---- WatchStreamDelegate ----

// OnWatchStreamOpen has nothing to do: watchStream itself re-sends every
// registered target's AddTarget request as part of opening.
func (rs *RemoteStore) OnWatchStreamOpen() {}

func (rs *RemoteStore) OnRemoteEvent(event RemoteEvent) {
	rs.syncEngine.ApplyRemoteEvent(event)
}

func (rs *RemoteStore) OnWatchStreamInterrupted(status Status) {
	// Per-target errors are surfaced through onTargetTombstoned, not here;
	// this callback exists for symmetry with WriteStreamDelegate and future
	// stream-level diagnostics.
}

func (rs *RemoteStore) onTargetTombstoned(id TargetID, err error) {
	rs.registry.Remove(id)
	rs.syncEngine.RejectListen(id, err)
}

func (rs *RemoteStore) remoteKeysForTarget(id TargetID) map[DocumentKey]struct{} {
	return rs.syncEngine.RemoteKeysForTarget(id)
}

func (rs *RemoteStore) lastRemoteSnapshotVersion() SnapshotVersion {
	v, err := rs.localStore.LastRemoteSnapshotVersion(context.Background())
	if err != nil {
		rs.logger.Warnw("Failed to read last remote snapshot version, admitting snapshot", "error", err)
		return NoSnapshotVersion
	}
	return v
}

// ---- WriteStreamDelegate ----

func (rs *RemoteStore) OnWriteStreamOpen() {}

func (rs *RemoteStore) OnHandshakeComplete() {
	if err := rs.localStore.SetLastStreamToken(context.Background(), rs.write.GetLastStreamToken()); err != nil {
		rs.logger.Warnw("Failed to persist stream token", "error", err)
	}
}

func (rs *RemoteStore) OnMutationResult(batch MutationBatch, commitVersion SnapshotVersion, results []MutationResult) {
	rs.syncEngine.ApplySuccessfulWrite(BatchResult{
		Batch:         batch,
		CommitVersion: commitVersion,
		Results:       results,
		StreamToken:   rs.write.GetLastStreamToken(),
	})
	rs.fillWritePipeline()
}

func (rs *RemoteStore) OnWriteBatchRejected(batchID int64, err error) {
	rs.syncEngine.RejectFailedWrite(batchID, err)
	rs.fillWritePipeline()
}

func (rs *RemoteStore) OnWriteStreamInterrupted(status Status) {}

// ---- Public API ----

// Start is equivalent to EnableNetwork.
func (rs *RemoteStore) Start() {
	rs.EnableNetwork()
}

// EnableNetwork turns networking on: loads the persisted stream token,
// starts the watch stream if warranted, and tops up the write pipeline.
func (rs *RemoteStore) EnableNetwork() {
	rs.w.sync(func() {
		rs.networkEnabled = true
		rs.pipeline.setNetworkEnabled(true)

		if token, err := rs.localStore.LastStreamToken(context.Background()); err == nil {
			rs.write.SetLastStreamToken(token)
		} else {
			rs.logger.Warnw("Failed to load last stream token", "error", err)
		}

		if rs.shouldStartWatch() {
			rs.watch.Start()
		} else {
			rs.tracker.UpdateState(OnlineStateUnknown)
		}

		rs.fillWritePipelineLocked()
	})
}

// DisableNetwork turns networking off: stops both streams, clears the
// write pipeline (writes stay durable in the local store) and reports
// Offline.
func (rs *RemoteStore) DisableNetwork() {
	rs.w.sync(func() {
		rs.networkEnabled = false
		rs.pipeline.setNetworkEnabled(false)
		rs.watch.Stop()
		rs.write.Stop()
		rs.pipeline.Clear()
		rs.tracker.UpdateState(OnlineStateOffline)
	})
}

// Shutdown behaves like DisableNetwork but reports Unknown (to avoid firing
// spurious listener events) and tears down the datastore.
func (rs *RemoteStore) Shutdown() {
	rs.w.sync(func() {
		rs.networkEnabled = false
		rs.pipeline.setNetworkEnabled(false)
		rs.watch.Stop()
		rs.write.Stop()
		rs.pipeline.Clear()
		rs.tracker.UpdateState(OnlineStateUnknown)
	})
	if err := rs.datastore.Shutdown(); err != nil {
		rs.logger.Warnw("Datastore shutdown reported an error", "error", err)
	}
	rs.w.stop()
}

// CredentialDidChange tears down and re-enables networking to obtain a
// fresh auth token and refill from the new user's mutation queue, iff the
// network is currently enabled.
func (rs *RemoteStore) CredentialDidChange() {
	var wasEnabled bool
	rs.w.sync(func() {
		wasEnabled = rs.networkEnabled
		if !wasEnabled {
			return
		}
		rs.networkEnabled = false
		rs.pipeline.setNetworkEnabled(false)
		rs.watch.Stop()
		rs.write.Stop()
		rs.pipeline.Clear()
		rs.tracker.UpdateState(OnlineStateUnknown)
	})
	if wasEnabled {
		rs.EnableNetwork()
	}
}

// Listen registers qd and nudges the watch stream.
func (rs *RemoteStore) Listen(qd QueryData) {
	rs.w.sync(func() {
		rs.registry.Listen(qd)
		if rs.shouldStartWatch() {
			rs.watch.Start()
		}
	})
}

// Unlisten removes id and, if the registry is now empty, lets the watch
// stream go idle.
func (rs *RemoteStore) Unlisten(id TargetID) {
	rs.w.sync(func() {
		rs.registry.Unlisten(id)
		if rs.registry.Empty() && rs.watch.IsStarted() {
			rs.watch.MarkIdle()
		}
	})
}

// FillWritePipeline asks the local store for more queued batches until the
// pipeline is full or there is nothing left to send, then starts the write
// stream if warranted.
func (rs *RemoteStore) FillWritePipeline() {
	rs.w.sync(rs.fillWritePipelineLocked)
}

// fillWritePipeline is the delegate-callback-safe variant: it is always
// invoked from inside a job already running on the worker, so it must not
// call w.sync (that would deadlock against the very job it's running in).
func (rs *RemoteStore) fillWritePipeline() {
	rs.fillWritePipelineLocked()
}

func (rs *RemoteStore) fillWritePipelineLocked() {
	for rs.pipeline.CanAdd() {
		batch, err := rs.localStore.NextMutationBatchAfter(context.Background(), rs.pipeline.LastBatchID())
		if err != nil {
			rs.logger.Warnw("Failed to fetch next mutation batch", "error", err)
			break
		}
		if batch == nil {
			break
		}
		rs.pipeline.Enqueue(*batch)
		if rs.write.HandshakeComplete() {
			rs.write.WriteMutations(*batch)
		}
	}

	if rs.pipeline.Empty() && rs.write.IsStarted() {
		rs.write.MarkIdle()
	}

	if rs.shouldStartWrite() {
		rs.write.Start()
	}
}

// Transaction returns a one-shot transaction object bound to the datastore
// (pure passthrough).
func (rs *RemoteStore) Transaction(ctx context.Context) (Transaction, error) {
	return rs.datastore.NewTransaction(ctx)
}

// ---- ShouldStart predicates ----

func (rs *RemoteStore) shouldStartWatch() bool {
	return rs.networkEnabled && !rs.watch.IsStarted() && !rs.registry.Empty()
}

func (rs *RemoteStore) shouldStartWrite() bool {
	return rs.networkEnabled && !rs.write.IsStarted() && !rs.pipeline.Empty()
}

// OnlineState exposes the tracker's current state for diagnostics/tests.
func (rs *RemoteStore) OnlineState() OnlineState {
	var state OnlineState
	rs.w.sync(func() { state = rs.tracker.State() })
	return state
}
