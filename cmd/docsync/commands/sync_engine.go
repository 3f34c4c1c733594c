package commands

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/docsync/logger"
	"github.com/teranos/docsync/remotestore"
	"github.com/teranos/docsync/remotestore/localstore"
)

// demoSyncEngine is a minimal remotestore.SyncEngine for the docsync demo
// daemon: it logs every callback and keeps just enough in-memory state
// (remote keys per target, for existence-filter comparison) to drive the
// coordinator through a real session. A production sync engine would
// instead apply events to a local document cache.
type demoSyncEngine struct {
	log   *zap.SugaredLogger
	store *localstore.Store

	mu         sync.Mutex
	remoteKeys map[remotestore.TargetID]map[remotestore.DocumentKey]struct{}
}

func newDemoSyncEngine(log *zap.SugaredLogger, store *localstore.Store) *demoSyncEngine {
	return &demoSyncEngine{
		log:        log,
		store:      store,
		remoteKeys: make(map[remotestore.TargetID]map[remotestore.DocumentKey]struct{}),
	}
}

var _ remotestore.SyncEngine = (*demoSyncEngine)(nil)

func (e *demoSyncEngine) ApplyRemoteEvent(event remotestore.RemoteEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for target, change := range event.TargetChanges {
		keys := e.remoteKeys[target]
		if keys == nil {
			keys = make(map[remotestore.DocumentKey]struct{})
			e.remoteKeys[target] = keys
		}
		for _, k := range change.ChangedDocs {
			keys[k] = struct{}{}
		}
		for _, k := range change.RemovedDocs {
			delete(keys, k)
		}
	}

	if err := e.store.SetLastRemoteSnapshotVersion(context.Background(), event.SnapshotVersion); err != nil {
		e.log.Warnw("failed to persist remote snapshot version", "error", err)
	}

	logger.WatchInfow("applied remote event",
		"snapshot_version", event.SnapshotVersion,
		"targets", len(event.TargetChanges),
		"mismatches", len(event.TargetMismatches),
	)
}

func (e *demoSyncEngine) RejectListen(target remotestore.TargetID, err error) {
	e.mu.Lock()
	delete(e.remoteKeys, target)
	e.mu.Unlock()
	logger.WatchWarnw("listen rejected", "target", target, "error", err)
}

func (e *demoSyncEngine) ApplySuccessfulWrite(result remotestore.BatchResult) {
	if err := e.store.RemoveMutationBatch(context.Background(), result.Batch.BatchID); err != nil {
		e.log.Warnw("failed to remove committed mutation batch", "batch_id", result.Batch.BatchID, "error", err)
	}
	logger.WriteInfow("batch committed", "batch_id", result.Batch.BatchID, "commit_version", result.CommitVersion)
}

func (e *demoSyncEngine) RejectFailedWrite(batchID int64, err error) {
	logger.WriteWarnw("batch rejected", "batch_id", batchID, "error", err)
}

func (e *demoSyncEngine) HandleOnlineStateChange(state remotestore.OnlineState) {
	e.log.Infow("online state changed", "state", state.String())
}

func (e *demoSyncEngine) RemoteKeysForTarget(target remotestore.TargetID) map[remotestore.DocumentKey]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := e.remoteKeys[target]
	if keys == nil {
		return nil
	}
	out := make(map[remotestore.DocumentKey]struct{}, len(keys))
	for k := range keys {
		out[k] = struct{}{}
	}
	return out
}
