// Package remotestore implements the client-side coordinator that mediates
// between a local mutation log / query cache and a remote document-sync
// backend over two long-lived duplex streams: a Watch stream for
// server-pushed target changes, and a Write stream for client-originated
// mutation batches.
//
// Everything in this package runs on a single logical worker (see worker.go)
// — the registry, the write pipeline, the online-state tracker and both
// stream state machines are touched only from that worker, by contract.
package remotestore

import "fmt"

// TargetID is the opaque, stable identity of a server-side subscription.
type TargetID int32

// SnapshotVersion is a monotone timestamp at which the server guarantees
// consistency across all targets folded into one RemoteEvent. The zero
// value means "no snapshot observed yet".
type SnapshotVersion int64

// NoSnapshotVersion is the sentinel for "no consistent snapshot yet".
const NoSnapshotVersion SnapshotVersion = 0

// DocumentKey is an opaque identifier for a synced document. The document
// contents and query language are out of this package's scope; DocumentKey
// is a stand-in sufficient to drive the coordinator's bookkeeping.
type DocumentKey string

// Query is an opaque, comparable description of what a target subscribes
// to. The real query planner/evaluator lives outside this package.
type Query struct {
	CollectionPath string
	Filter         string
}

func (q Query) String() string {
	if q.Filter == "" {
		return q.CollectionPath
	}
	return fmt.Sprintf("%s[%s]", q.CollectionPath, q.Filter)
}

// Purpose classifies why a target is being (re)watched. It affects only the
// wire request the WatchStream sends; only PurposeListen is ever persisted
// back into the ListenTargetRegistry.
type Purpose int

const (
	PurposeListen Purpose = iota
	PurposeExistenceFilterMismatch
	PurposeLimboResolution
)

func (p Purpose) String() string {
	switch p {
	case PurposeListen:
		return "listen"
	case PurposeExistenceFilterMismatch:
		return "existence-filter-mismatch"
	case PurposeLimboResolution:
		return "limbo-resolution"
	default:
		return "unknown"
	}
}

// QueryData is everything the client knows about one target.
type QueryData struct {
	Query           Query
	TargetID        TargetID
	SnapshotVersion SnapshotVersion
	ResumeToken     []byte
	SequenceNumber  int64
	Purpose         Purpose
}

// withResumeToken returns a copy with a new snapshot version/resume token,
// preserving sequence number and purpose — used by UpdateFromRemoteEvent.
func (q QueryData) withResumeToken(version SnapshotVersion, token []byte) QueryData {
	q.SnapshotVersion = version
	q.ResumeToken = token
	return q
}

// clearedForMismatch returns a copy suitable for persisting back into the
// registry after an existence-filter mismatch: resume token cleared,
// purpose forced back to Listen, sequence number preserved.
func (q QueryData) clearedForMismatch() QueryData {
	q.ResumeToken = nil
	q.Purpose = PurposeListen
	return q
}

// Mutation is a single opaque document mutation. The mutation's semantic
// content (set/patch/delete, field values) lives outside this package.
type Mutation struct {
	Key     DocumentKey
	Payload []byte
}

// MutationBatch is an ordered set of mutations with a strictly increasing
// BatchID. Batches leave the local store in BatchID order.
type MutationBatch struct {
	BatchID   int64
	Mutations []Mutation
}

// MutationResult reports the server's outcome for one mutation in a batch.
type MutationResult struct {
	Key        DocumentKey
	UpdateTime SnapshotVersion
}

// BatchResult is delivered to the sync engine when a batch commits.
type BatchResult struct {
	Batch         MutationBatch
	CommitVersion SnapshotVersion
	Results       []MutationResult
	StreamToken   []byte
}

// OnlineState is the observable connectivity signal derived purely from
// watch-stream health.
type OnlineState int

const (
	OnlineStateUnknown OnlineState = iota
	OnlineStateOnline
	OnlineStateOffline
)

func (s OnlineState) String() string {
	switch s {
	case OnlineStateOnline:
		return "online"
	case OnlineStateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Status is a transport-agnostic outcome. OK==true carries no error. The
// Datastore implementation decides, via IsPermanentError/IsPermanentWriteError,
// whether a non-OK status is retryable.
type Status struct {
	OK  bool
	Err error
}

// StatusOK is the canonical successful status (used for graceful closes).
var StatusOK = Status{OK: true}

// StatusFromError wraps a non-nil error into a failing Status.
func StatusFromError(err error) Status {
	if err == nil {
		return StatusOK
	}
	return Status{OK: false, Err: err}
}

func (s Status) String() string {
	if s.OK {
		return "ok"
	}
	return fmt.Sprintf("error: %v", s.Err)
}

// TargetChangeType is the tag of a TargetChange frame.
type TargetChangeType int

const (
	TargetChangeNoChange TargetChangeType = iota
	TargetChangeAdded
	TargetChangeRemoved
	TargetChangeCurrent
	TargetChangeReset
)

// WatchChange is the sum type `TargetChange | DocumentChange | ExistenceFilter`
// the watch stream dispatches on. Implementations are TargetChange,
// DocumentChange and ExistenceFilter below; callers type-switch on it.
type WatchChange interface {
	isWatchChange()
}

// TargetChange reports a state transition for one or more targets.
type TargetChange struct {
	Type            TargetChangeType
	TargetIDs       []TargetID
	ResumeToken     []byte
	SnapshotVersion SnapshotVersion // NoSnapshotVersion if this frame carries none
	Cause           Status
}

func (TargetChange) isWatchChange() {}

// DocumentChange reports a document add/modify/delete affecting a set of
// targets.
type DocumentChange struct {
	Key              DocumentKey
	Doc              any
	UpdatedTargetIDs []TargetID
	RemovedTargetIDs []TargetID
}

func (DocumentChange) isWatchChange() {}

// ExistenceFilter is the server's compact summary of one target's document
// count, used to detect a client/server divergence.
type ExistenceFilter struct {
	TargetID TargetID
	Count    int
}

func (ExistenceFilter) isWatchChange() {}

// TargetChangeSet is one target's slice of a RemoteEvent.
type TargetChangeSet struct {
	SnapshotVersion SnapshotVersion
	ResumeToken     []byte
	ChangedDocs     []DocumentKey
	RemovedDocs     []DocumentKey
	Current         bool
}

// RemoteEvent is the consistent snapshot the WatchChangeAggregator produces
// and the WatchStream delivers to the sync engine.
type RemoteEvent struct {
	SnapshotVersion  SnapshotVersion
	TargetChanges    map[TargetID]TargetChangeSet
	TargetMismatches map[TargetID]struct{}
	DocumentUpdates  map[DocumentKey]any
}
