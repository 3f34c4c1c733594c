package remotestore

import "context"

// SyncEngine is the consumer-side contract of the Remote Store.
// The sync engine receives remote events and write outcomes, and answers
// remote-key queries the WatchChangeAggregator needs for existence-filter
// reconciliation. Implemented by the caller; docsync never assumes a
// concrete sync-engine implementation.
type SyncEngine interface {
	ApplyRemoteEvent(event RemoteEvent)
	RejectListen(target TargetID, err error)
	ApplySuccessfulWrite(result BatchResult)
	RejectFailedWrite(batchID int64, err error)
	HandleOnlineStateChange(state OnlineState)

	// RemoteKeysForTarget returns the document keys the sync engine
	// currently believes belong to target, for existence-filter comparison.
	RemoteKeysForTarget(target TargetID) map[DocumentKey]struct{}
}

// LocalStore is the durable mutation queue and resume-metadata dependency.
// A SQLite-backed implementation lives in remotestore/localstore.
type LocalStore interface {
	// NextMutationBatchAfter returns the first batch with BatchID > after,
	// or nil if none is queued.
	NextMutationBatchAfter(ctx context.Context, after int64) (*MutationBatch, error)

	LastStreamToken(ctx context.Context) ([]byte, error)
	SetLastStreamToken(ctx context.Context, token []byte) error

	LastRemoteSnapshotVersion(ctx context.Context) (SnapshotVersion, error)
}

// Datastore is the transport dependency: dials fresh connections
// on demand, classifies errors, and provides a transaction handle. It never
// sees registries or delegates: RemoteStore owns the watchStream/writeStream
// FSMs and only borrows a dialer from the Datastore. A gRPC implementation
// lives in remotestore/transport/grpcstream.
type Datastore interface {
	Start(ctx context.Context) error
	Shutdown() error

	DialWatch(ctx context.Context) (WatchConnection, error)
	DialWrite(ctx context.Context) (WriteConnection, error)

	IsPermanentError(status Status) bool
	IsPermanentWriteError(status Status) bool

	// InhibitWriteBackoff resets the write-stream reconnect backoff to its
	// minimum, for the case where a batch rejection means the client should
	// try the next batch immediately rather than wait out the current delay.
	InhibitWriteBackoff()

	// NewTransaction returns a one-shot transaction object bound to the
	// datastore. RemoteStore.Transaction is a pure passthrough to this.
	NewTransaction(ctx context.Context) (Transaction, error)
}

// Transaction is an opaque, datastore-bound transaction handle. Its
// semantics (reads, commits, retries) are out of this package's scope —
// RemoteStore only brokers access to it.
type Transaction interface{}

// WatchStreamDelegate receives callbacks from a WatchStream. RemoteStore
// implements this; the WatchStream never reaches past the delegate.
type WatchStreamDelegate interface {
	OnWatchStreamOpen()
	OnRemoteEvent(event RemoteEvent)
	OnWatchStreamInterrupted(status Status)
}

// WriteStreamDelegate receives callbacks from a WriteStream.
type WriteStreamDelegate interface {
	OnWriteStreamOpen()
	OnHandshakeComplete()
	OnMutationResult(batch MutationBatch, commitVersion SnapshotVersion, results []MutationResult)
	OnWriteBatchRejected(batchID int64, err error)
	OnWriteStreamInterrupted(status Status)
}

// WatchStream is the network-facing state machine. The concrete
// implementation lives in watch_stream.go; NewRemoteStore constructs one
// bound to the Datastore's watch dialer.
type WatchStream interface {
	Start()
	Stop()
	IsStarted() bool
	IsOpen() bool
	MarkIdle()
}

// WriteStream is the network-facing state machine's write-side analog.
type WriteStream interface {
	Start()
	Stop()
	IsStarted() bool
	IsOpen() bool
	MarkIdle()

	WriteHandshake()
	WriteMutations(batch MutationBatch)
	HandshakeComplete() bool
	GetLastStreamToken() []byte
	SetLastStreamToken(token []byte)
	InhibitBackoff()
}

// WatchConnection is the minimal duplex-stream primitive a WatchStream
// needs from the network. Concrete transports (remotestore/transport/grpcstream)
// implement this by wrapping a real gRPC stream; tests use an in-memory fake.
// Recv blocks until a frame arrives, the stream ends (io.EOF-like via a
// non-OK Status in the returned error) or the connection is closed.
type WatchConnection interface {
	Send(req WatchRequest) error
	Recv() (WatchFrame, error)
	Close() error
}

// WriteConnection is the write-stream analog of WatchConnection.
type WriteConnection interface {
	Send(req WriteRequest) error
	Recv() (WriteFrame, error)
	Close() error
}

// WatchRequest is what the WatchStream sends: either an add or a removal of
// one target.
type WatchRequest struct {
	AddTarget    *QueryData
	RemoveTarget *TargetID
}

// WatchFrame is one inbound frame on the watch connection: a WatchChange,
// or a terminal status (OK for a graceful close, non-OK for an error).
type WatchFrame struct {
	Change WatchChange // nil for a terminal frame
	Done   bool
	Status Status
}

// WriteRequest is what the WriteStream sends: a handshake request (first)
// or a mutation batch.
type WriteRequest struct {
	Handshake   bool
	StreamToken []byte
	Batch       *MutationBatch
}

// WriteFrame is one inbound frame on the write connection.
type WriteFrame struct {
	HandshakeAck bool
	StreamToken  []byte

	CommitVersion SnapshotVersion
	Results       []MutationResult

	Done   bool
	Status Status
}
