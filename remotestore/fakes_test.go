package remotestore

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// fakeConn is a scriptable in-memory WatchConnection/WriteConnection. Frames
// queued with push are handed back by Recv in order; Recv blocks until one
// is available or the connection is closed.
type fakeConn struct {
	mu      sync.Mutex
	frames  chan any
	sent    []any
	closed  bool
	dialErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan any, 64)}
}

func (c *fakeConn) pushWatch(f WatchFrame)  { c.frames <- f }
func (c *fakeConn) pushWrite(f WriteFrame)  { c.frames <- f }

func (c *fakeConn) Send(req any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.sent = append(c.sent, req)
	return nil
}

func (c *fakeConn) sentRequests() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) recv() (any, error) {
	f, ok := <-c.frames
	if !ok {
		return nil, errClosed
	}
	return f, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errClosed = errString("fakeConn: closed")

// fakeWatchConn/fakeWriteConn adapt fakeConn to the two narrow interfaces.
type fakeWatchConn struct{ *fakeConn }

func (c fakeWatchConn) Send(req WatchRequest) error { return c.fakeConn.Send(req) }
func (c fakeWatchConn) Recv() (WatchFrame, error) {
	v, err := c.fakeConn.recv()
	if err != nil {
		return WatchFrame{}, err
	}
	return v.(WatchFrame), nil
}

type fakeWriteConn struct{ *fakeConn }

func (c fakeWriteConn) Send(req WriteRequest) error { return c.fakeConn.Send(req) }
func (c fakeWriteConn) Recv() (WriteFrame, error) {
	v, err := c.fakeConn.recv()
	if err != nil {
		return WriteFrame{}, err
	}
	return v.(WriteFrame), nil
}

// fakeDatastore hands out pre-scripted connections (or a dial error) and
// delegates error classification to plain predicates.
type fakeDatastore struct {
	mu         sync.Mutex
	watchConns []*fakeConn
	writeConns []*fakeConn
	watchErr   error
	writeErr   error

	isPermanent      func(Status) bool
	isPermanentWrite func(Status) bool
}

func newFakeDatastore() *fakeDatastore {
	return &fakeDatastore{
		isPermanent:      func(Status) bool { return false },
		isPermanentWrite: func(Status) bool { return false },
	}
}

func (d *fakeDatastore) Start(ctx context.Context) error { return nil }
func (d *fakeDatastore) Shutdown() error                 { return nil }

func (d *fakeDatastore) queueWatchConn(c *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watchConns = append(d.watchConns, c)
}

func (d *fakeDatastore) queueWriteConn(c *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeConns = append(d.writeConns, c)
}

func (d *fakeDatastore) DialWatch(ctx context.Context) (WatchConnection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.watchErr != nil {
		return nil, d.watchErr
	}
	if len(d.watchConns) == 0 {
		return nil, errString("no watch connection queued")
	}
	c := d.watchConns[0]
	d.watchConns = d.watchConns[1:]
	return fakeWatchConn{c}, nil
}

func (d *fakeDatastore) DialWrite(ctx context.Context) (WriteConnection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeErr != nil {
		return nil, d.writeErr
	}
	if len(d.writeConns) == 0 {
		return nil, errString("no write connection queued")
	}
	c := d.writeConns[0]
	d.writeConns = d.writeConns[1:]
	return fakeWriteConn{c}, nil
}

func (d *fakeDatastore) IsPermanentError(s Status) bool      { return d.isPermanent(s) }
func (d *fakeDatastore) IsPermanentWriteError(s Status) bool { return d.isPermanentWrite(s) }
func (d *fakeDatastore) InhibitWriteBackoff()                {}

func (d *fakeDatastore) NewTransaction(ctx context.Context) (Transaction, error) {
	return struct{}{}, nil
}

// fakeSyncEngine records every callback it receives.
type fakeSyncEngine struct {
	mu sync.Mutex

	events        []RemoteEvent
	rejectedListens map[TargetID]error
	writes        []BatchResult
	rejectedWrites map[int64]error
	states        []OnlineState
	remoteKeys    map[TargetID]map[DocumentKey]struct{}
}

func newFakeSyncEngine() *fakeSyncEngine {
	return &fakeSyncEngine{
		rejectedListens: make(map[TargetID]error),
		rejectedWrites:  make(map[int64]error),
		remoteKeys:      make(map[TargetID]map[DocumentKey]struct{}),
	}
}

func (f *fakeSyncEngine) ApplyRemoteEvent(event RemoteEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSyncEngine) RejectListen(target TargetID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectedListens[target] = err
}

func (f *fakeSyncEngine) ApplySuccessfulWrite(result BatchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, result)
}

func (f *fakeSyncEngine) RejectFailedWrite(batchID int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectedWrites[batchID] = err
}

func (f *fakeSyncEngine) HandleOnlineStateChange(state OnlineState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeSyncEngine) RemoteKeysForTarget(target TargetID) map[DocumentKey]struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteKeys[target]
}

func (f *fakeSyncEngine) snapshotEvents() []RemoteEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RemoteEvent, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeSyncEngine) snapshotWrites() []BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]BatchResult, len(f.writes))
	copy(out, f.writes)
	return out
}

// fakeLocalStore is an in-memory LocalStore backed by a slice of queued
// batches and simple token/version fields.
type fakeLocalStore struct {
	mu      sync.Mutex
	batches []MutationBatch
	token   []byte
	version SnapshotVersion
}

func newFakeLocalStore(batches ...MutationBatch) *fakeLocalStore {
	return &fakeLocalStore{batches: batches}
}

func (l *fakeLocalStore) NextMutationBatchAfter(ctx context.Context, after int64) (*MutationBatch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.batches {
		if l.batches[i].BatchID > after {
			b := l.batches[i]
			return &b, nil
		}
	}
	return nil, nil
}

func (l *fakeLocalStore) LastStreamToken(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token, nil
}

func (l *fakeLocalStore) SetLastStreamToken(ctx context.Context, token []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.token = token
	return nil
}

func (l *fakeLocalStore) LastRemoteSnapshotVersion(ctx context.Context) (SnapshotVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version, nil
}
