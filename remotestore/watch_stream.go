package remotestore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type watchStreamState int

const (
	watchNotStarted watchStreamState = iota
	watchStarting
	watchOpen
	watchStopped
)

// watchStreamDialer opens a fresh network connection for one watch-stream
// attempt. Supplied by the Datastore implementation.
type watchStreamDialer func(ctx context.Context) (WatchConnection, error)

// watchStream is the concrete WatchStream state machine:
// NotStarted → Starting → Open → Stopped, with Open → Stopped on any
// interruption.
type watchStream struct {
	w      *worker
	logger *zap.SugaredLogger

	dial     watchStreamDialer
	delegate WatchStreamDelegate
	registry *ListenTargetRegistry
	tracker  *OnlineStateTracker

	lastRemoteSnapshotVersion func() SnapshotVersion

	onTargetError onTargetError
	remoteKeys    remoteKeysForTarget

	state      watchStreamState
	aggregator WatchChangeAggregator
	conn       WatchConnection
	cancel     context.CancelFunc

	shouldStart func() bool

	generation int // invalidates stale callbacks from a superseded attempt
}

func newWatchStream(
	w *worker,
	logger *zap.SugaredLogger,
	dial watchStreamDialer,
	delegate WatchStreamDelegate,
	registry *ListenTargetRegistry,
	tracker *OnlineStateTracker,
	lastRemoteSnapshotVersion func() SnapshotVersion,
	onTargetError onTargetError,
	remoteKeys remoteKeysForTarget,
	shouldStart func() bool,
) *watchStream {
	return &watchStream{
		w:                         w,
		logger:                    logger,
		dial:                      dial,
		delegate:                  delegate,
		registry:                  registry,
		tracker:                   tracker,
		lastRemoteSnapshotVersion: lastRemoteSnapshotVersion,
		onTargetError:             onTargetError,
		remoteKeys:                remoteKeys,
		state:                     watchNotStarted,
		shouldStart:               shouldStart,
	}
}

func (s *watchStream) IsStarted() bool {
	return s.state != watchNotStarted && s.state != watchStopped
}

func (s *watchStream) IsOpen() bool {
	return s.state == watchOpen
}

// Start enters Starting: allocates a fresh aggregator, tells the online
// tracker a stream attempt has begun, and kicks off the dial.
func (s *watchStream) Start() {
	if s.IsStarted() {
		return
	}
	s.state = watchStarting
	s.generation++
	gen := s.generation
	s.aggregator = NewWatchChangeAggregator(s.onTargetError, s.remoteKeys)
	s.tracker.HandleWatchStreamStart()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.attempt(ctx, gen)
}

func (s *watchStream) attempt(ctx context.Context, gen int) {
	conn, err := s.dial(ctx)
	if err != nil {
		s.w.enqueue(func() {
			s.onInterruption(gen, StatusFromError(err))
		})
		return
	}
	s.w.enqueue(func() {
		s.onOpen(gen, conn)
	})
	s.readLoop(ctx, gen, conn)
}

func (s *watchStream) onOpen(gen int, conn WatchConnection) {
	if gen != s.generation || s.state != watchStarting {
		_ = conn.Close()
		return
	}
	s.state = watchOpen
	s.conn = conn
	s.delegate.OnWatchStreamOpen()

	for _, qd := range s.registry.All() {
		qd := qd
		if err := conn.Send(WatchRequest{AddTarget: &qd}); err != nil {
			s.onInterruption(gen, StatusFromError(err))
			return
		}
		s.aggregator.RecordPendingTargetRequest(qd.TargetID)
	}
}

func (s *watchStream) readLoop(ctx context.Context, gen int, conn WatchConnection) {
	for {
		frame, err := conn.Recv()
		if err != nil {
			s.w.enqueue(func() { s.onInterruption(gen, StatusFromError(err)) })
			return
		}
		s.w.enqueue(func() { s.onFrame(gen, frame) })
		if frame.Done {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *watchStream) onFrame(gen int, frame WatchFrame) {
	if gen != s.generation || s.state != watchOpen {
		return
	}
	if frame.Done {
		s.onInterruption(gen, frame.Status)
		return
	}

	s.tracker.UpdateState(OnlineStateOnline)

	switch change := frame.Change.(type) {
	case TargetChange:
		s.aggregator.HandleTargetChange(change)
		if change.SnapshotVersion != NoSnapshotVersion && change.SnapshotVersion >= s.lastRemoteSnapshotVersion() {
			s.deliverSnapshot(change.SnapshotVersion)
		}
	case DocumentChange:
		s.aggregator.HandleDocumentChange(change)
	case ExistenceFilter:
		s.aggregator.HandleExistenceFilter(change)
	default:
		// Unreachable for a well-formed frame; ignore rather than assert,
		// since an unknown frame kind is a forward-compatible wire
		// extension, not a programming error.
	}
}

func (s *watchStream) deliverSnapshot(version SnapshotVersion) {
	event := s.aggregator.CreateRemoteEvent(version)

	for id := range event.TargetChanges {
		cs := event.TargetChanges[id]
		if len(cs.ResumeToken) > 0 {
			s.registry.UpdateFromRemoteEvent(id, version, cs.ResumeToken)
		}
	}

	// Existence-filter recovery must run before the event reaches the
	// delegate: it mutates the registry and sends unwatch/re-watch requests
	// that the next frame will be racing against.
	s.recoverExistenceFilterMismatches(event.TargetMismatches)

	s.delegate.OnRemoteEvent(event)
}

// recoverExistenceFilterMismatches implements the recovery recipe:
// for each mismatched target still registered, clear its resume token,
// unwatch, then re-watch with a transient QueryData carrying purpose
// ExistenceFilterMismatch (never persisted to the registry).
func (s *watchStream) recoverExistenceFilterMismatches(mismatches map[TargetID]struct{}) {
	if len(mismatches) == 0 || s.conn == nil {
		return
	}
	for id := range mismatches {
		cleared, ok := s.registry.ClearResumeTokenForMismatch(id)
		if !ok {
			continue
		}
		s.aggregator.RemoveTarget(id)

		idCopy := id
		if err := s.conn.Send(WatchRequest{RemoveTarget: &idCopy}); err != nil {
			s.onInterruption(s.generation, StatusFromError(err))
			return
		}

		transient := cleared
		transient.Purpose = PurposeExistenceFilterMismatch
		transient.ResumeToken = nil
		if err := s.conn.Send(WatchRequest{AddTarget: &transient}); err != nil {
			s.onInterruption(s.generation, StatusFromError(err))
			return
		}
		s.aggregator.RecordPendingTargetRequest(id)
	}
}

// onInterruption handles any stream termination: dial failure, read error,
// or a graceful close. A graceful close (OK status) must only occur when
// ShouldStart no longer holds; violating that is a programming error.
func (s *watchStream) onInterruption(gen int, status Status) {
	if gen != s.generation {
		return
	}
	if s.state == watchStopped || s.state == watchNotStarted {
		return
	}

	if status.OK && s.shouldStart() {
		panic(fmt.Sprintf("remotestore: watch stream closed gracefully while ShouldStart still holds"))
	}

	s.aggregator = nil
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = watchStopped

	s.delegate.OnWatchStreamInterrupted(status)

	if s.shouldStart() {
		if !status.OK {
			s.tracker.HandleWatchStreamFailure(status)
		}
		s.Start()
	} else {
		s.tracker.UpdateState(OnlineStateUnknown)
	}
}

// Stop requests an idempotent shutdown, delivering exactly one OK-status
// interruption (or none, if already stopped).
func (s *watchStream) Stop() {
	if s.state == watchStopped || s.state == watchNotStarted {
		s.state = watchNotStarted
		return
	}
	gen := s.generation
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.aggregator = nil
	s.state = watchStopped
	s.delegate.OnWatchStreamInterrupted(StatusOK)
	_ = gen
}

// MarkIdle closes the stream, reporting an OK interruption — used when the
// registry has emptied out from under an open stream. The coordinator's
// Unlisten calls it once it observes the registry is empty. It stops
// immediately: there is no idle-grace period.
func (s *watchStream) MarkIdle() {
	s.Stop()
}
