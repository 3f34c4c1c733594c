package remotestore

import (
	"context"

	"go.uber.org/zap"
)

type writeStreamState int

const (
	writeNotStarted writeStreamState = iota
	writeStarting
	writeOpen
	writeHandshaking
	writeReady
	writeStopped
)

type writeStreamDialer func(ctx context.Context) (WriteConnection, error)

// writeStream is the concrete WriteStream state machine:
// NotStarted → Starting → Open → Handshaking → Ready → Stopped.
type writeStream struct {
	w      *worker
	logger *zap.SugaredLogger

	dial     writeStreamDialer
	delegate WriteStreamDelegate
	pipeline *writePipeline

	isPermanentError      func(Status) bool
	isPermanentWriteError func(Status) bool
	clearPersistedToken   func()
	inhibitBackoff        func()

	shouldStart func() bool

	state       writeStreamState
	conn        WriteConnection
	cancel      context.CancelFunc
	generation  int
	streamToken []byte
}

func newWriteStream(
	w *worker,
	logger *zap.SugaredLogger,
	dial writeStreamDialer,
	delegate WriteStreamDelegate,
	pipeline *writePipeline,
	isPermanentError, isPermanentWriteError func(Status) bool,
	clearPersistedToken func(),
	inhibitBackoff func(),
	shouldStart func() bool,
) *writeStream {
	return &writeStream{
		w:                     w,
		logger:                logger,
		dial:                  dial,
		delegate:              delegate,
		pipeline:              pipeline,
		isPermanentError:      isPermanentError,
		isPermanentWriteError: isPermanentWriteError,
		clearPersistedToken:   clearPersistedToken,
		inhibitBackoff:        inhibitBackoff,
		shouldStart:           shouldStart,
		state:                 writeNotStarted,
	}
}

func (s *writeStream) IsStarted() bool {
	return s.state != writeNotStarted && s.state != writeStopped
}

func (s *writeStream) IsOpen() bool {
	return s.state == writeOpen || s.state == writeHandshaking || s.state == writeReady
}

func (s *writeStream) HandshakeComplete() bool {
	return s.state == writeReady
}

func (s *writeStream) GetLastStreamToken() []byte {
	return s.streamToken
}

func (s *writeStream) SetLastStreamToken(token []byte) {
	s.streamToken = token
}

func (s *writeStream) InhibitBackoff() {
	if s.inhibitBackoff != nil {
		s.inhibitBackoff()
	}
}

func (s *writeStream) Start() {
	if s.IsStarted() {
		return
	}
	s.state = writeStarting
	s.generation++
	gen := s.generation

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.attempt(ctx, gen)
}

func (s *writeStream) attempt(ctx context.Context, gen int) {
	conn, err := s.dial(ctx)
	if err != nil {
		s.w.enqueue(func() { s.onInterruption(gen, StatusFromError(err)) })
		return
	}
	s.w.enqueue(func() { s.onOpen(gen, conn) })
	s.readLoop(ctx, gen, conn)
}

// onOpen enters Open, immediately transitions to Handshaking by sending the
// handshake request carrying the persisted LastStreamToken.
func (s *writeStream) onOpen(gen int, conn WriteConnection) {
	if gen != s.generation || s.state != writeStarting {
		_ = conn.Close()
		return
	}
	s.state = writeOpen
	s.conn = conn
	s.delegate.OnWriteStreamOpen()

	s.state = writeHandshaking
	if err := conn.Send(WriteRequest{Handshake: true, StreamToken: s.streamToken}); err != nil {
		s.onInterruption(gen, StatusFromError(err))
	}
}

func (s *writeStream) readLoop(ctx context.Context, gen int, conn WriteConnection) {
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

func (s *writeStream) onFrame(gen int, frame WriteFrame) {
	if gen != s.generation {
		return
	}
	if frame.Done {
		s.onInterruption(gen, frame.Status)
		return
	}

	switch {
	case frame.HandshakeAck:
		s.onHandshakeComplete(frame.StreamToken)
	default:
		s.onMutationResponse(frame.CommitVersion, frame.Results)
	}
}

// onHandshakeComplete persists the returned stream token and re-transmits
// every still-unacked pipelined batch in order.
func (s *writeStream) onHandshakeComplete(token []byte) {
	if s.state != writeHandshaking {
		return
	}
	s.streamToken = token
	s.state = writeReady
	s.delegate.OnHandshakeComplete()

	for _, batch := range s.pipeline.All() {
		s.sendBatch(batch)
	}
}

// WriteHandshake is exposed for callers that want to force a
// (re)handshake explicitly; in normal operation onOpen drives this.
func (s *writeStream) WriteHandshake() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Send(WriteRequest{Handshake: true, StreamToken: s.streamToken})
}

// WriteMutations sends batch if the stream is ready; used by FillWritePipeline
// once the pipeline has grown. If the stream is not yet ready, the batch
// will be sent once the handshake completes, via onHandshakeComplete above.
func (s *writeStream) WriteMutations(batch MutationBatch) {
	if !s.HandshakeComplete() {
		return
	}
	s.sendBatch(batch)
}

func (s *writeStream) sendBatch(batch MutationBatch) {
	if s.conn == nil {
		return
	}
	b := batch
	if err := s.conn.Send(WriteRequest{Batch: &b}); err != nil {
		s.onInterruption(s.generation, StatusFromError(err))
	}
}

func (s *writeStream) onMutationResponse(commitVersion SnapshotVersion, results []MutationResult) {
	if !s.HandshakeComplete() {
		return
	}
	batch, ok := s.pipeline.PopFirst()
	if !ok {
		return
	}
	s.delegate.OnMutationResult(batch, commitVersion, results)
}

func (s *writeStream) onInterruption(gen int, status Status) {
	if gen != s.generation {
		return
	}
	if s.state == writeStopped || s.state == writeNotStarted {
		return
	}

	if status.OK {
		if s.shouldStart() {
			panic("remotestore: write stream closed gracefully while ShouldStart still holds")
		}
		s.teardown()
		return
	}

	handshakeComplete := s.HandshakeComplete()
	s.teardown()

	if !s.pipeline.Empty() {
		if handshakeComplete {
			s.classifyWriteError(status)
		} else {
			s.classifyHandshakeError(status)
		}
	}

	s.delegate.OnWriteStreamInterrupted(status)

	if s.shouldStart() {
		s.Start()
	}
}

func (s *writeStream) teardown() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = writeStopped
}

// classifyHandshakeError implements the handshake-error branch.
func (s *writeStream) classifyHandshakeError(status Status) {
	if s.isPermanentError(status) {
		s.streamToken = nil
		if s.clearPersistedToken != nil {
			s.clearPersistedToken()
		}
	}
	// Transient: do nothing, exponential backoff applies on restart.
}

// classifyWriteError implements the write-error branch.
func (s *writeStream) classifyWriteError(status Status) {
	if !s.isPermanentWriteError(status) {
		// Transient: leave pipeline intact, exponential backoff applies.
		return
	}
	batch, ok := s.pipeline.PopFirst()
	if !ok {
		return
	}
	// Reset the backoff before notifying the delegate: OnWriteBatchRejected
	// triggers a pipeline refill that may restart the stream immediately,
	// and that restart must not race the dial against a stale backoff delay.
	s.InhibitBackoff()
	s.delegate.OnWriteBatchRejected(batch.BatchID, status.Err)
}

func (s *writeStream) Stop() {
	if s.state == writeStopped || s.state == writeNotStarted {
		s.state = writeNotStarted
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.teardown()
	s.delegate.OnWriteStreamInterrupted(StatusOK)
}

// MarkIdle closes the stream, reporting an OK interruption. As with
// watchStream.MarkIdle, it stops immediately: there is no idle-grace period.
func (s *writeStream) MarkIdle() {
	s.Stop()
}
