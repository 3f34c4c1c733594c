package remotestore

import (
	"time"

	"go.uber.org/zap"
)

// MaxWatchStreamFailures is the number of consecutive watch-stream failures
// tolerated before the tracker gives up optimism and reports Offline.
const MaxWatchStreamFailures = 1

// OnlineStateDebounce is how long the tracker waits, after a watch stream
// starts, before declaring Offline if no frame has arrived yet.
const OnlineStateDebounce = 10 * time.Second

// onlineStateTimer is the minimal scheduling primitive the tracker needs —
// a single delayed, cancellable callback posted back onto the worker.
// scheduleOnWorker provides it on top of time.AfterFunc.
type onlineStateTimer interface {
	Cancel()
}

func scheduleOnWorker(w *worker, d time.Duration, fn func()) onlineStateTimer {
	t := time.AfterFunc(d, func() {
		w.enqueue(fn)
	})
	return cancelFunc(t.Stop)
}

type cancelFunc func() bool

func (c cancelFunc) Cancel() { c() }

// OnlineStateTracker is the only place that decides observable connectivity.
// Stream code reports events to it; it never writes OnlineState
// directly anywhere else.
type OnlineStateTracker struct {
	w       *worker
	logger  *zap.SugaredLogger
	handler func(OnlineState)

	state    OnlineState
	failures int
	timer    onlineStateTimer

	loggedOffline bool
}

// NewOnlineStateTracker creates a tracker that announces transitions to
// handler. handler is invoked synchronously on the worker goroutine.
func NewOnlineStateTracker(w *worker, logger *zap.SugaredLogger, handler func(OnlineState)) *OnlineStateTracker {
	return &OnlineStateTracker{
		w:       w,
		logger:  logger,
		handler: handler,
		state:   OnlineStateUnknown,
	}
}

// State returns the current online state. Must be called on the worker.
func (t *OnlineStateTracker) State() OnlineState {
	return t.state
}

// HandleWatchStreamStart resets the failure counter and arms the debounce
// timer; if still Unknown when it fires, transitions to Offline.
func (t *OnlineStateTracker) HandleWatchStreamStart() {
	t.failures = 0
	t.cancelTimer()
	t.timer = scheduleOnWorker(t.w, OnlineStateDebounce, t.onDebounceExpired)
}

func (t *OnlineStateTracker) onDebounceExpired() {
	if t.state == OnlineStateUnknown {
		if !t.loggedOffline {
			t.logger.Warn("Backend didn't respond within 10 seconds, client is offline")
			t.loggedOffline = true
		}
		t.setState(OnlineStateOffline)
	}
}

// HandleWatchStreamFailure increments the failure counter and, once the
// threshold is reached (1 on first attempt, then every
// MaxWatchStreamFailures), transitions to Offline. Subsequent failures
// re-log at warning-then-debug cadence rather than spamming warnings.
func (t *OnlineStateTracker) HandleWatchStreamFailure(status Status) {
	t.failures++
	if t.failures < MaxWatchStreamFailures {
		return
	}
	if !t.loggedOffline {
		t.logger.Warnw("Watch stream failed, client is offline", "error", status.Err, "failures", t.failures)
		t.loggedOffline = true
	} else {
		t.logger.Debugw("Watch stream failed again while offline", "error", status.Err, "failures", t.failures)
	}
	t.setState(OnlineStateOffline)
}

// UpdateState transitions to new, clearing failures/timer on a return to
// Online, and announces the change to the handler only if it actually
// changed.
func (t *OnlineStateTracker) UpdateState(newState OnlineState) {
	if newState == OnlineStateOnline {
		t.failures = 0
		t.loggedOffline = false
		t.cancelTimer()
	}
	t.setState(newState)
}

func (t *OnlineStateTracker) setState(newState OnlineState) {
	if newState == t.state {
		return
	}
	t.state = newState
	if t.handler != nil {
		t.handler(newState)
	}
}

func (t *OnlineStateTracker) cancelTimer() {
	if t.timer != nil {
		t.timer.Cancel()
		t.timer = nil
	}
}
