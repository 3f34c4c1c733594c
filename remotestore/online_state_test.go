package remotestore

import "testing"

func TestOnlineStateTracker_FailureTransitionsToOffline(t *testing.T) {
	w := newWorker()
	defer w.stop()

	var seen []OnlineState
	tracker := NewOnlineStateTracker(w, testLogger(), func(s OnlineState) { seen = append(seen, s) })

	if tracker.State() != OnlineStateUnknown {
		t.Fatalf("expected a fresh tracker to start Unknown, got %v", tracker.State())
	}

	tracker.HandleWatchStreamFailure(StatusFromError(errString("boom")))
	if tracker.State() != OnlineStateOffline {
		t.Fatalf("expected one failure to be enough to go Offline (MaxWatchStreamFailures=%d), got %v", MaxWatchStreamFailures, tracker.State())
	}
	if len(seen) != 1 || seen[0] != OnlineStateOffline {
		t.Fatalf("expected handler to be called once with Offline, got %v", seen)
	}
}

func TestOnlineStateTracker_UpdateStateToOnlineResetsFailures(t *testing.T) {
	w := newWorker()
	defer w.stop()

	var seen []OnlineState
	tracker := NewOnlineStateTracker(w, testLogger(), func(s OnlineState) { seen = append(seen, s) })

	tracker.HandleWatchStreamFailure(StatusFromError(errString("boom")))
	tracker.UpdateState(OnlineStateOnline)

	if tracker.State() != OnlineStateOnline {
		t.Fatalf("expected state Online, got %v", tracker.State())
	}
	if len(seen) != 2 || seen[1] != OnlineStateOnline {
		t.Fatalf("expected handler calls [Offline, Online], got %v", seen)
	}

	// A single subsequent failure must again be enough to go Offline after
	// the Online transition.
	tracker.HandleWatchStreamFailure(StatusFromError(errString("boom again")))
	if tracker.State() != OnlineStateOffline {
		t.Fatalf("expected renewed failure to flip back to Offline, got %v", tracker.State())
	}
}

func TestOnlineStateTracker_UpdateStateIsNoOpWhenUnchanged(t *testing.T) {
	w := newWorker()
	defer w.stop()

	calls := 0
	tracker := NewOnlineStateTracker(w, testLogger(), func(OnlineState) { calls++ })

	tracker.UpdateState(OnlineStateUnknown)
	if calls != 0 {
		t.Fatalf("expected no handler call for a state that didn't change, got %d calls", calls)
	}
}

func TestOnlineStateTracker_HandleWatchStreamStartArmsAndCancelsTimer(t *testing.T) {
	w := newWorker()
	defer w.stop()

	tracker := NewOnlineStateTracker(w, testLogger(), func(OnlineState) {})
	tracker.HandleWatchStreamStart()
	if tracker.timer == nil {
		t.Fatalf("expected HandleWatchStreamStart to arm a debounce timer")
	}

	// Transitioning straight to Online must cancel the pending timer rather
	// than leaving it to fire later and clobber the state.
	tracker.UpdateState(OnlineStateOnline)
	if tracker.timer != nil {
		t.Fatalf("expected UpdateState(Online) to cancel the debounce timer")
	}
}
