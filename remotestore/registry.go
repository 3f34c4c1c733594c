package remotestore

import (
	"fmt"
	"sort"
)

// ListenTargetRegistry is the source of truth for which targets the client
// currently wants (invariant: registry membership ⟺ "the
// client currently wants this target").
type ListenTargetRegistry struct {
	targets map[TargetID]QueryData
}

// NewListenTargetRegistry creates an empty registry.
func NewListenTargetRegistry() *ListenTargetRegistry {
	return &ListenTargetRegistry{targets: make(map[TargetID]QueryData)}
}

// Listen inserts qd. Panics if qd.TargetID is already registered — a
// programming error (assertion failures are fatal).
func (r *ListenTargetRegistry) Listen(qd QueryData) {
	if _, ok := r.targets[qd.TargetID]; ok {
		panic(fmt.Sprintf("remotestore: Listen called for already-registered target %d", qd.TargetID))
	}
	r.targets[qd.TargetID] = qd
}

// Unlisten removes id. Panics if id is not registered.
func (r *ListenTargetRegistry) Unlisten(id TargetID) {
	if _, ok := r.targets[id]; !ok {
		panic(fmt.Sprintf("remotestore: Unlisten called for unregistered target %d", id))
	}
	delete(r.targets, id)
}

// Remove drops id without asserting membership — used on target error,
// where the server may have already removed a target the client was in the
// middle of dropping.
func (r *ListenTargetRegistry) Remove(id TargetID) {
	delete(r.targets, id)
}

// Get returns the entry for id, if present.
func (r *ListenTargetRegistry) Get(id TargetID) (QueryData, bool) {
	qd, ok := r.targets[id]
	return qd, ok
}

// Contains reports whether id is currently registered.
func (r *ListenTargetRegistry) Contains(id TargetID) bool {
	_, ok := r.targets[id]
	return ok
}

// Len returns the number of registered targets.
func (r *ListenTargetRegistry) Len() int {
	return len(r.targets)
}

// Empty reports whether the registry has no targets.
func (r *ListenTargetRegistry) Empty() bool {
	return len(r.targets) == 0
}

// All returns every registered QueryData, ordered by TargetID so the order
// is stable across calls.
func (r *ListenTargetRegistry) All() []QueryData {
	out := make([]QueryData, 0, len(r.targets))
	for _, qd := range r.targets {
		out = append(out, qd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetID < out[j].TargetID })
	return out
}

// UpdateFromRemoteEvent replaces id's entry with one carrying a new
// snapshot version/resume token, iff id is still present and token is
// non-empty. Sequence number and purpose are preserved.
func (r *ListenTargetRegistry) UpdateFromRemoteEvent(id TargetID, version SnapshotVersion, token []byte) {
	if len(token) == 0 {
		return
	}
	qd, ok := r.targets[id]
	if !ok {
		return
	}
	r.targets[id] = qd.withResumeToken(version, token)
}

// ClearResumeTokenForMismatch replaces id's entry with one whose resume
// token is cleared and whose purpose is reset to Listen (existence-filter
// mismatch recovery). No-op if id is no longer registered.
func (r *ListenTargetRegistry) ClearResumeTokenForMismatch(id TargetID) (QueryData, bool) {
	qd, ok := r.targets[id]
	if !ok {
		return QueryData{}, false
	}
	qd = qd.clearedForMismatch()
	r.targets[id] = qd
	return qd, true
}
