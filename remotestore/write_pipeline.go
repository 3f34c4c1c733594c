package remotestore

import "fmt"

// MaxPendingWrites is the write pipeline's bounded capacity K.
const MaxPendingWrites = 10

// writePipeline is the bounded FIFO of mutation batches in flight to the
// backend. BatchIDs are strictly increasing; the first element
// is the one the next backend ack applies to.
type writePipeline struct {
	batches       []MutationBatch
	networkEnabled bool
}

func newWritePipeline() *writePipeline {
	return &writePipeline{}
}

// CanAdd reports whether a caller may Enqueue another batch: the network
// must be enabled and the pipeline must have spare capacity.
func (p *writePipeline) CanAdd() bool {
	return p.networkEnabled && len(p.batches) < MaxPendingWrites
}

// Enqueue appends batch. The caller must have checked CanAdd(); Enqueue
// panics if the invariant (strictly increasing BatchID, capacity) would be
// violated, since that indicates a coordinator bug rather than a runtime
// condition.
func (p *writePipeline) Enqueue(batch MutationBatch) {
	if len(p.batches) >= MaxPendingWrites {
		panic(fmt.Sprintf("remotestore: write pipeline overflow, capacity %d", MaxPendingWrites))
	}
	if len(p.batches) > 0 {
		last := p.batches[len(p.batches)-1]
		if batch.BatchID <= last.BatchID {
			panic(fmt.Sprintf("remotestore: write pipeline batch ids must strictly increase, got %d after %d", batch.BatchID, last.BatchID))
		}
	}
	p.batches = append(p.batches, batch)
}

// PeekFirst returns the head batch, if any, for ack correlation.
func (p *writePipeline) PeekFirst() (MutationBatch, bool) {
	if len(p.batches) == 0 {
		return MutationBatch{}, false
	}
	return p.batches[0], true
}

// PopFirst removes and returns the head batch.
func (p *writePipeline) PopFirst() (MutationBatch, bool) {
	b, ok := p.PeekFirst()
	if ok {
		p.batches = p.batches[1:]
	}
	return b, ok
}

// Clear drops every pending batch, e.g. on network disable — the mutations
// remain durable in the local store and will be re-fetched.
func (p *writePipeline) Clear() {
	p.batches = nil
}

// Len returns the number of batches currently in flight.
func (p *writePipeline) Len() int {
	return len(p.batches)
}

// Empty reports whether the pipeline has no batches in flight.
func (p *writePipeline) Empty() bool {
	return len(p.batches) == 0
}

// LastBatchID returns the BatchID of the tail batch, or 0 if empty — the
// cursor FillWritePipeline uses to ask the local store for more work.
func (p *writePipeline) LastBatchID() int64 {
	if len(p.batches) == 0 {
		return 0
	}
	return p.batches[len(p.batches)-1].BatchID
}

// All returns every batch currently pipelined, head first, in send order.
func (p *writePipeline) All() []MutationBatch {
	out := make([]MutationBatch, len(p.batches))
	copy(out, p.batches)
	return out
}

func (p *writePipeline) setNetworkEnabled(enabled bool) {
	p.networkEnabled = enabled
}
