package remotestore

import "testing"

func TestWritePipeline_CanAddRespectsNetworkAndCapacity(t *testing.T) {
	p := newWritePipeline()
	if p.CanAdd() {
		t.Fatalf("expected CanAdd to be false before the network is enabled")
	}

	p.setNetworkEnabled(true)
	if !p.CanAdd() {
		t.Fatalf("expected CanAdd to be true once the network is enabled and empty")
	}

	for i := int64(1); i <= MaxPendingWrites; i++ {
		p.Enqueue(MutationBatch{BatchID: i})
	}
	if p.CanAdd() {
		t.Fatalf("expected CanAdd to be false once the pipeline is at capacity")
	}
	if p.Len() != MaxPendingWrites {
		t.Fatalf("expected %d batches, got %d", MaxPendingWrites, p.Len())
	}
}

func TestWritePipeline_EnqueuePanicsOnNonIncreasingBatchID(t *testing.T) {
	p := newWritePipeline()
	p.setNetworkEnabled(true)
	p.Enqueue(MutationBatch{BatchID: 5})

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Enqueue with a non-increasing BatchID to panic")
		}
	}()
	p.Enqueue(MutationBatch{BatchID: 5})
}

func TestWritePipeline_PopFirstFIFO(t *testing.T) {
	p := newWritePipeline()
	p.setNetworkEnabled(true)
	p.Enqueue(MutationBatch{BatchID: 1})
	p.Enqueue(MutationBatch{BatchID: 2})

	b, ok := p.PopFirst()
	if !ok || b.BatchID != 1 {
		t.Fatalf("expected first pop to return batch 1, got %+v, %v", b, ok)
	}
	b, ok = p.PeekFirst()
	if !ok || b.BatchID != 2 {
		t.Fatalf("expected peek to return batch 2, got %+v, %v", b, ok)
	}
	if p.LastBatchID() != 2 {
		t.Fatalf("expected LastBatchID to be 2, got %d", p.LastBatchID())
	}
}

func TestWritePipeline_Clear(t *testing.T) {
	p := newWritePipeline()
	p.setNetworkEnabled(true)
	p.Enqueue(MutationBatch{BatchID: 1})
	p.Clear()
	if !p.Empty() || p.LastBatchID() != 0 {
		t.Fatalf("expected Clear to empty the pipeline and reset LastBatchID")
	}
}
