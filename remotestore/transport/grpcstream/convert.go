package grpcstream

import "github.com/teranos/docsync/remotestore"

func toWireQueryData(qd remotestore.QueryData) *wireQueryData {
	return &wireQueryData{
		TargetID:        int32(qd.TargetID),
		CollectionPath:  qd.Query.CollectionPath,
		Filter:          qd.Query.Filter,
		SnapshotVersion: int64(qd.SnapshotVersion),
		ResumeToken:     qd.ResumeToken,
		SequenceNumber:  qd.SequenceNumber,
		Purpose:         int(qd.Purpose),
	}
}

func toWireBatch(batch remotestore.MutationBatch) *wireBatch {
	out := &wireBatch{BatchID: batch.BatchID, Mutations: make([]wireMutation, len(batch.Mutations))}
	for i, m := range batch.Mutations {
		out.Mutations[i] = wireMutation{Key: string(m.Key), Payload: m.Payload}
	}
	return out
}

func requestToEnvelope(req remotestore.WatchRequest) *watchEnvelope {
	env := &watchEnvelope{}
	if req.AddTarget != nil {
		env.AddTarget = toWireQueryData(*req.AddTarget)
	}
	if req.RemoveTarget != nil {
		id := int32(*req.RemoveTarget)
		env.RemoveTarget = &id
	}
	return env
}

func envelopeToFrame(env *watchEnvelope) remotestore.WatchFrame {
	if env.Done {
		status := remotestore.StatusOK
		if env.ErrorMessage != "" {
			status = remotestore.StatusFromError(errString(env.ErrorMessage))
		}
		return remotestore.WatchFrame{Done: true, Status: status}
	}

	switch {
	case env.TargetChange != nil:
		tc := env.TargetChange
		ids := make([]remotestore.TargetID, len(tc.TargetIDs))
		for i, id := range tc.TargetIDs {
			ids[i] = remotestore.TargetID(id)
		}
		cause := remotestore.StatusOK
		if tc.CauseError != "" {
			cause = remotestore.StatusFromError(errString(tc.CauseError))
		}
		return remotestore.WatchFrame{Change: remotestore.TargetChange{
			Type:            remotestore.TargetChangeType(tc.Type),
			TargetIDs:       ids,
			ResumeToken:     tc.ResumeToken,
			SnapshotVersion: remotestore.SnapshotVersion(tc.SnapshotVersion),
			Cause:           cause,
		}}
	case env.DocumentChange != nil:
		dc := env.DocumentChange
		return remotestore.WatchFrame{Change: remotestore.DocumentChange{
			Key:              remotestore.DocumentKey(dc.Key),
			Doc:              dc.Doc,
			UpdatedTargetIDs: toTargetIDs(dc.UpdatedTargetIDs),
			RemovedTargetIDs: toTargetIDs(dc.RemovedTargetIDs),
		}}
	case env.ExistenceFilter != nil:
		ef := env.ExistenceFilter
		return remotestore.WatchFrame{Change: remotestore.ExistenceFilter{
			TargetID: remotestore.TargetID(ef.TargetID),
			Count:    ef.Count,
		}}
	default:
		return remotestore.WatchFrame{Done: true, Status: remotestore.StatusFromError(errString("grpcstream: empty watch frame"))}
	}
}

func toTargetIDs(in []int32) []remotestore.TargetID {
	out := make([]remotestore.TargetID, len(in))
	for i, id := range in {
		out[i] = remotestore.TargetID(id)
	}
	return out
}

func writeRequestToEnvelope(req remotestore.WriteRequest) *writeEnvelope {
	env := &writeEnvelope{Handshake: req.Handshake, StreamToken: req.StreamToken}
	if req.Batch != nil {
		env.Batch = toWireBatch(*req.Batch)
	}
	return env
}

func writeEnvelopeToFrame(env *writeEnvelope) remotestore.WriteFrame {
	if env.Done {
		status := remotestore.StatusOK
		if env.ErrorMessage != "" {
			status = remotestore.StatusFromError(errString(env.ErrorMessage))
		}
		return remotestore.WriteFrame{Done: true, Status: status}
	}
	if env.HandshakeAck {
		return remotestore.WriteFrame{HandshakeAck: true, StreamToken: env.StreamToken}
	}
	results := make([]remotestore.MutationResult, len(env.Results))
	for i, r := range env.Results {
		results[i] = remotestore.MutationResult{Key: remotestore.DocumentKey(r.Key), UpdateTime: remotestore.SnapshotVersion(r.UpdateTime)}
	}
	return remotestore.WriteFrame{CommitVersion: remotestore.SnapshotVersion(env.CommitVersion), Results: results}
}

type errString string

func (e errString) Error() string { return string(e) }
