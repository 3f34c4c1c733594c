package grpcstream

import "encoding/json"

// jsonCodecName is registered as a gRPC call content-subtype so every RPC
// this package makes negotiates JSON framing instead of protobuf wire
// format. There is no generated .proto client for this service; messages
// are framed as plain JSON envelopes over a raw gRPC duplex stream.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return jsonCodecName }

// watchEnvelope is the wire shape of one WatchRequest/WatchFrame exchanged
// over the watch stream.
type watchEnvelope struct {
	// Outbound (client -> server)
	AddTarget    *wireQueryData `json:"add_target,omitempty"`
	RemoveTarget *int32         `json:"remove_target,omitempty"`

	// Inbound (server -> client)
	TargetChange    *wireTargetChange `json:"target_change,omitempty"`
	DocumentChange  *wireDocumentChange `json:"document_change,omitempty"`
	ExistenceFilter *wireExistenceFilter `json:"existence_filter,omitempty"`
	Done            bool   `json:"done,omitempty"`
	ErrorMessage    string `json:"error,omitempty"`
}

// writeEnvelope is the wire shape of one WriteRequest/WriteFrame exchanged
// over the write stream.
type writeEnvelope struct {
	// Outbound
	Handshake   bool           `json:"handshake,omitempty"`
	StreamToken []byte         `json:"stream_token,omitempty"`
	Batch       *wireBatch     `json:"batch,omitempty"`

	// Inbound
	HandshakeAck  bool             `json:"handshake_ack,omitempty"`
	CommitVersion int64            `json:"commit_version,omitempty"`
	Results       []wireResult     `json:"results,omitempty"`
	Done          bool             `json:"done,omitempty"`
	ErrorMessage  string           `json:"error,omitempty"`
}

type wireQueryData struct {
	TargetID        int32  `json:"target_id"`
	CollectionPath  string `json:"collection_path"`
	Filter          string `json:"filter"`
	SnapshotVersion int64  `json:"snapshot_version"`
	ResumeToken     []byte `json:"resume_token,omitempty"`
	SequenceNumber  int64  `json:"sequence_number"`
	Purpose         int    `json:"purpose"`
}

type wireTargetChange struct {
	Type            int     `json:"type"`
	TargetIDs       []int32 `json:"target_ids"`
	ResumeToken     []byte  `json:"resume_token,omitempty"`
	SnapshotVersion int64   `json:"snapshot_version"`
	CauseError      string  `json:"cause_error,omitempty"`
}

type wireDocumentChange struct {
	Key              string  `json:"key"`
	Doc              []byte  `json:"doc,omitempty"`
	UpdatedTargetIDs []int32 `json:"updated_target_ids,omitempty"`
	RemovedTargetIDs []int32 `json:"removed_target_ids,omitempty"`
}

type wireExistenceFilter struct {
	TargetID int32 `json:"target_id"`
	Count    int   `json:"count"`
}

type wireBatch struct {
	BatchID   int64         `json:"batch_id"`
	Mutations []wireMutation `json:"mutations"`
}

type wireMutation struct {
	Key     string `json:"key"`
	Payload []byte `json:"payload,omitempty"`
}

type wireResult struct {
	Key        string `json:"key"`
	UpdateTime int64  `json:"update_time"`
}
