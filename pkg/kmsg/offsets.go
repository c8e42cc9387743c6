package kmsg

import "github.com/gokafka9/kafka9/pkg/kbin"

// OffsetCommitPartition is one partition's commit within an
// OffsetCommitRequest.
type OffsetCommitPartition struct {
	Partition int32
	Offset    int64
	Metadata  string
}

// OffsetCommitTopic groups partitions committed for one topic.
type OffsetCommitTopic struct {
	Topic      string
	Partitions []OffsetCommitPartition
}

// OffsetCommitRequest (API key 8, version 1: kafka-coordinator-backed
// offset storage, the only storage a 0.9 coordinator offers) persists
// processed offsets under the current generation (§4.5 CommitOffsets).
type OffsetCommitRequest struct {
	GroupID      string
	GenerationID int32
	MemberID     string
	Topics       []OffsetCommitTopic
}

func (*OffsetCommitRequest) Key() int16     { return ApiKeyOffsetCommit }
func (*OffsetCommitRequest) Version() int16 { return 1 }

func (r *OffsetCommitRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.GroupID)
	w.Int32(r.GenerationID)
	w.String(r.MemberID)
	w.ArrayLen(len(r.Topics))
	for _, t := range r.Topics {
		w.String(t.Topic)
		w.ArrayLen(len(t.Partitions))
		for _, p := range t.Partitions {
			w.Int32(p.Partition)
			w.Int64(p.Offset)
			w.String(p.Metadata)
		}
	}
	return w.Bytes()
}

func (*OffsetCommitRequest) ResponseKind() Response { return new(OffsetCommitResponse) }

type OffsetCommitPartitionError struct {
	Partition int32
	ErrorCode int16
}

type OffsetCommitTopicResponse struct {
	Topic      string
	Partitions []OffsetCommitPartitionError
}

// OffsetCommitResponse carries a per-partition error code; a partition
// absent from the response (relative to what was requested) is left
// uncommitted by the Offset Manager, so its next commit sends it again
// (§4.5).
type OffsetCommitResponse struct {
	Topics []OffsetCommitTopicResponse
}

func (o *OffsetCommitResponse) ReadFrom(src []byte) error {
	r := &kbin.Reader{Src: src}
	n := r.ArrayLen()
	o.Topics = make([]OffsetCommitTopicResponse, n)
	for i := range o.Topics {
		t := &o.Topics[i]
		t.Topic = r.String()
		np := r.ArrayLen()
		t.Partitions = make([]OffsetCommitPartitionError, np)
		for j := range t.Partitions {
			t.Partitions[j].Partition = r.Int32()
			t.Partitions[j].ErrorCode = r.Int16()
		}
	}
	return r.Complete()
}

// OffsetFetchRequest (API key 9) retrieves the last committed offset for
// this group's partitions (§4.5 NextOffsetFor).
type OffsetFetchRequest struct {
	GroupID string
	Topics  []OffsetFetchTopic
}

type OffsetFetchTopic struct {
	Topic      string
	Partitions []int32
}

func (*OffsetFetchRequest) Key() int16     { return ApiKeyOffsetFetch }
func (*OffsetFetchRequest) Version() int16 { return 1 }

func (r *OffsetFetchRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.GroupID)
	w.ArrayLen(len(r.Topics))
	for _, t := range r.Topics {
		w.String(t.Topic)
		w.Int32Array(t.Partitions)
	}
	return w.Bytes()
}

func (*OffsetFetchRequest) ResponseKind() Response { return new(OffsetFetchResponse) }

type OffsetFetchPartition struct {
	Partition int32
	Offset    int64
	Metadata  string
	ErrorCode int16
}

type OffsetFetchTopicResponse struct {
	Topic      string
	Partitions []OffsetFetchPartition
}

// OffsetFetchResponse reports -1 for Offset when the group has no
// committed offset for a partition (§4.5: "if the coordinator returns -1
// (no committed offset)...").
type OffsetFetchResponse struct {
	Topics []OffsetFetchTopicResponse
}

func (o *OffsetFetchResponse) ReadFrom(src []byte) error {
	r := &kbin.Reader{Src: src}
	n := r.ArrayLen()
	o.Topics = make([]OffsetFetchTopicResponse, n)
	for i := range o.Topics {
		t := &o.Topics[i]
		t.Topic = r.String()
		np := r.ArrayLen()
		t.Partitions = make([]OffsetFetchPartition, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.Partition = r.Int32()
			p.Offset = r.Int64()
			p.Metadata = r.String()
			p.ErrorCode = r.Int16()
		}
	}
	return r.Complete()
}

// Sentinel times used by OffsetsRequest (and, equivalently, as the
// default-offset policy sentinels recorded by the Offset Manager, §3
// Invariants): -2 resolves to the earliest available offset, -1 to the
// offset one past the last (i.e. the next message that will be produced).
const (
	TimeEarliest int64 = -2
	TimeLatest   int64 = -1
)

// OffsetsPartitionRequest asks for up to MaxNumOffsets offsets at or
// before Time for one partition.
type OffsetsPartitionRequest struct {
	Partition     int32
	Time          int64
	MaxNumOffsets int32
}

type OffsetsTopicRequest struct {
	Topic      string
	Partitions []OffsetsPartitionRequest
}

// OffsetsRequest (API key 2) resolves the :earliest/:latest sentinels (§6
// table, §4.5) into a concrete offset a FetchRequest can use; real-time
// lookups (exact timestamps) are not exercised by this client, only the
// two sentinels.
type OffsetsRequest struct {
	Topics []OffsetsTopicRequest
}

func (*OffsetsRequest) Key() int16     { return ApiKeyOffsets }
func (*OffsetsRequest) Version() int16 { return 0 }

func (r *OffsetsRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(-1) // replica_id: always -1 for a consumer
	w.ArrayLen(len(r.Topics))
	for _, t := range r.Topics {
		w.String(t.Topic)
		w.ArrayLen(len(t.Partitions))
		for _, p := range t.Partitions {
			w.Int32(p.Partition)
			w.Int64(p.Time)
			w.Int32(p.MaxNumOffsets)
		}
	}
	return w.Bytes()
}

func (*OffsetsRequest) ResponseKind() Response { return new(OffsetsResponse) }

type OffsetsPartitionResponse struct {
	Partition int32
	ErrorCode int16
	Offsets   []int64
}

type OffsetsTopicResponse struct {
	Topic      string
	Partitions []OffsetsPartitionResponse
}

type OffsetsResponse struct {
	Topics []OffsetsTopicResponse
}

func (o *OffsetsResponse) ReadFrom(src []byte) error {
	r := &kbin.Reader{Src: src}
	n := r.ArrayLen()
	o.Topics = make([]OffsetsTopicResponse, n)
	for i := range o.Topics {
		t := &o.Topics[i]
		t.Topic = r.String()
		np := r.ArrayLen()
		t.Partitions = make([]OffsetsPartitionResponse, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.Partition = r.Int32()
			p.ErrorCode = r.Int16()
			no := r.ArrayLen()
			p.Offsets = make([]int64, no)
			for k := range p.Offsets {
				p.Offsets[k] = r.Int64()
			}
		}
	}
	return r.Complete()
}
