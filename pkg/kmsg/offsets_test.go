package kmsg

import (
	"testing"

	"github.com/gokafka9/kafka9/pkg/kbin"
)

func TestOffsetCommitRequestAppendTo(t *testing.T) {
	req := &OffsetCommitRequest{
		GroupID:      "G",
		GenerationID: 3,
		MemberID:     "m-1",
		Topics: []OffsetCommitTopic{
			{Topic: "orders", Partitions: []OffsetCommitPartition{{Partition: 0, Offset: 9}}},
		},
	}
	if req.Key() != ApiKeyOffsetCommit || req.Version() != 1 {
		t.Fatalf("unexpected key/version")
	}
	if len(req.AppendTo(nil)) == 0 {
		t.Fatalf("expected non-empty encoding")
	}
}

func TestOffsetFetchResponseNoCommittedOffset(t *testing.T) {
	w := kbin.NewWriter(nil)
	w.ArrayLen(1)
	w.String("orders")
	w.ArrayLen(1)
	w.Int32(0)
	w.Int64(-1) // no committed offset
	w.String("")
	w.Int16(0)

	resp := &OffsetFetchResponse{}
	if err := resp.ReadFrom(w.Bytes()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Topics[0].Partitions[0].Offset != -1 {
		t.Fatalf("expected -1 offset, got %d", resp.Topics[0].Partitions[0].Offset)
	}
}

func TestOffsetsRequestSentinels(t *testing.T) {
	if TimeEarliest != -2 || TimeLatest != -1 {
		t.Fatalf("sentinel values changed: earliest=%d latest=%d", TimeEarliest, TimeLatest)
	}
	req := &OffsetsRequest{Topics: []OffsetsTopicRequest{
		{Topic: "orders", Partitions: []OffsetsPartitionRequest{{Partition: 0, Time: TimeEarliest, MaxNumOffsets: 1}}},
	}}
	r := &kbin.Reader{Src: req.AppendTo(nil)}
	if replicaID := r.Int32(); replicaID != -1 {
		t.Fatalf("expected replica_id -1, got %d", replicaID)
	}
}
