package kgo

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/gokafka9/kafka9/pkg/kbin"
	"github.com/gokafka9/kafka9/pkg/kerr"
	"github.com/gokafka9/kafka9/pkg/kmsg"
)

// encodeFetchResponseWithCode builds a one-topic, one-partition FetchResponse
// carrying errCode and an empty message set, matching kmsg.FetchResponse's
// wire field order.
func encodeFetchResponseWithCode(t *testing.T, topic string, partition int32, errCode int16) []byte {
	t.Helper()
	w := kbin.NewWriter(nil)
	w.ArrayLen(1)
	w.String(topic)
	w.ArrayLen(1)
	w.Int32(partition)
	w.Int16(errCode)
	w.Int64(0) // high_watermark
	w.Int32(0) // message_set size
	return w.Bytes()
}

func newTestCluster() *Cluster {
	return &Cluster{
		brokersByID: map[int32]BrokerMetadata{
			1: {NodeID: 1, Host: "b1", Port: 9092},
			2: {NodeID: 2, Host: "b2", Port: 9092},
		},
		leaders: map[partitionKey]int32{
			{"orders", 0}: 1,
			{"orders", 1}: 2,
			{"orders", 2}: 1,
		},
		partitions:   map[string][]int32{"orders": {0, 1, 2}},
		coordinators: map[string]BrokerMetadata{},
	}
}

func TestBucketByLeaderGroupsByBroker(t *testing.T) {
	cluster := newTestCluster()
	cfg := defaultCfg()
	f := newFetchOperation(cluster, &cfg)

	targets := []FetchTarget{
		{Topic: "orders", Partition: 0, Offset: 0},
		{Topic: "orders", Partition: 1, Offset: 0},
		{Topic: "orders", Partition: 2, Offset: 5},
	}
	buckets, err := f.bucketByLeader(context.Background(), targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets (one per broker), got %d", len(buckets))
	}

	byBroker := map[int32][]FetchTarget{}
	for _, b := range buckets {
		byBroker[b.broker.NodeID] = b.targets
	}
	if len(byBroker[1]) != 2 {
		t.Fatalf("expected broker 1 to lead 2 partitions, got %d", len(byBroker[1]))
	}
	if len(byBroker[2]) != 1 {
		t.Fatalf("expected broker 2 to lead 1 partition, got %d", len(byBroker[2]))
	}
}

func TestBucketByLeaderUnknownPartitionFails(t *testing.T) {
	cluster := &Cluster{
		brokersByID:  map[int32]BrokerMetadata{},
		leaders:      map[partitionKey]int32{},
		partitions:   map[string][]int32{},
		coordinators: map[string]BrokerMetadata{},
		seeds:        nil,
	}
	cfg := defaultCfg()
	f := newFetchOperation(cluster, &cfg)

	_, err := f.bucketByLeader(context.Background(), []FetchTarget{{Topic: "orders", Partition: 0}})
	if err == nil {
		t.Fatalf("expected error resolving leader with no seeds and no cache")
	}
}

// TestFetchBucketSurfacesTopologyErrorCode realizes the fixed §4.4 step 4
// behavior: a non-zero, non-offset per-partition error code must reach the
// caller instead of being swallowed, so Consumer.Run can refresh metadata.
func TestFetchBucketSurfacesTopologyErrorCode(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := defaultCfg()
	c.dialFn = testDialer(client)
	deps := &clientDeps{cfg: &c}
	cluster := &Cluster{pool: newBrokerPool(deps)}
	f := newFetchOperation(cluster, &c)

	go func() {
		corrID, apiKey, _ := readRequestFrame(t, server)
		if apiKey != kmsg.ApiKeyFetch {
			t.Errorf("want ApiKeyFetch, got %d", apiKey)
		}
		writeResponseFrame(t, server, corrID, encodeFetchResponseWithCode(t, "orders", 0, int16(kerr.NotLeaderForPartition)))
	}()

	_, err := f.fetchBucket(context.Background(), bucket{
		broker:  BrokerMetadata{NodeID: 1, Host: "b1", Port: 9092},
		targets: []FetchTarget{{Topic: "orders", Partition: 0, Offset: 0}},
	})
	if !kerr.IsRetriable(err) {
		t.Fatalf("expected a retriable topology error, got %v", err)
	}
}

// TestFetchBucketWrapsOffsetOutOfRange checks that OffsetOutOfRange is
// wrapped with the offending (topic, partition) so Consumer.Run's
// AutoOffsetReset handling knows what to reset.
func TestFetchBucketWrapsOffsetOutOfRange(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	c := defaultCfg()
	c.dialFn = testDialer(client)
	deps := &clientDeps{cfg: &c}
	cluster := &Cluster{pool: newBrokerPool(deps)}
	f := newFetchOperation(cluster, &c)

	go func() {
		corrID, _, _ := readRequestFrame(t, server)
		writeResponseFrame(t, server, corrID, encodeFetchResponseWithCode(t, "orders", 3, int16(kerr.OffsetOutOfRange)))
	}()

	_, err := f.fetchBucket(context.Background(), bucket{
		broker:  BrokerMetadata{NodeID: 1, Host: "b1", Port: 9092},
		targets: []FetchTarget{{Topic: "orders", Partition: 3, Offset: 999}},
	})
	var oor *OffsetOutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("expected *OffsetOutOfRangeError, got %v", err)
	}
	if oor.Topic != "orders" || oor.Partition != 3 {
		t.Fatalf("unexpected offending partition: %+v", oor)
	}
}
