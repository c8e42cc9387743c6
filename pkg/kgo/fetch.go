package kgo

import (
	"context"
	"fmt"
	"sync"

	"github.com/gokafka9/kafka9/pkg/kerr"
	"github.com/gokafka9/kafka9/pkg/kmsg"
)

// Message is one fetched message handed to the Consumer's handler (§3 Data
// Model).
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
}

// FetchTarget is one (topic, partition, offset) tuple the caller wants
// fetched (§4.4).
type FetchTarget struct {
	Topic     string
	Partition int32
	Offset    int64
}

// FetchOperation batches a set of FetchTargets by leader broker and
// executes them in parallel, one goroutine per broker, per §4.4 and §5's
// concurrency model.
type FetchOperation struct {
	cluster *Cluster
	cfg     *cfg
}

func newFetchOperation(cluster *Cluster, cfg *cfg) *FetchOperation {
	return &FetchOperation{cluster: cluster, cfg: cfg}
}

type bucket struct {
	broker  BrokerMetadata
	targets []FetchTarget
}

// OffsetOutOfRangeError reports that a fetch's starting offset fell outside
// the range the broker retains for (Topic, Partition) (§9 Open Question 2).
// Unwraps to the underlying kerr.OffsetOutOfRange so callers can still
// classify it through kerr if they don't care about the partition.
type OffsetOutOfRangeError struct {
	Topic     string
	Partition int32
	Err       error
}

func (e *OffsetOutOfRangeError) Error() string {
	return fmt.Sprintf("kgo: %s[%d]: %v", e.Topic, e.Partition, e.Err)
}

func (e *OffsetOutOfRangeError) Unwrap() error { return e.Err }

// Execute runs the fetch against every target, bucketed by leader, and
// returns a flat sequence of messages: stably ordered within each
// partition, brokers dispatched as bucketed (§4.4 step 5).
func (f *FetchOperation) Execute(ctx context.Context, targets []FetchTarget) ([]Message, error) {
	buckets, err := f.bucketByLeader(ctx, targets)
	if err != nil {
		return nil, err
	}

	results := make([][]Message, len(buckets))
	errs := make([]error, len(buckets))

	var wg sync.WaitGroup
	wg.Add(len(buckets))
	for i, b := range buckets {
		i, b := i, b
		go func() {
			defer wg.Done()
			msgs, err := f.fetchBucket(ctx, b)
			results[i] = msgs
			errs[i] = err
		}()
	}
	wg.Wait()

	var out []Message
	var firstErr error
	for i := range buckets {
		if errs[i] != nil && firstErr == nil {
			firstErr = errs[i]
		}
		out = append(out, results[i]...)
	}
	f.cfg.hooks.each(func(h Hook) {
		if fh, ok := h.(FetchBatchHook); ok {
			fh.OnFetchBatch(len(buckets), len(out), firstErr)
		}
	})
	// Any bucket error (stale leader, dead coordinator socket, offset out of
	// range) is surfaced rather than dropped once partial data came back
	// from a sibling bucket: the caller needs it to refresh metadata or
	// reset an offset, and nothing here has been marked processed yet, so
	// the next pass simply re-fetches (§4.4 step 4).
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (f *FetchOperation) bucketByLeader(ctx context.Context, targets []FetchTarget) ([]bucket, error) {
	byNode := make(map[int32]*bucket)
	var order []int32
	for _, t := range targets {
		leader, err := f.cluster.GetLeader(ctx, t.Topic, t.Partition)
		if err != nil {
			return nil, err
		}
		b, ok := byNode[leader.NodeID]
		if !ok {
			b = &bucket{broker: leader}
			byNode[leader.NodeID] = b
			order = append(order, leader.NodeID)
		}
		b.targets = append(b.targets, t)
	}
	out := make([]bucket, 0, len(order))
	for _, id := range order {
		out = append(out, *byNode[id])
	}
	return out, nil
}

// fetchBucket issues one FetchRequest against b.broker covering every
// target it leads, then decodes each partition's message set (§4.4 steps
// 2-5).
func (f *FetchOperation) fetchBucket(ctx context.Context, b bucket) ([]Message, error) {
	byTopic := make(map[string][]kmsg.FetchPartitionRequest)
	var topicOrder []string
	for _, t := range b.targets {
		if _, ok := byTopic[t.Topic]; !ok {
			topicOrder = append(topicOrder, t.Topic)
		}
		byTopic[t.Topic] = append(byTopic[t.Topic], kmsg.FetchPartitionRequest{
			Partition: t.Partition,
			Offset:    t.Offset,
			MaxBytes:  f.cfg.maxBytes,
		})
	}

	req := &kmsg.FetchRequest{
		MaxWaitMs: int32(f.cfg.maxWaitTime.Milliseconds()),
		MinBytes:  f.cfg.minBytes,
	}
	for _, topic := range topicOrder {
		req.Topics = append(req.Topics, kmsg.FetchTopicRequest{Topic: topic, Partitions: byTopic[topic]})
	}

	conn := f.cluster.ConnectionFor(b.broker)
	raw, err := conn.Request(ctx, req)
	if err != nil {
		return nil, err
	}
	resp := raw.(*kmsg.FetchResponse)

	var out []Message
	var firstErr error
	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				// §4.4 step 4: surface the code rather than swallow it, so
				// Consumer.Run can refresh metadata (topology codes) or
				// apply its AutoOffsetReset policy (OffsetOutOfRange).
				if ke, ok := err.(kerr.KError); ok && ke == kerr.OffsetOutOfRange {
					err = &OffsetOutOfRangeError{Topic: t.Topic, Partition: p.Partition, Err: err}
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			decoded, err := kmsg.DecodeMessageSet(p.MessageSet)
			if err != nil {
				return nil, err
			}
			for _, m := range decoded {
				out = append(out, Message{Topic: t.Topic, Partition: p.Partition, Offset: m.Offset, Key: m.Key, Value: m.Value})
			}
		}
	}
	return out, firstErr
}
