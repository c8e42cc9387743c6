package kgo

import (
	"context"
	"sync"
	"time"

	"github.com/gokafka9/kafka9/pkg/kerr"
	"github.com/gokafka9/kafka9/pkg/kmsg"
)

// DefaultOffset names the subscription-level fallback position used when no
// committed offset exists for a partition (§3 Invariants, §6 config table).
type DefaultOffset int8

const (
	DefaultOffsetEarliest DefaultOffset = iota
	DefaultOffsetLatest
)

func (d DefaultOffset) sentinel() int64 {
	if d == DefaultOffsetLatest {
		return kmsg.TimeLatest
	}
	return kmsg.TimeEarliest
}

// OffsetManager tracks committed and processed offsets per (topic,
// partition) and commits them to the group coordinator (§4.5).
type OffsetManager struct {
	cluster *Cluster
	cfg     *cfg
	group   *Group

	mu         sync.Mutex
	committed  map[partitionKey]int64
	processed  map[partitionKey]int64
	resets     map[partitionKey]int64
	defaults   map[string]DefaultOffset
	lastCommit time.Time
}

func newOffsetManager(cluster *Cluster, cfg *cfg, group *Group) *OffsetManager {
	return &OffsetManager{
		cluster:   cluster,
		cfg:       cfg,
		group:     group,
		committed: make(map[partitionKey]int64),
		processed: make(map[partitionKey]int64),
		resets:    make(map[partitionKey]int64),
		defaults:  make(map[string]DefaultOffset),
	}
}

// SetDefaultOffset records topic's fallback position for partitions with no
// committed offset (§4.5).
func (o *OffsetManager) SetDefaultOffset(topic string, def DefaultOffset) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.defaults[topic] = def
}

// NextOffsetFor returns the offset the next fetch for (topic, partition)
// should start at (§4.5).
func (o *OffsetManager) NextOffsetFor(ctx context.Context, topic string, partition int32) (int64, error) {
	key := partitionKey{topic, partition}

	o.mu.Lock()
	if off, ok := o.resets[key]; ok {
		delete(o.resets, key)
		o.mu.Unlock()
		return off, nil
	}
	if off, ok := o.processed[key]; ok {
		o.mu.Unlock()
		return off + 1, nil
	}
	o.mu.Unlock()

	committed, err := o.fetchCommittedOffset(ctx, topic, partition)
	if err != nil {
		return 0, err
	}
	if committed >= 0 {
		o.mu.Lock()
		o.committed[key] = committed
		o.mu.Unlock()
		return committed + 1, nil
	}

	o.mu.Lock()
	def := o.defaults[topic]
	o.mu.Unlock()
	return def.sentinel(), nil
}

func (o *OffsetManager) fetchCommittedOffset(ctx context.Context, topic string, partition int32) (int64, error) {
	coord, err := o.cluster.GetGroupCoordinator(ctx, o.group.groupID)
	if err != nil {
		return 0, err
	}
	conn := o.cluster.ConnectionFor(coord)
	req := &kmsg.OffsetFetchRequest{
		GroupID: o.group.groupID,
		Topics: []kmsg.OffsetFetchTopic{
			{Topic: topic, Partitions: []int32{partition}},
		},
	}
	raw, err := conn.Request(ctx, req)
	if err != nil {
		return 0, err
	}
	resp := raw.(*kmsg.OffsetFetchResponse)
	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				return 0, err
			}
			return p.Offset, nil
		}
	}
	return -1, nil
}

// MarkAsProcessed records that offset has been handled for (topic,
// partition). Idempotent with respect to replays of the same offset
// (§4.5).
func (o *OffsetManager) MarkAsProcessed(topic string, partition int32, offset int64) {
	key := partitionKey{topic, partition}
	o.mu.Lock()
	defer o.mu.Unlock()
	if cur, ok := o.processed[key]; ok && cur > offset {
		return
	}
	o.processed[key] = offset
}

// ResetOffset forces the next fetch for (topic, partition) to start from
// def's sentinel, discarding any cached committed/processed position. Used
// by Consumer.Run's AutoOffsetReset handling after an OffsetOutOfRangeError
// (§9 Open Question 2). The sentinel is staged in resets rather than
// processed, so a commit that races the next fetch never ships a bogus
// negative offset to the coordinator.
func (o *OffsetManager) ResetOffset(topic string, partition int32, def DefaultOffset) {
	key := partitionKey{topic, partition}
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.committed, key)
	delete(o.processed, key)
	o.resets[key] = def.sentinel()
}

// CommitOffsets sends an OffsetCommitRequest for every partition whose
// processed offset is ahead of its committed offset (§4.5).
func (o *OffsetManager) CommitOffsets(ctx context.Context) error {
	o.mu.Lock()
	byTopic := make(map[string][]kmsg.OffsetCommitPartition)
	var topicOrder []string
	pending := make(map[partitionKey]int64)
	for key, proc := range o.processed {
		if committed, ok := o.committed[key]; ok && committed >= proc {
			continue
		}
		if _, ok := byTopic[key.topic]; !ok {
			topicOrder = append(topicOrder, key.topic)
		}
		byTopic[key.topic] = append(byTopic[key.topic], kmsg.OffsetCommitPartition{Partition: key.partition, Offset: proc})
		pending[key] = proc
	}
	o.mu.Unlock()

	if len(pending) == 0 {
		o.lastCommit = time.Now()
		return nil
	}

	coord, err := o.cluster.GetGroupCoordinator(ctx, o.group.groupID)
	if err != nil {
		return err
	}
	req := &kmsg.OffsetCommitRequest{
		GroupID:      o.group.groupID,
		GenerationID: o.group.generationID,
		MemberID:     o.group.memberID,
	}
	for _, topic := range topicOrder {
		req.Topics = append(req.Topics, kmsg.OffsetCommitTopic{Topic: topic, Partitions: byTopic[topic]})
	}

	conn := o.cluster.ConnectionFor(coord)
	raw, err := conn.Request(ctx, req)
	if err != nil {
		return err
	}
	resp := raw.(*kmsg.OffsetCommitResponse)

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			key := partitionKey{t.Topic, p.Partition}
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				if kerr.IsRebalance(err) {
					return err
				}
				continue
			}
			o.committed[key] = pending[key]
		}
	}
	o.lastCommit = time.Now()
	return nil
}

// CommitOffsetsIfNecessary commits at most once per offset_commit_interval
// (§4.5).
func (o *OffsetManager) CommitOffsetsIfNecessary(ctx context.Context) error {
	if time.Since(o.lastCommit) < o.cfg.offsetCommitInterval {
		return nil
	}
	return o.CommitOffsets(ctx)
}

// ClearOffsetsExcluding drops bookkeeping for partitions no longer assigned
// after a rebalance (§4.5).
func (o *OffsetManager) ClearOffsetsExcluding(assigned map[string][]int32) {
	keep := make(map[partitionKey]bool)
	for topic, parts := range assigned {
		for _, p := range parts {
			keep[partitionKey{topic, p}] = true
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for key := range o.committed {
		if !keep[key] {
			delete(o.committed, key)
		}
	}
	for key := range o.processed {
		if !keep[key] {
			delete(o.processed, key)
		}
	}
	for key := range o.resets {
		if !keep[key] {
			delete(o.resets, key)
		}
	}
}
