package kgo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gokafka9/kafka9/pkg/kerr"
)

// Handler processes one fetched message. Returning an error aborts Run.
type Handler func(Message) error

// Consumer orchestrates the fetch/process/commit/heartbeat loop against
// one consumer group (§4.7), the composition root a caller embeds: there
// is no separate cmd/ driver (§1).
type Consumer struct {
	cfg     cfg
	deps    *clientDeps
	cluster *Cluster
	group   *Group
	offsets *OffsetManager
	fetch   *FetchOperation

	shutdownOnce sync.Once
}

// NewConsumer builds a Consumer from the given options (§6 configuration
// table).
func NewConsumer(opts ...Opt) *Consumer {
	c := defaultCfg()
	for _, opt := range opts {
		opt.apply(&c)
	}
	deps := &clientDeps{cfg: &c}
	cluster := newCluster(deps)
	group := newGroup(cluster, &c)
	return &Consumer{
		cfg:     c,
		deps:    deps,
		cluster: cluster,
		group:   group,
		offsets: newOffsetManager(cluster, &c, group),
		fetch:   newFetchOperation(cluster, &c),
	}
}

// Subscribe records topic in the group's subscription set and the offset
// manager's default-offset policy for partitions with no committed offset
// (§4.7).
func (c *Consumer) Subscribe(topic string, def DefaultOffset) {
	c.group.Subscribe(topic)
	c.offsets.SetDefaultOffset(topic, def)
}

// Run drives the cooperative fetch/process/commit/heartbeat loop described
// in §4.7. When ctx is cancelled (checked between fetches and between
// messages) it shuts down and returns ctx.Err(). When handler or the loop
// returns any other error, Run returns it without calling Shutdown.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			c.Shutdown(context.Background())
			return ctx.Err()
		default:
		}

		if !c.group.IsMember() {
			if err := c.group.Join(ctx); err != nil {
				return err
			}
			c.offsets.ClearOffsetsExcluding(c.group.AssignedPartitions())
		}

		targets, err := c.buildFetchTargets(ctx)
		if err != nil {
			if c.handleGroupError(err) {
				continue
			}
			if isTransportErr(err) {
				// §4.7 step 6: a dead coordinator socket is routed around
				// by the next GetGroupCoordinator call, not fatal to Run.
				c.cfg.logger.Log(LogLevelWarn, "failed to resolve offsets, retrying", "err", err)
				continue
			}
			return err
		}

		if c.group.HeartbeatDue(time.Now()) {
			if err := c.group.Heartbeat(ctx); err != nil {
				if c.handleGroupError(err) {
					continue
				}
				if isTransportErr(err) {
					c.cfg.logger.Log(LogLevelWarn, "heartbeat failed, retrying", "err", err)
					continue
				}
				return err
			}
		}

		if len(targets) == 0 {
			continue
		}

		msgs, err := c.fetch.Execute(ctx, targets)
		if err != nil {
			var oor *OffsetOutOfRangeError
			if errors.As(err, &oor) {
				if c.cfg.autoOffsetReset == AutoOffsetResetNone {
					return err
				}
				def := DefaultOffsetEarliest
				if c.cfg.autoOffsetReset == AutoOffsetResetLatest {
					def = DefaultOffsetLatest
				}
				c.cfg.logger.Log(LogLevelWarn, "offset out of range, resetting", "topic", oor.Topic, "partition", oor.Partition, "policy", c.cfg.autoOffsetReset)
				c.offsets.ResetOffset(oor.Topic, oor.Partition, def)
				continue
			}
			if kerr.IsRetriable(err) || isTransportErr(err) {
				// §4.7 step 6: log and continue, next iteration rediscovers
				// leaders (topology codes) or simply redials (transport).
				c.cfg.logger.Log(LogLevelWarn, "fetch failed, refreshing metadata", "err", err)
				c.cluster.RefreshMetadata(ctx)
				continue
			}
			return err
		}

		aborted := false
		for _, m := range msgs {
			select {
			case <-ctx.Done():
				c.Shutdown(context.Background())
				return ctx.Err()
			default:
			}
			if err := handler(m); err != nil {
				return err
			}
			if c.group.HeartbeatDue(time.Now()) {
				if err := c.group.Heartbeat(ctx); err != nil {
					if c.handleGroupError(err) {
						aborted = true
						break
					}
					if isTransportErr(err) {
						c.cfg.logger.Log(LogLevelWarn, "heartbeat failed, retrying", "err", err)
						aborted = true
						break
					}
					return err
				}
			}
			c.offsets.MarkAsProcessed(m.Topic, m.Partition, m.Offset)
		}
		if aborted {
			continue
		}

		if err := c.offsets.CommitOffsetsIfNecessary(ctx); err != nil && kerr.IsRebalance(err) {
			c.group.state = GroupStateUnjoined
		}
	}
}

// handleGroupError applies §4.7 step 7: rebalance-class errors drop current
// partition bookkeeping and fall through to a rejoin on the next loop
// iteration.
func (c *Consumer) handleGroupError(err error) bool {
	if !kerr.IsRebalance(err) {
		return false
	}
	c.offsets.ClearOffsetsExcluding(nil)
	return true
}

func (c *Consumer) buildFetchTargets(ctx context.Context) ([]FetchTarget, error) {
	var targets []FetchTarget
	for topic, partitions := range c.group.AssignedPartitions() {
		for _, p := range partitions {
			offset, err := c.offsets.NextOffsetFor(ctx, topic, p)
			if err != nil {
				return nil, err
			}
			targets = append(targets, FetchTarget{Topic: topic, Partition: p, Offset: offset})
		}
	}
	return targets, nil
}

// Shutdown commits offsets, leaves the group, and closes every pooled
// connection. Idempotent (§4.7).
func (c *Consumer) Shutdown(ctx context.Context) error {
	var commitErr error
	c.shutdownOnce.Do(func() {
		commitErr = c.offsets.CommitOffsets(ctx)
		c.group.Leave(ctx)
		c.cluster.Disconnect()
	})
	return commitErr
}
