package kgo

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/gokafka9/kafka9/pkg/kerr"
	"github.com/gokafka9/kafka9/pkg/kmsg"
)

// partitionKey identifies one partition for the leader cache.
type partitionKey struct {
	topic     string
	partition int32
}

// Cluster is the topology cache described in §4.3: node_id -> broker
// metadata, (topic,partition) -> leader node_id, and a per-group
// coordinator cache, on top of the Broker Pool.
type Cluster struct {
	deps *clientDeps
	pool *brokerPool

	mu           sync.RWMutex
	brokersByID  map[int32]BrokerMetadata
	leaders      map[partitionKey]int32
	partitions   map[string][]int32 // topic -> partition IDs, for ListPartitions/assignment
	coordinators map[string]BrokerMetadata

	seeds []BrokerMetadata

	// metaInflight deduplicates concurrent GetLeader misses onto a
	// single in-flight MetadataRequest, per §4.3 and §8's dedup property.
	metaMu       sync.Mutex
	metaInflight chan struct{}
	metaErr      error
}

func newCluster(deps *clientDeps) *Cluster {
	seeds := make([]BrokerMetadata, 0, len(deps.cfg.seedBrokers))
	for _, addr := range deps.cfg.seedBrokers {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			continue
		}
		port, _ := strconv.Atoi(portStr)
		seeds = append(seeds, BrokerMetadata{NodeID: -1, Host: host, Port: int32(port)})
	}
	return &Cluster{
		deps:         deps,
		pool:         newBrokerPool(deps),
		brokersByID:  make(map[int32]BrokerMetadata),
		leaders:      make(map[partitionKey]int32),
		partitions:   make(map[string][]int32),
		coordinators: make(map[string]BrokerMetadata),
		seeds:        seeds,
	}
}

// anyConnection returns a Connection to some reachable broker: a cached
// broker if we have one, else a seed.
func (c *Cluster) anyConnection() (*Connection, error) {
	c.mu.RLock()
	for _, b := range c.brokersByID {
		c.mu.RUnlock()
		return c.pool.get(b), nil
	}
	c.mu.RUnlock()

	if len(c.seeds) == 0 {
		return nil, ErrNoSeeds
	}
	return c.pool.get(c.seeds[0]), nil
}

// GetLeader resolves the current leader broker for (topic, partition),
// consulting the cache first and issuing a metadata request on miss
// (§4.3).
func (c *Cluster) GetLeader(ctx context.Context, topic string, partition int32) (BrokerMetadata, error) {
	if b, ok := c.cachedLeader(topic, partition); ok {
		return b, nil
	}
	if err := c.RefreshMetadata(ctx, topic); err != nil {
		return BrokerMetadata{}, err
	}
	b, ok := c.cachedLeader(topic, partition)
	if !ok {
		c.mu.RLock()
		known := false
		for _, p := range c.partitions[topic] {
			if p == partition {
				known = true
				break
			}
		}
		c.mu.RUnlock()
		if known {
			// The metadata lists the partition but reports no leader (-1).
			return BrokerMetadata{}, kerr.LeaderNotAvailable
		}
		return BrokerMetadata{}, ErrNoLeader
	}
	return b, nil
}

func (c *Cluster) cachedLeader(topic string, partition int32) (BrokerMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	nodeID, ok := c.leaders[partitionKey{topic, partition}]
	if !ok {
		return BrokerMetadata{}, false
	}
	b, ok := c.brokersByID[nodeID]
	return b, ok
}

// RefreshMetadata forces a MetadataRequest for the given topics (or every
// known topic if none given), deduplicating concurrent callers onto a
// single in-flight request (§4.3, §8 "Cluster" property).
func (c *Cluster) RefreshMetadata(ctx context.Context, topics ...string) error {
	c.metaMu.Lock()
	if c.metaInflight != nil {
		wait := c.metaInflight
		c.metaMu.Unlock()
		<-wait
		return c.metaErr
	}
	done := make(chan struct{})
	c.metaInflight = done
	c.metaMu.Unlock()

	err := c.doRefreshMetadata(ctx, topics)

	c.metaMu.Lock()
	c.metaErr = err
	c.metaInflight = nil
	c.metaMu.Unlock()
	close(done)
	return err
}

func (c *Cluster) doRefreshMetadata(ctx context.Context, topics []string) error {
	if len(topics) == 0 {
		c.mu.RLock()
		for t := range c.partitions {
			topics = append(topics, t)
		}
		c.mu.RUnlock()
	}

	var lastErr error
	candidates := c.candidateConnections()
	for _, conn := range candidates {
		resp, err := conn.Request(ctx, &kmsg.MetadataRequest{Topics: topics})
		if err != nil {
			lastErr = err
			continue
		}
		meta := resp.(*kmsg.MetadataResponse)
		c.applyMetadata(meta)
		return nil
	}
	if lastErr == nil {
		lastErr = ErrNoSeeds
	}
	return lastErr
}

// candidateConnections returns connections to try in order: every broker
// already known, then every configured seed, so a refresh can succeed even
// if the previously-known brokers are now unreachable.
func (c *Cluster) candidateConnections() []*Connection {
	c.mu.RLock()
	conns := make([]*Connection, 0, len(c.brokersByID)+len(c.seeds))
	for _, b := range c.brokersByID {
		conns = append(conns, c.pool.get(b))
	}
	c.mu.RUnlock()
	for _, s := range c.seeds {
		conns = append(conns, c.pool.get(s))
	}
	return conns
}

func (c *Cluster) applyMetadata(meta *kmsg.MetadataResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range meta.Brokers {
		c.brokersByID[b.NodeID] = BrokerMetadata{NodeID: b.NodeID, Host: b.Host, Port: b.Port}
	}
	for _, t := range meta.Topics {
		ids := make([]int32, 0, len(t.Partitions))
		for _, p := range t.Partitions {
			ids = append(ids, p.Partition)
			if p.Leader < 0 {
				delete(c.leaders, partitionKey{t.Topic, p.Partition})
				continue
			}
			c.leaders[partitionKey{t.Topic, p.Partition}] = p.Leader
		}
		c.partitions[t.Topic] = ids
	}
}

// GetGroupCoordinator resolves and caches the coordinator broker for a
// consumer group (§4.3).
func (c *Cluster) GetGroupCoordinator(ctx context.Context, groupID string) (BrokerMetadata, error) {
	c.mu.RLock()
	b, ok := c.coordinators[groupID]
	c.mu.RUnlock()
	if ok {
		return b, nil
	}

	conn, err := c.anyConnection()
	if err != nil {
		return BrokerMetadata{}, err
	}
	resp, err := conn.Request(ctx, &kmsg.GroupCoordinatorRequest{GroupID: groupID})
	if err != nil {
		return BrokerMetadata{}, err
	}
	gcr := resp.(*kmsg.GroupCoordinatorResponse)
	if err := kerr.ErrorForCode(gcr.ErrorCode); err != nil {
		return BrokerMetadata{}, err
	}
	coord := BrokerMetadata{NodeID: gcr.CoordinatorID, Host: gcr.CoordinatorHost, Port: gcr.CoordinatorPort}

	c.mu.Lock()
	c.coordinators[groupID] = coord
	c.brokersByID[coord.NodeID] = coord
	c.mu.Unlock()
	return coord, nil
}

// DropCoordinator evicts a cached coordinator, forcing the next
// GetGroupCoordinator to re-resolve it (§4.6 Heartbeat:
// GroupCoordinatorNotAvailable / NotCoordinatorForGroup handling).
func (c *Cluster) DropCoordinator(groupID string) {
	c.mu.Lock()
	delete(c.coordinators, groupID)
	c.mu.Unlock()
}

// ListTopics returns every topic currently in the metadata cache
// (DOMAIN STACK admin view, §3).
func (c *Cluster) ListTopics() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.partitions))
	for t := range c.partitions {
		out = append(out, t)
	}
	return out
}

// ListPartitions returns the cached partition IDs for topic (DOMAIN STACK
// admin view, §3).
func (c *Cluster) ListPartitions(topic string) []int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := c.partitions[topic]
	out := make([]int32, len(ids))
	copy(out, ids)
	return out
}

// ConnectionFor returns the pooled Connection to b, for callers (Fetch
// Operation, Consumer Group) that already resolved a broker via GetLeader
// or GetGroupCoordinator.
func (c *Cluster) ConnectionFor(b BrokerMetadata) *Connection {
	return c.pool.get(b)
}

// Disconnect closes every pooled connection (§3 Lifecycle).
func (c *Cluster) Disconnect() {
	c.pool.disconnect()
}
