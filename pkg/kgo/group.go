package kgo

import (
	"context"
	"time"

	"github.com/gokafka9/kafka9/pkg/kerr"
	"github.com/gokafka9/kafka9/pkg/kmsg"
)

// GroupState is one state of the UNJOINED -> JOINED -> STABLE machine
// (§4.6).
type GroupState int8

const (
	GroupStateUnjoined GroupState = iota
	GroupStateJoined
	GroupStateStable
)

// heartbeatGrace trims session_timeout so a heartbeat fires early enough
// to beat the coordinator's eviction deadline under load (§4.7).
const heartbeatGrace = 2 * time.Second

// Group drives the three-phase join/sync/heartbeat protocol against a
// group coordinator (§4.6), the heart of the system.
type Group struct {
	cluster *Cluster
	cfg     *cfg

	groupID  string
	protocol string

	subscribed []string

	state         GroupState
	memberID      string
	generationID  int32
	leaderID      string
	assignment    map[string][]int32
	lastHeartbeat time.Time
}

func newGroup(cluster *Cluster, cfg *cfg) *Group {
	return &Group{
		cluster:  cluster,
		cfg:      cfg,
		groupID:  cfg.groupID,
		protocol: "standard",
	}
}

// Subscribe adds topic to the set this group's members want assigned
// (§4.7 Subscribe).
func (g *Group) Subscribe(topic string) {
	for _, t := range g.subscribed {
		if t == topic {
			return
		}
	}
	g.subscribed = append(g.subscribed, topic)
}

func (g *Group) fireHook(event string, err error) {
	g.cfg.hooks.each(func(h Hook) {
		if gh, ok := h.(GroupHook); ok {
			gh.OnGroupEvent(g.groupID, event, err)
		}
	})
}

// Join executes the join -> (assign) -> sync sequence and transitions to
// STABLE (§4.6).
func (g *Group) Join(ctx context.Context) error {
	var attempts []error
	for len(attempts) < g.cfg.retryBudget {
		err := g.join(ctx)
		if err == nil {
			g.fireHook("join", nil)
			return nil
		}
		if !kerr.IsRetriable(err) {
			g.fireHook("join", err)
			return err
		}
		attempts = append(attempts, err)
		g.cluster.DropCoordinator(g.groupID)
	}
	budgetErr := kerr.RetryBudgetExceeded(attempts)
	g.fireHook("join", budgetErr)
	return budgetErr
}

func (g *Group) join(ctx context.Context) error {
	coord, err := g.cluster.GetGroupCoordinator(ctx, g.groupID)
	if err != nil {
		return err
	}
	conn := g.cluster.ConnectionFor(coord)

	metadata := kmsg.ProtocolMetadata{Topics: g.subscribed}.AppendTo(nil)
	req := &kmsg.JoinGroupRequest{
		GroupID:          g.groupID,
		SessionTimeoutMs: int32(g.cfg.sessionTimeout.Milliseconds()),
		MemberID:         g.memberID,
		ProtocolType:     "consumer",
		GroupProtocols: []kmsg.GroupProtocol{
			{Name: g.protocol, Metadata: metadata},
		},
	}
	raw, err := conn.Request(ctx, req)
	if err != nil {
		return err
	}
	resp := raw.(*kmsg.JoinGroupResponse)
	if err := kerr.ErrorForCode(resp.ErrorCode); err != nil {
		if err == kerr.UnknownMemberID {
			g.memberID = ""
		}
		return err
	}

	g.generationID = resp.GenerationID
	g.leaderID = resp.LeaderID
	g.memberID = resp.MemberID
	g.state = GroupStateJoined

	var groupAssignment []kmsg.SyncGroupAssignment
	if resp.IsLeader() {
		groupAssignment, err = g.computeAssignment(ctx, resp.Members)
		if err != nil {
			return err
		}
	}

	return g.sync(ctx, coord, groupAssignment)
}

func (g *Group) computeAssignment(ctx context.Context, members []kmsg.JoinGroupMember) ([]kmsg.SyncGroupAssignment, error) {
	memberIDs := make([]string, 0, len(members))
	topicSet := make(map[string]bool)
	for _, m := range members {
		memberIDs = append(memberIDs, m.MemberID)
		meta, err := kmsg.ReadProtocolMetadata(m.Metadata)
		if err != nil {
			return nil, err
		}
		for _, t := range meta.Topics {
			topicSet[t] = true
		}
	}

	partitionsByTopic := make(map[string][]int32, len(topicSet))
	for topic := range topicSet {
		if _, err := g.cluster.GetLeader(ctx, topic, 0); err != nil && !kerr.IsRetriable(err) {
			// topic may not exist yet; skip rather than fail the whole join
			continue
		}
		partitionsByTopic[topic] = g.cluster.ListPartitions(topic)
	}

	assigned := assignRoundRobin(memberIDs, partitionsByTopic)

	out := make([]kmsg.SyncGroupAssignment, 0, len(assigned))
	for _, memberID := range memberIDs {
		topics := assigned[memberID]
		var tp []kmsg.TopicPartitions
		for topic, parts := range topics {
			tp = append(tp, kmsg.TopicPartitions{Topic: topic, Partitions: parts})
		}
		encoded := kmsg.GroupMemberAssignment{Topics: tp}.AppendTo(nil)
		out = append(out, kmsg.SyncGroupAssignment{MemberID: memberID, Assignment: encoded})
	}
	return out, nil
}

func (g *Group) sync(ctx context.Context, coord BrokerMetadata, groupAssignment []kmsg.SyncGroupAssignment) error {
	conn := g.cluster.ConnectionFor(coord)
	req := &kmsg.SyncGroupRequest{
		GroupID:         g.groupID,
		GenerationID:    g.generationID,
		MemberID:        g.memberID,
		GroupAssignment: groupAssignment,
	}
	raw, err := conn.Request(ctx, req)
	if err != nil {
		return err
	}
	resp := raw.(*kmsg.SyncGroupResponse)
	if err := kerr.ErrorForCode(resp.ErrorCode); err != nil {
		return err
	}

	assignment, err := kmsg.ReadGroupMemberAssignment(resp.MemberAssignment)
	if err != nil {
		return err
	}
	parts := make(map[string][]int32, len(assignment.Topics))
	for _, t := range assignment.Topics {
		parts[t.Topic] = t.Partitions
	}
	g.assignment = parts
	g.state = GroupStateStable
	g.lastHeartbeat = time.Now()
	g.fireHook("sync", nil)
	return nil
}

// Heartbeat keeps this membership alive (§4.6).
func (g *Group) Heartbeat(ctx context.Context) error {
	coord, err := g.cluster.GetGroupCoordinator(ctx, g.groupID)
	if err != nil {
		return err
	}
	conn := g.cluster.ConnectionFor(coord)
	req := &kmsg.HeartbeatRequest{GroupID: g.groupID, GenerationID: g.generationID, MemberID: g.memberID}
	raw, err := conn.Request(ctx, req)
	if err != nil {
		return err
	}
	resp := raw.(*kmsg.HeartbeatResponse)
	err = kerr.ErrorForCode(resp.ErrorCode)
	switch err {
	case nil:
		g.lastHeartbeat = time.Now()
		g.fireHook("heartbeat", nil)
		return nil
	case kerr.RebalanceInProgress:
		g.state = GroupStateUnjoined
		g.fireHook("rebalance", err)
		return err
	case kerr.IllegalGeneration, kerr.UnknownMemberID:
		g.memberID = ""
		g.generationID = 0
		g.state = GroupStateUnjoined
		g.fireHook("rebalance", err)
		return err
	case kerr.GroupCoordinatorNotAvailable, kerr.NotCoordinatorForGroup:
		g.cluster.DropCoordinator(g.groupID)
		g.state = GroupStateUnjoined
		g.fireHook("rebalance", err)
		return err
	default:
		return err
	}
}

// Leave relinquishes membership on a best-effort basis and always clears
// local state (§4.6).
func (g *Group) Leave(ctx context.Context) {
	if g.memberID != "" {
		if coord, err := g.cluster.GetGroupCoordinator(ctx, g.groupID); err == nil {
			conn := g.cluster.ConnectionFor(coord)
			conn.Request(ctx, &kmsg.LeaveGroupRequest{GroupID: g.groupID, MemberID: g.memberID})
		}
	}
	g.fireHook("leave", nil)
	g.memberID = ""
	g.generationID = 0
	g.assignment = nil
	g.state = GroupStateUnjoined
}

// AssignedPartitions returns the most recent SyncGroup result (§4.6).
func (g *Group) AssignedPartitions() map[string][]int32 {
	return g.assignment
}

// IsMember reports whether the group currently holds a valid membership.
func (g *Group) IsMember() bool { return g.state == GroupStateStable }

// HeartbeatDue reports whether enough time has passed since the last
// successful heartbeat that one should be sent now (§4.7
// SendHeartbeatIfNecessary).
func (g *Group) HeartbeatDue(now time.Time) bool {
	deadline := g.cfg.sessionTimeout - heartbeatGrace
	return now.Sub(g.lastHeartbeat) >= deadline
}
