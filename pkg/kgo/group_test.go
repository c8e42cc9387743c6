package kgo

import (
	"testing"
	"time"
)

func newTestGroup() *Group {
	c := defaultCfg()
	c.sessionTimeout = 10 * time.Second
	return &Group{cfg: &c, groupID: "G", protocol: "standard"}
}

func TestSubscribeDeduplicates(t *testing.T) {
	g := newTestGroup()
	g.Subscribe("orders")
	g.Subscribe("orders")
	g.Subscribe("payments")

	if len(g.subscribed) != 2 {
		t.Fatalf("expected 2 distinct subscriptions, got %v", g.subscribed)
	}
}

func TestHeartbeatDue(t *testing.T) {
	g := newTestGroup()
	g.lastHeartbeat = time.Now()
	if g.HeartbeatDue(time.Now()) {
		t.Fatalf("heartbeat should not be due immediately after one succeeded")
	}

	g.lastHeartbeat = time.Now().Add(-9 * time.Second)
	if !g.HeartbeatDue(time.Now()) {
		t.Fatalf("expected heartbeat due once within grace of session timeout")
	}
}

func TestIsMember(t *testing.T) {
	g := newTestGroup()
	if g.IsMember() {
		t.Fatalf("expected not a member before join")
	}
	g.state = GroupStateStable
	if !g.IsMember() {
		t.Fatalf("expected member once state is STABLE")
	}
}
