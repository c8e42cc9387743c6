package kmsg

import "testing"

func TestProtocolMetadataRoundTrip(t *testing.T) {
	encoded := ProtocolMetadata{Topics: []string{"orders", "payments"}}.AppendTo(nil)
	decoded, err := ReadProtocolMetadata(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded.Topics) != 2 || decoded.Topics[0] != "orders" || decoded.Topics[1] != "payments" {
		t.Fatalf("unexpected topics: %v", decoded.Topics)
	}
}

func TestGroupMemberAssignmentRoundTrip(t *testing.T) {
	in := GroupMemberAssignment{
		Topics: []TopicPartitions{
			{Topic: "orders", Partitions: []int32{0, 1, 2}},
			{Topic: "payments", Partitions: []int32{3}},
		},
	}
	encoded := in.AppendTo(nil)
	out, err := ReadGroupMemberAssignment(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(out.Topics))
	}
	if out.Topics[0].Topic != "orders" || len(out.Topics[0].Partitions) != 3 {
		t.Fatalf("unexpected first topic: %+v", out.Topics[0])
	}
	if out.Topics[1].Topic != "payments" || out.Topics[1].Partitions[0] != 3 {
		t.Fatalf("unexpected second topic: %+v", out.Topics[1])
	}
}

func TestJoinGroupResponseIsLeader(t *testing.T) {
	r := &JoinGroupResponse{LeaderID: "m-1", MemberID: "m-1"}
	if !r.IsLeader() {
		t.Fatalf("expected IsLeader() true when leader_id == member_id")
	}
	r2 := &JoinGroupResponse{LeaderID: "m-1", MemberID: "m-2"}
	if r2.IsLeader() {
		t.Fatalf("expected IsLeader() false when leader_id != member_id")
	}
}
