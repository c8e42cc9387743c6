package kmsg

import "github.com/gokafka9/kafka9/pkg/kbin"

// ProtocolMetadata is the embedded subscription encoding every member
// advertises inside a JoinGroupRequest's GroupProtocols, and that the
// group leader receives back for every member in JoinGroupResponse
// (§6 "Embedded subscription encoding"): version | topics | user_data.
type ProtocolMetadata struct {
	Version  int16
	Topics   []string
	UserData []byte
}

// AppendTo encodes the embedded protocol metadata bytes.
func (m ProtocolMetadata) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int16(m.Version)
	w.StringArray(m.Topics)
	w.Bytes(m.UserData)
	return w.Bytes()
}

// ReadProtocolMetadata decodes bytes previously produced by AppendTo.
func ReadProtocolMetadata(src []byte) (ProtocolMetadata, error) {
	r := &kbin.Reader{Src: src}
	m := ProtocolMetadata{
		Version: r.Int16(),
		Topics:  r.StringArray(),
	}
	m.UserData = r.Bytes()
	return m, r.Complete()
}

// GroupMemberAssignment is the embedded assignment encoding carried inside
// SyncGroupRequest (one per member, set by the leader) and
// SyncGroupResponse (just this member's own assignment): §6 "Embedded
// assignment encoding".
type GroupMemberAssignment struct {
	Version  int16
	Topics   []TopicPartitions
	UserData []byte
}

// TopicPartitions names one topic's assigned partition IDs.
type TopicPartitions struct {
	Topic      string
	Partitions []int32
}

func (a GroupMemberAssignment) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int16(a.Version)
	w.ArrayLen(len(a.Topics))
	for _, t := range a.Topics {
		w.String(t.Topic)
		w.Int32Array(t.Partitions)
	}
	w.Bytes(a.UserData)
	return w.Bytes()
}

func ReadGroupMemberAssignment(src []byte) (GroupMemberAssignment, error) {
	r := &kbin.Reader{Src: src}
	var a GroupMemberAssignment
	a.Version = r.Int16()
	n := r.ArrayLen()
	a.Topics = make([]TopicPartitions, n)
	for i := range a.Topics {
		a.Topics[i].Topic = r.String()
		a.Topics[i].Partitions = r.Int32Array()
	}
	a.UserData = r.Bytes()
	return a, r.Complete()
}

// GroupProtocol is one entry of JoinGroupRequest.GroupProtocols: a
// protocol name ("standard", per §3) paired with that protocol's encoded
// ProtocolMetadata.
type GroupProtocol struct {
	Name     string
	Metadata []byte
}

// JoinGroupRequest (API key 11) begins or rejoins group membership
// (§4.6 step 2).
type JoinGroupRequest struct {
	GroupID        string
	SessionTimeoutMs int32
	MemberID       string
	ProtocolType   string
	GroupProtocols []GroupProtocol
}

func (*JoinGroupRequest) Key() int16     { return ApiKeyJoinGroup }
func (*JoinGroupRequest) Version() int16 { return 0 }

func (r *JoinGroupRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.GroupID)
	w.Int32(r.SessionTimeoutMs)
	w.String(r.MemberID)
	w.String(r.ProtocolType)
	w.ArrayLen(len(r.GroupProtocols))
	for _, p := range r.GroupProtocols {
		w.String(p.Name)
		w.Bytes(p.Metadata)
	}
	return w.Bytes()
}

func (*JoinGroupRequest) ResponseKind() Response { return new(JoinGroupResponse) }

// JoinGroupMember is one member's raw subscription metadata, returned only
// to the member elected group leader (§4.6 step 3).
type JoinGroupMember struct {
	MemberID string
	Metadata []byte
}

// JoinGroupResponse answers a JoinGroupRequest (§3 Group Membership, §4.6
// step 3).
type JoinGroupResponse struct {
	ErrorCode    int16
	GenerationID int32
	ProtocolName string
	LeaderID     string
	MemberID     string
	Members      []JoinGroupMember
}

func (j *JoinGroupResponse) ReadFrom(src []byte) error {
	r := &kbin.Reader{Src: src}
	j.ErrorCode = r.Int16()
	j.GenerationID = r.Int32()
	j.ProtocolName = r.String()
	j.LeaderID = r.String()
	j.MemberID = r.String()
	n := r.ArrayLen()
	j.Members = make([]JoinGroupMember, n)
	for i := range j.Members {
		j.Members[i].MemberID = r.String()
		j.Members[i].Metadata = r.Bytes()
	}
	return r.Complete()
}

// IsLeader reports whether this member was elected group leader for the
// generation this response describes (§4.6 step 3: leader_id == member_id).
func (j *JoinGroupResponse) IsLeader() bool { return j.LeaderID == j.MemberID }

// SyncGroupAssignment is one entry of SyncGroupRequest.GroupAssignment:
// the leader's computed assignment for one member, pre-encoded as
// GroupMemberAssignment bytes.
type SyncGroupAssignment struct {
	MemberID   string
	Assignment []byte
}

// SyncGroupRequest (API key 14) distributes (or, for non-leaders,
// requests) the generation's partition assignment (§4.6 step 5).
type SyncGroupRequest struct {
	GroupID         string
	GenerationID    int32
	MemberID        string
	GroupAssignment []SyncGroupAssignment
}

func (*SyncGroupRequest) Key() int16     { return ApiKeySyncGroup }
func (*SyncGroupRequest) Version() int16 { return 0 }

func (r *SyncGroupRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.GroupID)
	w.Int32(r.GenerationID)
	w.String(r.MemberID)
	w.ArrayLen(len(r.GroupAssignment))
	for _, a := range r.GroupAssignment {
		w.String(a.MemberID)
		w.Bytes(a.Assignment)
	}
	return w.Bytes()
}

func (*SyncGroupRequest) ResponseKind() Response { return new(SyncGroupResponse) }

// SyncGroupResponse carries this member's own assignment, encoded as a
// GroupMemberAssignment (§6 "Embedded assignment encoding").
type SyncGroupResponse struct {
	ErrorCode        int16
	MemberAssignment []byte
}

func (s *SyncGroupResponse) ReadFrom(src []byte) error {
	r := &kbin.Reader{Src: src}
	s.ErrorCode = r.Int16()
	s.MemberAssignment = r.Bytes()
	return r.Complete()
}

// HeartbeatRequest (API key 12) keeps a membership alive between rebalance
// cycles (§4.6).
type HeartbeatRequest struct {
	GroupID      string
	GenerationID int32
	MemberID     string
}

func (*HeartbeatRequest) Key() int16     { return ApiKeyHeartbeat }
func (*HeartbeatRequest) Version() int16 { return 0 }

func (r *HeartbeatRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.GroupID)
	w.Int32(r.GenerationID)
	w.String(r.MemberID)
	return w.Bytes()
}

func (*HeartbeatRequest) ResponseKind() Response { return new(HeartbeatResponse) }

type HeartbeatResponse struct {
	ErrorCode int16
}

func (h *HeartbeatResponse) ReadFrom(src []byte) error {
	r := &kbin.Reader{Src: src}
	h.ErrorCode = r.Int16()
	return r.Complete()
}

// LeaveGroupRequest (API key 13) relinquishes membership on a best-effort
// basis (§4.6 Leave()).
type LeaveGroupRequest struct {
	GroupID  string
	MemberID string
}

func (*LeaveGroupRequest) Key() int16     { return ApiKeyLeaveGroup }
func (*LeaveGroupRequest) Version() int16 { return 0 }

func (r *LeaveGroupRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.GroupID)
	w.String(r.MemberID)
	return w.Bytes()
}

func (*LeaveGroupRequest) ResponseKind() Response { return new(LeaveGroupResponse) }

type LeaveGroupResponse struct {
	ErrorCode int16
}

func (l *LeaveGroupResponse) ReadFrom(src []byte) error {
	r := &kbin.Reader{Src: src}
	l.ErrorCode = r.Int16()
	return r.Complete()
}
