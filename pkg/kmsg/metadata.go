package kmsg

import "github.com/gokafka9/kafka9/pkg/kbin"

// MetadataRequest (API key 3) asks any reachable broker for the set of
// brokers and, for an empty Topics list, every topic in the cluster; for
// a non-empty list, only the named topics (§4.3).
type MetadataRequest struct {
	Topics []string
}

func (*MetadataRequest) Key() int16     { return ApiKeyMetadata }
func (*MetadataRequest) Version() int16 { return 0 }

func (r *MetadataRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.StringArray(r.Topics)
	return w.Bytes()
}

func (*MetadataRequest) ResponseKind() Response { return new(MetadataResponse) }

// MetadataBroker is one broker entry in a MetadataResponse (§3 Broker).
type MetadataBroker struct {
	NodeID int32
	Host   string
	Port   int32
}

// MetadataPartition is one partition entry in a MetadataResponse (§3
// Partition).
type MetadataPartition struct {
	ErrorCode   int16
	Partition   int32
	Leader      int32
	Replicas    []int32
	ISR         []int32
}

// MetadataTopic groups a topic's partitions together with the topic-level
// error code (e.g. UnknownTopicOrPartition when the topic does not
// exist).
type MetadataTopic struct {
	ErrorCode  int16
	Topic      string
	Partitions []MetadataPartition
}

// MetadataResponse is the decoded reply to a MetadataRequest.
type MetadataResponse struct {
	Brokers []MetadataBroker
	Topics  []MetadataTopic
}

func (m *MetadataResponse) ReadFrom(src []byte) error {
	r := &kbin.Reader{Src: src}

	nb := r.ArrayLen()
	m.Brokers = make([]MetadataBroker, nb)
	for i := range m.Brokers {
		m.Brokers[i] = MetadataBroker{
			NodeID: r.Int32(),
			Host:   r.String(),
			Port:   r.Int32(),
		}
	}

	nt := r.ArrayLen()
	m.Topics = make([]MetadataTopic, nt)
	for i := range m.Topics {
		t := &m.Topics[i]
		t.ErrorCode = r.Int16()
		t.Topic = r.String()
		np := r.ArrayLen()
		t.Partitions = make([]MetadataPartition, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.ErrorCode = r.Int16()
			p.Partition = r.Int32()
			p.Leader = r.Int32()
			p.Replicas = r.Int32Array()
			p.ISR = r.Int32Array()
		}
	}

	return r.Complete()
}

// GroupCoordinatorRequest (API key 10) locates the broker acting as group
// coordinator for a given consumer group (§4.3, §4.6).
type GroupCoordinatorRequest struct {
	GroupID string
}

func (*GroupCoordinatorRequest) Key() int16     { return ApiKeyGroupCoordinator }
func (*GroupCoordinatorRequest) Version() int16 { return 0 }

func (r *GroupCoordinatorRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.String(r.GroupID)
	return w.Bytes()
}

func (*GroupCoordinatorRequest) ResponseKind() Response { return new(GroupCoordinatorResponse) }

// GroupCoordinatorResponse names the broker that owns a group's
// membership and offsets.
type GroupCoordinatorResponse struct {
	ErrorCode       int16
	CoordinatorID   int32
	CoordinatorHost string
	CoordinatorPort int32
}

func (g *GroupCoordinatorResponse) ReadFrom(src []byte) error {
	r := &kbin.Reader{Src: src}
	g.ErrorCode = r.Int16()
	g.CoordinatorID = r.Int32()
	g.CoordinatorHost = r.String()
	g.CoordinatorPort = r.Int32()
	return r.Complete()
}
