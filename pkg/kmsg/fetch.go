package kmsg

import "github.com/gokafka9/kafka9/pkg/kbin"

// FetchPartitionRequest is one partition's request block within a
// FetchRequest (§4.4 step 2).
type FetchPartitionRequest struct {
	Partition int32
	Offset    int64
	MaxBytes  int32
}

// FetchTopicRequest groups a topic's partition blocks.
type FetchTopicRequest struct {
	Topic      string
	Partitions []FetchPartitionRequest
}

// FetchRequest (API key 1) is addressed to exactly one broker and carries
// every partition that broker leads among the partitions the caller wants
// (§4.4). AppendTo always writes replica_id -1, as a consumer: a real replica-fetcher
// would send its own broker ID here, but that path belongs to the broker
// implementation this client never plays.
type FetchRequest struct {
	MaxWaitMs int32
	MinBytes  int32
	Topics    []FetchTopicRequest
}

func (*FetchRequest) Key() int16     { return ApiKeyFetch }
func (*FetchRequest) Version() int16 { return 0 }

func (r *FetchRequest) AppendTo(dst []byte) []byte {
	w := kbin.NewWriter(dst)
	w.Int32(-1) // replica_id
	w.Int32(r.MaxWaitMs)
	w.Int32(r.MinBytes)
	w.ArrayLen(len(r.Topics))
	for _, t := range r.Topics {
		w.String(t.Topic)
		w.ArrayLen(len(t.Partitions))
		for _, p := range t.Partitions {
			w.Int32(p.Partition)
			w.Int64(p.Offset)
			w.Int32(p.MaxBytes)
		}
	}
	return w.Bytes()
}

func (*FetchRequest) ResponseKind() Response { return new(FetchResponse) }

// FetchPartitionResponse is one partition's reply: an error code, the
// leader's current high-watermark, and the raw message-set bytes (decoded
// separately via DecodeMessageSet so the Fetch Operation can apply its
// truncation and per-partition ordering rules before the caller ever sees
// a Message, §4.4 step 5).
type FetchPartitionResponse struct {
	Partition     int32
	ErrorCode     int16
	HighWatermark int64
	MessageSet    []byte
}

// FetchTopicResponse groups a topic's partition replies.
type FetchTopicResponse struct {
	Topic      string
	Partitions []FetchPartitionResponse
}

// FetchResponse answers a FetchRequest, one block per requested partition.
type FetchResponse struct {
	Topics []FetchTopicResponse
}

func (f *FetchResponse) ReadFrom(src []byte) error {
	r := &kbin.Reader{Src: src}
	n := r.ArrayLen()
	f.Topics = make([]FetchTopicResponse, n)
	for i := range f.Topics {
		t := &f.Topics[i]
		t.Topic = r.String()
		np := r.ArrayLen()
		t.Partitions = make([]FetchPartitionResponse, np)
		for j := range t.Partitions {
			p := &t.Partitions[j]
			p.Partition = r.Int32()
			p.ErrorCode = r.Int16()
			p.HighWatermark = r.Int64()
			size := r.Int32()
			if r.Err != nil {
				return r.Err
			}
			if size < 0 {
				continue
			}
			msgSet := r.Span(int(size))
			if r.Err != nil {
				return r.Err
			}
			buf := make([]byte, len(msgSet))
			copy(buf, msgSet)
			p.MessageSet = buf
		}
	}
	return r.Complete()
}
