package kgo

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/gokafka9/kafka9/pkg/kbin"
	"github.com/gokafka9/kafka9/pkg/kmsg"
)

// fakeGroupBroker plays coordinator, leader, and sole topic owner for one
// consumer group, replying to exactly the request sequence a single-member
// Consumer.Run issues for one pass over a 20-message log in a single
// partition (a one-partition variant of §8 end-to-end scenario 1).
type fakeGroupBroker struct {
	t          *testing.T
	conn       net.Conn
	topic      string
	memberID   string
	numMsgs    int
	committed  int64
	apiCounts  map[int16]int
}

func newFakeGroupBroker(t *testing.T, conn net.Conn, topic string, numMsgs int) *fakeGroupBroker {
	return &fakeGroupBroker{t: t, conn: conn, topic: topic, memberID: "member-1", numMsgs: numMsgs, committed: -1, apiCounts: map[int16]int{}}
}

func (b *fakeGroupBroker) run() {
	for {
		corrID, apiKey, body, ok := b.readRequest()
		if !ok {
			return
		}
		b.apiCounts[apiKey]++
		var respBody []byte
		switch apiKey {
		case kmsg.ApiKeyMetadata:
			respBody = b.encodeMetadata()
		case kmsg.ApiKeyGroupCoordinator:
			respBody = b.encodeCoordinator()
		case kmsg.ApiKeyJoinGroup:
			respBody = b.encodeJoinGroup()
		case kmsg.ApiKeySyncGroup:
			respBody = b.encodeSyncGroup()
		case kmsg.ApiKeyOffsetFetch:
			respBody = b.encodeOffsetFetch()
		case kmsg.ApiKeyFetch:
			respBody = b.encodeFetch()
		case kmsg.ApiKeyOffsetCommit:
			respBody = b.encodeOffsetCommit(body)
		case kmsg.ApiKeyLeaveGroup:
			respBody = b.encodeLeaveGroup()
		case kmsg.ApiKeyHeartbeat:
			respBody = b.encodeHeartbeat()
		default:
			b.t.Fatalf("fake broker received unhandled api key %d", apiKey)
		}
		if !b.writeResponse(corrID, respBody) {
			return
		}
	}
}

func (b *fakeGroupBroker) readRequest() (corrID int32, apiKey int16, body []byte, ok bool) {
	var szBuf [4]byte
	if _, err := io.ReadFull(b.conn, szBuf[:]); err != nil {
		return 0, 0, nil, false
	}
	size := binary.BigEndian.Uint32(szBuf[:])
	buf := make([]byte, size)
	if _, err := io.ReadFull(b.conn, buf); err != nil {
		return 0, 0, nil, false
	}
	r := &kbin.Reader{Src: buf}
	apiKey = r.Int16()
	r.Int16() // api_version
	corrID = r.Int32()
	r.String() // client_id
	return corrID, apiKey, r.Remaining(), true
}

func (b *fakeGroupBroker) writeResponse(corrID int32, body []byte) bool {
	w := kbin.NewWriter(nil)
	w.Int32(corrID)
	w.Raw(body)
	full := w.Bytes()
	var szBuf [4]byte
	binary.BigEndian.PutUint32(szBuf[:], uint32(len(full)))
	if _, err := b.conn.Write(szBuf[:]); err != nil {
		return false
	}
	_, err := b.conn.Write(full)
	return err == nil
}

func (b *fakeGroupBroker) encodeMetadata() []byte {
	w := kbin.NewWriter(nil)
	w.ArrayLen(1)
	w.Int32(1)
	w.String("broker1")
	w.Int32(9092)
	w.ArrayLen(1)
	w.Int16(0)
	w.String(b.topic)
	w.ArrayLen(1)
	w.Int16(0)
	w.Int32(0) // partition 0
	w.Int32(1) // leader node 1
	w.Int32Array([]int32{1})
	w.Int32Array([]int32{1})
	return w.Bytes()
}

func (b *fakeGroupBroker) encodeCoordinator() []byte {
	w := kbin.NewWriter(nil)
	w.Int16(0)
	w.Int32(1)
	w.String("broker1")
	w.Int32(9092)
	return w.Bytes()
}

func (b *fakeGroupBroker) encodeJoinGroup() []byte {
	metadata := kmsg.ProtocolMetadata{Topics: []string{b.topic}}.AppendTo(nil)
	w := kbin.NewWriter(nil)
	w.Int16(0)
	w.Int32(1)
	w.String("standard")
	w.String(b.memberID)
	w.String(b.memberID)
	w.ArrayLen(1)
	w.String(b.memberID)
	w.Bytes(metadata)
	return w.Bytes()
}

func (b *fakeGroupBroker) encodeSyncGroup() []byte {
	assignment := kmsg.GroupMemberAssignment{
		Topics: []kmsg.TopicPartitions{{Topic: b.topic, Partitions: []int32{0}}},
	}.AppendTo(nil)
	w := kbin.NewWriter(nil)
	w.Int16(0)
	w.Bytes(assignment)
	return w.Bytes()
}

func (b *fakeGroupBroker) encodeOffsetFetch() []byte {
	w := kbin.NewWriter(nil)
	w.ArrayLen(1)
	w.String(b.topic)
	w.ArrayLen(1)
	w.Int32(0)
	w.Int64(b.committed)
	w.String("")
	w.Int16(0)
	return w.Bytes()
}

func (b *fakeGroupBroker) encodeFetch() []byte {
	var set []byte
	for i := 0; i < b.numMsgs; i++ {
		set = kmsg.AppendMessage(set, int64(i), kmsg.Message{Value: []byte("m" + strconv.Itoa(i))})
	}
	w := kbin.NewWriter(nil)
	w.ArrayLen(1)
	w.String(b.topic)
	w.ArrayLen(1)
	w.Int32(0)
	w.Int16(0)
	w.Int64(int64(b.numMsgs))
	w.Int32(int32(len(set)))
	w.Raw(set)
	return w.Bytes()
}

func (b *fakeGroupBroker) encodeOffsetCommit(body []byte) []byte {
	r := &kbin.Reader{Src: body}
	r.String() // group_id
	r.Int32()  // generation_id
	r.String() // member_id
	nt := r.ArrayLen()
	w := kbin.NewWriter(nil)
	w.ArrayLen(nt)
	for i := 0; i < nt; i++ {
		topic := r.String()
		np := r.ArrayLen()
		w.String(topic)
		w.ArrayLen(np)
		for j := 0; j < np; j++ {
			partition := r.Int32()
			offset := r.Int64()
			r.String() // metadata
			if topic == b.topic && partition == 0 {
				b.committed = offset
			}
			w.Int32(partition)
			w.Int16(0)
		}
	}
	return w.Bytes()
}

func (b *fakeGroupBroker) encodeLeaveGroup() []byte {
	w := kbin.NewWriter(nil)
	w.Int16(0)
	return w.Bytes()
}

func (b *fakeGroupBroker) encodeHeartbeat() []byte {
	w := kbin.NewWriter(nil)
	w.Int16(0)
	return w.Bytes()
}

// TestConsumerRunSingleMemberYieldsAllMessagesAndCommits is a one-partition
// variant of §8 end-to-end scenario 1: a single member, subscribed to one
// topic with one partition, runs to completion over a 20-message log and
// commits its final offset.
func TestConsumerRunSingleMemberYieldsAllMessagesAndCommits(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	defer client.Close()

	const topic = "orders"
	const numMsgs = 20
	broker := newFakeGroupBroker(t, server, topic, numMsgs)
	go broker.run()

	cfg := []Opt{
		WithSeedBrokers("seed:9092"),
		WithGroupID("G"),
		WithSessionTimeout(30 * time.Second),
		WithDialFunc(testDialer(client)),
	}
	consumer := NewConsumer(cfg...)
	consumer.Subscribe(topic, DefaultOffsetEarliest)

	var received []Message
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(m Message) error {
		received = append(received, m)
		if len(received) == numMsgs {
			cancel()
		}
		return nil
	}

	err := consumer.Run(ctx, handler)
	if err != context.Canceled {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if len(received) != numMsgs {
		t.Fatalf("got %d messages, want %d", len(received), numMsgs)
	}
	for i, m := range received {
		if m.Offset != int64(i) || m.Topic != topic || m.Partition != 0 {
			t.Fatalf("unexpected message %d: %+v", i, m)
		}
	}
	if broker.committed != int64(numMsgs-1) {
		t.Fatalf("expected final committed offset %d, got %d", numMsgs-1, broker.committed)
	}
	if broker.apiCounts[kmsg.ApiKeyJoinGroup] != 1 || broker.apiCounts[kmsg.ApiKeySyncGroup] != 1 {
		t.Fatalf("expected exactly one join/sync round, got %+v", broker.apiCounts)
	}
	if broker.apiCounts[kmsg.ApiKeyLeaveGroup] != 1 {
		t.Fatalf("expected Shutdown to leave the group exactly once, got %d", broker.apiCounts[kmsg.ApiKeyLeaveGroup])
	}
}
