package kmsg

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
)

func TestMessageRoundTrip(t *testing.T) {
	var set []byte
	set = AppendMessage(set, 41, Message{Key: []byte("k"), Value: []byte("v")})
	set = AppendMessage(set, 42, Message{Key: nil, Value: []byte("hello")})

	msgs, err := DecodeMessageSet(set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Message{
		{Offset: 41, Key: []byte("k"), Value: []byte("v")},
		{Offset: 42, Key: nil, Value: []byte("hello")},
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Fatalf("decoded message set mismatch (-want +got):\n%s\ndump: %s", diff, spew.Sdump(msgs))
	}
}

func TestCorruptMessageCRC(t *testing.T) {
	var set []byte
	set = AppendMessage(set, 0, Message{Key: []byte("k"), Value: []byte("v")})

	// Flip a bit well inside the encoded message body (past offset+size).
	set[20] ^= 0xFF

	_, err := DecodeMessageSet(set)
	if err != ErrCorruptMessage {
		t.Fatalf("err = %v, want ErrCorruptMessage, dump of set: %s", err, spew.Sdump(set))
	}
}

func TestTruncatedTrailingMessageDropped(t *testing.T) {
	var set []byte
	set = AppendMessage(set, 0, Message{Value: []byte("whole")})
	full := AppendMessage(nil, 1, Message{Value: []byte("partial-payload")})
	// Simulate the server truncating the final message mid-way through
	// its body, as the fetch byte budget allows.
	set = append(set, full[:len(full)-4]...)

	msgs, err := DecodeMessageSet(set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (truncated trailing message dropped)", len(msgs))
	}
	if string(msgs[0].Value) != "whole" {
		t.Fatalf("unexpected message: %+v", msgs[0])
	}
}
