package kbin

import "testing"

func TestPrimitiveRoundTrip(t *testing.T) {
	w := NewWriter(nil)
	w.Int8(-12)
	w.Int16(-4242)
	w.Int32(123456789)
	w.Int64(-9123456789012345)
	w.String("hello")
	w.Bytes([]byte("payload"))
	w.ArrayLen(3)

	r := &Reader{Src: w.Bytes()}
	if got := r.Int8(); got != -12 {
		t.Fatalf("int8 = %d, want -12", got)
	}
	if got := r.Int16(); got != -4242 {
		t.Fatalf("int16 = %d, want -4242", got)
	}
	if got := r.Int32(); got != 123456789 {
		t.Fatalf("int32 = %d, want 123456789", got)
	}
	if got := r.Int64(); got != -9123456789012345 {
		t.Fatalf("int64 = %d, want -9123456789012345", got)
	}
	if got := r.String(); got != "hello" {
		t.Fatalf("string = %q, want hello", got)
	}
	if got := string(r.Bytes()); got != "payload" {
		t.Fatalf("bytes = %q, want payload", got)
	}
	if got := r.ArrayLen(); got != 3 {
		t.Fatalf("arraylen = %d, want 3", got)
	}
	if err := r.Complete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNullSentinels(t *testing.T) {
	w := NewWriter(nil)
	w.NullableString(nil)
	w.Bytes(nil)

	r := &Reader{Src: w.Bytes()}
	if got := r.NullableString(); got != nil {
		t.Fatalf("nullable string = %v, want nil", got)
	}
	if got := r.Bytes(); got != nil {
		t.Fatalf("null bytes = %v, want nil", got)
	}
}

func TestUnderflowIsSticky(t *testing.T) {
	r := &Reader{Src: []byte{0, 1}} // claims to be an int32 but only has 2 bytes
	_ = r.Int32()
	if r.Err != ErrNotEnoughData {
		t.Fatalf("err = %v, want ErrNotEnoughData", r.Err)
	}
	// Further reads must not panic and must preserve the sticky error.
	_ = r.String()
	if r.Err != ErrNotEnoughData {
		t.Fatalf("err after further reads = %v, want ErrNotEnoughData", r.Err)
	}
}

func TestStringArrayRoundTrip(t *testing.T) {
	w := NewWriter(nil)
	w.StringArray([]string{"a", "bb", "ccc"})
	w.Int32Array([]int32{1, 2, 3})

	r := &Reader{Src: w.Bytes()}
	got := r.StringArray()
	want := []string{"a", "bb", "ccc"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("StringArray[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	ints := r.Int32Array()
	for i, v := range []int32{1, 2, 3} {
		if ints[i] != v {
			t.Fatalf("Int32Array[%d] = %d, want %d", i, ints[i], v)
		}
	}
	if err := r.Complete(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
