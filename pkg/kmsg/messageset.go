package kmsg

import (
	"bytes"
	"errors"
	"hash/crc32"
	"io/ioutil"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4"

	"github.com/gokafka9/kafka9/pkg/kbin"
)

// Compression names the low 3 bits of a v0 message's attributes byte.
type Compression int8

const (
	CompressionNone   Compression = 0
	CompressionGZIP   Compression = 1
	CompressionSnappy Compression = 2
	CompressionLZ4    Compression = 3

	compressionMask = 0x07
)

// ErrCorruptMessage is raised when a decoded message's CRC does not match
// the bytes it covers (§4.1).
var ErrCorruptMessage = errors.New("kmsg: message failed CRC validation")

// ErrUnsupportedCompression is raised when a message names a compression
// codec this decoder has no registry entry for.
var ErrUnsupportedCompression = errors.New("kmsg: unsupported compression codec")

// Message is one decoded v0 message: crc | magic=0 | attributes | key |
// value. It never appears alone on the wire; it is always one element of
// a MessageSet.
type Message struct {
	Offset      int64
	Attributes  int8
	Key         []byte
	Value       []byte
}

// AppendMessage encodes one v0 message, preceded by its offset and size,
// calculating and writing its CRC. Used to construct message sets for test
// fixtures; the core otherwise only decodes messages (no Produce path is
// implemented, §1).
func AppendMessage(dst []byte, offset int64, m Message) []byte {
	w := kbin.NewWriter(dst)
	w.Int64(offset)

	body := kbin.NewWriter(nil)
	body.Int8(0) // magic
	body.Int8(m.Attributes)
	body.Bytes(m.Key)
	body.Bytes(m.Value)
	encoded := body.Bytes()

	crc := crc32.ChecksumIEEE(encoded)
	msg := kbin.NewWriter(nil)
	msg.Int32(int32(crc))
	msg.Raw(encoded)
	full := msg.Bytes()

	w.Int32(int32(len(full)))
	w.Raw(full)
	return w.Bytes()
}

// DecodeMessageSet decodes a Fetch response's message-set bytes into a
// flat, offset-ordered slice of Messages, expanding any compressed wrapper
// message into its inner message set (DOMAIN STACK: compression decode
// registry) and dropping a trailing message truncated by the fetch byte
// budget (§4.1, §4.4 edge cases) instead of erroring.
func DecodeMessageSet(src []byte) ([]Message, error) {
	var out []Message
	for len(src) > 0 {
		if len(src) < 12 { // offset:int64 + size:int32, minimum partial-message header
			break // truncated trailing entry; silently dropped
		}
		r := &kbin.Reader{Src: src}
		offset := r.Int64()
		size := r.Int32()
		if r.Err != nil {
			break
		}
		if size < 0 || len(r.Src) < int(size) {
			break // truncated trailing message
		}
		msgBytes := r.Span(int(size))
		consumed := len(src) - len(r.Src)
		src = src[consumed:]

		decoded, err := decodeOneMessage(offset, msgBytes)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded...)
	}
	return out, nil
}

func decodeOneMessage(offset int64, raw []byte) ([]Message, error) {
	r := &kbin.Reader{Src: raw}
	crc := r.Int32()
	rest := r.Src
	if r.Err != nil {
		return nil, nil // too short to even hold a CRC: truncated trailing entry
	}
	if uint32(crc) != crc32.ChecksumIEEE(rest) {
		return nil, ErrCorruptMessage
	}

	br := &kbin.Reader{Src: rest}
	_ = br.Int8() // magic, always 0 for v0
	attrs := br.Int8()
	key := br.Bytes()
	value := br.Bytes()
	if br.Err != nil {
		return nil, nil
	}

	codec := Compression(attrs & compressionMask)
	if codec == CompressionNone {
		return []Message{{Offset: offset, Attributes: attrs, Key: key, Value: value}}, nil
	}

	inner, err := decompress(codec, value)
	if err != nil {
		return nil, err
	}
	return DecodeMessageSet(inner)
}

// decompress dispatches on the compression codec named by a message's
// attributes byte, using klauspost/compress's drop-in gzip.Reader (faster
// than the standard library's for the batch sizes Fetch responses carry)
// alongside golang/snappy and pierrec/lz4 for the other two codecs a 0.9
// wire message can name.
func decompress(codec Compression, payload []byte) ([]byte, error) {
	switch codec {
	case CompressionGZIP:
		gz, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return ioutil.ReadAll(gz)
	case CompressionSnappy:
		return snappyDecode(payload)
	case CompressionLZ4:
		lr := lz4.NewReader(bytes.NewReader(payload))
		return ioutil.ReadAll(lr)
	default:
		return nil, ErrUnsupportedCompression
	}
}

// snappyDecode handles both the xerial-framed snappy Kafka historically
// produces and a plain snappy block, falling back to the latter if the
// xerial magic header is absent.
func snappyDecode(payload []byte) ([]byte, error) {
	const xerialMagic = "\x82SNAPPY\x00"
	if len(payload) < len(xerialMagic) || string(payload[:len(xerialMagic)]) != xerialMagic {
		return snappy.Decode(nil, payload)
	}
	var out []byte
	pos := len(xerialMagic) + 8 // magic + version(4) + compat-version(4)
	for pos < len(payload) {
		if pos+4 > len(payload) {
			break
		}
		chunkLen := int(uint32(payload[pos])<<24 | uint32(payload[pos+1])<<16 | uint32(payload[pos+2])<<8 | uint32(payload[pos+3]))
		pos += 4
		if pos+chunkLen > len(payload) {
			break
		}
		decoded, err := snappy.Decode(nil, payload[pos:pos+chunkLen])
		if err != nil {
			return nil, err
		}
		out = append(out, decoded...)
		pos += chunkLen
	}
	return out, nil
}
