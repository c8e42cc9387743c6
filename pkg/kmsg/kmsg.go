// Package kmsg defines the request and response types of the Kafka 0.9
// wire protocol subset this client speaks (§6), one Go type per API key,
// each pairing an AppendTo encoder with a ReadFrom decoder. Each Request
// names its own response type through ResponseKind, and package kgo calls
// both through the Request and Response interfaces; there is no switch on
// api_key.
package kmsg

import "github.com/gokafka9/kafka9/pkg/kbin"

// Request is implemented by every request body in this package. Version
// is fixed per type at the lowest version that covers everything this
// client subset needs; the 0.9-era broker this client targets does not
// require client-side version negotiation.
type Request interface {
	Key() int16
	Version() int16
	AppendTo(dst []byte) []byte
	ResponseKind() Response
}

// Response is implemented by every response body in this package.
type Response interface {
	ReadFrom(src []byte) error
}

// API keys, named for readability at call sites.
const (
	ApiKeyProduce           int16 = 0
	ApiKeyFetch             int16 = 1
	ApiKeyOffsets           int16 = 2
	ApiKeyMetadata          int16 = 3
	ApiKeyOffsetCommit      int16 = 8
	ApiKeyOffsetFetch       int16 = 9
	ApiKeyGroupCoordinator  int16 = 10
	ApiKeyJoinGroup         int16 = 11
	ApiKeyHeartbeat         int16 = 12
	ApiKeyLeaveGroup        int16 = 13
	ApiKeySyncGroup         int16 = 14
)

// AppendRequestHeader writes the request envelope prefix shared by every
// API: api_key, api_version, correlation_id, client_id. The caller
// prepends the int32 size after the body is fully assembled, since the
// size depends on the body's own encoded length.
func AppendRequestHeader(dst []byte, apiKey, apiVersion int16, correlationID int32, clientID string) []byte {
	w := kbin.NewWriter(dst)
	w.Int16(apiKey)
	w.Int16(apiVersion)
	w.Int32(correlationID)
	w.String(clientID)
	return w.Bytes()
}
