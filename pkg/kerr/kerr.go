// Package kerr classifies the int16 error codes a Kafka 0.9 broker embeds
// in every response, and groups them into the behavioral kinds the core
// reacts to: transport, topology, rebalance, data-integrity, offset, and
// fatal.
package kerr

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// KError is a broker-supplied error code. See
// https://cwiki.apache.org/confluence/display/KAFKA/A+Guide+To+The+Kafka+Protocol#AGuideToTheKafkaProtocol-ErrorCodes
type KError int16

const (
	NoError                         KError = 0
	Unknown                         KError = -1
	OffsetOutOfRange                KError = 1
	CorruptMessage                  KError = 2
	UnknownTopicOrPartition         KError = 3
	InvalidMessageSize              KError = 4
	LeaderNotAvailable              KError = 5
	NotLeaderForPartition           KError = 6
	RequestTimedOut                 KError = 7
	BrokerNotAvailable              KError = 8
	ReplicaNotAvailable             KError = 9
	MessageSizeTooLarge             KError = 10
	StaleControllerEpochCode        KError = 11
	OffsetMetadataTooLarge          KError = 12
	NetworkException                KError = 13
	GroupLoadInProgress             KError = 14
	GroupCoordinatorNotAvailable    KError = 15
	NotCoordinatorForGroup          KError = 16
	InvalidTopic                    KError = 17
	RecordListTooLarge              KError = 18
	NotEnoughReplicas               KError = 19
	NotEnoughReplicasAfterAppend    KError = 20
	InvalidRequiredAcks             KError = 21
	IllegalGeneration                KError = 22
	InconsistentGroupProtocol       KError = 23
	InvalidGroupID                  KError = 24
	UnknownMemberID                 KError = 25
	InvalidSessionTimeout           KError = 26
	RebalanceInProgress             KError = 27
	InvalidCommitOffsetSize         KError = 28
	TopicAuthorizationFailed        KError = 29
	GroupAuthorizationFailed        KError = 30
	ClusterAuthorizationFailed      KError = 31
	InvalidTimestamp                KError = 32
	UnsupportedSASLMechanism        KError = 33
	IllegalSASLState                KError = 34
	UnsupportedVersion              KError = 35
)

var messages = map[KError]string{
	NoError:                      "kafka: not an error",
	Unknown:                      "kafka server: unexpected (unknown) server error",
	OffsetOutOfRange:             "kafka server: the requested offset is outside the range of offsets maintained by the server for the given topic/partition",
	CorruptMessage:               "kafka server: message contents does not match its CRC",
	UnknownTopicOrPartition:      "kafka server: request was for a topic or partition that does not exist on this broker",
	InvalidMessageSize:           "kafka server: the message has a negative size",
	LeaderNotAvailable:           "kafka server: in the middle of a leadership election, there is currently no leader for this partition and hence it is unavailable for writes",
	NotLeaderForPartition:        "kafka server: tried to send a message to a replica that is not the leader for some partition, metadata is out of date",
	RequestTimedOut:              "kafka server: request exceeded the user-specified time limit in the request",
	BrokerNotAvailable:           "kafka server: broker not available",
	ReplicaNotAvailable:          "kafka server: replica information not available, one or more brokers are down",
	MessageSizeTooLarge:          "kafka server: message was too large, server rejected it to avoid allocation error",
	StaleControllerEpochCode:     "kafka server: stale controller epoch code",
	OffsetMetadataTooLarge:       "kafka server: specified a string larger than the configured maximum for offset metadata",
	NetworkException:             "kafka server: the server disconnected before a response was received",
	GroupLoadInProgress:          "kafka server: the broker is still loading offsets after a leader change for that offset's topic partition",
	GroupCoordinatorNotAvailable: "kafka server: the group's coordinator is not available",
	NotCoordinatorForGroup:       "kafka server: request was for a consumer group that is not coordinated by this broker",
	InvalidTopic:                 "kafka server: the request attempted to perform an operation on an invalid topic",
	RecordListTooLarge:           "kafka server: the request included a message batch larger than the configured segment size on the server",
	NotEnoughReplicas:            "kafka server: messages are rejected since there are fewer in-sync replicas than required",
	NotEnoughReplicasAfterAppend: "kafka server: messages are written to the log, but to fewer in-sync replicas than required",
	InvalidRequiredAcks:          "kafka server: the number of required acks is invalid",
	IllegalGeneration:            "kafka server: the provided generation id is not the current generation",
	InconsistentGroupProtocol:    "kafka server: the provided group protocol is incompatible with the other members",
	InvalidGroupID:               "kafka server: the provided group id was empty",
	UnknownMemberID:              "kafka server: the provided member is not known in the current generation",
	InvalidSessionTimeout:        "kafka server: the provided session timeout is outside the allowed range",
	RebalanceInProgress:          "kafka server: a rebalance for the group is in progress, please re-join the group",
	InvalidCommitOffsetSize:      "kafka server: the provided commit metadata was too large",
	TopicAuthorizationFailed:     "kafka server: the client is not authorized to access this topic",
	GroupAuthorizationFailed:     "kafka server: the client is not authorized to access this group",
	ClusterAuthorizationFailed:   "kafka server: the client is not authorized to send this request type",
	InvalidTimestamp:             "kafka server: the timestamp of the message is out of acceptable range",
	UnsupportedSASLMechanism:     "kafka server: the broker does not support the requested SASL mechanism",
	IllegalSASLState:             "kafka server: request is not valid given the current SASL state",
	UnsupportedVersion:           "kafka server: the version of API is not supported",
}

func (e KError) Error() string {
	if m, ok := messages[e]; ok {
		return m
	}
	return fmt.Sprintf("kafka server: unknown error, code = %d", int16(e))
}

// ErrorForCode converts a wire error code into an error, returning nil for
// NoError as every kmsg response decoder expects.
func ErrorForCode(code int16) error {
	e := KError(code)
	if e == NoError {
		return nil
	}
	return e
}

// Kind classifies an error the way §7 of the design does, so callers can
// decide how to react without a long type switch at every call site.
type Kind int

const (
	KindOther Kind = iota
	KindTransport
	KindTopology
	KindRebalance
	KindDataIntegrity
	KindOffset
	KindFatal
)

// ClassOf returns the behavioral kind for a KError. Non-KError errors
// (connection failures, context cancellation) are KindOther; callers that
// need to distinguish transport failures check for the sentinel errors in
// package kgo directly, since those never cross the wire as codes.
func ClassOf(err error) Kind {
	ke, ok := err.(KError)
	if !ok {
		return KindOther
	}
	switch ke {
	case LeaderNotAvailable, NotLeaderForPartition, UnknownTopicOrPartition,
		GroupCoordinatorNotAvailable, NotCoordinatorForGroup, GroupLoadInProgress:
		return KindTopology
	case RebalanceInProgress, IllegalGeneration, UnknownMemberID:
		return KindRebalance
	case CorruptMessage, InvalidMessageSize:
		return KindDataIntegrity
	case OffsetOutOfRange:
		return KindOffset
	case Unknown:
		return KindFatal
	default:
		return KindOther
	}
}

// IsRetriable reports whether a topology error is worth retrying after a
// cache invalidation and bounded backoff, per §7's propagation policy.
func IsRetriable(err error) bool {
	return ClassOf(err) == KindTopology
}

// IsRebalance reports whether err should cause the Consumer Group to
// reset its membership and rejoin, per §4.6's Heartbeat/CommitOffsets
// error handling.
func IsRebalance(err error) bool {
	return ClassOf(err) == KindRebalance
}

// RetryBudgetExceeded wraps the accumulated attempts of a bounded retry
// loop (coordinator resolution, metadata refresh) into a single fatal
// error, the way sarama's errors.go wraps encode/decode failures with
// hashicorp/go-multierror.
func RetryBudgetExceeded(attempts []error) error {
	if len(attempts) == 0 {
		return nil
	}
	merr := multierror.Append(nil, attempts...)
	merr.ErrorFormat = func(es []error) string {
		if len(es) == 1 {
			return es[0].Error()
		}
		return fmt.Sprintf("retry budget exceeded after %d attempts, last error: %v", len(es), es[len(es)-1])
	}
	return merr.ErrorOrNil()
}
