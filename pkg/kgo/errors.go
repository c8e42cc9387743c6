package kgo

import "errors"

// Sentinel transport errors, matching the teacher's broker.go error set
// (ErrBrokerDead, ErrConnDead, ErrCorrelationIDMismatch, ...). These never
// cross the wire as kerr.KError codes; they describe failures local to this
// client talking to a socket.
var (
	ErrBrokerDead            = errors.New("kgo: broker has been stopped")
	ErrConnDead              = errors.New("kgo: connection is dead")
	ErrNoDial                = errors.New("kgo: unable to open connection to broker")
	ErrCorrelationIDMismatch = errors.New("kgo: correlation ID mismatch in response")
	ErrInvalidRespSize       = errors.New("kgo: invalid response size")
	ErrNoLeader              = errors.New("kgo: partition has no leader")
	ErrNoSeeds               = errors.New("kgo: no seed brokers configured")
	ErrNotGroupMember        = errors.New("kgo: consumer is not currently a group member")
	ErrShuttingDown          = errors.New("kgo: consumer is shutting down")
)

// isTransportErr reports whether err is one of the transport-local sentinel
// errors conn.go returns for a dead socket, failed dial, or malformed frame.
// These never cross the wire as kerr.KError codes, so kerr.ClassOf files
// them under KindOther; Consumer.Run checks for them separately to apply
// §4.7 step 6 ("on ConnectionError: log, continue") instead of treating a
// broker blip as fatal.
func isTransportErr(err error) bool {
	switch err {
	case ErrConnDead, ErrNoDial, ErrInvalidRespSize, ErrCorrelationIDMismatch:
		return true
	default:
		return false
	}
}
