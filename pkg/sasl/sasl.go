// Package sasl is the opaque authenticate(connection) collaborator §1
// carves out of scope: a seam a Connection calls through before its first
// protocol request, with no concrete SCRAM/GSSAPI mechanism specified.
// Grounded on the teacher's brokerCxn.sasl()/doSasl() call shape in
// broker.go, trimmed of mechanism-negotiation retry and reauthentication
// since those are internal to whichever mechanism is plugged in here.
package sasl

import "context"

// Session is returned by Mechanism.Authenticate and driven by Connection
// until the mechanism reports it is done.
type Session interface {
	// Challenge advances the handshake with the server's last response
	// (empty on the first call for mechanisms that speak first). It
	// returns whether the handshake is complete and the client's next
	// bytes to send, if any.
	Challenge(serverResponse []byte) (done bool, clientWrite []byte, err error)
}

// Mechanism is implemented by a concrete SASL mechanism. None is provided
// by this package; callers needing SASL supply their own and pass it via
// the WithSASL config option.
type Mechanism interface {
	Name() string
	Authenticate(ctx context.Context, host string) (Session, []byte, error)
}

// None is the zero-configuration mechanism: Connection treats a nil
// Mechanism identically, but None exists so callers can be explicit.
type none struct{}

// None returns a Mechanism whose Authenticate is a no-op, for brokers with
// authentication disabled (the common case for the 0.9 clusters this
// client targets).
func None() Mechanism { return none{} }

func (none) Name() string { return "none" }
func (none) Authenticate(context.Context, string) (Session, []byte, error) {
	return noneSession{}, nil, nil
}

type noneSession struct{}

func (noneSession) Challenge([]byte) (bool, []byte, error) { return true, nil, nil }
