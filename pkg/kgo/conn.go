package kgo

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gokafka9/kafka9/pkg/kmsg"
)

// BrokerMetadata identifies one broker, mirroring the teacher's
// BrokerMetadata (NodeID/Host/Port), trimmed of the Rack field this spec's
// metadata response never carries.
type BrokerMetadata struct {
	NodeID int32
	Host   string
	Port   int32
}

func (m BrokerMetadata) addr() string {
	return net.JoinHostPort(m.Host, fmt.Sprint(m.Port))
}

// Connection owns one TCP socket to one broker (§4.2). It is not
// concurrent-safe: the Broker Pool hands out at most one Connection per
// broker and callers serialise their own use of it, the same contract the
// teacher's brokerCxn relies on via handleReqs' single-goroutine loop.
type Connection struct {
	cl   *clientDeps
	meta BrokerMetadata

	mu     sync.Mutex
	conn   net.Conn
	corrID int32
}

// clientDeps bundles the shared, read-mostly dependencies every Connection
// needs (config, hooks, logger) without requiring a circular import of a
// root Client type; Cluster and BrokerPool hold the one instance and hand
// it to every Connection they create.
type clientDeps struct {
	cfg *cfg
}

func newConnection(cl *clientDeps, meta BrokerMetadata) *Connection {
	return &Connection{cl: cl, meta: meta}
}

// ensureConn lazily dials the broker, matching §4.2's "lazy-opened on first
// request; closed on any I/O error".
func (c *Connection) ensureConn(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialCtx := ctx
	if c.cl.cfg.connectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cl.cfg.connectTimeout)
		defer cancel()
	}

	addr := c.meta.addr()
	start := time.Now()
	c.cl.cfg.logger.Log(LogLevelDebug, "opening connection to broker", "addr", addr, "id", c.meta.NodeID)
	conn, err := c.cl.cfg.dialFn(dialCtx, "tcp", addr)
	since := time.Since(start)

	c.cl.cfg.hooks.each(func(h Hook) {
		if bh, ok := h.(BrokerConnectHook); ok {
			bh.OnConnect(c.meta, since, conn, err)
		}
	})
	if err != nil {
		c.cl.cfg.logger.Log(LogLevelWarn, "unable to open connection to broker", "addr", addr, "err", err)
		return ErrNoDial
	}
	c.conn = conn
	c.corrID = 0
	return c.authenticate(ctx)
}

// authenticate runs the opaque sasl.Mechanism handshake before the first
// protocol request, per §4.2. sasl.None() makes this a no-op, which is the
// common case for the 0.9 clusters this client targets.
func (c *Connection) authenticate(ctx context.Context) error {
	mech := c.cl.cfg.sasl
	if mech == nil {
		return nil
	}
	session, clientWrite, err := mech.Authenticate(ctx, c.meta.addr())
	if err != nil {
		return err
	}
	done := len(clientWrite) == 0
	for !done {
		if err := c.writeFrame(clientWrite); err != nil {
			return err
		}
		serverResp, err := c.readFrame(ctx, c.cl.cfg.socketTimeout)
		if err != nil {
			return err
		}
		done, clientWrite, err = session.Challenge(serverResp)
		if err != nil {
			return err
		}
	}
	return nil
}

// Request sends req and, unless the caller passes a nil decoder via
// RequestNoWait, blocks for the matching response (§4.2).
func (c *Connection) Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConn(ctx); err != nil {
		return nil, err
	}

	corrID, err := c.writeRequest(ctx, req)
	if err != nil {
		c.die()
		return nil, err
	}

	resp := req.ResponseKind()
	if err := c.readMatchingResponse(ctx, corrID, resp); err != nil {
		c.die()
		return nil, err
	}
	return resp, nil
}

// RequestNoWait sends req without waiting for a response, leaving the
// response on the wire to be skipped by the next call that does wait
// (§4.2, §8 "correlation skip").
func (c *Connection) RequestNoWait(ctx context.Context, req kmsg.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConn(ctx); err != nil {
		return err
	}
	_, err := c.writeRequest(ctx, req)
	if err != nil {
		c.die()
	}
	return err
}

func (c *Connection) writeRequest(ctx context.Context, req kmsg.Request) (int32, error) {
	corrID := c.corrID
	c.corrID++

	body := kmsg.AppendRequestHeader(nil, req.Key(), req.Version(), corrID, c.cl.cfg.clientID)
	body = req.AppendTo(body)

	start := time.Now()
	err := c.writeFrame(body)
	elapsed := time.Since(start)

	c.cl.cfg.hooks.each(func(h Hook) {
		if wh, ok := h.(BrokerWriteHook); ok {
			wh.OnWrite(c.meta, req.Key(), len(body), 0, elapsed, err)
		}
	})
	if err != nil {
		return 0, ErrConnDead
	}
	return corrID, nil
}

func (c *Connection) writeFrame(body []byte) error {
	var szBuf [4]byte
	binary.BigEndian.PutUint32(szBuf[:], uint32(len(body)))
	if c.cl.cfg.socketTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.cl.cfg.socketTimeout))
	}
	if _, err := c.conn.Write(szBuf[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(body)
	return err
}

// readMatchingResponse reads frames until one whose correlation ID matches
// corrID arrives, discarding any stale response left on the wire by a prior
// fire-and-forget call (§4.2, §8 "Connection" property (b)).
func (c *Connection) readMatchingResponse(ctx context.Context, corrID int32, resp kmsg.Response) error {
	for {
		start := time.Now()
		raw, err := c.readFrame(ctx, c.cl.cfg.socketTimeout)
		elapsed := time.Since(start)

		c.cl.cfg.hooks.each(func(h Hook) {
			if rh, ok := h.(BrokerReadHook); ok {
				rh.OnRead(c.meta, 0, len(raw), 0, elapsed, err)
			}
		})
		if err != nil {
			return err
		}
		if len(raw) < 4 {
			return ErrInvalidRespSize
		}
		gotID := int32(binary.BigEndian.Uint32(raw))
		if gotID != corrID {
			// Stale response from an earlier fire-and-forget request; skip it.
			c.cl.cfg.logger.Log(LogLevelDebug, "discarding stale response", "want", corrID, "got", gotID)
			continue
		}
		return resp.ReadFrom(raw[4:])
	}
}

func (c *Connection) readFrame(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
	}
	var szBuf [4]byte
	if _, err := io.ReadFull(c.conn, szBuf[:]); err != nil {
		return nil, ErrConnDead
	}
	size := int32(binary.BigEndian.Uint32(szBuf[:]))
	if size < 0 {
		return nil, ErrInvalidRespSize
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, ErrConnDead
	}
	return buf, nil
}

// die closes the socket so the next call re-dials, per §4.2 "All I/O
// failures close the socket".
func (c *Connection) die() {
	if c.conn == nil {
		return
	}
	c.cl.cfg.hooks.each(func(h Hook) {
		if dh, ok := h.(BrokerDisconnectHook); ok {
			dh.OnDisconnect(c.meta, c.conn)
		}
	})
	c.conn.Close()
	c.conn = nil
}

// Close closes the underlying socket, if any. It is safe to call on a
// Connection that was never dialed.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.die()
	return nil
}
