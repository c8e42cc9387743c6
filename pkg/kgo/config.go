package kgo

import (
	"context"
	"net"
	"time"

	"github.com/gokafka9/kafka9/pkg/sasl"
)

// AutoOffsetReset is the opt-in rewind policy applied when a fetch surfaces
// OffsetOutOfRange (§9 Open Question resolution: default None, no silent
// rewind).
type AutoOffsetReset int8

const (
	AutoOffsetResetNone AutoOffsetReset = iota
	AutoOffsetResetEarliest
	AutoOffsetResetLatest
)

// DialFunc opens a TCP connection to a broker; overridable for tests.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type cfg struct {
	seedBrokers []string
	clientID    string

	connectTimeout time.Duration
	socketTimeout  time.Duration

	groupID               string
	sessionTimeout        time.Duration
	offsetCommitInterval  time.Duration
	autoOffsetReset       AutoOffsetReset
	retryBudget           int

	minBytes    int32
	maxWaitTime time.Duration
	maxBytes    int32

	logger Logger
	hooks  hooks
	dialFn DialFunc
	sasl   sasl.Mechanism
}

func defaultCfg() cfg {
	return cfg{
		clientID:             "kafka9",
		connectTimeout:       10 * time.Second,
		socketTimeout:        30 * time.Second,
		sessionTimeout:       30 * time.Second,
		offsetCommitInterval: 10 * time.Second,
		retryBudget:          5,
		minBytes:             1,
		maxWaitTime:          500 * time.Millisecond,
		maxBytes:             1 << 20,
		logger:               nopLogger{},
		dialFn:               (&net.Dialer{}).DialContext,
		sasl:                 sasl.None(),
	}
}

// Opt configures a Consumer, mirroring the teacher's functional
// option pattern over cl.cfg.
type Opt interface {
	apply(*cfg)
}

type optFunc func(*cfg)

func (f optFunc) apply(c *cfg) { f(c) }

func WithSeedBrokers(addrs ...string) Opt {
	return optFunc(func(c *cfg) { c.seedBrokers = append(c.seedBrokers, addrs...) })
}

func WithClientID(id string) Opt {
	return optFunc(func(c *cfg) { c.clientID = id })
}

func WithConnectTimeout(d time.Duration) Opt {
	return optFunc(func(c *cfg) { c.connectTimeout = d })
}

func WithSocketTimeout(d time.Duration) Opt {
	return optFunc(func(c *cfg) { c.socketTimeout = d })
}

func WithGroupID(id string) Opt {
	return optFunc(func(c *cfg) { c.groupID = id })
}

func WithSessionTimeout(d time.Duration) Opt {
	return optFunc(func(c *cfg) { c.sessionTimeout = d })
}

func WithOffsetCommitInterval(d time.Duration) Opt {
	return optFunc(func(c *cfg) { c.offsetCommitInterval = d })
}

func WithAutoOffsetReset(policy AutoOffsetReset) Opt {
	return optFunc(func(c *cfg) { c.autoOffsetReset = policy })
}

func WithRetryBudget(n int) Opt {
	return optFunc(func(c *cfg) { c.retryBudget = n })
}

func WithFetchShape(minBytes, maxBytes int32, maxWait time.Duration) Opt {
	return optFunc(func(c *cfg) {
		c.minBytes = minBytes
		c.maxBytes = maxBytes
		c.maxWaitTime = maxWait
	})
}

func WithLogger(l Logger) Opt {
	return optFunc(func(c *cfg) { c.logger = l })
}

func WithHooks(hs ...Hook) Opt {
	return optFunc(func(c *cfg) { c.hooks = append(c.hooks, hs...) })
}

func WithDialFunc(fn DialFunc) Opt {
	return optFunc(func(c *cfg) { c.dialFn = fn })
}

func WithSASL(m sasl.Mechanism) Opt {
	return optFunc(func(c *cfg) { c.sasl = m })
}
