package kgo

import (
	"net"
	"time"
)

// Hook is the empty marker every concrete hook interface embeds, matching
// the teacher's Hook family in broker.go: callers type-assert a Hook to the
// specific event interfaces they care about.
type Hook interface{}

// BrokerConnectHook is called after every attempt to open a broker
// connection, successful or not.
type BrokerConnectHook interface {
	Hook
	OnConnect(meta BrokerMetadata, dialDur time.Duration, conn net.Conn, err error)
}

// BrokerDisconnectHook is called whenever a broker connection is torn down.
type BrokerDisconnectHook interface {
	Hook
	OnDisconnect(meta BrokerMetadata, conn net.Conn)
}

// BrokerWriteHook is called after every request write to a broker.
type BrokerWriteHook interface {
	Hook
	OnWrite(meta BrokerMetadata, key int16, bytesWritten int, writeWait, timeToWrite time.Duration, err error)
}

// BrokerReadHook is called after every response read from a broker.
type BrokerReadHook interface {
	Hook
	OnRead(meta BrokerMetadata, key int16, bytesRead int, readWait, timeToRead time.Duration, err error)
}

// BrokerThrottleHook is the interface for a broker reporting that it
// throttled a request. None of the v0 responses this package decodes
// carries a throttle time, so nothing in this package invokes it.
type BrokerThrottleHook interface {
	Hook
	OnThrottle(meta BrokerMetadata, throttleDur time.Duration, afterResp bool)
}

// GroupHook is called on every consumer-group lifecycle transition: "join",
// "sync", "heartbeat", "rebalance", "leave".
type GroupHook interface {
	Hook
	OnGroupEvent(groupID, event string, err error)
}

// FetchBatchHook is called once per completed FetchOperation.Execute, after
// messages have been flattened and ordered.
type FetchBatchHook interface {
	Hook
	OnFetchBatch(brokers int, messages int, err error)
}

// hooks is a slice of registered Hook implementations; each fires whichever
// of its event interfaces the current call site needs.
type hooks []Hook

func (hs hooks) each(fn func(Hook)) {
	for _, h := range hs {
		fn(h)
	}
}
