package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var errBusOffline = errors.New("memory bus connection offline")

// Delivery describes one message about to reach one connection
type Delivery struct {
	ConnID int
	Topic  string
	Data   []byte
}

// MemoryBus is an in-process bus with the same contract as the real transports:
// no ordering guarantee, no replay, and connections that are offline miss messages.
// It can delay deliveries on a clock, drop them through a filter, and take connections
// offline to simulate reconnects.
type MemoryBus struct {
	clock clockwork.Clock

	mu         sync.Mutex
	conns      map[int]*memoryConn
	nextID     int
	delay      time.Duration
	filter     func(Delivery) bool
	publishErr error
}

// NewMemoryBus creates an in-process bus
func NewMemoryBus(clock clockwork.Clock) *MemoryBus {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryBus{
		clock: clock,
		conns: make(map[int]*memoryConn),
	}
}

// SetDelay delays every delivery by d on the bus clock
func (b *MemoryBus) SetDelay(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = d
}

// SetFilter installs a delivery filter; returning false drops the delivery
func (b *MemoryBus) SetFilter(fn func(Delivery) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter = fn
}

// FailPublishes makes every publish return err until called with nil
func (b *MemoryBus) FailPublishes(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

// LastConnID returns the id of the most recently dialed connection
func (b *MemoryBus) LastConnID() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextID
}

// Disconnect takes a connection offline and reports reconnecting to its owner
func (b *MemoryBus) Disconnect(connID int) {
	b.setOnline(connID, false, StatusReconnecting)
}

// Reconnect brings a connection back and reports connected to its owner
func (b *MemoryBus) Reconnect(connID int) {
	b.setOnline(connID, true, StatusConnected)
}

func (b *MemoryBus) setOnline(connID int, online bool, status Status) {
	b.mu.Lock()
	c, ok := b.conns[connID]
	if ok {
		c.online = online
	}
	b.mu.Unlock()

	if ok {
		c.onStatus(status)
	}
}

// Dial registers a new connection
func (b *MemoryBus) Dial(ctx context.Context, onStatus func(Status)) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	c := &memoryConn{
		id:       b.nextID,
		bus:      b,
		online:   true,
		onStatus: onStatus,
		subs:     make(map[*memorySubscription]struct{}),
	}
	b.conns[c.id] = c
	return c, nil
}

type memoryConn struct {
	id       int
	bus      *MemoryBus
	onStatus func(Status)

	// guarded by bus.mu
	online bool
	closed bool
	subs   map[*memorySubscription]struct{}
}

type memorySubscription struct {
	conn    *memoryConn
	topic   string
	deliver func([]byte)
}

func (s *memorySubscription) Unsubscribe() error {
	s.conn.bus.mu.Lock()
	defer s.conn.bus.mu.Unlock()
	delete(s.conn.subs, s)
	return nil
}

func (c *memoryConn) Subscribe(ctx context.Context, topic string, deliver func(data []byte)) (Subscription, error) {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()

	if c.closed {
		return nil, errBusOffline
	}
	sub := &memorySubscription{conn: c, topic: topic, deliver: deliver}
	c.subs[sub] = struct{}{}
	return sub, nil
}

func (c *memoryConn) Publish(ctx context.Context, topic string, data []byte) error {
	b := c.bus

	b.mu.Lock()
	if b.publishErr != nil {
		err := b.publishErr
		b.mu.Unlock()
		return err
	}
	if !c.online || c.closed {
		b.mu.Unlock()
		return errBusOffline
	}

	var targets []*memorySubscription
	for _, conn := range b.conns {
		if !conn.online || conn.closed {
			continue
		}
		for sub := range conn.subs {
			if sub.topic != topic {
				continue
			}
			if b.filter != nil && !b.filter(Delivery{ConnID: conn.id, Topic: topic, Data: data}) {
				continue
			}
			targets = append(targets, sub)
		}
	}
	delay := b.delay
	b.mu.Unlock()

	for _, sub := range targets {
		msg := append([]byte(nil), data...)
		s := sub
		if delay > 0 {
			b.clock.AfterFunc(delay, func() {
				b.deliver(s, msg)
			})
			continue
		}
		b.deliver(s, msg)
	}
	return nil
}

// deliver hands data to a subscription unless its connection went away in the meantime
func (b *MemoryBus) deliver(sub *memorySubscription, data []byte) {
	b.mu.Lock()
	_, active := sub.conn.subs[sub]
	online := sub.conn.online && !sub.conn.closed
	b.mu.Unlock()

	if active && online {
		sub.deliver(data)
	}
}

func (c *memoryConn) Close() error {
	c.bus.mu.Lock()
	c.closed = true
	c.subs = make(map[*memorySubscription]struct{})
	delete(c.bus.conns, c.id)
	c.bus.mu.Unlock()
	return nil
}
