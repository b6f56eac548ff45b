package bus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

type subscription struct {
	prefix string
	ch     chan Envelope
}

// Memory is an in-process bus with prefix subscriptions. Publishing never
// blocks: a subscriber whose buffer is full misses the message.
type Memory struct {
	mu      sync.RWMutex
	subs    []*subscription
	closed  bool
	dropped atomic.Uint64
}

func NewMemory() *Memory {
	return &Memory{}
}

// Subscribe receives every message whose topic starts with prefix. The
// returned function unsubscribes and closes the channel.
func (m *Memory) Subscribe(prefix string, buffer int) (<-chan Envelope, func()) {
	sub := &subscription{prefix: prefix, ch: make(chan Envelope, buffer)}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	m.subs = append(m.subs, sub)

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { m.unsubscribe(sub) })
	}
}

func (m *Memory) unsubscribe(sub *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.subs {
		if s == sub {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ValidTopic(topic); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sub := range m.subs {
		if !strings.HasPrefix(topic, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- Envelope{Topic: topic, Payload: payload}:
		default:
			m.dropped.Add(1)
			log.Warn().Str("topic", topic).Str("subscription", sub.prefix).Msg("subscriber full, dropping message")
		}
	}
	return nil
}

// Dropped counts deliveries skipped because a subscriber was full.
func (m *Memory) Dropped() uint64 {
	return m.dropped.Load()
}

// Close closes every subscription channel.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, sub := range m.subs {
		close(sub.ch)
	}
	m.subs = nil
	return nil
}
