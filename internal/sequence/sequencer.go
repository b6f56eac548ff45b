// Package sequence provides the process-wide counters shared by every book:
// the logical clock, the trade id generator and the exchange order id generator.
package sequence

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Sequencer generates strictly monotonic sequence numbers.
type Sequencer struct {
	next atomic.Uint64
}

// New creates a sequencer whose first Next returns start+1.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued sequence number.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset sets the sequencer to a specific value.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}

// Sequencers bundles the three counters. Single draws are atomic; paired
// draws (a timestamp together with an id) hold a lock so that timestamps and
// ids issued to concurrent symbol workers are ordered the same way.
type Sequencers struct {
	mu     sync.Mutex
	Clock  *Sequencer
	Trades *Sequencer
	Orders *Sequencer
}

func NewSequencers() *Sequencers {
	return &Sequencers{
		Clock:  New(0),
		Trades: New(0),
		Orders: New(0),
	}
}

// Tick advances the logical clock for an event that needs no id.
func (s *Sequencers) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Clock.Next()
}

// NextOrder stamps an order admission and mints its exchange order id.
func (s *Sequencers) NextOrder() (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Clock.Next(), strconv.FormatUint(s.Orders.Next(), 10)
}

// NextTrade stamps a match and mints its trade id.
func (s *Sequencers) NextTrade() (uint64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Clock.Next(), strconv.FormatUint(s.Trades.Next(), 10)
}
