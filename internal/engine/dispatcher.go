package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"ome/internal/bus"
	"ome/internal/protocol"
)

const defaultQueueSize = 1024

var ErrNotRunning = errors.New("dispatcher not running")

// Dispatcher is the single admission point in front of the engine. Each symbol
// has one bounded queue drained by one worker, so messages for a symbol are
// processed strictly in the order they were submitted while different symbols
// proceed in parallel. Every batch is encoded and published on the bus.
type Dispatcher struct {
	engine    *Engine
	publisher bus.Publisher

	entryTopic      string
	marketDataTopic string

	queues map[string]chan task

	mu      sync.Mutex
	pending map[orderKey]*pending // keys with messages queued or being processed
	running bool
}

type task struct {
	raw []byte
	key orderKey
}

// pending counts the in-flight messages for one (mpid, order id). They all
// sit on the queue of symbol; idle is closed when the last one is processed.
type pending struct {
	symbol string
	count  int
	idle   chan struct{}
}

func NewDispatcher(engine *Engine, publisher bus.Publisher, engineID string, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	queues := make(map[string]chan task, len(engine.markets))
	for symbol := range engine.markets {
		queues[symbol] = make(chan task, queueSize)
	}

	return &Dispatcher{
		engine:          engine,
		publisher:       publisher,
		entryTopic:      bus.EntryTopic(engineID),
		marketDataTopic: bus.MarketDataTopic(engineID),
		queues:          queues,
		pending:         make(map[orderKey]*pending),
	}
}

// Run starts one worker per symbol under t.
func (d *Dispatcher) Run(t *tomb.Tomb) {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	for symbol, queue := range d.queues {
		t.Go(func() error {
			return d.worker(t, symbol, queue)
		})
	}
	log.Info().Int("symbols", len(d.queues)).Msg("dispatcher running")
}

func (d *Dispatcher) worker(t *tomb.Tomb, symbol string, queue <-chan task) error {
	ctx := t.Context(nil)
	for {
		select {
		case <-t.Dying():
			log.Debug().Str("symbol", symbol).Msg("symbol worker exiting")
			return nil
		case next := <-queue:
			d.handle(ctx, next.raw)
			d.release(next.key)
		}
	}
}

// Submit admits one raw inbound message. Messages bound for a book are queued
// behind earlier messages for the same symbol and behind earlier messages for
// the same mpid and order id, whichever symbol those went to. Messages that
// cannot reach any book are rejected on the caller's goroutine. raw must not
// be modified after Submit.
func (d *Dispatcher) Submit(ctx context.Context, raw []byte) error {
	for {
		queue, key, idle, err := d.route(raw)
		switch {
		case err != nil:
			return err
		case idle != nil:
			// Another symbol still holds messages for this order id.
			select {
			case <-idle:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		case queue == nil:
			d.handle(ctx, raw)
			return nil
		}

		select {
		case queue <- task{raw: raw, key: key}:
			return nil
		case <-ctx.Done():
			d.release(key)
			return ctx.Err()
		}
	}
}

// Reject answers a message that never reaches the engine, such as one too
// short to name the order it is about.
func (d *Dispatcher) Reject(ctx context.Context, header protocol.Header, reason byte) {
	d.publishBatch(ctx, d.engine.Reject(header, reason))
}

// route picks the symbol queue for raw and marks its key in flight. Entries
// route by ticker. Cancels follow the in-flight messages for their key, or
// else the book the engine admitted the order to. A non-nil idle means raw
// must wait for the key to settle on another symbol first. A nil queue means
// raw is handled inline.
func (d *Dispatcher) route(raw []byte) (queue chan task, key orderKey, idle <-chan struct{}, err error) {
	header, ok := protocol.PeekHeader(raw)
	if !ok {
		return nil, key, nil, nil
	}
	key = orderKey{header.MPID, header.OrderID}

	var symbol string
	switch {
	case raw[0] == protocol.OrderEntryType && len(raw) >= protocol.OrderEntryLen:
		symbol = header.Ticker
	case raw[0] == protocol.CancelOrderType:
	default:
		return nil, key, nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, busy := d.pending[key]
	switch {
	case busy && symbol != "" && symbol != p.symbol:
		return nil, key, p.idle, nil
	case busy:
		symbol = p.symbol
	case symbol == "":
		if symbol, ok = d.engine.symbolOf(key); !ok {
			return nil, key, nil, nil
		}
	}

	queue, ok = d.queues[symbol]
	if !ok {
		return nil, key, nil, nil
	}
	if !d.running {
		return nil, key, nil, ErrNotRunning
	}

	if !busy {
		p = &pending{symbol: symbol, idle: make(chan struct{})}
		d.pending[key] = p
	}
	p.count++
	return queue, key, nil, nil
}

// release marks one message for key as processed.
func (d *Dispatcher) release(key orderKey) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[key]
	if !ok {
		return
	}
	p.count--
	if p.count == 0 {
		delete(d.pending, key)
		close(p.idle)
	}
}

func (d *Dispatcher) handle(ctx context.Context, raw []byte) {
	d.publishBatch(ctx, d.engine.Process(raw))
}

func (d *Dispatcher) publishBatch(ctx context.Context, batch Batch) {
	for _, report := range batch.Reports {
		d.publish(ctx, d.entryTopic, report)
	}
	for _, msg := range batch.MarketData {
		d.publish(ctx, d.marketDataTopic, msg)
	}
}

func (d *Dispatcher) publish(ctx context.Context, topic string, msg protocol.Message) {
	payload, err := msg.Encode()
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Str("type", string(msg.Type())).Msg("unable to encode message")
		return
	}
	if err := d.publisher.Publish(ctx, topic, payload); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("unable to publish message")
	}
}
