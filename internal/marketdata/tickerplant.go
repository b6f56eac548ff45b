// Package marketdata turns the engine's order-level feed into per-symbol top
// of book snapshots.
package marketdata

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"ome/internal/bus"
	"ome/internal/protocol"
)

type Tickerplant struct {
	publisher bus.Publisher
	topic     string

	mu    sync.Mutex
	books map[string]*Book
}

func New(publisher bus.Publisher, engineID string) *Tickerplant {
	return &Tickerplant{
		publisher: publisher,
		topic:     bus.BBOTopic(engineID),
		books:     make(map[string]*Book),
	}
}

// Book returns the rebuilt book for ticker, if any message for it was seen.
func (tp *Tickerplant) Book(ticker string) (*Book, bool) {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	b, ok := tp.books[ticker]
	return b, ok
}

func (tp *Tickerplant) book(ticker string) *Book {
	b, ok := tp.books[ticker]
	if !ok {
		b = NewBook(ticker)
		tp.books[ticker] = b
		log.Debug().Str("ticker", ticker).Msg("tracking new ticker")
	}
	return b
}

// Handle applies one encoded market data message and publishes the symbol's
// resulting snapshot.
func (tp *Tickerplant) Handle(ctx context.Context, payload []byte) (protocol.BBO, error) {
	msg, err := protocol.DecodeMarketData(payload)
	if err != nil {
		return protocol.BBO{}, fmt.Errorf("unable to decode market data: %w", err)
	}

	tp.mu.Lock()
	b := tp.book(tickerOf(msg))
	applyErr := b.Apply(msg)
	bbo := b.Snapshot()
	tp.mu.Unlock()

	if applyErr != nil {
		// The book stays usable, publish what we have.
		log.Warn().Err(applyErr).Str("ticker", bbo.Ticker).Msg("inconsistent market data")
	}

	encoded, err := bbo.Encode()
	if err != nil {
		return bbo, err
	}
	if err := tp.publisher.Publish(ctx, tp.topic, encoded); err != nil {
		return bbo, fmt.Errorf("unable to publish bbo: %w", err)
	}
	return bbo, nil
}

// Run consumes the feed until t dies or the feed closes.
func (tp *Tickerplant) Run(t *tomb.Tomb, feed <-chan bus.Envelope) error {
	ctx := t.Context(nil)
	log.Info().Str("topic", tp.topic).Msg("tickerplant running")
	for {
		select {
		case <-t.Dying():
			return nil
		case env, ok := <-feed:
			if !ok {
				return nil
			}
			if _, err := tp.Handle(ctx, env.Payload); err != nil {
				log.Error().Err(err).Str("topic", env.Topic).Msg("unable to handle market data")
			}
		}
	}
}

func tickerOf(msg protocol.Message) string {
	switch m := msg.(type) {
	case protocol.AddOrder:
		return m.Ticker
	case protocol.OrderCancel:
		return m.Ticker
	case protocol.Trade:
		return m.Ticker
	}
	return ""
}
