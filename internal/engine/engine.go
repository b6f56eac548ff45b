package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"ome/internal/common"
	"ome/internal/protocol"
	"ome/internal/sequence"
)

var ErrDuplicateSymbol = errors.New("duplicate symbol")

// This is the main matching engine.

type orderKey struct {
	mpid    string
	orderID string
}

// route records which book an exchange order id lives in. live is cleared
// once the order is filled or canceled, which tells a stale cancel apart
// from an unknown one.
type route struct {
	symbol string
	live   bool
}

// market serialises every operation on one book.
type market struct {
	mu   sync.Mutex
	book *OrderBook
}

// Engine owns one order book per symbol and the identity maps spanning them.
// Process may be called concurrently; operations on the same symbol are
// serialised and operations on different symbols only share the sequencers
// and the identity maps.
type Engine struct {
	seq     *sequence.Sequencers
	markets map[string]*market

	mu       sync.Mutex
	orderIDs map[orderKey]string // (mpid, submitter order id) -> exchange order id
	routes   map[string]route    // exchange order id -> symbol
}

func New(seq *sequence.Sequencers, tickers ...common.TickerConfiguration) (*Engine, error) {
	engine := &Engine{
		seq:      seq,
		markets:  make(map[string]*market),
		orderIDs: make(map[orderKey]string),
		routes:   make(map[string]route),
	}

	for _, ticker := range tickers {
		if _, ok := engine.markets[ticker.Symbol]; ok {
			return nil, fmt.Errorf("%s: %w", ticker.Symbol, ErrDuplicateSymbol)
		}
		book, err := NewOrderBook(ticker, seq)
		if err != nil {
			return nil, err
		}
		engine.markets[ticker.Symbol] = &market{book: book}
	}

	return engine, nil
}

// Book returns the order book for symbol. The book must only be read while
// no message for that symbol is being processed.
func (engine *Engine) Book(symbol string) (*OrderBook, bool) {
	m, ok := engine.markets[symbol]
	if !ok {
		return nil, false
	}
	return m.book, true
}

// Symbols lists the traded symbols in lexical order.
func (engine *Engine) Symbols() []string {
	symbols := make([]string, 0, len(engine.markets))
	for symbol := range engine.markets {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Process handles one raw inbound message and returns the reports and market
// data it produced, in the order they must be sent.
func (engine *Engine) Process(raw []byte) Batch {
	if len(raw) == 0 {
		return engine.reject(raw, protocol.ReasonInvalid)
	}
	switch raw[0] {
	case protocol.OrderEntryType:
		return engine.processOrderEntry(raw)
	case protocol.CancelOrderType:
		return engine.processCancelOrder(raw)
	}
	log.Info().Str("type", fmt.Sprintf("%q", raw[0])).Msg("rejecting unrecognized message")
	return engine.reject(raw, protocol.ReasonInvalid)
}

func (engine *Engine) processOrderEntry(raw []byte) Batch {
	entry, err := protocol.DecodeOrderEntry(raw)
	if err != nil {
		log.Info().Err(err).Msg("rejecting malformed order entry")
		return engine.reject(raw, protocol.ReasonInvalid)
	}
	header := protocol.Header{MPID: entry.MPID, OrderID: entry.OrderID, Ticker: entry.Ticker}

	m, ok := engine.markets[entry.Ticker]
	if !ok {
		log.Info().Str("ticker", entry.Ticker).Str("mpid", entry.MPID).Msg("rejecting order for unknown symbol")
		return engine.rejectHeader(header, protocol.ReasonInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	side := common.Side(entry.Side)
	if err := m.book.Check(side, entry.Price, entry.Size); err != nil {
		log.Info().Err(err).Str("ticker", entry.Ticker).Str("mpid", entry.MPID).Msg("rejecting order entry")
		return engine.rejectHeader(header, protocol.ReasonInvalid)
	}

	// Reserve the identity before touching the book so that a duplicate
	// submitter order id is refused without side effects.
	key := orderKey{entry.MPID, entry.OrderID}
	engine.mu.Lock()
	if _, dup := engine.orderIDs[key]; dup {
		engine.mu.Unlock()
		log.Info().Str("mpid", entry.MPID).Str("order_id", entry.OrderID).Msg("rejecting duplicate order id")
		return engine.rejectHeader(header, protocol.ReasonInvalid)
	}
	ts, exchangeOrderID := engine.seq.NextOrder()
	engine.orderIDs[key] = exchangeOrderID
	engine.routes[exchangeOrderID] = route{symbol: entry.Ticker, live: true}
	engine.mu.Unlock()

	order := &common.Order{
		ExchangeOrderID:  exchangeOrderID,
		Symbol:           entry.Ticker,
		Price:            entry.Price,
		Volume:           entry.Size,
		SubmitterID:      entry.MPID,
		SubmitterOrderID: entry.OrderID,
		Timestamp:        ts,
		Side:             side,
	}
	res, err := m.book.AddOrder(order)
	if err != nil {
		// Unreachable after Check, but never leave a live route behind.
		engine.terminate(entry.Ticker, exchangeOrderID)
		log.Error().Err(err).Str("exchange_order_id", exchangeOrderID).Msg("book refused checked order")
		return engine.rejectHeader(header, protocol.ReasonInvalid)
	}

	engine.terminate(entry.Ticker, res.Filled...)
	if res.Resting == nil {
		engine.terminate(entry.Ticker, exchangeOrderID)
	}

	log.Debug().
		Str("ticker", entry.Ticker).
		Str("mpid", entry.MPID).
		Str("order_id", entry.OrderID).
		Str("exchange_order_id", exchangeOrderID).
		Int("trades", len(res.Trades)).
		Bool("resting", res.Resting != nil).
		Msg("order accepted")

	reports := make([]protocol.Report, 0, 1+len(res.Reports))
	reports = append(reports, protocol.Accepted{
		Header:    header,
		Timestamp: ts,
		Side:      entry.Side,
		Price:     entry.Price,
		Size:      entry.Size,
	})
	reports = append(reports, res.Reports...)

	return Batch{Reports: reports, MarketData: res.MarketData}
}

func (engine *Engine) processCancelOrder(raw []byte) Batch {
	cancel, err := protocol.DecodeCancelOrder(raw)
	if err != nil {
		log.Info().Err(err).Msg("rejecting malformed cancel")
		return engine.reject(raw, protocol.ReasonInvalid)
	}
	header := protocol.Header{MPID: cancel.MPID, OrderID: cancel.OrderID}

	engine.mu.Lock()
	exchangeOrderID, known := engine.orderIDs[orderKey{cancel.MPID, cancel.OrderID}]
	r := engine.routes[exchangeOrderID]
	engine.mu.Unlock()

	if !known {
		log.Info().Str("mpid", cancel.MPID).Str("order_id", cancel.OrderID).Msg("cancel for unknown order")
		return engine.rejectHeader(header, protocol.ReasonNotFound)
	}
	header.Ticker = r.symbol
	if !r.live {
		log.Info().Str("mpid", cancel.MPID).Str("order_id", cancel.OrderID).Msg("cancel for completed order")
		return engine.rejectHeader(header, protocol.ReasonCompleted)
	}

	m := engine.markets[r.symbol]
	m.mu.Lock()
	order, res := m.book.CancelOrder(exchangeOrderID)
	m.mu.Unlock()

	engine.terminate(r.symbol, exchangeOrderID)
	if order == nil {
		// Filled between the lookup and the book lock.
		return engine.rejectHeader(header, protocol.ReasonCompleted)
	}

	log.Debug().
		Str("ticker", r.symbol).
		Str("mpid", cancel.MPID).
		Str("order_id", cancel.OrderID).
		Uint32("shares", order.Volume).
		Msg("order canceled")

	return Batch{Reports: res.Reports, MarketData: res.MarketData}
}

// symbolOf reports the book the order submitted under key was admitted to.
func (engine *Engine) symbolOf(key orderKey) (string, bool) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	exchangeOrderID, ok := engine.orderIDs[key]
	if !ok {
		return "", false
	}
	return engine.routes[exchangeOrderID].symbol, true
}

// terminate tombstones exchange order ids that have left their book.
func (engine *Engine) terminate(symbol string, exchangeOrderIDs ...string) {
	if len(exchangeOrderIDs) == 0 {
		return
	}
	engine.mu.Lock()
	defer engine.mu.Unlock()
	for _, id := range exchangeOrderIDs {
		engine.routes[id] = route{symbol: symbol}
	}
}

// reject builds a reject from whatever header fields raw is long enough to
// carry; anything shorter than an mpid and order id gets blank fields.
func (engine *Engine) reject(raw []byte, reason byte) Batch {
	header, _ := protocol.PeekHeader(raw)
	return engine.rejectHeader(header, reason)
}

// Reject builds a reject for a message that never reached a book.
func (engine *Engine) Reject(header protocol.Header, reason byte) Batch {
	return engine.rejectHeader(header, reason)
}

func (engine *Engine) rejectHeader(header protocol.Header, reason byte) Batch {
	return Batch{Reports: []protocol.Report{protocol.Rejected{
		Header:    header,
		Timestamp: engine.seq.Tick(),
		Reason:    reason,
	}}}
}
