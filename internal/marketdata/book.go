package marketdata

import (
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/btree"

	"ome/internal/common"
	"ome/internal/protocol"
)

var (
	ErrUnknownOrder = errors.New("unknown exchange order id")
	ErrWrongTicker  = errors.New("message for another ticker")
)

// level is the aggregated resting volume at one price.
type level struct {
	price  uint32
	volume uint64
	count  int
}

type Levels = btree.BTreeG[*level]

// order is what the feed tells us about one resting order.
type order struct {
	side   common.Side
	price  uint32
	shares uint32
}

// Book rebuilds one symbol's depth from its market data feed. It only sees
// what the engine publishes, so it never knows who owns an order.
type Book struct {
	ticker    string
	timestamp uint64

	bids *Levels
	asks *Levels

	orders map[string]*order

	// Some book keeping
	bidVolume uint64
	askVolume uint64
}

func NewBook(ticker string) *Book {
	// Sorted greatest first.
	bids := btree.NewBTreeG(func(a, b *level) bool {
		return a.price > b.price
	})
	// Sorted least first.
	asks := btree.NewBTreeG(func(a, b *level) bool {
		return a.price < b.price
	})
	return &Book{
		ticker: ticker,
		bids:   bids,
		asks:   asks,
		orders: make(map[string]*order),
	}
}

func (b *Book) Ticker() string { return b.ticker }

func (b *Book) levels(s common.Side) *Levels {
	if s == common.Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) volume(s common.Side) *uint64 {
	if s == common.Buy {
		return &b.bidVolume
	}
	return &b.askVolume
}

// Apply folds one market data message into the book.
func (b *Book) Apply(msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.AddOrder:
		if m.Ticker != b.ticker {
			return fmt.Errorf("%s in %s book: %w", m.Ticker, b.ticker, ErrWrongTicker)
		}
		b.timestamp = m.Timestamp
		return b.add(m)

	case protocol.OrderCancel:
		if m.Ticker != b.ticker {
			return fmt.Errorf("%s in %s book: %w", m.Ticker, b.ticker, ErrWrongTicker)
		}
		b.timestamp = m.Timestamp
		return b.reduce(m.ExchangeOrderID, m.CanceledShares)

	case protocol.Trade:
		if m.Ticker != b.ticker {
			return fmt.Errorf("%s in %s book: %w", m.Ticker, b.ticker, ErrWrongTicker)
		}
		b.timestamp = m.Timestamp
		// Only the resting side of a trade is in the book; the aggressor
		// never rested, so a miss on one of the two ids is expected.
		buyErr := b.reduce(m.BuyerExchangeOrderID, m.Shares)
		sellErr := b.reduce(m.SellerExchangeOrderID, m.Shares)
		if buyErr != nil && sellErr != nil {
			return fmt.Errorf("trade %s: %w", m.ExchangeTradeID, ErrUnknownOrder)
		}
		return nil
	}
	return fmt.Errorf("market data %q: %w", msg.Type(), protocol.ErrInvalidMessageType)
}

func (b *Book) add(m protocol.AddOrder) error {
	side := common.Side(m.Side)
	if !side.Valid() {
		return fmt.Errorf("add %s side %q: %w", m.ExchangeOrderID, m.Side, protocol.ErrInvalidMessageType)
	}

	b.orders[m.ExchangeOrderID] = &order{side: side, price: m.Price, shares: m.Shares}

	levels := b.levels(side)
	l, ok := levels.GetMut(&level{price: m.Price})
	if !ok {
		l = &level{price: m.Price}
		levels.Set(l)
	}
	l.volume += uint64(m.Shares)
	l.count++
	*b.volume(side) += uint64(m.Shares)
	return nil
}

// reduce takes shares off a resting order, dropping it and, when empty, its
// level once nothing is left.
func (b *Book) reduce(exchangeOrderID string, shares uint32) error {
	o, ok := b.orders[exchangeOrderID]
	if !ok {
		return fmt.Errorf("%s: %w", exchangeOrderID, ErrUnknownOrder)
	}
	shares = min(shares, o.shares)
	o.shares -= shares
	*b.volume(o.side) -= uint64(shares)

	levels := b.levels(o.side)
	l, ok := levels.GetMut(&level{price: o.price})
	if !ok {
		// The order map and the ladder went out of step.
		delete(b.orders, exchangeOrderID)
		return fmt.Errorf("%s at %d: %w", exchangeOrderID, o.price, ErrUnknownOrder)
	}
	l.volume -= uint64(shares)

	if o.shares == 0 {
		delete(b.orders, exchangeOrderID)
		l.count--
	}
	if l.count == 0 {
		levels.Delete(l)
	}
	return nil
}

// Levels lists up to n price levels of side s, best first.
func (b *Book) Levels(s common.Side, n int) []protocol.PriceVolume {
	var out []protocol.PriceVolume
	b.levels(s).Scan(func(l *level) bool {
		if len(out) == n {
			return false
		}
		out = append(out, protocol.PriceVolume{Price: l.price, Volume: clamp(l.volume)})
		return true
	})
	return out
}

// Snapshot is the book's current top of book. An empty side reports zeroes.
func (b *Book) Snapshot() protocol.BBO {
	bbo := protocol.BBO{
		Ticker:         b.ticker,
		Timestamp:      b.timestamp,
		TotalBidVolume: clamp(b.bidVolume),
		TotalAskVolume: clamp(b.askVolume),
	}
	copy(bbo.Bids[:], b.Levels(common.Buy, protocol.BBODepth))
	copy(bbo.Asks[:], b.Levels(common.Sell, protocol.BBODepth))

	bbo.BestBidPrice, bbo.BestBidVolume = bbo.Bids[0].Price, bbo.Bids[0].Volume
	bbo.BestAskPrice, bbo.BestAskVolume = bbo.Asks[0].Price, bbo.Asks[0].Volume
	return bbo
}

func clamp(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
