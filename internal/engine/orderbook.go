package engine

import (
	"errors"
	"fmt"
	"strings"

	"ome/internal/common"
	"ome/internal/protocol"
	"ome/internal/sequence"
)

var (
	ErrInvalidPriceRange = errors.New("invalid price range")
	ErrPriceOutOfRange   = errors.New("price out of range")
	ErrZeroVolume        = errors.New("order volume must be positive")
	ErrInvalidSide       = errors.New("invalid order side")
)

// OrderBook is one symbol's limit order book. Every price in
// [minPrice, maxPrice] has a level, so level lookup is an index.
//
// With no bids bestBid sits at minPrice, with no asks bestAsk sits at
// maxPrice. While both sides hold orders bestBid < bestAsk.
type OrderBook struct {
	config common.TickerConfiguration
	seq    *sequence.Sequencers

	levels  []PriceLevel
	bestBid uint32
	bestAsk uint32

	// Resting orders by exchange order id. Orders leave on fill or cancel.
	orders map[string]*common.Order

	// Some book keeping
	bids Depth // Track the bid-side liquidity of the book.
	asks Depth // Track the ask-side liquidity of the book.
}

func NewOrderBook(config common.TickerConfiguration, seq *sequence.Sequencers) (*OrderBook, error) {
	if config.MinPrice >= config.MaxPrice {
		return nil, fmt.Errorf("%s [%d, %d]: %w",
			config.Symbol, config.MinPrice, config.MaxPrice, ErrInvalidPriceRange)
	}

	levels := make([]PriceLevel, int(config.MaxPrice-config.MinPrice)+1)
	for i := range levels {
		levels[i].Price = config.MinPrice + uint32(i)
	}

	return &OrderBook{
		config:  config,
		seq:     seq,
		levels:  levels,
		bestBid: config.MinPrice,
		bestAsk: config.MaxPrice,
		orders:  make(map[string]*common.Order),
	}, nil
}

func (book *OrderBook) Symbol() string                     { return book.config.Symbol }
func (book *OrderBook) Config() common.TickerConfiguration { return book.config }
func (book *OrderBook) BestBid() uint32                    { return book.bestBid }
func (book *OrderBook) BestAsk() uint32                    { return book.bestAsk }

// Totals returns the book-wide bid and ask depth.
func (book *OrderBook) Totals() (bids, asks Depth) {
	return book.bids, book.asks
}

// Level returns the price level at price, if price is within the book.
func (book *OrderBook) Level(price uint32) (*PriceLevel, bool) {
	if !book.config.Contains(price) {
		return nil, false
	}
	return book.level(price), true
}

// Order looks up a resting order by exchange order id.
func (book *OrderBook) Order(exchangeOrderID string) (*common.Order, bool) {
	order, ok := book.orders[exchangeOrderID]
	return order, ok
}

func (book *OrderBook) level(price uint32) *PriceLevel {
	return &book.levels[price-book.config.MinPrice]
}

func (book *OrderBook) depth(s common.Side) *Depth {
	if s == common.Buy {
		return &book.bids
	}
	return &book.asks
}

// Check validates an order's routing fields without touching the book.
func (book *OrderBook) Check(side common.Side, price, volume uint32) error {
	if !side.Valid() {
		return fmt.Errorf("%q: %w", byte(side), ErrInvalidSide)
	}
	if volume == 0 {
		return ErrZeroVolume
	}
	if !book.config.Contains(price) {
		return fmt.Errorf("%d not in [%d, %d]: %w",
			price, book.config.MinPrice, book.config.MaxPrice, ErrPriceOutOfRange)
	}
	return nil
}

// AddOrder places a new order which can either (fully or partially):
// 1. Execute immediately against the opposite side
// 2. Rest in the book
//
// The order is matched in price-time priority: the best opposite price first
// and, within a price, the oldest resting order first. Trades print at the
// resting order's price. The book keeps order and may mutate its Volume.
func (book *OrderBook) AddOrder(order *common.Order) (Result, error) {
	if err := book.Check(order.Side, order.Price, order.Volume); err != nil {
		return Result{}, err
	}

	var res Result
	book.match(order, &res)
	if order.Volume > 0 {
		book.rest(order, &res)
	}

	if book.asks.Count == 0 {
		book.bestAsk = book.config.MaxPrice
	}
	if book.bids.Count == 0 {
		book.bestBid = book.config.MinPrice
	}
	return res, nil
}

// crosses reports whether order reaches the best opposite price.
func (book *OrderBook) crosses(order *common.Order) bool {
	if order.Side == common.Buy {
		return book.asks.Count > 0 && order.Price >= book.bestAsk
	}
	return book.bids.Count > 0 && order.Price <= book.bestBid
}

// match consumes the opposite side level by level while order crosses.
func (book *OrderBook) match(order *common.Order, res *Result) {
	contra := opposite(order.Side)
	depth := book.depth(contra)

	for order.Volume > 0 && book.crosses(order) {
		level := book.level(book.best(contra))
		queue := level.Side(contra)

		for order.Volume > 0 && queue.Count > 0 {
			resting := queue.Orders[0]
			qty := min(order.Volume, resting.Volume)
			book.execute(order, resting, level.Price, qty, res)

			order.Volume -= qty
			resting.Volume -= qty
			queue.Volume -= uint64(qty)
			depth.Volume -= uint64(qty)

			if resting.Volume == 0 {
				queue.pop()
				depth.Count--
				delete(book.orders, resting.ExchangeOrderID)
				res.Filled = append(res.Filled, resting.ExchangeOrderID)
			}
		}

		book.settle(contra)
	}
}

func (book *OrderBook) best(s common.Side) uint32 {
	if s == common.Buy {
		return book.bestBid
	}
	return book.bestAsk
}

// settle walks the best price of side s away from the spread past empty
// levels, stopping at the book boundary.
func (book *OrderBook) settle(s common.Side) {
	switch s {
	case common.Buy:
		for book.level(book.bestBid).Bids.Count == 0 && book.bestBid > book.config.MinPrice {
			book.bestBid--
		}
	case common.Sell:
		for book.level(book.bestAsk).Asks.Count == 0 && book.bestAsk < book.config.MaxPrice {
			book.bestAsk++
		}
	}
}

// execute books a trade of qty between the incoming order and a resting one.
func (book *OrderBook) execute(incoming, resting *common.Order, price, qty uint32, res *Result) {
	buyer, seller := incoming, resting
	if incoming.Side == common.Sell {
		buyer, seller = resting, incoming
	}

	ts, tradeID := book.seq.NextTrade()
	trade := common.Trade{
		Timestamp: ts,
		Symbol:    book.config.Symbol,
		Price:     price,
		Volume:    qty,
		Buyer:     party(buyer),
		Seller:    party(seller),
		TradeID:   tradeID,
	}

	res.Trades = append(res.Trades, trade)
	res.Reports = append(res.Reports,
		execution(trade, trade.Buyer),
		execution(trade, trade.Seller),
	)
	res.MarketData = append(res.MarketData, protocol.Trade{
		Ticker:                trade.Symbol,
		Timestamp:             trade.Timestamp,
		Price:                 trade.Price,
		Shares:                trade.Volume,
		BuyerExchangeOrderID:  trade.Buyer.ExchangeOrderID,
		SellerExchangeOrderID: trade.Seller.ExchangeOrderID,
		ExchangeTradeID:       trade.TradeID,
	})
}

func party(order *common.Order) common.Party {
	return common.Party{
		SubmitterID:      order.SubmitterID,
		SubmitterOrderID: order.SubmitterOrderID,
		ExchangeOrderID:  order.ExchangeOrderID,
	}
}

// execution is the report one counterparty receives for a trade.
func execution(trade common.Trade, p common.Party) protocol.Executed {
	return protocol.Executed{
		Header: protocol.Header{
			MPID:    p.SubmitterID,
			OrderID: p.SubmitterOrderID,
			Ticker:  trade.Symbol,
		},
		Timestamp:  trade.Timestamp,
		BuyerMPID:  trade.Buyer.SubmitterID,
		SellerMPID: trade.Seller.SubmitterID,
		TradeID:    trade.TradeID,
		Price:      trade.Price,
		Size:       trade.Volume,
	}
}

// rest appends the remainder of order to the tail of its price level.
func (book *OrderBook) rest(order *common.Order, res *Result) {
	book.level(order.Price).Side(order.Side).push(order)
	depth := book.depth(order.Side)
	depth.Count++
	depth.Volume += uint64(order.Volume)
	book.orders[order.ExchangeOrderID] = order

	switch order.Side {
	case common.Buy:
		if order.Price > book.bestBid {
			book.bestBid = order.Price
		}
	case common.Sell:
		if order.Price < book.bestAsk {
			book.bestAsk = order.Price
		}
	}

	res.Resting = order
	res.MarketData = append(res.MarketData, protocol.AddOrder{
		Ticker:          book.config.Symbol,
		Timestamp:       book.seq.Tick(),
		ExchangeOrderID: order.ExchangeOrderID,
		Side:            byte(order.Side),
		Price:           order.Price,
		Shares:          order.Volume,
	})
}

// CancelOrder removes a resting order. An unknown or already terminated id is
// a no-op and returns nil.
func (book *OrderBook) CancelOrder(exchangeOrderID string) (*common.Order, Result) {
	order, ok := book.orders[exchangeOrderID]
	if !ok {
		return nil, Result{}
	}

	book.level(order.Price).Side(order.Side).remove(order)
	depth := book.depth(order.Side)
	depth.Count--
	depth.Volume -= uint64(order.Volume)
	delete(book.orders, exchangeOrderID)

	if order.Price == book.best(order.Side) {
		book.settle(order.Side)
	}

	ts := book.seq.Tick()
	return order, Result{
		Reports: []protocol.Report{protocol.Canceled{
			Header: protocol.Header{
				MPID:    order.SubmitterID,
				OrderID: order.SubmitterOrderID,
				Ticker:  book.config.Symbol,
			},
			Timestamp:         ts,
			DecrementedShares: order.Volume,
			Reason:            protocol.ReasonUserRequested,
		}},
		MarketData: []protocol.Message{protocol.OrderCancel{
			Ticker:          book.config.Symbol,
			Timestamp:       ts,
			ExchangeOrderID: order.ExchangeOrderID,
			CanceledShares:  order.Volume,
		}},
	}
}

// String renders up to five levels either side of the spread, asks on top.
func (book *OrderBook) String() string {
	lines := []string{
		fmt.Sprintf("---%s---", book.config.Symbol),
		"Price: Orders, Volume",
		"---------------------",
	}
	for i := uint32(4); ; i-- {
		if price := book.bestAsk + i; price >= book.bestAsk && price <= book.config.MaxPrice {
			marker := " "
			if i == 0 {
				marker = "A"
			}
			l := book.level(price)
			lines = append(lines, fmt.Sprintf("%s%d: %d, %d", marker, price, l.Asks.Count, l.Asks.Volume))
		}
		if i == 0 {
			break
		}
	}
	for i := uint32(0); i < 5; i++ {
		if book.bestBid < book.config.MinPrice+i {
			break
		}
		price := book.bestBid - i
		marker := " "
		if i == 0 {
			marker = "B"
		}
		l := book.level(price)
		lines = append(lines, fmt.Sprintf("%s%d: %d, %d", marker, price, l.Bids.Count, l.Bids.Volume))
	}
	return strings.Join(lines, "\n")
}

// Info is a one line summary of the top of book and totals.
func (book *OrderBook) Info() string {
	return fmt.Sprintf(
		"Symbol: %s, Best Bid: %d, Best Ask: %d, Total Bid Orders: %d, Total Bid Volume: %d, Total Ask Orders: %d, Total Ask Volume: %d",
		book.config.Symbol, book.bestBid, book.bestAsk,
		book.bids.Count, book.bids.Volume, book.asks.Count, book.asks.Volume,
	)
}
