package protocol

import "fmt"

// Market data message types, engine to tickerplant.
const (
	AddOrderType    byte = 'A'
	OrderCancelType byte = 'C'
	TradeType       byte = 'T'
)

const (
	mdTickerEnd    = TypeLen + TickerLen
	mdTimestampEnd = mdTickerEnd + TimestampLen

	AddOrderLen    = mdTimestampEnd + ExchangeOrderIDLen + SideLen + PriceLen + SizeLen      // 36
	OrderCancelLen = mdTimestampEnd + ExchangeOrderIDLen + SizeLen                           // 31
	TradeLen       = mdTimestampEnd + PriceLen + SizeLen + 2*ExchangeOrderIDLen + TradeIDLen // 55
)

func putMarketHeader(buf []byte, typ byte, ticker string, ts uint64) {
	buf[0] = typ
	putText(buf[TypeLen:mdTickerEnd], ticker)
	putUint64(buf[mdTickerEnd:mdTimestampEnd], ts)
}

func getMarketHeader(msg []byte) (string, uint64) {
	return getText(msg[TypeLen:mdTickerEnd]), getUint64(msg[mdTickerEnd:mdTimestampEnd])
}

// AddOrder announces an order resting in the book.
type AddOrder struct {
	Ticker          string
	Timestamp       uint64
	ExchangeOrderID string
	Side            byte
	Price           uint32
	Shares          uint32
}

func (m AddOrder) Type() byte { return AddOrderType }

func (m AddOrder) Encode() ([]byte, error) {
	buf := make([]byte, AddOrderLen)
	putMarketHeader(buf, AddOrderType, m.Ticker, m.Timestamp)
	off := mdTimestampEnd
	if err := putID(buf[off:off+ExchangeOrderIDLen], "exchange order id", m.ExchangeOrderID); err != nil {
		return nil, err
	}
	off += ExchangeOrderIDLen
	buf[off] = m.Side
	putUint32(buf[off+1:off+5], m.Price)
	putUint32(buf[off+5:off+9], m.Shares)
	return buf, nil
}

func DecodeAddOrder(msg []byte) (AddOrder, error) {
	if err := checkLen(msg, AddOrderLen, AddOrderType); err != nil {
		return AddOrder{}, err
	}
	ticker, ts := getMarketHeader(msg)
	off := mdTimestampEnd + ExchangeOrderIDLen
	return AddOrder{
		Ticker:          ticker,
		Timestamp:       ts,
		ExchangeOrderID: getText(msg[mdTimestampEnd:off]),
		Side:            msg[off],
		Price:           getUint32(msg[off+1 : off+5]),
		Shares:          getUint32(msg[off+5 : off+9]),
	}, nil
}

// OrderCancel announces volume leaving the book through a cancel.
type OrderCancel struct {
	Ticker          string
	Timestamp       uint64
	ExchangeOrderID string
	CanceledShares  uint32
}

func (m OrderCancel) Type() byte { return OrderCancelType }

func (m OrderCancel) Encode() ([]byte, error) {
	buf := make([]byte, OrderCancelLen)
	putMarketHeader(buf, OrderCancelType, m.Ticker, m.Timestamp)
	off := mdTimestampEnd
	if err := putID(buf[off:off+ExchangeOrderIDLen], "exchange order id", m.ExchangeOrderID); err != nil {
		return nil, err
	}
	off += ExchangeOrderIDLen
	putUint32(buf[off:off+4], m.CanceledShares)
	return buf, nil
}

func DecodeOrderCancel(msg []byte) (OrderCancel, error) {
	if err := checkLen(msg, OrderCancelLen, OrderCancelType); err != nil {
		return OrderCancel{}, err
	}
	ticker, ts := getMarketHeader(msg)
	off := mdTimestampEnd + ExchangeOrderIDLen
	return OrderCancel{
		Ticker:          ticker,
		Timestamp:       ts,
		ExchangeOrderID: getText(msg[mdTimestampEnd:off]),
		CanceledShares:  getUint32(msg[off : off+4]),
	}, nil
}

// Trade is the public print of one match.
type Trade struct {
	Ticker                string
	Timestamp             uint64
	Price                 uint32
	Shares                uint32
	BuyerExchangeOrderID  string
	SellerExchangeOrderID string
	ExchangeTradeID       string
}

func (m Trade) Type() byte { return TradeType }

func (m Trade) Encode() ([]byte, error) {
	buf := make([]byte, TradeLen)
	putMarketHeader(buf, TradeType, m.Ticker, m.Timestamp)
	off := mdTimestampEnd
	putUint32(buf[off:off+4], m.Price)
	putUint32(buf[off+4:off+8], m.Shares)
	off += 8
	if err := putID(buf[off:off+ExchangeOrderIDLen], "buyer exchange order id", m.BuyerExchangeOrderID); err != nil {
		return nil, err
	}
	off += ExchangeOrderIDLen
	if err := putID(buf[off:off+ExchangeOrderIDLen], "seller exchange order id", m.SellerExchangeOrderID); err != nil {
		return nil, err
	}
	off += ExchangeOrderIDLen
	if err := putID(buf[off:off+TradeIDLen], "trade id", m.ExchangeTradeID); err != nil {
		return nil, err
	}
	return buf, nil
}

func DecodeTrade(msg []byte) (Trade, error) {
	if err := checkLen(msg, TradeLen, TradeType); err != nil {
		return Trade{}, err
	}
	ticker, ts := getMarketHeader(msg)
	off := mdTimestampEnd
	return Trade{
		Ticker:                ticker,
		Timestamp:             ts,
		Price:                 getUint32(msg[off : off+4]),
		Shares:                getUint32(msg[off+4 : off+8]),
		BuyerExchangeOrderID:  getText(msg[off+8 : off+18]),
		SellerExchangeOrderID: getText(msg[off+18 : off+28]),
		ExchangeTradeID:       getText(msg[off+28 : off+38]),
	}, nil
}

// DecodeMarketData parses any engine market data message.
func DecodeMarketData(msg []byte) (Message, error) {
	if len(msg) < TypeLen {
		return nil, fmt.Errorf("empty message: %w", ErrMessageTooShort)
	}
	switch msg[0] {
	case AddOrderType:
		return DecodeAddOrder(msg)
	case OrderCancelType:
		return DecodeOrderCancel(msg)
	case TradeType:
		return DecodeTrade(msg)
	}
	return nil, fmt.Errorf("market data %q: %w", msg[0], ErrInvalidMessageType)
}

// BBODepth is the number of price levels carried per side in a snapshot.
const BBODepth = 5

// BBOLen is 8+8+6*4 header bytes followed by BBODepth (price, volume) pairs per side.
const BBOLen = TickerLen + TimestampLen + 6*4 + 2*BBODepth*(PriceLen+SizeLen) // 120

// PriceVolume is one aggregated price level.
type PriceVolume struct {
	Price  uint32
	Volume uint32
}

// BBO is a top of book snapshot. It carries no type byte; the topic identifies it.
type BBO struct {
	Ticker         string
	Timestamp      uint64
	BestBidPrice   uint32
	BestAskPrice   uint32
	BestBidVolume  uint32
	BestAskVolume  uint32
	TotalBidVolume uint32
	TotalAskVolume uint32
	Bids           [BBODepth]PriceVolume // Descending, zero filled
	Asks           [BBODepth]PriceVolume // Ascending, zero filled
}

func (m BBO) Encode() ([]byte, error) {
	buf := make([]byte, BBOLen)
	putText(buf[0:TickerLen], m.Ticker)
	putUint64(buf[TickerLen:TickerLen+TimestampLen], m.Timestamp)
	off := TickerLen + TimestampLen
	for _, v := range []uint32{
		m.BestBidPrice, m.BestAskPrice,
		m.BestBidVolume, m.BestAskVolume,
		m.TotalBidVolume, m.TotalAskVolume,
	} {
		putUint32(buf[off:off+4], v)
		off += 4
	}
	for _, side := range [][BBODepth]PriceVolume{m.Bids, m.Asks} {
		for _, pv := range side {
			putUint32(buf[off:off+4], pv.Price)
			putUint32(buf[off+4:off+8], pv.Volume)
			off += 8
		}
	}
	return buf, nil
}

func DecodeBBO(msg []byte) (BBO, error) {
	if len(msg) < BBOLen {
		return BBO{}, fmt.Errorf("bbo needs %d bytes, got %d: %w", BBOLen, len(msg), ErrMessageTooShort)
	}
	m := BBO{
		Ticker:    getText(msg[0:TickerLen]),
		Timestamp: getUint64(msg[TickerLen : TickerLen+TimestampLen]),
	}
	off := TickerLen + TimestampLen
	for _, v := range []*uint32{
		&m.BestBidPrice, &m.BestAskPrice,
		&m.BestBidVolume, &m.BestAskVolume,
		&m.TotalBidVolume, &m.TotalAskVolume,
	} {
		*v = getUint32(msg[off : off+4])
		off += 4
	}
	for _, side := range []*[BBODepth]PriceVolume{&m.Bids, &m.Asks} {
		for i := range side {
			side[i] = PriceVolume{
				Price:  getUint32(msg[off : off+4]),
				Volume: getUint32(msg[off+4 : off+8]),
			}
			off += 8
		}
	}
	return m, nil
}
