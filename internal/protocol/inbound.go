package protocol

import "fmt"

// Inbound message types.
const (
	OrderEntryType  byte = 'O'
	CancelOrderType byte = 'C'
	HeartbeatType   byte = 'W'
)

// Message format constants
const (
	OrderEntryLen  = headerEnd + SideLen + PriceLen + SizeLen // 38
	CancelOrderLen = TypeLen + MPIDLen + OrderIDLen           // 21
	HeartbeatLen   = TypeLen + MPIDLen                        // 11
)

// OrderEntry is a new limit order from a submitter.
type OrderEntry struct {
	MPID    string // 10 bytes
	OrderID string // 10 bytes
	Ticker  string // 8 bytes
	Side    byte   // 1 byte, 'B' or 'S'
	Price   uint32 // 4 bytes
	Size    uint32 // 4 bytes
}

func (m OrderEntry) Type() byte { return OrderEntryType }

func (m OrderEntry) Encode() ([]byte, error) {
	buf := make([]byte, OrderEntryLen)
	h := Header{MPID: m.MPID, OrderID: m.OrderID, Ticker: m.Ticker}
	if err := h.put(buf, OrderEntryType); err != nil {
		return nil, err
	}
	buf[headerEnd] = m.Side
	putUint32(buf[headerEnd+1:headerEnd+5], m.Price)
	putUint32(buf[headerEnd+5:headerEnd+9], m.Size)
	return buf, nil
}

func DecodeOrderEntry(msg []byte) (OrderEntry, error) {
	if err := checkLen(msg, OrderEntryLen, OrderEntryType); err != nil {
		return OrderEntry{}, err
	}
	h := getHeader(msg)
	return OrderEntry{
		MPID:    h.MPID,
		OrderID: h.OrderID,
		Ticker:  h.Ticker,
		Side:    msg[headerEnd],
		Price:   getUint32(msg[headerEnd+1 : headerEnd+5]),
		Size:    getUint32(msg[headerEnd+5 : headerEnd+9]),
	}, nil
}

// CancelOrder asks to cancel the remaining volume of a resting order.
type CancelOrder struct {
	MPID    string // 10 bytes
	OrderID string // 10 bytes
}

func (m CancelOrder) Type() byte { return CancelOrderType }

func (m CancelOrder) Encode() ([]byte, error) {
	buf := make([]byte, CancelOrderLen)
	buf[0] = CancelOrderType
	putText(buf[mpidOffset:orderIDOffset], m.MPID)
	if err := putID(buf[orderIDOffset:tickerOffset], "order id", m.OrderID); err != nil {
		return nil, err
	}
	return buf, nil
}

func DecodeCancelOrder(msg []byte) (CancelOrder, error) {
	if err := checkLen(msg, CancelOrderLen, CancelOrderType); err != nil {
		return CancelOrder{}, err
	}
	h := getHeader(msg)
	return CancelOrder{MPID: h.MPID, OrderID: h.OrderID}, nil
}

// Heartbeat binds a gateway session to an mpid. It never reaches the engine.
type Heartbeat struct {
	MPID string // 10 bytes
}

func (m Heartbeat) Type() byte { return HeartbeatType }

func (m Heartbeat) Encode() ([]byte, error) {
	buf := make([]byte, HeartbeatLen)
	buf[0] = HeartbeatType
	putText(buf[mpidOffset:], m.MPID)
	return buf, nil
}

func DecodeHeartbeat(msg []byte) (Heartbeat, error) {
	if err := checkLen(msg, HeartbeatLen, HeartbeatType); err != nil {
		return Heartbeat{}, err
	}
	return Heartbeat{MPID: getText(msg[mpidOffset:HeartbeatLen])}, nil
}

// DecodeInbound parses any gateway to engine message.
func DecodeInbound(msg []byte) (Message, error) {
	if len(msg) < TypeLen {
		return nil, fmt.Errorf("empty message: %w", ErrMessageTooShort)
	}
	switch msg[0] {
	case OrderEntryType:
		return DecodeOrderEntry(msg)
	case CancelOrderType:
		return DecodeCancelOrder(msg)
	case HeartbeatType:
		return DecodeHeartbeat(msg)
	}
	return nil, fmt.Errorf("inbound %q: %w", msg[0], ErrInvalidMessageType)
}
