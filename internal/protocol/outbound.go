package protocol

import "fmt"

// Outbound message types, engine to gateway.
const (
	AcceptedType byte = 'A'
	CanceledType byte = 'C'
	RejectedType byte = 'J'
	ExecutedType byte = 'E'
)

// Reject and cancel reasons.
const (
	ReasonInvalid       byte = 'I' // Unrecognized message, unknown symbol or unroutable order
	ReasonNotFound      byte = 'N' // Order id was never issued
	ReasonCompleted     byte = 'C' // Order already filled or canceled
	ReasonUserRequested byte = 'U' // Cancel requested by the submitter
)

const (
	AcceptedLen = headerEnd + TimestampLen + SideLen + PriceLen + SizeLen                // 46
	CanceledLen = headerEnd + TimestampLen + SizeLen + ReasonLen                         // 42
	RejectedLen = headerEnd + TimestampLen + ReasonLen                                   // 38
	ExecutedLen = headerEnd + TimestampLen + 2*MPIDLen + TradeIDLen + PriceLen + SizeLen // 75

	timestampEnd = headerEnd + TimestampLen
)

// Accepted acknowledges an order entry with the fields as submitted.
type Accepted struct {
	Header
	Timestamp uint64
	Side      byte
	Price     uint32
	Size      uint32
}

func (m Accepted) Type() byte        { return AcceptedType }
func (m Accepted) Submitter() string { return m.MPID }

func (m Accepted) Encode() ([]byte, error) {
	buf := make([]byte, AcceptedLen)
	if err := m.Header.put(buf, AcceptedType); err != nil {
		return nil, err
	}
	putUint64(buf[headerEnd:timestampEnd], m.Timestamp)
	buf[timestampEnd] = m.Side
	putUint32(buf[timestampEnd+1:timestampEnd+5], m.Price)
	putUint32(buf[timestampEnd+5:timestampEnd+9], m.Size)
	return buf, nil
}

func DecodeAccepted(msg []byte) (Accepted, error) {
	if err := checkLen(msg, AcceptedLen, AcceptedType); err != nil {
		return Accepted{}, err
	}
	return Accepted{
		Header:    getHeader(msg),
		Timestamp: getUint64(msg[headerEnd:timestampEnd]),
		Side:      msg[timestampEnd],
		Price:     getUint32(msg[timestampEnd+1 : timestampEnd+5]),
		Size:      getUint32(msg[timestampEnd+5 : timestampEnd+9]),
	}, nil
}

// Canceled reports the volume removed from the book by a cancel.
type Canceled struct {
	Header
	Timestamp         uint64
	DecrementedShares uint32
	Reason            byte
}

func (m Canceled) Type() byte        { return CanceledType }
func (m Canceled) Submitter() string { return m.MPID }

func (m Canceled) Encode() ([]byte, error) {
	buf := make([]byte, CanceledLen)
	if err := m.Header.put(buf, CanceledType); err != nil {
		return nil, err
	}
	putUint64(buf[headerEnd:timestampEnd], m.Timestamp)
	putUint32(buf[timestampEnd:timestampEnd+4], m.DecrementedShares)
	buf[timestampEnd+4] = m.Reason
	return buf, nil
}

func DecodeCanceled(msg []byte) (Canceled, error) {
	if err := checkLen(msg, CanceledLen, CanceledType); err != nil {
		return Canceled{}, err
	}
	return Canceled{
		Header:            getHeader(msg),
		Timestamp:         getUint64(msg[headerEnd:timestampEnd]),
		DecrementedShares: getUint32(msg[timestampEnd : timestampEnd+4]),
		Reason:            msg[timestampEnd+4],
	}, nil
}

// Rejected refuses an inbound message without touching any book.
type Rejected struct {
	Header
	Timestamp uint64
	Reason    byte
}

func (m Rejected) Type() byte        { return RejectedType }
func (m Rejected) Submitter() string { return m.MPID }

func (m Rejected) Encode() ([]byte, error) {
	buf := make([]byte, RejectedLen)
	if err := m.Header.put(buf, RejectedType); err != nil {
		return nil, err
	}
	putUint64(buf[headerEnd:timestampEnd], m.Timestamp)
	buf[timestampEnd] = m.Reason
	return buf, nil
}

func DecodeRejected(msg []byte) (Rejected, error) {
	if err := checkLen(msg, RejectedLen, RejectedType); err != nil {
		return Rejected{}, err
	}
	return Rejected{
		Header:    getHeader(msg),
		Timestamp: getUint64(msg[headerEnd:timestampEnd]),
		Reason:    msg[timestampEnd],
	}, nil
}

// Executed is sent to each counterparty of a trade.
type Executed struct {
	Header
	Timestamp  uint64
	BuyerMPID  string
	SellerMPID string
	TradeID    string
	Price      uint32
	Size       uint32
}

func (m Executed) Type() byte        { return ExecutedType }
func (m Executed) Submitter() string { return m.MPID }

const (
	buyerOffset   = timestampEnd
	sellerOffset  = buyerOffset + MPIDLen
	tradeIDOffset = sellerOffset + MPIDLen
	execPriceOff  = tradeIDOffset + TradeIDLen
)

func (m Executed) Encode() ([]byte, error) {
	buf := make([]byte, ExecutedLen)
	if err := m.Header.put(buf, ExecutedType); err != nil {
		return nil, err
	}
	putUint64(buf[headerEnd:timestampEnd], m.Timestamp)
	putText(buf[buyerOffset:sellerOffset], m.BuyerMPID)
	putText(buf[sellerOffset:tradeIDOffset], m.SellerMPID)
	if err := putID(buf[tradeIDOffset:execPriceOff], "trade id", m.TradeID); err != nil {
		return nil, err
	}
	putUint32(buf[execPriceOff:execPriceOff+4], m.Price)
	putUint32(buf[execPriceOff+4:execPriceOff+8], m.Size)
	return buf, nil
}

func DecodeExecuted(msg []byte) (Executed, error) {
	if err := checkLen(msg, ExecutedLen, ExecutedType); err != nil {
		return Executed{}, err
	}
	return Executed{
		Header:     getHeader(msg),
		Timestamp:  getUint64(msg[headerEnd:timestampEnd]),
		BuyerMPID:  getText(msg[buyerOffset:sellerOffset]),
		SellerMPID: getText(msg[sellerOffset:tradeIDOffset]),
		TradeID:    getText(msg[tradeIDOffset:execPriceOff]),
		Price:      getUint32(msg[execPriceOff : execPriceOff+4]),
		Size:       getUint32(msg[execPriceOff+4 : execPriceOff+8]),
	}, nil
}

// DecodeOutbound parses any engine to gateway report.
func DecodeOutbound(msg []byte) (Report, error) {
	if len(msg) < TypeLen {
		return nil, fmt.Errorf("empty message: %w", ErrMessageTooShort)
	}
	switch msg[0] {
	case AcceptedType:
		return DecodeAccepted(msg)
	case CanceledType:
		return DecodeCanceled(msg)
	case RejectedType:
		return DecodeRejected(msg)
	case ExecutedType:
		return DecodeExecuted(msg)
	}
	return nil, fmt.Errorf("outbound %q: %w", msg[0], ErrInvalidMessageType)
}

// SubmitterOf reads the mpid of an encoded report without decoding the rest.
func SubmitterOf(msg []byte) (string, bool) {
	if len(msg) < orderIDOffset {
		return "", false
	}
	return getText(msg[mpidOffset:orderIDOffset]), true
}
