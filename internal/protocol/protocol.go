// Package protocol implements the fixed-width binary messages exchanged between
// the gateway, the matching engine and market data consumers.
//
// Every integer is unsigned big-endian. Text fields are ASCII, right padded with
// spaces. Free text fields (mpid, ticker) are truncated when too long, while
// identifiers (order ids, exchange order ids, trade ids) refuse to encode.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMessageTooShort    = errors.New("message too short")
	ErrFieldTooLong       = errors.New("field exceeds its fixed width")
)

// Field widths.
const (
	TypeLen            = 1
	MPIDLen            = 10
	OrderIDLen         = 10
	TickerLen          = 8
	SideLen            = 1
	PriceLen           = 4
	SizeLen            = 4
	TimestampLen       = 8
	ReasonLen          = 1
	TradeIDLen         = 10
	ExchangeOrderIDLen = 10
)

// Message is anything that travels on the wire.
type Message interface {
	Type() byte
	Encode() ([]byte, error)
}

// Report is an outbound message addressed to the submitter that owns it.
type Report interface {
	Message
	Submitter() string
}

// Header offsets shared by every submitter-keyed message.
const (
	mpidOffset    = TypeLen
	orderIDOffset = mpidOffset + MPIDLen
	tickerOffset  = orderIDOffset + OrderIDLen
	headerEnd     = tickerOffset + TickerLen
)

// Header is the mpid/order id/ticker prefix of order entry and every report.
type Header struct {
	MPID    string
	OrderID string
	Ticker  string
}

// PeekHeader extracts whatever header fields fit into msg, regardless of its
// type. ok is false when msg is too short to carry even an mpid and order id.
func PeekHeader(msg []byte) (h Header, ok bool) {
	if len(msg) < tickerOffset {
		return Header{}, false
	}
	h.MPID = getText(msg[mpidOffset:orderIDOffset])
	h.OrderID = getText(msg[orderIDOffset:tickerOffset])
	if len(msg) >= headerEnd {
		h.Ticker = getText(msg[tickerOffset:headerEnd])
	}
	return h, true
}

func (h Header) put(buf []byte, typ byte) error {
	buf[0] = typ
	putText(buf[mpidOffset:orderIDOffset], h.MPID)
	if err := putID(buf[orderIDOffset:tickerOffset], "order id", h.OrderID); err != nil {
		return err
	}
	putText(buf[tickerOffset:headerEnd], h.Ticker)
	return nil
}

func getHeader(msg []byte) Header {
	h, _ := PeekHeader(msg)
	return h
}

// putText writes s left aligned in dst, truncating or padding with spaces.
func putText(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}

// putID is putText for identifiers, which must fit their field.
func putID(dst []byte, name, id string) error {
	if len(id) > len(dst) {
		return fmt.Errorf("%s %q longer than %d bytes: %w", name, id, len(dst), ErrFieldTooLong)
	}
	putText(dst, id)
	return nil
}

// getText strips the right padding only, so leading spaces survive a round trip.
func getText(src []byte) string {
	return strings.TrimRight(string(src), " ")
}

func checkLen(msg []byte, want int, typ byte) error {
	if len(msg) < want {
		return fmt.Errorf("%q needs %d bytes, got %d: %w", typ, want, len(msg), ErrMessageTooShort)
	}
	if msg[0] != typ {
		return fmt.Errorf("expected %q, got %q: %w", typ, msg[0], ErrInvalidMessageType)
	}
	return nil
}

func putUint32(dst []byte, v uint32) { binary.BigEndian.PutUint32(dst, v) }
func putUint64(dst []byte, v uint64) { binary.BigEndian.PutUint64(dst, v) }
func getUint32(src []byte) uint32    { return binary.BigEndian.Uint32(src) }
func getUint64(src []byte) uint64    { return binary.BigEndian.Uint64(src) }
