package common

import "fmt"

type Side byte

const (
	Buy  Side = 'B'
	Sell Side = 'S'
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return fmt.Sprintf("Side(%q)", byte(s))
}

// Order is a resting or incoming order as seen by a single book.
type Order struct {
	ExchangeOrderID  string // Engine assigned identity
	Symbol           string // Ticker the order trades
	Price            uint32 // Limit price in ticks
	Volume           uint32 // Remaining volume, decremented in place while matching
	SubmitterID      string // Owning mpid
	SubmitterOrderID string // Order id chosen by the submitter
	Timestamp        uint64 // Logical clock at admission
	Side             Side   // Order side
}

func (order Order) String() string {
	return fmt.Sprintf(
		`ExchangeOrderID:  %s
Symbol:           %s
Side:             %v
Price:            %d
Volume:           %d
SubmitterID:      %s
SubmitterOrderID: %s
Timestamp:        %d`,
		order.ExchangeOrderID,
		order.Symbol,
		order.Side,
		order.Price,
		order.Volume,
		order.SubmitterID,
		order.SubmitterOrderID,
		order.Timestamp,
	)
}
