package common

import "fmt"

// Party identifies one side of a trade.
type Party struct {
	SubmitterID      string
	SubmitterOrderID string
	ExchangeOrderID  string
}

// Trade is the immutable record of one match between a buyer and a seller.
type Trade struct {
	Timestamp uint64
	Symbol    string
	Price     uint32
	Volume    uint32
	Buyer     Party
	Seller    Party
	TradeID   string
}

func (t Trade) String() string {
	return fmt.Sprintf(
		`TradeID:   %s
Symbol:    %s
Timestamp: %d
Price:     %d
Volume:    %d
Buyer:     %s/%s (%s)
Seller:    %s/%s (%s)`,
		t.TradeID,
		t.Symbol,
		t.Timestamp,
		t.Price,
		t.Volume,
		t.Buyer.SubmitterID, t.Buyer.SubmitterOrderID, t.Buyer.ExchangeOrderID,
		t.Seller.SubmitterID, t.Seller.SubmitterOrderID, t.Seller.ExchangeOrderID,
	)
}
