package engine

import (
	"ome/internal/common"
	"ome/internal/protocol"
)

// Result is everything a single book operation produced, in emission order.
type Result struct {
	// Resting is the remainder left in the book, nil when fully filled.
	Resting *common.Order
	Trades  []common.Trade
	// Filled lists the exchange order ids of resting orders that were fully
	// filled and so left the book.
	Filled     []string
	Reports    []protocol.Report
	MarketData []protocol.Message
}

// Batch is the engine's output for one inbound message.
type Batch struct {
	Reports    []protocol.Report
	MarketData []protocol.Message
}

func opposite(s common.Side) common.Side {
	if s == common.Buy {
		return common.Sell
	}
	return common.Buy
}
