package marketdata

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"

	"ome/internal/bus"
	"ome/internal/common"
	"ome/internal/protocol"
)

func add(id string, side common.Side, price, shares uint32) protocol.AddOrder {
	return protocol.AddOrder{Ticker: "TPCF0101", ExchangeOrderID: id, Side: byte(side), Price: price, Shares: shares}
}

func applyAll(t *testing.T, b *Book, msgs ...protocol.Message) {
	t.Helper()
	for _, m := range msgs {
		require.NoError(t, b.Apply(m))
	}
}

func TestBook_Snapshot(t *testing.T) {
	b := NewBook("TPCF0101")

	// 1. Empty book reports zeroes.
	assert.Equal(t, protocol.BBO{Ticker: "TPCF0101"}, b.Snapshot())

	// 2. Six bid levels and two ask levels.
	applyAll(t, b,
		add("1", common.Buy, 100, 10),
		add("2", common.Buy, 100, 5),
		add("3", common.Buy, 99, 1),
		add("4", common.Buy, 98, 1),
		add("5", common.Buy, 97, 1),
		add("6", common.Buy, 96, 1),
		add("7", common.Buy, 95, 1),
		add("8", common.Sell, 102, 7),
		add("9", common.Sell, 101, 3),
	)

	bbo := b.Snapshot()
	assert.Equal(t, uint32(100), bbo.BestBidPrice)
	assert.Equal(t, uint32(15), bbo.BestBidVolume)
	assert.Equal(t, uint32(101), bbo.BestAskPrice)
	assert.Equal(t, uint32(3), bbo.BestAskVolume)
	assert.Equal(t, uint32(20), bbo.TotalBidVolume)
	assert.Equal(t, uint32(10), bbo.TotalAskVolume)

	// 3. Bids descending, capped at five; asks ascending, zero filled.
	assert.Equal(t, [protocol.BBODepth]protocol.PriceVolume{
		{Price: 100, Volume: 15}, {Price: 99, Volume: 1}, {Price: 98, Volume: 1}, {Price: 97, Volume: 1}, {Price: 96, Volume: 1},
	}, bbo.Bids)
	assert.Equal(t, [protocol.BBODepth]protocol.PriceVolume{
		{Price: 101, Volume: 3}, {Price: 102, Volume: 7},
	}, bbo.Asks)
}

func TestBook_CancelAndTrade(t *testing.T) {
	b := NewBook("TPCF0101")
	applyAll(t, b,
		add("1", common.Sell, 100, 10),
		add("2", common.Sell, 100, 10),
		add("3", common.Sell, 101, 5),
	)

	// 1. A trade against the resting sell; the aggressor never rested.
	applyAll(t, b, protocol.Trade{Ticker: "TPCF0101", Timestamp: 9, Price: 100, Shares: 10, BuyerExchangeOrderID: "99", SellerExchangeOrderID: "1", ExchangeTradeID: "1"})
	assert.Equal(t, []protocol.PriceVolume{{Price: 100, Volume: 10}, {Price: 101, Volume: 5}}, b.Levels(common.Sell, 5))

	// 2. Cancel the rest of the level and it disappears.
	applyAll(t, b, protocol.OrderCancel{Ticker: "TPCF0101", Timestamp: 10, ExchangeOrderID: "2", CanceledShares: 10})
	assert.Equal(t, []protocol.PriceVolume{{Price: 101, Volume: 5}}, b.Levels(common.Sell, 5))

	bbo := b.Snapshot()
	assert.Equal(t, uint64(10), bbo.Timestamp)
	assert.Equal(t, uint32(101), bbo.BestAskPrice)
	assert.Equal(t, uint32(5), bbo.TotalAskVolume)

	// 3. Filled and canceled orders are forgotten.
	assert.ErrorIs(t, b.Apply(protocol.OrderCancel{Ticker: "TPCF0101", ExchangeOrderID: "1", CanceledShares: 1}), ErrUnknownOrder)
	assert.ErrorIs(t, b.Apply(protocol.OrderCancel{Ticker: "TPCF0101", ExchangeOrderID: "2", CanceledShares: 1}), ErrUnknownOrder)
}

func TestBook_PartialTradeKeepsOrder(t *testing.T) {
	b := NewBook("T")
	applyAll(t, b, protocol.AddOrder{Ticker: "T", ExchangeOrderID: "1", Side: 'B', Price: 5, Shares: 10})
	applyAll(t, b, protocol.Trade{Ticker: "T", Price: 5, Shares: 4, BuyerExchangeOrderID: "1", SellerExchangeOrderID: "2", ExchangeTradeID: "1"})

	assert.Equal(t, []protocol.PriceVolume{{Price: 5, Volume: 6}}, b.Levels(common.Buy, 5))
	applyAll(t, b, protocol.OrderCancel{Ticker: "T", ExchangeOrderID: "1", CanceledShares: 6})
	assert.Empty(t, b.Levels(common.Buy, 5))
}

func TestBook_Errors(t *testing.T) {
	b := NewBook("T")
	assert.ErrorIs(t, b.Apply(protocol.AddOrder{Ticker: "OTHER", ExchangeOrderID: "1", Side: 'B'}), ErrWrongTicker)
	assert.ErrorIs(t, b.Apply(protocol.AddOrder{Ticker: "T", ExchangeOrderID: "1", Side: 'X'}), protocol.ErrInvalidMessageType)
	assert.ErrorIs(t, b.Apply(protocol.Trade{Ticker: "T", BuyerExchangeOrderID: "a", SellerExchangeOrderID: "b"}), ErrUnknownOrder)
	assert.ErrorIs(t, b.Apply(protocol.OrderEntry{}), protocol.ErrInvalidMessageType)
}

func TestBook_VolumeClamp(t *testing.T) {
	b := NewBook("T")
	applyAll(t, b,
		protocol.AddOrder{Ticker: "T", ExchangeOrderID: "1", Side: 'S', Price: 5, Shares: math.MaxUint32},
		protocol.AddOrder{Ticker: "T", ExchangeOrderID: "2", Side: 'S', Price: 5, Shares: 10},
	)
	bbo := b.Snapshot()
	assert.Equal(t, uint32(math.MaxUint32), bbo.BestAskVolume)
	assert.Equal(t, uint32(math.MaxUint32), bbo.TotalAskVolume)
}

func TestTickerplant_PublishesSnapshots(t *testing.T) {
	memory := bus.NewMemory()
	defer memory.Close()
	snapshots, _ := memory.Subscribe(bus.BBOTopic("OME1"), 16)
	feed, _ := memory.Subscribe(bus.MarketDataTopic("OME1"), 16)

	tp := New(memory, "OME1")
	tb, _ := tomb.WithContext(context.Background())
	tb.Go(func() error { return tp.Run(tb, feed) })
	defer func() {
		tb.Kill(nil)
		_ = tb.Wait()
	}()

	// 1. Publish two adds on the market data topic.
	ctx := context.Background()
	for _, m := range []protocol.AddOrder{add("1", common.Buy, 100, 10), add("2", common.Sell, 105, 4)} {
		raw, err := m.Encode()
		require.NoError(t, err)
		require.NoError(t, memory.Publish(ctx, bus.MarketDataTopic("OME1"), raw))
	}

	// 2. One snapshot per message, the latest carrying both sides.
	var last protocol.BBO
	for range 2 {
		select {
		case env := <-snapshots:
			assert.Equal(t, "BBO-OME1", env.Topic)
			bbo, err := protocol.DecodeBBO(env.Payload)
			require.NoError(t, err)
			last = bbo
		case <-time.After(2 * time.Second):
			require.FailNow(t, "timed out waiting for a snapshot")
		}
	}
	assert.Equal(t, "TPCF0101", last.Ticker)
	assert.Equal(t, uint32(100), last.BestBidPrice)
	assert.Equal(t, uint32(105), last.BestAskPrice)

	b, ok := tp.Book("TPCF0101")
	require.True(t, ok)
	assert.Equal(t, "TPCF0101", b.Ticker())
}

func TestTickerplant_Handle(t *testing.T) {
	memory := bus.NewMemory()
	tp := New(memory, "OME1")

	_, err := tp.Handle(context.Background(), []byte("garbage"))
	assert.ErrorIs(t, err, protocol.ErrInvalidMessageType)

	// An inconsistent message still produces a snapshot.
	raw, err := protocol.OrderCancel{Ticker: "T", Timestamp: 3, ExchangeOrderID: "1", CanceledShares: 1}.Encode()
	require.NoError(t, err)
	bbo, err := tp.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "T", bbo.Ticker)
	assert.Equal(t, uint64(3), bbo.Timestamp)
}
