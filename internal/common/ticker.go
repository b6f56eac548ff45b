package common

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrPriceOutOfRange = errors.New("price out of range")
	ErrPricePrecision  = errors.New("price has more decimals than the ticker allows")
)

// TickerConfiguration bounds a symbol's book. Only the price range is used by
// matching; the rest is carried for clients and downstream consumers.
type TickerConfiguration struct {
	Symbol     string `yaml:"symbol"`
	MinPrice   uint32 `yaml:"min_price"`
	MaxPrice   uint32 `yaml:"max_price"`
	LotSize    uint32 `yaml:"lot_size"`
	Decimals   int32  `yaml:"decimals"`
	Settlement string `yaml:"settlement"`
	Multiplier uint32 `yaml:"multiplier"`
}

// Contains reports whether a tick price lies within [MinPrice, MaxPrice].
func (c TickerConfiguration) Contains(price uint32) bool {
	return price >= c.MinPrice && price <= c.MaxPrice
}

// Ticks converts a display price (e.g. 1.25 with two decimals) to integer ticks.
func (c TickerConfiguration) Ticks(price decimal.Decimal) (uint32, error) {
	scaled := price.Shift(c.Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%s: %w", price, ErrPricePrecision)
	}
	if scaled.IsNegative() || scaled.GreaterThan(decimal.NewFromInt(int64(c.MaxPrice))) ||
		scaled.LessThan(decimal.NewFromInt(int64(c.MinPrice))) {
		return 0, fmt.Errorf("%s not in [%s, %s]: %w",
			price, c.Price(c.MinPrice), c.Price(c.MaxPrice), ErrPriceOutOfRange)
	}
	return uint32(scaled.IntPart()), nil
}

// Price converts integer ticks back to a display price.
func (c TickerConfiguration) Price(ticks uint32) decimal.Decimal {
	return decimal.NewFromInt(int64(ticks)).Shift(-c.Decimals)
}
