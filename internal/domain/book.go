package domain

import (
	"strconv"
	"time"
)

// PriceKeyPrecision is the number of decimal places used when a raw price is
// turned into a level map key, so floating-point prices key consistently.
const PriceKeyPrecision = 3

// PriceKey renders a price as the canonical fixed-precision map key.
func PriceKey(price float64) string {
	return strconv.FormatFloat(price, 'f', PriceKeyPrecision, 64)
}

// PriceLevel is a single resting price+quantity entry on one side of the book.
// A level with Quantity <= 0 is never stored; it is deleted instead.
type PriceLevel struct {
	Key      string  `json:"key"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// BookView is the depth-limited, sorted projection of both book sides.
// Bids are sorted descending by price, asks ascending. It is derived state:
// recomputed after every snapshot or delta, never mutated in place.
type BookView struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// BestBid returns the top bid price, or nil when the bid side is empty.
func (v BookView) BestBid() *float64 {
	if len(v.Bids) == 0 {
		return nil
	}
	p := v.Bids[0].Price
	return &p
}

// BestAsk returns the top ask price, or nil when the ask side is empty.
func (v BookView) BestAsk() *float64 {
	if len(v.Asks) == 0 {
		return nil
	}
	p := v.Asks[0].Price
	return &p
}

// PricePoint is one sample of the best-bid/best-ask time series. A point is
// appended on every book recomputation even when the best prices are
// unchanged, which yields a step function suitable for charting.
type PricePoint struct {
	Time    time.Time `json:"time"`
	BestBid *float64  `json:"bestBid"`
	BestAsk *float64  `json:"bestAsk"`
}
