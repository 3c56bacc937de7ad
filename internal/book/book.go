// Package book maintains the client-side view of the limit order book: two
// level maps rebuilt from engine snapshots and merged with incremental
// deltas, projected into depth-limited sorted views for display.
package book

import (
	"sort"
	"strconv"

	"github.com/tradematcher/deskclient/internal/domain"
)

// SideBook maps a canonical price key to its resting level. Ordering is
// computed on read, never stored.
type SideBook map[string]domain.PriceLevel

func (s SideBook) clone() SideBook {
	next := make(SideBook, len(s))
	for k, v := range s {
		next[k] = v
	}
	return next
}

// Book holds both sides of the order book.
type Book struct {
	Bids SideBook
	Asks SideBook
}

// Empty returns a Book with empty sides.
func Empty() Book {
	return Book{Bids: SideBook{}, Asks: SideBook{}}
}

// Level is one raw {price, quantity} entry from an engine snapshot.
type Level struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// Change is one [side, priceKey, quantity] tuple from an LOB_UPDATE delta.
/// Quantity stays a string until applied: an unparseable or non-positive
// value means the level is removed.
type Change struct {
	Side     domain.OrderSide
	PriceKey string
	Quantity string
}

// FromSnapshot builds a fresh Book from a full engine snapshot, discarding
// any previous state. Price keys are formatted to fixed precision so that
// floating-point prices key consistently with delta tuples.
func FromSnapshot(bids, asks []Level) Book {
	next := Book{
		Bids: make(SideBook, len(bids)),
		Asks: make(SideBook, len(asks)),
	}
	for _, lvl := range bids {
		upsert(next.Bids, domain.PriceKey(lvl.Price), lvl.Quantity)
	}
	for _, lvl := range asks {
		upsert(next.Asks, domain.PriceKey(lvl.Price), lvl.Quantity)
	}
	return next
}

// ApplyChanges merges one delta message into prev and returns the resulting
// Book. Both sides are copied before any tuple is applied, so a reader
// holding prev never observes a partially-applied delta. Tuples with an
// unparseable or non-positive quantity delete the addressed level; deleting
// an absent level is a no-op.
func ApplyChanges(prev Book, changes []Change) Book {
	next := Book{Bids: prev.Bids.clone(), Asks: prev.Asks.clone()}
	for _, ch := range changes {
		if ch.PriceKey == "" {
			continue
		}
		side := next.Bids
		if ch.Side == domain.OrderSideSell {
			side = next.Asks
		}
		qty, err := strconv.ParseInt(ch.Quantity, 10, 64)
		if err != nil || qty <= 0 {
			delete(side, ch.PriceKey)
			continue
		}
		upsert(side, ch.PriceKey, qty)
	}
	return next
}

// upsert stores a level under key, honoring the invariant that a level with
// quantity <= 0 is deleted rather than stored as zero.
func upsert(side SideBook, key string, qty int64) {
	if qty <= 0 {
		delete(side, key)
		return
	}
	price, err := strconv.ParseFloat(key, 64)
	if err != nil {
		return
	}
	side[key] = domain.PriceLevel{Key: key, Price: price, Quantity: qty}
}

// Project computes the depth-limited sorted BookView for a Book: bids
// descending by price, asks ascending, each truncated to depth levels.
func Project(b Book, depth int) domain.BookView {
	return domain.BookView{
		Bids: sortedLevels(b.Bids, true, depth),
		Asks: sortedLevels(b.Asks, false, depth),
	}
}

func sortedLevels(side SideBook, descending bool, depth int) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(side))
	for _, lvl := range side {
		levels = append(levels, lvl)
	}
	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].Price > levels[j].Price
		}
		return levels[i].Price < levels[j].Price
	})
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	return levels
}
