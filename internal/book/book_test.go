package book

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/tradematcher/deskclient/internal/domain"
)

func levels(view []domain.PriceLevel) []string {
	out := make([]string, len(view))
	for i, lvl := range view {
		out[i] = fmt.Sprintf("%s@%d", lvl.Key, lvl.Quantity)
	}
	return out
}

func TestFromSnapshotKeysFixedPrecision(t *testing.T) {
	b := FromSnapshot(
		[]Level{{Price: 100.5, Quantity: 10}, {Price: 99, Quantity: 5}},
		[]Level{{Price: 101.25, Quantity: 7}},
	)

	if _, ok := b.Bids["100.500"]; !ok {
		t.Fatalf("bid key 100.500 missing, have %v", b.Bids)
	}
	if _, ok := b.Bids["99.000"]; !ok {
		t.Fatalf("bid key 99.000 missing, have %v", b.Bids)
	}
	if _, ok := b.Asks["101.250"]; !ok {
		t.Fatalf("ask key 101.250 missing, have %v", b.Asks)
	}
}

func TestFromSnapshotDropsNonPositiveQuantities(t *testing.T) {
	b := FromSnapshot([]Level{{Price: 100, Quantity: 0}, {Price: 99, Quantity: -3}}, nil)
	if len(b.Bids) != 0 {
		t.Fatalf("non-positive quantities must not be stored, have %v", b.Bids)
	}
}

func TestApplyChangesUpsertAndDelete(t *testing.T) {
	b := FromSnapshot([]Level{{Price: 100, Quantity: 10}}, []Level{{Price: 101, Quantity: 4}})

	next := ApplyChanges(b, []Change{
		{Side: domain.OrderSideBuy, PriceKey: "100.000", Quantity: "15"},
		{Side: domain.OrderSideBuy, PriceKey: "99.500", Quantity: "3"},
		{Side: domain.OrderSideSell, PriceKey: "101.000", Quantity: "0"},
	})

	if got := next.Bids["100.000"].Quantity; got != 15 {
		t.Fatalf("bid 100.000 quantity = %d, want 15", got)
	}
	if got := next.Bids["99.500"].Quantity; got != 3 {
		t.Fatalf("bid 99.500 quantity = %d, want 3", got)
	}
	if _, ok := next.Asks["101.000"]; ok {
		t.Fatal("ask 101.000 should have been deleted by zero quantity")
	}
}

func TestApplyChangesNeverRetainsNonPositive(t *testing.T) {
	b := Empty()
	next := ApplyChanges(b, []Change{
		{Side: domain.OrderSideBuy, PriceKey: "100.000", Quantity: "-5"},
		{Side: domain.OrderSideSell, PriceKey: "101.000", Quantity: "garbage"},
		{Side: domain.OrderSideSell, PriceKey: "", Quantity: "10"},
	})

	if len(next.Bids) != 0 || len(next.Asks) != 0 {
		t.Fatalf("book must stay empty, have bids=%v asks=%v", next.Bids, next.Asks)
	}
}

func TestApplyChangesDeleteAbsentLevelIsNoOp(t *testing.T) {
	b := FromSnapshot([]Level{{Price: 100, Quantity: 10}}, nil)
	next := ApplyChanges(b, []Change{
		{Side: domain.OrderSideSell, PriceKey: "250.000", Quantity: "0"},
	})

	if len(next.Bids) != 1 || len(next.Asks) != 0 {
		t.Fatalf("no-op delete changed the book: bids=%v asks=%v", next.Bids, next.Asks)
	}
}

func TestApplyChangesIsCopyOnWrite(t *testing.T) {
	prev := FromSnapshot([]Level{{Price: 100, Quantity: 10}}, nil)
	_ = ApplyChanges(prev, []Change{
		{Side: domain.OrderSideBuy, PriceKey: "100.000", Quantity: "99"},
	})

	if got := prev.Bids["100.000"].Quantity; got != 10 {
		t.Fatalf("previous book mutated: quantity = %d, want 10", got)
	}
}

func TestProjectSortsAndTruncates(t *testing.T) {
	b := FromSnapshot(
		[]Level{{Price: 99, Quantity: 1}, {Price: 101, Quantity: 2}, {Price: 100, Quantity: 3}},
		[]Level{{Price: 103, Quantity: 4}, {Price: 102, Quantity: 5}, {Price: 104, Quantity: 6}},
	)

	view := Project(b, 2)

	wantBids := []string{"101.000@2", "100.000@3"}
	if got := levels(view.Bids); !reflect.DeepEqual(got, wantBids) {
		t.Fatalf("bids = %v, want %v", got, wantBids)
	}
	wantAsks := []string{"102.000@5", "103.000@4"}
	if got := levels(view.Asks); !reflect.DeepEqual(got, wantAsks) {
		t.Fatalf("asks = %v, want %v", got, wantAsks)
	}
}

func TestSnapshotIdempotence(t *testing.T) {
	bids := []Level{{Price: 100, Quantity: 10}, {Price: 99.5, Quantity: 3}}
	asks := []Level{{Price: 101, Quantity: 4}}

	first := Project(FromSnapshot(bids, asks), 50)
	second := Project(FromSnapshot(bids, asks), 50)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("re-applying an identical snapshot changed the view:\n%v\n%v", first, second)
	}
}

func TestReconcilerAppendsOnePricePointPerMessage(t *testing.T) {
	r := NewReconciler(50, 100)

	r.ApplySnapshot([]Level{{Price: 100, Quantity: 10}}, []Level{{Price: 101, Quantity: 5}})
	r.ApplyChanges([]Change{
		{Side: domain.OrderSideBuy, PriceKey: "100.000", Quantity: "8"},
		{Side: domain.OrderSideBuy, PriceKey: "99.000", Quantity: "2"},
	})

	history := r.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2 (one point per message)", len(history))
	}
	last := history[1]
	if last.BestBid == nil || *last.BestBid != 100 {
		t.Fatalf("best bid = %v, want 100", last.BestBid)
	}
	if last.BestAsk == nil || *last.BestAsk != 101 {
		t.Fatalf("best ask = %v, want 101", last.BestAsk)
	}
}

func TestReconcilerRecordsNilBestPricesOnEmptySides(t *testing.T) {
	r := NewReconciler(50, 100)
	r.ApplySnapshot(nil, nil)

	history := r.History()
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	if history[0].BestBid != nil || history[0].BestAsk != nil {
		t.Fatalf("best prices on an empty book must be nil, got %+v", history[0])
	}
}

func TestReconcilerReset(t *testing.T) {
	r := NewReconciler(50, 100)
	r.ApplySnapshot([]Level{{Price: 100, Quantity: 10}}, nil)
	r.Reset()

	if len(r.View().Bids) != 0 || len(r.View().Asks) != 0 {
		t.Fatalf("view not cleared: %+v", r.View())
	}
	if len(r.History()) != 0 {
		t.Fatalf("history not cleared: %d points", len(r.History()))
	}
}
