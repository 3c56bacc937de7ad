// Package ledger tracks in-flight orders submitted by this client from the
// locally generated identifier through server acknowledgment, fills,
// cancellation, or rejection.
package ledger

import (
	"strconv"
	"time"

	"github.com/tradematcher/deskclient/internal/domain"
)

// Ledger maps the currently-known identifier of each pending order to its
// metadata. Entries start keyed by the client-assigned id and move to the
// server-assigned id on acknowledgment. Not safe for concurrent use; the
// session controller serializes access.
type Ledger struct {
	entries map[string]domain.PendingOrder
	seq     int64
	now     func() time.Time
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{
		entries: make(map[string]domain.PendingOrder),
		now:     time.Now,
	}
}

// NextClientOrderID generates a per-session-unique client order id from a
// time-derived prefix and a monotonically increasing sequence.
func (l *Ledger) NextClientOrderID() string {
	l.seq++
	base := strconv.FormatInt(l.now().UnixMilli(), 36)
	return "TMP-" + base + "-" + strconv.FormatInt(l.seq, 36)
}

// Submit inserts a pending entry for req keyed by a freshly generated client
// order id and returns it. The entry's OrderID starts as the client id; the
// server id is unknown until an ACK or HTTP response names one.
func (l *Ledger) Submit(req domain.OrderRequest) domain.PendingOrder {
	clientID := l.NextClientOrderID()
	entry := domain.PendingOrder{
		OrderID:       clientID,
		ClientOrderID: clientID,
		Ticker:        req.Ticker,
		Side:          req.Side,
		OrderType:     req.OrderType,
		Price:         req.Price,
		Quantity:      req.Quantity,
		SubmittedAt:   l.now(),
	}
	l.entries[clientID] = entry
	return entry
}

// Rekey moves the entry stored under fromKey to toKey once the server
// assigns a real identifier, preserving the original client order id. The
// old key is removed only when it differs from the new one, so rekeying an
// entry onto its own key is a no-op. An absent fromKey is ignored: late or
// duplicate acknowledgments must not fail.
func (l *Ledger) Rekey(fromKey, toKey string) {
	if fromKey == "" || toKey == "" {
		return
	}
	entry, ok := l.entries[fromKey]
	if !ok {
		return
	}
	entry.OrderID = toKey
	entry.ServerOrderID = toKey
	if entry.ClientOrderID == "" {
		entry.ClientOrderID = fromKey
	}
	l.entries[toKey] = entry
	if fromKey != toKey {
		delete(l.entries, fromKey)
	}
}

// Resolve is the only read path into the ledger. It looks the identifier up
// with a fixed precedence: direct key, then client order id, then server
// order id, then currently-known order id across all pending entries, and
// finally the externally-refreshed open-orders list. The chain exists
// because private-feed events may reference an order by whichever
// identifier the server last emitted, which is not guaranteed to match the
// key the ledger currently uses.
func (l *Ledger) Resolve(id string, openOrders []domain.OpenOrder) (domain.PendingOrder, bool) {
	if id == "" {
		return domain.PendingOrder{}, false
	}
	if entry, ok := l.entries[id]; ok {
		return entry, true
	}
	for _, match := range []func(domain.PendingOrder) string{
		func(e domain.PendingOrder) string { return e.ClientOrderID },
		func(e domain.PendingOrder) string { return e.ServerOrderID },
		func(e domain.PendingOrder) string { return e.OrderID },
	} {
		for _, entry := range l.entries {
			if match(entry) == id {
				return entry, true
			}
		}
	}
	for _, open := range openOrders {
		if open.OrderID == id {
			price := open.Price
			return domain.PendingOrder{
				OrderID:       open.OrderID,
				ServerOrderID: open.OrderID,
				Ticker:        open.Ticker,
				Side:          open.Side,
				OrderType:     open.OrderType,
				Price:         &price,
				Quantity:      open.Quantity,
			}, true
		}
	}
	return domain.PendingOrder{}, false
}

// Remove deletes every provided key; absent keys and empty strings are
// ignored. Terminal events may arrive more than once or under either
// identifier, so removal is idempotent by construction.
func (l *Ledger) Remove(keys ...string) {
	for _, key := range keys {
		if key == "" {
			continue
		}
		delete(l.entries, key)
	}
}

// Clear drops every pending entry, e.g. on authentication expiry.
func (l *Ledger) Clear() {
	l.entries = make(map[string]domain.PendingOrder)
}

// Len returns the number of pending entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}
