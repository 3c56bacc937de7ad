package book

import (
	"time"

	"github.com/tradematcher/deskclient/internal/domain"
	"github.com/tradematcher/deskclient/internal/ring"
)

// Reconciler owns the live Book, its derived BookView, and the best-bid/ask
// price history. It is not safe for concurrent use; the session controller
// serializes access.
type Reconciler struct {
	book    Book
	view    domain.BookView
	depth   int
	history *ring.Buffer[domain.PricePoint]
	now     func() time.Time
}

// NewReconciler creates a Reconciler that projects the top depth levels per
// side and retains at most historyLimit price points.
func NewReconciler(depth, historyLimit int) *Reconciler {
	return &Reconciler{
		book:    Empty(),
		depth:   depth,
		history: ring.New[domain.PricePoint](historyLimit),
		now:     time.Now,
	}
}

// ApplySnapshot replaces both book sides wholesale, recomputes the view, and
// appends exactly one price point.
func (r *Reconciler) ApplySnapshot(bids, asks []Level) domain.BookView {
	r.book = FromSnapshot(bids, asks)
	return r.recompute()
}

// ApplyChanges merges one delta message copy-on-write, recomputes the view,
// and appends exactly one price point. The delta is atomic with respect to
// observers: the view only ever reflects all tuples of a message or none.
func (r *Reconciler) ApplyChanges(changes []Change) domain.BookView {
	r.book = ApplyChanges(r.book, changes)
	return r.recompute()
}

// View returns the current derived BookView.
func (r *Reconciler) View() domain.BookView {
	return r.view
}

// History returns a copy of the best-bid/ask time series, oldest first.
func (r *Reconciler) History() []domain.PricePoint {
	return r.history.Snapshot()
}

// Reset discards the book, the view, and the price history. Used when the
// feed signals an engine reset.
func (r *Reconciler) Reset() {
	r.book = Empty()
	r.view = domain.BookView{}
	r.history.Reset()
}

func (r *Reconciler) recompute() domain.BookView {
	r.view = Project(r.book, r.depth)
	r.history.Append(domain.PricePoint{
		Time:    r.now(),
		BestBid: r.view.BestBid(),
		BestAsk: r.view.BestAsk(),
	})
	return r.view
}
