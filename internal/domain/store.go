package domain

import (
	"context"
	"io"
	"time"
)

// SessionRecorder persists the normalized session history (trades, fills,
// order events) for post-session analysis. Implementations must tolerate
// duplicate records across reconnects.
type SessionRecorder interface {
	RecordTrades(ctx context.Context, sessionID string, trades []Trade) error
	RecordFills(ctx context.Context, sessionID string, fills []Fill) error
	RecordEvents(ctx context.Context, sessionID string, events []OrderEvent) error
}

// TradeArchiveStore lists recorded trades older than a cutoff for archival.
type TradeArchiveStore interface {
	ListTradesBefore(ctx context.Context, before time.Time) ([]Trade, error)
}

// FillArchiveStore lists recorded fills older than a cutoff for archival.
type FillArchiveStore interface {
	ListFillsBefore(ctx context.Context, before time.Time) ([]Fill, error)
}

// EventArchiveStore lists recorded order events older than a cutoff for
// archival.
type EventArchiveStore interface {
	ListEventsBefore(ctx context.Context, before time.Time) ([]OrderEvent, error)
}

// BlobInfo describes one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter uploads objects to long-term storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves and enumerates stored objects.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}
