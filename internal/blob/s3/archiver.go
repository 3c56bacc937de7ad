package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tradematcher/deskclient/internal/domain"
)

// Pruner deletes archived history from the primary store once the upload
// has been verified. *postgres.SessionStore satisfies it.
type Pruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver moves aged session history out of the primary store: it queries
// trades, fills, and order events older than a cutoff, serializes each kind
// to JSONL, uploads the files, and then prunes the archived rows.
type Archiver struct {
	logger  *slog.Logger
	writer  domain.BlobWriter
	reader  domain.BlobReader
	session string
	trades  domain.TradeArchiveStore
	fills   domain.FillArchiveStore
	events  domain.EventArchiveStore
	pruner  Pruner
}

// NewArchiver creates an Archiver. Archive keys carry the session id so
// concurrent consoles sharing a bucket never collide. pruner may be nil, in
// which case archived rows are left in place.
func NewArchiver(
	logger *slog.Logger,
	writer domain.BlobWriter,
	reader domain.BlobReader,
	session string,
	trades domain.TradeArchiveStore,
	fills domain.FillArchiveStore,
	events domain.EventArchiveStore,
	pruner Pruner,
) *Archiver {
	return &Archiver{
		logger:  logger.With(slog.String("component", "archiver")),
		writer:  writer,
		reader:  reader,
		session: session,
		trades:  trades,
		fills:   fills,
		events:  events,
		pruner:  pruner,
	}
}

// ArchiveTrades uploads all recorded trades older than the cutoff and
// returns the number archived.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListTradesBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	return uploadRecords(ctx, a, "trades", before, trades)
}

// ArchiveFills uploads all recorded fills older than the cutoff and returns
// the number archived.
func (a *Archiver) ArchiveFills(ctx context.Context, before time.Time) (int64, error) {
	fills, err := a.fills.ListFillsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive fills query: %w", err)
	}
	return uploadRecords(ctx, a, "fills", before, fills)
}

// ArchiveEvents uploads all recorded order-log events older than the cutoff
// and returns the number archived.
func (a *Archiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListEventsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	return uploadRecords(ctx, a, "events", before, events)
}

// ArchiveAll archives every kind, then prunes rows older than the cutoff.
// Pruning only runs when all three uploads succeeded: an archive missing a
// kind must keep its rows recoverable.
func (a *Archiver) ArchiveAll(ctx context.Context, before time.Time) error {
	var total int64
	for _, archive := range []func(context.Context, time.Time) (int64, error){
		a.ArchiveTrades, a.ArchiveFills, a.ArchiveEvents,
	} {
		n, err := archive(ctx, before)
		if err != nil {
			return err
		}
		total += n
	}

	if a.pruner == nil || total == 0 {
		return nil
	}
	pruned, err := a.pruner.DeleteBefore(ctx, before)
	if err != nil {
		return fmt.Errorf("s3blob: prune after archive: %w", err)
	}
	a.logger.Info("archive complete",
		slog.Int64("archived", total),
		slog.Int64("pruned", pruned),
		slog.Time("before", before))
	return nil
}

// uploadRecords marshals records to JSONL and writes them to the archive
// key for the cutoff date. An already-existing object is left untouched:
// the archiver may be re-run after a partial failure and must not clobber
// a verified archive.
func uploadRecords[T any](ctx context.Context, a *Archiver, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	path := archivePath(kind, before, a.session)
	if exists, err := a.reader.Exists(ctx, path); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s head: %w", kind, err)
	} else if exists {
		a.logger.Warn("archive object already exists, skipping upload",
			slog.String("path", path))
		return int64(len(records)), nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	a.logger.Info("archived",
		slog.String("kind", kind),
		slog.String("path", path),
		slog.Int("count", len(records)))
	return int64(len(records)), nil
}

// archivePath builds the key for an archive file, partitioned by the
// cutoff date and session:
//
//	archive/trades/2026-08-31/6f1c9b2e.jsonl
//	archive/fills/2026-08-31/6f1c9b2e.jsonl
//	archive/events/2026-08-31/6f1c9b2e.jsonl
func archivePath(kind string, before time.Time, session string) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, before.Format("2006-01-02"), session)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON
// (JSONL). Each element is marshalled as a single compact JSON line
// followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
