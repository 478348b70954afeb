package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

// EventArchiver offloads old event-log rows to object storage as JSONL,
// partitioned by the year-month of the cutoff. Deletion from the primary
// store is intentionally not performed here; it is a separate explicit step
// after the archive has been verified.
type EventArchiver struct {
	writer domain.BlobWriter
	events domain.EventStore
}

// NewEventArchiver creates an EventArchiver.
func NewEventArchiver(writer domain.BlobWriter, events domain.EventStore) *EventArchiver {
	return &EventArchiver{
		writer: writer,
		events: events,
	}
}

// ArchiveBefore uploads all events created before the cutoff to
// archive/events/YYYY-MM.jsonl and returns the number archived.
func (a *EventArchiver) ArchiveBefore(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.List(ctx, domain.ListOpts{Until: &before})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	key := fmt.Sprintf("archive/events/%s.jsonl", before.Format("2006-01"))
	if err := a.writer.Put(ctx, key, "application/x-ndjson", buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	return int64(len(events)), nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON, one
// compact line per record.
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
