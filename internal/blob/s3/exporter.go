package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aarontekluuu/pm.ag-sub000/internal/domain"
)

// snapshotKey is the fixed object key for the latest snapshot. Each cycle
// overwrites it; the bucket holds current state, not history.
const snapshotKey = "snapshots/latest.json"

// Exporter mirrors the latest aggregate snapshot to object storage so that
// dashboards and fresh instances can read it without going through the API.
type Exporter struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewExporter creates an Exporter over the given blob writer and reader.
func NewExporter(writer domain.BlobWriter, reader domain.BlobReader) *Exporter {
	return &Exporter{
		writer: writer,
		reader: reader,
	}
}

// Export serializes the snapshot and uploads it to the fixed snapshot key,
// replacing the previous export. Payloads of a multipart part size or more
// go through the multipart uploader instead of a single put.
func (e *Exporter) Export(ctx context.Context, snap *domain.Snapshot) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("s3blob: export snapshot %s: %w", snap.ID, err)
	}

	var err error
	if int64(buf.Len()) >= minPartSize {
		err = e.writer.PutMultipart(ctx, snapshotKey, &buf, minPartSize)
	} else {
		err = e.writer.Put(ctx, snapshotKey, &buf, "application/json")
	}
	if err != nil {
		return fmt.Errorf("s3blob: export snapshot %s: %w", snap.ID, err)
	}
	return nil
}

// Load reads back the most recently exported snapshot, typically to seed the
// cache on boot. Returns domain.ErrNotFound when nothing has been exported.
func (e *Exporter) Load(ctx context.Context) (*domain.Snapshot, error) {
	body, err := e.reader.Get(ctx, snapshotKey)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load snapshot: %w", err)
	}
	defer body.Close()

	var snap domain.Snapshot
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("s3blob: decode snapshot: %w", err)
	}
	return &snap, nil
}

// HasExport reports whether a snapshot object is present in the bucket,
// without fetching it.
func (e *Exporter) HasExport(ctx context.Context) (bool, error) {
	ok, err := e.reader.Exists(ctx, snapshotKey)
	if err != nil {
		return false, fmt.Errorf("s3blob: check export: %w", err)
	}
	return ok, nil
}

// LastExport returns listing metadata for the current export. Returns
// domain.ErrNotFound when nothing has been exported yet.
func (e *Exporter) LastExport(ctx context.Context) (domain.BlobInfo, error) {
	infos, err := e.reader.List(ctx, snapshotKey)
	if err != nil {
		return domain.BlobInfo{}, fmt.Errorf("s3blob: stat export: %w", err)
	}
	for _, info := range infos {
		if info.Key == snapshotKey {
			return info, nil
		}
	}
	return domain.BlobInfo{}, fmt.Errorf("s3blob: stat export: %w", domain.ErrNotFound)
}
