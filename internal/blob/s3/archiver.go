package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/rusel95/interexchangebot/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// multipartThreshold is the payload size above which day files go through
// the multipart uploader.
const multipartThreshold = 8 * 1024 * 1024

// JournalStore is the slice of the opportunity journal the archiver needs.
type JournalStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.JournalEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Archiver implements domain.Archiver. Journal rows older than the cutoff are
// grouped by UTC detection day, appended to archive/opportunities/<day>.jsonl
// and then deleted from the journal. Nothing is deleted unless every day file
// uploaded.
type Archiver struct {
	store  JournalStore
	reader domain.BlobReader
	writer domain.BlobWriter
	logger *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(store JournalStore, reader domain.BlobReader, writer domain.BlobWriter, logger *slog.Logger) *Archiver {
	return &Archiver{
		store:  store,
		reader: reader,
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveOpportunities moves every journal row detected before the cutoff to
// object storage and returns the number of rows archived.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	byDay := make(map[string][]domain.JournalEntry)
	for _, e := range entries {
		day := e.DetectedAt.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], e)
	}
	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		if err := a.archiveDay(ctx, day, byDay[day]); err != nil {
			return 0, err
		}
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities delete: %w", err)
	}
	if deleted != int64(len(entries)) {
		a.logger.WarnContext(ctx, "deleted row count differs from archived",
			slog.Int("archived", len(entries)),
			slog.Int64("deleted", deleted),
		)
	}

	a.logger.InfoContext(ctx, "opportunities archived",
		slog.Int("rows", len(entries)),
		slog.Int("files", len(days)),
		slog.String("before", before.UTC().Format(time.RFC3339)),
	)
	return int64(len(entries)), nil
}

func (a *Archiver) archiveDay(ctx context.Context, day string, entries []domain.JournalEntry) error {
	path := archivePath("opportunities", day)

	existing, err := a.readExisting(ctx, path)
	if err != nil {
		return err
	}
	lines, err := marshalJSONL(entries)
	if err != nil {
		return fmt.Errorf("s3blob: archive %s marshal: %w", path, err)
	}
	payload := append(existing, lines...)

	if len(payload) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(payload), 0)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(payload), jsonlContentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive %s upload: %w", path, err)
	}
	return nil
}

// readExisting returns the current content of a day file, or nil if it does
// not exist yet.
func (a *Archiver) readExisting(ctx context.Context, path string) ([]byte, error) {
	body, err := a.reader.Get(ctx, path)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive read %s: %w", path, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: archive read %s: %w", path, err)
	}
	if n := len(data); n > 0 && data[n-1] != '\n' {
		data = append(data, '\n')
	}
	return data, nil
}

// archivePath builds the object key of a day file:
//
//	archive/opportunities/2025-01-31.jsonl
func archivePath(kind, day string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, day)
}

// marshalJSONL serialises records as newline-delimited JSON.
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

// Compile-time interface check.
var _ domain.Archiver = (*Archiver)(nil)
