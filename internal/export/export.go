// Package export renders attendance as CSV and archives daily snapshots.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/yogaflow/attendance/internal/apperrors"
	"github.com/yogaflow/attendance/internal/models"
)

var ErrArchiveDisabled = apperrors.New(apperrors.KindNotFound, "attendance archive is not configured")

var header = []string{"id", "username", "date", "attended", "level", "device", "created_at"}

// Source lists attendance between two calendar days inclusive
type Source interface {
	All(ctx context.Context, from, to string) ([]*models.AttendanceRecord, error)
}

// Archiver stores a rendered snapshot under key
type Archiver interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Exporter writes attendance exports. A nil archiver disables Archive.
type Exporter struct {
	source   Source
	archiver Archiver
	log      *slog.Logger
}

func NewExporter(source Source, archiver Archiver, log *slog.Logger) *Exporter {
	return &Exporter{source: source, archiver: archiver, log: log}
}

// WriteCSV renders records with a header row
func WriteCSV(w io.Writer, records []*models.AttendanceRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.Username,
			r.Date,
			strconv.FormatBool(r.Attended),
			strconv.Itoa(r.Level),
			r.Device,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Export writes the CSV of every record between from and to
func (e *Exporter) Export(ctx context.Context, w io.Writer, from, to string) (int, error) {
	records, err := e.source.All(ctx, from, to)
	if err != nil {
		return 0, err
	}
	if err := WriteCSV(w, records); err != nil {
		return 0, fmt.Errorf("export.Exporter.Export: %w", err)
	}
	return len(records), nil
}

// Archive uploads the CSV of one day and returns the object key
func (e *Exporter) Archive(ctx context.Context, date string) (string, error) {
	const op = "export.Exporter.Archive"

	if e.archiver == nil {
		return "", ErrArchiveDisabled
	}
	day, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return "", apperrors.Validation(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", date))
	}

	var buf bytes.Buffer
	n, err := e.Export(ctx, &buf, date, date)
	if err != nil {
		return "", err
	}

	key := ArchiveKey(day)
	if err := e.archiver.Put(ctx, key, buf.Bytes(), "text/csv"); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	e.log.Info("attendance archived", slog.String("op", op), slog.String("key", key), slog.Int("records", n))
	return key, nil
}

// ArchiveKey is the object key of a day's snapshot
func ArchiveKey(day time.Time) string {
	return day.Format("attendance/2006/01/02.csv")
}
