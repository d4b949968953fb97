package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsight/reportd/internal/report"
)

type memLedger struct {
	processed map[string]struct{}
	markErr   error
}

func newMemLedger() *memLedger {
	return &memLedger{processed: make(map[string]struct{})}
}

func (l *memLedger) ProcessedFilenames(ctx context.Context) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(l.processed))
	for k := range l.processed {
		out[k] = struct{}{}
	}
	return out, nil
}

func (l *memLedger) MarkProcessed(ctx context.Context, filename string) error {
	if l.markErr != nil {
		return l.markErr
	}
	l.processed[filename] = struct{}{}
	return nil
}

type memWriter struct {
	records   []report.Record
	insertErr error
}

func (w *memWriter) InsertRecords(ctx context.Context, records []report.Record) error {
	if w.insertErr != nil {
		return w.insertErr
	}
	w.records = append(w.records, records...)
	return nil
}

var (
	goodCSV  = []byte("Device,Clients,State\nap-01,5,up\nap-02,3,down\n")
	emptyCSV = []byte("Device,Clients,State\n")
	badXLSX  = []byte("not a workbook")
)

func TestLoad(t *testing.T) {
	ctx := context.Background()
	parser := report.NewParser()

	t.Run("ingestion is idempotent under the ledger gate", func(t *testing.T) {
		ledger := newMemLedger()
		writer := &memWriter{}
		ld := NewLoader(parser, ledger, writer)

		batch := []File{{Name: "SiteA-15.03.2024 14h30.csv", Data: goodCSV}}

		result, err := ld.Load(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Added)
		assert.Len(t, writer.records, 2)

		result, err = ld.Load(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Added)
		assert.Len(t, writer.records, 2)
	})

	t.Run("one bad file never aborts the batch", func(t *testing.T) {
		ledger := newMemLedger()
		writer := &memWriter{}
		ld := NewLoader(parser, ledger, writer)

		result, err := ld.Load(ctx, []File{
			{Name: "SiteA-ok.csv", Data: goodCSV},
			{Name: "broken.xlsx", Data: badXLSX},
			{Name: "SiteB-ok.csv", Data: goodCSV},
		})
		require.NoError(t, err)

		assert.Equal(t, 4, result.Added)
		require.Len(t, result.Skipped, 1)
		assert.Equal(t, "broken.xlsx", result.Skipped[0].Name)
		assert.Equal(t, ReasonError, result.Skipped[0].Reason)

		// broken file stays unmarked so a fixed upload retries
		_, marked := ledger.processed["broken.xlsx"]
		assert.False(t, marked)
	})

	t.Run("files with no usable rows are skipped with a reason", func(t *testing.T) {
		ledger := newMemLedger()
		writer := &memWriter{}
		ld := NewLoader(parser, ledger, writer)

		result, err := ld.Load(ctx, []File{{Name: "empty.csv", Data: emptyCSV}})
		require.NoError(t, err)

		assert.Equal(t, 0, result.Added)
		require.Len(t, result.Skipped, 1)
		assert.Equal(t, ReasonNoRecords, result.Skipped[0].Reason)
		assert.Equal(t, "empty.csv (no records)", result.Skipped[0].String())
	})

	t.Run("insert failure leaves the file unmarked", func(t *testing.T) {
		ledger := newMemLedger()
		writer := &memWriter{insertErr: errors.New("connection reset")}
		ld := NewLoader(parser, ledger, writer)

		result, err := ld.Load(ctx, []File{{Name: "SiteA-ok.csv", Data: goodCSV}})
		require.NoError(t, err)

		assert.Equal(t, 0, result.Added)
		require.Len(t, result.Skipped, 1)
		assert.Empty(t, ledger.processed)
	})

	t.Run("mark failure reported but records persist", func(t *testing.T) {
		ledger := newMemLedger()
		ledger.markErr = errors.New("duplicate key")
		writer := &memWriter{}
		ld := NewLoader(parser, ledger, writer)

		result, err := ld.Load(ctx, []File{{Name: "SiteA-ok.csv", Data: goodCSV}})
		require.NoError(t, err)

		assert.Equal(t, 0, result.Added)
		assert.Len(t, writer.records, 2)
		require.Len(t, result.Skipped, 1)
	})
}
