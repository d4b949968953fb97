package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/netsight/reportd/internal/report"
)

// Skip reasons attached to files a batch could not ingest.
const (
	ReasonNoRecords = "no records"
	ReasonError     = "error"
)

// Ledger gates re-processing of already ingested source files.
type Ledger interface {
	ProcessedFilenames(ctx context.Context) (map[string]struct{}, error)
	MarkProcessed(ctx context.Context, filename string) error
}

// RecordWriter bulk-persists canonical records.
type RecordWriter interface {
	InsertRecords(ctx context.Context, records []report.Record) error
}

// Parser converts one file's bytes into canonical records.
type Parser interface {
	Parse(name string, data []byte) ([]report.Record, error)
}

type SkippedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (s SkippedFile) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.Reason)
}

// Result summarizes one ingestion batch.
type Result struct {
	Added   int
	Skipped []SkippedFile
}

type LoaderOption func(*Loader)

func LoaderWithLogger(l *zap.Logger) LoaderOption {
	return func(ld *Loader) {
		ld.logger = l
	}
}

// Loader parses downloaded files and persists their records, marking each
// source file processed only after its records are durably written. A crash
// between insert and mark is retried on the next cycle; the ledger check
// makes the retry idempotent from the ledger's point of view.
type Loader struct {
	logger  *zap.Logger
	parser  Parser
	ledger  Ledger
	records RecordWriter
}

func NewLoader(parser Parser, ledger Ledger, records RecordWriter, opts ...LoaderOption) *Loader {
	ld := &Loader{
		logger:  zap.NewNop(),
		parser:  parser,
		ledger:  ledger,
		records: records,
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// Load ingests a batch of downloaded files. One bad file never aborts the
// batch: it is recorded as skipped and the loop continues.
func (ld *Loader) Load(ctx context.Context, files []File) (Result, error) {
	var result Result

	processed, err := ld.ledger.ProcessedFilenames(ctx)
	if err != nil {
		return result, fmt.Errorf("loading ledger: %w", err)
	}

	for _, file := range files {
		if _, ok := processed[file.Name]; ok {
			continue
		}

		records, err := ld.parser.Parse(file.Name, file.Data)
		if err != nil {
			ld.logger.Warn("failed to parse report file",
				zap.String("file", file.Name),
				zap.Error(err),
			)
			result.Skipped = append(result.Skipped, SkippedFile{Name: file.Name, Reason: ReasonError})
			continue
		}

		if len(records) == 0 {
			result.Skipped = append(result.Skipped, SkippedFile{Name: file.Name, Reason: ReasonNoRecords})
			continue
		}

		if err := ld.records.InsertRecords(ctx, records); err != nil {
			ld.logger.Error("failed to insert records",
				zap.String("file", file.Name),
				zap.Int("records", len(records)),
				zap.Error(err),
			)
			result.Skipped = append(result.Skipped, SkippedFile{Name: file.Name, Reason: ReasonError})
			continue
		}

		if err := ld.ledger.MarkProcessed(ctx, file.Name); err != nil {
			// Records are in; the worst case on retry is duplicate readings,
			// which the aggregation layer collapses.
			ld.logger.Error("failed to mark file processed",
				zap.String("file", file.Name),
				zap.Error(err),
			)
			result.Skipped = append(result.Skipped, SkippedFile{Name: file.Name, Reason: ReasonError})
			continue
		}

		result.Added += len(records)
	}

	ld.logger.Info("ingestion batch complete",
		zap.Int("records_added", result.Added),
		zap.Int("files_skipped", len(result.Skipped)),
	)

	return result, nil
}
