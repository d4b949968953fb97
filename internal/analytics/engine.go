package analytics

import (
	"context"

	"go.uber.org/zap"

	"github.com/netsight/reportd/internal/report"
	"github.com/netsight/reportd/internal/store"
)

// RecordSource is the slice of the record store the engine reads from. The
// engine is a pure reader: in-flight syncs only affect it through eventual
// consistency of newly written records.
type RecordSource interface {
	DistinctSites(ctx context.Context) ([]string, error)
	DistinctDevices(ctx context.Context, site string) ([]string, error)
	FindRecords(ctx context.Context, q store.RecordQuery) ([]report.Record, error)
	LatestRecords(ctx context.Context, sites []string, limit int64) ([]report.Record, error)
}

type EngineOption func(*Engine)

func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithUpStates overrides the vocabulary of "up" state synonyms.
func WithUpStates(states []string) EngineOption {
	return func(e *Engine) {
		e.upStates = make(map[string]struct{}, len(states))
		for _, s := range states {
			e.upStates[s] = struct{}{}
		}
	}
}

// WithHealthAlertThreshold overrides the numeric health value below which an
// otherwise-up device is flagged.
func WithHealthAlertThreshold(threshold float64) EngineOption {
	return func(e *Engine) {
		e.healthThreshold = threshold
	}
}

// WithSummarySampleSize overrides how many recent records feed the global
// summary reduction.
func WithSummarySampleSize(n int64) EngineOption {
	return func(e *Engine) {
		e.sampleSize = n
	}
}

// Engine answers time-windowed, multi-site aggregation queries over the
// record store.
type Engine struct {
	logger *zap.Logger
	source RecordSource

	upStates        map[string]struct{}
	healthThreshold float64
	sampleSize      int64
}

func NewEngine(source RecordSource, opts ...EngineOption) *Engine {
	e := &Engine{
		logger:          zap.NewNop(),
		source:          source,
		healthThreshold: DefaultHealthAlertThreshold,
		sampleSize:      DefaultSummarySampleSize,
	}
	WithUpStates(DefaultUpStates)(e)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sites returns all sites with at least one record, sorted.
func (e *Engine) Sites(ctx context.Context) ([]string, error) {
	return e.source.DistinctSites(ctx)
}

// Devices returns the devices reporting at a site (or everywhere when site is
// empty), sorted.
func (e *Engine) Devices(ctx context.Context, site string) ([]string, error) {
	return e.source.DistinctDevices(ctx, site)
}

// Filter returns the records matching the query, projected and capped by the
// store.
func (e *Engine) Filter(ctx context.Context, q store.RecordQuery) ([]report.Record, error) {
	return e.source.FindRecords(ctx, q)
}
