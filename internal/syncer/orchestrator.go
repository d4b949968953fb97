package syncer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netsight/reportd/internal/ingest"
	"github.com/netsight/reportd/internal/objstore"
)

// DefaultInterval is the periodic sync cadence. Sub-minute freshness is a
// non-goal; five minutes keeps the remote store quiet.
const DefaultInterval = 5 * time.Minute

// ErrSyncInFlight is returned when a sync is requested while one is already
// running. At most one cycle runs at a time.
var ErrSyncInFlight = errors.New("sync already in flight")

// Lister enumerates candidate report keys in the remote store.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Loader persists a batch of downloaded files.
type Loader interface {
	Load(ctx context.Context, files []ingest.File) (ingest.Result, error)
}

// LedgerReader supplies the processed-filename set for the pre-fetch diff.
type LedgerReader interface {
	ProcessedFilenames(ctx context.Context) (map[string]struct{}, error)
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

func WithInterval(interval time.Duration) Option {
	return func(o *Orchestrator) {
		o.interval = interval
	}
}

func WithMaxConcurrentDownloads(n int64) Option {
	return func(o *Orchestrator) {
		o.maxConcurrent = n
	}
}

// Orchestrator coordinates one sync cycle: list, diff against the ledger,
// bounded fetch, persist. It owns the Status descriptor and guarantees at
// most one cycle in flight.
type Orchestrator struct {
	logger *zap.Logger

	lister Lister
	getter ingest.Getter
	ledger LedgerReader
	loader Loader
	status *Status

	interval      time.Duration
	maxConcurrent int64

	syncing atomic.Bool
	trigger chan struct{}
}

// New builds an orchestrator. lister and getter may be nil when the object
// store is unconfigured; cycles then degrade to the credential status
// message instead of failing.
func New(lister Lister, getter ingest.Getter, ledger LedgerReader, loader Loader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:        zap.NewNop(),
		lister:        lister,
		getter:        getter,
		ledger:        ledger,
		loader:        loader,
		status:        NewStatus(),
		interval:      DefaultInterval,
		maxConcurrent: ingest.DefaultMaxConcurrent,
		trigger:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status returns the orchestrator-owned sync descriptor.
func (o *Orchestrator) Status() *Status {
	return o.status
}

// Trigger requests an on-demand sync. Non-blocking; coalesces with any
// pending request and is silently dropped while a cycle is running.
func (o *Orchestrator) Trigger() {
	select {
	case o.trigger <- struct{}{}:
	default:
	}
}

// Run drives periodic syncs until the context is cancelled. Cycle failures
// are logged and retried on the next tick, never fatal.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("sync loop started", zap.Duration("interval", o.interval))

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	runOnce := func() {
		if err := o.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInFlight) {
			o.logger.Error("sync cycle failed", zap.Error(err))
		}
	}

	runOnce()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("sync loop stopped")
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		case <-o.trigger:
			runOnce()
		}
	}
}

// Sync runs one cycle. A second call while a cycle is in flight returns
// ErrSyncInFlight without starting anything.
func (o *Orchestrator) Sync(ctx context.Context) error {
	if !o.syncing.CompareAndSwap(false, true) {
		o.logger.Debug("sync refused, cycle already in flight")
		return ErrSyncInFlight
	}
	defer o.syncing.Store(false)

	cycleID := uuid.NewString()
	logger := o.logger.With(zap.String("cycle_id", cycleID))
	started := time.Now()

	fsm := NewFSM(FSMWithLogger(logger.Named("fsm")))
	fsm.Transition(StateScanning)
	o.status.begin(stepScanning)

	err := o.cycle(ctx, logger, fsm)

	// Failures degrade to fewer records this cycle; the flag never stays
	// stuck and the next tick retries.
	if err != nil {
		o.status.finish(fmt.Sprintf("Error: %s", err))
		logger.Error("sync cycle error",
			zap.Duration("duration", time.Since(started)),
			zap.Error(err),
		)
		return err
	}

	logger.Info("sync cycle finished", zap.Duration("duration", time.Since(started)))
	return nil
}

func (o *Orchestrator) cycle(ctx context.Context, logger *zap.Logger, fsm *FSM) error {
	if o.lister == nil || o.getter == nil {
		fsm.Transition(StateIdle)
		o.status.finish("Invalid R2 Credentials")
		logger.Warn("object store unconfigured, skipping sync")
		return nil
	}

	keys, err := o.lister.List(ctx)
	if err != nil {
		if errors.Is(err, objstore.ErrNoCredentials) {
			fsm.Transition(StateIdle)
			o.status.finish("Invalid R2 Credentials")
			return nil
		}
		return fmt.Errorf("listing report objects: %w", err)
	}

	processed, err := o.ledger.ProcessedFilenames(ctx)
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}

	var pending []string
	for _, key := range keys {
		if _, ok := processed[path.Base(key)]; !ok {
			pending = append(pending, key)
		}
	}

	if len(pending) == 0 {
		fsm.Transition(StateIdle)
		o.status.finish("Up to date")
		logger.Info("no new report files", zap.Int("remote_keys", len(keys)))
		return nil
	}

	fsm.Transition(StateFetching)
	o.status.step(stepFetching)
	o.status.setTotal(len(pending))

	fetcher := ingest.NewFetcher(o.getter,
		ingest.FetcherWithLogger(logger.Named("fetcher")),
		ingest.FetcherWithMaxConcurrent(o.maxConcurrent),
		ingest.FetcherWithProgress(o.status.setDone),
	)
	files := fetcher.Fetch(ctx, pending)

	fsm.Transition(StateSaving)
	o.status.step(stepSaving)

	result, err := o.loader.Load(ctx, files)
	if err != nil {
		return fmt.Errorf("persisting records: %w", err)
	}

	fsm.Transition(StateIdle)

	message := fmt.Sprintf("Added %d records", result.Added)
	if len(result.Skipped) > 0 {
		message = fmt.Sprintf("%s, skipped %d files", message, len(result.Skipped))
	}
	o.status.finish(message)

	logger.Info("sync cycle complete",
		zap.Int("pending_files", len(pending)),
		zap.Int("downloaded", len(files)),
		zap.Int("records_added", result.Added),
		zap.Int("skipped", len(result.Skipped)),
	)
	return nil
}
