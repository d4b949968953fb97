package ingest

import (
	"context"
	"path"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrent caps in-flight downloads per batch to avoid
// overwhelming the remote store or local memory.
const DefaultMaxConcurrent = 50

// Getter downloads one object's bytes from the remote store.
type Getter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// File is one downloaded report: raw bytes plus the key's basename.
type File struct {
	Name string
	Data []byte
}

type FetcherOption func(*Fetcher)

func FetcherWithLogger(l *zap.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = l
	}
}

func FetcherWithMaxConcurrent(n int64) FetcherOption {
	return func(f *Fetcher) {
		f.maxConcurrent = n
	}
}

// FetcherWithProgress registers a callback invoked with a monotonically
// increasing done-count as downloads complete. Observability only.
func FetcherWithProgress(fn func(done int)) FetcherOption {
	return func(f *Fetcher) {
		f.onProgress = fn
	}
}

// Fetcher downloads report objects with bounded concurrency. Each download is
// isolated: a failure logs and yields no result for that key, without
// aborting sibling downloads.
type Fetcher struct {
	logger        *zap.Logger
	getter        Getter
	maxConcurrent int64
	onProgress    func(done int)
}

func NewFetcher(getter Getter, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		logger:        zap.NewNop(),
		getter:        getter,
		maxConcurrent: DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads every key and returns the files that succeeded. The batch
// suspends until all dispatched downloads resolve; individual failures never
// cancel siblings.
func (f *Fetcher) Fetch(ctx context.Context, keys []string) []File {
	sem := semaphore.NewWeighted(f.maxConcurrent)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		done  atomic.Int64
		files []File
	)

	for _, key := range keys {
		if err := sem.Acquire(ctx, 1); err != nil {
			f.logger.Warn("fetch batch cancelled", zap.Error(err))
			break
		}

		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			defer sem.Release(1)

			data, err := f.getter.Get(ctx, key)

			n := int(done.Add(1))
			if f.onProgress != nil {
				f.onProgress(n)
			}

			if err != nil {
				f.logger.Warn("download failed",
					zap.String("key", key),
					zap.Error(err),
				)
				return
			}

			mu.Lock()
			files = append(files, File{Name: path.Base(key), Data: data})
			mu.Unlock()
		}(key)
	}

	wg.Wait()

	f.logger.Info("fetch batch complete",
		zap.Int("requested", len(keys)),
		zap.Int("downloaded", len(files)),
	)

	return files
}
