package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGetter struct {
	mu       sync.Mutex
	inFlight int64
	peak     int64
	delay    time.Duration
	fail     map[string]bool
}

func (g *fakeGetter) Get(ctx context.Context, key string) ([]byte, error) {
	cur := atomic.AddInt64(&g.inFlight, 1)
	defer atomic.AddInt64(&g.inFlight, -1)

	g.mu.Lock()
	if cur > g.peak {
		g.peak = cur
	}
	g.mu.Unlock()

	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	if g.fail[key] {
		return nil, errors.New("permission denied")
	}
	return []byte("data:" + key), nil
}

func TestFetch(t *testing.T) {
	t.Run("bounded concurrency", func(t *testing.T) {
		getter := &fakeGetter{delay: 2 * time.Millisecond}

		keys := make([]string, 200)
		for i := range keys {
			keys[i] = fmt.Sprintf("reports/file-%03d.csv", i)
		}

		f := NewFetcher(getter, FetcherWithMaxConcurrent(50))
		files := f.Fetch(context.Background(), keys)

		assert.Len(t, files, 200)
		assert.LessOrEqual(t, getter.peak, int64(50))
	})

	t.Run("failures are isolated", func(t *testing.T) {
		getter := &fakeGetter{fail: map[string]bool{"reports/bad.csv": true}}

		f := NewFetcher(getter)
		files := f.Fetch(context.Background(), []string{
			"reports/good-1.csv",
			"reports/bad.csv",
			"reports/good-2.csv",
		})

		require.Len(t, files, 2)
		names := []string{files[0].Name, files[1].Name}
		assert.ElementsMatch(t, []string{"good-1.csv", "good-2.csv"}, names)
	})

	t.Run("keys reduced to basenames", func(t *testing.T) {
		getter := &fakeGetter{}

		f := NewFetcher(getter)
		files := f.Fetch(context.Background(), []string{"incoming/2024/SiteA-export.csv"})

		require.Len(t, files, 1)
		assert.Equal(t, "SiteA-export.csv", files[0].Name)
		assert.Equal(t, []byte("data:incoming/2024/SiteA-export.csv"), files[0].Data)
	})

	t.Run("progress counts monotonically to total", func(t *testing.T) {
		getter := &fakeGetter{}

		var mu sync.Mutex
		var seen []int
		f := NewFetcher(getter, FetcherWithProgress(func(done int) {
			mu.Lock()
			seen = append(seen, done)
			mu.Unlock()
		}))

		f.Fetch(context.Background(), []string{"a.csv", "b.csv", "c.csv"})

		require.Len(t, seen, 3)
		assert.ElementsMatch(t, []int{1, 2, 3}, seen)
	})

	t.Run("cancelled context stops dispatch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		getter := &fakeGetter{}
		f := NewFetcher(getter, FetcherWithMaxConcurrent(1))
		files := f.Fetch(ctx, []string{"a.csv", "b.csv"})

		assert.Empty(t, files)
	})
}
