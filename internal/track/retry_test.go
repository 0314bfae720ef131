// SPDX-License-Identifier: MIT

package track

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource fails a configured number of times before succeeding.
type scriptedSource struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *scriptedSource) Search(ctx context.Context, query string, limit int) []Track { return nil }

func (s *scriptedSource) Download(ctx context.Context, id string) DownloadResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return Failed("boom")
	}
	return DownloadResult{Success: true, FilePath: "/tmp/" + id + ".m4a"}
}

func TestDownloadWithRetryEventualSuccess(t *testing.T) {
	src := &scriptedSource{failures: 2}
	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}

	res := DownloadWithRetry(context.Background(), src, "abc", policy)

	require.True(t, res.Success)
	assert.Equal(t, 3, src.calls)
}

func TestDownloadWithRetryExhaustsAttempts(t *testing.T) {
	src := &scriptedSource{failures: 10}
	policy := RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}

	res := DownloadWithRetry(context.Background(), src, "abc", policy)

	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)
	assert.Equal(t, 3, src.calls)
}

func TestDownloadWithRetryStopsOnCancel(t *testing.T) {
	src := &scriptedSource{failures: 10}
	policy := RetryPolicy{Attempts: 5, BaseDelay: time.Hour} // would sleep forever

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := DownloadWithRetry(ctx, src, "abc", policy)

	assert.False(t, res.Success)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, src.calls)
}

func TestDownloadWithRetryClampsAttempts(t *testing.T) {
	src := &scriptedSource{failures: 0}
	res := DownloadWithRetry(context.Background(), src, "abc", RetryPolicy{})

	require.True(t, res.Success)
	assert.Equal(t, 1, src.calls)
}
