// SPDX-License-Identifier: MIT

package track

import (
	"context"
	"time"

	xlog "github.com/aethradio/aether/internal/log"
)

// Source is the contract the radio core consumes.
type Source interface {
	// Search returns up to limit tracks for the query. Best-effort: any
	// failure yields an empty slice, never an error.
	Search(ctx context.Context, query string, limit int) []Track

	// Download fetches the audio for one track identifier. Single attempt.
	Download(ctx context.Context, id string) DownloadResult
}

// Library is the persistence slice the source consumes: completed
// downloads are recorded, and the listener blacklist filters search
// results. Satisfied by *store.Media.
type Library interface {
	RecordDownload(ctx context.Context, t Track, filePath string, downloadedAt time.Time) error
	IsBlacklisted(ctx context.Context, id string) (bool, error)
}

// RetryPolicy bounds DownloadWithRetry.
type RetryPolicy struct {
	Attempts  int           // total attempts, minimum 1
	BaseDelay time.Duration // delay grows quadratically with the attempt number
	Timeout   time.Duration // per-attempt ceiling; 0 disables
}

// DefaultRetryPolicy matches the operational tempo of the radio loop: a
// stalled download must never hold a session for more than a play window.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:  3,
	BaseDelay: 2 * time.Second,
	Timeout:   90 * time.Second,
}

// DownloadWithRetry wraps Source.Download with a bounded number of attempts
// and increasing delay. It still returns a failure result, never an error,
// if all attempts fail. Context cancellation short-circuits immediately.
func DownloadWithRetry(ctx context.Context, src Source, id string, policy RetryPolicy) DownloadResult {
	logger := xlog.WithComponent("track")
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}

	var last DownloadResult
	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt*attempt) * policy.BaseDelay
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Failed(ctx.Err().Error())
			}
		}

		attemptCtx := ctx
		var cancel context.CancelFunc
		if policy.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		}
		last = src.Download(attemptCtx, id)
		if cancel != nil {
			cancel()
		}
		if last.Success {
			return last
		}
		if ctx.Err() != nil {
			return Failed(ctx.Err().Error())
		}
		logger.Warn().
			Str("event", "track.download_retry").
			Str("track_id", id).
			Int("attempt", attempt).
			Str("error", last.Error).
			Msg("download attempt failed")
	}
	return last
}
