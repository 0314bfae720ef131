// SPDX-License-Identifier: MIT

package track

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog"

	"github.com/aethradio/aether/internal/cache"
	xlog "github.com/aethradio/aether/internal/log"
	"github.com/aethradio/aether/internal/metrics"
)

const (
	sourceName     = "YouTube"
	searchCacheTTL = time.Hour
	watchURLPrefix = "https://www.youtube.com/watch?v="
)

// YTDLPConfig tunes the yt-dlp backed source.
type YTDLPConfig struct {
	DownloadsDir  string
	MaxConcurrent int // bounded download concurrency; minimum 1
}

// YTDLP searches and downloads via the yt-dlp binary, with a native
// fallback search when yt-dlp itself is unavailable or returns nothing.
type YTDLP struct {
	dir      string
	sem      chan struct{}
	searches cache.Cache // optional search-result cache
	library  Library     // optional download history and blacklist
	logger   zerolog.Logger
}

// NewYTDLP builds the source. searches and library may be nil.
func NewYTDLP(cfg YTDLPConfig, searches cache.Cache, library Library) *YTDLP {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &YTDLP{
		dir:      cfg.DownloadsDir,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		searches: searches,
		library:  library,
		logger:   xlog.WithComponent("track"),
	}
}

// newCommand returns a yt-dlp command with the flags every invocation shares.
func newCommand() *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if proxy := os.Getenv("AETHER_YOUTUBE_PROXY"); proxy != "" {
		cmd.Proxy(proxy)
	}
	return cmd
}

// Search implements Source. Best-effort: every failure path returns an
// empty slice. Results are cached per query for an hour.
func (y *YTDLP) Search(ctx context.Context, query string, limit int) []Track {
	if limit < 1 {
		return nil
	}
	cacheKey := "search:" + query
	if y.searches != nil {
		if raw, ok := y.searches.Get(cacheKey); ok {
			var cached []Track
			if err := json.Unmarshal(raw, &cached); err == nil {
				metrics.RecordSearch("hit")
				if len(cached) > limit {
					cached = cached[:limit]
				}
				// The blacklist may have grown since this entry was cached.
				return y.dropBlacklisted(ctx, cached)
			}
		}
	}

	out := y.searchYtdlp(ctx, query, limit)
	if len(out) == 0 {
		out = y.searchNative(ctx, query, limit)
	}
	if len(out) == 0 {
		metrics.RecordSearch("empty")
		return nil
	}
	metrics.RecordSearch("miss")

	if y.searches != nil {
		if raw, err := json.Marshal(out); err == nil {
			y.searches.Set(cacheKey, raw, searchCacheTTL)
		}
	}
	return y.dropBlacklisted(ctx, out)
}

// dropBlacklisted removes tracks listeners have banned. Lookup errors keep
// the track: a broken store must not silence the radio.
func (y *YTDLP) dropBlacklisted(ctx context.Context, in []Track) []Track {
	if y.library == nil {
		return in
	}
	out := in[:0]
	for _, t := range in {
		banned, err := y.library.IsBlacklisted(ctx, t.Identifier)
		if err != nil {
			y.logger.Warn().
				Err(err).
				Str("event", "track.blacklist_check_failed").
				Str("track_id", t.Identifier).
				Msg("blacklist lookup failed, keeping track")
		}
		if banned {
			continue
		}
		out = append(out, t)
	}
	return out
}

// searchYtdlp runs a flat-playlist ytsearch. It over-fetches twice the
// limit because the hygiene filter discards a large share of hits.
func (y *YTDLP) searchYtdlp(ctx context.Context, query string, limit int) []Track {
	cmd := newCommand().
		FlatPlaylist().
		Print("%(id)s\t%(title)s\t%(channel,uploader)s\t%(duration)s\t%(is_live)s").
		PlaylistItems(fmt.Sprintf("1-%d", limit*2))

	search := fmt.Sprintf("ytsearch%d:%s %s", limit*2, query, minusWords)
	res, err := cmd.Run(ctx, search)
	if err != nil {
		y.logger.Warn().
			Err(err).
			Str("event", "track.search_failed").
			Str("query", query).
			Msg("yt-dlp search failed")
		metrics.RecordSearch("error")
		return nil
	}

	out := make([]Track, 0, limit)
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 5 || parts[0] == "" || parts[0] == "NA" {
			continue
		}
		duration := parseSeconds(parts[3])
		isLive := strings.EqualFold(parts[4], "true")
		if !keepResult(parts[1], duration, isLive, query) {
			continue
		}
		out = append(out, Track{
			Title:      parts[1],
			Artist:     orUnknown(parts[2]),
			Duration:   duration,
			Identifier: parts[0],
			Source:     sourceName,
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Download implements Source: one attempt, bounded by the source-wide
// concurrency semaphore. The audio lands in the downloads dir named after
// the track identifier; the caller owns the file from then on.
func (y *YTDLP) Download(ctx context.Context, id string) DownloadResult {
	select {
	case y.sem <- struct{}{}:
		defer func() { <-y.sem }()
	case <-ctx.Done():
		return Failed(ctx.Err().Error())
	}

	start := time.Now()
	res := y.download(ctx, id)
	metrics.RecordDownload(res.Success, time.Since(start))

	if res.Success && y.library != nil {
		if err := y.library.RecordDownload(ctx, track(res, id), res.FilePath, time.Now().UTC()); err != nil {
			y.logger.Warn().
				Err(err).
				Str("event", "track.record_failed").
				Str("track_id", id).
				Msg("could not persist download record")
		}
	}
	return res
}

func (y *YTDLP) download(ctx context.Context, id string) DownloadResult {
	cmd := newCommand().
		Format("bestaudio[ext=m4a]/bestaudio/best").
		Output(filepath.Join(y.dir, "%(id)s.%(ext)s")).
		NoPlaylist()

	if _, err := cmd.Run(ctx, watchURLPrefix+id); err != nil {
		return Failed(fmt.Sprintf("yt-dlp: %v", err))
	}

	matches, err := filepath.Glob(filepath.Join(y.dir, id+".*"))
	if err != nil || len(matches) == 0 {
		return Failed("download finished but no file found on disk")
	}
	// Discard leftover partial fragments; the real file is the largest match.
	best := matches[0]
	var bestSize int64 = -1
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.Size() > bestSize {
			best, bestSize = m, info.Size()
		}
	}
	if bestSize <= 0 {
		return Failed("downloaded file is empty")
	}
	return DownloadResult{
		Success:  true,
		FilePath: best,
		Track:    &Track{Identifier: id, Source: sourceName},
	}
}

func track(res DownloadResult, id string) Track {
	if res.Track != nil {
		return *res.Track
	}
	return Track{Identifier: id, Source: sourceName}
}

func parseSeconds(s string) int {
	if s == "" || s == "NA" {
		return 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return int(f)
	}
	return 0
}

func orUnknown(s string) string {
	if s == "" || s == "NA" {
		return "Unknown"
	}
	return s
}
