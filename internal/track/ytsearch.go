// SPDX-License-Identifier: MIT

package track

import (
	"context"
	"strconv"
	"strings"

	"github.com/ppalone/ytsearch"
)

// searchNative queries YouTube's search page directly. It is the fallback
// when yt-dlp is missing or returned nothing; it needs no external binary.
func (y *YTDLP) searchNative(ctx context.Context, query string, limit int) []Track {
	client := ytsearch.NewClient(nil)
	res, err := client.Search(ctx, query)
	if err != nil {
		y.logger.Warn().
			Err(err).
			Str("event", "track.native_search_failed").
			Str("query", query).
			Msg("native search failed")
		return nil
	}

	out := make([]Track, 0, limit)
	for _, r := range res.Results {
		if r.VideoID == "" {
			continue
		}
		duration := parseColonDuration(r.Duration)
		if !keepResult(r.Title, duration, false, query) {
			continue
		}
		out = append(out, Track{
			Title:      r.Title,
			Artist:     orUnknown(r.Channel),
			Duration:   duration,
			Identifier: r.VideoID,
			Source:     sourceName,
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}

// parseColonDuration parses "3:20" or "1:05:20" into seconds.
func parseColonDuration(s string) int {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}
