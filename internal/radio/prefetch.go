// SPDX-License-Identifier: MIT

package radio

import (
	"context"
	"os"

	"github.com/aethradio/aether/internal/track"
)

// startPrefetch speculatively downloads the current playlist head into the
// session's next-track slots. At most one prefetch runs per session; the
// previous one is cancelled and awaited first.
func (o *Orchestrator) startPrefetch(ctx context.Context, s *Session) {
	s.cancelPrefetch()

	head, ok := s.peekHead()
	if !ok {
		return
	}

	pctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.prefetchCancel = cancel
	s.prefetchDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		res := track.DownloadWithRetry(pctx, o.source, head.Identifier, o.retry)
		if pctx.Err() != nil {
			// Cancelled mid-flight. A file that still landed is ours to
			// clean up; nothing consumed it.
			if res.Success {
				removeFile(res.FilePath, s.logger)
			}
			return
		}
		if !res.Success {
			s.logger.Warn().
				Str("event", "radio.prefetch_failed").
				Str("track_id", head.Identifier).
				Str("error", res.Error).
				Msg("prefetch failed, dropping dead head")
			s.dropDeadHead(head.Identifier)
			return
		}
		meta := head
		if res.Track != nil {
			meta = *res.Track
		}
		s.mu.Lock()
		stale := s.nextFile
		s.nextFile = res.FilePath
		s.nextTrack = &meta
		s.mu.Unlock()
		if stale != "" && stale != res.FilePath {
			removeFile(stale, s.logger)
		}
	}()
}

// cancelPrefetch stops any in-flight prefetch and waits for it to finish,
// so no download targets the same identifier twice at once.
func (s *Session) cancelPrefetch() {
	s.mu.Lock()
	cancel := s.prefetchCancel
	done := s.prefetchDone
	s.prefetchCancel = nil
	s.prefetchDone = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// consumePrefetch hands over the prefetched file when it matches the given
// identifier. The slots are cleared on a hit.
func (s *Session) consumePrefetch(id string) (track.Track, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextTrack == nil || s.nextFile == "" || s.nextTrack.Identifier != id {
		return track.Track{}, "", false
	}
	if _, err := os.Stat(s.nextFile); err != nil {
		s.nextTrack = nil
		s.nextFile = ""
		return track.Track{}, "", false
	}
	t, f := *s.nextTrack, s.nextFile
	s.nextTrack = nil
	s.nextFile = ""
	return t, f, true
}

// clearPrefetchSlots drops any staged next track, deleting its file. Used
// when a vote resolution rewrites the playlist.
func (s *Session) clearPrefetchSlots() {
	s.mu.Lock()
	f := s.nextFile
	s.nextTrack = nil
	s.nextFile = ""
	s.mu.Unlock()
	removeFile(f, s.logger)
}
