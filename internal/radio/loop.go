// SPDX-License-Identifier: MIT

package radio

import (
	"context"
	"time"

	"github.com/aethradio/aether/internal/genre"
	"github.com/aethradio/aether/internal/metrics"
	"github.com/aethradio/aether/internal/notify"
	"github.com/aethradio/aether/internal/track"
)

// Consecutive empty refills before the session gives up on its query and
// falls back to a fresh random genre.
const refillFailLimit = 2

// run is the session loop. It exits only on cancellation and always runs
// teardown, so files and registry entries are never leaked.
func (o *Orchestrator) run(ctx context.Context, s *Session) {
	defer o.teardown(s)

	for {
		if ctx.Err() != nil {
			return
		}
		s.clearSkip()

		o.maybeStartVote(ctx, s)

		if !o.refill(ctx, s) {
			// Playlist still empty; nothing to play this iteration.
			if !sleepCtx(ctx, o.cfg.EmptyRetrySleep) {
				return
			}
			continue
		}

		t, filePath, ok := o.acquire(ctx, s)
		if !ok {
			continue
		}

		s.promote(t, filePath)
		o.startPrefetch(ctx, s)

		o.updateDashboard(ctx, s, onAirText(t, s.snapshot()))
		o.sendAudio(ctx, s, t, filePath)
		metrics.RecordTrackPlayed()

		o.waitTrack(ctx, s, t)
	}
}

// maybeStartVote opens a genre vote when none is running and the current
// mode window has lapsed. Non-blocking; the vote runs concurrently.
func (o *Orchestrator) maybeStartVote(ctx context.Context, s *Session) {
	if o.votes == nil || o.votes.InProgress(s.chatID) {
		return
	}
	s.mu.Lock()
	due := s.modeEnd.IsZero() || !time.Now().Before(s.modeEnd)
	if due {
		// Re-arm by one vote window so an aborted ballot does not retrigger
		// every iteration; a resolved vote extends this to the mode window.
		s.modeEnd = time.Now().Add(o.cfg.VoteWindow)
	}
	s.mu.Unlock()
	if due {
		o.votes.StartVote(ctx, s.chatID, nil)
	}
}

// refill tops the playlist up when it runs below the threshold. Returns
// false when the playlist is empty afterwards.
func (o *Orchestrator) refill(ctx context.Context, s *Session) bool {
	s.mu.Lock()
	depth := len(s.playlist)
	query, winning := s.query, s.winningGenre
	s.mu.Unlock()

	if depth >= o.cfg.RefillThreshold {
		return true
	}

	resolved := o.genres.Catalog().ResolveQuery(query, winning, s.rng)
	results := o.source.Search(ctx, resolved, o.cfg.SearchLimit)

	s.mu.Lock()
	seen := make(map[string]struct{}, len(s.playlist))
	for _, t := range s.playlist {
		seen[t.Identifier] = struct{}{}
	}
	appended := 0
	for _, t := range results {
		if _, played := s.playedIDs[t.Identifier]; played {
			continue
		}
		if _, queued := seen[t.Identifier]; queued {
			continue
		}
		s.playlist = append(s.playlist, t)
		seen[t.Identifier] = struct{}{}
		appended++
	}
	empty := len(s.playlist) == 0
	if appended == 0 {
		s.failsInRow++
	} else {
		s.failsInRow = 0
	}
	fails := s.failsInRow
	s.mu.Unlock()

	if appended == 0 {
		metrics.RecordRefillFailure()
		s.logger.Warn().
			Str("event", "radio.refill_empty").
			Str("resolved_query", resolved).
			Int("fails_in_row", fails).
			Msg("search produced no fresh tracks")
		if fails >= refillFailLimit {
			o.escalateRefillFailure(ctx, s)
			sleepCtx(ctx, o.cfg.FailBackoff)
		}
	}
	return !empty
}

// escalateRefillFailure announces the dry spell and resets the session to
// a fresh random genre pick on the next cycle.
func (o *Orchestrator) escalateRefillFailure(ctx context.Context, s *Session) {
	s.mu.Lock()
	s.winningGenre = ""
	s.query = genre.RandomQuery
	s.displayName = genre.RandomQuery
	s.failsInRow = 0
	s.mu.Unlock()

	s.logger.Warn().
		Str("event", "radio.refill_escalated").
		Msg("repeated empty refills, falling back to a random genre")

	text := "😔 Couldn't find fresh tracks for the current genre.\nSwitching to a random pick…"
	if _, err := o.notifier.SendMessage(ctx, s.chatID, text, nil); err != nil {
		s.logger.Warn().Err(err).Msg("could not announce refill failure")
	}
}

// acquire turns the playlist head into a playable local file. The
// prefetched file is the fast path; otherwise the head is downloaded
// inline. A failed download drops the track and the loop moves on.
func (o *Orchestrator) acquire(ctx context.Context, s *Session) (track.Track, string, bool) {
	head, ok := s.popHead()
	if !ok {
		return track.Track{}, "", false
	}

	if t, f, hit := s.consumePrefetch(head.Identifier); hit {
		return t, f, true
	}

	// A prefetch may still be in flight for this head; wait it out so the
	// same identifier is never downloaded twice at once.
	s.cancelPrefetch()
	if t, f, hit := s.consumePrefetch(head.Identifier); hit {
		return t, f, true
	}

	o.updateDashboard(ctx, s, downloadingText(head, s.snapshot()))

	res := track.DownloadWithRetry(ctx, o.source, head.Identifier, o.retry)
	if !res.Success {
		s.logger.Warn().
			Str("event", "radio.download_failed").
			Str("track_id", head.Identifier).
			Str("error", res.Error).
			Msg("dropping track after failed download")
		return track.Track{}, "", false
	}
	if res.Track != nil {
		head = *res.Track
	}
	return head, res.FilePath, true
}

// sendAudio ships the track to the chat. Failures are logged; the session
// keeps its tempo either way.
func (o *Orchestrator) sendAudio(ctx context.Context, s *Session, t track.Track, filePath string) {
	audio := notify.Audio{
		FilePath: filePath,
		Title:    t.Title,
		Artist:   t.Artist,
		Duration: t.Duration,
		Caption:  t.DisplayName(),
		Keyboard: TrackKeyboard(t.Identifier, 0, 0),
	}
	if _, err := o.notifier.SendAudio(ctx, s.chatID, audio); err != nil {
		s.logger.Warn().
			Err(err).
			Str("event", "radio.send_failed").
			Str("track_id", t.Identifier).
			Msg("could not deliver audio")
	}
}

// waitTrack suspends until the track's nominal duration elapses or the
// skip latch fires, whichever comes first. Both mean "advance".
func (o *Orchestrator) waitTrack(ctx context.Context, s *Session, t track.Track) {
	d := t.PlayDuration()
	if d <= 0 || d > o.cfg.PlayWindow {
		d = o.cfg.PlayWindow
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-s.skip:
	case <-timer.C:
	}
}

// teardown is the guaranteed finalizer for a session: child tasks are
// cancelled and awaited, files deleted, the dashboard closed out and the
// registry entry removed.
func (o *Orchestrator) teardown(s *Session) {
	defer close(s.done)

	s.cancelPrefetch()
	if o.votes != nil {
		o.votes.Cancel(s.chatID)
	}

	s.mu.Lock()
	current, next := s.currentFile, s.nextFile
	s.currentFile, s.nextFile = "", ""
	s.current, s.nextTrack = nil, nil
	dash := s.dashboard
	s.mu.Unlock()

	removeFile(current, s.logger)
	removeFile(next, s.logger)

	if !dash.Zero() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := o.notifier.EditMessage(ctx, dash, stoppedText(), nil); err != nil {
			s.logger.Debug().Err(err).Msg("could not close out dashboard")
		}
		cancel()
	}

	o.mu.Lock()
	if o.sessions[s.chatID] == s {
		delete(o.sessions, s.chatID)
	}
	o.mu.Unlock()

	metrics.SessionStopped()
	s.logger.Info().
		Str("event", "radio.session_stopped").
		Str("session_id", s.id).
		Msg("radio session stopped")
}

// sleepCtx sleeps for d unless the context ends first; reports whether the
// context is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
