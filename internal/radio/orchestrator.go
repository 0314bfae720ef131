// SPDX-License-Identifier: MIT

package radio

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aethradio/aether/internal/config"
	"github.com/aethradio/aether/internal/genre"
	xlog "github.com/aethradio/aether/internal/log"
	"github.com/aethradio/aether/internal/metrics"
	"github.com/aethradio/aether/internal/notify"
	"github.com/aethradio/aether/internal/track"
)

// VoteEngine is the slice of the voting engine the radio core consumes.
// The engine calls back into the orchestrator on resolution, so neither
// package imports the other's concrete loop.
type VoteEngine interface {
	StartVote(ctx context.Context, chatID int64, anchor *notify.MessageRef)
	InProgress(chatID int64) bool
	Cancel(chatID int64)
}

// Orchestrator owns every active radio session. All map mutations happen
// under the mutex; a start for a chat fully tears down any prior session
// before installing the new one.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[int64]*Session

	// startMu serializes Start calls: the teardown of the old session and
	// the install of its replacement must not interleave with another
	// Start, or the loser's loop escapes the registry.
	startMu sync.Mutex

	source   track.Source
	notifier notify.Notifier
	genres   *genre.Store
	votes    VoteEngine
	cfg      config.Config
	retry    track.RetryPolicy

	logger zerolog.Logger
}

// New builds an orchestrator. SetVotes must be called before Start.
func New(source track.Source, notifier notify.Notifier, genres *genre.Store, cfg config.Config) *Orchestrator {
	return &Orchestrator{
		sessions: make(map[int64]*Session),
		source:   source,
		notifier: notifier,
		genres:   genres,
		cfg:      cfg,
		retry: track.RetryPolicy{
			Attempts:  cfg.DownloadRetries,
			BaseDelay: 2 * time.Second,
			Timeout:   cfg.DownloadTimeout,
		},
		logger: xlog.WithComponent("radio"),
	}
}

// SetVotes wires the voting engine. Separate from New because the engine's
// resolution callback needs the orchestrator first.
func (o *Orchestrator) SetVotes(votes VoteEngine) { o.votes = votes }

// Start begins a radio session for the chat, replacing any existing one.
// query may be the random sentinel or a concrete search topic. anchor, when
// non-nil, is an existing message reused as the dashboard. Start returns
// once the loop is launched; it never blocks on playback.
func (o *Orchestrator) Start(ctx context.Context, chatID int64, query, displayName string, anchor *notify.MessageRef) {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	o.Stop(chatID)

	if query == "" {
		query = genre.RandomQuery
	}
	if displayName == "" {
		displayName = query
	}
	s := newSession(chatID, query, displayName, o.cfg.FirstVoteDelay)

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if anchor != nil && !anchor.Zero() {
		s.dashboard = *anchor
	} else {
		ref, err := o.notifier.SendMessage(ctx, chatID, startingText(displayName), controlsKeyboard())
		if err != nil {
			s.logger.Warn().Err(err).Msg("could not post dashboard, running without one")
		} else {
			s.dashboard = ref
		}
	}

	o.mu.Lock()
	o.sessions[chatID] = s
	o.mu.Unlock()

	metrics.SessionStarted()
	s.logger.Info().
		Str("event", "radio.session_started").
		Str("session_id", s.id).
		Str("query", query).
		Msg("radio session started")

	go o.run(loopCtx, s)
}

// Stop tears the chat's session down and waits for its loop to finish.
// Idempotent: stopping a chat with no session is a no-op.
func (o *Orchestrator) Stop(chatID int64) {
	o.mu.Lock()
	s, ok := o.sessions[chatID]
	o.mu.Unlock()
	if !ok {
		return
	}
	s.cancel()
	<-s.done
}

// StopAll stops every active session; used at process shutdown.
func (o *Orchestrator) StopAll() {
	o.mu.Lock()
	all := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		all = append(all, s)
	}
	o.mu.Unlock()
	for _, s := range all {
		s.cancel()
		<-s.done
	}
}

// Skip advances the chat's session to the next track. Returns false when
// no session exists.
func (o *Orchestrator) Skip(chatID int64) bool {
	o.mu.Lock()
	s, ok := o.sessions[chatID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	s.Skip()
	return true
}

// Status returns a snapshot of every active session, ordered by chat id.
func (o *Orchestrator) Status() []Snapshot {
	o.mu.Lock()
	all := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		all = append(all, s)
	}
	o.mu.Unlock()

	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		out = append(out, s.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

// StatusFor returns the snapshot for one chat.
func (o *Orchestrator) StatusFor(chatID int64) (Snapshot, bool) {
	o.mu.Lock()
	s, ok := o.sessions[chatID]
	o.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// AudioPath resolves a track identifier to the local file of the session
// that currently owns it. Serves the HTTP audio endpoint.
func (o *Orchestrator) AudioPath(trackID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.sessions {
		s.mu.Lock()
		if s.current != nil && s.current.Identifier == trackID && s.currentFile != "" {
			path := s.currentFile
			s.mu.Unlock()
			return path, true
		}
		if s.nextTrack != nil && s.nextTrack.Identifier == trackID && s.nextFile != "" {
			path := s.nextFile
			s.mu.Unlock()
			return path, true
		}
		s.mu.Unlock()
	}
	return "", false
}

// HandleVoteResolved applies a resolved genre vote to the chat's session:
// the playlist is rebuilt under the new genre and playback jumps to it.
// Wired as the vote engine's resolution callback.
func (o *Orchestrator) HandleVoteResolved(chatID int64, winnerKey, displayName string) {
	o.mu.Lock()
	s, ok := o.sessions[chatID]
	o.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.winningGenre = winnerKey
	s.displayName = displayName
	s.modeEnd = time.Now().Add(o.cfg.ModeWindow)
	s.playlist = nil
	s.failsInRow = 0
	s.mu.Unlock()

	s.cancelPrefetch()
	s.clearPrefetchSlots()
	s.Skip()

	s.logger.Info().
		Str("event", "radio.genre_switched").
		Str("genre", winnerKey).
		Msg("vote resolved, switching genre")
}
