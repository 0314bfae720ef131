// SPDX-License-Identifier: MIT

// Package vote runs timed genre polls: one ballot message per chat, live
// tallies on an inline keyboard, and deterministic winner resolution.
package vote

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aethradio/aether/internal/genre"
	xlog "github.com/aethradio/aether/internal/log"
	"github.com/aethradio/aether/internal/metrics"
	"github.com/aethradio/aether/internal/notify"
)

// SampleSize is how many candidate genres a ballot offers (fewer if the
// catalog is smaller).
const SampleSize = 6

// Config tunes the vote lifecycle.
type Config struct {
	Window  time.Duration // how long a ballot stays open
	Refresh time.Duration // keyboard refresh cadence
	Cleanup time.Duration // delay before the result message is deleted
}

// ResolvedFunc is called once per resolved vote with the winning genre.
type ResolvedFunc func(chatID int64, winnerKey, displayName string)

// session is the per-chat vote state; it exists only while a vote runs.
type session struct {
	chatID     int64
	candidates []string                    // sorted sample from the catalog
	votes      map[string]map[int64]struct{} // genre -> voter set
	ballot     notify.MessageRef
	cancel     context.CancelFunc
	done       chan struct{}
}

func (s *session) tally(key string) int { return len(s.votes[key]) }

// Engine drives votes for all chats. Idle -> Voting -> Idle per chat.
type Engine struct {
	mu       sync.Mutex
	sessions map[int64]*session

	notifier   notify.Notifier
	genres     *genre.Store
	cfg        Config
	onResolved ResolvedFunc

	rngMu sync.Mutex
	rng   *rand.Rand

	logger zerolog.Logger
}

// New builds the engine. onResolved may be nil.
func New(notifier notify.Notifier, genres *genre.Store, cfg Config, onResolved ResolvedFunc) *Engine {
	return &Engine{
		sessions:   make(map[int64]*session),
		notifier:   notifier,
		genres:     genres,
		cfg:        cfg,
		onResolved: onResolved,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:     xlog.WithComponent("vote"),
	}
}

// InProgress reports whether a vote is currently open for the chat.
func (e *Engine) InProgress(chatID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[chatID]
	return ok
}

// StartVote opens a ballot for the chat. No-op when one is already open or
// the catalog is empty. When anchor is non-nil the existing message is
// edited into the ballot instead of sending a new one (the /vote command
// reuses its own prompt). The vote resolves itself after the window.
func (e *Engine) StartVote(ctx context.Context, chatID int64, anchor *notify.MessageRef) {
	catalog := e.genres.Catalog()
	if catalog.Len() == 0 {
		e.logger.Warn().
			Str("event", "vote.no_catalog").
			Int64("chat_id", chatID).
			Msg("cannot start a vote without genres")
		return
	}

	e.rngMu.Lock()
	candidates := catalog.Sample(SampleSize, e.rng)
	e.rngMu.Unlock()

	voteCtx, cancel := context.WithCancel(ctx)
	s := &session{
		chatID:     chatID,
		candidates: candidates,
		votes:      make(map[string]map[int64]struct{}),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	e.mu.Lock()
	if _, exists := e.sessions[chatID]; exists {
		e.mu.Unlock()
		cancel()
		return
	}
	e.sessions[chatID] = s
	e.mu.Unlock()

	e.logger.Info().
		Str("event", "vote.started").
		Int64("chat_id", chatID).
		Strs("candidates", candidates).
		Msg("genre vote started")

	go e.run(voteCtx, s, anchor, catalog)
}

// run posts the ballot, keeps the keyboard fresh and resolves on timeout.
func (e *Engine) run(ctx context.Context, s *session, anchor *notify.MessageRef, catalog *genre.Catalog) {
	defer close(s.done)

	text := fmt.Sprintf(
		"📢 *Genre vote is open!*\n\nPick what plays next. Voting closes in %s.",
		formatWindow(e.cfg.Window),
	)
	kb := e.ballotKeyboard(s, catalog)

	var ref notify.MessageRef
	if anchor != nil && !anchor.Zero() {
		if err := e.notifier.EditMessage(ctx, *anchor, text, kb); err != nil {
			e.abort(s, err)
			return
		}
		ref = *anchor
	} else {
		sent, err := e.notifier.SendMessage(ctx, s.chatID, text, kb)
		if err != nil {
			e.abort(s, err)
			return
		}
		ref = sent
	}
	e.mu.Lock()
	s.ballot = ref
	e.mu.Unlock()

	refresh := time.NewTicker(e.cfg.Refresh)
	defer refresh.Stop()
	window := time.NewTimer(e.cfg.Window)
	defer window.Stop()

	for {
		select {
		case <-ctx.Done():
			// The owning session is shutting down; drop the vote silently.
			// A resolved vote may already have been replaced by a new one,
			// so only remove our own entry.
			e.mu.Lock()
			if e.sessions[s.chatID] == s {
				delete(e.sessions, s.chatID)
			}
			e.mu.Unlock()
			return
		case <-refresh.C:
			e.refreshKeyboard(ctx, s, catalog)
		case <-window.C:
			e.Resolve(ctx, s.chatID)
			return
		}
	}
}

// abort returns to Idle when the ballot could not even be posted.
func (e *Engine) abort(s *session, err error) {
	e.logger.Error().
		Err(err).
		Str("event", "vote.ballot_failed").
		Int64("chat_id", s.chatID).
		Msg("could not post ballot, aborting vote")
	e.mu.Lock()
	if e.sessions[s.chatID] == s {
		delete(e.sessions, s.chatID)
	}
	e.mu.Unlock()
}

// RegisterVote records one voter's ballot. A voter backs exactly one
// genre: re-voting moves the ballot. Returns false when no vote is open
// or the genre is not on the ballot.
func (e *Engine) RegisterVote(ctx context.Context, chatID int64, genreKey string, voterID int64) bool {
	e.mu.Lock()
	s, ok := e.sessions[chatID]
	if !ok {
		e.mu.Unlock()
		return false
	}
	onBallot := false
	for _, c := range s.candidates {
		if c == genreKey {
			onBallot = true
			break
		}
	}
	if !onBallot {
		e.mu.Unlock()
		return false
	}
	for _, voters := range s.votes {
		delete(voters, voterID)
	}
	if s.votes[genreKey] == nil {
		s.votes[genreKey] = make(map[int64]struct{})
	}
	s.votes[genreKey][voterID] = struct{}{}
	e.mu.Unlock()

	metrics.RecordVoteCast()
	e.refreshKeyboard(ctx, s, e.genres.Catalog())
	return true
}

// Resolve closes the vote and announces the winner. Idempotent: a vote
// already resolved (or never started) returns ("", false).
//
// Winner = largest ballot set; ties break to the first candidate in the
// sorted display order, so identical tallies always resolve identically.
// Zero ballots pick uniformly at random among the candidates.
func (e *Engine) Resolve(ctx context.Context, chatID int64) (string, bool) {
	e.mu.Lock()
	s, ok := e.sessions[chatID]
	if !ok {
		e.mu.Unlock()
		return "", false
	}
	delete(e.sessions, chatID)

	winner := ""
	best := -1
	for _, c := range s.candidates {
		if n := s.tally(c); n > best {
			winner, best = c, n
		}
	}
	if best == 0 {
		e.rngMu.Lock()
		winner = s.candidates[e.rng.Intn(len(s.candidates))]
		e.rngMu.Unlock()
	}
	e.mu.Unlock()

	// The lifecycle goroutine is cancelled only after the announcement:
	// its context may be the one we are resolving under.
	defer s.cancel()

	displayName := e.genres.Catalog().DisplayName(winner)
	e.logger.Info().
		Str("event", "vote.resolved").
		Int64("chat_id", chatID).
		Str("genre", winner).
		Int("ballots", best).
		Msg("genre vote resolved")
	metrics.RecordVoteResolved()

	e.announce(ctx, s, displayName)

	if e.onResolved != nil {
		e.onResolved(chatID, winner, displayName)
	}
	return winner, true
}

// announce edits the ballot into the result and schedules its cleanup.
// Every messaging failure here is non-fatal.
func (e *Engine) announce(ctx context.Context, s *session, displayName string) {
	e.mu.Lock()
	ballotRef := s.ballot
	e.mu.Unlock()
	if ballotRef.Zero() {
		return
	}
	text := fmt.Sprintf("🎉 *Vote finished!*\n\nComing up: *%s*", displayName)
	if err := e.notifier.EditMessage(ctx, ballotRef, text, nil); err != nil {
		e.logger.Warn().
			Err(err).
			Str("event", "vote.announce_failed").
			Int64("chat_id", s.chatID).
			Msg("could not announce vote result")
		return
	}
	ballot := ballotRef
	time.AfterFunc(e.cfg.Cleanup, func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.notifier.DeleteMessage(cleanupCtx, ballot); err != nil {
			e.logger.Debug().Err(err).Msg("result cleanup failed")
		}
	})
}

// Cancel drops a running vote without announcement and waits for its
// lifecycle goroutine to finish. Used on session teardown.
func (e *Engine) Cancel(chatID int64) {
	e.mu.Lock()
	s, ok := e.sessions[chatID]
	e.mu.Unlock()
	if !ok {
		return
	}
	s.cancel()
	<-s.done
}

// StopAll cancels every running vote; used at process shutdown.
func (e *Engine) StopAll() {
	e.mu.Lock()
	all := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		all = append(all, s)
	}
	e.mu.Unlock()
	for _, s := range all {
		s.cancel()
		<-s.done
	}
}

func formatWindow(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
