// SPDX-License-Identifier: MIT

// Package radio implements the per-chat radio engine: the session state
// machine, the orchestrator that owns all sessions, and the playback loop
// that ties genre votes, track search and prefetch together.
package radio

import (
	"context"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	xlog "github.com/aethradio/aether/internal/log"
	"github.com/aethradio/aether/internal/notify"
	"github.com/aethradio/aether/internal/track"
)

// Session is the live radio state for one chat. The loop goroutine owns
// all playback transitions; external calls (Skip, Stop, vote resolution)
// only touch latched signals and flat fields under the mutex.
type Session struct {
	chatID    int64
	id        string
	startedAt time.Time

	mu           sync.Mutex
	query        string
	displayName  string
	winningGenre string
	current      *track.Track
	currentFile  string
	playlist     []track.Track
	playedIDs    map[string]struct{}
	nextTrack    *track.Track
	nextFile     string
	modeEnd      time.Time
	failsInRow   int
	dashboard    notify.MessageRef

	prefetchCancel context.CancelFunc
	prefetchDone   chan struct{}

	// skip is a one-slot latch: raising it twice between loop iterations
	// still advances exactly one track.
	skip   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	rng    *rand.Rand
	logger zerolog.Logger
}

func newSession(chatID int64, query, displayName string, firstVoteDelay time.Duration) *Session {
	now := time.Now()
	return &Session{
		chatID:      chatID,
		id:          uuid.NewString(),
		startedAt:   now,
		query:       query,
		displayName: displayName,
		playedIDs:   make(map[string]struct{}),
		modeEnd:     now.Add(firstVoteDelay),
		skip:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		rng:         rand.New(rand.NewSource(now.UnixNano() ^ chatID)),
		logger:      xlog.WithChat("radio", chatID),
	}
}

// Skip raises the skip latch. Non-blocking; a latch already raised stays
// raised.
func (s *Session) Skip() {
	select {
	case s.skip <- struct{}{}:
	default:
	}
}

// clearSkip drains the latch at the top of every loop iteration so a skip
// pressed during acquisition does not also skip the next track.
func (s *Session) clearSkip() {
	select {
	case <-s.skip:
	default:
	}
}

// peekHead returns the playlist head without popping it.
func (s *Session) peekHead() (track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.playlist) == 0 {
		return track.Track{}, false
	}
	return s.playlist[0], true
}

// popHead removes and returns the playlist head.
func (s *Session) popHead() (track.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.playlist) == 0 {
		return track.Track{}, false
	}
	head := s.playlist[0]
	s.playlist = s.playlist[1:]
	return head, true
}

// promote installs the acquired track as current, releasing the file of
// the previous one. played tracks never re-enter the playlist.
func (s *Session) promote(t track.Track, filePath string) {
	s.mu.Lock()
	old := s.currentFile
	s.current = &t
	s.currentFile = filePath
	s.playedIDs[t.Identifier] = struct{}{}
	s.mu.Unlock()
	if old != "" && old != filePath {
		removeFile(old, s.logger)
	}
}

// dropDeadHead removes the head only if it still is the given identifier.
// Prefetch uses it so a playlist rewritten by a vote is left alone.
func (s *Session) dropDeadHead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.playlist) == 0 || s.playlist[0].Identifier != id {
		return false
	}
	s.playlist = s.playlist[1:]
	return true
}

// Snapshot is the read-only session view exposed by Status.
type Snapshot struct {
	ChatID       int64        `json:"chat_id"`
	SessionID    string       `json:"session_id"`
	Query        string       `json:"query"`
	DisplayName  string       `json:"display_name,omitempty"`
	Current      *track.Track `json:"current,omitempty"`
	PlaylistLen  int          `json:"playlist_len"`
	IsActive     bool         `json:"is_active"`
	WinningGenre string       `json:"winning_genre,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cur *track.Track
	if s.current != nil {
		c := *s.current
		cur = &c
	}
	return Snapshot{
		ChatID:       s.chatID,
		SessionID:    s.id,
		Query:        s.query,
		DisplayName:  s.displayName,
		Current:      cur,
		PlaylistLen:  len(s.playlist),
		IsActive:     true,
		WinningGenre: s.winningGenre,
		StartedAt:    s.startedAt,
	}
}

// removeFile deletes a downloaded audio file, best-effort.
func removeFile(path string, logger zerolog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("path", path).Msg("could not remove audio file")
	}
}
