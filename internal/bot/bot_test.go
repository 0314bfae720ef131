// SPDX-License-Identifier: MIT

package bot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethradio/aether/internal/config"
	"github.com/aethradio/aether/internal/genre"
	"github.com/aethradio/aether/internal/notify"
	"github.com/aethradio/aether/internal/radio"
	"github.com/aethradio/aether/internal/track"
	"github.com/aethradio/aether/internal/vote"
)

type memNotifier struct {
	mu        sync.Mutex
	nextID    int
	texts     []string
	editRefs  []notify.MessageRef
	keyboards []notify.Keyboard
}

func (n *memNotifier) SendMessage(_ context.Context, chatID int64, text string, _ notify.Keyboard) (notify.MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.texts = append(n.texts, text)
	return notify.MessageRef{ChatID: chatID, MessageID: n.nextID}, nil
}
func (n *memNotifier) EditMessage(_ context.Context, ref notify.MessageRef, text string, _ notify.Keyboard) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	n.editRefs = append(n.editRefs, ref)
	return nil
}
func (n *memNotifier) EditKeyboard(_ context.Context, ref notify.MessageRef, kb notify.Keyboard) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.editRefs = append(n.editRefs, ref)
	n.keyboards = append(n.keyboards, kb)
	return nil
}
func (n *memNotifier) DeleteMessage(context.Context, notify.MessageRef) error { return nil }
func (n *memNotifier) SendAudio(_ context.Context, chatID int64, _ notify.Audio) (notify.MessageRef, error) {
	return notify.MessageRef{ChatID: chatID, MessageID: 1}, nil
}

func (n *memNotifier) firstEditRef() (notify.MessageRef, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.editRefs) == 0 {
		return notify.MessageRef{}, false
	}
	return n.editRefs[0], true
}

func (n *memNotifier) lastKeyboard() (notify.Keyboard, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.keyboards) == 0 {
		return nil, false
	}
	return n.keyboards[len(n.keyboards)-1], true
}

func (n *memNotifier) textCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts)
}

func (n *memNotifier) hasText(substr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, t := range n.texts {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}

type recAcker struct {
	mu    sync.Mutex
	texts []string
}

func (a *recAcker) AnswerCallback(_ context.Context, _, text string) {
	a.mu.Lock()
	a.texts = append(a.texts, text)
	a.mu.Unlock()
}

func (a *recAcker) last() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.texts) == 0 {
		return ""
	}
	return a.texts[len(a.texts)-1]
}

type memLibrary struct {
	mu          sync.Mutex
	ratings     map[string]map[int64]bool
	blacklisted map[string]bool
}

func newMemLibrary() *memLibrary {
	return &memLibrary{
		ratings:     make(map[string]map[int64]bool),
		blacklisted: make(map[string]bool),
	}
}

func (l *memLibrary) RateTrack(_ context.Context, trackID string, userID int64, like bool) (int, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ratings[trackID] == nil {
		l.ratings[trackID] = make(map[int64]bool)
	}
	l.ratings[trackID][userID] = like
	likes, dislikes := 0, 0
	for _, v := range l.ratings[trackID] {
		if v {
			likes++
		} else {
			dislikes++
		}
	}
	return likes, dislikes, nil
}

func (l *memLibrary) BlacklistTrack(_ context.Context, trackID string) error {
	l.mu.Lock()
	l.blacklisted[trackID] = true
	l.mu.Unlock()
	return nil
}

func (l *memLibrary) isBlacklisted(trackID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blacklisted[trackID]
}

type tinySource struct{ dir string }

func (s *tinySource) Search(context.Context, string, int) []track.Track {
	return []track.Track{
		{Title: "A", Identifier: "a"},
		{Title: "B", Identifier: "b"},
	}
}

func (s *tinySource) Download(_ context.Context, id string) track.DownloadResult {
	path := filepath.Join(s.dir, id+".m4a")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		return track.Failed(err.Error())
	}
	return track.DownloadResult{Success: true, FilePath: path}
}

func newTestBot(t *testing.T) (*Bot, *memNotifier, *recAcker) {
	t.Helper()
	n := &memNotifier{}
	a := &recAcker{}
	lib := newMemLibrary()
	store := genre.NewStoreWith(genre.FromMap(map[string]genre.Genre{
		"jazz": {Name: "Jazz", Search: "jazz standards"},
		"rock": {Name: "Rock", Search: "classic rock"},
	}))
	cfg := config.Config{
		PlayWindow:      time.Hour,
		RefillThreshold: 5,
		SearchLimit:     12,
		EmptyRetrySleep: 5 * time.Millisecond,
		FailBackoff:     time.Millisecond,
		DownloadTimeout: 5 * time.Second,
		DownloadRetries: 1,
		FirstVoteDelay:  time.Hour,
		VoteWindow:      time.Hour,
		ModeWindow:      time.Hour,
	}
	orch := radio.New(&tinySource{dir: t.TempDir()}, n, store, cfg)
	votes := vote.New(n, store, vote.Config{
		Window:  time.Hour,
		Refresh: time.Hour,
		Cleanup: time.Millisecond,
	}, orch.HandleVoteResolved)
	orch.SetVotes(votes)
	t.Cleanup(func() {
		orch.StopAll()
		votes.StopAll()
	})
	return New(nil, n, a, orch, votes, lib), n, a
}

func command(chatID int64, text string) *tgbotapi.Message {
	cmdLen := len(strings.Fields(text)[0])
	return &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

func callback(chatID, userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{MessageID: 2, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}
}

func TestStartCommandSendsMenu(t *testing.T) {
	b, n, _ := newTestBot(t)
	b.handleCommand(context.Background(), command(1, "/start"))
	assert.True(t, n.hasText("Aether Radio"))
}

func TestSkipWithoutSession(t *testing.T) {
	b, n, _ := newTestBot(t)
	b.handleCommand(context.Background(), command(1, "/skip"))
	assert.True(t, n.hasText("Nothing is playing"))
}

func TestStatusWithoutSession(t *testing.T) {
	b, n, _ := newTestBot(t)
	b.handleCommand(context.Background(), command(1, "/status"))
	assert.True(t, n.hasText("No radio session"))
}

func TestVoteCommandAndCallbackFlow(t *testing.T) {
	b, _, a := newTestBot(t)
	ctx := context.Background()

	b.handleCommand(ctx, command(1, "/vote"))
	require.Eventually(t, func() bool { return b.votes.InProgress(1) },
		2*time.Second, 5*time.Millisecond)

	b.handleCallback(ctx, callback(1, 42, "vote|jazz"))
	assert.Equal(t, "Vote counted", a.last())

	winner, ok := b.votes.Resolve(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, "jazz", winner)

	// The vote is over; a late ballot is rejected.
	b.handleCallback(ctx, callback(1, 43, "vote|rock"))
	assert.Equal(t, "This vote is over", a.last())
}

func TestVoteCommandAnchorsBallot(t *testing.T) {
	b, n, _ := newTestBot(t)
	ctx := context.Background()

	b.handleCommand(ctx, command(1, "/vote"))
	require.Eventually(t, func() bool { return n.hasText("Genre vote is open") },
		2*time.Second, 5*time.Millisecond)

	// The ballot must land as an edit of the placeholder, not a new message.
	ref, ok := n.firstEditRef()
	require.True(t, ok)
	assert.Equal(t, notify.MessageRef{ChatID: 1, MessageID: 1}, ref)
}

func TestVoteCommandIgnoredWhileBallotOpen(t *testing.T) {
	b, n, _ := newTestBot(t)
	ctx := context.Background()

	b.handleCommand(ctx, command(1, "/vote"))
	require.Eventually(t, func() bool { return b.votes.InProgress(1) },
		2*time.Second, 5*time.Millisecond)

	before := n.textCount()
	b.handleCommand(ctx, command(1, "/vote"))
	assert.Equal(t, before, n.textCount(), "no second placeholder while a ballot is open")
}

func TestRatingCallbackTalliesAndRefreshesKeyboard(t *testing.T) {
	b, n, a := newTestBot(t)
	ctx := context.Background()

	b.handleCallback(ctx, callback(1, 42, "rate|abc|up"))
	assert.Equal(t, "👍 Noted", a.last())

	kb, ok := n.lastKeyboard()
	require.True(t, ok)
	require.Len(t, kb, 1)
	require.Len(t, kb[0], 2)
	assert.Equal(t, "👍 1", kb[0][0].Label)
	assert.Equal(t, "👎", kb[0][1].Label)
	assert.Equal(t, "rate|abc|up", kb[0][0].Data)
}

func TestRatingDislikesBlacklistTrack(t *testing.T) {
	b, n, a := newTestBot(t)
	ctx := context.Background()
	lib := b.library.(*memLibrary)

	for _, userID := range []int64{50, 51} {
		b.handleCallback(ctx, callback(1, userID, "rate|abc|down"))
		assert.False(t, lib.isBlacklisted("abc"))
	}
	b.handleCallback(ctx, callback(1, 52, "rate|abc|down"))
	assert.Equal(t, "👎 Noted", a.last())
	assert.True(t, lib.isBlacklisted("abc"), "third dislike bans the track")

	kb, ok := n.lastKeyboard()
	require.True(t, ok)
	assert.Equal(t, "👎 3", kb[0][1].Label)
}

func TestRatingCallbackWithoutLibrary(t *testing.T) {
	b, _, a := newTestBot(t)
	b.library = nil

	b.handleCallback(context.Background(), callback(1, 42, "rate|abc|up"))
	assert.Equal(t, "", a.last())
}

func TestSkipCallbackWithoutSession(t *testing.T) {
	b, _, a := newTestBot(t)
	b.handleCallback(context.Background(), callback(1, 42, "skip"))
	assert.Equal(t, "Nothing is playing", a.last())
}

func TestUnknownCommand(t *testing.T) {
	b, n, _ := newTestBot(t)
	b.handleCommand(context.Background(), command(1, "/frobnicate"))
	assert.True(t, n.hasText("Unknown command"))
}

func TestStatusText(t *testing.T) {
	snap := radio.Snapshot{
		ChatID:      1,
		DisplayName: "Jazz",
		Current:     &track.Track{Title: "So What", Artist: "Miles Davis", Duration: 545},
		PlaylistLen: 3,
	}
	text := statusText(snap)
	assert.Contains(t, text, "Miles Davis — So What")
	assert.Contains(t, text, "09:05")
	assert.Contains(t, text, "Genre: Jazz")
	assert.Contains(t, text, "3 tracks")

	idle := statusText(radio.Snapshot{PlaylistLen: 0})
	assert.Contains(t, idle, "Between tracks")
}
