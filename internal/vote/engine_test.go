// SPDX-License-Identifier: MIT

package vote

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aethradio/aether/internal/genre"
	"github.com/aethradio/aether/internal/notify"
)

// fakeNotifier records every call; optional failSend breaks ballot posting.
type fakeNotifier struct {
	mu       sync.Mutex
	nextID   int
	sent     []string
	edits    []string
	deletes  []notify.MessageRef
	failSend bool
}

func (f *fakeNotifier) SendMessage(_ context.Context, chatID int64, text string, _ notify.Keyboard) (notify.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return notify.MessageRef{}, errors.New("telegram down")
	}
	f.nextID++
	f.sent = append(f.sent, text)
	return notify.MessageRef{ChatID: chatID, MessageID: f.nextID}, nil
}

func (f *fakeNotifier) EditMessage(_ context.Context, _ notify.MessageRef, text string, _ notify.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeNotifier) EditKeyboard(context.Context, notify.MessageRef, notify.Keyboard) error {
	return nil
}

func (f *fakeNotifier) DeleteMessage(_ context.Context, ref notify.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, ref)
	return nil
}

func (f *fakeNotifier) SendAudio(_ context.Context, chatID int64, _ notify.Audio) (notify.MessageRef, error) {
	return notify.MessageRef{ChatID: chatID, MessageID: 1}, nil
}

func (f *fakeNotifier) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

func testStore() *genre.Store {
	return genre.NewStoreWith(genre.FromMap(map[string]genre.Genre{
		"ambient": {Name: "Ambient"},
		"blues":   {Name: "Blues"},
		"country": {Name: "Country"},
		"dub":     {Name: "Dub"},
	}))
}

func testConfig() Config {
	return Config{Window: time.Hour, Refresh: time.Hour, Cleanup: time.Millisecond}
}

func startVote(t *testing.T, e *Engine, chatID int64) {
	t.Helper()
	e.StartVote(context.Background(), chatID, nil)
	require.Eventually(t, func() bool { return e.InProgress(chatID) },
		2*time.Second, 5*time.Millisecond, "vote never opened")
}

func TestStartVoteSecondIsNoop(t *testing.T) {
	f := &fakeNotifier{}
	e := New(f, testStore(), testConfig(), nil)
	defer e.StopAll()

	startVote(t, e, 1)
	e.StartVote(context.Background(), 1, nil)

	assert.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.sent) == 1
	}, time.Second, 5*time.Millisecond, "second StartVote must not post a ballot")
}

func TestStartVoteBallotFailureReturnsToIdle(t *testing.T) {
	f := &fakeNotifier{failSend: true}
	e := New(f, testStore(), testConfig(), nil)

	e.StartVote(context.Background(), 1, nil)

	assert.Eventually(t, func() bool { return !e.InProgress(1) },
		time.Second, 5*time.Millisecond)
}

func TestRegisterVoteMovesBallot(t *testing.T) {
	f := &fakeNotifier{}
	e := New(f, testStore(), testConfig(), nil)
	defer e.StopAll()
	startVote(t, e, 1)

	require.True(t, e.RegisterVote(context.Background(), 1, "blues", 42))
	require.True(t, e.RegisterVote(context.Background(), 1, "dub", 42))
	require.True(t, e.RegisterVote(context.Background(), 1, "blues", 7))

	winner, ok := e.Resolve(context.Background(), 1)
	require.True(t, ok)

	// 42 moved off blues onto dub; both end at one ballot, so the tie
	// breaks to the first candidate in sorted order.
	assert.Equal(t, "blues", winner)
}

func TestRegisterVoteRejectsUnknown(t *testing.T) {
	f := &fakeNotifier{}
	e := New(f, testStore(), testConfig(), nil)
	defer e.StopAll()
	startVote(t, e, 1)

	assert.False(t, e.RegisterVote(context.Background(), 1, "zydeco", 42), "genre not on ballot")
	assert.False(t, e.RegisterVote(context.Background(), 2, "blues", 42), "no vote open in chat")
}

func TestResolveMajorityWins(t *testing.T) {
	f := &fakeNotifier{}
	var resolved struct {
		sync.Mutex
		key, name string
	}
	e := New(f, testStore(), testConfig(), func(_ int64, key, name string) {
		resolved.Lock()
		resolved.key, resolved.name = key, name
		resolved.Unlock()
	})
	defer e.StopAll()
	startVote(t, e, 1)

	e.RegisterVote(context.Background(), 1, "country", 1)
	e.RegisterVote(context.Background(), 1, "country", 2)
	e.RegisterVote(context.Background(), 1, "ambient", 3)

	winner, ok := e.Resolve(context.Background(), 1)
	require.True(t, ok)
	assert.Equal(t, "country", winner)

	resolved.Lock()
	assert.Equal(t, "country", resolved.key)
	assert.Equal(t, "Country", resolved.name)
	resolved.Unlock()

	assert.Contains(t, f.lastEdit(), "Country", "announcement carries the display name")
}

func TestResolveIdempotent(t *testing.T) {
	f := &fakeNotifier{}
	calls := 0
	e := New(f, testStore(), testConfig(), func(int64, string, string) { calls++ })
	defer e.StopAll()
	startVote(t, e, 1)

	_, ok := e.Resolve(context.Background(), 1)
	require.True(t, ok)
	_, ok = e.Resolve(context.Background(), 1)
	assert.False(t, ok, "second resolve must be a no-op")
	assert.Equal(t, 1, calls)
	assert.False(t, e.InProgress(1))
}

func TestResolveZeroBallotsPicksCandidate(t *testing.T) {
	f := &fakeNotifier{}
	e := New(f, testStore(), testConfig(), nil)
	defer e.StopAll()
	startVote(t, e, 1)

	winner, ok := e.Resolve(context.Background(), 1)
	require.True(t, ok)
	assert.Contains(t, []string{"ambient", "blues", "country", "dub"}, winner)
}

func TestWindowExpiryResolves(t *testing.T) {
	f := &fakeNotifier{}
	cfg := Config{Window: 30 * time.Millisecond, Refresh: time.Hour, Cleanup: time.Millisecond}
	done := make(chan string, 1)
	e := New(f, testStore(), cfg, func(_ int64, key, _ string) { done <- key })
	startVote(t, e, 1)

	select {
	case key := <-done:
		assert.NotEmpty(t, key)
	case <-time.After(2 * time.Second):
		t.Fatal("vote never resolved after window expiry")
	}
	assert.False(t, e.InProgress(1))
}

func TestCancelDropsSilently(t *testing.T) {
	f := &fakeNotifier{}
	e := New(f, testStore(), testConfig(), func(int64, string, string) {
		t.Error("cancelled vote must not resolve")
	})
	startVote(t, e, 1)

	e.Cancel(1)

	assert.False(t, e.InProgress(1))
	for _, edit := range f.edits {
		if strings.Contains(edit, "finished") {
			t.Errorf("cancelled vote announced a result: %q", edit)
		}
	}
}

func TestResultCleanupDeletesBallot(t *testing.T) {
	f := &fakeNotifier{}
	e := New(f, testStore(), testConfig(), nil)
	startVote(t, e, 1)

	_, ok := e.Resolve(context.Background(), 1)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.deletes) == 1
	}, time.Second, 5*time.Millisecond, "result message never cleaned up")
}
