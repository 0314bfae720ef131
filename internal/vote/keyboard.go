// SPDX-License-Identifier: MIT

package vote

import (
	"context"
	"fmt"

	"github.com/aethradio/aether/internal/genre"
	"github.com/aethradio/aether/internal/notify"
)

// CallbackPrefix marks ballot button callbacks; the payload after the
// separator is the genre key.
const CallbackPrefix = "vote"

// ballotKeyboard renders one button per candidate with its live tally.
func (e *Engine) ballotKeyboard(s *session, catalog *genre.Catalog) notify.Keyboard {
	e.mu.Lock()
	defer e.mu.Unlock()

	kb := make(notify.Keyboard, 0, len(s.candidates))
	for _, key := range s.candidates {
		label := catalog.DisplayName(key)
		if n := s.tally(key); n > 0 {
			label = fmt.Sprintf("%s (%d)", label, n)
		}
		kb = append(kb, []notify.Button{{
			Label: label,
			Data:  CallbackPrefix + "|" + key,
		}})
	}
	return kb
}

// refreshKeyboard pushes the current tallies onto the ballot message.
// Telegram rejects no-op edits; the notifier swallows those.
func (e *Engine) refreshKeyboard(ctx context.Context, s *session, catalog *genre.Catalog) {
	e.mu.Lock()
	ballot := s.ballot
	e.mu.Unlock()
	if ballot.Zero() {
		return
	}
	if err := e.notifier.EditKeyboard(ctx, ballot, e.ballotKeyboard(s, catalog)); err != nil {
		e.logger.Debug().Err(err).Int64("chat_id", s.chatID).Msg("keyboard refresh failed")
	}
}
